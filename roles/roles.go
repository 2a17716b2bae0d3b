// Package roles maintains the single standing reaction-role menu message and applies
// the mutual-exclusion rules between role groups. Reaction add grants the mapped role
// unless a conflict rule blocks it, in which case the reaction is retracted and the
// member told privately; reaction remove revokes unconditionally. A bulk sweep reports
// members holding conflicting pairs without removing anything.
package roles

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/onnwee/genesis-relay/state"
	"github.com/onnwee/genesis-relay/telemetry"
)

// MenuHeader is the first line of the reaction-role message.
const MenuHeader = "Pick a role by clicking the matching reaction:"

// Message is a destination-channel message reduced to what the resolver needs.
type Message struct {
	ID        string
	Content   string
	AuthorID  string
	AuthorBot bool
}

// Member is a guild member with resolved role names.
type Member struct {
	ID          string
	DisplayName string
	Bot         bool
	RoleNames   []string
}

// Reaction is a raw reaction event payload.
type Reaction struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	Emoji     string
}

// Session is the chat-platform boundary the resolver drives.
type Session interface {
	Message(channelID, messageID string) (Message, error)
	History(channelID string, limit int) ([]Message, error)
	SendMessage(channelID, content string) (string, error)
	EditMessage(channelID, messageID, content string) error
	ClearReactions(channelID, messageID string) error
	AddReaction(channelID, messageID, emoji string) error
	RemoveUserReaction(channelID, messageID, emoji, userID string) error
	Member(guildID, userID string) (Member, error)
	Members(guildID string) ([]Member, error)
	GrantRole(guildID, userID, roleName string) error
	RevokeRole(guildID, userID, roleName string) error
	DirectMessage(userID, content string) error
}

// Manager owns the role menu and conflict policy for one guild.
type Manager struct {
	Store     *state.Store
	Session   Session
	GuildID   string
	ChannelID string
	// Conflicts maps a role name to the roles it excludes. The check is
	// bidirectional regardless of how the table is authored.
	Conflicts map[string][]string
	// BotUserID narrows menu adoption to the relay's own messages. When empty,
	// any bot-authored message with matching content is adopted.
	BotUserID string
}

func (m *Manager) isOwnMessage(msg Message) bool {
	if m.BotUserID != "" {
		return msg.AuthorID == m.BotUserID
	}
	return msg.AuthorBot
}

// MenuText renders the canonical menu message for the given legend.
func MenuText(bindings state.RoleBindings) string {
	var b strings.Builder
	b.WriteString(MenuHeader)
	for _, rb := range bindings {
		b.WriteString("\n")
		b.WriteString(rb.Emoji)
		b.WriteString(" — ")
		b.WriteString(rb.Role)
	}
	return b.String()
}

// CheckConflict reports whether newRole can be granted to a member holding held.
// It checks both directions: roles newRole excludes, and held roles whose exclusion
// list names newRole. Returns the conflicting role name when blocked.
func (m *Manager) CheckConflict(held []string, newRole string) (allowed bool, conflictWith string) {
	heldSet := make(map[string]struct{}, len(held))
	for _, r := range held {
		heldSet[r] = struct{}{}
	}
	for _, excluded := range m.Conflicts[newRole] {
		if _, ok := heldSet[excluded]; ok {
			return false, excluded
		}
	}
	for heldRole := range heldSet {
		for _, excluded := range m.Conflicts[heldRole] {
			if excluded == newRole {
				return false, heldRole
			}
		}
	}
	return true, ""
}

// EnsureMessage makes the standing menu message exist and match the current legend:
// fetch by persisted id and edit when the content drifted; adopt a matching
// bot-authored message from recent history when the id is stale; create a new
// message as the last resort.
func (m *Manager) EnsureMessage() error {
	bindings, err := m.Store.RoleBindings()
	if err != nil {
		return err
	}
	desired := MenuText(bindings)

	persisted, err := m.Store.RoleMessage()
	if err != nil {
		return err
	}
	if persisted.MessageID != nil {
		msg, err := m.Session.Message(m.ChannelID, *persisted.MessageID)
		if err == nil {
			if strings.TrimSpace(msg.Content) == strings.TrimSpace(desired) {
				return nil
			}
			if err := m.Session.EditMessage(m.ChannelID, msg.ID, desired); err != nil {
				return fmt.Errorf("edit role menu: %w", err)
			}
			if err := m.Session.ClearReactions(m.ChannelID, msg.ID); err != nil {
				slog.Warn("failed to clear menu reactions", slog.Any("err", err))
			}
			m.seedReactions(msg.ID, bindings)
			return nil
		}
		slog.Debug("persisted role menu not fetchable", slog.String("message_id", *persisted.MessageID), slog.Any("err", err))
	}

	// Adoption pass: a matching bot message in history means the state file was
	// lost, not the menu. Re-recording its id avoids a duplicate menu.
	history, err := m.Session.History(m.ChannelID, 300)
	if err == nil {
		for _, msg := range history {
			if m.isOwnMessage(msg) && strings.TrimSpace(msg.Content) == strings.TrimSpace(desired) {
				id := msg.ID
				return m.Store.SaveRoleMessage(state.RoleMessage{MessageID: &id})
			}
		}
	}

	id, err := m.Session.SendMessage(m.ChannelID, desired)
	if err != nil {
		return fmt.Errorf("create role menu: %w", err)
	}
	m.seedReactions(id, bindings)
	return m.Store.SaveRoleMessage(state.RoleMessage{MessageID: &id})
}

func (m *Manager) seedReactions(messageID string, bindings state.RoleBindings) {
	for _, rb := range bindings {
		if err := m.Session.AddReaction(m.ChannelID, messageID, rb.Emoji); err != nil {
			slog.Warn("failed to seed menu reaction", slog.String("emoji", rb.Emoji), slog.Any("err", err))
		}
	}
}

// isMenuReaction filters events down to the standing menu message.
func (m *Manager) isMenuReaction(ev Reaction) bool {
	persisted, err := m.Store.RoleMessage()
	if err != nil || persisted.MessageID == nil {
		return false
	}
	return ev.MessageID == *persisted.MessageID
}

// HandleReactionAdd grants the mapped role when the conflict gate allows it. On a
// block the triggering reaction is retracted and the member is notified privately
// (best effort: closed DMs are swallowed).
func (m *Manager) HandleReactionAdd(ev Reaction) {
	if !m.isMenuReaction(ev) {
		return
	}
	bindings, err := m.Store.RoleBindings()
	if err != nil {
		slog.Error("loading role bindings", slog.Any("err", err))
		return
	}
	roleName, mapped := bindings.Role(ev.Emoji)
	if !mapped {
		return
	}
	member, err := m.Session.Member(m.GuildID, ev.UserID)
	if err != nil {
		slog.Warn("could not resolve reacting member", slog.String("user_id", ev.UserID), slog.Any("err", err))
		return
	}
	if member.Bot {
		return
	}

	allowed, conflictWith := m.CheckConflict(member.RoleNames, roleName)
	if !allowed {
		telemetry.CountRoleDenial()
		if err := m.Session.RemoveUserReaction(ev.ChannelID, ev.MessageID, ev.Emoji, ev.UserID); err != nil {
			slog.Error("failed to retract blocked reaction", slog.Any("err", err))
		}
		slog.Info("role grant denied by conflict rule",
			slog.String("user", member.DisplayName),
			slog.String("role", roleName),
			slog.String("conflicts_with", conflictWith))
		reason := fmt.Sprintf("You can't take the **%s** role while you hold **%s**.", roleName, conflictWith)
		if err := m.Session.DirectMessage(ev.UserID, reason); err != nil {
			slog.Debug("could not DM member about denied role", slog.Any("err", err))
		}
		return
	}

	if err := m.Session.GrantRole(m.GuildID, ev.UserID, roleName); err != nil {
		slog.Error("failed to grant role", slog.String("role", roleName), slog.Any("err", err))
		return
	}
	telemetry.CountRoleGrant()
	slog.Info("role granted", slog.String("role", roleName), slog.String("user", member.DisplayName))
}

// HandleReactionRemove revokes the mapped role. No conflict re-check: removal
// cannot create a conflict.
func (m *Manager) HandleReactionRemove(ev Reaction) {
	if !m.isMenuReaction(ev) {
		return
	}
	bindings, err := m.Store.RoleBindings()
	if err != nil {
		slog.Error("loading role bindings", slog.Any("err", err))
		return
	}
	roleName, mapped := bindings.Role(ev.Emoji)
	if !mapped {
		return
	}
	if err := m.Session.RevokeRole(m.GuildID, ev.UserID, roleName); err != nil {
		slog.Error("failed to revoke role", slog.String("role", roleName), slog.Any("err", err))
		return
	}
	telemetry.CountRoleRevocation()
	slog.Info("role revoked", slog.String("role", roleName), slog.String("user_id", ev.UserID))
}

// SweepConflicts checks every non-bot member for conflicting role pairs and reports
// each violation. It only reports; no roles are removed.
func (m *Manager) SweepConflicts() (int, []string, error) {
	members, err := m.Session.Members(m.GuildID)
	if err != nil {
		return 0, nil, fmt.Errorf("listing members: %w", err)
	}
	count := 0
	var reports []string
	for _, member := range members {
		if member.Bot {
			continue
		}
		heldSet := make(map[string]struct{}, len(member.RoleNames))
		for _, r := range member.RoleNames {
			heldSet[r] = struct{}{}
		}
		for _, role := range member.RoleNames {
			for _, excluded := range m.Conflicts[role] {
				if _, ok := heldSet[excluded]; ok {
					count++
					reports = append(reports, fmt.Sprintf("%s holds conflicting roles: %s and %s", member.DisplayName, role, excluded))
				}
			}
		}
	}
	return count, reports, nil
}
