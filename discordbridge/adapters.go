package discordbridge

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/genesis-relay/notify"
	"github.com/onnwee/genesis-relay/roles"
)

// messenger implements notify.Messenger over a discordgo session.
type messenger struct {
	s *discordgo.Session
}

func (m *messenger) History(channelID string, limit int) ([]notify.HistoryMessage, error) {
	msgs, err := channelHistory(m.s, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("channel history: %w", err)
	}
	out := make([]notify.HistoryMessage, 0, len(msgs))
	for _, msg := range msgs {
		fromBot := msg.Author != nil && msg.Author.Bot
		out = append(out, notify.HistoryMessage{Content: msg.Content, FromBot: fromBot})
	}
	return out, nil
}

// channelHistory fetches up to limit recent messages. The REST API caps one page
// at 100 messages, so larger lookbacks walk backwards page by page.
func channelHistory(s *discordgo.Session, channelID string, limit int) ([]*discordgo.Message, error) {
	var out []*discordgo.Message
	before := ""
	for len(out) < limit {
		page := limit - len(out)
		if page > 100 {
			page = 100
		}
		msgs, err := s.ChannelMessages(channelID, page, before, "", "")
		if err != nil {
			return nil, err
		}
		if len(msgs) == 0 {
			break
		}
		out = append(out, msgs...)
		before = msgs[len(msgs)-1].ID
	}
	return out, nil
}

func (m *messenger) Send(channelID, content string) error {
	_, err := m.s.ChannelMessageSend(channelID, content)
	return err
}

func (m *messenger) Permissions(channelID string) (notify.Perms, error) {
	if m.s.State == nil || m.s.State.User == nil {
		return notify.Perms{}, fmt.Errorf("session not ready")
	}
	bits, err := m.s.UserChannelPermissions(m.s.State.User.ID, channelID)
	if err != nil {
		return notify.Perms{}, err
	}
	return notify.Perms{
		View:  bits&discordgo.PermissionViewChannel != 0,
		Send:  bits&discordgo.PermissionSendMessages != 0,
		Embed: bits&discordgo.PermissionEmbedLinks != 0,
	}, nil
}

// roleSession implements roles.Session over a discordgo session. Conflict rules are
// written against role names, so grants/revocations resolve names through the
// guild's role list on each call.
type roleSession struct {
	s *discordgo.Session
}

func (r *roleSession) Message(channelID, messageID string) (roles.Message, error) {
	msg, err := r.s.ChannelMessage(channelID, messageID)
	if err != nil {
		return roles.Message{}, err
	}
	return toRolesMessage(msg), nil
}

func (r *roleSession) History(channelID string, limit int) ([]roles.Message, error) {
	msgs, err := channelHistory(r.s, channelID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]roles.Message, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, toRolesMessage(msg))
	}
	return out, nil
}

func (r *roleSession) SendMessage(channelID, content string) (string, error) {
	msg, err := r.s.ChannelMessageSend(channelID, content)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (r *roleSession) EditMessage(channelID, messageID, content string) error {
	_, err := r.s.ChannelMessageEdit(channelID, messageID, content)
	return err
}

func (r *roleSession) ClearReactions(channelID, messageID string) error {
	return r.s.MessageReactionsRemoveAll(channelID, messageID)
}

func (r *roleSession) AddReaction(channelID, messageID, emoji string) error {
	return r.s.MessageReactionAdd(channelID, messageID, emoji)
}

func (r *roleSession) RemoveUserReaction(channelID, messageID, emoji, userID string) error {
	return r.s.MessageReactionRemove(channelID, messageID, emoji, userID)
}

func (r *roleSession) Member(guildID, userID string) (roles.Member, error) {
	member, err := r.s.GuildMember(guildID, userID)
	if err != nil {
		return roles.Member{}, err
	}
	names, err := r.roleNames(guildID, member.Roles)
	if err != nil {
		return roles.Member{}, err
	}
	return toRolesMember(member, names), nil
}

func (r *roleSession) Members(guildID string) ([]roles.Member, error) {
	idToName, err := r.roleNameTable(guildID)
	if err != nil {
		return nil, err
	}
	var out []roles.Member
	after := ""
	for {
		page, err := r.s.GuildMembers(guildID, after, 1000)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, member := range page {
			names := make([]string, 0, len(member.Roles))
			for _, id := range member.Roles {
				if name, ok := idToName[id]; ok {
					names = append(names, name)
				}
			}
			out = append(out, toRolesMember(member, names))
		}
		after = page[len(page)-1].User.ID
		if len(page) < 1000 {
			break
		}
	}
	return out, nil
}

func (r *roleSession) GrantRole(guildID, userID, roleName string) error {
	id, err := r.roleIDByName(guildID, roleName)
	if err != nil {
		return err
	}
	return r.s.GuildMemberRoleAdd(guildID, userID, id)
}

func (r *roleSession) RevokeRole(guildID, userID, roleName string) error {
	id, err := r.roleIDByName(guildID, roleName)
	if err != nil {
		return err
	}
	return r.s.GuildMemberRoleRemove(guildID, userID, id)
}

func (r *roleSession) DirectMessage(userID, content string) error {
	ch, err := r.s.UserChannelCreate(userID)
	if err != nil {
		return err
	}
	_, err = r.s.ChannelMessageSend(ch.ID, content)
	return err
}

func (r *roleSession) roleNameTable(guildID string) (map[string]string, error) {
	guildRoles, err := r.s.GuildRoles(guildID)
	if err != nil {
		return nil, fmt.Errorf("guild roles: %w", err)
	}
	table := make(map[string]string, len(guildRoles))
	for _, role := range guildRoles {
		table[role.ID] = role.Name
	}
	return table, nil
}

func (r *roleSession) roleNames(guildID string, ids []string) ([]string, error) {
	table, err := r.roleNameTable(guildID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := table[id]; ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func (r *roleSession) roleIDByName(guildID, name string) (string, error) {
	guildRoles, err := r.s.GuildRoles(guildID)
	if err != nil {
		return "", fmt.Errorf("guild roles: %w", err)
	}
	for _, role := range guildRoles {
		if role.Name == name {
			return role.ID, nil
		}
	}
	return "", fmt.Errorf("role %q not found in guild", name)
}

func toRolesMessage(msg *discordgo.Message) roles.Message {
	out := roles.Message{ID: msg.ID, Content: msg.Content}
	if msg.Author != nil {
		out.AuthorID = msg.Author.ID
		out.AuthorBot = msg.Author.Bot
	}
	return out
}

func toRolesMember(member *discordgo.Member, roleNames []string) roles.Member {
	out := roles.Member{RoleNames: roleNames}
	if member.User != nil {
		out.ID = member.User.ID
		out.Bot = member.User.Bot
		out.DisplayName = member.User.Username
	}
	if member.Nick != "" {
		out.DisplayName = member.Nick
	}
	return out
}
