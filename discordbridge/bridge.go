// Package discordbridge connects the relay's core to the Discord gateway: it owns the
// session, implements the destination-channel boundaries consumed by notify and roles,
// registers the admin slash commands, and forwards raw reaction events to the role
// resolver.
package discordbridge

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/genesis-relay/config"
	"github.com/onnwee/genesis-relay/notify"
	"github.com/onnwee/genesis-relay/roles"
)

// Bridge wires the gateway session to the relay services.
type Bridge struct {
	Session *discordgo.Session
	Cfg     *config.Config
	Notify  *notify.Service
	Roles   *roles.Manager
}

// New opens a configured (but not yet connected) session and returns the boundary
// implementations the services need.
func New(cfg *config.Config) (*Bridge, notify.Messenger, roles.Session, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent

	b := &Bridge{Session: session, Cfg: cfg}
	return b, &messenger{s: session}, &roleSession{s: session}, nil
}

// Start registers handlers, connects the gateway, and performs the startup pass:
// permission diagnostics, role-menu reconciliation, and command registration.
func (b *Bridge) Start() error {
	b.Session.AddHandler(func(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
		b.Roles.HandleReactionAdd(toReaction(r.MessageReaction))
	})
	b.Session.AddHandler(func(s *discordgo.Session, r *discordgo.MessageReactionRemove) {
		b.Roles.HandleReactionRemove(toReaction(r.MessageReaction))
	})
	b.Session.AddHandler(b.handleInteraction)

	if err := b.Session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	slog.Info("discord gateway connected",
		slog.String("bot_user", b.Session.State.User.Username),
		slog.String("bot_id", b.Session.State.User.ID))

	b.Roles.BotUserID = b.Session.State.User.ID

	b.logChannelPerms(b.Cfg.NotificationsChannelID, "notifications")
	b.logChannelPerms(b.Cfg.ForumChannelID, "forum")
	if b.Cfg.OrdersChannelID != "" {
		b.logChannelPerms(b.Cfg.OrdersChannelID, "orders")
	}

	if err := b.Roles.EnsureMessage(); err != nil {
		slog.Error("failed to reconcile role menu", slog.Any("err", err))
	} else {
		slog.Info("role menu reconciled")
	}

	if err := b.registerCommands(); err != nil {
		slog.Error("failed to register slash commands", slog.Any("err", err))
	}
	return nil
}

// Close disconnects the gateway.
func (b *Bridge) Close() error {
	return b.Session.Close()
}

// logChannelPerms reports the bot's view/send capability in a channel at startup, so
// a misconfigured channel shows up in logs before the first poll cycle fails quietly.
func (b *Bridge) logChannelPerms(channelID, label string) {
	perms, err := (&messenger{s: b.Session}).Permissions(channelID)
	if err != nil {
		slog.Warn("channel permission check failed", slog.String("channel", label), slog.Any("err", err))
		return
	}
	if missing := perms.Missing(); len(missing) > 0 {
		slog.Warn("insufficient channel permissions",
			slog.String("channel", label),
			slog.String("channel_id", channelID),
			slog.String("missing", strings.Join(missing, ", ")))
		return
	}
	slog.Info("channel permissions ok", slog.String("channel", label))
}

func toReaction(r *discordgo.MessageReaction) roles.Reaction {
	return roles.Reaction{
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     r.Emoji.APIName(),
	}
}
