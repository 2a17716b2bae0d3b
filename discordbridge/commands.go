package discordbridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/genesis-relay/forum"
	"github.com/onnwee/genesis-relay/notify"
)

// commandTimeout bounds the external calls a slash command may trigger.
const commandTimeout = 15 * time.Second

func commandDefs() []*discordgo.ApplicationCommand {
	loginOpt := []*discordgo.ApplicationCommandOption{{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "login",
		Description: "Twitch login",
		Required:    true,
	}}
	channelOpt := []*discordgo.ApplicationCommandOption{{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "channel",
		Description: "@handle, channel URL, or UC... channel id",
		Required:    true,
	}}
	return []*discordgo.ApplicationCommand{
		{Name: "sync", Description: "Re-register slash commands"},
		{Name: "force_forum_check", Description: "Fetch and show the latest forum post"},
		{Name: "forum_diagnose", Description: "Report the forum watcher's state"},
		{Name: "forum_reset", Description: "Re-arm forum announcement (clear last post id)"},
		{Name: "force_orders_check", Description: "Fetch and show the latest order"},
		{Name: "orders_diagnose", Description: "Report the orders watcher's state"},
		{Name: "orders_reset", Description: "Re-arm orders announcement (clear last order id)"},
		{Name: "twitch_add", Description: "Track a Twitch channel", Options: loginOpt},
		{Name: "twitch_remove", Description: "Untrack a Twitch channel", Options: loginOpt},
		{Name: "twitch_list", Description: "List tracked Twitch channels"},
		{Name: "twitch_check", Description: "Check a Twitch channel now", Options: loginOpt},
		{Name: "twitch_reset", Description: "Clear a Twitch channel's announced broadcast", Options: loginOpt},
		{Name: "youtube_add", Description: "Track a YouTube channel", Options: channelOpt},
		{Name: "youtube_remove", Description: "Untrack a YouTube channel", Options: channelOpt},
		{Name: "youtube_list", Description: "List tracked YouTube channels"},
		{Name: "youtube_check", Description: "Check a YouTube channel now", Options: channelOpt},
		{Name: "youtube_reset", Description: "Clear a YouTube channel's announced video", Options: channelOpt},
		{Name: "roles_sweep", Description: "Report members holding conflicting roles"},
	}
}

func (b *Bridge) registerCommands() error {
	appID := b.Session.State.User.ID
	for _, cmd := range commandDefs() {
		if _, err := b.Session.ApplicationCommandCreate(appID, b.Cfg.GuildID, cmd); err != nil {
			return fmt.Errorf("register /%s: %w", cmd.Name, err)
		}
	}
	slog.Info("slash commands registered", slog.Int("count", len(commandDefs())))
	return nil
}

// authorize gates command handlers to admins and the guild owner. This is an explicit
// check at the top of dispatch, not a per-command annotation.
func (b *Bridge) authorize(i *discordgo.InteractionCreate) bool {
	if i.Member == nil || i.Member.User == nil {
		return false
	}
	if i.Member.Permissions&discordgo.PermissionAdministrator != 0 {
		return true
	}
	guild, err := b.Session.State.Guild(b.Cfg.GuildID)
	if err != nil || guild == nil {
		guild, err = b.Session.Guild(b.Cfg.GuildID)
		if err != nil {
			return false
		}
	}
	return i.Member.User.ID == guild.OwnerID
}

func (b *Bridge) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()

	if !b.authorize(i) {
		respond(s, i, "Access denied. Administrator or server-owner rights required.")
		return
	}

	// Defer: several commands reach external services and can exceed the 3 s
	// interaction deadline.
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}); err != nil {
		slog.Warn("failed to defer interaction", slog.String("command", data.Name), slog.Any("err", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	content := b.dispatch(ctx, data)

	if _, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: clampResponse(content),
		Flags:   discordgo.MessageFlagsEphemeral,
	}); err != nil {
		slog.Warn("failed to send command response", slog.String("command", data.Name), slog.Any("err", err))
	}
}

func (b *Bridge) dispatch(ctx context.Context, data discordgo.ApplicationCommandInteractionData) string {
	arg := ""
	if len(data.Options) > 0 {
		arg = data.Options[0].StringValue()
	}

	switch data.Name {
	case "sync":
		if err := b.registerCommands(); err != nil {
			return mark(notify.Result{Message: fmt.Sprintf("command sync failed: %v", err)})
		}
		return mark(notify.Result{OK: true, Message: "slash commands re-registered"})
	case "force_forum_check":
		return mark(b.Notify.CheckForum(ctx))
	case "forum_diagnose":
		return mark(b.Notify.DiagnoseForum(ctx))
	case "forum_reset":
		return mark(b.Notify.ResetForum())
	case "force_orders_check":
		return mark(b.Notify.CheckOrders(ctx))
	case "orders_diagnose":
		return mark(b.Notify.DiagnoseOrders(ctx))
	case "orders_reset":
		return mark(b.Notify.ResetOrders())
	case "twitch_add":
		return mark(b.Notify.AddTwitch(arg))
	case "twitch_remove":
		return mark(b.Notify.RemoveTwitch(arg))
	case "twitch_list":
		return listResponse("Tracked Twitch channels", b.Notify.ListTwitch)
	case "twitch_check":
		return mark(b.Notify.CheckTwitch(ctx, arg))
	case "twitch_reset":
		return mark(b.Notify.ResetTwitch(arg))
	case "youtube_add":
		return mark(b.Notify.AddYouTube(ctx, arg))
	case "youtube_remove":
		return mark(b.Notify.RemoveYouTube(ctx, arg))
	case "youtube_list":
		return listResponse("Tracked YouTube channels", b.Notify.ListYouTube)
	case "youtube_check":
		return mark(b.Notify.CheckYouTube(ctx, arg))
	case "youtube_reset":
		return mark(b.Notify.ResetYouTube(arg))
	case "roles_sweep":
		return b.sweepResponse()
	}
	return mark(notify.Result{Message: "unknown command: " + data.Name})
}

func (b *Bridge) sweepResponse() string {
	count, reports, err := b.Roles.SweepConflicts()
	if err != nil {
		return mark(notify.Result{Message: fmt.Sprintf("sweep failed: %v", err)})
	}
	if count == 0 {
		return mark(notify.Result{OK: true, Message: "no conflicting role pairs found"})
	}
	return mark(notify.Result{OK: true, Message: fmt.Sprintf("%d violation(s):\n%s", count, strings.Join(reports, "\n"))})
}

func listResponse(header string, list func() ([]string, error)) string {
	items, err := list()
	if err != nil {
		return mark(notify.Result{Message: fmt.Sprintf("listing failed: %v", err)})
	}
	if len(items) == 0 {
		return mark(notify.Result{OK: true, Message: header + ": none"})
	}
	var b strings.Builder
	b.WriteString(header + ":")
	for _, it := range items {
		b.WriteString("\n• " + it)
	}
	return mark(notify.Result{OK: true, Message: b.String()})
}

// clampResponse keeps a followup under the platform's hard message length. Long
// sweep reports and channel lists would otherwise be rejected outright.
func clampResponse(content string) string {
	r := []rune(content)
	if len(r) <= forum.MessageLimit {
		return content
	}
	return string(r[:forum.MessageLimit-3]) + "..."
}

func mark(r notify.Result) string {
	if r.OK {
		return "✅ " + r.Message
	}
	return "❌ " + r.Message
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content, Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		slog.Warn("failed to respond to interaction", slog.Any("err", err))
	}
}
