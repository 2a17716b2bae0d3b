package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"DISCORD_TOKEN", "GUILD_ID", "ROLES_CHANNEL_ID", "FORUM_CHANNEL_ID",
		"ORDERS_CHANNEL_ID", "NOTIFICATIONS_CHANNEL_ID",
		"TWITCH_CLIENT_ID", "TWITCH_CLIENT_SECRET", "TWITCH_TOKEN",
		"YOUTUBE_API_KEY", "FORUM_BASE", "FORUM_URL", "ORDERS_URL",
		"FORUM_POLL_INTERVAL", "ORDERS_POLL_INTERVAL", "TWITCH_POLL_INTERVAL", "YOUTUBE_POLL_INTERVAL",
		"DATA_DIR", "HISTORY_LOOKBACK", "ROLE_CONFLICTS", "HTTP_ADDR",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ForumInterval != 5*time.Minute || cfg.OrdersInterval != 5*time.Minute {
		t.Errorf("thread intervals = %v/%v, want 5m/5m", cfg.ForumInterval, cfg.OrdersInterval)
	}
	if cfg.TwitchInterval != 2*time.Minute || cfg.YouTubeInterval != 2*time.Minute {
		t.Errorf("stream intervals = %v/%v, want 2m/2m", cfg.TwitchInterval, cfg.YouTubeInterval)
	}
	if cfg.DataDir != "data" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.HistoryLookback != 200 {
		t.Errorf("HistoryLookback = %d", cfg.HistoryLookback)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if !strings.HasPrefix(cfg.ForumURL, cfg.ForumBase) {
		t.Errorf("ForumURL %q not under ForumBase %q", cfg.ForumURL, cfg.ForumBase)
	}
	if !strings.HasPrefix(cfg.OrdersURL, cfg.ForumBase) {
		t.Errorf("OrdersURL %q not under ForumBase %q", cfg.OrdersURL, cfg.ForumBase)
	}
	want := map[string][]string{"GOS": {"Crime"}, "Crime": {"GOS"}}
	if !reflect.DeepEqual(cfg.RoleConflicts, want) {
		t.Errorf("RoleConflicts = %v, want %v", cfg.RoleConflicts, want)
	}
}

func TestLoadIntervalOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("FORUM_POLL_INTERVAL", "30s")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ForumInterval != 30*time.Second {
		t.Errorf("ForumInterval = %v", cfg.ForumInterval)
	}
}

func TestLoadRejectsBadInterval(t *testing.T) {
	clearEnv(t)
	for _, bad := range []string{"nonsense", "-1m", "0s"} {
		t.Setenv("TWITCH_POLL_INTERVAL", bad)
		if _, err := Load(); err == nil {
			t.Errorf("Load accepted TWITCH_POLL_INTERVAL=%q", bad)
		}
	}
}

func TestLoadRejectsBadLookback(t *testing.T) {
	clearEnv(t)
	for _, bad := range []string{"x", "0", "-5"} {
		t.Setenv("HISTORY_LOOKBACK", bad)
		if _, err := Load(); err == nil {
			t.Errorf("Load accepted HISTORY_LOOKBACK=%q", bad)
		}
	}
}

func TestLegacyTwitchTokenFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("TWITCH_TOKEN", "legacy-secret")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TwitchClientSecret != "legacy-secret" {
		t.Errorf("TwitchClientSecret = %q", cfg.TwitchClientSecret)
	}

	// The new name wins when both are set.
	t.Setenv("TWITCH_CLIENT_SECRET", "new-secret")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TwitchClientSecret != "new-secret" {
		t.Errorf("TwitchClientSecret = %q, want new-secret", cfg.TwitchClientSecret)
	}
}

func TestParseConflicts(t *testing.T) {
	got := parseConflicts("GOS:Crime, Crime:GOS ,Press:GOS,broken,:empty,also:")
	want := map[string][]string{
		"GOS":   {"Crime"},
		"Crime": {"GOS"},
		"Press": {"GOS"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseConflicts = %v, want %v", got, want)
	}
}

func TestValidateDiscordReady(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	err = cfg.ValidateDiscordReady()
	if err == nil {
		t.Fatal("expected error with empty discord env")
	}
	for _, name := range []string{"DISCORD_TOKEN", "GUILD_ID", "ROLES_CHANNEL_ID", "FORUM_CHANNEL_ID", "NOTIFICATIONS_CHANNEL_ID"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not name %s", err, name)
		}
	}

	cfg.DiscordToken = "tok"
	cfg.GuildID = "g"
	cfg.RolesChannelID = "r"
	cfg.ForumChannelID = "f"
	cfg.NotificationsChannelID = "n"
	if err := cfg.ValidateDiscordReady(); err != nil {
		t.Errorf("ValidateDiscordReady with full config: %v", err)
	}
}
