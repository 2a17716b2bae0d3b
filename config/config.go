// Package config loads environment variables and provides a typed Config used across the relay.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required Discord credentials, use ValidateDiscordReady.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Discord
	DiscordToken           string
	GuildID                string
	RolesChannelID         string
	ForumChannelID         string
	OrdersChannelID        string
	NotificationsChannelID string

	// Twitch
	TwitchClientID     string
	TwitchClientSecret string

	// YouTube
	YouTubeAPIKey string

	// Forum
	ForumBase string
	ForumURL  string
	OrdersURL string

	// Polling
	ForumInterval   time.Duration
	OrdersInterval  time.Duration
	TwitchInterval  time.Duration
	YouTubeInterval time.Duration

	// Storage
	DataDir string

	// Detection
	HistoryLookback int

	// Roles
	RoleConflicts map[string][]string

	// HTTP
	HTTPAddr string
}

// Load reads environment variables and applies defaults. It doesn't fail if Twitch or YouTube
// creds are missing; the corresponding watchers simply stay dormant. Use ValidateDiscordReady()
// before connecting the gateway.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")
	cfg.GuildID = os.Getenv("GUILD_ID")
	cfg.RolesChannelID = os.Getenv("ROLES_CHANNEL_ID")
	cfg.ForumChannelID = os.Getenv("FORUM_CHANNEL_ID")
	cfg.OrdersChannelID = os.Getenv("ORDERS_CHANNEL_ID")
	cfg.NotificationsChannelID = os.Getenv("NOTIFICATIONS_CHANNEL_ID")

	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	if cfg.TwitchClientSecret == "" {
		// legacy variable name
		cfg.TwitchClientSecret = os.Getenv("TWITCH_TOKEN")
	}

	cfg.YouTubeAPIKey = os.Getenv("YOUTUBE_API_KEY")

	cfg.ForumBase = os.Getenv("FORUM_BASE")
	if cfg.ForumBase == "" {
		cfg.ForumBase = "https://forum.gta5rp.com"
	}
	cfg.ForumURL = os.Getenv("FORUM_URL")
	if cfg.ForumURL == "" {
		cfg.ForumURL = cfg.ForumBase + "/threads/sa-gov-postanovlenija-ofisa-generalnogo-prokurora-shtata-san-andreas.3311595"
	}
	cfg.OrdersURL = os.Getenv("ORDERS_URL")
	if cfg.OrdersURL == "" {
		cfg.OrdersURL = cfg.ForumBase + "/threads/sa-gov-avtorizovannye-ordera-ofisa-generalnogo-prokurora.3311604"
	}

	var err error
	if cfg.ForumInterval, err = durationEnv("FORUM_POLL_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.OrdersInterval, err = durationEnv("ORDERS_POLL_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.TwitchInterval, err = durationEnv("TWITCH_POLL_INTERVAL", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.YouTubeInterval, err = durationEnv("YOUTUBE_POLL_INTERVAL", 2*time.Minute); err != nil {
		return nil, err
	}

	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}

	cfg.HistoryLookback = 200
	if v := os.Getenv("HISTORY_LOOKBACK"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid HISTORY_LOOKBACK: %q", v)
		}
		cfg.HistoryLookback = n
	}

	cfg.RoleConflicts = parseConflicts(os.Getenv("ROLE_CONFLICTS"))

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	return cfg, nil
}

// ValidateDiscordReady checks required fields for connecting the Discord gateway.
func (c *Config) ValidateDiscordReady() error {
	missing := []string{}
	if c.DiscordToken == "" {
		missing = append(missing, "DISCORD_TOKEN")
	}
	if c.GuildID == "" {
		missing = append(missing, "GUILD_ID")
	}
	if c.RolesChannelID == "" {
		missing = append(missing, "ROLES_CHANNEL_ID")
	}
	if c.ForumChannelID == "" {
		missing = append(missing, "FORUM_CHANNEL_ID")
	}
	if c.NotificationsChannelID == "" {
		missing = append(missing, "NOTIFICATIONS_CHANNEL_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing discord env: require %s", strings.Join(missing, ", "))
	}
	return nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return d, nil
}

// parseConflicts parses "GOS:Crime,Crime:GOS" into a conflict table. The add-time gate checks
// both directions regardless, so an asymmetric table still behaves symmetrically; authoring
// both directions keeps the sweep output consistent.
func parseConflicts(raw string) map[string][]string {
	if raw == "" {
		return map[string][]string{
			"GOS":   {"Crime"},
			"Crime": {"GOS"},
		}
	}
	out := map[string][]string{}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			continue
		}
		role := strings.TrimSpace(parts[0])
		other := strings.TrimSpace(parts[1])
		if role == "" || other == "" {
			continue
		}
		out[role] = append(out[role], other)
	}
	return out
}
