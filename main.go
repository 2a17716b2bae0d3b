// Command genesis-relay is the main entrypoint for the notification relay.
// It:
//   - Loads configuration and initializes structured logging.
//   - Opens the JSON state store and connects to the Discord gateway.
//   - Starts background pollers: forum thread, orders thread, Twitch live
//     streams, and YouTube uploads.
//   - Reconciles the reaction-role menu and registers admin slash commands.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/genesis-relay/config"
	"github.com/onnwee/genesis-relay/discordbridge"
	"github.com/onnwee/genesis-relay/forum"
	"github.com/onnwee/genesis-relay/notify"
	"github.com/onnwee/genesis-relay/roles"
	"github.com/onnwee/genesis-relay/server"
	"github.com/onnwee/genesis-relay/state"
	"github.com/onnwee/genesis-relay/telemetry"
	"github.com/onnwee/genesis-relay/twitchapi"
	"github.com/onnwee/genesis-relay/youtubeapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateDiscordReady(); err != nil {
		slog.Error("discord configuration incomplete", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("genesis-relay", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// State store
	store, err := state.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open state store", slog.Any("err", err), slog.String("dir", cfg.DataDir))
		os.Exit(1)
	}
	slog.Info("state store opened", slog.String("dir", store.Dir()))

	// Twitch Helix client; best-effort token warmup so credential problems
	// surface in logs before the first poll cycle.
	tokenSource := &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret}
	helix := &twitchapi.HelixClient{AppTokenSource: tokenSource, ClientID: cfg.TwitchClientID}
	if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
		warmCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		if tok, err := tokenSource.Get(warmCtx); err != nil {
			slog.Warn("twitch app token fetch failed", slog.Any("err", err))
		} else if len(tok) > 6 {
			slog.Info("twitch app token acquired", slog.String("tail", "***"+tok[len(tok)-6:]))
		}
		cancel()
	} else {
		slog.Warn("twitch credentials missing, twitch polling will fail until configured")
	}

	// YouTube client (optional; disabled without YOUTUBE_API_KEY)
	videos := youtubeapi.New(cfg.YouTubeAPIKey)
	if !videos.Enabled() {
		slog.Info("youtube polling disabled (no YOUTUBE_API_KEY)")
	}

	httpClient := &http.Client{Timeout: 15 * time.Second}
	forumScraper := forum.New(httpClient, cfg.ForumBase, cfg.ForumURL)
	ordersScraper := forum.New(httpClient, cfg.ForumBase, cfg.OrdersURL)

	// Discord session and service wiring
	bridge, messenger, roleSession, err := discordbridge.New(cfg)
	if err != nil {
		slog.Error("failed to create discord session", slog.Any("err", err))
		os.Exit(1)
	}
	svc := &notify.Service{
		Store:                  store,
		Messenger:              messenger,
		Forum:                  forumScraper,
		Orders:                 ordersScraper,
		Streams:                helix,
		Videos:                 videos,
		ForumChannelID:         cfg.ForumChannelID,
		OrdersChannelID:        cfg.OrdersChannelID,
		NotificationsChannelID: cfg.NotificationsChannelID,
		HistoryLookback:        cfg.HistoryLookback,
	}
	roleManager := &roles.Manager{
		Store:     store,
		Session:   roleSession,
		GuildID:   cfg.GuildID,
		ChannelID: cfg.RolesChannelID,
		Conflicts: cfg.RoleConflicts,
	}
	bridge.Notify = svc
	bridge.Roles = roleManager

	if err := bridge.Start(); err != nil {
		slog.Error("failed to start discord bridge", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := bridge.Close(); err != nil {
			slog.Error("failed to close discord session", slog.Any("err", err))
		}
	}()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting pollers",
		slog.Duration("forum_interval", cfg.ForumInterval),
		slog.Duration("orders_interval", cfg.OrdersInterval),
		slog.Duration("twitch_interval", cfg.TwitchInterval),
		slog.Duration("youtube_interval", cfg.YouTubeInterval))

	go svc.StartForumPoller(ctx, cfg.ForumInterval)
	if cfg.OrdersChannelID != "" {
		go svc.StartOrdersPoller(ctx, cfg.OrdersInterval)
	} else {
		slog.Info("orders watcher disabled (no ORDERS_CHANNEL_ID)")
	}
	go svc.StartTwitchPoller(ctx, cfg.TwitchInterval)
	go svc.StartYouTubePoller(ctx, cfg.YouTubeInterval)

	// HTTP server (health/status/metrics)
	deps := server.Deps{
		Store: store,
		Ready: func() bool { return bridge.Session.DataReady },
	}
	go func() {
		if err := server.Start(ctx, deps, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
