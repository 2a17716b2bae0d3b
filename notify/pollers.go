package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/genesis-relay/telemetry"
)

// runLoop drives one source kind on a fixed interval. The next firing waits behind
// completion of the current cycle, so a kind never overlaps itself. Failures are
// logged at the task boundary and never terminate the loop.
func runLoop(ctx context.Context, source string, interval time.Duration, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	slog.Info("watcher started", slog.String("source", source), slog.Duration("interval", interval))
	for {
		if ctx.Err() != nil {
			return
		}
		corr := uuid.NewString()
		cctx := telemetry.WithCorrelation(ctx, corr)
		telemetry.CountPoll(source)
		if err := fn(cctx); err != nil {
			telemetry.CountPollFailure(source)
			slog.Warn("poll cycle failed",
				slog.String("source", source),
				slog.String("correlation_id", corr),
				slog.Any("err", err))
		}
		select {
		case <-ctx.Done():
			slog.Info("watcher stopped", slog.String("source", source))
			return
		case <-ticker.C:
		}
	}
}

// StartForumPoller watches the forum thread until ctx is cancelled.
func (s *Service) StartForumPoller(ctx context.Context, interval time.Duration) {
	runLoop(ctx, "forum", interval, s.RunForumOnce)
}

// StartOrdersPoller watches the orders thread until ctx is cancelled.
func (s *Service) StartOrdersPoller(ctx context.Context, interval time.Duration) {
	runLoop(ctx, "orders", interval, s.RunOrdersOnce)
}

// StartTwitchPoller watches tracked Twitch logins until ctx is cancelled.
func (s *Service) StartTwitchPoller(ctx context.Context, interval time.Duration) {
	runLoop(ctx, "twitch", interval, s.RunTwitchOnce)
}

// StartYouTubePoller watches tracked YouTube channels until ctx is cancelled.
func (s *Service) StartYouTubePoller(ctx context.Context, interval time.Duration) {
	if !s.Videos.Enabled() {
		slog.Info("youtube watcher disabled: no api key")
		return
	}
	runLoop(ctx, "youtube", interval, s.RunYouTubeOnce)
}
