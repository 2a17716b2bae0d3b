// Package server exposes the HTTP side of the relay: health and readiness
// probes, a status snapshot of the watchers, and Prometheus metrics. Requests
// get correlation IDs injected into their contexts for consistent logging.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/onnwee/genesis-relay/state"
	"github.com/onnwee/genesis-relay/telemetry"
)

// Deps carries what the HTTP handlers need. Ready reports whether the Discord
// gateway connection is up; when nil the server always reports ready.
type Deps struct {
	Store *state.Store
	Ready func() bool
}

// NewMux returns the HTTP handler with all routes.
func NewMux(deps Deps) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", handleHealthz)
	mux.HandleFunc("/readyz", deps.handleReadyz)
	mux.HandleFunc("/status", deps.handleStatus)

	// Wrap with correlation ID injector and tracing middleware.
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.URL.Path),
		)
		defer span.End()

		slog.Debug("request start",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("correlation_id", corr),
			slog.String("component", "http"))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		mux.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", rec.statusCode))
		if rec.statusCode >= 400 {
			span.SetStatus(codes.Error, http.StatusText(rec.statusCode))
		}
	})
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (d Deps) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if d.Ready != nil && !d.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "not ready", "reason": "discord gateway closed"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// statusResponse is the JSON snapshot returned by /status.
type statusResponse struct {
	TwitchTracked  []string          `json:"twitch_tracked"`
	YouTubeTracked []string          `json:"youtube_tracked"`
	TwitchLive     map[string]string `json:"twitch_live"`
	YouTubeLatest  map[string]string `json:"youtube_latest"`
	ForumLastPost  *string           `json:"forum_last_post"`
	OrdersLastID   *string           `json:"orders_last_id"`
}

func (d Deps) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tracking, err := d.Store.Tracking()
	if err != nil {
		http.Error(w, "failed to read tracking state", http.StatusInternalServerError)
		return
	}
	notified, err := d.Store.Notified()
	if err != nil {
		http.Error(w, "failed to read notification state", http.StatusInternalServerError)
		return
	}
	resp := statusResponse{
		TwitchTracked:  tracking.Twitch,
		YouTubeTracked: tracking.YouTube,
		TwitchLive:     notified.Twitch,
		YouTubeLatest:  notified.YouTube,
		ForumLastPost:  notified.Forum.LastPostID,
		OrdersLastID:   notified.Orders.LastOrderID,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode status response", slog.Any("err", err))
	}
}

// statusRecorder wraps ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, deps Deps, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewMux(deps),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
