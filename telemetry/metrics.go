// Package telemetry provides Prometheus metrics, correlation-id aware logging helpers,
// and OpenTelemetry tracing setup.
package telemetry

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters, labelled by source kind (forum, orders, twitch, youtube)
	PollCycles        *prometheus.CounterVec
	PollFailures      *prometheus.CounterVec
	NotificationsSent *prometheus.CounterVec

	// Role reaction counters
	RoleGrants      prometheus.Counter
	RoleDenials     prometheus.Counter
	RoleRevocations prometheus.Counter

	// Gauges
	TrackedSources *prometheus.GaugeVec
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollCycles = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_poll_cycles_total", Help: "Poll cycles started per source kind"}, []string{"source"})
		PollFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_poll_failures_total", Help: "Poll cycles that ended in a logged failure per source kind"}, []string{"source"})
		NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_notifications_sent_total", Help: "Notifications delivered per source kind"}, []string{"source"})
		RoleGrants = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_role_grants_total", Help: "Roles granted via reactions"})
		RoleDenials = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_role_denials_total", Help: "Role grants denied by conflict rules"})
		RoleRevocations = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_role_revocations_total", Help: "Roles revoked via reaction removal"})
		TrackedSources = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "relay_tracked_sources", Help: "Currently tracked source keys per kind"}, []string{"kind"})
	})
}

// CountPoll increments the cycle counter for source if metrics are initialized.
func CountPoll(source string) {
	if PollCycles != nil {
		PollCycles.WithLabelValues(source).Inc()
	}
}

// CountPollFailure increments the failure counter for source.
func CountPollFailure(source string) {
	if PollFailures != nil {
		PollFailures.WithLabelValues(source).Inc()
	}
}

// CountNotification increments the sent counter for source.
func CountNotification(source string) {
	if NotificationsSent != nil {
		NotificationsSent.WithLabelValues(source).Inc()
	}
}

// CountRoleGrant increments the reaction-role grant counter.
func CountRoleGrant() {
	if RoleGrants != nil {
		RoleGrants.Inc()
	}
}

// CountRoleDenial increments the conflict-denial counter.
func CountRoleDenial() {
	if RoleDenials != nil {
		RoleDenials.Inc()
	}
}

// CountRoleRevocation increments the revocation counter.
func CountRoleRevocation() {
	if RoleRevocations != nil {
		RoleRevocations.Inc()
	}
}

// SetTracked records the current tracked-set size for a source kind.
func SetTracked(kind string, n int) {
	if TrackedSources != nil {
		TrackedSources.WithLabelValues(kind).Set(float64(n))
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}
