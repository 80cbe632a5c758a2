package metrics

import (
	"context"
	"fmt"

	"github.com/Miasufee/connect-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Outcome labels
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeCodeSent = "code_sent"
)

// AuthMetrics counts auth outcomes. A nil *AuthMetrics records nothing.
type AuthMetrics struct {
	logins        *telemetry.Counter
	rotations     *telemetry.Counter
	revocations   *telemetry.Counter
	resetRequests *telemetry.Counter
	purged        *telemetry.Counter
}

// New registers the auth counters on the global meter provider
func New() (*AuthMetrics, error) {
	m := &AuthMetrics{}
	defs := []struct {
		dst  **telemetry.Counter
		opts telemetry.MetricOpts
	}{
		{&m.logins, telemetry.MetricOpts{Name: "auth_logins_total", Description: "Login attempts by method and outcome"}},
		{&m.rotations, telemetry.MetricOpts{Name: "auth_token_rotations_total", Description: "Refresh token rotations by outcome"}},
		{&m.revocations, telemetry.MetricOpts{Name: "auth_token_revocations_total", Description: "Refresh tokens revoked by scope"}},
		{&m.resetRequests, telemetry.MetricOpts{Name: "auth_password_reset_requests_total", Description: "Password reset requests by outcome"}},
		{&m.purged, telemetry.MetricOpts{Name: "auth_purged_rows_total", Description: "Rows removed by the purge job by kind"}},
	}

	for _, d := range defs {
		c, err := telemetry.NewCounter(d.opts)
		if err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", d.opts.Name, err)
		}
		*d.dst = c
	}
	return m, nil
}

// Login records a login attempt
func (m *AuthMetrics) Login(ctx context.Context, method, outcome string) {
	if m == nil {
		return
	}
	m.logins.Inc(ctx, attribute.String("method", method), attribute.String("outcome", outcome))
}

// Rotation records a refresh token rotation
func (m *AuthMetrics) Rotation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.rotations.Inc(ctx, attribute.String("outcome", outcome))
}

// Revoked records n refresh tokens revoked under scope (current, others, all)
func (m *AuthMetrics) Revoked(ctx context.Context, scope string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.revocations.Add(ctx, n, attribute.String("scope", scope))
}

// ResetRequest records a password reset request
func (m *AuthMetrics) ResetRequest(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.resetRequests.Inc(ctx, attribute.String("outcome", outcome))
}

// Purged records rows removed by the purge job
func (m *AuthMetrics) Purged(ctx context.Context, kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.Add(ctx, n, attribute.String("kind", kind))
}
