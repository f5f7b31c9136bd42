package goGuard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goGuard/credential"
	"github.com/MrEthical07/goGuard/internal"
	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/replay"
	"github.com/MrEthical07/goGuard/secrets"
	"github.com/MrEthical07/goGuard/session"
	"go.uber.org/zap"
)

// Engine runs the account, second-factor and session operations. It is safe
// for concurrent use once built.
type Engine struct {
	config Config

	credentials credential.Store
	secrets     secrets.Store
	sessions    session.Store

	guard   *replay.Guard
	limiter *rate.Limiter

	passwords   password.Hasher
	dummyHash   string
	backupCodes password.Hasher
	totp        *totpManager

	audit   *auditDispatcher
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns the counters, or empty maps when metrics are off.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Guard exposes the anti-replay guard for issuing form tokens.
func (e *Engine) Guard() *replay.Guard {
	return e.guard
}

// Gate returns the CSRF, nonce, timing and duplicate gate with rejections
// counted and audited. Callers may extend it with Gate().With(...).
func (e *Engine) Gate() *replay.Gate {
	return replay.DefaultGate(e.guard).OnReject(e.observeRejection)
}

// NewGate composes a gate from checks with the same rejection accounting as
// Gate. Use it for actions that only need a subset, such as CSRF on logout.
func (e *Engine) NewGate(checks ...replay.Check) *replay.Gate {
	return replay.NewGate(checks...).OnReject(e.observeRejection)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.credentials == nil || e.sessions == nil || e.guard == nil {
		return ErrEngineNotReady
	}
	return nil
}

// allow consults the limiter. A denial is counted under deniedMetric and
// audited with scope.
func (e *Engine) allow(ctx context.Context, scope, identifier string, p rate.Policy, accountID string, deniedMetric MetricID) bool {
	if e.limiter.Allow(ctx, identifier, p) {
		return true
	}
	e.metricInc(deniedMetric)
	e.emitRateLimit(ctx, scope, accountID)
	return false
}

func shortID(v string) string {
	return internal.ShortID(v, auditIDLength)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// sessionError maps session store errors onto root errors.
func sessionError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrNotFound):
		return ErrSessionNotFound
	default:
		return unavailable(err)
	}
}
