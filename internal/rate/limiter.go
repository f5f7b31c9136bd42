package rate

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Policy is a budget of Max attempts per sliding Window.
type Policy struct {
	Max    int
	Window time.Duration
}

// Enabled reports whether p limits anything.
func (p Policy) Enabled() bool {
	return p.Max > 0 && p.Window > 0
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger used for fail-open warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithErrorHook registers a callback run on every ledger failure.
func WithErrorHook(fn func(identifier string, err error)) Option {
	return func(l *Limiter) {
		l.onError = fn
	}
}

// Limiter applies Policies over a Ledger.
type Limiter struct {
	ledger  Ledger
	now     func() time.Time
	logger  *zap.Logger
	onError func(identifier string, err error)
}

// New creates a [Limiter] over ledger.
func New(ledger Ledger, opts ...Option) *Limiter {
	l := &Limiter{
		ledger: ledger,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records an attempt for identifier and reports whether it is within
// policy. Ledger failures allow the attempt.
func (l *Limiter) Allow(ctx context.Context, identifier string, p Policy) bool {
	d, err := l.Check(ctx, identifier, p)
	if err == nil {
		return true
	}
	if errors.Is(err, ErrRateLimited) {
		l.logger.Info("rate limit exceeded",
			zap.String("identifier", identifier),
			zap.Int("count", d.Count),
			zap.Int("max", p.Max),
		)
		return false
	}

	l.logger.Warn("rate ledger failed, allowing request",
		zap.String("identifier", identifier),
		zap.Error(err),
	)
	if l.onError != nil {
		l.onError(identifier, err)
	}
	return true
}

// Check is Allow without the fail-open policy. It returns ErrRateLimited when
// the budget is spent and the ledger error otherwise.
func (l *Limiter) Check(ctx context.Context, identifier string, p Policy) (Decision, error) {
	if l == nil || l.ledger == nil || !p.Enabled() {
		return Decision{Allowed: true}, nil
	}

	d, err := l.ledger.Record(ctx, identifier, l.now(), p.Window, p.Max)
	if err != nil {
		return Decision{}, err
	}
	if !d.Allowed {
		return d, ErrRateLimited
	}
	return d, nil
}
