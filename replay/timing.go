package replay

import (
	"context"

	"github.com/MrEthical07/goGuard/internal"
	"go.uber.org/zap"
)

// MarkFormStart records now as the start of formID, overwriting earlier marks.
func (g *Guard) MarkFormStart(ctx context.Context, sid, formID string) error {
	return g.store.MarkForm(ctx, sid, formID, g.now())
}

// ValidateTiming consumes the start mark of formID and checks the elapsed time
// against [MinFormTime, MaxFormTime].
func (g *Guard) ValidateTiming(ctx context.Context, sid, formID string) error {
	start, ok, err := g.store.TakeForm(ctx, sid, formID)
	if err != nil {
		if notFound(err) {
			return ErrTimingViolation
		}
		return err
	}
	if !ok {
		return ErrTimingViolation
	}

	elapsed := g.now().Sub(start)
	if elapsed < g.config.MinFormTime || elapsed > g.config.MaxFormTime {
		g.logger.Info("form timing rejected",
			zap.String("session", internal.ShortID(sid, logPrefixLength)),
			zap.String("form", formID),
			zap.Duration("elapsed", elapsed),
		)
		return ErrTimingViolation
	}
	return nil
}
