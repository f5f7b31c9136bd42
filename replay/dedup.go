package replay

import (
	"context"

	"github.com/MrEthical07/goGuard/internal"
	"go.uber.org/zap"
)

const submissionIDBytes = 16

// NewSubmissionID returns a fresh id for embedding in a form.
func NewSubmissionID() (string, error) {
	return internal.RandomToken(submissionIDBytes)
}

// ValidateDuplicate records submissionID, failing when the session already
// accepted it.
func (g *Guard) ValidateDuplicate(ctx context.Context, sid, submissionID string) error {
	if submissionID == "" {
		if g.config.RequireSubmissionID {
			return ErrDuplicateSubmission
		}
		return nil
	}

	fresh, err := g.store.RecordSubmission(ctx, sid, submissionID, g.config.DedupCap, g.config.DedupKeep)
	if err != nil {
		if notFound(err) {
			return ErrDuplicateSubmission
		}
		return err
	}
	if !fresh {
		g.logger.Info("duplicate submission",
			zap.String("session", internal.ShortID(sid, logPrefixLength)),
			zap.String("submission", internal.ShortID(submissionID, logPrefixLength)),
		)
		return ErrDuplicateSubmission
	}
	return nil
}

// ReleaseSubmission forgets submissionID so a failed action can be retried.
func (g *Guard) ReleaseSubmission(ctx context.Context, sid, submissionID string) error {
	if submissionID == "" {
		return nil
	}
	err := g.store.ReleaseSubmission(ctx, sid, submissionID)
	if notFound(err) {
		return nil
	}
	return err
}
