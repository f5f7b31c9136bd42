package replay

import (
	"context"
	"crypto/subtle"

	"github.com/MrEthical07/goGuard/internal"
	"go.uber.org/zap"
)

const csrfTokenBytes = 32

// IssueCSRFToken returns the session's live token, minting a new one when it
// is absent or older than CSRFTokenTTL.
func (g *Guard) IssueCSRFToken(ctx context.Context, sid string) (string, error) {
	candidate, err := internal.RandomToken(csrfTokenBytes)
	if err != nil {
		return "", err
	}

	token, _, err := g.store.EnsureCSRF(ctx, sid, candidate, g.now(), g.config.CSRFTokenTTL)
	if err != nil {
		return "", err
	}
	return token, nil
}

// ValidateCSRFToken checks submitted against the session token. The token is
// not consumed.
func (g *Guard) ValidateCSRFToken(ctx context.Context, sid, submitted string) error {
	if submitted == "" {
		return ErrCSRFInvalid
	}

	sess, err := g.store.Get(ctx, sid)
	if err != nil {
		if notFound(err) {
			return ErrCSRFInvalid
		}
		return err
	}

	if sess.CSRFToken == "" {
		return ErrCSRFInvalid
	}
	if g.now().Sub(sess.CSRFIssuedAt) > g.config.CSRFTokenTTL {
		g.logger.Info("csrf token expired", zap.String("session", internal.ShortID(sid, 8)))
		return ErrCSRFInvalid
	}
	if subtle.ConstantTimeCompare([]byte(sess.CSRFToken), []byte(submitted)) != 1 {
		return ErrCSRFInvalid
	}
	return nil
}
