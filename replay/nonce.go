package replay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/MrEthical07/goGuard/internal"
	"github.com/MrEthical07/goGuard/session"
	"go.uber.org/zap"
)

const (
	nonceLength       = 32
	nonceRandomBytes  = 16
	userAgentMaxBytes = 100
	logPrefixLength   = 8
)

// IssueNonce derives a single-use nonce bound to info and stores it in the
// session.
func (g *Guard) IssueNonce(ctx context.Context, sid string, info RequestInfo) (string, error) {
	now := g.now()
	random, err := internal.RandomHex(nonceRandomBytes)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s:%s", now.Unix(), random, info.ClientIP)))
	nonce := hex.EncodeToString(sum[:])[:nonceLength]

	meta := session.NonceMeta{
		IssuedAt:  now,
		ClientIP:  info.ClientIP,
		UserAgent: internal.Truncate(info.UserAgent, userAgentMaxBytes),
		Endpoint:  info.Endpoint,
	}
	if err := g.store.PutNonce(ctx, sid, nonce, meta, g.config.NonceWindow, g.config.MaxNonces); err != nil {
		return "", err
	}
	return nonce, nil
}

// ValidateNonce consumes nonce. It fails when the nonce is unknown, older than
// NonceWindow, or (in strict mode) presented from a different client. The
// nonce is gone after this call whatever the outcome.
func (g *Guard) ValidateNonce(ctx context.Context, sid, nonce string, info RequestInfo) error {
	if nonce == "" {
		return ErrNonceInvalidOrExpired
	}

	meta, ok, err := g.store.TakeNonce(ctx, sid, nonce)
	if err != nil {
		if notFound(err) {
			return ErrNonceInvalidOrExpired
		}
		return err
	}

	fields := []zap.Field{
		zap.String("session", internal.ShortID(sid, logPrefixLength)),
		zap.String("nonce", internal.ShortID(nonce, logPrefixLength)),
	}
	if !ok {
		g.logger.Info("nonce rejected: unknown or replayed", fields...)
		return ErrNonceInvalidOrExpired
	}
	if g.now().Sub(meta.IssuedAt) > g.config.NonceWindow {
		g.logger.Info("nonce rejected: expired", fields...)
		return ErrNonceInvalidOrExpired
	}
	if g.config.StrictBinding {
		if meta.ClientIP != info.ClientIP || meta.UserAgent != internal.Truncate(info.UserAgent, userAgentMaxBytes) {
			g.logger.Warn("nonce rejected: client binding mismatch", fields...)
			return ErrNonceInvalidOrExpired
		}
	}
	return nil
}
