package goGuard

import (
	"context"
	"time"

	"github.com/MrEthical07/goGuard/credential"
	"github.com/MrEthical07/goGuard/internal"
	"github.com/MrEthical07/goGuard/session"
	"go.uber.org/zap"
)

// StartSession creates an anonymous session so forms rendered before login
// can carry a CSRF token and nonce.
func (e *Engine) StartSession(ctx context.Context) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	return e.createSession(ctx, session.Flags{})
}

// Login authenticates the password step and rotates the session: sessionID,
// if set, is deleted and a new session carrying the authentication flags is
// created. Accounts with TOTP enabled come back with RequiresTOTP set and
// must finish with VerifyLogin.
func (e *Engine) Login(ctx context.Context, sessionID, identifier, plain string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	if ip := clientIPFromContext(ctx); ip != "" {
		if !e.allow(ctx, "login", "login_"+ip, e.config.RateLimit.loginPolicy(), "", MetricLoginRateLimited) {
			return nil, ErrRateLimitExceeded
		}
	}

	start := time.Now()
	acc, err := e.Authenticate(ctx, identifier, plain)
	e.metrics.Observe(MetricLoginLatency, time.Since(start))
	if err != nil {
		return nil, err
	}

	if sessionID != "" {
		if err := e.sessions.Delete(ctx, sessionID); err != nil {
			return nil, sessionError(err)
		}
	}

	flags := sessionFlags(acc)
	newID, err := e.createSession(ctx, flags)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, acc.ID, newID, nil, func() map[string]string {
		if flags.RequiresTOTP {
			return map[string]string{"second_factor": "pending"}
		}
		return nil
	})
	e.logger.Info("login",
		zap.String("account", shortID(acc.ID)),
		zap.String("session", shortID(newID)),
		zap.Bool("requires_totp", flags.RequiresTOTP),
	)

	return &LoginResult{
		SessionID:    newID,
		AccountID:    acc.ID,
		Username:     acc.Username,
		RequiresTOTP: flags.RequiresTOTP,
	}, nil
}

// Logout deletes the session together with its CSRF token, nonces, form
// marks and submission ids. Logging out a missing session is not an error.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if sessionID == "" {
		return nil
	}

	var accountID string
	if sess, err := e.sessions.Get(ctx, sessionID); err == nil {
		accountID = sess.AccountID
	}
	if err := e.sessions.Delete(ctx, sessionID); err != nil {
		return sessionError(err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, accountID, sessionID, nil, nil)
	return nil
}

// Session returns the authentication flags of sessionID.
func (e *Engine) Session(ctx context.Context, sessionID string) (SessionState, error) {
	if err := e.ready(); err != nil {
		return SessionState{}, err
	}

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return SessionState{}, sessionError(err)
	}
	return SessionState{
		Authenticated: sess.Authenticated,
		RequiresTOTP:  sess.RequiresTOTP,
		TOTPVerified:  sess.TOTPVerified,
		AccountID:     sess.AccountID,
		Username:      sess.Username,
	}, nil
}

// SessionTTL is the lifetime given to new sessions.
func (e *Engine) SessionTTL() time.Duration {
	return e.config.Session.TTL
}

func (e *Engine) createSession(ctx context.Context, flags session.Flags) (string, error) {
	id, err := internal.NewSessionID()
	if err != nil {
		return "", err
	}

	sess := &session.Session{
		ID:            id.String(),
		AccountID:     flags.AccountID,
		Username:      flags.Username,
		Authenticated: flags.Authenticated,
		RequiresTOTP:  flags.RequiresTOTP,
		TOTPVerified:  flags.TOTPVerified,
		CreatedAt:     e.now(),
	}
	if err := e.sessions.Create(ctx, sess, e.config.Session.TTL); err != nil {
		return "", sessionError(err)
	}

	e.metricInc(MetricSessionCreated)
	return sess.ID, nil
}

// sessionFlags is the post-password state for acc.
func sessionFlags(acc *credential.Account) session.Flags {
	return session.Flags{
		AccountID:     acc.ID,
		Username:      acc.Username,
		Authenticated: true,
		RequiresTOTP:  acc.TOTPEnabled,
		TOTPVerified:  !acc.TOTPEnabled,
	}
}
