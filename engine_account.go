package goGuard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrEthical07/goGuard/credential"
	"go.uber.org/zap"
)

// Authenticate checks identifier (username or email) and password. Checks run
// in a fixed order: lookup, lock, active, password. A wrong password counts
// toward lockout; a correct one resets the counter.
//
// The returned account has PasswordHash cleared.
func (e *Engine) Authenticate(ctx context.Context, identifier, plain string) (*credential.Account, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || plain == "" {
		e.metricInc(MetricLoginFailure)
		return nil, ErrInvalidCredential
	}

	acc, err := e.credentials.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			_, _ = e.passwords.Verify(plain, e.dummyHash)
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrAccountNotFound, nil)
			return nil, ErrAccountNotFound
		}
		return nil, unavailable(err)
	}

	now := e.now()
	if acc.LockedAt(now) {
		e.metricInc(MetricAccountLockedRejected)
		e.emitAudit(ctx, auditEventLoginFailure, false, acc.ID, "", ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}
	if !acc.Active {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, acc.ID, "", ErrAccountInactive, nil)
		return nil, ErrAccountInactive
	}

	ok, err := e.passwords.Verify(plain, acc.PasswordHash)
	if err != nil {
		e.logger.Error("stored password hash unreadable",
			zap.String("account", shortID(acc.ID)),
			zap.Error(err),
		)
		ok = false
	}
	if !ok {
		return nil, e.recordFailure(ctx, acc)
	}

	if err := e.credentials.RecordSuccess(ctx, acc.ID, now); err != nil {
		return nil, unavailable(err)
	}

	out := acc.Public()
	out.FailedAttempts = 0
	out.LockedUntil = time.Time{}
	out.LastLogin = now
	return out, nil
}

func (e *Engine) recordFailure(ctx context.Context, acc *credential.Account) error {
	e.metricInc(MetricLoginFailure)
	if e.config.Lockout.Threshold <= 0 {
		e.emitAudit(ctx, auditEventLoginFailure, false, acc.ID, "", ErrInvalidCredential, nil)
		return ErrInvalidCredential
	}

	res, err := e.credentials.RecordFailure(ctx, acc.ID, e.config.Lockout.Threshold, e.config.Lockout.Duration, e.now())
	if err != nil {
		return unavailable(err)
	}

	e.emitAudit(ctx, auditEventLoginFailure, false, acc.ID, "", ErrInvalidCredential, func() map[string]string {
		return map[string]string{"attempts": fmt.Sprint(res.Attempts)}
	})
	if res.Attempts >= e.config.Lockout.Threshold && !res.LockedUntil.IsZero() {
		e.metricInc(MetricAccountLocked)
		e.logger.Warn("account locked",
			zap.String("account", shortID(acc.ID)),
			zap.Int("attempts", res.Attempts),
			zap.Time("until", res.LockedUntil),
		)
		e.emitAudit(ctx, auditEventAccountLocked, false, acc.ID, "", ErrAccountLocked, nil)
	}
	return ErrInvalidCredential
}

// Register validates req, hashes the password and creates an active account.
// It returns the new account ID.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}

	if ip := clientIPFromContext(ctx); ip != "" {
		if !e.allow(ctx, "register", ip, e.config.RateLimit.registerPolicy(), "", MetricRegisterRateLimited) {
			return "", ErrRateLimitExceeded
		}
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := e.validateRegistration(req); err != nil {
		e.metricInc(MetricRegisterInvalid)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", err, nil)
		return "", err
	}

	hash, err := e.passwords.Hash(req.Password)
	if err != nil {
		e.metricInc(MetricRegisterInvalid)
		return "", fmt.Errorf("%w: %v", ErrRegistrationInvalid, err)
	}

	id, err := e.credentials.Create(ctx, credential.NewAccount{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, credential.ErrDuplicate) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", ErrDuplicateAccount, nil)
			return "", ErrDuplicateAccount
		}
		return "", unavailable(err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, id, "", nil, nil)
	e.logger.Info("account registered", zap.String("account", shortID(id)))
	return id, nil
}

func (e *Engine) validateRegistration(req RegisterRequest) error {
	switch {
	case utf8.RuneCountInString(req.Username) < e.config.Account.MinUsernameLength:
		return fmt.Errorf("%w: username must be at least %d characters", ErrRegistrationInvalid, e.config.Account.MinUsernameLength)
	case req.Email == "" || !strings.Contains(req.Email, "@"):
		return fmt.Errorf("%w: email address is invalid", ErrRegistrationInvalid)
	case utf8.RuneCountInString(req.Password) < e.config.Account.MinPasswordLength:
		return fmt.Errorf("%w: password must be at least %d characters", ErrRegistrationInvalid, e.config.Account.MinPasswordLength)
	case req.Password != req.ConfirmPassword:
		return fmt.Errorf("%w: passwords do not match", ErrRegistrationInvalid)
	}
	return nil
}
