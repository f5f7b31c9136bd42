package goGuard

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goGuard/credential"
	"github.com/MrEthical07/goGuard/secrets"
	"go.uber.org/zap"
)

// SetupTOTP starts enrollment: it stores a new secret (replacing any earlier
// one), issues a fresh batch of backup codes and returns what the user needs
// to add the account to an authenticator. TOTP stays disabled until
// VerifyTOTPSetup succeeds.
func (e *Engine) SetupTOTP(ctx context.Context, accountID string) (*TOTPSetup, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	acc, err := e.account(ctx, accountID)
	if err != nil {
		return nil, err
	}

	secret, err := e.totp.GenerateSecret(acc.Username)
	if err != nil {
		return nil, err
	}
	if err := e.secrets.Put(ctx, secrets.TOTPPath(acc.ID), map[string]any{"secret": secret}); err != nil {
		return nil, unavailable(err)
	}

	codes, err := e.replaceBackupCodes(ctx, acc.ID)
	if err != nil {
		return nil, err
	}

	uri := e.totp.ProvisionURI(secret, acc.Username)
	qr, err := e.totp.QRCode(uri)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricTOTPSetup)
	e.emitAudit(ctx, auditEventTOTPSetupRequested, true, acc.ID, "", nil, nil)

	return &TOTPSetup{
		Secret:          secret,
		ProvisioningURI: uri,
		QRCode:          qr,
		BackupCodes:     codes,
	}, nil
}

// VerifyTOTPSetup completes enrollment. On a mismatch the pending secret is
// kept so the user can retry.
func (e *Engine) VerifyTOTPSetup(ctx context.Context, accountID, code string) error {
	if err := e.ready(); err != nil {
		return err
	}

	acc, err := e.account(ctx, accountID)
	if err != nil {
		return err
	}
	if !e.allow(ctx, "totp", "totp_"+acc.ID, e.config.RateLimit.totpPolicy(), acc.ID, MetricTOTPRateLimited) {
		return ErrRateLimitExceeded
	}

	if err := e.checkTOTP(ctx, acc.ID, code); err != nil {
		return err
	}

	if err := e.credentials.SetTOTPEnabled(ctx, acc.ID, true); err != nil {
		return unavailable(err)
	}

	e.metricInc(MetricTOTPEnabled)
	e.emitAudit(ctx, auditEventTOTPEnabled, true, acc.ID, "", nil, nil)
	return nil
}

// TOTPEnabled reports whether the account has completed TOTP enrollment.
func (e *Engine) TOTPEnabled(ctx context.Context, accountID string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	acc, err := e.account(ctx, accountID)
	if err != nil {
		return false, err
	}
	return acc.TOTPEnabled, nil
}

// VerifyLogin completes a two-step login with either a TOTP code or a backup
// code. The session must have passed the password step and be waiting on the
// second factor.
func (e *Engine) VerifyLogin(ctx context.Context, sessionID string, factor SecondFactor) error {
	if err := e.ready(); err != nil {
		return err
	}

	code := strings.TrimSpace(factor.Code)
	backup := strings.TrimSpace(factor.BackupCode)
	if (code == "") == (backup == "") {
		return ErrSecondFactorInput
	}

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return sessionError(err)
	}
	if !sess.Authenticated || !sess.RequiresTOTP {
		return ErrSecondFactorNotPending
	}

	if !e.allow(ctx, "totp", "totp_"+sess.AccountID, e.config.RateLimit.totpPolicy(), sess.AccountID, MetricTOTPRateLimited) {
		return ErrRateLimitExceeded
	}

	if code != "" {
		err = e.checkTOTP(ctx, sess.AccountID, code)
	} else {
		err = e.consumeBackupCode(ctx, sess.AccountID, backup)
	}
	if err != nil {
		return err
	}

	flags := sess.Flags()
	flags.TOTPVerified = true
	flags.RequiresTOTP = false
	if err := e.sessions.SetFlags(ctx, sess.ID, flags); err != nil {
		return sessionError(err)
	}
	return nil
}

// checkTOTP verifies code against the stored secret.
func (e *Engine) checkTOTP(ctx context.Context, accountID, code string) error {
	secret, err := e.loadSecret(ctx, accountID)
	if err != nil {
		return err
	}

	ok, err := e.totp.VerifyCode(secret, code, e.now())
	if err != nil {
		e.logger.Error("stored totp secret unusable",
			zap.String("account", shortID(accountID)),
			zap.Error(err),
		)
		ok = false
	}
	if !ok {
		e.metricInc(MetricTOTPFailure)
		e.emitAudit(ctx, auditEventTOTPFailure, false, accountID, "", ErrTOTPMismatch, nil)
		return ErrTOTPMismatch
	}

	e.metricInc(MetricTOTPSuccess)
	e.emitAudit(ctx, auditEventTOTPSuccess, true, accountID, "", nil, nil)
	return nil
}

func (e *Engine) loadSecret(ctx context.Context, accountID string) (string, error) {
	value, err := e.secrets.Get(ctx, secrets.TOTPPath(accountID))
	if err != nil && !errors.Is(err, secrets.ErrNotFound) {
		return "", unavailable(err)
	}

	secret, _ := value["secret"].(string)
	if secret == "" {
		e.metricInc(MetricTOTPSecretMissing)
		e.logger.Error("totp secret missing", zap.String("account", shortID(accountID)))
		e.emitAudit(ctx, auditEventTOTPSecretMissing, false, accountID, "", ErrSecretMissing, nil)
		return "", ErrSecretMissing
	}
	return secret, nil
}

func (e *Engine) account(ctx context.Context, accountID string) (*credential.Account, error) {
	if accountID == "" {
		return nil, ErrAccountNotFound
	}
	acc, err := e.credentials.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, unavailable(err)
	}
	return acc, nil
}
