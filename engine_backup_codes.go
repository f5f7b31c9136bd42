package goGuard

import (
	"context"
	"strconv"

	"go.uber.org/zap"
)

// RegenerateBackupCodes replaces every backup code of an enrolled account
// with a new batch. Earlier codes, used or not, stop working.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, accountID string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	acc, err := e.account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !acc.TOTPEnabled {
		return nil, ErrTOTPNotEnabled
	}
	return e.replaceBackupCodes(ctx, acc.ID)
}

// BackupCodesRemaining reports how many unused codes the account has.
func (e *Engine) BackupCodesRemaining(ctx context.Context, accountID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}

	acc, err := e.account(ctx, accountID)
	if err != nil {
		return 0, err
	}
	codes, err := e.credentials.UnusedBackupCodes(ctx, acc.ID)
	if err != nil {
		return 0, unavailable(err)
	}
	return len(codes), nil
}

func (e *Engine) replaceBackupCodes(ctx context.Context, accountID string) ([]string, error) {
	codes, err := generateBackupCodes(e.config.TOTP.BackupCodeCount)
	if err != nil {
		return nil, err
	}

	hashes := make([]string, 0, len(codes))
	for _, code := range codes {
		canonical, _ := canonicalBackupCode(code)
		h, err := e.backupCodes.Hash(canonical)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}

	if err := e.credentials.ReplaceBackupCodes(ctx, accountID, hashes); err != nil {
		return nil, unavailable(err)
	}

	e.metricInc(MetricBackupCodeRegenerated)
	e.emitAudit(ctx, auditEventBackupCodesGenerated, true, accountID, "", nil, func() map[string]string {
		return map[string]string{"count": strconv.Itoa(len(codes))}
	})
	return codes, nil
}

// consumeBackupCode finds the unused code matching input and marks it used.
// Losing a consume race to another request counts as no match.
func (e *Engine) consumeBackupCode(ctx context.Context, accountID, input string) error {
	canonical, ok := canonicalBackupCode(input)
	if !ok {
		return e.backupCodeFailed(ctx, accountID)
	}

	codes, err := e.credentials.UnusedBackupCodes(ctx, accountID)
	if err != nil {
		return unavailable(err)
	}

	for _, c := range codes {
		match, err := e.backupCodes.Verify(canonical, c.Hash)
		if err != nil {
			e.logger.Warn("unreadable backup code hash",
				zap.String("account", shortID(accountID)),
				zap.String("code", shortID(c.ID)),
				zap.Error(err),
			)
			continue
		}
		if !match {
			continue
		}

		consumed, err := e.credentials.ConsumeBackupCode(ctx, accountID, c.ID, e.now())
		if err != nil {
			return unavailable(err)
		}
		if !consumed {
			return e.backupCodeFailed(ctx, accountID)
		}

		e.metricInc(MetricBackupCodeUsed)
		e.emitAudit(ctx, auditEventBackupCodeUsed, true, accountID, "", nil, func() map[string]string {
			return map[string]string{"remaining": strconv.Itoa(len(codes) - 1)}
		})
		return nil
	}

	return e.backupCodeFailed(ctx, accountID)
}

func (e *Engine) backupCodeFailed(ctx context.Context, accountID string) error {
	e.metricInc(MetricBackupCodeFailed)
	e.emitAudit(ctx, auditEventBackupCodeFailed, false, accountID, "", ErrBackupCodeInvalid, nil)
	return ErrBackupCodeInvalid
}
