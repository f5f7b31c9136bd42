package goGuard

import (
	"context"
	"errors"

	"github.com/MrEthical07/goGuard/internal"
	"github.com/MrEthical07/goGuard/replay"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventAccountLocked        = "account_locked"
	auditEventRegisterSuccess      = "register_success"
	auditEventRegisterFailure      = "register_failure"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
	auditEventTOTPSetupRequested   = "totp_setup_requested"
	auditEventTOTPEnabled          = "totp_enabled"
	auditEventTOTPSuccess          = "totp_success"
	auditEventTOTPFailure          = "totp_failure"
	auditEventTOTPSecretMissing    = "totp_secret_missing"
	auditEventBackupCodesGenerated = "backup_codes_generated"
	auditEventBackupCodeUsed       = "backup_code_used"
	auditEventBackupCodeFailed     = "backup_code_failed"
	auditEventGateRejected         = "gate_rejected"
	auditEventLogout               = "logout"
)

// AuditErrorCode is the stable, non-sensitive error label written to audit
// events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials  AuditErrorCode = "invalid_credentials"
	auditErrAccountNotFound     AuditErrorCode = "account_not_found"
	auditErrAccountLocked       AuditErrorCode = "account_locked"
	auditErrAccountInactive     AuditErrorCode = "account_inactive"
	auditErrDuplicate           AuditErrorCode = "duplicate"
	auditErrRegistrationInvalid AuditErrorCode = "registration_invalid"
	auditErrRateLimited         AuditErrorCode = "rate_limited"
	auditErrTOTPMismatch        AuditErrorCode = "totp_mismatch"
	auditErrBackupCodeInvalid   AuditErrorCode = "backup_code_invalid"
	auditErrSecretMissing       AuditErrorCode = "secret_missing"
	auditErrSessionNotFound     AuditErrorCode = "session_not_found"
	auditErrCSRF                AuditErrorCode = "csrf_invalid"
	auditErrNonce               AuditErrorCode = "nonce_invalid"
	auditErrTiming              AuditErrorCode = "timing_violation"
	auditErrDuplicateSubmission AuditErrorCode = "duplicate_submission"
	auditErrCaptcha             AuditErrorCode = "captcha_invalid"
	auditErrBot                 AuditErrorCode = "bot_detected"
	auditErrUnavailable         AuditErrorCode = "backend_unavailable"
	auditErrInternal            AuditErrorCode = "internal_error"
)

const auditIDLength = 8

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		AccountID: internal.ShortID(accountID, auditIDLength),
		SessionID: internal.ShortID(sessionID, auditIDLength),
		IP:        clientIPFromContext(ctx),
		UserAgent: internal.Truncate(userAgentFromContext(ctx), 100),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope, accountID string) {
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, accountID, "", ErrRateLimitExceeded, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}

var gateRejectMetrics = map[replay.Reason]MetricID{
	replay.ReasonCSRF:      MetricGateRejectCSRF,
	replay.ReasonNonce:     MetricGateRejectNonce,
	replay.ReasonTiming:    MetricGateRejectTiming,
	replay.ReasonDuplicate: MetricGateRejectDuplicate,
	replay.ReasonBot:       MetricGateRejectBot,
	replay.ReasonCaptcha:   MetricGateRejectCaptcha,
}

// observeRejection is the gate's OnReject hook.
func (e *Engine) observeRejection(ctx context.Context, sub *replay.Submission, r *replay.Rejection) {
	if id, ok := gateRejectMetrics[r.Reason]; ok {
		e.metricInc(id)
	}
	e.emitAudit(ctx, auditEventGateRejected, false, "", sub.SessionID, r.Err, func() map[string]string {
		return map[string]string{
			"reason":  string(r.Reason),
			"form_id": sub.FormID,
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrInvalidCredential):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountInactive):
		return auditErrAccountInactive
	case errors.Is(err, ErrDuplicateAccount):
		return auditErrDuplicate
	case errors.Is(err, ErrRegistrationInvalid):
		return auditErrRegistrationInvalid
	case errors.Is(err, ErrRateLimitExceeded):
		return auditErrRateLimited
	case errors.Is(err, ErrTOTPMismatch):
		return auditErrTOTPMismatch
	case errors.Is(err, ErrBackupCodeInvalid):
		return auditErrBackupCodeInvalid
	case errors.Is(err, ErrSecretMissing):
		return auditErrSecretMissing
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrCSRFInvalid):
		return auditErrCSRF
	case errors.Is(err, ErrNonceInvalidOrExpired):
		return auditErrNonce
	case errors.Is(err, ErrTimingViolation):
		return auditErrTiming
	case errors.Is(err, ErrDuplicateSubmission):
		return auditErrDuplicateSubmission
	case errors.Is(err, ErrCaptchaInvalid):
		return auditErrCaptcha
	case errors.Is(err, ErrBotDetected):
		return auditErrBot
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
