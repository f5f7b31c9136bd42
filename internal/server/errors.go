package server

import (
	"errors"
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/session"
)

type statusRule struct {
	err     error
	status  int
	message string
}

// Order matters: ErrAccountNotFound wraps ErrInvalidCredential and must map
// to the same message.
var statusRules = []statusRule{
	{goGuard.ErrRateLimitExceeded, http.StatusTooManyRequests, "too many attempts, try again later"},
	{goGuard.ErrInvalidCredential, http.StatusUnauthorized, "invalid credentials"},
	{goGuard.ErrAccountLocked, http.StatusLocked, "account temporarily locked"},
	{goGuard.ErrAccountInactive, http.StatusForbidden, "account inactive"},
	{goGuard.ErrTOTPMismatch, http.StatusUnauthorized, "invalid authentication code"},
	{goGuard.ErrBackupCodeInvalid, http.StatusUnauthorized, "invalid backup code"},
	{goGuard.ErrSessionNotFound, http.StatusUnauthorized, "session expired"},
	{goGuard.ErrDuplicateAccount, http.StatusConflict, "username or email already registered"},
	{goGuard.ErrSecondFactorNotPending, http.StatusConflict, "no second factor pending"},
	{goGuard.ErrSecretMissing, http.StatusConflict, "two-factor setup not started"},
	{goGuard.ErrTOTPNotEnabled, http.StatusConflict, "two-factor authentication not enabled"},
	{goGuard.ErrSecondFactorInput, http.StatusBadRequest, "provide exactly one of token or backup_code"},
	{goGuard.ErrStoreUnavailable, http.StatusServiceUnavailable, "service temporarily unavailable"},
	{goGuard.ErrEngineNotReady, http.StatusServiceUnavailable, "service temporarily unavailable"},
	{session.ErrNotFound, http.StatusUnauthorized, "session expired"},
	{session.ErrUnavailable, http.StatusServiceUnavailable, "service temporarily unavailable"},
}

// statusFor maps an engine error to a status and a client-safe message.
// Registration failures carry their validation detail.
func statusFor(err error) (int, string) {
	if errors.Is(err, goGuard.ErrRegistrationInvalid) {
		return http.StatusBadRequest, err.Error()
	}
	for _, rule := range statusRules {
		if errors.Is(err, rule.err) {
			return rule.status, rule.message
		}
	}
	return http.StatusInternalServerError, "internal error"
}
