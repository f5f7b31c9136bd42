package goGuard

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/goGuard/replay"
)

var (
	// ErrInvalidCredential is returned for a wrong password and, through
	// ErrAccountNotFound, for an unknown identifier. Callers show one message
	// for both.
	ErrInvalidCredential = errors.New("invalid credentials")
	// ErrAccountNotFound wraps ErrInvalidCredential so errors.Is matches either.
	ErrAccountNotFound = fmt.Errorf("%w: account not found", ErrInvalidCredential)
	// ErrAccountLocked is returned while LockedUntil is in the future.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountInactive is returned for a deactivated account.
	ErrAccountInactive = errors.New("account inactive")
	// ErrDuplicateAccount is returned when the username or email is taken.
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrRegistrationInvalid is returned when a registration form fails validation.
	ErrRegistrationInvalid = errors.New("invalid registration request")

	// ErrTOTPMismatch is returned when a TOTP code does not verify.
	ErrTOTPMismatch = errors.New("totp code mismatch")
	// ErrBackupCodeInvalid is returned when no unused backup code matches.
	ErrBackupCodeInvalid = errors.New("backup code invalid")
	// ErrSecretMissing is returned when an account has no stored TOTP secret.
	ErrSecretMissing = errors.New("totp secret missing")
	// ErrSecondFactorInput is returned unless exactly one of code or backup code is set.
	ErrSecondFactorInput = errors.New("provide exactly one of totp code or backup code")
	// ErrSecondFactorNotPending is returned by VerifyLogin for a session that
	// is not waiting on a second factor.
	ErrSecondFactorNotPending = errors.New("session is not awaiting a second factor")
	// ErrTOTPNotEnabled is returned by operations that require an enrolled account.
	ErrTOTPNotEnabled = errors.New("totp not enabled")

	// ErrRateLimitExceeded is returned when a rate-limit policy denies the attempt.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrStoreUnavailable wraps credential, secret and session backend failures.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrSessionNotFound is returned for a missing or expired session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrEngineNotReady is returned when a nil or partially built Engine is used.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Anti-replay rejections, re-exported so callers can match at either level.
var (
	ErrCSRFInvalid           = replay.ErrCSRFInvalid
	ErrNonceInvalidOrExpired = replay.ErrNonceInvalidOrExpired
	ErrTimingViolation       = replay.ErrTimingViolation
	ErrDuplicateSubmission   = replay.ErrDuplicateSubmission
	ErrCaptchaInvalid        = replay.ErrCaptchaInvalid
	ErrBotDetected           = replay.ErrBotDetected
)
