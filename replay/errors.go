package replay

import "errors"

var (
	ErrCSRFInvalid           = errors.New("csrf token invalid")
	ErrNonceInvalidOrExpired = errors.New("nonce invalid or expired")
	ErrTimingViolation       = errors.New("form timing violation")
	ErrDuplicateSubmission   = errors.New("duplicate submission")
	ErrCaptchaInvalid        = errors.New("captcha invalid")
	ErrBotDetected           = errors.New("automated client detected")
)
