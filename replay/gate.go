package replay

import (
	"context"
	"errors"
	"fmt"
)

// Reason names the defense that rejected a submission.
type Reason string

const (
	ReasonCSRF      Reason = "csrf"
	ReasonNonce     Reason = "nonce"
	ReasonTiming    Reason = "timing"
	ReasonDuplicate Reason = "duplicate"
	ReasonBot       Reason = "bot"
	ReasonCaptcha   Reason = "captcha"
)

var rejectionMessages = map[Reason]string{
	ReasonCSRF:      "security token invalid, reload the page",
	ReasonNonce:     "this request may have been replayed, please retry",
	ReasonTiming:    "suspicious form submission detected",
	ReasonDuplicate: "this request has already been processed",
	ReasonBot:       "automated client detected",
	ReasonCaptcha:   "captcha answer incorrect",
}

// Message returns the user-facing text for r.
func (r Reason) Message() string {
	return rejectionMessages[r]
}

// Rejection is returned by Gate.Check when a defense refuses a submission.
type Rejection struct {
	Reason  Reason
	Message string
	Err     error
}

// Error returns the user-facing message.
func (r *Rejection) Error() string {
	return fmt.Sprintf("rejected (%s): %v", r.Reason, r.Err)
}

// Unwrap returns the validation error behind the rejection.
func (r *Rejection) Unwrap() error {
	return r.Err
}

// AsRejection extracts a *Rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

func rejectionFor(err error) *Rejection {
	var reason Reason
	switch {
	case errors.Is(err, ErrCSRFInvalid):
		reason = ReasonCSRF
	case errors.Is(err, ErrNonceInvalidOrExpired):
		reason = ReasonNonce
	case errors.Is(err, ErrTimingViolation):
		reason = ReasonTiming
	case errors.Is(err, ErrDuplicateSubmission):
		reason = ReasonDuplicate
	case errors.Is(err, ErrBotDetected):
		reason = ReasonBot
	case errors.Is(err, ErrCaptchaInvalid):
		reason = ReasonCaptcha
	default:
		return nil
	}
	return &Rejection{Reason: reason, Message: reason.Message(), Err: err}
}

// Submission is everything the checks read from one state-changing request.
type Submission struct {
	SessionID     string
	FormID        string
	CSRFToken     string
	Nonce         string
	SubmissionID  string
	CaptchaAnswer string
	Accept        string
	Request       RequestInfo

	// recorded is set once DuplicateCheck stored SubmissionID.
	recorded bool
}

// Recorded reports whether the submission id was stored by the gate and must
// be released if the business action fails.
func (s *Submission) Recorded() bool {
	return s.recorded
}

// Check is one defense. It returns nil to pass.
type Check func(ctx context.Context, sub *Submission) error

// Gate runs checks in order and stops at the first failure.
type Gate struct {
	checks   []Check
	onReject func(ctx context.Context, sub *Submission, r *Rejection)
}

// NewGate composes checks.
func NewGate(checks ...Check) *Gate {
	return &Gate{checks: append([]Check(nil), checks...)}
}

// DefaultGate runs CSRF, nonce, timing and duplicate checks.
func DefaultGate(g *Guard) *Gate {
	return NewGate(CSRFCheck(g), NonceCheck(g), TimingCheck(g), DuplicateCheck(g))
}

// OnReject registers fn to observe every rejection. It returns the gate.
func (gt *Gate) OnReject(fn func(ctx context.Context, sub *Submission, r *Rejection)) *Gate {
	gt.onReject = fn
	return gt
}

// With returns a new gate that runs gt's checks followed by extra.
func (gt *Gate) With(extra ...Check) *Gate {
	checks := make([]Check, 0, len(gt.checks)+len(extra))
	checks = append(checks, gt.checks...)
	checks = append(checks, extra...)
	return &Gate{checks: checks, onReject: gt.onReject}
}

// Check runs the gate. Rejections come back as *Rejection; any other error is
// a store failure.
func (gt *Gate) Check(ctx context.Context, sub *Submission) error {
	for _, check := range gt.checks {
		err := check(ctx, sub)
		if err == nil {
			continue
		}
		r := rejectionFor(err)
		if r == nil {
			return err
		}
		if gt.onReject != nil {
			gt.onReject(ctx, sub, r)
		}
		return r
	}
	return nil
}

// CSRFCheck validates the session CSRF token.
func CSRFCheck(g *Guard) Check {
	return func(ctx context.Context, sub *Submission) error {
		return g.ValidateCSRFToken(ctx, sub.SessionID, sub.CSRFToken)
	}
}

// NonceCheck consumes and validates the one-time nonce.
func NonceCheck(g *Guard) Check {
	return func(ctx context.Context, sub *Submission) error {
		return g.ValidateNonce(ctx, sub.SessionID, sub.Nonce, sub.Request)
	}
}

// TimingCheck enforces the minimum and maximum form fill time.
func TimingCheck(g *Guard) Check {
	return func(ctx context.Context, sub *Submission) error {
		return g.ValidateTiming(ctx, sub.SessionID, sub.FormID)
	}
}

// DuplicateCheck records the submission id, rejecting one seen before.
func DuplicateCheck(g *Guard) Check {
	return func(ctx context.Context, sub *Submission) error {
		if err := g.ValidateDuplicate(ctx, sub.SessionID, sub.SubmissionID); err != nil {
			return err
		}
		sub.recorded = sub.SubmissionID != ""
		return nil
	}
}

// CaptchaCheck validates the captcha answer.
func CaptchaCheck(g *Guard) Check {
	return func(ctx context.Context, sub *Submission) error {
		return g.ValidateCaptcha(ctx, sub.SessionID, sub.CaptchaAnswer)
	}
}

// BotCheck rejects clients that look automated.
func BotCheck() Check {
	return func(_ context.Context, sub *Submission) error {
		if bot, signal := DetectBot(sub.Request.UserAgent, sub.Accept); bot {
			return fmt.Errorf("%w: %s", ErrBotDetected, signal)
		}
		return nil
	}
}
