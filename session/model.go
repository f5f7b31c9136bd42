package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned for missing or expired sessions.
	ErrNotFound = errors.New("session not found")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("session store unavailable")
)

// Session is the full state bound to one browser client.
type Session struct {
	ID string

	AccountID     string
	Username      string
	Authenticated bool
	RequiresTOTP  bool
	TOTPVerified  bool

	CSRFToken    string
	CSRFIssuedAt time.Time

	CaptchaText     string
	CaptchaIssuedAt time.Time

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Flags is the authentication part of a session.
type Flags struct {
	AccountID     string
	Username      string
	Authenticated bool
	RequiresTOTP  bool
	TOTPVerified  bool
}

// Flags returns the authentication flags of s.
func (s *Session) Flags() Flags {
	return Flags{
		AccountID:     s.AccountID,
		Username:      s.Username,
		Authenticated: s.Authenticated,
		RequiresTOTP:  s.RequiresTOTP,
		TOTPVerified:  s.TOTPVerified,
	}
}

// NonceMeta is the issuance context stored alongside a nonce.
type NonceMeta struct {
	IssuedAt  time.Time `json:"ts"`
	ClientIP  string    `json:"ip"`
	UserAgent string    `json:"ua"`
	Endpoint  string    `json:"ep"`
}

// Store persists sessions and their anti-replay state.
type Store interface {
	Create(ctx context.Context, sess *Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (*Session, error)
	// Delete removes the session and every structure scoped to it. Deleting a
	// missing session is not an error.
	Delete(ctx context.Context, id string) error
	SetFlags(ctx context.Context, id string, flags Flags) error

	// EnsureCSRF returns the stored token when it is younger than ttl;
	// otherwise it stores candidate stamped with now and returns that.
	EnsureCSRF(ctx context.Context, id, candidate string, now time.Time, ttl time.Duration) (string, time.Time, error)

	SetCaptcha(ctx context.Context, id, text string, at time.Time) error
	ClearCaptcha(ctx context.Context, id string) error

	// PutNonce drops nonces issued more than window before meta.IssuedAt,
	// stores nonce, then evicts oldest entries beyond max.
	PutNonce(ctx context.Context, id, nonce string, meta NonceMeta, window time.Duration, max int) error
	// TakeNonce removes nonce and returns its metadata. ok is false when the
	// nonce was not present.
	TakeNonce(ctx context.Context, id, nonce string) (meta NonceMeta, ok bool, err error)

	MarkForm(ctx context.Context, id, formID string, at time.Time) error
	// TakeForm removes and returns the start mark of formID.
	TakeForm(ctx context.Context, id, formID string) (time.Time, bool, error)

	// RecordSubmission adds submissionID to the dedup set. It returns false
	// when the id was already present. When the set grows past capacity, only
	// the newest keep ids are retained.
	RecordSubmission(ctx context.Context, id, submissionID string, capacity, keep int) (bool, error)
	ReleaseSubmission(ctx context.Context, id, submissionID string) error
}
