package credential

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no account or backup code matches the lookup.
	ErrNotFound = errors.New("credential not found")
	// ErrDuplicate is returned by Create when the username or email is taken.
	ErrDuplicate = errors.New("credential already exists")
)

// Account is a user record as held by the credential store.
type Account struct {
	ID             string
	Username       string
	Email          string
	PasswordHash   string
	Active         bool
	TOTPEnabled    bool
	FailedAttempts int
	LockedUntil    time.Time
	LastLogin      time.Time
	CreatedAt      time.Time
}

// LockedAt reports whether the account is locked at now.
func (a *Account) LockedAt(now time.Time) bool {
	return a != nil && !a.LockedUntil.IsZero() && a.LockedUntil.After(now)
}

// Public returns a copy of a with the password hash stripped.
func (a *Account) Public() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.PasswordHash = ""
	return &out
}

// NewAccount carries the fields required to create an account.
type NewAccount struct {
	Username     string
	Email        string
	PasswordHash string
}

// BackupCode is one persisted recovery code row.
type BackupCode struct {
	ID        string
	AccountID string
	Hash      string
	Used      bool
	UsedAt    time.Time
}

// FailureResult is the post-increment state returned by RecordFailure.
type FailureResult struct {
	Attempts    int
	LockedUntil time.Time
}

// Store is the credential persistence contract.
type Store interface {
	// FindByIdentifier looks an account up by username or email.
	FindByIdentifier(ctx context.Context, identifier string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	// Create inserts an account, returning ErrDuplicate when the username or
	// email exists. The existence check and insert happen in one step.
	Create(ctx context.Context, acc NewAccount) (string, error)
	// RecordFailure increments the failed-attempt counter and, when the new
	// count reaches threshold, sets LockedUntil to now+lockFor.
	RecordFailure(ctx context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (FailureResult, error)
	// RecordSuccess resets the counter, clears LockedUntil and stamps LastLogin.
	RecordSuccess(ctx context.Context, id string, now time.Time) error
	SetTOTPEnabled(ctx context.Context, id string, enabled bool) error
	// ReplaceBackupCodes deletes every code for the account and inserts hashes
	// as a single batch.
	ReplaceBackupCodes(ctx context.Context, id string, hashes []string) error
	UnusedBackupCodes(ctx context.Context, id string) ([]BackupCode, error)
	// ConsumeBackupCode marks the code used. It returns false when the code was
	// already used or does not belong to the account.
	ConsumeBackupCode(ctx context.Context, id, codeID string, now time.Time) (bool, error)
}
