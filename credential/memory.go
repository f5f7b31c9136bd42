package credential

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Store = (*Memory)(nil)

// Memory is a mutex-guarded in-process Store.
type Memory struct {
	mu       sync.Mutex
	accounts map[string]*Account
	byName   map[string]string
	byEmail  map[string]string
	codes    map[string][]BackupCode
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]*Account),
		byName:   make(map[string]string),
		byEmail:  make(map[string]string),
		codes:    make(map[string][]BackupCode),
	}
}

// FindByIdentifier matches username or email.
func (m *Memory) FindByIdentifier(_ context.Context, identifier string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byName[identifier]
	if !ok {
		id, ok = m.byEmail[identifier]
	}
	if !ok {
		return nil, ErrNotFound
	}
	acc := *m.accounts[id]
	return &acc, nil
}

// FindByID returns a copy of the account.
func (m *Memory) FindByID(_ context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *acc
	return &out, nil
}

// Create assigns a uuid and rejects taken usernames and emails.
func (m *Memory) Create(_ context.Context, acc NewAccount) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byName[acc.Username]; ok {
		return "", ErrDuplicate
	}
	if _, ok := m.byEmail[acc.Email]; ok {
		return "", ErrDuplicate
	}

	id := uuid.NewString()
	m.accounts[id] = &Account{
		ID:           id,
		Username:     acc.Username,
		Email:        acc.Email,
		PasswordHash: acc.PasswordHash,
		Active:       true,
		CreatedAt:    time.Now(),
	}
	m.byName[acc.Username] = id
	m.byEmail[acc.Email] = id
	return id, nil
}

// RecordFailure increments the counter under the store lock.
func (m *Memory) RecordFailure(_ context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (FailureResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok {
		return FailureResult{}, ErrNotFound
	}
	acc.FailedAttempts++
	if threshold > 0 && acc.FailedAttempts >= threshold {
		acc.LockedUntil = now.Add(lockFor)
	}
	return FailureResult{Attempts: acc.FailedAttempts, LockedUntil: acc.LockedUntil}, nil
}

// RecordSuccess resets the counter and stamps LastLogin.
func (m *Memory) RecordSuccess(_ context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	acc.FailedAttempts = 0
	acc.LockedUntil = time.Time{}
	acc.LastLogin = now
	return nil
}

// SetTOTPEnabled flips the enrollment flag.
func (m *Memory) SetTOTPEnabled(_ context.Context, id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	acc.TOTPEnabled = enabled
	return nil
}

// SetActive toggles the active flag. It is not part of Store; operators and
// tests use it to deactivate accounts.
func (m *Memory) SetActive(id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	acc.Active = active
	return nil
}

// ReplaceBackupCodes swaps the account codes for hashes.
func (m *Memory) ReplaceBackupCodes(_ context.Context, id string, hashes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[id]; !ok {
		return ErrNotFound
	}
	batch := make([]BackupCode, 0, len(hashes))
	for _, h := range hashes {
		batch = append(batch, BackupCode{ID: uuid.NewString(), AccountID: id, Hash: h})
	}
	m.codes[id] = batch
	return nil
}

// UnusedBackupCodes lists the codes not yet consumed.
func (m *Memory) UnusedBackupCodes(_ context.Context, id string) ([]BackupCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []BackupCode
	for _, c := range m.codes[id] {
		if !c.Used {
			out = append(out, c)
		}
	}
	return out, nil
}

// ConsumeBackupCode marks codeID used if it is still unused.
func (m *Memory) ConsumeBackupCode(_ context.Context, id, codeID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	codes := m.codes[id]
	for i := range codes {
		if codes[i].ID != codeID {
			continue
		}
		if codes[i].Used {
			return false, nil
		}
		codes[i].Used = true
		codes[i].UsedAt = now
		return true, nil
	}
	return false, nil
}
