package goGuard

import (
	"context"
	"time"

	"github.com/MrEthical07/goGuard/credential"
	"github.com/MrEthical07/goGuard/secrets"
)

// timedCredentials bounds every credential.Store call by timeout. A deadline
// surfaces as an error the engine maps to ErrStoreUnavailable.
type timedCredentials struct {
	store   credential.Store
	timeout time.Duration
}

var _ credential.Store = (*timedCredentials)(nil)

func (s *timedCredentials) FindByIdentifier(ctx context.Context, identifier string) (*credential.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.FindByIdentifier(ctx, identifier)
}

func (s *timedCredentials) FindByID(ctx context.Context, id string) (*credential.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.FindByID(ctx, id)
}

func (s *timedCredentials) Create(ctx context.Context, acc credential.NewAccount) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.Create(ctx, acc)
}

func (s *timedCredentials) RecordFailure(ctx context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (credential.FailureResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.RecordFailure(ctx, id, threshold, lockFor, now)
}

func (s *timedCredentials) RecordSuccess(ctx context.Context, id string, now time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.RecordSuccess(ctx, id, now)
}

func (s *timedCredentials) SetTOTPEnabled(ctx context.Context, id string, enabled bool) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.SetTOTPEnabled(ctx, id, enabled)
}

func (s *timedCredentials) ReplaceBackupCodes(ctx context.Context, id string, hashes []string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.ReplaceBackupCodes(ctx, id, hashes)
}

func (s *timedCredentials) UnusedBackupCodes(ctx context.Context, id string) ([]credential.BackupCode, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.UnusedBackupCodes(ctx, id)
}

func (s *timedCredentials) ConsumeBackupCode(ctx context.Context, id, codeID string, now time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.ConsumeBackupCode(ctx, id, codeID, now)
}

// timedSecrets bounds every secrets.Store call by timeout.
type timedSecrets struct {
	store   secrets.Store
	timeout time.Duration
}

var _ secrets.Store = (*timedSecrets)(nil)

func (s *timedSecrets) Get(ctx context.Context, path string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.Get(ctx, path)
}

func (s *timedSecrets) Put(ctx context.Context, path string, value map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.Put(ctx, path, value)
}
