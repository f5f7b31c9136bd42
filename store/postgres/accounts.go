package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goGuard/credential"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var _ credential.Store = (*AccountStore)(nil)

// AccountStore keeps accounts and backup codes in guard_accounts and
// guard_backup_codes.
type AccountStore struct {
	db *DB
}

// NewAccountStore returns a credential.Store over db.
func NewAccountStore(db *DB) *AccountStore {
	return &AccountStore{db: db}
}

const accountColumns = `id, username, email, password_hash, active, totp_enabled,
	failed_attempts, locked_until, last_login, created_at`

func scanAccount(row pgx.Row) (*credential.Account, error) {
	var (
		acc         credential.Account
		lockedUntil *time.Time
		lastLogin   *time.Time
	)
	err := row.Scan(
		&acc.ID, &acc.Username, &acc.Email, &acc.PasswordHash, &acc.Active, &acc.TOTPEnabled,
		&acc.FailedAttempts, &lockedUntil, &lastLogin, &acc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lockedUntil != nil {
		acc.LockedUntil = *lockedUntil
	}
	if lastLogin != nil {
		acc.LastLogin = *lastLogin
	}
	return &acc, nil
}

// FindByIdentifier matches username or email.
func (s *AccountStore) FindByIdentifier(ctx context.Context, identifier string) (*credential.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM guard_accounts
			  WHERE username = $1 OR email = $1
			  ORDER BY (username = $1) DESC
			  LIMIT 1`

	acc, err := scanAccount(s.db.QueryRow(ctx, query, identifier))
	if err != nil {
		if mapped := mapError(err); errors.Is(mapped, credential.ErrNotFound) {
			return nil, mapped
		}
		return nil, fmt.Errorf("find account by identifier: %w", err)
	}
	return acc, nil
}

// FindByID returns ErrNotFound for unknown or malformed ids.
func (s *AccountStore) FindByID(ctx context.Context, id string) (*credential.Account, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, credential.ErrNotFound
	}
	query := `SELECT ` + accountColumns + ` FROM guard_accounts WHERE id = $1`

	acc, err := scanAccount(s.db.QueryRow(ctx, query, uid))
	if err != nil {
		if mapped := mapError(err); errors.Is(mapped, credential.ErrNotFound) {
			return nil, mapped
		}
		return nil, fmt.Errorf("find account by id: %w", err)
	}
	return acc, nil
}

// Create relies on the unique constraints for the duplicate check.
func (s *AccountStore) Create(ctx context.Context, acc credential.NewAccount) (string, error) {
	id := uuid.New()
	query := `INSERT INTO guard_accounts (id, username, email, password_hash)
			  VALUES ($1, $2, $3, $4)`

	if _, err := s.db.Exec(ctx, query, id, acc.Username, acc.Email, acc.PasswordHash); err != nil {
		if mapped := mapError(err); errors.Is(mapped, credential.ErrDuplicate) {
			return "", mapped
		}
		return "", fmt.Errorf("create account: %w", err)
	}
	return id.String(), nil
}

// RecordFailure increments and locks in one statement so concurrent failures
// are never lost.
func (s *AccountStore) RecordFailure(ctx context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (credential.FailureResult, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return credential.FailureResult{}, credential.ErrNotFound
	}
	query := `UPDATE guard_accounts
			  SET failed_attempts = failed_attempts + 1,
			      locked_until = CASE
			          WHEN $2 > 0 AND failed_attempts + 1 >= $2 THEN $3
			          ELSE locked_until
			      END
			  WHERE id = $1
			  RETURNING failed_attempts, locked_until`

	var (
		res         credential.FailureResult
		lockedUntil *time.Time
	)
	err = s.db.QueryRow(ctx, query, uid, threshold, now.Add(lockFor)).Scan(&res.Attempts, &lockedUntil)
	if err != nil {
		if mapped := mapError(err); errors.Is(mapped, credential.ErrNotFound) {
			return credential.FailureResult{}, mapped
		}
		return credential.FailureResult{}, fmt.Errorf("record failure: %w", err)
	}
	if lockedUntil != nil {
		res.LockedUntil = *lockedUntil
	}
	return res, nil
}

// RecordSuccess resets the failure counter and stamps last_login.
func (s *AccountStore) RecordSuccess(ctx context.Context, id string, now time.Time) error {
	query := `UPDATE guard_accounts
			  SET failed_attempts = 0, locked_until = NULL, last_login = $2
			  WHERE id = $1`
	return s.updateOne(ctx, "record success", query, id, now)
}

// SetTOTPEnabled sets the totp_enabled column.
func (s *AccountStore) SetTOTPEnabled(ctx context.Context, id string, enabled bool) error {
	query := `UPDATE guard_accounts SET totp_enabled = $2 WHERE id = $1`
	return s.updateOne(ctx, "set totp enabled", query, id, enabled)
}

// SetActive toggles the active flag. It is not part of credential.Store.
func (s *AccountStore) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE guard_accounts SET active = $2 WHERE id = $1`
	return s.updateOne(ctx, "set active", query, id, active)
}

func (s *AccountStore) updateOne(ctx context.Context, op, query, id string, arg any) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return credential.ErrNotFound
	}
	tag, err := s.db.Exec(ctx, query, uid, arg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return credential.ErrNotFound
	}
	return nil
}

// ReplaceBackupCodes swaps the whole batch inside one transaction.
func (s *AccountStore) ReplaceBackupCodes(ctx context.Context, id string, hashes []string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return credential.ErrNotFound
	}

	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM guard_backup_codes WHERE account_id = $1`, uid); err != nil {
			return fmt.Errorf("delete backup codes: %w", err)
		}

		batch := &pgx.Batch{}
		for _, h := range hashes {
			batch.Queue(`INSERT INTO guard_backup_codes (id, account_id, code_hash) VALUES ($1, $2, $3)`,
				uuid.New(), uid, h)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			if mapped := mapError(err); errors.Is(mapped, credential.ErrNotFound) {
				return mapped
			}
			return fmt.Errorf("insert backup codes: %w", err)
		}
		return nil
	})
}

// UnusedBackupCodes lists the codes not yet consumed.
func (s *AccountStore) UnusedBackupCodes(ctx context.Context, id string) ([]credential.BackupCode, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, nil
	}
	query := `SELECT id, account_id, code_hash FROM guard_backup_codes
			  WHERE account_id = $1 AND NOT used`

	rows, err := s.db.Query(ctx, query, uid)
	if err != nil {
		return nil, fmt.Errorf("list backup codes: %w", err)
	}
	defer rows.Close()

	var out []credential.BackupCode
	for rows.Next() {
		var c credential.BackupCode
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Hash); err != nil {
			return nil, fmt.Errorf("scan backup code: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list backup codes: %w", err)
	}
	return out, nil
}

// ConsumeBackupCode flips used only when it was false, so two concurrent
// redemptions of one code cannot both succeed.
func (s *AccountStore) ConsumeBackupCode(ctx context.Context, id, codeID string, now time.Time) (bool, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return false, nil
	}
	cid, err := uuid.Parse(codeID)
	if err != nil {
		return false, nil
	}
	query := `UPDATE guard_backup_codes SET used = TRUE, used_at = $3
			  WHERE id = $2 AND account_id = $1 AND NOT used`

	tag, err := s.db.Exec(ctx, query, uid, cid, now)
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
