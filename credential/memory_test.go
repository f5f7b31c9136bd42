package credential

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryCreateRejectsDuplicateUsernameOrEmail(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.Create(ctx, NewAccount{Username: "alice", Email: "a@example.com", PasswordHash: "h"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.Create(ctx, NewAccount{Username: "alice", Email: "other@example.com"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for username, got %v", err)
	}
	if _, err := m.Create(ctx, NewAccount{Username: "bob", Email: "a@example.com"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for email, got %v", err)
	}
}

func TestMemoryFindByIdentifierMatchesUsernameAndEmail(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	id, _ := m.Create(ctx, NewAccount{Username: "alice", Email: "a@example.com"})

	for _, ident := range []string{"alice", "a@example.com"} {
		acc, err := m.FindByIdentifier(ctx, ident)
		if err != nil {
			t.Fatalf("find %q: %v", ident, err)
		}
		if acc.ID != id {
			t.Fatalf("find %q returned %q", ident, acc.ID)
		}
	}
	if _, err := m.FindByIdentifier(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRecordFailureLocksAtThreshold(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	id, _ := m.Create(ctx, NewAccount{Username: "alice", Email: "a@example.com"})
	now := time.Unix(1_700_000_000, 0)

	for i := 1; i <= 3; i++ {
		res, err := m.RecordFailure(ctx, id, 4, 15*time.Minute, now)
		if err != nil {
			t.Fatalf("record failure: %v", err)
		}
		if !res.LockedUntil.IsZero() {
			t.Fatalf("locked too early at attempt %d", i)
		}
	}
	res, _ := m.RecordFailure(ctx, id, 4, 15*time.Minute, now)
	if res.Attempts != 4 || !res.LockedUntil.Equal(now.Add(15*time.Minute)) {
		t.Fatalf("unexpected lock state %+v", res)
	}

	if err := m.RecordSuccess(ctx, id, now); err != nil {
		t.Fatalf("record success: %v", err)
	}
	acc, _ := m.FindByID(ctx, id)
	if acc.FailedAttempts != 0 || !acc.LockedUntil.IsZero() || !acc.LastLogin.Equal(now) {
		t.Fatalf("success did not reset account: %+v", acc)
	}
}

func TestMemoryRecordFailureConcurrentIncrementsAreNotLost(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	id, _ := m.Create(ctx, NewAccount{Username: "alice", Email: "a@example.com"})

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.RecordFailure(ctx, id, 1000, time.Minute, time.Now())
		}()
	}
	wg.Wait()

	acc, _ := m.FindByID(ctx, id)
	if acc.FailedAttempts != 64 {
		t.Fatalf("expected 64 attempts, got %d", acc.FailedAttempts)
	}
}

func TestMemoryBackupCodesReplaceAndConsumeOnce(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	id, _ := m.Create(ctx, NewAccount{Username: "alice", Email: "a@example.com"})

	if err := m.ReplaceBackupCodes(ctx, id, []string{"h1", "h2"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	first, _ := m.UnusedBackupCodes(ctx, id)
	if len(first) != 2 {
		t.Fatalf("expected 2 codes, got %d", len(first))
	}

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.ConsumeBackupCode(ctx, id, first[0].ID, time.Now())
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one consume, got %d", wins)
	}

	if err := m.ReplaceBackupCodes(ctx, id, []string{"h3"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if ok, _ := m.ConsumeBackupCode(ctx, id, first[1].ID, time.Now()); ok {
		t.Fatal("code from previous batch must be inert")
	}
}

func TestAccountPublicStripsHash(t *testing.T) {
	acc := &Account{ID: "1", PasswordHash: "secret"}
	pub := acc.Public()
	if pub.PasswordHash != "" {
		t.Fatal("expected hash stripped")
	}
	if acc.PasswordHash != "secret" {
		t.Fatal("original must not be mutated")
	}
}
