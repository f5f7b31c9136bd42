package rate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newRedisLedger(t *testing.T) *RedisLedger {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewRedisLedger(rdb, "rl")
}

func eachLedger(t *testing.T, fn func(t *testing.T, l Ledger)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryLedger()) })
	t.Run("redis", func(t *testing.T) { fn(t, newRedisLedger(t)) })
}

func TestLimiterRegistrationBudget(t *testing.T) {
	eachLedger(t, func(t *testing.T, ledger Ledger) {
		clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
		l := New(ledger, WithClock(clock.Now))
		ctx := context.Background()
		p := Policy{Max: 3, Window: time.Hour}

		for i := 0; i < 3; i++ {
			if !l.Allow(ctx, "10.0.0.1", p) {
				t.Fatalf("attempt %d should be allowed", i+1)
			}
			clock.Advance(time.Minute)
		}
		if l.Allow(ctx, "10.0.0.1", p) {
			t.Fatal("fourth attempt should be denied")
		}

		clock.Advance(time.Hour)
		if !l.Allow(ctx, "10.0.0.1", p) {
			t.Fatal("attempt after the window should be allowed")
		}
	})
}

func TestLimiterDeniedAttemptsAreNotRecorded(t *testing.T) {
	eachLedger(t, func(t *testing.T, ledger Ledger) {
		clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
		l := New(ledger, WithClock(clock.Now))
		ctx := context.Background()
		p := Policy{Max: 2, Window: 10 * time.Minute}

		l.Allow(ctx, "id", p)
		clock.Advance(5 * time.Minute)
		l.Allow(ctx, "id", p)
		for i := 0; i < 10; i++ {
			if l.Allow(ctx, "id", p) {
				t.Fatal("expected denial while budget is spent")
			}
		}

		// First entry leaves the window; denials must not have extended it.
		clock.Advance(5*time.Minute + time.Second)
		if !l.Allow(ctx, "id", p) {
			t.Fatal("expected a slot to open after the first entry aged out")
		}
	})
}

func TestLimiterIdentifiersAreIndependent(t *testing.T) {
	eachLedger(t, func(t *testing.T, ledger Ledger) {
		l := New(ledger)
		ctx := context.Background()
		short := Policy{Max: 1, Window: time.Minute}
		long := Policy{Max: 1, Window: time.Hour}

		if !l.Allow(ctx, "login_10.0.0.1", short) {
			t.Fatal("first login attempt denied")
		}
		if !l.Allow(ctx, "10.0.0.1", long) {
			t.Fatal("separate identifier should have its own budget")
		}
		if l.Allow(ctx, "login_10.0.0.1", short) {
			t.Fatal("second login attempt should be denied")
		}
	})
}

func TestLimiterCheckRetryAfter(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := New(NewMemoryLedger(), WithClock(clock.Now))
	ctx := context.Background()
	p := Policy{Max: 1, Window: 15 * time.Minute}

	if _, err := l.Check(ctx, "totp_a1", p); err != nil {
		t.Fatalf("first check: %v", err)
	}
	clock.Advance(5 * time.Minute)
	d, err := l.Check(ctx, "totp_a1", p)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if got := d.RetryAfter(clock.Now(), p.Window); got != 10*time.Minute {
		t.Fatalf("RetryAfter = %v, want 10m", got)
	}
}

func TestLimiterConcurrentBudget(t *testing.T) {
	eachLedger(t, func(t *testing.T, ledger Ledger) {
		l := New(ledger)
		ctx := context.Background()
		p := Policy{Max: 5, Window: time.Minute}

		var allowed int32
		var wg sync.WaitGroup
		for i := 0; i < 40; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if l.Allow(ctx, "burst", p) {
					atomic.AddInt32(&allowed, 1)
				}
			}()
		}
		wg.Wait()

		if allowed != 5 {
			t.Fatalf("expected exactly 5 allowed, got %d", allowed)
		}
	})
}

type failingLedger struct{}

func (failingLedger) Record(context.Context, string, time.Time, time.Duration, int) (Decision, error) {
	return Decision{}, ErrLedgerUnavailable
}

func TestLimiterFailsOpen(t *testing.T) {
	var hooked int32
	l := New(failingLedger{}, WithErrorHook(func(string, error) {
		atomic.AddInt32(&hooked, 1)
	}))

	if !l.Allow(context.Background(), "id", Policy{Max: 1, Window: time.Minute}) {
		t.Fatal("ledger failure must allow the attempt")
	}
	if hooked != 1 {
		t.Fatalf("expected error hook once, got %d", hooked)
	}
}

func TestRedisLedgerUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	ledger := NewRedisLedger(rdb, "")
	mr.Close()

	_, err = ledger.Record(context.Background(), "id", time.Now(), time.Minute, 3)
	if !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("expected ErrLedgerUnavailable, got %v", err)
	}
}

func TestDisabledPolicyAllows(t *testing.T) {
	l := New(NewMemoryLedger())
	for i := 0; i < 10; i++ {
		if !l.Allow(context.Background(), "id", Policy{}) {
			t.Fatal("zero policy should never deny")
		}
	}
}
