package goGuard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/credential"
	"github.com/MrEthical07/goGuard/secrets"
	"github.com/MrEthical07/goGuard/session"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	// 15s into a TOTP step so one-step offsets stay inside their own step.
	return &fakeClock{now: time.Unix(1_700_000_025, 0).UTC()}
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

// testConfig keeps hashing cheap.
func testConfig() Config {
	cfg := defaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.TOTP.BackupCodeHashCost = 4
	cfg.Metrics.Enabled = true
	return cfg
}

type testEngine struct {
	*Engine
	clock        *fakeClock
	creds        *credential.Memory
	secretStore  *secrets.Memory
	sessionStore *session.Memory
}

func newTestEngine(t testing.TB, cfg Config, extra ...func(*Builder)) *testEngine {
	t.Helper()

	clock := newFakeClock()
	creds := credential.NewMemory()
	secretStore := secrets.NewMemory()
	sessions := session.NewMemory(session.WithMemoryClock(clock.Now))

	b := New().
		WithConfig(cfg).
		WithClock(clock.Now).
		WithCredentialStore(creds).
		WithSecretStore(secretStore).
		WithSessionStore(sessions)
	for _, fn := range extra {
		fn(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{
		Engine:       engine,
		clock:        clock,
		creds:        creds,
		secretStore:  secretStore,
		sessionStore: sessions,
	}
}

const testPassword = "correct-horse"

func (te *testEngine) register(t testing.TB, username string) string {
	t.Helper()
	id, err := te.Register(context.Background(), RegisterRequest{
		Username:        username,
		Email:           username + "@example.com",
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	if err != nil {
		t.Fatalf("Register(%q) failed: %v", username, err)
	}
	return id
}

// enroll runs SetupTOTP and VerifyTOTPSetup and returns the secret and
// backup codes.
func (te *testEngine) enroll(t testing.TB, accountID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	setup, err := te.SetupTOTP(ctx, accountID)
	if err != nil {
		t.Fatalf("SetupTOTP failed: %v", err)
	}
	if err := te.VerifyTOTPSetup(ctx, accountID, te.codeAt(t, setup.Secret, 0)); err != nil {
		t.Fatalf("VerifyTOTPSetup failed: %v", err)
	}
	return setup.Secret, setup.BackupCodes
}

// codeAt returns the TOTP code offset by steps periods from the clock.
func (te *testEngine) codeAt(t testing.TB, secret string, steps int) string {
	t.Helper()
	at := te.clock.Now().Add(time.Duration(steps) * time.Duration(te.config.TOTP.Period) * time.Second)
	code, err := te.totp.code(secret, at)
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	return code
}
