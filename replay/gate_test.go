package replay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/session"
)

func validSubmission(t *testing.T, g *Guard, clock *fakeClock) *Submission {
	t.Helper()
	ctx := context.Background()
	info := RequestInfo{ClientIP: "10.0.0.1", UserAgent: "Mozilla/5.0", Endpoint: "/login"}

	tokens, err := g.FormTokens(ctx, "s1", info)
	if err != nil {
		t.Fatalf("FormTokens: %v", err)
	}
	if err := g.MarkFormStart(ctx, "s1", "login"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	clock.Advance(3 * time.Second)

	return &Submission{
		SessionID:    "s1",
		FormID:       "login",
		CSRFToken:    tokens.CSRFToken,
		Nonce:        tokens.Nonce,
		SubmissionID: tokens.SubmissionID,
		Accept:       "text/html",
		Request:      info,
	}
}

func TestGatePassesValidSubmission(t *testing.T) {
	g, clock := memoryFixture(t, nil)
	sub := validSubmission(t, g, clock)

	if err := DefaultGate(g).Check(context.Background(), sub); err != nil {
		t.Fatalf("valid submission rejected: %v", err)
	}
	if !sub.Recorded() {
		t.Fatal("expected submission id to be recorded")
	}
}

func TestGateRejectionReasons(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Submission, *fakeClock)
		reason Reason
	}{
		{"csrf", func(s *Submission, _ *fakeClock) { s.CSRFToken = "forged" }, ReasonCSRF},
		{"nonce", func(s *Submission, _ *fakeClock) { s.Nonce = "0000000000000000" }, ReasonNonce},
		{"timing", func(s *Submission, _ *fakeClock) { s.FormID = "other" }, ReasonTiming},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, clock := memoryFixture(t, nil)
			sub := validSubmission(t, g, clock)
			tc.mutate(sub, clock)

			var observed *Rejection
			gate := DefaultGate(g).OnReject(func(_ context.Context, _ *Submission, r *Rejection) {
				observed = r
			})

			err := gate.Check(context.Background(), sub)
			r, ok := AsRejection(err)
			if !ok {
				t.Fatalf("expected *Rejection, got %v", err)
			}
			if r.Reason != tc.reason || r.Message != tc.reason.Message() {
				t.Fatalf("unexpected rejection %+v", r)
			}
			if observed != r {
				t.Fatal("reject hook not called with the rejection")
			}
		})
	}
}

func TestGateShortCircuitsInOrder(t *testing.T) {
	g, clock := memoryFixture(t, nil)
	sub := validSubmission(t, g, clock)
	sub.CSRFToken = "forged"

	err := DefaultGate(g).Check(context.Background(), sub)
	r, _ := AsRejection(err)
	if r == nil || r.Reason != ReasonCSRF {
		t.Fatalf("expected csrf rejection, got %v", err)
	}

	// CSRF failed first, so the nonce is still unspent.
	if err := g.ValidateNonce(context.Background(), "s1", sub.Nonce, sub.Request); err != nil {
		t.Fatalf("nonce should not have been consumed: %v", err)
	}
}

func TestGateReplayIsDuplicate(t *testing.T) {
	g, clock := memoryFixture(t, nil)
	ctx := context.Background()
	sub := validSubmission(t, g, clock)
	gate := DefaultGate(g)

	if err := gate.Check(ctx, sub); err != nil {
		t.Fatalf("first submission rejected: %v", err)
	}

	// A replay with a fresh nonce and timing mark but the same submission id.
	replayed := validSubmission(t, g, clock)
	replayed.SubmissionID = sub.SubmissionID
	err := gate.Check(ctx, replayed)
	if r, ok := AsRejection(err); !ok || r.Reason != ReasonDuplicate {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if replayed.Recorded() {
		t.Fatal("rejected submission must not be marked recorded")
	}
}

func TestGateWithBotAndCaptcha(t *testing.T) {
	g, clock := memoryFixture(t, nil)
	ctx := context.Background()

	sub := validSubmission(t, g, clock)
	sub.Request.UserAgent = "curl/8.0"
	gate := NewGate(BotCheck()).With(DefaultGate(g).checks...)
	if r, ok := AsRejection(gate.Check(ctx, sub)); !ok || r.Reason != ReasonBot {
		t.Fatalf("expected bot rejection, got %+v", r)
	}

	sub = validSubmission(t, g, clock)
	if _, err := g.IssueCaptcha(ctx, "s1"); err != nil {
		t.Fatalf("issue captcha: %v", err)
	}
	sub.CaptchaAnswer = "nope"
	err := DefaultGate(g).With(CaptchaCheck(g)).Check(ctx, sub)
	if r, ok := AsRejection(err); !ok || r.Reason != ReasonCaptcha {
		t.Fatalf("expected captcha rejection, got %v", err)
	}
}

type brokenStore struct {
	session.Store
}

var errBackend = errors.New("backend down")

func (brokenStore) Get(context.Context, string) (*session.Session, error) {
	return nil, errBackend
}

func TestGateStoreFailureIsNotARejection(t *testing.T) {
	clock := newFakeClock()
	g := newGuard(t, brokenStore{Store: session.NewMemory()}, clock, nil)

	err := DefaultGate(g).Check(context.Background(), &Submission{SessionID: "s1", CSRFToken: "x"})
	if _, ok := AsRejection(err); ok {
		t.Fatal("store failure must not be reported as a rejection")
	}
	if !errors.Is(err, errBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
}
