package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/replay"
	"github.com/pquerna/otp/totp"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	engine   *goGuard.Engine
	sessions *Sessions
	clock    *testClock
	server   *httptest.Server
	client   *http.Client
}

func newFixture(t *testing.T, routes func(f *fixture, mux *http.ServeMux)) *fixture {
	t.Helper()

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	cfg := goGuard.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.TOTP.BackupCodeHashCost = 4

	engine, err := goGuard.New().WithConfig(cfg).WithClock(clock.Now).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	tokens, err := jwt.NewManager(jwt.Config{
		TTL:           time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(strings.Repeat("k", 32)),
		Issuer:        "goGuard-test",
	})
	if err != nil {
		t.Fatal(err)
	}
	tokens = tokens.WithClock(clock.Now)

	f := &fixture{
		engine:   engine,
		sessions: NewSessions(engine, tokens, CookieOptions{}, nil),
		clock:    clock,
	}
	mux := http.NewServeMux()
	routes(f, mux)
	f.server = httptest.NewServer(f.sessions.Handler(mux))
	t.Cleanup(f.server.Close)

	jar := newJar()
	f.client = &http.Client{Jar: jar}
	return f
}

// simpleJar keeps the last value of each cookie regardless of domain.
type simpleJar struct {
	mu      sync.Mutex
	cookies map[string]*http.Cookie
}

func newJar() *simpleJar {
	return &simpleJar{cookies: map[string]*http.Cookie{}}
}

func (j *simpleJar) SetCookies(_ *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range cookies {
		if c.MaxAge < 0 {
			delete(j.cookies, c.Name)
			continue
		}
		j.cookies[c.Name] = c
	}
}

func (j *simpleJar) Cookies(*url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*http.Cookie, 0, len(j.cookies))
	for _, c := range j.cookies {
		out = append(out, c)
	}
	return out
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, map[string]string) {
	t.Helper()
	resp, err := f.client.Get(f.server.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	return resp, decode(t, resp)
}

func (f *fixture) post(t *testing.T, path string, form url.Values) (*http.Response, map[string]string) {
	t.Helper()
	resp, err := f.client.PostForm(f.server.URL+path, form)
	if err != nil {
		t.Fatal(err)
	}
	return resp, decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) map[string]string {
	t.Helper()
	defer resp.Body.Close()
	out := map[string]string{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return out
}

func sessionRoute(mux *http.ServeMux) {
	mux.HandleFunc("/sid", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"sid": SessionID(r.Context())})
	})
}

func TestSessionsStartsAndKeepsSession(t *testing.T) {
	f := newFixture(t, func(_ *fixture, mux *http.ServeMux) { sessionRoute(mux) })

	_, first := f.get(t, "/sid")
	if first["sid"] == "" {
		t.Fatal("expected a session id")
	}
	_, second := f.get(t, "/sid")
	if second["sid"] != first["sid"] {
		t.Fatalf("session changed between requests: %s -> %s", first["sid"], second["sid"])
	}
}

func TestSessionsReplacesTamperedCookie(t *testing.T) {
	f := newFixture(t, func(_ *fixture, mux *http.ServeMux) { sessionRoute(mux) })
	_, first := f.get(t, "/sid")

	req, _ := http.NewRequest(http.MethodGet, f.server.URL+"/sid", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "not-a-token"})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	body := decode(t, resp)
	if body["sid"] == "" || body["sid"] == first["sid"] {
		t.Fatalf("tampered cookie should yield a fresh session, got %q", body["sid"])
	}
}

func TestSessionsExpiredServerSideStartsFresh(t *testing.T) {
	f := newFixture(t, func(_ *fixture, mux *http.ServeMux) { sessionRoute(mux) })
	_, first := f.get(t, "/sid")

	if err := f.engine.Logout(t.Context(), first["sid"]); err != nil {
		t.Fatal(err)
	}
	_, second := f.get(t, "/sid")
	if second["sid"] == first["sid"] {
		t.Fatal("deleted session must not be reused")
	}
}

type formRecorder struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func formRoutes(rec *formRecorder, opts ...FormOption) func(f *fixture, mux *http.ServeMux) {
	return func(f *fixture, mux *http.ServeMux) {
		mux.HandleFunc("GET /form", func(w http.ResponseWriter, r *http.Request) {
			tokens, err := PrepareForm(f.engine, r, "contact")
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{
				FieldCSRFToken:    tokens.CSRFToken,
				FieldNonce:        tokens.Nonce,
				FieldSubmissionID: tokens.SubmissionID,
			})
		})
		mux.Handle("POST /form", SecureForm(f.engine, "contact", func(w http.ResponseWriter, r *http.Request) error {
			rec.mu.Lock()
			rec.calls++
			fail := rec.fail
			rec.mu.Unlock()
			if fail {
				writeError(w, http.StatusInternalServerError, "boom")
				return errors.New("boom")
			}
			writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
			return nil
		}, opts...))
	}
}

func tokenForm(body map[string]string) url.Values {
	return url.Values{
		FieldCSRFToken:    {body[FieldCSRFToken]},
		FieldNonce:        {body[FieldNonce]},
		FieldSubmissionID: {body[FieldSubmissionID]},
	}
}

func TestSecureFormAcceptsPreparedSubmission(t *testing.T) {
	rec := &formRecorder{}
	f := newFixture(t, formRoutes(rec))

	_, tokens := f.get(t, "/form")
	f.clock.Advance(3 * time.Second)

	resp, body := f.post(t, "/form", tokenForm(tokens))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body=%v", resp.StatusCode, body)
	}
	if rec.calls != 1 {
		t.Fatalf("handler calls = %d", rec.calls)
	}
}

func TestSecureFormStartsTimerOnGet(t *testing.T) {
	rec := &formRecorder{}
	f := newFixture(t, func(f *fixture, mux *http.ServeMux) {
		mux.Handle("/form", SecureForm(f.engine, "contact", func(w http.ResponseWriter, r *http.Request) error {
			if r.Method == http.MethodGet {
				info := replay.RequestInfo{ClientIP: "127.0.0.1", UserAgent: r.UserAgent(), Endpoint: r.URL.Path}
				tokens, err := f.engine.Guard().FormTokens(r.Context(), SessionID(r.Context()), info)
				if err != nil {
					writeError(w, http.StatusServiceUnavailable, err.Error())
					return err
				}
				writeJSON(w, http.StatusOK, map[string]string{
					FieldCSRFToken:    tokens.CSRFToken,
					FieldNonce:        tokens.Nonce,
					FieldSubmissionID: tokens.SubmissionID,
				})
				return nil
			}
			rec.mu.Lock()
			rec.calls++
			rec.mu.Unlock()
			writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
			return nil
		}))
	})

	resp, tokens := f.get(t, "/form")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET status = %d body=%v", resp.StatusCode, tokens)
	}
	f.clock.Advance(3 * time.Second)

	resp, body := f.post(t, "/form", tokenForm(tokens))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST status = %d body=%v", resp.StatusCode, body)
	}
	if rec.calls != 1 {
		t.Fatalf("handler calls = %d", rec.calls)
	}
}

func TestSecureFormRejections(t *testing.T) {
	rec := &formRecorder{}
	f := newFixture(t, formRoutes(rec))

	_, tokens := f.get(t, "/form")

	// Too fast.
	resp, body := f.post(t, "/form", tokenForm(tokens))
	if resp.StatusCode != http.StatusForbidden || body["reason"] != string(replay.ReasonTiming) {
		t.Fatalf("instant submit: status=%d body=%v", resp.StatusCode, body)
	}

	// The nonce was consumed by the previous attempt.
	f.clock.Advance(3 * time.Second)
	resp, body = f.post(t, "/form", tokenForm(tokens))
	if resp.StatusCode != http.StatusForbidden || body["reason"] != string(replay.ReasonNonce) {
		t.Fatalf("replayed nonce: status=%d body=%v", resp.StatusCode, body)
	}

	forged := tokenForm(tokens)
	forged.Set(FieldCSRFToken, "forged")
	resp, body = f.post(t, "/form", forged)
	if resp.StatusCode != http.StatusForbidden || body["reason"] != string(replay.ReasonCSRF) {
		t.Fatalf("forged csrf: status=%d body=%v", resp.StatusCode, body)
	}
	if body["error"] != replay.ReasonCSRF.Message() {
		t.Fatalf("error message = %q", body["error"])
	}

	if rec.calls != 0 {
		t.Fatalf("handler must not run on rejection, calls=%d", rec.calls)
	}
}

func TestSecureFormDuplicateSubmission(t *testing.T) {
	rec := &formRecorder{}
	f := newFixture(t, formRoutes(rec))

	_, first := f.get(t, "/form")
	f.clock.Advance(3 * time.Second)
	if resp, body := f.post(t, "/form", tokenForm(first)); resp.StatusCode != http.StatusOK {
		t.Fatalf("first submit: status=%d body=%v", resp.StatusCode, body)
	}

	_, second := f.get(t, "/form")
	f.clock.Advance(3 * time.Second)
	again := tokenForm(second)
	again.Set(FieldSubmissionID, first[FieldSubmissionID])
	resp, body := f.post(t, "/form", again)
	if resp.StatusCode != http.StatusForbidden || body["reason"] != string(replay.ReasonDuplicate) {
		t.Fatalf("duplicate: status=%d body=%v", resp.StatusCode, body)
	}
}

func TestSecureFormReleasesSubmissionOnHandlerError(t *testing.T) {
	rec := &formRecorder{fail: true}
	f := newFixture(t, formRoutes(rec))

	_, first := f.get(t, "/form")
	f.clock.Advance(3 * time.Second)
	if resp, _ := f.post(t, "/form", tokenForm(first)); resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("failing handler: status=%d", resp.StatusCode)
	}

	rec.mu.Lock()
	rec.fail = false
	rec.mu.Unlock()

	_, second := f.get(t, "/form")
	f.clock.Advance(3 * time.Second)
	retry := tokenForm(second)
	retry.Set(FieldSubmissionID, first[FieldSubmissionID])
	if resp, body := f.post(t, "/form", retry); resp.StatusCode != http.StatusOK {
		t.Fatalf("retry with released id: status=%d body=%v", resp.StatusCode, body)
	}
}

func TestSecureFormCustomGate(t *testing.T) {
	rec := &formRecorder{}
	f := newFixture(t, func(fx *fixture, mux *http.ServeMux) {
		formRoutes(rec, WithGate(fx.engine.Gate().With(replay.BotCheck())))(fx, mux)
	})

	_, tokens := f.get(t, "/form")
	f.clock.Advance(3 * time.Second)

	req, _ := http.NewRequest(http.MethodPost, f.server.URL+"/form", strings.NewReader(tokenForm(tokens).Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "curl/8.0")
	req.Header.Set("Accept", "*/*")
	resp, err := f.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	body := decode(t, resp)
	if resp.StatusCode != http.StatusForbidden || body["reason"] != string(replay.ReasonBot) {
		t.Fatalf("bot: status=%d body=%v", resp.StatusCode, body)
	}
}

func accessRoutes(f *fixture, mux *http.ServeMux) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
	})
	mux.Handle("/members", RequireAuthenticated(ok))
	mux.Handle("/secure", RequireTOTP(ok))
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		res, err := f.engine.Login(r.Context(), SessionID(r.Context()), r.FormValue("username"), r.FormValue("password"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if err := f.sessions.Rotate(w, r, res.SessionID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"sid": SessionID(r.Context())})
	})
}

func TestAccessGuards(t *testing.T) {
	f := newFixture(t, accessRoutes)
	ctx := t.Context()
	id, err := f.engine.Register(ctx, goGuard.RegisterRequest{
		Username: "alice", Email: "alice@example.com", Password: "correct-horse", ConfirmPassword: "correct-horse",
	})
	if err != nil {
		t.Fatal(err)
	}

	if resp, _ := f.get(t, "/members"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous /members = %d", resp.StatusCode)
	}
	if resp, _ := f.get(t, "/secure"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous /secure = %d", resp.StatusCode)
	}

	if _, err := f.engine.SetupTOTP(ctx, id); err != nil {
		t.Fatal(err)
	}
	// Enrollment is unconfirmed, so login does not ask for a code yet.
	resp, body := f.post(t, "/login", url.Values{"username": {"alice"}, "password": {"correct-horse"}})
	if resp.StatusCode != http.StatusOK || body["sid"] == "" {
		t.Fatalf("login: status=%d body=%v", resp.StatusCode, body)
	}
	if resp, _ := f.get(t, "/secure"); resp.StatusCode != http.StatusOK {
		t.Fatalf("/secure after login = %d", resp.StatusCode)
	}
}

func TestRequireTOTPBlocksPendingSecondFactor(t *testing.T) {
	f := newFixture(t, accessRoutes)
	ctx := t.Context()
	id, err := f.engine.Register(ctx, goGuard.RegisterRequest{
		Username: "bob", Email: "bob@example.com", Password: "correct-horse", ConfirmPassword: "correct-horse",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := enableTOTP(f, id); err != nil {
		t.Fatal(err)
	}

	if resp, _ := f.post(t, "/login", url.Values{"username": {"bob"}, "password": {"correct-horse"}}); resp.StatusCode != http.StatusOK {
		t.Fatalf("login = %d", resp.StatusCode)
	}
	if resp, _ := f.get(t, "/members"); resp.StatusCode != http.StatusOK {
		t.Fatalf("/members with pending totp = %d", resp.StatusCode)
	}
	if resp, body := f.get(t, "/secure"); resp.StatusCode != http.StatusForbidden || body["error"] != "second factor required" {
		t.Fatalf("/secure with pending totp = %d %v", resp.StatusCode, body)
	}
}

func enableTOTP(f *fixture, accountID string) error {
	setup, err := f.engine.SetupTOTP(context.Background(), accountID)
	if err != nil {
		return err
	}
	code, err := totp.GenerateCode(setup.Secret, f.clock.Now())
	if err != nil {
		return err
	}
	return f.engine.VerifyTOTPSetup(context.Background(), accountID, code)
}
