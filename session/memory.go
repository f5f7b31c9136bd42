package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var _ Store = (*Memory)(nil)

type memEntry struct {
	mu      sync.Mutex
	sess    Session
	nonces  map[string]NonceMeta
	forms   map[string]time.Time
	subs    []string
	subSeen map[string]struct{}
}

// Memory is an in-process Store. Sessions on different ids never contend on
// the same lock after lookup.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
	now     func() time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithMemoryClock overrides the clock used for expiry checks.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory returns an empty store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]*memEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create stores sess until ttl elapses.
func (m *Memory) Create(_ context.Context, sess *Session, ttl time.Duration) error {
	e := &memEntry{
		sess:    *sess,
		nonces:  make(map[string]NonceMeta),
		forms:   make(map[string]time.Time),
		subSeen: make(map[string]struct{}),
	}
	if e.sess.CreatedAt.IsZero() {
		e.sess.CreatedAt = m.now()
	}
	if ttl > 0 {
		e.sess.ExpiresAt = e.sess.CreatedAt.Add(ttl)
	}

	m.mu.Lock()
	m.entries[sess.ID] = e
	m.mu.Unlock()
	return nil
}

// lock returns the live entry for id with its mutex held.
func (m *Memory) lock(id string) (*memEntry, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	if !e.sess.ExpiresAt.IsZero() && !m.now().Before(e.sess.ExpiresAt) {
		e.mu.Unlock()
		m.mu.Lock()
		if m.entries[id] == e {
			delete(m.entries, id)
		}
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	return e, nil
}

// Get returns a copy of the session, or ErrNotFound once it expired.
func (m *Memory) Get(_ context.Context, id string) (*Session, error) {
	e, err := m.lock(id)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	out := e.sess
	return &out, nil
}

// Delete drops the session entry, which holds all of its replay state.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	return nil
}

// SetFlags replaces the authentication flags.
func (m *Memory) SetFlags(_ context.Context, id string, flags Flags) error {
	e, err := m.lock(id)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	e.sess.AccountID = flags.AccountID
	e.sess.Username = flags.Username
	e.sess.Authenticated = flags.Authenticated
	e.sess.RequiresTOTP = flags.RequiresTOTP
	e.sess.TOTPVerified = flags.TOTPVerified
	return nil
}

// EnsureCSRF keeps a token younger than ttl or installs candidate.
func (m *Memory) EnsureCSRF(_ context.Context, id, candidate string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	e, err := m.lock(id)
	if err != nil {
		return "", time.Time{}, err
	}
	defer e.mu.Unlock()

	if e.sess.CSRFToken != "" && now.Sub(e.sess.CSRFIssuedAt) <= ttl {
		return e.sess.CSRFToken, e.sess.CSRFIssuedAt, nil
	}
	e.sess.CSRFToken = candidate
	e.sess.CSRFIssuedAt = now
	return candidate, now, nil
}

// SetCaptcha replaces the pending captcha answer.
func (m *Memory) SetCaptcha(_ context.Context, id, text string, at time.Time) error {
	e, err := m.lock(id)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	e.sess.CaptchaText = text
	e.sess.CaptchaIssuedAt = at
	return nil
}

// ClearCaptcha removes the pending captcha answer.
func (m *Memory) ClearCaptcha(_ context.Context, id string) error {
	e, err := m.lock(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	defer e.mu.Unlock()

	e.sess.CaptchaText = ""
	e.sess.CaptchaIssuedAt = time.Time{}
	return nil
}

// PutNonce prunes stale nonces, stores nonce and evicts the oldest past max.
func (m *Memory) PutNonce(_ context.Context, id, nonce string, meta NonceMeta, window time.Duration, max int) error {
	e, err := m.lock(id)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	for n, old := range e.nonces {
		if meta.IssuedAt.Sub(old.IssuedAt) > window {
			delete(e.nonces, n)
		}
	}
	e.nonces[nonce] = meta

	if max > 0 && len(e.nonces) > max {
		type aged struct {
			nonce string
			at    time.Time
		}
		all := make([]aged, 0, len(e.nonces))
		for n, md := range e.nonces {
			all = append(all, aged{nonce: n, at: md.IssuedAt})
		}
		sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
		for _, a := range all[:len(all)-max] {
			delete(e.nonces, a.nonce)
		}
	}
	return nil
}

// TakeNonce removes nonce under the session lock.
func (m *Memory) TakeNonce(_ context.Context, id, nonce string) (NonceMeta, bool, error) {
	e, err := m.lock(id)
	if err != nil {
		return NonceMeta{}, false, err
	}
	defer e.mu.Unlock()

	meta, ok := e.nonces[nonce]
	if ok {
		delete(e.nonces, nonce)
	}
	return meta, ok, nil
}

// MarkForm records when formID was rendered.
func (m *Memory) MarkForm(_ context.Context, id, formID string, at time.Time) error {
	e, err := m.lock(id)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	e.forms[formID] = at
	return nil
}

// TakeForm removes and returns the start mark of formID.
func (m *Memory) TakeForm(_ context.Context, id, formID string) (time.Time, bool, error) {
	e, err := m.lock(id)
	if err != nil {
		return time.Time{}, false, err
	}
	defer e.mu.Unlock()

	at, ok := e.forms[formID]
	if ok {
		delete(e.forms, formID)
	}
	return at, ok, nil
}

// RecordSubmission adds submissionID unless present, trimming to keep past capacity.
func (m *Memory) RecordSubmission(_ context.Context, id, submissionID string, capacity, keep int) (bool, error) {
	e, err := m.lock(id)
	if err != nil {
		return false, err
	}
	defer e.mu.Unlock()

	if _, seen := e.subSeen[submissionID]; seen {
		return false, nil
	}
	e.subs = append(e.subs, submissionID)
	e.subSeen[submissionID] = struct{}{}

	if capacity > 0 && len(e.subs) > capacity {
		if keep < 0 {
			keep = 0
		}
		drop := e.subs[:len(e.subs)-keep]
		for _, s := range drop {
			delete(e.subSeen, s)
		}
		e.subs = append([]string(nil), e.subs[len(e.subs)-keep:]...)
	}
	return true, nil
}

// ReleaseSubmission removes submissionID so it may be submitted again.
func (m *Memory) ReleaseSubmission(_ context.Context, id, submissionID string) error {
	e, err := m.lock(id)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	if _, seen := e.subSeen[submissionID]; !seen {
		return nil
	}
	delete(e.subSeen, submissionID)
	for i, s := range e.subs {
		if s == submissionID {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			break
		}
	}
	return nil
}

// Sweep drops expired sessions. It is housekeeping only; lookups already
// refuse expired entries.
func (m *Memory) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, e := range m.entries {
		e.mu.Lock()
		expired := !e.sess.ExpiresAt.IsZero() && !now.Before(e.sess.ExpiresAt)
		e.mu.Unlock()
		if expired {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored sessions, including expired ones not yet
// swept.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
