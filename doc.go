// Package goGuard protects a session-oriented web service against credential
// compromise and request replay. It combines password authentication with
// lockout, a TOTP second factor with backup-code recovery, sliding-window rate
// limits and the per-session anti-replay defenses of the replay package.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goGuard is the public surface. It exposes [Engine], [Builder], [Config] and value types
// ([LoginResult], [SessionState], [TOTPSetup]). Storage sits behind the credential,
// secrets and session interfaces; the rate limiter lives under internal/rate and is only
// reachable through [RateLedger].
//
// # Request flow
//
// A state-changing request passes the gate returned by [Engine.Gate] (CSRF, nonce,
// timing, duplicate) before the handler calls an Engine operation. Operations consult the
// rate limiter first, then the credential or secret store, and finally write session
// flags.
//
// # What this package must NOT do
//
//   - Log or audit plaintext passwords, TOTP secrets or backup codes.
//   - Tell callers whether an identifier exists: not-found and wrong-password both match
//     [ErrInvalidCredential].
//   - Import sub-packages that re-import goGuard (no import cycles).
package goGuard
