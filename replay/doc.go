// Package replay implements goGuard's per-request anti-replay defenses on top of
// session.Store: CSRF tokens, single-use nonces, form-fill timing windows,
// submission deduplication, captcha challenges and bot-signature detection.
//
// # Gate
//
// A [Gate] is an ordered list of [Check] functions run against a [Submission].
// The first failing check short-circuits and is reported as a [*Rejection]
// carrying a distinct reason so attack classes can be told apart in logs.
// [DefaultGate] runs CSRF, nonce, timing and duplicate checks in that order.
//
// # Atomicity
//
// Every consume-and-check step (nonce, form mark, submission id) is delegated
// to a single atomic store call. The guard never reads then writes.
//
// # What this package must NOT do
//
//   - Import goGuard (no upward imports).
//   - Log full tokens or nonces; only short prefixes.
//   - Authenticate users.
package replay
