// Package session owns browser-session state for goGuard: the authentication flags
// read by the presentation layer and the per-session anti-replay structures (CSRF
// token, nonce map, form timing records, submission dedup set, captcha answer).
//
// # Stores
//
// [Memory] keeps everything in process with one mutex per session. [Redis] keeps a
// hash per session plus side keys for nonces, form marks and submissions, and uses
// Lua scripts so every consume-and-check step is a single round trip.
//
// # Atomicity contract
//
// [Store.TakeNonce], [Store.TakeForm] and [Store.RecordSubmission] must be atomic
// with respect to concurrent requests on the same session. Two callers racing on the
// same nonce or submission id must not both succeed.
//
// # What this package must NOT do
//
//   - Import goGuard or the replay package (no upward imports).
//   - Decide whether a token is valid; it only stores and atomically hands back state.
package session
