// Package middleware adapts a goGuard.Engine to net/http.
//
// # Sessions
//
// [Sessions] verifies the signed session cookie, loads the session or starts
// an anonymous one, and exposes the id and flags through [SessionID] and
// [SessionState]. Handlers call [Sessions.Rotate] after a login so the
// cookie follows the rotated session id.
//
// # Forms
//
// [SecureForm] runs the engine's gate (CSRF, nonce, timing, duplicate) on every
// state-changing request before the wrapped [FormHandler]. [PrepareForm]
// issues the tokens a form must carry and starts its timer.
//
// # Access
//
// [RequireAuthenticated] and [RequireTOTP] guard pages by session flags.
//
// This package makes no authentication decisions of its own; every check is
// delegated to the engine or its replay guard.
package middleware
