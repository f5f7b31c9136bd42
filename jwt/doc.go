// Package jwt signs and verifies the session cookie value. A cookie carries only
// the session id plus registered claims; all session state stays in the
// session store.
package jwt
