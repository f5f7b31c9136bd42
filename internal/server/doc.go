// Package server is the JSON HTTP API served by guardd.
//
// Form endpoints answer GET with hidden tokens (csrf_token, nonce,
// submission_id) and accept form-encoded POSTs carrying them back. Every
// response body is JSON.
package server
