// Package internal holds helpers private to goGuard: random tokens and
// session ids, plus the short identifiers used in logs.
//
// # Sub-packages
//
//   - config: environment configuration for cmd/guardd
//   - logger: zap construction from a level string
//   - rate: sliding-window limiter with Redis and memory ledgers
//   - server: the HTTP surface served by cmd/guardd
package internal
