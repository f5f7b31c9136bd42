// Package rate provides the sliding-window limiter used by goGuard for
// registration, login and second-factor attempts.
//
// # Window semantics
//
// Each identifier owns a ledger of attempt timestamps. A check prunes that
// identifier's entries older than now-window, counts the rest, and appends a new
// entry only when the count is below the policy maximum. The three steps run as
// one atomic unit inside the [Ledger] implementation:
//   - [RedisLedger]: one Lua script over a sorted set per identifier
//   - [MemoryLedger]: a single mutex
//   - store/postgres.Ledger: a transaction holding an advisory lock
//
// # Failure policy
//
// [Limiter.Allow] fails open. A ledger error is logged, reported through the
// error hook and the attempt is allowed.
//
// # What this package must NOT do
//
//   - Decide which identifiers to use (the engine owns the naming).
//   - Be imported outside the goGuard module.
package rate
