// Package credential defines the account and backup-code records consumed by the
// goGuard engine, the [Store] contract that persists them, and an in-memory
// implementation used by tests and single-process deployments.
//
// # Atomicity contract
//
// Implementations must make [Store.RecordFailure], [Store.Create] and
// [Store.ConsumeBackupCode] atomic per account: two concurrent callers must never
// both observe the same pre-update state.
//
// # What this package must NOT do
//
//   - Hash or verify passwords (the engine owns hashing).
//   - Import goGuard or any other goGuard sub-package.
package credential
