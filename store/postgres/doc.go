// Package postgres implements credential.Store and the rate-limit ledger on
// PostgreSQL through a pgx connection pool.
//
// Tables are created by [DB.EnsureSchema]. Uniqueness and lockout counters
// are enforced by the database so several service instances can share one
// schema.
package postgres
