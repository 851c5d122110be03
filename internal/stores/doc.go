// Package stores provides the Redis-backed recovery record store.
//
// # Design
//
// Each user has at most one recovery record, reachable by its public UID and
// through a per-user index key. Records are versioned, binary-encoded and
// expire from Redis once their retention window has passed. Every mutation
// (open, reissue, verify) runs as a WATCH/MULTI optimistic transaction with
// bounded retry on contention, so concurrent verifications of the same code
// succeed at most once. Code comparison is constant-time.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for recovery records.
// Code generation is supplied by the caller through [MintFunc]; lockout and
// expiry thresholds come from a [limiters.AttemptGuard].
//
// # What this package must NOT do
//
//   - Import goRecover or internal/flows.
//   - Log or expose plaintext codes.
//   - Use non-constant-time comparisons for code matching.
package stores
