// Package goRecover provides a self-service credential recovery engine: users
// identified against a directory receive a one-time code over email, a
// supervisor or a verified MFA device, and exchange it for a short-lived reset
// token that authorizes a single password change.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goRecover is the public surface. It exposes [Engine], [Builder], [Config],
// the collaborator interfaces ([DirectoryLookup], [UserStore],
// [PasswordStore], [Mailer], [MfaGateway], [EventLog]) and value types.
// Flow orchestration, the Redis record store, attempt accounting, code
// sealing and audit dispatch live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or record encoding in its public API.
//   - Persist a recovery code in plaintext. Records hold a salted digest and a
//     sealed copy only.
//   - Issue a reset token before the verification event has been recorded.
//   - Import any sub-package that re-imports goRecover (no import cycles).
//
// # Record lifecycle
//
// A user has at most one recovery record. CreateRecovery opens it or returns
// the pending one; ValidateRecovery consumes it on success and counts a failed
// attempt otherwise. A record is locked once its attempts reach
// Recovery.MaxAttempts and stays locked until it ages out of Redis.
package goRecover
