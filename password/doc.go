// Package password implements Argon2id hashing and verification for the
// SQL-backed password store.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters, and
// [Argon2.MatchesAny] checks a candidate against a password history.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Enforce password policy (see package policy).
//   - Log plaintext passwords or hash parameters at runtime.
package password
