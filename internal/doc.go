// Package internal contains helpers that are private to goRecover: recovery
// code generation, salted digests and at-rest sealing.
//
// # Sub-packages
//
//   - audit: event sinks and the async mirror dispatcher
//   - flows: pure-function orchestrators for every Engine operation
//   - limiters: recovery throttles and the attempt guard
//   - selector: eligible channel resolution and destination masking
//   - stores: Redis recovery record store
//   - notify: localized recovery message rendering
//   - database, repository: SQL users, password history and MFA methods
//   - directory: TOML personnel roster
//   - mailer: SMTP, SES and log transports
//   - httpapi, server, config: the recoveryd service
//   - testutil: in-memory collaborators for tests
//
// # What this package must NOT do
//
//   - Export types that appear in the public goRecover API.
//   - Be imported by any package outside the goRecover module.
package internal
