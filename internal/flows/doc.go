// Package flows contains the orchestrators behind every Engine operation.
//
// Each flow function (RunCreateRecovery, RunValidateRecovery,
// RunChangePassword, etc.) accepts a typed dependency struct and returns
// results without side-effects beyond those dependencies. Collaborator calls,
// metric ids, audit event names and public errors are all injected, so the
// state machine can be tested with plain function fakes.
//
// # Architecture boundaries
//
// Flow functions coordinate the recovery store, the request throttle, the
// method selector, delivery, the event log and the credential issuer. They do
// NOT own any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goRecover (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency funcs.
package flows
