// Package audit records recovery verification outcomes.
//
// # Components
//
//   - [Sink]: synchronous event recorder (channel, JSON writer, Redis stream, no-op).
//   - [Dispatcher]: buffered async mirror with drop-if-full / block-if-full semantics.
//   - [Event]: verification outcome with record id, type, attempts and masked destination.
//
// # Architecture boundaries
//
// This package owns event serialization and sink delivery. It does NOT decide
// which events to emit or whether a sink failure blocks a credential; the
// Engine and flow functions do.
//
// # What this package must NOT do
//
//   - Accept or persist submitted codes.
//   - Import goRecover or any sibling internal package.
package audit
