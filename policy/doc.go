// Package policy evaluates candidate passwords against the configured
// complexity rules and the owner's profile attributes.
//
// # Rules
//
// Validation reports every violation found rather than stopping at the first
// one. Byte safety is always evaluated. Strength scoring is expensive and only
// runs when the cheaper rules (length, content, alpha+numeric, byte safety)
// found nothing.
//
// # Architecture boundaries
//
// This package performs no I/O of its own. The only external call is the
// caller-supplied [Scorer]; [ZxcvbnScorer] is the default.
package policy
