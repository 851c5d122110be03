// Package limiters provides the recovery throttles and the per-record attempt
// guard.
//
//   - [RecoveryThrottle] is a fixed-window Redis counter keyed by identifier,
//     record UID and client IP for create and resend.
//   - [AttemptGuard] is stateless. It decides lockout and expiry from the
//     counters held on a recovery record.
//
// The throttle is nil-safe: calling its methods on a nil receiver allows the
// request.
//
// # What this package must NOT do
//
//   - Import goRecover or any sibling internal package.
//   - Make policy decisions beyond counting. Flow functions decide consequences.
package limiters
