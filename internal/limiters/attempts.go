package limiters

import (
	"math"
	"time"
)

// AttemptGuard decides lockout and expiry for a single recovery record. It is
// stateless; the counter lives on the record and is advanced inside the
// store's transaction.
type AttemptGuard struct {
	MaxAttempts int
}

func NewAttemptGuard(maxAttempts int) AttemptGuard {
	return AttemptGuard{MaxAttempts: maxAttempts}
}

// IsLocked reports whether attempts has reached the ceiling.
func (g AttemptGuard) IsLocked(attempts uint16) bool {
	return g.MaxAttempts > 0 && int(attempts) >= g.MaxAttempts
}

// RecordFailure returns the next attempt count. It saturates instead of wrapping.
func (g AttemptGuard) RecordFailure(attempts uint16) uint16 {
	if attempts == math.MaxUint16 {
		return attempts
	}
	return attempts + 1
}

// ShouldExpireNow reports whether a record with expiresAt (unix seconds) is
// past its validity window at now.
func (g AttemptGuard) ShouldExpireNow(expiresAt int64, now time.Time) bool {
	return now.Unix() > expiresAt
}
