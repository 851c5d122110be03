package goRecover

import (
	"errors"
	"strings"

	"github.com/MrEthical07/goRecover/policy"
)

var (
	// ErrNotFound is returned for unknown users, unknown recoveries and hidden
	// users. The three cases are indistinguishable to callers.
	ErrNotFound = errors.New("not found")
	// ErrAccountLocked is an exported constant or variable used by the recovery engine.
	ErrAccountLocked = errors.New("account locked")
	// ErrInvalidInput is an exported constant or variable used by the recovery engine.
	ErrInvalidInput = errors.New("invalid input")
	// ErrMethodUnavailable is an exported constant or variable used by the recovery engine.
	ErrMethodUnavailable = errors.New("recovery method unavailable")
	// ErrRateLimited is an exported constant or variable used by the recovery engine.
	ErrRateLimited = errors.New("too many attempts")
	// ErrInvalidCode is an exported constant or variable used by the recovery engine.
	ErrInvalidCode = errors.New("invalid recovery code")
	// ErrExpired is returned when a correct code is submitted after expiry. A
	// fresh code has already been delivered when it is returned.
	ErrExpired = errors.New("recovery code expired")
	// ErrPolicyViolation is an exported constant or variable used by the recovery engine.
	ErrPolicyViolation = errors.New("password policy violation")
	// ErrUpstreamUnavailable is an exported constant or variable used by the recovery engine.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrEngineNotReady is an exported constant or variable used by the recovery engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrCaptchaRequired is an exported constant or variable used by the recovery engine.
	ErrCaptchaRequired = errors.New("captcha token required")
	// ErrCaptchaFailed is an exported constant or variable used by the recovery engine.
	ErrCaptchaFailed = errors.New("captcha verification failed")
)

// PolicyError carries the violations that rejected a candidate password.
// It matches ErrPolicyViolation under errors.Is.
type PolicyError struct {
	Violations []policy.Violation
}

func (e *PolicyError) Error() string {
	if e == nil || len(e.Violations) == 0 {
		return ErrPolicyViolation.Error()
	}

	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = string(v)
	}
	return ErrPolicyViolation.Error() + ": " + strings.Join(parts, ",")
}

func (e *PolicyError) Is(target error) bool {
	return target == ErrPolicyViolation
}

// Codes returns the numeric code of every violation in order.
func (e *PolicyError) Codes() []int {
	if e == nil {
		return nil
	}
	out := make([]int, len(e.Violations))
	for i, v := range e.Violations {
		out[i] = v.Code()
	}
	return out
}
