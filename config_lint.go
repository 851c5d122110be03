package goRecover

import (
	"errors"
	"strings"
	"time"
)

// LintSeverity ranks configuration warnings.
type LintSeverity int

const (
	// LintInfo is an exported constant or variable used by the recovery engine.
	LintInfo LintSeverity = iota
	// LintWarn is an exported constant or variable used by the recovery engine.
	LintWarn
	// LintHigh is an exported constant or variable used by the recovery engine.
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// LintWarning is one finding from Config.Lint.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the ordered list of findings.
type LintResult []LintWarning

// Codes describes the codes operation and its observable behavior.
//
// Codes may return an error when input validation, dependency calls, or security checks fail.
// Codes does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (r LintResult) Codes() []string {
	out := make([]string, len(r))
	for i, w := range r {
		out[i] = w.Code
	}
	return out
}

// BySeverity returns the findings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError joins every finding at or above min into one error, or returns nil.
func (r LintResult) AsError(min LintSeverity) error {
	filtered := r.BySeverity(min)
	if len(filtered) == 0 {
		return nil
	}

	parts := make([]string, len(filtered))
	for i, w := range filtered {
		parts[i] = w.Severity.String() + " " + w.Code + ": " + w.Message
	}
	return errors.New("config lint: " + strings.Join(parts, "; "))
}

// Lint reports settings that pass Validate but weaken the recovery flow.
// It never fails; callers decide what severity is fatal.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if !c.Throttle.EnableIdentifierThrottle && !c.Throttle.EnableIPThrottle {
		add("throttle_disabled", LintHigh, "recovery requests are not throttled")
	} else if !c.Throttle.EnableIPThrottle {
		add("ip_throttle_disabled", LintWarn, "per-IP recovery throttle is disabled")
	}

	if c.Recovery.MaxAttempts > 20 {
		add("max_attempts_high", LintHigh, "more than 20 guesses per code weakens a numeric code")
	}
	if c.Recovery.CodeTTL > time.Hour {
		add("code_ttl_long", LintWarn, "recovery codes stay valid for more than an hour")
	}
	if c.Recovery.CodeDigits < 8 && c.Recovery.MaxAttempts > 10 {
		add("code_space_small", LintWarn, "short codes combined with many attempts")
	}
	if c.Recovery.RecordRetention == 0 {
		add("retention_zero", LintInfo, "expired records are dropped immediately and cannot be restarted")
	}

	if c.Policy.MinScore < 2 {
		add("policy_min_score_low", LintHigh, "strength score below 2 accepts guessable passwords")
	}
	if c.Policy.MinLength < 8 {
		add("policy_min_length_short", LintWarn, "minimum password length below 8")
	}
	if !c.Policy.CheckUserAttributes {
		add("policy_attributes_unchecked", LintWarn, "passwords may contain the user's own name")
	}

	if c.Token.AccessTTL > 30*time.Minute {
		add("token_ttl_long", LintWarn, "reset token lives longer than 30 minutes")
	}
	if c.Token.Leeway > time.Minute {
		add("leeway_large", LintWarn, "token leeway above one minute")
	}
	if c.Token.SigningMethod == "hs256" {
		add("signing_hs256", LintInfo, "symmetric signing shares the key with every verifier")
	}

	if c.Audit.MirrorEnabled && c.Audit.DropIfFull {
		add("audit_mirror_lossy", LintInfo, "audit mirror drops events when its buffer is full")
	}

	return ws
}
