package goRecover

import "time"

// SecurityReport summarizes the recovery posture an Engine was built with.
type SecurityReport struct {
	SigningAlgorithm   string
	ResetTokenTTL      time.Duration
	CodeDigits         int
	CodeTTL            time.Duration
	MaxAttempts        int
	RecordRetention    time.Duration
	IdentifierThrottle bool
	IPThrottle         bool
	DeviceDelivery     bool
	AuditMirror        bool
	Policy             PolicyReport
	HighFindings       int
}

// PolicyReport is the password policy portion of a SecurityReport.
type PolicyReport struct {
	MinLength           int
	MaxLength           int
	MinScore            int
	CheckUserAttributes bool
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	cfg := e.config
	return SecurityReport{
		SigningAlgorithm:   cfg.Token.SigningMethod,
		ResetTokenTTL:      cfg.Token.AccessTTL,
		CodeDigits:         cfg.Recovery.CodeDigits,
		CodeTTL:            cfg.Recovery.CodeTTL,
		MaxAttempts:        cfg.Recovery.MaxAttempts,
		RecordRetention:    cfg.Recovery.RecordRetention,
		IdentifierThrottle: e.throttle != nil && cfg.Throttle.EnableIdentifierThrottle,
		IPThrottle:         e.throttle != nil && cfg.Throttle.EnableIPThrottle,
		DeviceDelivery:     e.mfa != nil,
		AuditMirror:        e.mirror != nil,
		Policy: PolicyReport{
			MinLength:           cfg.Policy.MinLength,
			MaxLength:           cfg.Policy.MaxLength,
			MinScore:            cfg.Policy.MinScore,
			CheckUserAttributes: cfg.Policy.CheckUserAttributes,
		},
		HighFindings: len(e.lint.BySeverity(LintHigh)),
	}
}
