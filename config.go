package goRecover

import (
	"errors"
	"time"

	"github.com/MrEthical07/goRecover/policy"
)

// Config defines a public type used by goRecover APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Recovery RecoveryConfig
	Throttle ThrottleConfig
	Policy   policy.Config
	Token    TokenConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
RECOVERY CONFIG
====================================
*/

// RecoveryConfig controls the recovery record lifecycle.
//
// CodeSealKey is the 32-byte AES-256 key used to seal outstanding codes so
// that a repeated create can re-deliver the same code. RecordRetention keeps
// expired records restartable for that long past their expiry.
type RecoveryConfig struct {
	CodeTTL         time.Duration
	CodeDigits      int
	MaxAttempts     int
	RecordRetention time.Duration
	CodeSealKey     []byte
	UpstreamTimeout time.Duration
	RedisPrefix     string
	// ResetURL is the link template included in messages; "{uid}" is replaced
	// by the recovery UID.
	ResetURL string
}

/*
====================================
THROTTLE CONFIG
====================================
*/

// ThrottleConfig defines a public type used by goRecover APIs.
//
// ThrottleConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ThrottleConfig struct {
	EnableIdentifierThrottle bool
	EnableIPThrottle         bool
	Window                   time.Duration
	MaxRequests              int
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures the reset-scoped access token issued after a
// successful validation.
type TokenConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the optional asynchronous event mirror. The primary
// EventLog is always written synchronously.
type AuditConfig struct {
	MirrorEnabled bool
	BufferSize    int
	DropIfFull    bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines a public type used by goRecover APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. CodeSealKey and the
// token keys must still be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Recovery: RecoveryConfig{
			CodeTTL:         15 * time.Minute,
			CodeDigits:      6,
			MaxAttempts:     10,
			RecordRetention: 24 * time.Hour,
			UpstreamTimeout: 10 * time.Second,
			RedisPrefix:     "rcv",
			ResetURL:        "/reset/{uid}",
		},
		Throttle: ThrottleConfig{
			EnableIdentifierThrottle: true,
			EnableIPThrottle:         true,
			Window:                   15 * time.Minute,
			MaxRequests:              10,
		},
		Policy: policy.DefaultConfig(),
		Token: TokenConfig{
			AccessTTL:     10 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "goRecover",
			Audience:      "password",
		},
		Audit: AuditConfig{
			MirrorEnabled: false,
			BufferSize:    1024,
			DropIfFull:    true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Recovery.CodeSealKey = cloneBytes(cfg.Recovery.CodeSealKey)
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// Recovery
	if c.Recovery.CodeTTL <= 0 {
		return errors.New("Recovery CodeTTL must be > 0")
	}
	if c.Recovery.CodeDigits < 6 || c.Recovery.CodeDigits > 10 {
		return errors.New("Recovery CodeDigits must be between 6 and 10")
	}
	if c.Recovery.MaxAttempts <= 0 {
		return errors.New("Recovery MaxAttempts must be > 0")
	}
	if c.Recovery.MaxAttempts > 65535 {
		return errors.New("Recovery MaxAttempts must be <= 65535")
	}
	if c.Recovery.RecordRetention < 0 {
		return errors.New("Recovery RecordRetention must be >= 0")
	}
	if len(c.Recovery.CodeSealKey) != 32 {
		return errors.New("Recovery CodeSealKey must be 32 bytes")
	}
	if c.Recovery.UpstreamTimeout <= 0 {
		return errors.New("Recovery UpstreamTimeout must be > 0")
	}
	if c.Recovery.RedisPrefix == "" {
		return errors.New("Recovery RedisPrefix must be set")
	}

	// Throttle
	if c.Throttle.EnableIdentifierThrottle || c.Throttle.EnableIPThrottle {
		if c.Throttle.Window <= 0 {
			return errors.New("Throttle Window must be > 0")
		}
		if c.Throttle.MaxRequests <= 0 {
			return errors.New("Throttle MaxRequests must be > 0")
		}
	}

	// Policy
	if err := c.Policy.Validate(); err != nil {
		return err
	}

	// Token
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	switch c.Token.SigningMethod {
	case "ed25519":
		if len(c.Token.PrivateKey) == 0 || len(c.Token.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	case "hs256":
		if len(c.Token.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
	default:
		return errors.New("unsupported Token signing method")
	}
	if c.Token.Leeway < 0 {
		return errors.New("Token Leeway must be >= 0")
	}

	// Audit
	if c.Audit.MirrorEnabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
