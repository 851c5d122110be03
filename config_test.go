package goRecover

import (
	"bytes"
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Recovery.CodeSealKey = bytes.Repeat([]byte{7}, 32)
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{"baseline", func(*Config) {}, true},
		{"zero code ttl", func(c *Config) { c.Recovery.CodeTTL = 0 }, false},
		{"five digits", func(c *Config) { c.Recovery.CodeDigits = 5 }, false},
		{"eleven digits", func(c *Config) { c.Recovery.CodeDigits = 11 }, false},
		{"ten digits", func(c *Config) { c.Recovery.CodeDigits = 10 }, true},
		{"no attempts", func(c *Config) { c.Recovery.MaxAttempts = 0 }, false},
		{"negative retention", func(c *Config) { c.Recovery.RecordRetention = -time.Second }, false},
		{"short seal key", func(c *Config) { c.Recovery.CodeSealKey = []byte("short") }, false},
		{"no upstream timeout", func(c *Config) { c.Recovery.UpstreamTimeout = 0 }, false},
		{"empty prefix", func(c *Config) { c.Recovery.RedisPrefix = "" }, false},
		{"throttle without window", func(c *Config) { c.Throttle.Window = 0 }, false},
		{"throttle off ignores window", func(c *Config) {
			c.Throttle.EnableIdentifierThrottle = false
			c.Throttle.EnableIPThrottle = false
			c.Throttle.Window = 0
		}, true},
		{"policy score out of range", func(c *Config) { c.Policy.MinScore = 5 }, false},
		{"unknown signing method", func(c *Config) { c.Token.SigningMethod = "rs256" }, false},
		{"ed25519 without keys", func(c *Config) { c.Token.SigningMethod = "ed25519" }, false},
		{"negative leeway", func(c *Config) { c.Token.Leeway = -time.Second }, false},
		{"mirror without buffer", func(c *Config) {
			c.Audit.MirrorEnabled = true
			c.Audit.BufferSize = 0
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCloneConfigCopiesKeys(t *testing.T) {
	cfg := validTestConfig()
	clone := cloneConfig(cfg)
	cfg.Recovery.CodeSealKey[0] = 99
	cfg.Token.PrivateKey[0] = 'x'

	if clone.Recovery.CodeSealKey[0] == 99 || clone.Token.PrivateKey[0] == 'x' {
		t.Fatal("expected clone to be independent of the source key slices")
	}
}
