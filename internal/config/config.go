// Package config reads recoveryd settings from flags, environment variables
// and an optional TOML file.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"

	goRecover "github.com/MrEthical07/goRecover"
)

var configFile = altsrc.StringSourcer("recoveryd.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server    ServerConfig
	Log       LogConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	Directory DirectoryConfig
	Mail      MailConfig
	Recovery  RecoveryConfig
	Token     TokenConfig
	Captcha   CaptchaConfig
	Audit     AuditConfig
	Password  PasswordConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	SecureCookie   bool
	Metrics        bool
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type RedisConfig struct {
	URL    string
	Prefix string
}

type DatabaseConfig struct {
	Driver string // sqlite, postgres
	DSN    string
}

type DirectoryConfig struct {
	RosterFile string
}

type MailConfig struct { //nolint:govet // fieldalignment not critical
	Driver       string // smtp, ses, log
	From         string
	FromName     string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPTLS      bool
	SESRegion    string
	SESConfigSet string
}

type RecoveryConfig struct {
	CodeTTL         time.Duration
	CodeDigits      int
	MaxAttempts     int
	Retention       time.Duration
	SealKey         string // 64 hex characters
	ResetURL        string
	ThrottleWindow  time.Duration
	ThrottleMax     int
	UpstreamTimeout time.Duration
}

type TokenConfig struct {
	SigningMethod string // ed25519, hs256
	PrivateKey    string // hex seed or key for ed25519, secret for hs256
	PublicKey     string // hex for ed25519
	AccessTTL     time.Duration
	Issuer        string
	Audience      string
}

type CaptchaConfig struct {
	Secret   string
	MinScore float64
}

type AuditConfig struct {
	Sink   string // redis, json
	Stream string
	MaxLen int64
	Mirror string // empty, json
}

type PasswordConfig struct {
	MinLength   int
	MinScore    int
	HistorySize int
	MaxAge      time.Duration
}

// NewFromCLI collects the resolved flag values.
func NewFromCLI(cmd *cli.Command) *Config {
	return &Config{
		Server: ServerConfig{
			Host:           cmd.String("host"),
			Port:           int(cmd.Int("port")),
			AllowedOrigins: cmd.StringSlice("allowed-origins"),
			SecureCookie:   cmd.Bool("secure-cookie"),
			Metrics:        cmd.Bool("metrics"),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Redis: RedisConfig{
			URL:    cmd.String("redis-url"),
			Prefix: cmd.String("redis-prefix"),
		},
		Database: DatabaseConfig{
			Driver: cmd.String("database-driver"),
			DSN:    cmd.String("database-dsn"),
		},
		Directory: DirectoryConfig{
			RosterFile: cmd.String("roster-file"),
		},
		Mail: MailConfig{
			Driver:       cmd.String("mail-driver"),
			From:         cmd.String("mail-from"),
			FromName:     cmd.String("mail-from-name"),
			SMTPHost:     cmd.String("smtp-host"),
			SMTPPort:     int(cmd.Int("smtp-port")),
			SMTPUsername: cmd.String("smtp-username"),
			SMTPPassword: cmd.String("smtp-password"),
			SMTPTLS:      cmd.Bool("smtp-tls"),
			SESRegion:    cmd.String("ses-region"),
			SESConfigSet: cmd.String("ses-configuration-set"),
		},
		Recovery: RecoveryConfig{
			CodeTTL:         cmd.Duration("code-ttl"),
			CodeDigits:      int(cmd.Int("code-digits")),
			MaxAttempts:     int(cmd.Int("max-attempts")),
			Retention:       cmd.Duration("record-retention"),
			SealKey:         cmd.String("seal-key"),
			ResetURL:        cmd.String("reset-url"),
			ThrottleWindow:  cmd.Duration("throttle-window"),
			ThrottleMax:     int(cmd.Int("throttle-max")),
			UpstreamTimeout: cmd.Duration("upstream-timeout"),
		},
		Token: TokenConfig{
			SigningMethod: cmd.String("token-signing-method"),
			PrivateKey:    cmd.String("token-private-key"),
			PublicKey:     cmd.String("token-public-key"),
			AccessTTL:     cmd.Duration("token-ttl"),
			Issuer:        cmd.String("token-issuer"),
			Audience:      cmd.String("token-audience"),
		},
		Captcha: CaptchaConfig{
			Secret:   cmd.String("recaptcha-secret"),
			MinScore: cmd.Float("recaptcha-min-score"),
		},
		Audit: AuditConfig{
			Sink:   cmd.String("audit-sink"),
			Stream: cmd.String("audit-stream"),
			MaxLen: cmd.Int("audit-max-len"),
			Mirror: cmd.String("audit-mirror"),
		},
		Password: PasswordConfig{
			MinLength:   int(cmd.Int("password-min-length")),
			MinScore:    int(cmd.Int("password-min-score")),
			HistorySize: int(cmd.Int("password-history")),
			MaxAge:      cmd.Duration("password-max-age"),
		},
	}
}

// Engine converts the settings into an engine configuration. Key material
// is decoded here so that malformed keys fail before anything connects.
func (c *Config) Engine() (goRecover.Config, error) {
	cfg := goRecover.DefaultConfig()

	cfg.Recovery.CodeTTL = c.Recovery.CodeTTL
	cfg.Recovery.CodeDigits = c.Recovery.CodeDigits
	cfg.Recovery.MaxAttempts = c.Recovery.MaxAttempts
	cfg.Recovery.RecordRetention = c.Recovery.Retention
	cfg.Recovery.ResetURL = c.Recovery.ResetURL
	cfg.Recovery.UpstreamTimeout = c.Recovery.UpstreamTimeout
	if c.Redis.Prefix != "" {
		cfg.Recovery.RedisPrefix = c.Redis.Prefix
	}

	sealKey, err := decodeHex("seal-key", c.Recovery.SealKey)
	if err != nil {
		return goRecover.Config{}, err
	}
	cfg.Recovery.CodeSealKey = sealKey

	cfg.Throttle.Window = c.Recovery.ThrottleWindow
	cfg.Throttle.MaxRequests = c.Recovery.ThrottleMax
	if c.Recovery.ThrottleMax == 0 {
		cfg.Throttle.EnableIdentifierThrottle = false
		cfg.Throttle.EnableIPThrottle = false
	}

	cfg.Policy.MinLength = c.Password.MinLength
	cfg.Policy.MinScore = c.Password.MinScore

	cfg.Token.SigningMethod = strings.ToLower(c.Token.SigningMethod)
	cfg.Token.AccessTTL = c.Token.AccessTTL
	cfg.Token.Issuer = c.Token.Issuer
	cfg.Token.Audience = c.Token.Audience
	switch cfg.Token.SigningMethod {
	case "hs256":
		cfg.Token.PrivateKey = []byte(c.Token.PrivateKey)
	default:
		if cfg.Token.PrivateKey, err = decodeKey("token-private-key", c.Token.PrivateKey); err != nil {
			return goRecover.Config{}, err
		}
		if cfg.Token.PublicKey, err = decodeKey("token-public-key", c.Token.PublicKey); err != nil {
			return goRecover.Config{}, err
		}
	}

	cfg.Audit.MirrorEnabled = c.Audit.Mirror != ""

	return cfg, cfg.Validate()
}

func decodeHex(name, value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("%s is required", name)
	}
	out, err := hex.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// decodeKey accepts a hex string or a path to a PEM file.
func decodeKey(name, value string) ([]byte, error) {
	if strings.HasSuffix(value, ".pem") {
		b, err := os.ReadFile(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return b, nil
	}
	return decodeHex(name, value)
}
