package goRecover

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goRecover/internal"
	internalaudit "github.com/MrEthical07/goRecover/internal/audit"
	"github.com/MrEthical07/goRecover/internal/limiters"
	"github.com/MrEthical07/goRecover/internal/notify"
	"github.com/MrEthical07/goRecover/internal/stores"
	"github.com/MrEthical07/goRecover/policy"
	"github.com/MrEthical07/goRecover/token"
	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by goRecover APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	logger *slog.Logger

	directory DirectoryLookup
	users     UserStore
	passwords PasswordStore
	mailer    Mailer
	mfa       MfaGateway
	events    EventLog
	mirror    EventLog
	scorer    policy.Scorer
	issuer    CredentialIssuer
	now       func() time.Time

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing recovery records and throttles. A
// *redis.Client, *redis.ClusterClient or ring all satisfy it.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger. The default discards output.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithDirectory describes the withdirectory operation and its observable behavior.
//
// WithDirectory does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithDirectory(d DirectoryLookup) *Builder {
	b.directory = d
	return b
}

// WithUserStore describes the withuserstore operation and its observable behavior.
//
// WithUserStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithUserStore(s UserStore) *Builder {
	b.users = s
	return b
}

// WithPasswordStore describes the withpasswordstore operation and its observable behavior.
//
// WithPasswordStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithPasswordStore(s PasswordStore) *Builder {
	b.passwords = s
	return b
}

// WithMailer describes the withmailer operation and its observable behavior.
//
// WithMailer does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithMfaGateway enables MFA devices as recovery channels. Without it only
// the primary and supervisor addresses are offered.
func (b *Builder) WithMfaGateway(g MfaGateway) *Builder {
	b.mfa = g
	return b
}

// WithEventLog sets the verification log. It is written synchronously and a
// successful validation is refused when it fails.
func (b *Builder) WithEventLog(log EventLog) *Builder {
	b.events = log
	return b
}

// WithAuditMirror sets a best-effort asynchronous copy of every verification
// event. It only runs when Config.Audit.MirrorEnabled is set.
func (b *Builder) WithAuditMirror(log EventLog) *Builder {
	b.mirror = log
	return b
}

// WithScorer replaces the default zxcvbn strength scorer.
func (b *Builder) WithScorer(s policy.Scorer) *Builder {
	b.scorer = s
	return b
}

// WithCredentialIssuer replaces the default reset token issuer built from
// Config.Token.
func (b *Builder) WithCredentialIssuer(issuer CredentialIssuer) *Builder {
	b.issuer = issuer
	return b
}

// WithClock replaces the time source used for code expiry.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms may return an error when input validation, dependency calls, or security checks fail.
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.directory == nil {
		return nil, errors.New("directory lookup required")
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if b.passwords == nil {
		return nil, errors.New("password store required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}
	if b.events == nil {
		return nil, errors.New("event log required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	sealer, err := internal.NewSealer(cfg.Recovery.CodeSealKey)
	if err != nil {
		return nil, err
	}

	validator, err := policy.NewValidator(cfg.Policy, b.scorer)
	if err != nil {
		return nil, err
	}

	renderer, err := notify.NewRenderer()
	if err != nil {
		return nil, err
	}

	tm, err := token.NewManager(token.Config{
		AccessTTL:     cfg.Token.AccessTTL,
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	issuer := b.issuer
	if issuer == nil {
		issuer = tokenIssuer{manager: tm}
	}

	engine := &Engine{
		config:    cloneConfig(cfg),
		logger:    logger,
		store:     stores.NewRecoveryStore(b.redis, cfg.Recovery.RedisPrefix, cfg.Recovery.RecordRetention),
		guard:     limiters.NewAttemptGuard(cfg.Recovery.MaxAttempts),
		sealer:    sealer,
		validator: validator,
		renderer:  renderer,
		directory: b.directory,
		users:     b.users,
		passwords: b.passwords,
		mailer:    b.mailer,
		mfa:       b.mfa,
		events:    b.events,
		issuer:    issuer,
		tokens:    tm,
		now:       b.now,
		metrics:   NewMetrics(cfg.Metrics),
		lint:      cfg.Lint(),
	}

	if cfg.Throttle.EnableIdentifierThrottle || cfg.Throttle.EnableIPThrottle {
		engine.throttle = limiters.NewRecoveryThrottle(b.redis, cfg.Recovery.RedisPrefix, limiters.RecoveryThrottleConfig{
			EnableIdentifierThrottle: cfg.Throttle.EnableIdentifierThrottle,
			EnableIPThrottle:         cfg.Throttle.EnableIPThrottle,
			Window:                   cfg.Throttle.Window,
			MaxRequests:              cfg.Throttle.MaxRequests,
		})
	}

	if cfg.Audit.MirrorEnabled && b.mirror != nil {
		engine.mirror = internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, eventLogSink{log: b.mirror})
	}

	for _, w := range engine.lint {
		level := slog.LevelInfo
		if w.Severity >= LintWarn {
			level = slog.LevelWarn
		}
		logger.Log(context.Background(), level, "config lint", "code", w.Code, "severity", w.Severity.String(), "message", w.Message)
	}

	engine.flows.Recovery = engine.recoveryFlowDeps()
	engine.flows.Password = engine.passwordFlowDeps()

	b.built = true

	return engine, nil
}
