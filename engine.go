package goRecover

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goRecover/internal"
	internalaudit "github.com/MrEthical07/goRecover/internal/audit"
	internalflows "github.com/MrEthical07/goRecover/internal/flows"
	"github.com/MrEthical07/goRecover/internal/limiters"
	"github.com/MrEthical07/goRecover/internal/notify"
	"github.com/MrEthical07/goRecover/internal/stores"
	"github.com/MrEthical07/goRecover/policy"
	"github.com/MrEthical07/goRecover/token"
)

// Engine defines a public type used by goRecover APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config    Config
	logger    *slog.Logger
	store     *stores.RecoveryStore
	throttle  *limiters.RecoveryThrottle
	guard     limiters.AttemptGuard
	sealer    *internal.Sealer
	validator *policy.Validator
	renderer  *notify.Renderer
	directory DirectoryLookup
	users     UserStore
	passwords PasswordStore
	mailer    Mailer
	mfa       MfaGateway
	events    EventLog
	mirror    *internalaudit.Dispatcher
	issuer    CredentialIssuer
	tokens    *token.Manager
	now       func() time.Time
	metrics   *Metrics
	lint      LintResult
	flows     internalflows.Deps
}

// Close stops the audit mirror after draining buffered events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.mirror != nil {
		e.mirror.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.mirror == nil {
		return 0
	}
	return e.mirror.Dropped()
}

// AuditFailed counts mirror deliveries the mirror sink rejected.
func (e *Engine) AuditFailed() uint64 {
	if e == nil || e.mirror == nil {
		return 0
	}
	return e.mirror.Failed()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// LintResult returns the configuration findings computed at Build.
func (e *Engine) LintResult() LintResult {
	if e == nil {
		return nil
	}
	return append(LintResult(nil), e.lint...)
}

// Ping checks the Redis connection behind recovery records.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := e.store.Ping(ctx); err != nil {
		return ErrUpstreamUnavailable
	}
	return nil
}

// AuthenticateReset verifies a reset token issued by ValidateRecovery and
// returns the user it was issued for.
func (e *Engine) AuthenticateReset(ctx context.Context, accessToken string) (User, error) {
	if e == nil || e.tokens == nil || e.users == nil {
		return User{}, ErrEngineNotReady
	}

	claims, err := e.tokens.ParseReset(accessToken)
	if err != nil {
		return User{}, ErrInvalidInput
	}

	user, err := e.findUserByUUID(ctx, claims.Subject)
	if err != nil {
		return User{}, err
	}
	if user.EmployeeID != claims.EmployeeID {
		return User{}, ErrInvalidInput
	}
	return user, nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

// upstream runs fn with the configured collaborator timeout.
func (e *Engine) upstream(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.config.Recovery.UpstreamTimeout)
	defer cancel()
	return fn(ctx)
}

// upstreamFailure logs a collaborator error with its context and returns the
// generic sentinel callers see.
func (e *Engine) upstreamFailure(ctx context.Context, op string, err error, attrs ...any) error {
	e.metricInc(MetricUpstreamFailure)
	e.logger.ErrorContext(ctx, op, append(attrs, "error", err)...)
	return ErrUpstreamUnavailable
}

func (e *Engine) findUserByUUID(ctx context.Context, uuid string) (User, error) {
	var user User
	err := e.upstream(ctx, func(ctx context.Context) error {
		var err error
		user, err = e.users.FindByUUID(ctx, uuid)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, e.upstreamFailure(ctx, "find user", err, "user_id", uuid)
	}
	return user, nil
}

type tokenIssuer struct {
	manager *token.Manager
}

func (t tokenIssuer) Issue(_ context.Context, user User) (Credential, error) {
	accessToken, expiresAt, err := t.manager.CreateReset(user.UUID, user.EmployeeID)
	if err != nil {
		return Credential{}, err
	}
	return Credential{AccessToken: accessToken, ExpiresAt: expiresAt}, nil
}
