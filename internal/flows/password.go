package flows

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goRecover/policy"
)

type PasswordUser struct {
	EmployeeID string
	Username   string
	Email      string
	FirstName  string
	LastName   string
}

func (u PasswordUser) profile() policy.Profile {
	return policy.Profile{
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		Email:     u.Email,
	}
}

type PasswordMetrics struct {
	PolicyRejected  int
	ChangeSuccess   int
	AssessRejected  int
	UpstreamFailure int
}

type PasswordErrors struct {
	EngineNotReady      error
	InvalidInput        error
	PolicyViolation     error
	UpstreamUnavailable error
}

type PasswordDeps struct {
	Logger *slog.Logger

	Validate    func(context.Context, string, policy.Profile) ([]policy.Violation, error)
	PolicyError func([]policy.Violation) error

	SetPassword    func(context.Context, string, string) (time.Time, time.Time, error)
	AssessPassword func(context.Context, string, string) error

	MetricInc func(int)

	Metrics PasswordMetrics
	Errors  PasswordErrors
}

// PasswordChange is the stored credential metadata after a change.
type PasswordChange struct {
	LastChanged time.Time
	ExpiresAt   time.Time
}

// RunValidatePassword applies the local policy only. Violations come back as
// the error built by PolicyError.
func RunValidatePassword(ctx context.Context, user PasswordUser, candidate string, deps PasswordDeps) error {
	normalizePasswordDeps(&deps)

	if deps.Validate == nil {
		return deps.Errors.EngineNotReady
	}
	return deps.checkPolicy(ctx, user, candidate)
}

func RunChangePassword(ctx context.Context, user PasswordUser, newPassword string, deps PasswordDeps) (PasswordChange, error) {
	normalizePasswordDeps(&deps)

	if deps.Validate == nil || deps.SetPassword == nil {
		return PasswordChange{}, deps.Errors.EngineNotReady
	}
	if user.EmployeeID == "" {
		return PasswordChange{}, deps.Errors.InvalidInput
	}
	if err := deps.checkPolicy(ctx, user, newPassword); err != nil {
		return PasswordChange{}, err
	}

	lastChanged, expiresAt, err := deps.SetPassword(ctx, user.EmployeeID, newPassword)
	if err != nil {
		if errors.Is(err, deps.Errors.PolicyViolation) {
			deps.MetricInc(deps.Metrics.AssessRejected)
			return PasswordChange{}, err
		}
		deps.MetricInc(deps.Metrics.UpstreamFailure)
		deps.Logger.ErrorContext(ctx, "change password", "employee_id", user.EmployeeID, "error", err)
		return PasswordChange{}, deps.Errors.UpstreamUnavailable
	}

	deps.MetricInc(deps.Metrics.ChangeSuccess)
	deps.Logger.InfoContext(ctx, "change password", "employee_id", user.EmployeeID, "status", "success")

	return PasswordChange{LastChanged: lastChanged, ExpiresAt: expiresAt}, nil
}

// RunAssessPassword runs the local policy and then asks the backend whether
// it would accept the candidate, without storing it.
func RunAssessPassword(ctx context.Context, user PasswordUser, candidate string, deps PasswordDeps) error {
	normalizePasswordDeps(&deps)

	if deps.Validate == nil || deps.AssessPassword == nil {
		return deps.Errors.EngineNotReady
	}
	if user.EmployeeID == "" {
		return deps.Errors.InvalidInput
	}
	if err := deps.checkPolicy(ctx, user, candidate); err != nil {
		return err
	}

	if err := deps.AssessPassword(ctx, user.EmployeeID, candidate); err != nil {
		if errors.Is(err, deps.Errors.PolicyViolation) {
			deps.MetricInc(deps.Metrics.AssessRejected)
			return err
		}
		deps.MetricInc(deps.Metrics.UpstreamFailure)
		deps.Logger.ErrorContext(ctx, "assess password", "employee_id", user.EmployeeID, "error", err)
		return deps.Errors.UpstreamUnavailable
	}
	return nil
}

func (deps *PasswordDeps) checkPolicy(ctx context.Context, user PasswordUser, candidate string) error {
	violations, err := deps.Validate(ctx, candidate, user.profile())
	if err != nil {
		deps.MetricInc(deps.Metrics.UpstreamFailure)
		deps.Logger.ErrorContext(ctx, "password policy", "employee_id", user.EmployeeID, "error", err)
		return deps.Errors.UpstreamUnavailable
	}
	if len(violations) > 0 {
		deps.MetricInc(deps.Metrics.PolicyRejected)
		return deps.PolicyError(violations)
	}
	return nil
}

func normalizePasswordDeps(deps *PasswordDeps) {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.PolicyError == nil {
		deps.PolicyError = func([]policy.Violation) error { return deps.Errors.PolicyViolation }
	}
}
