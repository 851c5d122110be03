package goRecover

import (
	"context"
	"errors"
	"time"

	internalflows "github.com/MrEthical07/goRecover/internal/flows"
	"github.com/MrEthical07/goRecover/policy"
)

// ValidatePassword checks candidate against the password policy for user.
// A rejection is a *PolicyError listing every violation found.
func (e *Engine) ValidatePassword(ctx context.Context, user User, candidate string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return internalflows.RunValidatePassword(ctx, passwordFlowUser(user), candidate, e.flows.Password)
}

// ChangePassword applies the policy and stores newPassword in the password
// backend. Backend rejections matching ErrPolicyViolation are returned as is.
func (e *Engine) ChangePassword(ctx context.Context, user User, newPassword string) (PasswordMeta, error) {
	if e == nil {
		return PasswordMeta{}, ErrEngineNotReady
	}
	change, err := internalflows.RunChangePassword(ctx, passwordFlowUser(user), newPassword, e.flows.Password)
	if err != nil {
		return PasswordMeta{}, err
	}
	return PasswordMeta{LastChanged: change.LastChanged, ExpiresAt: change.ExpiresAt}, nil
}

// AssessPassword describes the assesspassword operation and its observable behavior.
//
// AssessPassword runs the local policy and then the backend's own checks (for
// example reuse) without storing anything.
func (e *Engine) AssessPassword(ctx context.Context, user User, candidate string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return internalflows.RunAssessPassword(ctx, passwordFlowUser(user), candidate, e.flows.Password)
}

// PasswordMeta returns the stored credential metadata for user.
func (e *Engine) PasswordMeta(ctx context.Context, user User) (PasswordMeta, error) {
	if e == nil || e.passwords == nil {
		return PasswordMeta{}, ErrEngineNotReady
	}

	var meta PasswordMeta
	err := e.upstream(ctx, func(ctx context.Context) error {
		var err error
		meta, err = e.passwords.GetMeta(ctx, user.EmployeeID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return PasswordMeta{}, ErrNotFound
		}
		return PasswordMeta{}, e.upstreamFailure(ctx, "password meta", err, "employee_id", user.EmployeeID)
	}
	return meta, nil
}

func (e *Engine) passwordFlowDeps() internalflows.PasswordDeps {
	deps := internalflows.PasswordDeps{
		PolicyError: func(v []policy.Violation) error {
			return &PolicyError{Violations: v}
		},
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		Metrics: internalflows.PasswordMetrics{
			PolicyRejected:  int(MetricPasswordPolicyRejected),
			ChangeSuccess:   int(MetricPasswordChangeSuccess),
			AssessRejected:  int(MetricPasswordAssessRejected),
			UpstreamFailure: int(MetricUpstreamFailure),
		},
		Errors: internalflows.PasswordErrors{
			EngineNotReady:      ErrEngineNotReady,
			InvalidInput:        ErrInvalidInput,
			PolicyViolation:     ErrPolicyViolation,
			UpstreamUnavailable: ErrUpstreamUnavailable,
		},
	}

	if e == nil {
		return deps
	}

	deps.Logger = e.logger

	if e.validator != nil {
		deps.Validate = func(ctx context.Context, candidate string, profile policy.Profile) ([]policy.Violation, error) {
			var violations []policy.Violation
			err := e.upstream(ctx, func(ctx context.Context) error {
				var err error
				violations, err = e.validator.Validate(ctx, candidate, profile)
				return err
			})
			return violations, err
		}
	}
	if e.passwords != nil {
		deps.SetPassword = func(ctx context.Context, employeeID, password string) (time.Time, time.Time, error) {
			var meta PasswordMeta
			err := e.upstream(ctx, func(ctx context.Context) error {
				var err error
				meta, err = e.passwords.Set(ctx, employeeID, password)
				return err
			})
			return meta.LastChanged, meta.ExpiresAt, err
		}
		deps.AssessPassword = func(ctx context.Context, employeeID, password string) error {
			return e.upstream(ctx, func(ctx context.Context) error {
				return e.passwords.Assess(ctx, employeeID, password)
			})
		}
	}

	return deps
}

func passwordFlowUser(u User) internalflows.PasswordUser {
	return internalflows.PasswordUser{
		EmployeeID: u.EmployeeID,
		Username:   u.Username,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
	}
}
