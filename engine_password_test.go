package goRecover_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	goRecover "github.com/MrEthical07/goRecover"
	"github.com/MrEthical07/goRecover/internal/testutil"
	"github.com/MrEthical07/goRecover/policy"
)

func alice() goRecover.User {
	return goRecover.User{
		UUID:       "u-alice",
		EmployeeID: "E100",
		Username:   "alice",
		Email:      "alice@example.org",
		FirstName:  "Alice",
		LastName:   "Lidell",
	}
}

func policyViolations(t *testing.T, err error) []policy.Violation {
	t.Helper()
	var pe *goRecover.PolicyError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PolicyError, got %v", err)
	}
	return pe.Violations
}

func TestValidatePasswordAcceptsStrongCandidate(t *testing.T) {
	h := testutil.NewHarness(t)
	if err := h.Engine.ValidatePassword(context.Background(), alice(), "correct horse battery 9"); err != nil {
		t.Fatalf("expected candidate accepted, got %v", err)
	}
}

func TestValidatePasswordReportsViolations(t *testing.T) {
	h := testutil.NewHarness(t)

	tests := []struct {
		candidate string
		want      policy.Violation
	}{
		{"short1", policy.ViolationTooShort},
		{"my-alice-password-1", policy.ViolationDisallowedContent},
		{"bad\x00byte-password", policy.ViolationContainsBadByte},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			err := h.Engine.ValidatePassword(context.Background(), alice(), tt.candidate)
			if !errors.Is(err, goRecover.ErrPolicyViolation) {
				t.Fatalf("expected ErrPolicyViolation, got %v", err)
			}
			found := false
			for _, v := range policyViolations(t, err) {
				if v == tt.want {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %s in %v", tt.want, err)
			}
		})
	}
}

func TestChangePasswordStoresAndReturnsMeta(t *testing.T) {
	h := testutil.NewHarness(t)

	meta, err := h.Engine.ChangePassword(context.Background(), alice(), "correct horse battery 9")
	if err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if meta.LastChanged.IsZero() || !meta.ExpiresAt.After(meta.LastChanged) {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if got := h.Passwords.Current("E100"); got != "correct horse battery 9" {
		t.Fatalf("expected password stored, got %q", got)
	}

	stored, err := h.Engine.PasswordMeta(context.Background(), alice())
	if err != nil {
		t.Fatalf("PasswordMeta failed: %v", err)
	}
	if !stored.LastChanged.Equal(meta.LastChanged) {
		t.Fatalf("expected stored meta %+v, got %+v", meta, stored)
	}
	if got := h.Engine.MetricsSnapshot().Counters[goRecover.MetricPasswordChangeSuccess]; got != 1 {
		t.Fatalf("expected one change counted, got %d", got)
	}
}

func TestChangePasswordRejectedByPolicyStoresNothing(t *testing.T) {
	h := testutil.NewHarness(t)

	_, err := h.Engine.ChangePassword(context.Background(), alice(), "short1")
	if !errors.Is(err, goRecover.ErrPolicyViolation) {
		t.Fatalf("expected ErrPolicyViolation, got %v", err)
	}
	if h.Passwords.Current("E100") != "" {
		t.Fatal("expected nothing stored")
	}
	if _, err := h.Engine.ChangePassword(context.Background(), alice(), ""); !errors.Is(err, goRecover.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty password, got %v", err)
	}
}

func TestChangePasswordBackendErrors(t *testing.T) {
	h := testutil.NewHarness(t)

	h.Passwords.SetErr = fmt.Errorf("history: %w", goRecover.ErrPolicyViolation)
	if _, err := h.Engine.ChangePassword(context.Background(), alice(), "correct horse battery 9"); !errors.Is(err, goRecover.ErrPolicyViolation) {
		t.Fatalf("expected backend policy rejection passed through, got %v", err)
	}

	h.Passwords.SetErr = errors.New("db: connection reset")
	if _, err := h.Engine.ChangePassword(context.Background(), alice(), "correct horse battery 9"); !errors.Is(err, goRecover.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestAssessPassword(t *testing.T) {
	h := testutil.NewHarness(t)

	if err := h.Engine.AssessPassword(context.Background(), alice(), "correct horse battery 9"); err != nil {
		t.Fatalf("expected assessment to pass, got %v", err)
	}
	if err := h.Engine.AssessPassword(context.Background(), alice(), "short1"); !errors.Is(err, goRecover.ErrPolicyViolation) {
		t.Fatalf("expected local policy rejection, got %v", err)
	}

	h.Passwords.AssessErr = fmt.Errorf("reused: %w", goRecover.ErrPolicyViolation)
	if err := h.Engine.AssessPassword(context.Background(), alice(), "correct horse battery 9"); !errors.Is(err, goRecover.ErrPolicyViolation) {
		t.Fatalf("expected backend rejection, got %v", err)
	}
	if h.Passwords.Current("E100") != "" {
		t.Fatal("expected assessment to store nothing")
	}
}

func TestPasswordMetaNotFound(t *testing.T) {
	h := testutil.NewHarness(t)
	if _, err := h.Engine.PasswordMeta(context.Background(), alice()); !errors.Is(err, goRecover.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
