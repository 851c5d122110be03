package internaldefs

import (
	goRecover "github.com/MrEthical07/goRecover"
)

// CounterDef defines a public type used by goRecover APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   goRecover.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by goRecover APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   goRecover.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the recovery engine.
var CounterDefs = []CounterDef{
	{ID: goRecover.MetricRecoveryCreated, Name: "gorecover_recovery_created_total", Help: "Recovery records created."},
	{ID: goRecover.MetricRecoveryRedelivered, Name: "gorecover_recovery_redelivered_total", Help: "Create requests that re-delivered a pending code."},
	{ID: goRecover.MetricRecoveryRestarted, Name: "gorecover_recovery_restarted_total", Help: "Expired recoveries restarted with a new code."},
	{ID: goRecover.MetricRecoveryNotFound, Name: "gorecover_recovery_not_found_total", Help: "Create requests for unknown accounts."},
	{ID: goRecover.MetricRecoveryAccountLocked, Name: "gorecover_recovery_account_locked_total", Help: "Create requests refused because the account is locked."},
	{ID: goRecover.MetricRecoveryMethodChanged, Name: "gorecover_recovery_method_changed_total", Help: "Recovery channel changes."},
	{ID: goRecover.MetricRecoveryResent, Name: "gorecover_recovery_resent_total", Help: "Recovery codes resent."},
	{ID: goRecover.MetricRecoveryDelivered, Name: "gorecover_recovery_delivered_total", Help: "Recovery codes handed to a delivery channel."},
	{ID: goRecover.MetricRecoveryDeliveryFailure, Name: "gorecover_recovery_delivery_failure_total", Help: "Recovery code deliveries that failed."},
	{ID: goRecover.MetricRecoveryValidateSuccess, Name: "gorecover_recovery_validate_success_total", Help: "Successful code validations."},
	{ID: goRecover.MetricRecoveryValidateFailure, Name: "gorecover_recovery_validate_failure_total", Help: "Failed code validations."},
	{ID: goRecover.MetricRecoveryExpired, Name: "gorecover_recovery_expired_total", Help: "Correct codes submitted after expiry."},
	{ID: goRecover.MetricRecoveryLockedOut, Name: "gorecover_recovery_locked_out_total", Help: "Requests refused because a recovery reached its attempt ceiling."},
	{ID: goRecover.MetricRateLimitHit, Name: "gorecover_rate_limit_hit_total", Help: "Throttle checks that denied requests."},
	{ID: goRecover.MetricUpstreamFailure, Name: "gorecover_upstream_failure_total", Help: "Collaborator calls that failed or timed out."},
	{ID: goRecover.MetricPasswordPolicyRejected, Name: "gorecover_password_policy_rejected_total", Help: "Passwords rejected by the local policy."},
	{ID: goRecover.MetricPasswordChangeSuccess, Name: "gorecover_password_change_success_total", Help: "Successful password changes."},
	{ID: goRecover.MetricPasswordAssessRejected, Name: "gorecover_password_assess_rejected_total", Help: "Passwords rejected by the password backend."},
}

// HistogramDefs is an exported constant or variable used by the recovery engine.
var HistogramDefs = []HistogramDef{
	{ID: goRecover.MetricValidateLatency, Name: "gorecover_validate_latency_seconds", Help: "Recovery code validation latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the recovery engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the recovery engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
