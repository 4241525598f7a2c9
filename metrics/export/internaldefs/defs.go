package internaldefs

import (
	goPortal "github.com/MrEthical07/goPortal"
)

// CounterDef names one client counter for export.
type CounterDef struct {
	ID   goPortal.MetricID
	Name string
	Help string
}

// HistogramDef names one latency histogram for export.
type HistogramDef struct {
	ID   goPortal.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: goPortal.MetricLoginSuccess, Name: "goportal_login_success_total", Help: "Logins that committed a session."},
	{ID: goPortal.MetricLoginFailure, Name: "goportal_login_failure_total", Help: "Logins rejected by the backend."},
	{ID: goPortal.MetricLoginValidation, Name: "goportal_login_validation_total", Help: "Logins refused locally for empty fields."},
	{ID: goPortal.MetricSecondFactorRequired, Name: "goportal_second_factor_required_total", Help: "Logins answered with a second-factor challenge."},
	{ID: goPortal.MetricSecondFactorSuccess, Name: "goportal_second_factor_success_total", Help: "Accepted second-factor codes."},
	{ID: goPortal.MetricSecondFactorFailure, Name: "goportal_second_factor_failure_total", Help: "Rejected second-factor codes."},
	{ID: goPortal.MetricChallengeExpired, Name: "goportal_challenge_expired_total", Help: "Second-factor challenges the backend no longer accepts."},
	{ID: goPortal.MetricTwoFactorSetupRequested, Name: "goportal_2fa_setup_requested_total", Help: "2FA enrollment material requests."},
	{ID: goPortal.MetricTwoFactorSetupFailed, Name: "goportal_2fa_setup_failed_total", Help: "Failed 2FA enrollment material requests."},
	{ID: goPortal.MetricTwoFactorEnabled, Name: "goportal_2fa_enabled_total", Help: "Confirmed 2FA enables."},
	{ID: goPortal.MetricTwoFactorDisabled, Name: "goportal_2fa_disabled_total", Help: "Confirmed 2FA disables."},
	{ID: goPortal.MetricTwoFactorVerificationFailure, Name: "goportal_2fa_verification_failure_total", Help: "Rejected enable or disable codes."},
	{ID: goPortal.MetricSessionCommitted, Name: "goportal_session_committed_total", Help: "Sessions installed after login."},
	{ID: goPortal.MetricSessionCleared, Name: "goportal_session_cleared_total", Help: "Sessions removed by logout or expiry."},
	{ID: goPortal.MetricSessionExpired, Name: "goportal_session_expired_total", Help: "Backend answers that expired the session."},
	{ID: goPortal.MetricSessionRestored, Name: "goportal_session_restored_total", Help: "Sessions restored from durable storage."},
	{ID: goPortal.MetricStaleResponseDiscarded, Name: "goportal_stale_response_discarded_total", Help: "Responses discarded after a flow was reset."},
	{ID: goPortal.MetricAdminProbeFailure, Name: "goportal_admin_probe_failure_total", Help: "Admin probes that failed and degraded to false."},
	{ID: goPortal.MetricProfileUpdated, Name: "goportal_profile_updated_total", Help: "Accepted profile updates."},
	{ID: goPortal.MetricBackendCallFailure, Name: "goportal_backend_call_failure_total", Help: "Backend calls that returned an error."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goPortal.MetricBackendLatency, Name: "goportal_backend_latency_seconds", Help: "Backend call latency."},
}

// HistogramBounds are the upper bucket bounds in seconds.
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

// HistogramBoundSuffix is HistogramBounds usable inside instrument names.
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

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into le counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
