package internaldefs

import (
	"github.com/MrEthical07/studyauth"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   studyauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   studyauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: studyauth.MetricRegisterRequested, Name: "studyauth_register_requested_total", Help: "Registrations staged and codes sent."},
	{ID: studyauth.MetricRegisterConflict, Name: "studyauth_register_conflict_total", Help: "Registrations rejected because the email already has an account."},
	{ID: studyauth.MetricRegisterRateLimited, Name: "studyauth_register_rate_limited_total", Help: "Rate-limited registration requests."},
	{ID: studyauth.MetricRegisterDeliveryFailed, Name: "studyauth_register_delivery_failed_total", Help: "Registrations whose verification code could not be stored or sent."},
	{ID: studyauth.MetricRegistrationVerified, Name: "studyauth_registration_verified_total", Help: "Registrations completed with a valid code."},
	{ID: studyauth.MetricRegistrationInvalidCode, Name: "studyauth_registration_invalid_code_total", Help: "Registration verifications with a wrong or expired code."},
	{ID: studyauth.MetricRegistrationExpired, Name: "studyauth_registration_expired_total", Help: "Registration verifications whose staged record had expired."},
	{ID: studyauth.MetricLoginSuccess, Name: "studyauth_login_success_total", Help: "Successful password logins."},
	{ID: studyauth.MetricLoginFailure, Name: "studyauth_login_failure_total", Help: "Failed password logins."},
	{ID: studyauth.MetricLoginRateLimited, Name: "studyauth_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: studyauth.MetricPasswordHashUpgraded, Name: "studyauth_password_hash_upgraded_total", Help: "Password hashes re-derived with current parameters on login."},
	{ID: studyauth.MetricSessionCreated, Name: "studyauth_session_created_total", Help: "Created sessions."},
	{ID: studyauth.MetricSessionRotated, Name: "studyauth_session_rotated_total", Help: "Rotated sessions."},
	{ID: studyauth.MetricSessionValidated, Name: "studyauth_session_validated_total", Help: "Session tokens resolved to a live session."},
	{ID: studyauth.MetricSessionRejected, Name: "studyauth_session_rejected_total", Help: "Session tokens with no live session."},
	{ID: studyauth.MetricRefreshSuccess, Name: "studyauth_refresh_success_total", Help: "Successful refresh operations."},
	{ID: studyauth.MetricRefreshFailure, Name: "studyauth_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: studyauth.MetricLogout, Name: "studyauth_logout_total", Help: "Logout operations."},
	{ID: studyauth.MetricOAuthLogin, Name: "studyauth_oauth_login_total", Help: "Sign-ins completed with an external identity."},
	{ID: studyauth.MetricOAuthUserCreated, Name: "studyauth_oauth_user_created_total", Help: "Accounts created from an external identity."},
	{ID: studyauth.MetricOAuthLinked, Name: "studyauth_oauth_linked_total", Help: "External identities linked to existing accounts."},
	{ID: studyauth.MetricPasswordChangeSuccess, Name: "studyauth_password_change_success_total", Help: "Successful password changes."},
	{ID: studyauth.MetricPasswordChangeInvalidOld, Name: "studyauth_password_change_invalid_old_total", Help: "Password change attempts with invalid old password."},
	{ID: studyauth.MetricPasswordChangeReuseRejected, Name: "studyauth_password_change_reuse_rejected_total", Help: "Password change attempts rejected for reuse."},
	{ID: studyauth.MetricPasswordResetRequest, Name: "studyauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: studyauth.MetricPasswordResetConfirmSuccess, Name: "studyauth_password_reset_confirm_success_total", Help: "Successful password reset confirmations."},
	{ID: studyauth.MetricPasswordResetConfirmFailure, Name: "studyauth_password_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: studyauth.MetricValidateLatency, Name: "studyauth_authenticate_latency_seconds", Help: "Session authenticate latency."},
}

// AuditDroppedName is the counter for events dropped by the audit dispatcher.
const AuditDroppedName = "studyauth_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine
// keeps one extra overflow bucket past the last bound.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, overflow included, for exporters
// that flatten buckets into separate instruments.
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

// NormalizeBuckets copies raw into a fixed-size array, zero-padding short input.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
