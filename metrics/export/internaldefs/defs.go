package internaldefs

import (
	goGuard "github.com/MrEthical07/goGuard"
)

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine histogram to its exported name.
type HistogramDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in output order.
var CounterDefs = []CounterDef{
	{ID: goGuard.MetricLoginSuccess, Name: "goguard_login_success_total", Help: "Password logins that passed the first factor."},
	{ID: goGuard.MetricLoginFailure, Name: "goguard_login_failure_total", Help: "Unknown identifier or wrong password."},
	{ID: goGuard.MetricLoginRateLimited, Name: "goguard_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: goGuard.MetricAccountLocked, Name: "goguard_account_locked_total", Help: "Failures that locked an account."},
	{ID: goGuard.MetricAccountLockedRejected, Name: "goguard_account_locked_rejected_total", Help: "Logins refused because the account was locked."},
	{ID: goGuard.MetricRegisterSuccess, Name: "goguard_register_success_total", Help: "Created accounts."},
	{ID: goGuard.MetricRegisterDuplicate, Name: "goguard_register_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: goGuard.MetricRegisterRateLimited, Name: "goguard_register_rate_limited_total", Help: "Rate-limited registrations."},
	{ID: goGuard.MetricRegisterInvalid, Name: "goguard_register_invalid_total", Help: "Registrations failing validation."},
	{ID: goGuard.MetricTOTPSetup, Name: "goguard_totp_setup_total", Help: "TOTP enrollments started."},
	{ID: goGuard.MetricTOTPEnabled, Name: "goguard_totp_enabled_total", Help: "TOTP enrollments confirmed."},
	{ID: goGuard.MetricTOTPSuccess, Name: "goguard_totp_success_total", Help: "Accepted TOTP codes."},
	{ID: goGuard.MetricTOTPFailure, Name: "goguard_totp_failure_total", Help: "Rejected TOTP codes."},
	{ID: goGuard.MetricTOTPRateLimited, Name: "goguard_totp_rate_limited_total", Help: "Rate-limited second-factor attempts."},
	{ID: goGuard.MetricTOTPSecretMissing, Name: "goguard_totp_secret_missing_total", Help: "TOTP checks with no stored secret."},
	{ID: goGuard.MetricBackupCodeUsed, Name: "goguard_backup_code_used_total", Help: "Consumed backup codes."},
	{ID: goGuard.MetricBackupCodeFailed, Name: "goguard_backup_code_failed_total", Help: "Rejected backup codes."},
	{ID: goGuard.MetricBackupCodeRegenerated, Name: "goguard_backup_code_regenerated_total", Help: "Backup-code batch regenerations."},
	{ID: goGuard.MetricSessionCreated, Name: "goguard_session_created_total", Help: "Created sessions."},
	{ID: goGuard.MetricLogout, Name: "goguard_logout_total", Help: "Logouts."},
	{ID: goGuard.MetricGateRejectCSRF, Name: "goguard_gate_reject_csrf_total", Help: "Submissions rejected for CSRF."},
	{ID: goGuard.MetricGateRejectNonce, Name: "goguard_gate_reject_nonce_total", Help: "Submissions rejected for a bad nonce."},
	{ID: goGuard.MetricGateRejectTiming, Name: "goguard_gate_reject_timing_total", Help: "Submissions rejected by form timing."},
	{ID: goGuard.MetricGateRejectDuplicate, Name: "goguard_gate_reject_duplicate_total", Help: "Duplicate submissions rejected."},
	{ID: goGuard.MetricGateRejectBot, Name: "goguard_gate_reject_bot_total", Help: "Submissions rejected as automated."},
	{ID: goGuard.MetricGateRejectCaptcha, Name: "goguard_gate_reject_captcha_total", Help: "Submissions rejected for a wrong captcha."},
	{ID: goGuard.MetricRateLimitLedgerError, Name: "goguard_rate_limit_ledger_error_total", Help: "Rate-limit ledger failures allowed through."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goGuard.MetricLoginLatency, Name: "goguard_login_latency_seconds", Help: "Password login latency."},
}

// HistogramBounds are the bucket upper bounds in seconds.
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

// HistogramBoundSuffix names each bound in instrument names.
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

// NormalizeBuckets copies raw into a fixed array, zero-filling missing
// buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
