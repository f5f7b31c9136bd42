package goGuard

import (
	"fmt"
	"time"
)

// LintSeverity ranks a LintWarning.
type LintSeverity uint8

const (
	// LintInfo marks a setting worth a second look.
	LintInfo LintSeverity = iota
	// LintWarn marks a setting that weakens a defense.
	LintWarn
	// LintHigh marks a setting that disables a defense outright.
	LintHigh
)

// String returns the lowercase severity name.
func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "info"
	case LintWarn:
		return "warn"
	case LintHigh:
		return "high"
	default:
		return "unknown"
	}
}

// LintWarning is one advisory finding about a Config that Validate accepts.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the ordered list of findings.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// AtLeast returns the findings at or above min.
func (r LintResult) AtLeast(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// Lint reports settings that are valid but weaken the guard. It never fails;
// callers decide which severities to act on.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, format string, args ...any) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	if c.RateLimit.RegisterMax == 0 && c.RateLimit.LoginMax == 0 && c.RateLimit.TOTPMax == 0 {
		add("rate_limits_disabled", LintHigh, "every rate-limit policy is disabled")
	} else {
		if c.RateLimit.LoginMax == 0 {
			add("login_rate_limit_disabled", LintWarn, "login attempts are not rate limited")
		}
		if c.RateLimit.TOTPMax == 0 {
			add("totp_rate_limit_disabled", LintWarn, "second-factor attempts are not rate limited")
		}
	}

	if c.Lockout.Threshold == 0 {
		add("lockout_disabled", LintHigh, "account lockout is disabled")
	} else if c.Lockout.Threshold > 10 {
		add("lockout_threshold_high", LintWarn, "lockout threshold %d allows a long guessing run", c.Lockout.Threshold)
	}

	if c.TOTP.Skew > 1 {
		add("totp_skew_large", LintWarn, "TOTP skew of %d steps widens the replay window", c.TOTP.Skew)
	}
	if c.TOTP.BackupCodeCount < 5 {
		add("backup_codes_few", LintInfo, "only %d backup codes per batch", c.TOTP.BackupCodeCount)
	}

	if c.Replay.MinFormTime == 0 {
		add("min_form_time_zero", LintWarn, "form timing accepts instant submissions")
	}
	if c.Replay.NonceWindow > 15*time.Minute {
		add("nonce_window_long", LintWarn, "nonce window %s is longer than 15m", c.Replay.NonceWindow)
	}
	if c.Replay.CSRFTokenTTL > 24*time.Hour {
		add("csrf_ttl_long", LintInfo, "CSRF token TTL %s is longer than a day", c.Replay.CSRFTokenTTL)
	}

	if c.Session.TTL > 7*24*time.Hour {
		add("session_ttl_long", LintInfo, "session TTL %s is longer than a week", c.Session.TTL)
	}

	if c.Password.Memory < 64*1024 {
		add("argon2_memory_low", LintWarn, "argon2 memory %d KiB is below 64 MiB", c.Password.Memory)
	}

	if c.Audit.Enabled && c.Audit.DropIfFull {
		add("audit_drop_if_full", LintInfo, "audit events are dropped when the buffer is full")
	}

	return ws
}
