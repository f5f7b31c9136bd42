package goGuard

import (
	"testing"
	"time"
)

func TestLint_DefaultConfigNoWarnings(t *testing.T) {
	cfg := defaultConfig()
	if ws := cfg.Lint(); len(ws) != 0 {
		t.Fatalf("default config should lint clean, got %v", ws.Codes())
	}
}

func TestLint_Findings(t *testing.T) {
	tests := []struct {
		code     string
		severity LintSeverity
		mutate   func(*Config)
	}{
		{"rate_limits_disabled", LintHigh, func(c *Config) {
			c.RateLimit.RegisterMax, c.RateLimit.LoginMax, c.RateLimit.TOTPMax = 0, 0, 0
		}},
		{"login_rate_limit_disabled", LintWarn, func(c *Config) { c.RateLimit.LoginMax = 0 }},
		{"totp_rate_limit_disabled", LintWarn, func(c *Config) { c.RateLimit.TOTPMax = 0 }},
		{"lockout_disabled", LintHigh, func(c *Config) { c.Lockout.Threshold = 0 }},
		{"lockout_threshold_high", LintWarn, func(c *Config) { c.Lockout.Threshold = 25 }},
		{"totp_skew_large", LintWarn, func(c *Config) { c.TOTP.Skew = 3 }},
		{"backup_codes_few", LintInfo, func(c *Config) { c.TOTP.BackupCodeCount = 2 }},
		{"min_form_time_zero", LintWarn, func(c *Config) { c.Replay.MinFormTime = 0 }},
		{"nonce_window_long", LintWarn, func(c *Config) { c.Replay.NonceWindow = time.Hour }},
		{"csrf_ttl_long", LintInfo, func(c *Config) { c.Replay.CSRFTokenTTL = 48 * time.Hour }},
		{"session_ttl_long", LintInfo, func(c *Config) { c.Session.TTL = 30 * 24 * time.Hour }},
		{"argon2_memory_low", LintWarn, func(c *Config) { c.Password.Memory = 16 * 1024 }},
		{"audit_drop_if_full", LintInfo, func(c *Config) { c.Audit.Enabled = true }},
	}

	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			ws := cfg.Lint()
			w, ok := findWarning(ws, tc.code)
			if !ok {
				t.Fatalf("expected %s, got %v", tc.code, ws.Codes())
			}
			if w.Severity != tc.severity {
				t.Fatalf("severity = %s, want %s", w.Severity, tc.severity)
			}
			if w.Message == "" {
				t.Fatal("warning has no message")
			}
		})
	}
}

func TestLint_AllLimitsOffReportsOnce(t *testing.T) {
	cfg := defaultConfig()
	cfg.RateLimit.RegisterMax, cfg.RateLimit.LoginMax, cfg.RateLimit.TOTPMax = 0, 0, 0
	codes := cfg.Lint().Codes()
	if containsCode(codes, "login_rate_limit_disabled") || containsCode(codes, "totp_rate_limit_disabled") {
		t.Fatalf("per-scope warnings should fold into rate_limits_disabled, got %v", codes)
	}
}

func TestLint_AtLeast(t *testing.T) {
	cfg := defaultConfig()
	cfg.Lockout.Threshold = 0
	cfg.TOTP.Skew = 2
	cfg.TOTP.BackupCodeCount = 1

	ws := cfg.Lint()
	if len(ws) != 3 {
		t.Fatalf("expected 3 findings, got %v", ws.Codes())
	}
	if got := ws.AtLeast(LintWarn).Codes(); len(got) != 2 {
		t.Fatalf("AtLeast(warn) = %v", got)
	}
	high := ws.AtLeast(LintHigh)
	if len(high) != 1 || high[0].Code != "lockout_disabled" {
		t.Fatalf("AtLeast(high) = %v", high.Codes())
	}
}

func TestLintSeverityString(t *testing.T) {
	cases := map[LintSeverity]string{
		LintInfo:         "info",
		LintWarn:         "warn",
		LintHigh:         "high",
		LintSeverity(42): "unknown",
	}
	for sev, want := range cases {
		if got := sev.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", sev, got, want)
		}
	}
}

func findWarning(ws LintResult, code string) (LintWarning, bool) {
	for _, w := range ws {
		if w.Code == code {
			return w, true
		}
	}
	return LintWarning{}, false
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
