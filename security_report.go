package goGuard

import "time"

// SecurityReport summarizes which defenses are active. Binaries log it at
// startup.
type SecurityReport struct {
	LockoutEnabled   bool
	LockoutThreshold int
	LockoutDuration  time.Duration
	TOTPSkewSteps    uint
	BackupCodeCount  int
	StrictNonceBind  bool
	MinFormTime      time.Duration
	MaxFormTime      time.Duration
	DedupRequiresID  bool
	RegisterLimited  bool
	LoginLimited     bool
	TOTPLimited      bool
	SessionTTL       time.Duration
	Argon2           PasswordConfigReport
	AuditEnabled     bool
	MetricsEnabled   bool
	HighLintFindings []string
}

// PasswordConfigReport is the argon2id cost in effect.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
}

// SecurityReport describes the defenses of the running configuration.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	cfg := e.config
	return SecurityReport{
		LockoutEnabled:   cfg.Lockout.Threshold > 0,
		LockoutThreshold: cfg.Lockout.Threshold,
		LockoutDuration:  cfg.Lockout.Duration,
		TOTPSkewSteps:    cfg.TOTP.Skew,
		BackupCodeCount:  cfg.TOTP.BackupCodeCount,
		StrictNonceBind:  cfg.Replay.StrictBinding,
		MinFormTime:      cfg.Replay.MinFormTime,
		MaxFormTime:      cfg.Replay.MaxFormTime,
		DedupRequiresID:  cfg.Replay.RequireSubmissionID,
		RegisterLimited:  cfg.RateLimit.registerPolicy().Enabled(),
		LoginLimited:     cfg.RateLimit.loginPolicy().Enabled(),
		TOTPLimited:      cfg.RateLimit.totpPolicy().Enabled(),
		SessionTTL:       cfg.Session.TTL,
		Argon2: PasswordConfigReport{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
		},
		AuditEnabled:     cfg.Audit.Enabled,
		MetricsEnabled:   cfg.Metrics.Enabled,
		HighLintFindings: cfg.Lint().AtLeast(LintHigh).Codes(),
	}
}
