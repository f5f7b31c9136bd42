package goGuard

// RegisterRequest is the registration form as submitted.
type RegisterRequest struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// TOTPSetup is returned once by SetupTOTP. BackupCodes are shown to the user
// in NNNN-NNNN form and are never retrievable again.
type TOTPSetup struct {
	Secret          string
	ProvisioningURI string
	// QRCode is a data:image/png;base64 URI of ProvisioningURI.
	QRCode      string
	BackupCodes []string
}

// SecondFactor carries exactly one of a TOTP code or a backup code.
type SecondFactor struct {
	Code       string
	BackupCode string
}

// LoginResult is returned by a successful password login. The caller must
// replace its session reference with SessionID.
type LoginResult struct {
	SessionID    string
	AccountID    string
	Username     string
	RequiresTOTP bool
}

// SessionState is the read-only view of a session's authentication flags.
type SessionState struct {
	Authenticated bool   `json:"authenticated"`
	RequiresTOTP  bool   `json:"requires_totp"`
	TOTPVerified  bool   `json:"totp_verified"`
	AccountID     string `json:"account_id,omitempty"`
	Username      string `json:"username,omitempty"`
}

// FullyAuthenticated reports whether both factors, or the only one required,
// have been satisfied.
func (s SessionState) FullyAuthenticated() bool {
	return s.Authenticated && !s.RequiresTOTP
}
