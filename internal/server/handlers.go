package server

import (
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/MrEthical07/goGuard/replay"
)

type formResponse struct {
	replay.FormTokens
	Captcha string `json:"captcha,omitempty"`
}

// prepare answers the GET half of a form: fresh tokens, a started timer and,
// when asked, a captcha image.
func (s *Server) prepare(formID string, withCaptcha bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokens, err := middleware.PrepareForm(s.engine, r, formID)
		if err != nil {
			_ = s.fail(w, err)
			return
		}
		resp := formResponse{FormTokens: tokens}
		if withCaptcha {
			ch, err := s.engine.Guard().IssueCaptcha(r.Context(), middleware.SessionID(r.Context()))
			if err != nil {
				_ = s.fail(w, err)
				return
			}
			resp.Captcha = ch.Image
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) error {
	id, err := s.engine.Register(r.Context(), goGuard.RegisterRequest{
		Username:        r.PostFormValue("username"),
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	})
	if err != nil {
		return s.fail(w, err)
	}
	writeJSON(w, http.StatusCreated, map[string]string{"account_id": id})
	return nil
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) error {
	res, err := s.engine.Login(r.Context(),
		middleware.SessionID(r.Context()),
		r.PostFormValue("username"),
		r.PostFormValue("password"),
	)
	if err != nil {
		return s.fail(w, err)
	}
	if err := s.sessions.Rotate(w, r, res.SessionID); err != nil {
		return s.fail(w, err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username":      res.Username,
		"requires_totp": res.RequiresTOTP,
	})
	return nil
}

func (s *Server) verifyTOTP(w http.ResponseWriter, r *http.Request) error {
	err := s.engine.VerifyLogin(r.Context(), middleware.SessionID(r.Context()), goGuard.SecondFactor{
		Code:       r.PostFormValue("token"),
		BackupCode: r.PostFormValue("backup_code"),
	})
	if err != nil {
		return s.fail(w, err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
	return nil
}

type setupResponse struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	QRCode          string   `json:"qr_code"`
	BackupCodes     []string `json:"backup_codes"`
}

func (s *Server) setupTOTP(w http.ResponseWriter, r *http.Request) error {
	state, _ := middleware.SessionState(r.Context())
	setup, err := s.engine.SetupTOTP(r.Context(), state.AccountID)
	if err != nil {
		return s.fail(w, err)
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, setupResponse{
		Secret:          setup.Secret,
		ProvisioningURI: setup.ProvisioningURI,
		QRCode:          setup.QRCode,
		BackupCodes:     setup.BackupCodes,
	})
	return nil
}

func (s *Server) confirmTOTP(w http.ResponseWriter, r *http.Request) error {
	state, _ := middleware.SessionState(r.Context())
	if err := s.engine.VerifyTOTPSetup(r.Context(), state.AccountID, r.PostFormValue("token")); err != nil {
		return s.fail(w, err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"totp_enabled": true})
	return nil
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) error {
	if err := s.engine.Logout(r.Context(), middleware.SessionID(r.Context())); err != nil {
		return s.fail(w, err)
	}
	s.sessions.Clear(w)
	writeJSON(w, http.StatusOK, map[string]bool{"logged_out": true})
	return nil
}

type sessionResponse struct {
	goGuard.SessionState
	TOTPEnabled bool   `json:"totp_enabled"`
	CSRFToken   string `json:"csrf_token"`
}

// session reports the flags, the account's 2FA enrollment and a CSRF token
// for the action endpoints.
func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	state, _ := middleware.SessionState(r.Context())
	resp := sessionResponse{SessionState: state}
	if state.Authenticated {
		enabled, err := s.engine.TOTPEnabled(r.Context(), state.AccountID)
		if err != nil {
			_ = s.fail(w, err)
			return
		}
		resp.TOTPEnabled = enabled
	}
	token, err := s.engine.Guard().IssueCSRFToken(r.Context(), middleware.SessionID(r.Context()))
	if err != nil {
		_ = s.fail(w, err)
		return
	}
	resp.CSRFToken = token
	writeJSON(w, http.StatusOK, resp)
}

// captcha replaces the session's challenge. Only the image leaves the server.
func (s *Server) captcha(w http.ResponseWriter, r *http.Request) {
	ch, err := s.engine.Guard().IssueCaptcha(r.Context(), middleware.SessionID(r.Context()))
	if err != nil {
		_ = s.fail(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]string{"image": ch.Image})
}
