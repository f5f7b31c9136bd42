package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/metrics/export/prometheus"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/MrEthical07/goGuard/replay"
	"go.uber.org/zap"
)

// Form ids. Each names the timer started by the matching GET.
const (
	FormRegister   = "register"
	FormLogin      = "login"
	FormTOTPVerify = "totp_verify"
)

// Config wires a Server.
type Config struct {
	Engine *goGuard.Engine
	Tokens *jwt.Manager
	Cookie middleware.CookieOptions
	Logger *zap.Logger

	// CaptchaOnRegister adds the captcha check to registration.
	CaptchaOnRegister bool
	// BotCheck adds user-agent screening to every form.
	BotCheck bool

	// Health reports backend readiness for /healthz. Nil reports ready.
	Health func(ctx context.Context) error
}

// Server routes the JSON API.
type Server struct {
	engine   *goGuard.Engine
	sessions *middleware.Sessions
	logger   *zap.Logger
	health   func(ctx context.Context) error
	metrics  *prometheus.PrometheusExporter

	captchaOnRegister bool
	registerGate      *replay.Gate
	formGate          *replay.Gate
	actionGate        *replay.Gate
}

// New checks cfg and builds the route table.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("server: nil engine")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("server: nil token manager")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	formGate := cfg.Engine.Gate()
	if cfg.BotCheck {
		formGate = formGate.With(replay.BotCheck())
	}
	registerGate := formGate
	if cfg.CaptchaOnRegister {
		registerGate = formGate.With(replay.CaptchaCheck(cfg.Engine.Guard()))
	}

	return &Server{
		engine:            cfg.Engine,
		sessions:          middleware.NewSessions(cfg.Engine, cfg.Tokens, cfg.Cookie, logger),
		logger:            logger,
		health:            cfg.Health,
		metrics:           prometheus.NewPrometheusExporter(cfg.Engine),
		captchaOnRegister: cfg.CaptchaOnRegister,
		registerGate:      registerGate,
		formGate:          formGate,
		actionGate:        cfg.Engine.NewGate(replay.CSRFCheck(cfg.Engine.Guard())),
	}, nil
}

// Handler returns the routed API. /healthz and /metrics bypass sessions.
func (s *Server) Handler() http.Handler {
	app := http.NewServeMux()

	app.HandleFunc("GET /register", s.prepare(FormRegister, s.captchaOnRegister))
	app.Handle("POST /register", s.secure(FormRegister, s.registerGate, s.register))

	app.HandleFunc("GET /login", s.prepare(FormLogin, false))
	app.Handle("POST /login", s.secure(FormLogin, s.formGate, s.login))

	app.Handle("GET /totp/verify", middleware.RequireAuthenticated(s.prepare(FormTOTPVerify, false)))
	app.Handle("POST /totp/verify", middleware.RequireAuthenticated(s.secure(FormTOTPVerify, s.formGate, s.verifyTOTP)))

	app.Handle("POST /totp/setup", middleware.RequireTOTP(s.secure("totp_setup", s.actionGate, s.setupTOTP)))
	app.Handle("POST /totp/confirm", middleware.RequireTOTP(s.secure("totp_confirm", s.actionGate, s.confirmTOTP)))
	app.Handle("POST /logout", s.secure("logout", s.actionGate, s.logout))

	app.HandleFunc("GET /session", s.session)
	app.HandleFunc("GET /captcha", s.captcha)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", s.healthz)
	root.Handle("GET /metrics", s.metrics.Handler())
	root.Handle("/", s.sessions.Handler(app))
	return root
}

func (s *Server) secure(formID string, gate *replay.Gate, h middleware.FormHandler) http.Handler {
	return middleware.SecureForm(s.engine, formID, h,
		middleware.WithGate(gate),
		middleware.WithFormLogger(s.logger),
	)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fail writes the mapped error and returns err so SecureForm releases the
// submission id.
func (s *Server) fail(w http.ResponseWriter, err error) error {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, status, msg)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
