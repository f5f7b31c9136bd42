package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/internal"
	"github.com/MrEthical07/goGuard/jwt"
	"go.uber.org/zap"
)

// DefaultCookieName is used when CookieOptions.Name is empty.
const DefaultCookieName = "guard_session"

// CookieOptions shapes the session cookie.
type CookieOptions struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	// TrustForwardedFor takes the client IP from the first X-Forwarded-For
	// entry. Enable only behind a proxy that sets it.
	TrustForwardedFor bool
}

func (o CookieOptions) withDefaults() CookieOptions {
	if o.Name == "" {
		o.Name = DefaultCookieName
	}
	if o.Path == "" {
		o.Path = "/"
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

type requestSessionKey struct{}

type requestSession struct {
	id        string
	state     goGuard.SessionState
	clientIP  string
	userAgent string
}

// Sessions binds every request to a server-side session through a signed
// cookie that carries only the session id.
type Sessions struct {
	engine *goGuard.Engine
	tokens *jwt.Manager
	opts   CookieOptions
	logger *zap.Logger
}

// NewSessions returns the session middleware. A nil logger disables logging.
func NewSessions(engine *goGuard.Engine, tokens *jwt.Manager, opts CookieOptions, logger *zap.Logger) *Sessions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sessions{
		engine: engine,
		tokens: tokens,
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

// Handler resolves the cookie, loads the session or starts an anonymous one,
// and stores the result in the request context. Store failures answer 503.
func (s *Sessions) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r, s.opts.TrustForwardedFor)
		ua := r.UserAgent()
		ctx := goGuard.WithUserAgent(goGuard.WithClientIP(r.Context(), ip), ua)

		rs := &requestSession{clientIP: ip, userAgent: ua}
		if sid, ok := s.cookieSession(r); ok {
			state, err := s.engine.Session(ctx, sid)
			switch {
			case err == nil:
				rs.id, rs.state = sid, state
			case errors.Is(err, goGuard.ErrSessionNotFound):
			default:
				s.logger.Error("load session", zap.String("session", internal.ShortID(sid, 8)), zap.Error(err))
				writeError(w, http.StatusServiceUnavailable, "session store unavailable")
				return
			}
		}

		if rs.id == "" {
			sid, err := s.engine.StartSession(ctx)
			if err != nil {
				s.logger.Error("start session", zap.Error(err))
				writeError(w, http.StatusServiceUnavailable, "session store unavailable")
				return
			}
			if err := s.setCookie(w, sid); err != nil {
				s.logger.Error("issue session cookie", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			rs.id = sid
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, requestSessionKey{}, rs)))
	})
}

// Rotate points the cookie at sid. Call it after Engine.Login replaced the
// session.
func (s *Sessions) Rotate(w http.ResponseWriter, r *http.Request, sid string) error {
	if rs, ok := r.Context().Value(requestSessionKey{}).(*requestSession); ok {
		rs.id = sid
	}
	return s.setCookie(w, sid)
}

// Clear expires the cookie.
func (s *Sessions) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.Name,
		Value:    "",
		Path:     s.opts.Path,
		Domain:   s.opts.Domain,
		MaxAge:   -1,
		Secure:   s.opts.Secure,
		HttpOnly: true,
		SameSite: s.opts.SameSite,
	})
}

func (s *Sessions) cookieSession(r *http.Request) (string, bool) {
	c, err := r.Cookie(s.opts.Name)
	if err != nil || c.Value == "" {
		return "", false
	}
	claims, err := s.tokens.Parse(c.Value)
	if err != nil {
		s.logger.Debug("session cookie rejected", zap.Error(err))
		return "", false
	}
	return claims.SID, true
}

func (s *Sessions) setCookie(w http.ResponseWriter, sid string) error {
	value, err := s.tokens.Issue(sid)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.Name,
		Value:    value,
		Path:     s.opts.Path,
		Domain:   s.opts.Domain,
		MaxAge:   int(s.tokens.TTL().Seconds()),
		Secure:   s.opts.Secure,
		HttpOnly: true,
		SameSite: s.opts.SameSite,
	})
	return nil
}

// SessionID returns the session id bound by Sessions, or "".
func SessionID(ctx context.Context) string {
	if rs, ok := ctx.Value(requestSessionKey{}).(*requestSession); ok {
		return rs.id
	}
	return ""
}

// SessionState returns the flags loaded by Sessions. A freshly started
// session reports the zero state.
func SessionState(ctx context.Context) (goGuard.SessionState, bool) {
	rs, ok := ctx.Value(requestSessionKey{}).(*requestSession)
	if !ok {
		return goGuard.SessionState{}, false
	}
	return rs.state, true
}

func requestSessionFrom(ctx context.Context) (*requestSession, bool) {
	rs, ok := ctx.Value(requestSessionKey{}).(*requestSession)
	return rs, ok
}

func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
