package middleware

import (
	"context"
	"net/http"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/internal"
	"github.com/MrEthical07/goGuard/replay"
	"go.uber.org/zap"
)

// Form field names read by SecureForm. Each may also arrive as the matching
// header.
const (
	FieldCSRFToken    = "csrf_token"
	FieldNonce        = "nonce"
	FieldSubmissionID = "submission_id"
	FieldCaptcha      = "captcha"

	HeaderCSRFToken    = "X-CSRF-Token"
	HeaderNonce        = "X-Nonce"
	HeaderSubmissionID = "X-Submission-ID"
)

// FormHandler handles a submission that passed the gate. It writes its own
// response; a non-nil error marks the action as failed so the submission id
// is released and the client may retry with it.
type FormHandler func(w http.ResponseWriter, r *http.Request) error

// FormOption adjusts SecureForm.
type FormOption func(*formConfig)

type formConfig struct {
	gate   *replay.Gate
	logger *zap.Logger
}

// WithGate replaces the engine's default gate, for example to add
// replay.CaptchaCheck or replay.BotCheck.
func WithGate(g *replay.Gate) FormOption {
	return func(c *formConfig) {
		if g != nil {
			c.gate = g
		}
	}
}

// WithFormLogger logs store failures seen by SecureForm.
func WithFormLogger(logger *zap.Logger) FormOption {
	return func(c *formConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// SecureForm runs the gate for formID before h. GET and HEAD start the
// form's timer and then call h, which renders the form. A rejection answers
// 403 with the reason's message; a store failure answers 503. It must run
// inside Sessions.
func SecureForm(engine *goGuard.Engine, formID string, h FormHandler, opts ...FormOption) http.Handler {
	cfg := formConfig{gate: engine.Gate(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			if rs, ok := requestSessionFrom(r.Context()); ok {
				if err := engine.Guard().MarkFormStart(r.Context(), rs.id, formID); err != nil {
					cfg.logger.Error("mark form start", zap.String("form", formID), zap.Error(err))
					writeError(w, http.StatusServiceUnavailable, "session store unavailable")
					return
				}
			}
			_ = h(w, r)
			return
		}

		rs, ok := requestSessionFrom(r.Context())
		if !ok {
			writeError(w, http.StatusForbidden, replay.ReasonCSRF.Message())
			return
		}
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "malformed form")
			return
		}

		sub := &replay.Submission{
			SessionID:     rs.id,
			FormID:        formID,
			CSRFToken:     formValue(r, FieldCSRFToken, HeaderCSRFToken),
			Nonce:         formValue(r, FieldNonce, HeaderNonce),
			SubmissionID:  formValue(r, FieldSubmissionID, HeaderSubmissionID),
			CaptchaAnswer: r.PostFormValue(FieldCaptcha),
			Accept:        r.Header.Get("Accept"),
			Request: replay.RequestInfo{
				ClientIP:  rs.clientIP,
				UserAgent: rs.userAgent,
				Endpoint:  r.URL.Path,
			},
		}

		if err := cfg.gate.Check(r.Context(), sub); err != nil {
			if sub.Recorded() {
				release(r.Context(), engine, cfg.logger, rs.id, sub.SubmissionID)
			}
			if rej, ok := replay.AsRejection(err); ok {
				writeJSON(w, http.StatusForbidden, map[string]string{
					"error":  rej.Message,
					"reason": string(rej.Reason),
				})
				return
			}
			cfg.logger.Error("form gate", zap.String("form", formID), zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "session store unavailable")
			return
		}

		if err := h(w, r); err != nil && sub.Recorded() {
			release(r.Context(), engine, cfg.logger, rs.id, sub.SubmissionID)
		}
	})
}

// release frees a recorded submission id. The request context may already
// be cancelled, so cancellation is stripped.
func release(ctx context.Context, engine *goGuard.Engine, logger *zap.Logger, sid, submissionID string) {
	if err := engine.Guard().ReleaseSubmission(context.WithoutCancel(ctx), sid, submissionID); err != nil {
		logger.Warn("release submission id",
			zap.String("session", internal.ShortID(sid, 8)),
			zap.Error(err),
		)
	}
}

// PrepareForm issues the hidden tokens for formID and starts its timer. Call
// it from the GET handler that renders the form.
func PrepareForm(engine *goGuard.Engine, r *http.Request, formID string) (replay.FormTokens, error) {
	rs, ok := requestSessionFrom(r.Context())
	if !ok {
		return replay.FormTokens{}, goGuard.ErrSessionNotFound
	}
	info := replay.RequestInfo{ClientIP: rs.clientIP, UserAgent: rs.userAgent, Endpoint: r.URL.Path}

	tokens, err := engine.Guard().FormTokens(r.Context(), rs.id, info)
	if err != nil {
		return replay.FormTokens{}, err
	}
	if err := engine.Guard().MarkFormStart(r.Context(), rs.id, formID); err != nil {
		return replay.FormTokens{}, err
	}
	return tokens, nil
}

func formValue(r *http.Request, field, header string) string {
	if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
		return v
	}
	return strings.TrimSpace(r.PostFormValue(field))
}
