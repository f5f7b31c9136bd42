package replay

import (
	"context"
	"strings"

	"github.com/MrEthical07/goGuard/internal"
)

const (
	captchaAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	captchaLength   = 5
)

// Renderer turns captcha text into something a client can display.
type Renderer interface {
	Render(text string) (string, error)
}

// PlainRenderer returns the text unchanged.
type PlainRenderer struct{}

// Render returns text unchanged.
func (PlainRenderer) Render(text string) (string, error) {
	return text, nil
}

// Challenge is an issued captcha.
type Challenge struct {
	Text  string
	Image string
}

// IssueCaptcha stores a fresh challenge in the session, replacing any previous
// one.
func (g *Guard) IssueCaptcha(ctx context.Context, sid string) (Challenge, error) {
	text, err := internal.RandomString(captchaAlphabet, captchaLength)
	if err != nil {
		return Challenge{}, err
	}
	image, err := g.renderer.Render(text)
	if err != nil {
		return Challenge{}, err
	}
	if err := g.store.SetCaptcha(ctx, sid, text, g.now()); err != nil {
		return Challenge{}, err
	}
	return Challenge{Text: text, Image: image}, nil
}

// ValidateCaptcha compares input case-insensitively. A correct or expired
// answer clears the challenge; a wrong one leaves it for another try.
func (g *Guard) ValidateCaptcha(ctx context.Context, sid, input string) error {
	sess, err := g.store.Get(ctx, sid)
	if err != nil {
		if notFound(err) {
			return ErrCaptchaInvalid
		}
		return err
	}
	if sess.CaptchaText == "" {
		return ErrCaptchaInvalid
	}

	if g.now().Sub(sess.CaptchaIssuedAt) > g.config.CaptchaTTL {
		if err := g.store.ClearCaptcha(ctx, sid); err != nil {
			return err
		}
		return ErrCaptchaInvalid
	}

	if !strings.EqualFold(strings.TrimSpace(input), sess.CaptchaText) {
		return ErrCaptchaInvalid
	}
	return g.store.ClearCaptcha(ctx, sid)
}
