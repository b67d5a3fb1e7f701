package captcha

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nao1215/portalcapture/internal/config"
	"github.com/nao1215/portalcapture/internal/model"
)

var (
	// ErrEmptyAnswer is returned when a solver answers with an empty string.
	ErrEmptyAnswer = errors.New("solver returned an empty answer")

	// ErrTaskFailed is returned when the solver reports the task as failed.
	ErrTaskFailed = errors.New("solver task failed")

	// ErrNoToken is returned when the challenge carries no session token.
	ErrNoToken = errors.New("challenge has no session token")
)

// Resolver returns an answer for a session-bound captcha challenge.
type Resolver interface {
	Solve(ctx context.Context, challenge model.CaptchaChallenge) (model.CaptchaAnswer, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, challenge model.CaptchaChallenge) (model.CaptchaAnswer, error)

// Solve calls f.
func (f ResolverFunc) Solve(ctx context.Context, challenge model.CaptchaChallenge) (model.CaptchaAnswer, error) {
	return f(ctx, challenge)
}

// Static returns a Resolver that always answers with text.
func Static(text string) Resolver {
	return ResolverFunc(func(_ context.Context, challenge model.CaptchaChallenge) (model.CaptchaAnswer, error) {
		if challenge.SessionToken == "" {
			return model.CaptchaAnswer{}, ErrNoToken
		}
		return newAnswer(text)
	})
}

// newAnswer trims a raw solver answer and rejects empty ones.
func newAnswer(raw string) (model.CaptchaAnswer, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return model.CaptchaAnswer{}, ErrEmptyAnswer
	}
	return model.CaptchaAnswer{Text: text}, nil
}

// New creates the Resolver selected by cfg.CaptchaBackend. client is used
// by the http backend; nil means a default client.
func New(cfg *config.Config, client *http.Client, logger *slog.Logger) (Resolver, error) {
	switch cfg.CaptchaBackend {
	case config.CaptchaBackendHTTP:
		opts := []HTTPOption{
			WithPollInterval(cfg.CaptchaPollInterval),
			WithTimeout(cfg.CaptchaTimeout),
			WithLogger(logger),
		}
		if client != nil {
			opts = append(opts, WithHTTPClient(client))
		}
		return NewHTTPResolver(cfg.CaptchaEndpoint, cfg.CaptchaAPIKey, opts...), nil
	case config.CaptchaBackendAMQP:
		return NewAMQPResolver(cfg.CaptchaAMQPURL, cfg.CaptchaQueue, cfg.CaptchaTimeout, logger), nil
	case config.CaptchaBackendStatic:
		return Static(cfg.CaptchaAnswer), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownCaptchaBackend, cfg.CaptchaBackend)
	}
}
