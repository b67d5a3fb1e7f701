package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/portalcapture/internal/artifact"
	"github.com/nao1215/portalcapture/internal/model"
)

// Capturer renders an authenticated page and stores it as an artifact.
type Capturer struct {
	renderer Renderer
	store    *artifact.Store
	wait     time.Duration
	fullPage bool
	timeout  time.Duration
	logger   *slog.Logger
}

// CapturerOption configures a Capturer.
type CapturerOption func(*Capturer)

// WithWait sets the settle interval before capture.
func WithWait(d time.Duration) CapturerOption {
	return func(c *Capturer) { c.wait = d }
}

// WithFullPage toggles full page rendering.
func WithFullPage(full bool) CapturerOption {
	return func(c *Capturer) { c.fullPage = full }
}

// WithRenderTimeout bounds each render.
func WithRenderTimeout(d time.Duration) CapturerOption {
	return func(c *Capturer) { c.timeout = d }
}

// WithCapturerLogger sets the logger.
func WithCapturerLogger(l *slog.Logger) CapturerOption {
	return func(c *Capturer) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCapturer creates a Capturer. Full page rendering is on by default.
func NewCapturer(renderer Renderer, store *artifact.Store, opts ...CapturerOption) *Capturer {
	c := &Capturer{
		renderer: renderer,
		store:    store,
		fullPage: true,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capture renders targetURL with the authenticated session and writes the
// image to the path derived from identity and kind, replacing any file
// that is already there.
//
// A login that was not accepted is refused with model.ErrAuthenticationFailed.
// Other failures wrap model.ErrRender; in that case any stale artifact at
// the target path is removed so no file suggests a successful run.
func (c *Capturer) Capture(ctx context.Context, auth *model.AuthResult, identity, targetURL string, kind model.ArtifactKind) (*model.CaptureArtifact, error) {
	if auth == nil || !auth.Authenticated() || auth.Session == nil {
		return nil, fmt.Errorf("%w: capture requires an accepted login", model.ErrAuthenticationFailed)
	}

	path, err := c.store.PathFor(identity, kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrRender, err)
	}

	a, err := c.capture(ctx, auth.Session, targetURL, path)
	if err != nil {
		if rmErr := c.store.Remove(path); rmErr != nil {
			c.logger.Warn("failed to remove stale artifact", "path", path, "error", rmErr)
		}
		return nil, fmt.Errorf("%w: %w", model.ErrRender, err)
	}

	c.logger.Debug("artifact stored", "path", a.TargetPath, "bytes", len(a.Data), "digest", a.Digest)
	return a, nil
}

func (c *Capturer) capture(ctx context.Context, session *model.Session, targetURL, path string) (*model.CaptureArtifact, error) {
	start := time.Now()
	res, err := c.renderer.Render(ctx, Request{
		URL:      targetURL,
		Session:  session,
		Wait:     c.wait,
		FullPage: c.fullPage,
		Timeout:  c.timeout,
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, ErrNoImage
	}
	if err := validatePNG(res.Image); err != nil {
		return nil, err
	}
	c.logger.Debug("page rendered", "url", targetURL, "duration", time.Since(start))

	a := &model.CaptureArtifact{
		Data:       res.Image,
		Encoding:   model.EncodingPNG,
		TargetPath: path,
		SourceURL:  targetURL,
		HTML:       res.HTML,
	}
	if err := c.store.Save(a); err != nil {
		if errors.Is(err, artifact.ErrEmptyArtifact) {
			return nil, ErrNoImage
		}
		return nil, err
	}
	return a, nil
}
