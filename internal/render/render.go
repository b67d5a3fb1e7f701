package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"net/http"
	"strings"
	"time"

	"github.com/nao1215/portalcapture/internal/config"
	"github.com/nao1215/portalcapture/internal/model"
)

var (
	// ErrNoImage is returned when the service response carries no image.
	ErrNoImage = errors.New("render response contains no image")

	// ErrNotPNG is returned when the image payload is not a valid PNG.
	ErrNotPNG = errors.New("render payload is not a PNG image")
)

// pngSignature is the 8-byte header of every PNG file.
var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// Request describes one page render.
type Request struct {
	// URL is the page to render.
	URL string

	// Session carries the cookies of the authenticated portal session.
	Session *model.Session

	// Wait is the settle interval between load and capture.
	Wait time.Duration

	// FullPage renders the whole document instead of the viewport.
	FullPage bool

	// Timeout bounds the render on the service side.
	Timeout time.Duration
}

// Result is the raw output of a render.
type Result struct {
	// Image holds the decoded image bytes.
	Image []byte

	// HTML is the rendered markup, when the backend returns it.
	HTML string
}

// Renderer renders pages through a headless browser service.
type Renderer interface {
	Render(ctx context.Context, req Request) (*Result, error)
}

// New creates the Renderer selected by cfg.RenderBackend.
// client is used by HTTP based backends; nil means a default client.
func New(cfg *config.Config, client *http.Client) (Renderer, error) {
	switch cfg.RenderBackend {
	case config.RenderBackendSplash:
		return NewSplashRenderer(cfg.RenderEndpoint, client, cfg.UserAgent), nil
	case config.RenderBackendCDP:
		return NewCDPRenderer(cfg.RenderEndpoint, cfg.ViewportWidth, cfg.ViewportHeight), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownRenderBackend, cfg.RenderBackend)
	}
}

// decodeBase64Image decodes a base64 image payload and checks it is a PNG.
func decodeBase64Image(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, ErrNoImage
	}
	// Some services prefix a data URL header.
	if i := strings.Index(payload, ";base64,"); i >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[i+len(";base64,"):]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotPNG, err)
	}
	if err := validatePNG(data); err != nil {
		return nil, err
	}
	return data, nil
}

// validatePNG checks the PNG signature and header chunk.
func validatePNG(data []byte) error {
	if len(data) == 0 {
		return ErrNoImage
	}
	if !bytes.HasPrefix(data, pngSignature) {
		return ErrNotPNG
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotPNG, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return fmt.Errorf("%w: empty image", ErrNotPNG)
	}
	return nil
}
