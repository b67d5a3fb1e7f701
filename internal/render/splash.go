package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// splashMaxResponse bounds render.json responses. Full page PNGs of long
// reports are large, and base64 adds a third.
const splashMaxResponse = 64 << 20

// SplashRenderer renders pages through a Splash-compatible render.json API.
type SplashRenderer struct {
	endpoint  string
	client    *http.Client
	userAgent string
}

// NewSplashRenderer creates a SplashRenderer for the service at endpoint.
func NewSplashRenderer(endpoint string, client *http.Client, userAgent string) *SplashRenderer {
	if client == nil {
		client = &http.Client{}
	}
	return &SplashRenderer{
		endpoint:  strings.TrimRight(endpoint, "/"),
		client:    client,
		userAgent: userAgent,
	}
}

// splashRequest is the render.json request body.
type splashRequest struct {
	URL       string            `json:"url"`
	HTML      int               `json:"html"`
	PNG       int               `json:"png"`
	Wait      float64           `json:"wait"`
	RenderAll int               `json:"render_all"`
	Timeout   float64           `json:"timeout,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// splashResponse is the subset of render.json output that is used.
type splashResponse struct {
	URL  string `json:"url"`
	HTML string `json:"html"`
	PNG  string `json:"png"`
}

// splashError is the error document returned on non-2xx responses.
type splashError struct {
	Error       int    `json:"error"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Render implements Renderer.
func (r *SplashRenderer) Render(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(r.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to encode render request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/render.json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create render request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("render service unreachable: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, splashMaxResponse))
	if err != nil {
		return nil, fmt.Errorf("failed to read render response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var se splashError
		if json.Unmarshal(data, &se) == nil && se.Description != "" {
			return nil, fmt.Errorf("render service returned HTTP %d: %s: %s", resp.StatusCode, se.Type, se.Description)
		}
		return nil, fmt.Errorf("render service returned HTTP %d", resp.StatusCode)
	}

	var out splashResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode render response: %w", err)
	}

	img, err := decodeBase64Image(out.PNG)
	if err != nil {
		return nil, err
	}
	return &Result{Image: img, HTML: out.HTML}, nil
}

func (r *SplashRenderer) buildRequest(req Request) splashRequest {
	sr := splashRequest{
		URL:  req.URL,
		HTML: 1,
		PNG:  1,
		Wait: req.Wait.Seconds(),
	}
	if req.FullPage {
		sr.RenderAll = 1
		// render_all is rejected by Splash without a positive wait.
		if sr.Wait <= 0 {
			sr.Wait = (100 * time.Millisecond).Seconds()
		}
	}
	if req.Timeout > 0 {
		sr.Timeout = req.Timeout.Seconds()
	}

	headers := map[string]string{}
	if req.Session != nil {
		if cookie := req.Session.CookieHeader(); cookie != "" {
			headers["Cookie"] = cookie
		}
	}
	if r.userAgent != "" {
		headers["User-Agent"] = r.userAgent
	}
	if len(headers) > 0 {
		sr.Headers = headers
	}
	return sr
}
