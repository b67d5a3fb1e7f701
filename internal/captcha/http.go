package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nao1215/portalcapture/internal/model"
)

// Solver API paths, relative to the configured endpoint.
const (
	submitPath = "/api/captcha/submit"
	resultPath = "/api/captcha/result/"
)

// CaptchaTypeImage marks a text-in-image challenge.
const CaptchaTypeImage = "image"

// HTTPResolver submits challenges to a solver service and polls for the answer.
type HTTPResolver struct {
	endpoint     string
	apiKey       string
	client       *http.Client
	pollInterval time.Duration
	timeout      time.Duration
	logger       *slog.Logger
}

// HTTPOption configures an HTTPResolver.
type HTTPOption func(*HTTPResolver)

// WithHTTPClient sets the HTTP client used to talk to the solver.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(r *HTTPResolver) {
		r.client = c
	}
}

// WithPollInterval sets how often the result endpoint is polled.
func WithPollInterval(d time.Duration) HTTPOption {
	return func(r *HTTPResolver) {
		r.pollInterval = d
	}
}

// WithTimeout bounds the whole submit-and-poll exchange.
func WithTimeout(d time.Duration) HTTPOption {
	return func(r *HTTPResolver) {
		r.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(r *HTTPResolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewHTTPResolver creates a resolver for the solver service at endpoint.
func NewHTTPResolver(endpoint, apiKey string, opts ...HTTPOption) *HTTPResolver {
	r := &HTTPResolver{
		endpoint:     endpoint,
		apiKey:       apiKey,
		client:       &http.Client{Timeout: 10 * time.Second},
		pollInterval: 2 * time.Second,
		timeout:      20 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// submitRequest is the solver task submission body.
type submitRequest struct {
	CaptchaType string `json:"captcha_type"`
	SiteKey     string `json:"sitekey"`
	TargetURL   string `json:"target_url"`
	CookieName  string `json:"cookie_name,omitempty"`
}

// taskResponse is returned by both solver endpoints.
type taskResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Task    struct {
		ID              int64  `json:"id"`
		CaptchaResponse string `json:"captcha_response,omitempty"`
	} `json:"task"`
}

// Solve submits the challenge and waits for the answer.
// The session token is sent as the task's site key so the solver can fetch
// the image bound to this session.
func (r *HTTPResolver) Solve(ctx context.Context, challenge model.CaptchaChallenge) (model.CaptchaAnswer, error) {
	if challenge.SessionToken == "" {
		return model.CaptchaAnswer{}, ErrNoToken
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	id, err := r.submit(ctx, challenge)
	if err != nil {
		return model.CaptchaAnswer{}, err
	}
	r.logger.Debug("captcha task submitted", "task_id", id)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		answer, done, err := r.poll(ctx, id)
		if err != nil {
			return model.CaptchaAnswer{}, err
		}
		if done {
			r.logger.Debug("captcha task solved", "task_id", id)
			return newAnswer(answer)
		}

		select {
		case <-ctx.Done():
			return model.CaptchaAnswer{}, fmt.Errorf("waiting for task %d: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (r *HTTPResolver) submit(ctx context.Context, challenge model.CaptchaChallenge) (int64, error) {
	body, err := json.Marshal(submitRequest{
		CaptchaType: CaptchaTypeImage,
		SiteKey:     challenge.SessionToken,
		TargetURL:   challenge.ImageURL,
		CookieName:  challenge.CookieName,
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+submitPath, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp taskResponse
	if err := r.do(req, &resp); err != nil {
		return 0, fmt.Errorf("submit task: %w", err)
	}
	if resp.Status != "success" {
		return 0, fmt.Errorf("%w: %s", ErrTaskFailed, resp.Message)
	}
	return resp.Task.ID, nil
}

// poll fetches the task once. done is true when an answer is available.
func (r *HTTPResolver) poll(ctx context.Context, id int64) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		r.endpoint+resultPath+url.PathEscape(strconv.FormatInt(id, 10)), nil)
	if err != nil {
		return "", false, err
	}

	var resp taskResponse
	if err := r.do(req, &resp); err != nil {
		return "", false, fmt.Errorf("poll task %d: %w", id, err)
	}
	if resp.Status != "success" {
		return "", false, fmt.Errorf("%w: task %d: %s", ErrTaskFailed, id, resp.Message)
	}
	if resp.Task.CaptchaResponse == "" {
		return "", false, nil
	}
	return resp.Task.CaptchaResponse, true, nil
}

// do sends req with the API key and decodes the JSON body into v.
// Error statuses still carry a JSON body with a message, and always
// mark the response as failed.
func (r *HTTPResolver) do(req *http.Request, v *taskResponse) error {
	req.Header.Set("X-API-Key", r.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unexpected response (HTTP %d): %w", resp.StatusCode, err)
	}
	// An error status fails the call whatever the body claims.
	if resp.StatusCode >= http.StatusBadRequest {
		v.Status = "error"
		if v.Message == "" {
			v.Message = resp.Status
		}
	}
	return nil
}
