package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/portalcapture/internal/config"
	"github.com/nao1215/portalcapture/internal/model"
)

var testChallenge = model.CaptchaChallenge{
	SessionToken: "abc123",
	CookieName:   "SESSID",
	ImageURL:     "http://portal/captcha_code_file.php",
}

// TestStatic tests the fixed-answer resolver.
func TestStatic(t *testing.T) {
	t.Parallel()

	t.Run("returns the trimmed answer", func(t *testing.T) {
		t.Parallel()
		answer, err := Static(" 7f3q\n").Solve(t.Context(), testChallenge)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if answer.Text != "7f3q" {
			t.Errorf("expected 7f3q, got %q", answer.Text)
		}
	})

	t.Run("empty answer is an error", func(t *testing.T) {
		t.Parallel()
		if _, err := Static("  ").Solve(t.Context(), testChallenge); !errors.Is(err, ErrEmptyAnswer) {
			t.Errorf("expected ErrEmptyAnswer, got %v", err)
		}
	})

	t.Run("challenge without token is an error", func(t *testing.T) {
		t.Parallel()
		if _, err := Static("x").Solve(t.Context(), model.CaptchaChallenge{}); !errors.Is(err, ErrNoToken) {
			t.Errorf("expected ErrNoToken, got %v", err)
		}
	})
}

// newSolverServer fakes the solver API. The answer becomes available after
// pendingPolls result requests.
func newSolverServer(t *testing.T, pendingPolls int32, answer string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/captcha/submit", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status":"error","message":"Invalid API key"}`))
			return
		}
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.SiteKey != "abc123" || req.CaptchaType != CaptchaTypeImage || req.TargetURL == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"status":"error","message":"bad task"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","task":{"id":42}}`))
	})
	mux.HandleFunc("GET /api/captcha/result/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "42" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":"error","message":"Task not found"}`))
			return
		}
		if polls.Add(1) <= pendingPolls {
			_, _ = w.Write([]byte(`{"status":"success","task":{"id":42}}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","task":{"id":42,"captcha_response":"` + answer + `"}}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &polls
}

// TestHTTPResolver tests the submit-and-poll solver client.
func TestHTTPResolver(t *testing.T) {
	t.Parallel()

	t.Run("polls until the answer is available", func(t *testing.T) {
		t.Parallel()
		server, polls := newSolverServer(t, 2, "7f3q")

		r := NewHTTPResolver(server.URL, "key", WithPollInterval(5*time.Millisecond))
		answer, err := r.Solve(t.Context(), testChallenge)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if answer.Text != "7f3q" {
			t.Errorf("expected 7f3q, got %q", answer.Text)
		}
		if polls.Load() != 3 {
			t.Errorf("expected 3 polls, got %d", polls.Load())
		}
	})

	t.Run("rejected API key fails the task", func(t *testing.T) {
		t.Parallel()
		server, _ := newSolverServer(t, 0, "x")

		r := NewHTTPResolver(server.URL, "wrong")
		_, err := r.Solve(t.Context(), testChallenge)
		if !errors.Is(err, ErrTaskFailed) {
			t.Fatalf("expected ErrTaskFailed, got %v", err)
		}
		if !strings.Contains(err.Error(), "Invalid API key") {
			t.Errorf("expected solver message in error, got %v", err)
		}
	})

	t.Run("times out when no answer arrives", func(t *testing.T) {
		t.Parallel()
		server, _ := newSolverServer(t, 1<<30, "x")

		r := NewHTTPResolver(server.URL, "key",
			WithPollInterval(5*time.Millisecond),
			WithTimeout(50*time.Millisecond))
		_, err := r.Solve(t.Context(), testChallenge)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})

	t.Run("error status fails despite a success body", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"status":"success","task":{"id":1,"captcha_response":"zzzz"}}`))
		}))
		t.Cleanup(server.Close)

		r := NewHTTPResolver(server.URL, "key", WithPollInterval(5*time.Millisecond))
		answer, err := r.Solve(t.Context(), testChallenge)
		if !errors.Is(err, ErrTaskFailed) {
			t.Fatalf("expected ErrTaskFailed, got %v (answer %q)", err, answer.Text)
		}
		if !strings.Contains(err.Error(), "500") {
			t.Errorf("expected the HTTP status in the error, got %v", err)
		}
	})

	t.Run("non-JSON response is an error", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html>bad gateway</html>"))
		}))
		t.Cleanup(server.Close)

		r := NewHTTPResolver(server.URL, "key")
		if _, err := r.Solve(t.Context(), testChallenge); err == nil {
			t.Error("expected error")
		}
	})
}

// TestAMQPMessages tests the AMQP task and reply encoding.
func TestAMQPMessages(t *testing.T) {
	t.Parallel()

	t.Run("task carries the challenge", func(t *testing.T) {
		t.Parallel()
		body, err := encodeTask(testChallenge)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var task amqpTask
		if err := json.Unmarshal(body, &task); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if task.SessionToken != "abc123" || task.ImageURL != testChallenge.ImageURL || task.CaptchaType != CaptchaTypeImage {
			t.Errorf("unexpected task: %+v", task)
		}
	})

	t.Run("reply with answer", func(t *testing.T) {
		t.Parallel()
		answer, err := decodeReply([]byte(`{"answer":"7f3q"}`))
		if err != nil || answer.Text != "7f3q" {
			t.Errorf("got %q, %v", answer.Text, err)
		}
	})

	t.Run("reply with solver error", func(t *testing.T) {
		t.Parallel()
		if _, err := decodeReply([]byte(`{"error":"unreadable"}`)); !errors.Is(err, ErrTaskFailed) {
			t.Errorf("expected ErrTaskFailed, got %v", err)
		}
	})

	t.Run("malformed reply", func(t *testing.T) {
		t.Parallel()
		if _, err := decodeReply([]byte(`nope`)); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("solve without token fails before dialing", func(t *testing.T) {
		t.Parallel()
		r := NewAMQPResolver("amqp://127.0.0.1:1/", "captcha_tasks", time.Second, nil)
		if _, err := r.Solve(t.Context(), model.CaptchaChallenge{}); !errors.Is(err, ErrNoToken) {
			t.Errorf("expected ErrNoToken, got %v", err)
		}
	})
}

// TestNew tests backend selection from configuration.
func TestNew(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		backend string
		check   func(Resolver) bool
		wantErr error
	}{
		{config.CaptchaBackendHTTP, func(r Resolver) bool { _, ok := r.(*HTTPResolver); return ok }, nil},
		{config.CaptchaBackendAMQP, func(r Resolver) bool { _, ok := r.(*AMQPResolver); return ok }, nil},
		{config.CaptchaBackendStatic, func(r Resolver) bool { _, ok := r.(ResolverFunc); return ok }, nil},
		{"carrier-pigeon", nil, config.ErrUnknownCaptchaBackend},
	}

	for _, tc := range testCases {
		t.Run(tc.backend, func(t *testing.T) {
			t.Parallel()
			cfg := config.NewConfig()
			cfg.CaptchaBackend = tc.backend
			cfg.CaptchaAnswer = "7f3q"

			r, err := New(cfg, nil, nil)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if tc.check != nil && !tc.check(r) {
				t.Errorf("unexpected resolver type %T", r)
			}
		})
	}
}
