package scrape

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/nao1215/portalcapture/internal/config"
)

const loginForm = `<html><body>
<form method="post" action="student_page.php">
  <input type="text" name="studentid">
  <input type="password" name="studentpwd">
  <img src="captcha_code_file.php">
  <input type="text" name="captcha_code">
  <input type="submit" name="submit" value="Login">
</form>
</body></html>`

// fakeSite is a portal plus a render.json service.
type fakeSite struct {
	portal  *httptest.Server
	splash  *httptest.Server
	image   []byte
	payload string

	logins  atomic.Int32
	renders atomic.Int32
}

func testPNG(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.Set(0, 0, color.RGBA{G: shade, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newFakeSite(t *testing.T) *fakeSite {
	t.Helper()

	s := &fakeSite{image: testPNG(t, 200)}
	s.payload = base64.StdEncoding.EncodeToString(s.image)

	s.portal = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.Method == http.MethodGet {
			w.Header().Add("Set-Cookie", "SESSID=abc123; Path=/")
			_, _ = io.WriteString(w, loginForm)
			return
		}

		s.logins.Add(1)
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		c, err := r.Cookie("SESSID")
		if err == nil && c.Value == "abc123" &&
			r.PostForm.Get("captcha_code") == "7f3q" &&
			r.PostForm.Get("studentpwd") == "pw123" {
			_, _ = io.WriteString(w, "<p>Welcome "+r.PostForm.Get("studentid")+"</p>")
			return
		}
		_, _ = io.WriteString(w, "<p>Invalid login</p>")
	}))
	t.Cleanup(s.portal.Close)

	s.splash = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.renders.Add(1)
		var req struct {
			URL     string            `json:"url"`
			Headers map[string]string `json:"headers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if !strings.Contains(req.Headers["Cookie"], "SESSID=abc123") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"url":  req.URL,
			"html": "<html>marks</html>",
			"png":  s.payload,
		})
	}))
	t.Cleanup(s.splash.Close)

	return s
}

// config returns a configuration pointing at the fake site.
func (s *fakeSite) config(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.LoginURL = s.portal.URL + "/student_page.php"
	cfg.TargetURL = s.portal.URL + "/student/test_marks_report.php"
	cfg.CaptchaBackend = config.CaptchaBackendStatic
	cfg.CaptchaAnswer = "7f3q"
	cfg.RenderBackend = config.RenderBackendSplash
	cfg.RenderEndpoint = s.splash.URL
	cfg.RenderWait = 0
	cfg.RateLimit = 0
	cfg.StorageDir = t.TempDir()
	cfg.DBDir = ""
	return cfg
}
