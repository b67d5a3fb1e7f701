package config

import (
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "portalcapture"

	// DefaultLoginURL is the portal login page.
	DefaultLoginURL = "http://report.aldel.org/student_page.php"

	// DefaultTargetURL is the page captured for DefaultArtifactKind.
	DefaultTargetURL = "http://report.aldel.org/student/test_marks_report.php"

	// DefaultArtifactKind names the default captured page.
	DefaultArtifactKind = "tests"

	// Default login form field names.
	DefaultIdentityField = "studentid"
	DefaultSecretField   = "studentpwd"
	DefaultCaptchaField  = "captcha_code"

	// DefaultCaptchaImagePath is resolved against the login URL when no
	// captcha image URL is configured.
	DefaultCaptchaImagePath = "captcha_code_file.php"

	// DefaultStorageDir is the relative directory artifacts are written to.
	DefaultStorageDir = "files"

	// DefaultJobTimeout bounds one isolated run, login through file write.
	// The portal answers slowly at peak times and a render adds a few seconds,
	// so this leaves room for both while still failing a wedged worker quickly.
	DefaultJobTimeout = 45 * time.Second

	// DefaultRequestTimeout bounds a single portal HTTP request.
	DefaultRequestTimeout = 20 * time.Second

	// DefaultRenderTimeout bounds a single render request.
	DefaultRenderTimeout = 30 * time.Second

	// DefaultRenderWait is the settle interval before the page is rasterised.
	DefaultRenderWait = 100 * time.Millisecond

	// Default viewport used by the CDP backend.
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 1024

	// DefaultCaptchaPollInterval is how often the solver API is polled.
	DefaultCaptchaPollInterval = 2 * time.Second

	// DefaultCaptchaTimeout bounds the wait for a captcha answer.
	DefaultCaptchaTimeout = 20 * time.Second

	// DefaultCaptchaQueue is the AMQP queue captcha tasks are published to.
	DefaultCaptchaQueue = "captcha_tasks"

	// DefaultRateLimit is the number of portal requests per second.
	// The login handshake needs two requests, so one per second with a
	// burst of two lets a single job through without waiting.
	DefaultRateLimit = 1.0

	// DefaultRateBurst is the burst size of the portal rate limiter.
	DefaultRateBurst = 2

	// DefaultConcurrency is the number of jobs run at once in batch mode.
	DefaultConcurrency = 2

	// DefaultUserAgent is sent with every portal request.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) portalcapture/1.0"

	// DefaultMaxBodySize limits portal response bodies.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB
)

// Render backends.
const (
	RenderBackendSplash = "splash"
	RenderBackendCDP    = "cdp"
)

// Captcha backends.
const (
	CaptchaBackendHTTP   = "http"
	CaptchaBackendAMQP   = "amqp"
	CaptchaBackendStatic = "static"
)

// Login verification modes.
const (
	VerifyBodyContains     = "body-contains"
	VerifyBodyContainsFold = "body-contains-fold"
	VerifySelector         = "selector"
	VerifyCookie           = "cookie"
	VerifyStatus           = "status"
)

// Config holds all configuration options for portalcapture.
// It is populated from defaults, the config file, the environment and CLI
// flags, in that order, and then passed down explicitly. The worker process
// receives the parent's Config as JSON, so every field must round-trip.
type Config struct {
	// LoginURL is the portal login page. The session cookie is taken from
	// its response and the login form is discovered in its body.
	LoginURL string `json:"login_url"`

	// TargetURL is the authenticated page to capture. When empty it is
	// resolved from Targets by ArtifactKind.
	TargetURL string `json:"target_url"`

	// Targets maps artifact kinds to page URLs.
	Targets map[string]string `json:"targets,omitempty"`

	// ArtifactKind becomes the suffix of the artifact file name.
	ArtifactKind string `json:"artifact_kind"`

	// IdentityField, SecretField and CaptchaField are the login form field names.
	IdentityField string `json:"identity_field"`
	SecretField   string `json:"secret_field"`
	CaptchaField  string `json:"captcha_field"`

	// VerifyMode selects the login verification predicate.
	VerifyMode string `json:"verify_mode"`

	// VerifySelector is the CSS selector used by VerifySelector mode.
	VerifySelector string `json:"verify_selector,omitempty"`

	// VerifyCookie is the cookie name used by VerifyCookie mode.
	VerifyCookie string `json:"verify_cookie,omitempty"`

	// VerifyStatus is the status code used by VerifyStatus mode.
	VerifyStatus int `json:"verify_status,omitempty"`

	// CaptchaBackend selects how captcha answers are obtained.
	CaptchaBackend string `json:"captcha_backend"`

	// CaptchaEndpoint is the base URL of the captcha solver API.
	CaptchaEndpoint string `json:"captcha_endpoint,omitempty"`

	// CaptchaAPIKey authenticates against the solver API.
	CaptchaAPIKey string `json:"captcha_api_key,omitempty"`

	// CaptchaAMQPURL is the broker URL for the amqp backend.
	CaptchaAMQPURL string `json:"captcha_amqp_url,omitempty"`

	// CaptchaQueue is the queue captcha tasks are published to.
	CaptchaQueue string `json:"captcha_queue"`

	// CaptchaAnswer is the fixed answer used by the static backend.
	CaptchaAnswer string `json:"captcha_answer,omitempty"`

	// CaptchaImageURL is where the session's challenge image is served.
	// Empty means DefaultCaptchaImagePath next to the login page.
	CaptchaImageURL string `json:"captcha_image_url,omitempty"`

	// CaptchaPollInterval and CaptchaTimeout control answer retrieval.
	CaptchaPollInterval time.Duration `json:"captcha_poll_interval"`
	CaptchaTimeout      time.Duration `json:"captcha_timeout"`

	// RenderBackend selects the headless rendering service.
	RenderBackend string `json:"render_backend"`

	// RenderEndpoint is the rendering service URL. Required.
	// For splash it is the HTTP base URL, for cdp a DevTools websocket URL.
	RenderEndpoint string `json:"render_endpoint"`

	// RenderWait is the settle interval before capture.
	RenderWait time.Duration `json:"render_wait"`

	// RenderFullPage captures the whole page rather than the viewport.
	RenderFullPage bool `json:"render_full_page"`

	// RenderTimeout bounds one render request.
	RenderTimeout time.Duration `json:"render_timeout"`

	// ViewportWidth and ViewportHeight size the CDP browser window.
	ViewportWidth  int `json:"viewport_width"`
	ViewportHeight int `json:"viewport_height"`

	// StorageDir is where artifacts are written.
	StorageDir string `json:"storage_dir"`

	// JobTimeout bounds one isolated run.
	JobTimeout time.Duration `json:"job_timeout"`

	// RequestTimeout bounds a single portal request.
	RequestTimeout time.Duration `json:"request_timeout"`

	// UserAgent is sent with portal requests.
	UserAgent string `json:"user_agent"`

	// ProxyURL optionally routes portal traffic through a proxy
	// (socks5://host:port or http://host:port).
	ProxyURL string `json:"proxy_url,omitempty"`

	// RateLimit is portal requests per second; 0 disables pacing.
	RateLimit float64 `json:"rate_limit"`

	// RateBurst is the limiter burst.
	RateBurst int `json:"rate_burst"`

	// MaxBodySize limits portal response bodies.
	MaxBodySize int64 `json:"max_body_size"`

	// Concurrency is the number of batch jobs run at once.
	Concurrency int `json:"concurrency"`

	// DBDir is where the run ledger is stored. Empty disables the ledger.
	DBDir string `json:"db_dir,omitempty"`

	// MetricsFile is a node-exporter textfile path. Empty disables metrics.
	MetricsFile string `json:"metrics_file,omitempty"`

	// SentryDSN enables error reporting when set.
	SentryDSN string `json:"-"`

	// Verbose enables debug logging.
	Verbose bool `json:"verbose"`

	// ConfigFilePath is the YAML file the config was read from, if any.
	ConfigFilePath string `json:"-"`
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		LoginURL:            DefaultLoginURL,
		Targets:             map[string]string{DefaultArtifactKind: DefaultTargetURL},
		ArtifactKind:        DefaultArtifactKind,
		IdentityField:       DefaultIdentityField,
		SecretField:         DefaultSecretField,
		CaptchaField:        DefaultCaptchaField,
		VerifyMode:          VerifyBodyContains,
		CaptchaBackend:      CaptchaBackendHTTP,
		CaptchaQueue:        DefaultCaptchaQueue,
		CaptchaPollInterval: DefaultCaptchaPollInterval,
		CaptchaTimeout:      DefaultCaptchaTimeout,
		RenderBackend:       RenderBackendSplash,
		RenderWait:          DefaultRenderWait,
		RenderFullPage:      true,
		RenderTimeout:       DefaultRenderTimeout,
		ViewportWidth:       DefaultViewportWidth,
		ViewportHeight:      DefaultViewportHeight,
		StorageDir:          DefaultStorageDir,
		JobTimeout:          DefaultJobTimeout,
		RequestTimeout:      DefaultRequestTimeout,
		UserAgent:           DefaultUserAgent,
		RateLimit:           DefaultRateLimit,
		RateBurst:           DefaultRateBurst,
		MaxBodySize:         DefaultMaxBodySize,
		Concurrency:         DefaultConcurrency,
		DBDir:               XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for portalcapture.
// On Linux: ~/.local/share/portalcapture
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for portalcapture.
// On Linux: ~/.config/portalcapture
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ResolveTarget fills TargetURL from Targets when it was not set explicitly.
func (c *Config) ResolveTarget() {
	if c.TargetURL != "" {
		return
	}
	if u, ok := c.Targets[c.ArtifactKind]; ok {
		c.TargetURL = u
	}
}

// SelectKind switches the artifact kind. A TargetURL set for the previous
// kind (from the environment, say) does not carry over, so ResolveTarget
// picks the new kind's page from Targets.
func (c *Config) SelectKind(kind string) {
	if kind == "" || kind == c.ArtifactKind {
		return
	}
	c.ArtifactKind = kind
	c.TargetURL = ""
}

// ResolvedCaptchaImageURL returns the captcha image URL, falling back to
// DefaultCaptchaImagePath relative to the login page.
func (c *Config) ResolvedCaptchaImageURL() string {
	if c.CaptchaImageURL != "" {
		return c.CaptchaImageURL
	}
	base, err := url.Parse(c.LoginURL)
	if err != nil {
		return ""
	}
	ref, _ := url.Parse(DefaultCaptchaImagePath)
	return base.ResolveReference(ref).String()
}

// Validate checks if the configuration is valid.
// It returns the first problem found as a sentinel error.
func (c *Config) Validate() error {
	if !isHTTPURL(c.LoginURL) {
		return ErrInvalidLoginURL
	}
	if c.TargetURL == "" {
		return ErrNoTarget
	}
	if !isHTTPURL(c.TargetURL) {
		return ErrInvalidTargetURL
	}
	if !validKind(c.ArtifactKind) {
		return ErrInvalidArtifactKind
	}
	if c.IdentityField == "" || c.SecretField == "" || c.CaptchaField == "" {
		return ErrEmptyFormField
	}

	switch c.VerifyMode {
	case VerifyBodyContains, VerifyBodyContainsFold:
	case VerifySelector:
		if c.VerifySelector == "" {
			return ErrNoVerifySelector
		}
	case VerifyCookie:
		if c.VerifyCookie == "" {
			return ErrNoVerifyCookie
		}
	case VerifyStatus:
		if c.VerifyStatus < 100 || c.VerifyStatus > 599 {
			return ErrInvalidVerifyStatus
		}
	default:
		return ErrUnknownVerifyMode
	}

	switch c.CaptchaBackend {
	case CaptchaBackendHTTP:
		if !isHTTPURL(c.CaptchaEndpoint) {
			return ErrNoCaptchaEndpoint
		}
	case CaptchaBackendAMQP:
		if c.CaptchaAMQPURL == "" {
			return ErrNoCaptchaAMQPURL
		}
		if c.CaptchaQueue == "" {
			return ErrNoCaptchaQueue
		}
	case CaptchaBackendStatic:
		if c.CaptchaAnswer == "" {
			return ErrNoCaptchaAnswer
		}
	default:
		return ErrUnknownCaptchaBackend
	}
	if c.CaptchaTimeout <= 0 || c.CaptchaPollInterval <= 0 {
		return ErrInvalidCaptchaTiming
	}

	if c.RenderEndpoint == "" {
		return ErrNoRenderEndpoint
	}
	switch c.RenderBackend {
	case RenderBackendSplash, RenderBackendCDP:
	default:
		return ErrUnknownRenderBackend
	}
	if c.RenderWait < 0 {
		return ErrInvalidRenderWait
	}
	if c.RenderTimeout <= 0 {
		return ErrInvalidRenderTimeout
	}

	if c.StorageDir == "" {
		return ErrNoStorageDir
	}
	if c.JobTimeout <= 0 {
		return ErrInvalidJobTimeout
	}
	if c.RequestTimeout <= 0 {
		return ErrInvalidRequestTimeout
	}
	if c.RateLimit < 0 || (c.RateLimit > 0 && c.RateBurst <= 0) {
		return ErrInvalidRateLimit
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.ProxyURL != "" {
		if u, err := url.Parse(c.ProxyURL); err != nil || u.Host == "" {
			return ErrInvalidProxyURL
		}
	}

	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func validKind(kind string) bool {
	if kind == "" {
		return false
	}
	for _, r := range kind {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}
