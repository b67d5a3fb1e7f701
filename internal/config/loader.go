package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = "portalcapture.yaml"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File represents the structure of portalcapture.yaml.
// Zero values mean "not set" and leave the current configuration untouched.
type File struct {
	Portal  PortalSection  `yaml:"portal"`
	Captcha CaptchaSection `yaml:"captcha"`
	Render  RenderSection  `yaml:"render"`
	Storage StorageSection `yaml:"storage"`
	Job     JobSection     `yaml:"job"`
}

// PortalSection describes the portal being automated.
type PortalSection struct {
	LoginURL  string            `yaml:"login_url,omitempty"`
	Targets   map[string]string `yaml:"targets,omitempty"`
	Fields    FieldsSection     `yaml:"fields,omitempty"`
	Verify    VerifySection     `yaml:"verify,omitempty"`
	UserAgent string            `yaml:"user_agent,omitempty"`
	Proxy     string            `yaml:"proxy,omitempty"`
	Rate      float64           `yaml:"rate,omitempty"`
	Burst     int               `yaml:"burst,omitempty"`
	Timeout   time.Duration     `yaml:"timeout,omitempty"`
}

// FieldsSection names the login form fields.
type FieldsSection struct {
	Identity string `yaml:"identity,omitempty"`
	Secret   string `yaml:"secret,omitempty"`
	Captcha  string `yaml:"captcha,omitempty"`
}

// VerifySection configures the login verification predicate.
type VerifySection struct {
	Mode     string `yaml:"mode,omitempty"`
	Selector string `yaml:"selector,omitempty"`
	Cookie   string `yaml:"cookie,omitempty"`
	Status   int    `yaml:"status,omitempty"`
}

// CaptchaSection configures the captcha resolver.
type CaptchaSection struct {
	Backend      string        `yaml:"backend,omitempty"`
	Endpoint     string        `yaml:"endpoint,omitempty"`
	APIKey       string        `yaml:"api_key,omitempty"`
	AMQPURL      string        `yaml:"amqp_url,omitempty"`
	Queue        string        `yaml:"queue,omitempty"`
	ImageURL     string        `yaml:"image_url,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
}

// RenderSection configures the rendering service.
type RenderSection struct {
	Backend  string        `yaml:"backend,omitempty"`
	Endpoint string        `yaml:"endpoint,omitempty"`
	Wait     time.Duration `yaml:"wait,omitempty"`
	FullPage *bool         `yaml:"full_page,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	Width    int           `yaml:"width,omitempty"`
	Height   int           `yaml:"height,omitempty"`
}

// StorageSection configures where results go.
type StorageSection struct {
	Dir         string `yaml:"dir,omitempty"`
	DBDir       string `yaml:"db_dir,omitempty"`
	MetricsFile string `yaml:"metrics_file,omitempty"`
}

// JobSection configures run limits.
type JobSection struct {
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	Concurrency int           `yaml:"concurrency,omitempty"`
}

// LoadConfigFile loads a configuration file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for portalcapture.yaml in the current directory
// 3. Look for portalcapture.yaml in the XDG config directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		cwdConfig := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(cwdConfig); err == nil {
			return cwdConfig
		}
	}

	xdgConfig := filepath.Join(XDGConfigDir(), DefaultConfigFile)
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig
	}

	return ""
}

// Apply merges the file's values into c. Only non-zero values are applied.
func (cf *File) Apply(c *Config) {
	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setDur := func(dst *time.Duration, v time.Duration) {
		if v != 0 {
			*dst = v
		}
	}
	setInt := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}

	p := cf.Portal
	setStr(&c.LoginURL, p.LoginURL)
	if len(p.Targets) > 0 {
		if c.Targets == nil {
			c.Targets = make(map[string]string)
		}
		for kind, u := range p.Targets {
			c.Targets[kind] = u
		}
	}
	setStr(&c.IdentityField, p.Fields.Identity)
	setStr(&c.SecretField, p.Fields.Secret)
	setStr(&c.CaptchaField, p.Fields.Captcha)
	setStr(&c.VerifyMode, p.Verify.Mode)
	setStr(&c.VerifySelector, p.Verify.Selector)
	setStr(&c.VerifyCookie, p.Verify.Cookie)
	setInt(&c.VerifyStatus, p.Verify.Status)
	setStr(&c.UserAgent, p.UserAgent)
	setStr(&c.ProxyURL, p.Proxy)
	if p.Rate != 0 {
		c.RateLimit = p.Rate
	}
	setInt(&c.RateBurst, p.Burst)
	setDur(&c.RequestTimeout, p.Timeout)

	cp := cf.Captcha
	setStr(&c.CaptchaBackend, cp.Backend)
	setStr(&c.CaptchaEndpoint, cp.Endpoint)
	setStr(&c.CaptchaAPIKey, cp.APIKey)
	setStr(&c.CaptchaAMQPURL, cp.AMQPURL)
	setStr(&c.CaptchaQueue, cp.Queue)
	setStr(&c.CaptchaImageURL, cp.ImageURL)
	setDur(&c.CaptchaPollInterval, cp.PollInterval)
	setDur(&c.CaptchaTimeout, cp.Timeout)

	r := cf.Render
	setStr(&c.RenderBackend, r.Backend)
	setStr(&c.RenderEndpoint, r.Endpoint)
	setDur(&c.RenderWait, r.Wait)
	if r.FullPage != nil {
		c.RenderFullPage = *r.FullPage
	}
	setDur(&c.RenderTimeout, r.Timeout)
	setInt(&c.ViewportWidth, r.Width)
	setInt(&c.ViewportHeight, r.Height)

	setStr(&c.StorageDir, cf.Storage.Dir)
	setStr(&c.DBDir, cf.Storage.DBDir)
	setStr(&c.MetricsFile, cf.Storage.MetricsFile)

	setDur(&c.JobTimeout, cf.Job.Timeout)
	setInt(&c.Concurrency, cf.Job.Concurrency)
}
