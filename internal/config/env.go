package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvSplashInstance  = "SPLASH_INSTANCE"
	EnvRenderEndpoint  = "PORTALCAPTURE_RENDER_ENDPOINT"
	EnvRenderBackend   = "PORTALCAPTURE_RENDER_BACKEND"
	EnvLoginURL        = "PORTALCAPTURE_LOGIN_URL"
	EnvTargetURL       = "PORTALCAPTURE_TARGET_URL"
	EnvArtifactKind    = "PORTALCAPTURE_ARTIFACT_KIND"
	EnvStorageDir      = "PORTALCAPTURE_STORAGE_DIR"
	EnvJobTimeout      = "PORTALCAPTURE_JOB_TIMEOUT"
	EnvCaptchaBackend  = "PORTALCAPTURE_CAPTCHA_BACKEND"
	EnvCaptchaEndpoint = "PORTALCAPTURE_CAPTCHA_ENDPOINT"
	EnvCaptchaAPIKey   = "PORTALCAPTURE_CAPTCHA_API_KEY"
	EnvCaptchaAMQPURL  = "PORTALCAPTURE_CAPTCHA_AMQP_URL"
	EnvCaptchaAnswer   = "PORTALCAPTURE_CAPTCHA_ANSWER"
	EnvProxy           = "PORTALCAPTURE_PROXY"
	EnvDataDir         = "PORTALCAPTURE_DATA_DIR"
	EnvMetricsFile     = "PORTALCAPTURE_METRICS_FILE"
	EnvConcurrency     = "PORTALCAPTURE_CONCURRENCY"
	EnvSentryDSN       = "SENTRY_DSN"
)

// DefaultEnvFile is loaded when no --env-file is given.
const DefaultEnvFile = ".env"

// LoadDotEnv loads variables from the given file into the process
// environment without overriding variables that are already set.
// A missing file is not an error unless required is true.
func LoadDotEnv(path string, required bool) error {
	if path == "" {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides configuration values from the process environment.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	// SPLASH_INSTANCE is the historical name; the namespaced variable wins.
	str(EnvSplashInstance, &c.RenderEndpoint)
	str(EnvRenderEndpoint, &c.RenderEndpoint)
	str(EnvRenderBackend, &c.RenderBackend)
	str(EnvLoginURL, &c.LoginURL)
	str(EnvTargetURL, &c.TargetURL)
	str(EnvArtifactKind, &c.ArtifactKind)
	str(EnvStorageDir, &c.StorageDir)
	str(EnvCaptchaBackend, &c.CaptchaBackend)
	str(EnvCaptchaEndpoint, &c.CaptchaEndpoint)
	str(EnvCaptchaAPIKey, &c.CaptchaAPIKey)
	str(EnvCaptchaAMQPURL, &c.CaptchaAMQPURL)
	str(EnvCaptchaAnswer, &c.CaptchaAnswer)
	str(EnvProxy, &c.ProxyURL)
	str(EnvDataDir, &c.DBDir)
	str(EnvMetricsFile, &c.MetricsFile)
	str(EnvSentryDSN, &c.SentryDSN)

	if v, ok := lookup(EnvJobTimeout); ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalidEnv, EnvJobTimeout, v, err)
		}
		c.JobTimeout = d
	}
	if v, ok := lookup(EnvConcurrency); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalidEnv, EnvConcurrency, v, err)
		}
		c.Concurrency = n
	}
	return nil
}

// parseDuration accepts Go duration strings and bare seconds.
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}
