package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrInvalidLoginURL is returned when the login URL is not an absolute http(s) URL.
	ErrInvalidLoginURL = errors.New("invalid login URL: must be an absolute http(s) URL")

	// ErrNoTarget is returned when no target URL is set and none is configured
	// for the selected artifact kind.
	ErrNoTarget = errors.New("no target specified: use --target or configure portal.targets for the kind")

	// ErrInvalidTargetURL is returned when the target URL is not an absolute http(s) URL.
	ErrInvalidTargetURL = errors.New("invalid target URL: must be an absolute http(s) URL")

	// ErrInvalidArtifactKind is returned when the kind cannot be used in a file name.
	ErrInvalidArtifactKind = errors.New("invalid artifact kind: use lowercase letters, digits, '-' or '_'")

	// ErrEmptyFormField is returned when a login form field name is empty.
	ErrEmptyFormField = errors.New("login form field names must not be empty")

	ErrUnknownVerifyMode   = errors.New("unknown verify mode")
	ErrNoVerifySelector    = errors.New("verify mode selector requires a CSS selector")
	ErrNoVerifyCookie      = errors.New("verify mode cookie requires a cookie name")
	ErrInvalidVerifyStatus = errors.New("verify mode status requires an HTTP status code")

	ErrUnknownCaptchaBackend = errors.New("unknown captcha backend: use http, amqp or static")
	ErrNoCaptchaEndpoint     = errors.New("captcha backend http requires an http(s) endpoint")
	ErrNoCaptchaAMQPURL      = errors.New("captcha backend amqp requires a broker URL")
	ErrNoCaptchaQueue        = errors.New("captcha backend amqp requires a queue name")
	ErrNoCaptchaAnswer       = errors.New("captcha backend static requires an answer")
	ErrInvalidCaptchaTiming  = errors.New("captcha timeout and poll interval must be positive")

	// ErrNoRenderEndpoint is returned when no rendering service is configured.
	// Set SPLASH_INSTANCE or --render-endpoint.
	ErrNoRenderEndpoint = errors.New("no render endpoint: set SPLASH_INSTANCE or --render-endpoint")

	ErrUnknownRenderBackend = errors.New("unknown render backend: use splash or cdp")
	ErrInvalidRenderWait    = errors.New("invalid render wait: must be non-negative")
	ErrInvalidRenderTimeout = errors.New("invalid render timeout: must be positive")

	ErrNoStorageDir          = errors.New("storage directory must not be empty")
	ErrInvalidJobTimeout     = errors.New("invalid job timeout: must be positive")
	ErrInvalidRequestTimeout = errors.New("invalid request timeout: must be positive")
	ErrInvalidRateLimit      = errors.New("invalid rate limit: must be non-negative with a positive burst")
	ErrInvalidMaxBodySize    = errors.New("invalid max body size: must be non-negative")
	ErrInvalidConcurrency    = errors.New("invalid concurrency: must be positive")
	ErrInvalidProxyURL       = errors.New("invalid proxy URL")

	// ErrInvalidEnv is returned when an environment variable cannot be parsed.
	ErrInvalidEnv = errors.New("invalid environment variable")
)
