// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// The SecureHandler masks, even in verbose mode:
//   - HTTP headers (Authorization, Cookie, Set-Cookie, X-Api-Key)
//   - portal secrets and login form passwords
//   - session tokens and captcha answers
//   - service credentials such as API keys and broker URLs with userinfo
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Debug("session established",
//	    "token", session.Token,      // logged as ***REDACTED***
//	    "credential", cred,          // LogValuer, identity only
//	)
package log
