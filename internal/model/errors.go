package model

import (
	"errors"
)

// Pipeline error taxonomy.
// Every component wraps one of these sentinels with %w so callers can
// classify a failure with errors.Is, including after the error has been
// relayed out of a worker process.
var (
	// ErrNetwork is returned when the portal is unreachable or answers
	// with a non-2xx status and no usable session.
	ErrNetwork = errors.New("network error")

	// ErrProtocol is returned when a portal response cannot be interpreted,
	// e.g. a missing or malformed session cookie or login form.
	ErrProtocol = errors.New("protocol error")

	// ErrCaptcha is returned when the captcha resolver fails.
	ErrCaptcha = errors.New("captcha error")

	// ErrAuthenticationFailed is returned when the portal rejects the
	// credentials. It is expected rather than exceptional but ends the job.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrRender is returned when the render service fails or its image
	// payload cannot be decoded.
	ErrRender = errors.New("render error")

	// ErrExecution is returned when the isolated worker crashes, exits
	// without reporting an outcome, or exceeds its time budget.
	ErrExecution = errors.New("execution error")
)

// ErrorKind is the serialisable name of a taxonomy sentinel.
type ErrorKind string

// Error kinds. ErrorKindNone marks success.
const (
	ErrorKindNone           ErrorKind = ""
	ErrorKindNetwork        ErrorKind = "network"
	ErrorKindProtocol       ErrorKind = "protocol"
	ErrorKindCaptcha        ErrorKind = "captcha"
	ErrorKindAuthentication ErrorKind = "authentication"
	ErrorKindRender         ErrorKind = "render"
	ErrorKindExecution      ErrorKind = "execution"
)

var kindSentinels = []struct {
	kind     ErrorKind
	sentinel error
}{
	{ErrorKindNetwork, ErrNetwork},
	{ErrorKindProtocol, ErrProtocol},
	{ErrorKindCaptcha, ErrCaptcha},
	{ErrorKindAuthentication, ErrAuthenticationFailed},
	{ErrorKindRender, ErrRender},
	{ErrorKindExecution, ErrExecution},
}

// KindOf classifies err. Errors outside the taxonomy are reported as
// ErrorKindExecution since they can only come from the run machinery.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	for _, ks := range kindSentinels {
		if errors.Is(err, ks.sentinel) {
			return ks.kind
		}
	}
	return ErrorKindExecution
}

// relayedError is an error rebuilt from its kind and message.
type relayedError struct {
	sentinel error
	msg      string
}

func (e *relayedError) Error() string { return e.msg }
func (e *relayedError) Unwrap() error { return e.sentinel }

// ErrorFromKind rebuilds an error that was flattened to kind and message,
// so that errors.Is matches the original sentinel. Unknown kinds map to
// ErrExecution.
func ErrorFromKind(kind ErrorKind, msg string) error {
	if kind == ErrorKindNone {
		return nil
	}
	sentinel := ErrExecution
	for _, ks := range kindSentinels {
		if ks.kind == kind {
			sentinel = ks.sentinel
			break
		}
	}
	if msg == "" {
		msg = sentinel.Error()
	}
	return &relayedError{sentinel: sentinel, msg: msg}
}

// IsCredentialFailure reports whether err means the portal rejected the
// credentials, as opposed to a system or network problem.
func IsCredentialFailure(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed)
}
