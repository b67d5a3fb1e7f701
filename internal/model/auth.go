package model

// AuthState is the verified state of a login submission.
// There is no third state: anything that is not recognised as a
// successful login is Rejected.
type AuthState int

const (
	// AuthRejected means the portal did not accept the submission.
	AuthRejected AuthState = iota

	// AuthAuthenticated means the verification predicate matched.
	AuthAuthenticated
)

// String returns the state name.
func (s AuthState) String() string {
	if s == AuthAuthenticated {
		return "AUTHENTICATED"
	}
	return "REJECTED"
}

// LoginResponse is the raw response to the login submission.
type LoginResponse struct {
	StatusCode  int
	URL         string
	ContentType string
	Body        []byte
	CookieNames []string
}

// AuthResult is produced by the session authenticator.
type AuthResult struct {
	State    AuthState
	Session  *Session
	Response *LoginResponse
}

// Authenticated reports whether the result allows capture to proceed.
func (r *AuthResult) Authenticated() bool {
	return r != nil && r.State == AuthAuthenticated && r.Session != nil
}
