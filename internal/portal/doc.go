// Package portal implements the CAPTCHA-gated login handshake.
//
// An Authenticator fetches the login page, takes the session token from the
// first Set-Cookie header (or, when the cookie was set on a redirect, from
// the cookie jar), asks a captcha.Resolver for the answer, submits
// the discovered login form with the credential and answer on the same
// session, and decides with a Predicate whether the portal accepted it.
//
// A rejected login is a normal result (model.AuthRejected), not an error.
// Errors are wrapped with the model taxonomy sentinels: ErrNetwork,
// ErrProtocol and ErrCaptcha.
package portal
