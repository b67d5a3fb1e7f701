package model

import (
	"net/http"
	"time"
)

// Session is the portal session established by fetching the login page.
// A Session belongs to exactly one CrawlJob and is discarded with it.
type Session struct {
	// CookieName is the name of the session cookie, e.g. "PHPSESSID".
	CookieName string `json:"cookie_name"`

	// Token is the session cookie value.
	Token string `json:"-"`

	// EstablishedAt is when the login page response was received.
	EstablishedAt time.Time `json:"established_at"`

	// PortalURL is the login page URL the session was obtained from.
	PortalURL string `json:"portal_url"`

	// Cookies holds every cookie the portal set for this session,
	// including ones issued after the login submission.
	Cookies []*http.Cookie `json:"-"`
}

// NewSession creates a Session for the given cookie.
func NewSession(portalURL, cookieName, token string) *Session {
	return &Session{
		CookieName:    cookieName,
		Token:         token,
		EstablishedAt: time.Now(),
		PortalURL:     portalURL,
	}
}

// CookieHeader renders the session cookies as a Cookie request header value.
// When no cookie jar contents were captured, only the session cookie is used.
func (s *Session) CookieHeader() string {
	cookies := s.Cookies
	if len(cookies) == 0 {
		cookies = []*http.Cookie{{Name: s.CookieName, Value: s.Token}}
	}

	req := &http.Request{Header: http.Header{}}
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	return req.Header.Get("Cookie")
}

// CaptchaChallenge is handed to a captcha resolver. It is derived from a
// Session and is only valid while that session is alive.
type CaptchaChallenge struct {
	// SessionToken is the opaque session identifier the captcha is tied to.
	SessionToken string `json:"session_token"`

	// CookieName lets a resolver present the token back to the portal.
	CookieName string `json:"cookie_name,omitempty"`

	// ImageURL is where the challenge image for this session can be fetched.
	ImageURL string `json:"image_url,omitempty"`
}

// Challenge derives a CaptchaChallenge from the session.
func (s *Session) Challenge(imageURL string) CaptchaChallenge {
	return CaptchaChallenge{
		SessionToken: s.Token,
		CookieName:   s.CookieName,
		ImageURL:     imageURL,
	}
}

// CaptchaAnswer is a resolver's best-effort answer.
type CaptchaAnswer struct {
	Text string `json:"text"`
}
