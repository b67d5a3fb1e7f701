package portal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/nao1215/portalcapture/internal/captcha"
	"github.com/nao1215/portalcapture/internal/config"
	"github.com/nao1215/portalcapture/internal/model"
)

// FormFields names the login form controls the authenticator fills in.
type FormFields struct {
	Identity string
	Secret   string
	Captcha  string
}

// DefaultFormFields returns the default field names.
func DefaultFormFields() FormFields {
	return FormFields{
		Identity: config.DefaultIdentityField,
		Secret:   config.DefaultSecretField,
		Captcha:  config.DefaultCaptchaField,
	}
}

// Authenticator performs the login handshake against the portal.
// An Authenticator is meant for a single job: its client's cookie jar
// holds that job's session.
type Authenticator struct {
	client          *http.Client
	loginURL        string
	captchaImageURL string
	fields          FormFields
	resolver        captcha.Resolver
	predicate       Predicate
	maxBodySize     int64
	logger          *slog.Logger
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithFormFields sets the login form field names.
func WithFormFields(f FormFields) Option {
	return func(a *Authenticator) {
		a.fields = f
	}
}

// WithPredicate sets the login verification predicate.
func WithPredicate(p Predicate) Option {
	return func(a *Authenticator) {
		a.predicate = p
	}
}

// WithCaptchaImageURL sets the challenge image URL handed to the resolver.
func WithCaptchaImageURL(u string) Option {
	return func(a *Authenticator) {
		a.captchaImageURL = u
	}
}

// WithMaxBodySize limits how much of each portal response is read.
func WithMaxBodySize(n int64) Option {
	return func(a *Authenticator) {
		a.maxBodySize = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authenticator) {
		a.logger = l
	}
}

// NewAuthenticator creates an Authenticator for the login page at loginURL.
// A client without a cookie jar gets one, since the submission must reuse
// the session established by the first request.
func NewAuthenticator(client *http.Client, loginURL string, resolver captcha.Resolver, opts ...Option) *Authenticator {
	if client == nil {
		client = &http.Client{}
	}
	if client.Jar == nil {
		c := *client
		c.Jar, _ = cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options
		client = &c
	}

	a := &Authenticator{
		client:      client,
		loginURL:    loginURL,
		fields:      DefaultFormFields(),
		resolver:    resolver,
		predicate:   BodyContains(),
		maxBodySize: config.DefaultMaxBodySize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate runs the login handshake for cred.
//
// It returns an AuthResult for both accepted and rejected logins. Errors
// are reserved for failures to complete the handshake and wrap
// model.ErrNetwork, model.ErrProtocol or model.ErrCaptcha. The captcha is
// asked for exactly once.
func (a *Authenticator) Authenticate(ctx context.Context, cred model.Credential) (*model.AuthResult, error) {
	page, err := a.fetch(ctx, http.MethodGet, a.loginURL, nil, "")
	if err != nil {
		return nil, fmt.Errorf("%w: fetch login page: %w", model.ErrNetwork, err)
	}

	name, token, err := ExtractSessionToken(page.header)
	if errors.Is(err, ErrNoSetCookie) {
		// The cookie may have been set on a redirect to the login page.
		if c := a.jarSessionCookie(); c != nil {
			name, token, err = c.Name, c.Value, nil
		}
	}
	if err != nil {
		if !isSuccess(page.status) {
			return nil, fmt.Errorf("%w: login page returned HTTP %d without a session cookie", model.ErrNetwork, page.status)
		}
		return nil, fmt.Errorf("%w: %w", model.ErrProtocol, err)
	}

	session := model.NewSession(a.loginURL, name, token)
	a.logger.Debug("session established", "cookie_name", name, "status", page.status)

	forms, err := ParseForms(page.url, bytes.NewReader(page.body), page.header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("%w: parse login page: %w", model.ErrProtocol, err)
	}
	form, err := SelectLoginForm(forms, a.fields.Identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrProtocol, err)
	}

	answer, err := a.resolver.Solve(ctx, session.Challenge(a.captchaImageURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrCaptcha, err)
	}
	a.logger.Debug("captcha answered", "captcha_answer", answer.Text)

	values := form.Values(map[string]string{
		a.fields.Identity: cred.Identity,
		a.fields.Secret:   cred.Secret,
		a.fields.Captcha:  answer.Text,
	})

	resp, err := a.submit(ctx, form, values)
	if err != nil {
		return nil, fmt.Errorf("%w: submit login form: %w", model.ErrNetwork, err)
	}
	if resp.status >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: login submission returned HTTP %d", model.ErrNetwork, resp.status)
	}

	session.Cookies = a.sessionCookies()
	login := &model.LoginResponse{
		StatusCode:  resp.status,
		URL:         resp.url,
		ContentType: resp.header.Get("Content-Type"),
		Body:        resp.body,
		CookieNames: cookieNames(session.Cookies),
	}

	result := &model.AuthResult{
		State:    model.AuthRejected,
		Session:  session,
		Response: login,
	}
	if a.predicate.Accepted(cred, login) {
		result.State = model.AuthAuthenticated
	}

	a.logger.Debug("login verified", "credential", cred, "state", result.State.String(), "status", resp.status)
	return result, nil
}

// submit sends the form the way a browser would for its method.
func (a *Authenticator) submit(ctx context.Context, form *Form, values url.Values) (*response, error) {
	if form.Method == http.MethodPost {
		return a.fetch(ctx, http.MethodPost, form.Action, strings.NewReader(values.Encode()),
			"application/x-www-form-urlencoded")
	}

	u, err := url.Parse(form.Action)
	if err != nil {
		return nil, err
	}
	u.RawQuery = values.Encode()
	return a.fetch(ctx, http.MethodGet, u.String(), nil, "")
}

// response is a fully read portal response.
type response struct {
	status int
	url    string
	header http.Header
	body   []byte
}

func (a *Authenticator) fetch(ctx context.Context, method, target string, body io.Reader, contentType string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if method == http.MethodPost {
		req.Header.Set("Referer", a.loginURL)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBodySize))
	if err != nil {
		return nil, err
	}

	return &response{
		status: resp.StatusCode,
		url:    resp.Request.URL.String(),
		header: resp.Header,
		body:   data,
	}, nil
}

// sessionCookies returns the cookies the jar holds for the portal.
func (a *Authenticator) sessionCookies() []*http.Cookie {
	u, err := url.Parse(a.loginURL)
	if err != nil {
		return nil
	}
	return a.client.Jar.Cookies(u)
}

// jarSessionCookie returns the first non-empty cookie the jar holds for
// the portal, or nil.
func (a *Authenticator) jarSessionCookie() *http.Cookie {
	for _, c := range a.sessionCookies() {
		if c.Name != "" && c.Value != "" {
			return c
		}
	}
	return nil
}

func cookieNames(cookies []*http.Cookie) []string {
	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		names = append(names, c.Name)
	}
	return names
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
