package portal

import (
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrNoSetCookie is returned when the login page sets no cookie.
	ErrNoSetCookie = errors.New("login page response has no Set-Cookie header")

	// ErrMalformedCookie is returned when the first Set-Cookie entry is not name=value.
	ErrMalformedCookie = errors.New("malformed Set-Cookie header")
)

// ExtractSessionToken returns the name and value of the first Set-Cookie
// entry. The entry is cut at the first ';' and split once at the first '=',
// so values that themselves contain '=' are kept whole.
func ExtractSessionToken(header http.Header) (name, token string, err error) {
	values := header.Values("Set-Cookie")
	if len(values) == 0 {
		return "", "", ErrNoSetCookie
	}

	pair, _, _ := strings.Cut(values[0], ";")
	name, token, ok := strings.Cut(pair, "=")
	if !ok {
		return "", "", ErrMalformedCookie
	}

	name = strings.TrimSpace(name)
	token = strings.TrimSpace(token)
	if name == "" || token == "" {
		return "", "", ErrMalformedCookie
	}
	return name, token, nil
}
