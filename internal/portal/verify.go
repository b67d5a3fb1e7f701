package portal

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"

	"github.com/nao1215/portalcapture/internal/config"
	"github.com/nao1215/portalcapture/internal/model"
)

// Predicate decides whether a login response means the portal accepted
// the credential. Anything it does not accept is treated as rejected.
type Predicate interface {
	Accepted(cred model.Credential, resp *model.LoginResponse) bool
}

// PredicateFunc adapts a function to the Predicate interface.
type PredicateFunc func(cred model.Credential, resp *model.LoginResponse) bool

// Accepted calls f.
func (f PredicateFunc) Accepted(cred model.Credential, resp *model.LoginResponse) bool {
	return f(cred, resp)
}

// BodyContains accepts responses whose body contains the identity.
// Portals greet the logged-in user by ID, so this is the default check.
func BodyContains() Predicate {
	return PredicateFunc(func(cred model.Credential, resp *model.LoginResponse) bool {
		if cred.Identity == "" {
			return false
		}
		return bytes.Contains(resp.Body, []byte(cred.Identity))
	})
}

// BodyContainsFold is BodyContains with Unicode case folding, for portals
// that print the ID in a different case than it is typed.
func BodyContainsFold() Predicate {
	return PredicateFunc(func(cred model.Credential, resp *model.LoginResponse) bool {
		if cred.Identity == "" {
			return false
		}
		fold := cases.Fold()
		return strings.Contains(fold.String(string(resp.Body)), fold.String(cred.Identity))
	})
}

// SelectorPresent accepts responses whose HTML has at least one element
// matching the CSS selector, e.g. a logout link.
func SelectorPresent(selector string) Predicate {
	return PredicateFunc(func(_ model.Credential, resp *model.LoginResponse) bool {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		if err != nil {
			return false
		}
		return doc.Find(selector).Length() > 0
	})
}

// CookiePresent accepts responses after which the named cookie is set.
func CookiePresent(name string) Predicate {
	return PredicateFunc(func(_ model.Credential, resp *model.LoginResponse) bool {
		return slices.Contains(resp.CookieNames, name)
	})
}

// StatusIs accepts responses with the given final status code.
func StatusIs(code int) Predicate {
	return PredicateFunc(func(_ model.Credential, resp *model.LoginResponse) bool {
		return resp.StatusCode == code
	})
}

// All accepts only when every predicate accepts.
func All(preds ...Predicate) Predicate {
	return PredicateFunc(func(cred model.Credential, resp *model.LoginResponse) bool {
		for _, p := range preds {
			if !p.Accepted(cred, resp) {
				return false
			}
		}
		return len(preds) > 0
	})
}

// PredicateFromConfig builds the predicate selected by cfg.VerifyMode.
func PredicateFromConfig(cfg *config.Config) (Predicate, error) {
	switch cfg.VerifyMode {
	case config.VerifyBodyContains:
		return BodyContains(), nil
	case config.VerifyBodyContainsFold:
		return BodyContainsFold(), nil
	case config.VerifySelector:
		return SelectorPresent(cfg.VerifySelector), nil
	case config.VerifyCookie:
		return CookiePresent(cfg.VerifyCookie), nil
	case config.VerifyStatus:
		return StatusIs(cfg.VerifyStatus), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownVerifyMode, cfg.VerifyMode)
	}
}
