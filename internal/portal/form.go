package portal

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

const (
	htmlElementInput    = "input"
	htmlElementSelect   = "select"
	htmlElementTextarea = "textarea"
	htmlElementButton   = "button"
)

// ErrNoLoginForm is returned when the login page contains no form.
var ErrNoLoginForm = errors.New("login page contains no form")

// Form is an HTML form found on the login page.
type Form struct {
	// Action is the absolute submission URL. An empty action attribute
	// resolves to the page URL.
	Action string

	// Method is GET or POST.
	Method string

	// Fields are the named controls in document order.
	Fields []FormField
}

// FormField is a named form control.
type FormField struct {
	Name    string
	Type    string
	Value   string
	Checked bool
}

// ParseForms extracts all forms from an HTML page.
// contentType is used to pick the page encoding.
func ParseForms(pageURL string, content io.Reader, contentType string) ([]Form, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	r, err := charset.NewReader(content, contentType)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	forms := make([]Form, 0, 1)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "form" {
			form := Form{
				Action: resolveURL(base, getAttr(n, "action")),
				Method: strings.ToUpper(getAttr(n, "method")),
			}
			if form.Method != http.MethodPost {
				form.Method = http.MethodGet
			}
			extractFormFields(n, &form)
			forms = append(forms, form)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return forms, nil
}

// SelectLoginForm picks the form that has a field named identityField,
// falling back to the first form on the page.
func SelectLoginForm(forms []Form, identityField string) (*Form, error) {
	if len(forms) == 0 {
		return nil, ErrNoLoginForm
	}
	for i := range forms {
		for _, f := range forms[i].Fields {
			if f.Name == identityField {
				return &forms[i], nil
			}
		}
	}
	return &forms[0], nil
}

// Values returns the data a browser would submit for the form without user
// input: pre-filled text and hidden fields, checked boxes, the first option
// of each select, and the first submit button. overrides replace or add
// fields by name.
func (f *Form) Values(overrides map[string]string) url.Values {
	values := url.Values{}
	clicked := false

	for _, field := range f.Fields {
		switch field.Type {
		case "submit", "image":
			if clicked {
				continue
			}
			clicked = true
		case "reset", "button", "file":
			continue
		case "checkbox", "radio":
			if !field.Checked {
				continue
			}
			if field.Value == "" {
				field.Value = "on"
			}
		}
		values.Add(field.Name, field.Value)
	}

	for name, value := range overrides {
		values.Set(name, value)
	}
	return values
}

func extractFormFields(n *html.Node, form *Form) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case htmlElementInput, htmlElementTextarea, htmlElementSelect, htmlElementButton:
			field := FormField{
				Name:    getAttr(n, "name"),
				Type:    strings.ToLower(getAttr(n, "type")),
				Value:   getAttr(n, "value"),
				Checked: hasAttr(n, "checked"),
			}
			switch n.Data {
			case htmlElementTextarea:
				field.Type = htmlElementTextarea
				field.Value = textContent(n)
			case htmlElementSelect:
				field.Type = htmlElementSelect
				field.Value = selectedOption(n)
			case htmlElementButton:
				if field.Type == "" {
					field.Type = "submit"
				}
			default:
				if field.Type == "" {
					field.Type = "text"
				}
			}
			if field.Name != "" && !hasAttr(n, "disabled") {
				form.Fields = append(form.Fields, field)
			}
			if n.Data != htmlElementButton {
				return
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractFormFields(c, form)
	}
}

// selectedOption returns the value of the selected option, or the first one.
func selectedOption(sel *html.Node) string {
	var first, selected *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "option" {
			if first == nil {
				first = n
			}
			if selected == nil && hasAttr(n, "selected") {
				selected = n
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(sel)

	opt := selected
	if opt == nil {
		opt = first
	}
	if opt == nil {
		return ""
	}
	if v, ok := lookupAttr(opt, "value"); ok {
		return v
	}
	return strings.TrimSpace(textContent(opt))
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// resolveURL resolves href against base. An empty href yields the base URL.
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return base.String()
	}
	u, err := url.Parse(href)
	if err != nil {
		return base.String()
	}
	return base.ResolveReference(u).String()
}

func getAttr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := lookupAttr(n, key)
	return ok
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}
