package render

import (
	"context"
	"fmt"
	"net/http"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/nao1215/portalcapture/internal/model"
)

// CDPRenderer renders pages in a remote Chrome reached over the DevTools
// protocol. The endpoint is a ws:// debugger URL or the http:// address
// of a browser started with --remote-debugging-port.
type CDPRenderer struct {
	endpoint string
	width    int
	height   int
}

// NewCDPRenderer creates a CDPRenderer with the given viewport size.
func NewCDPRenderer(endpoint string, width, height int) *CDPRenderer {
	return &CDPRenderer{endpoint: endpoint, width: width, height: height}
}

// Render implements Renderer. Each call opens a fresh browser tab and
// closes it afterwards.
func (r *CDPRenderer) Render(ctx context.Context, req Request) (*Result, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(ctx, r.endpoint)
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	var (
		image []byte
		html  string
	)
	actions := []chromedp.Action{
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			params := cookieParams(req.URL, req.Session)
			if len(params) == 0 {
				return nil
			}
			return network.SetCookies(params).Do(ctx)
		}),
		emulation.SetDeviceMetricsOverride(int64(r.width), int64(r.height), 1, false),
		chromedp.Navigate(req.URL),
	}
	if req.Wait > 0 {
		actions = append(actions, chromedp.Sleep(req.Wait))
	}
	if req.FullPage {
		// Quality 100 makes chromedp request PNG output.
		actions = append(actions, chromedp.FullScreenshot(&image, 100))
	} else {
		actions = append(actions, chromedp.CaptureScreenshot(&image))
	}
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return nil, fmt.Errorf("browser render failed: %w", err)
	}
	if err := validatePNG(image); err != nil {
		return nil, err
	}
	return &Result{Image: image, HTML: html}, nil
}

// cookieParams converts the session cookies for use on targetURL.
func cookieParams(targetURL string, session *model.Session) []*network.CookieParam {
	if session == nil {
		return nil
	}

	cookies := session.Cookies
	if len(cookies) == 0 && session.CookieName != "" {
		cookies = []*http.Cookie{{Name: session.CookieName, Value: session.Token}}
	}

	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &network.CookieParam{
			Name:  c.Name,
			Value: c.Value,
			URL:   targetURL,
		})
	}
	return params
}
