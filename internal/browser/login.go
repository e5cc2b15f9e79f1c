// Package browser bootstraps a portal session interactively. The portal
// has no credential API we can call; the session lives in ASP cookies
// issued after a browser login. Instead of asking the operator to copy
// cookies out of devtools, we open a real browser window, let them log in,
// and harvest the cookies ourselves.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	appLog "portalics/internal/log"
	"portalics/internal/upstream"
)

const (
	// DefaultTimeout bounds the whole interactive login flow.
	DefaultTimeout = 5 * time.Minute

	pollInterval = 2 * time.Second
)

// LoginOptions defines parameters for the interactive cookie capture.
type LoginOptions struct {
	// PortalURL is the page to open, e.g. "https://portal.isep.ipp.pt".
	PortalURL string

	// CookiesPath is where the harvested cookies are written, in the YAML
	// format the upstream client reads.
	CookiesPath string

	// Timeout bounds the entire flow. If zero, DefaultTimeout is used.
	Timeout time.Duration
}

// CaptureSessionCookies launches a non-headless Chromium via chromedp,
// navigates to the portal and polls the browser's cookie jar until an ASP
// session cookie appears (meaning the operator finished logging in). All
// cookies scoped to the portal host are then written to the cookie file.
func CaptureSessionCookies(parentCtx context.Context, opts LoginOptions) error {
	if opts.PortalURL == "" {
		return errors.New("login: PortalURL is required")
	}
	if opts.CookiesPath == "" {
		return errors.New("login: CookiesPath is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	u, err := url.Parse(opts.PortalURL)
	if err != nil {
		return fmt.Errorf("login: parse portal URL: %w", err)
	}
	host := u.Hostname()

	// The operator has to type credentials, so the browser must be visible.
	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parentCtx, allocOpts...)
	defer cancelAlloc()

	ctx, cancelCtx := chromedp.NewContext(allocCtx)
	defer cancelCtx()

	ctx, cancelTimeout := context.WithTimeout(ctx, opts.Timeout)
	defer cancelTimeout()

	appLog.Info("opening portal for interactive login",
		"url", opts.PortalURL,
		"timeout", opts.Timeout.String(),
	)
	if err := chromedp.Run(ctx, chromedp.Navigate(opts.PortalURL)); err != nil {
		return fmt.Errorf("login: open portal: %w", err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("login: timed out waiting for portal session: %w", ctx.Err())
		case <-ticker.C:
		}

		cookies, err := browserCookies(ctx)
		if err != nil {
			return fmt.Errorf("login: read browser cookies: %w", err)
		}

		scoped := hostCookies(cookies, host)
		if !hasSessionCookie(scoped) {
			continue
		}

		if err := upstream.SaveCookies(opts.CookiesPath, scoped); err != nil {
			return fmt.Errorf("login: save cookies: %w", err)
		}
		appLog.Info("portal session captured",
			"path", opts.CookiesPath,
			"cookies", len(scoped),
		)
		return nil
	}
}

// browserCookies reads the full cookie jar of the running browser.
func browserCookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	return cookies, err
}

// hostCookies filters the jar down to cookies scoped to the portal host.
func hostCookies(cookies []*network.Cookie, host string) map[string]string {
	out := make(map[string]string)
	for _, c := range cookies {
		domain := strings.TrimPrefix(c.Domain, ".")
		if domain == host || strings.HasSuffix(host, "."+domain) {
			out[c.Name] = c.Value
		}
	}
	return out
}

// hasSessionCookie reports whether the set contains a cookie that marks a
// completed portal login.
func hasSessionCookie(cookies map[string]string) bool {
	for name := range cookies {
		if strings.HasPrefix(name, "ASPSESSIONID") || name == "EUIPPSESSIONGUID" {
			return true
		}
	}
	return false
}
