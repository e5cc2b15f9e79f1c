// Package upstream talks to the portal's timetable page endpoints. The
// portal is an ASP.NET application: week lookups go through two XHR-style
// POSTs (getCodeWeekByData, mudar_semana) that each wrap their payload in a
// {"d": ...} envelope and require a logged-in session cookie set.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"portalics/internal/config"
	appLog "portalics/internal/log"
)

const (
	// Per-call timeouts. The portal can be slow; a window that exceeds its
	// timeout is dropped for that cycle only.
	resolveTimeout = 20 * time.Second
	fetchTimeout   = 30 * time.Second

	// The resolve endpoint expects an English short date, e.g. "Thu Sep 25 2025".
	resolveDateLayout = "Mon Jan 02 2006"

	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:142.0) Gecko/20100101 Firefox/142.0"
)

// Client implements the week-resolution and week-fetch calls against the
// portal. It satisfies refresh.WeekClient.
type Client struct {
	httpc   *http.Client
	cookies *CookieStore

	baseURL      string
	codeUser     string
	codeUserCode string
	entidade     string

	basicUser string
	basicPass string
}

// NewClient builds a portal client from config. The CookieStore may be nil
// when the portal session is established by basic auth alone.
func NewClient(pc config.PortalConfig, cookies *CookieStore) *Client {
	c := &Client{
		// No client-level timeout; each call carries its own deadline.
		httpc:        &http.Client{},
		cookies:      cookies,
		baseURL:      pc.BaseURL,
		codeUser:     pc.CodeUser,
		codeUserCode: pc.CodeUserCode,
		entidade:     pc.Entidade,
	}
	if pc.BasicAuth != nil {
		c.basicUser = pc.BasicAuth.Username
		c.basicPass = pc.BasicAuth.Password
	}
	return c
}

// envelope is the ASP.NET JSON wrapper both endpoints use.
type envelope struct {
	D string `json:"d"`
}

// ResolveWeek asks the portal which week token contains the given instant.
// An empty token with a nil error means the portal answered but knows no
// week for that date.
func (c *Client) ResolveWeek(ctx context.Context, instant time.Time) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	payload := map[string]string{
		"data": instant.Format(resolveDateLayout),
	}
	d, err := c.post(ctx, c.baseURL+"/intranet/ver_horario/ver_horario.aspx/getCodeWeekByData", payload)
	if err != nil {
		return "", fmt.Errorf("resolve week for %s: %w", instant.Format("2006-01-02"), err)
	}
	return d, nil
}

// FetchWeek retrieves the raw schedule blob for a resolved week token.
func (c *Client) FetchWeek(ctx context.Context, token string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	payload := map[string]string{
		"code_week":      token,
		"code_user":      c.codeUser,
		"entidade":       c.entidade,
		"code_user_code": c.codeUserCode,
	}
	d, err := c.post(ctx, c.baseURL+"/intranet/ver_horario/ver_horario.aspx/mudar_semana", payload)
	if err != nil {
		return "", fmt.Errorf("fetch week %s: %w", token, err)
	}
	return d, nil
}

// post sends one JSON POST with the browser-like headers the portal
// expects and unwraps the {"d": ...} envelope.
func (c *Client) post(ctx context.Context, url string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Origin", c.baseURL)
	req.Header.Set("Referer", c.baseURL+"/intranet/ver_horario/ver_horario.aspx?user="+c.codeUser)
	req.Header.Set("User-Agent", userAgent)

	if c.basicUser != "" && c.basicPass != "" {
		req.SetBasicAuth(c.basicUser, c.basicPass)
	}
	if c.cookies != nil {
		if h := c.cookies.Header(); h != "" {
			req.Header.Set("Cookie", h)
		}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little for connection reuse; the body content is not
		// useful beyond logging.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return "", fmt.Errorf("portal returned %s", resp.Status)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		appLog.Debug("portal response was not a d-envelope", "url", url, "bytes", len(raw))
		return "", fmt.Errorf("decode portal response: %w", err)
	}
	return env.D, nil
}
