package browserlogin

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"freebies_claimer/internal/logbus"
	"freebies_claimer/internal/model"
	"freebies_claimer/internal/provider"
)

var ErrNoExchangeCode = errors.New("browserlogin: no exchange code before timeout")

// Adapter drives a real Chromium window in which the user finishes the login
// (captcha, device confirmation...). Once the storefront session is live the
// exchange endpoint hands out a one-time code.
type Adapter struct {
	bus          *logbus.Bus
	pollInterval time.Duration
}

func New(bus *logbus.Bus) *Adapter {
	return &Adapter{bus: bus, pollInterval: 2 * time.Second}
}

type Session struct {
	bus          *logbus.Bus
	opts         model.LoginOptions
	pollInterval time.Duration

	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page

	closeOnce sync.Once
	closeErr  error
}

func (a *Adapter) Begin(ctx context.Context, account model.Account, opts model.LoginOptions) (provider.InteractiveLogin, error) {
	l := launcher.New().
		Leakless(runtime.GOOS != "windows").
		Headless(opts.Headless)
	if opts.UserDataDir != "" {
		l = l.UserDataDir(opts.UserDataDir)
	}
	if opts.BrowserBin != "" {
		l = l.Bin(opts.BrowserBin)
	} else if bin, ok := launcher.LookPath(); ok {
		l = l.Bin(bin)
	}

	u, err := l.Context(ctx).Launch()
	if err != nil {
		l.Kill()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	s := &Session{
		bus:          a.bus,
		opts:         opts,
		pollInterval: a.pollInterval,
		launcher:     l,
		browser:      b,
	}

	page, err := stealth.Page(b)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	s.page = page

	if params := cookieParams(opts.Cookies, opts.LoginURL); len(params) > 0 {
		if err := page.SetCookies(params); err != nil {
			a.bus.Warn("browser cookie import failed", map[string]any{"error": err.Error(), "count": len(params)})
		}
	}

	if err := page.Context(ctx).Navigate(opts.LoginURL); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open login page: %w", err)
	}
	_ = page.Context(ctx).WaitLoad()
	s.prefill(account)

	a.bus.Info("interactive login started", map[string]any{
		"email":    account.Email,
		"headless": opts.Headless,
		"cookies":  len(opts.Cookies),
	})
	return s, nil
}

func (s *Session) prefill(account model.Account) {
	if account.Email == "" {
		return
	}
	_ = rod.Try(func() {
		el := s.page.Timeout(3 * time.Second).MustElement(`input[type="email"], input[name="email"], #email`)
		el.MustInput(account.Email)
	})
}

const exchangeJS = `async (url) => {
	try {
		const res = await fetch(url, { credentials: 'include', headers: { 'X-Requested-With': 'XMLHttpRequest' } });
		if (!res.ok) return '';
		const body = await res.json();
		return body && body.code ? String(body.code) : '';
	} catch (e) {
		return '';
	}
}`

// ExchangeCode polls the exchange endpoint from inside the page until the
// user has completed the login or the login timeout elapses.
func (s *Session) ExchangeCode(ctx context.Context) (string, error) {
	timeout := s.opts.LoginTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		res, err := s.page.Context(ctx).Eval(exchangeJS, s.opts.ExchangeURL)
		if err == nil && res != nil {
			if code := strings.TrimSpace(res.Value.Str()); code != "" {
				return code, nil
			}
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", ErrNoExchangeCode
			}
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Session) PageCookies(ctx context.Context) ([]model.BrowserCookie, error) {
	cookies, err := s.page.Context(ctx).Cookies(nil)
	if err != nil {
		return nil, fmt.Errorf("read page cookies: %w", err)
	}
	out := make([]model.BrowserCookie, 0, len(cookies))
	for _, c := range cookies {
		if c == nil {
			continue
		}
		out = append(out, browserCookieFromProto(c))
	}
	return out, nil
}

func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.page != nil {
			_ = s.page.Close()
		}
		if s.browser != nil {
			s.closeErr = s.browser.Close()
		}
		if s.launcher != nil {
			s.launcher.Kill()
			if s.opts.UserDataDir == "" {
				s.launcher.Cleanup()
			}
		}
	})
	return s.closeErr
}

func cookieParams(in []model.BrowserCookie, fallbackURL string) []*proto.NetworkCookieParam {
	out := make([]*proto.NetworkCookieParam, 0, len(in))
	for _, c := range in {
		if c.Name == "" {
			continue
		}
		out = append(out, cookieParamFromBrowser(c, fallbackURL))
	}
	return out
}

func cookieParamFromBrowser(c model.BrowserCookie, fallbackURL string) *proto.NetworkCookieParam {
	p := &proto.NetworkCookieParam{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
		SameSite: proto.NetworkCookieSameSite(c.SameSite),
	}
	if c.Domain == "" {
		p.URL = fallbackURL
	}
	if c.HasExpiry() {
		p.Expires = proto.TimeSinceEpoch(c.Expires)
	}
	return p
}

func browserCookieFromProto(c *proto.NetworkCookie) model.BrowserCookie {
	out := model.BrowserCookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
		SameSite: string(c.SameSite),
		Session:  c.Session,
	}
	if !c.Session && c.Expires > 0 {
		out.Expires = float64(c.Expires)
	}
	return out
}
