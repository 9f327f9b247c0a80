// Package session logs a storefront account in, falling back to an
// interactive browser login when the direct credential login is refused.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"freebies_claimer/internal/logbus"
	"freebies_claimer/internal/model"
	"freebies_claimer/internal/provider"
	"freebies_claimer/internal/twofactor"
)

var (
	ErrInitialization = errors.New("client initialization failed")
	ErrAuthentication = errors.New("authentication failed")
)

type Establisher struct {
	Provider provider.Provider
	Adapter  provider.LoginAdapter
	// Cookies is shared by every account of the run.
	Cookies *model.CookieStore
	Options model.LoginOptions

	// RefreshBeforeFallback regenerates the two-factor code before the
	// interactive login starts.
	RefreshBeforeFallback bool

	Bus *logbus.Bus
	OTP func(secret string, t time.Time) (string, error)
	Now func() time.Time
}

func New(p provider.Provider, adapter provider.LoginAdapter, cookies *model.CookieStore, opts model.LoginOptions, bus *logbus.Bus) *Establisher {
	if cookies == nil {
		cookies = model.NewCookieStore(nil)
	}
	return &Establisher{
		Provider:              p,
		Adapter:               adapter,
		Cookies:               cookies,
		Options:               opts,
		RefreshBeforeFallback: true,
		Bus:                   bus,
		OTP:                   twofactor.Generate,
		Now:                   time.Now,
	}
}

// Establish returns a logged-in client for account. account.TwoFactorCode is
// overwritten with a freshly generated code when the account has a secret.
func (e *Establisher) Establish(ctx context.Context, account *model.Account) (provider.Client, error) {
	if account == nil {
		return nil, errors.New("account is nil")
	}
	if account.HasSecret() {
		e.attachCode(account)
	}

	client, err := e.Provider.NewClient(*account)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	if err := client.Init(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitialization, err)
	}

	if e.directLogin(ctx, client, account) {
		return client, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.Bus.Warn(fmt.Sprintf("Failed to login as %s, please attempt manually.", account.Email), map[string]any{
		"email": account.Email,
	})

	code, err := e.fallback(ctx, client, account)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAuthentication, account.Email, err)
	}
	ok, err := client.LoginWithExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAuthentication, account.Email, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s: exchange code rejected", ErrAuthentication, account.Email)
	}
	return client, nil
}

// directLogin never fails loudly: any error just means "try the fallback".
func (e *Establisher) directLogin(ctx context.Context, client provider.Client, account *model.Account) bool {
	ok, err := client.Login(ctx, provider.CredentialsFor(*account))
	if err != nil {
		e.Bus.Debug("direct login error", map[string]any{"email": account.Email, "error": err.Error()})
		return false
	}
	return ok
}

func (e *Establisher) fallback(ctx context.Context, client provider.Client, account *model.Account) (string, error) {
	if account.RememberLastSession {
		e.Cookies = e.Cookies.Append(account.Cookies...)
		e.Cookies.Append(model.BrowserCookiesFromJar(client.Jar().AllCookies())...)
	}
	if account.HasSecret() && e.RefreshBeforeFallback {
		e.attachCode(account)
	}

	opts := e.Options
	opts.Cookies = e.Cookies.Snapshot()

	login, err := e.Adapter.Begin(ctx, *account, opts)
	if err != nil {
		return "", fmt.Errorf("start interactive login: %w", err)
	}
	defer func() {
		if cerr := login.Close(); cerr != nil {
			e.Bus.Warn("close interactive login", map[string]any{"email": account.Email, "error": cerr.Error()})
		}
	}()

	code, err := login.ExchangeCode(ctx)
	if err != nil {
		return "", fmt.Errorf("exchange code: %w", err)
	}

	if account.RememberLastSession {
		cookies, err := login.PageCookies(ctx)
		if err != nil {
			e.Bus.Warn("read interactive login cookies", map[string]any{"email": account.Email, "error": err.Error()})
		}
		jar := client.Jar()
		for _, c := range cookies {
			jar.SetCookie(model.JarCookieFromBrowser(c), cookieURL(c.Domain))
		}
	}
	return code, nil
}

func (e *Establisher) attachCode(account *model.Account) {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	gen := twofactor.Generate
	if e.OTP != nil {
		gen = e.OTP
	}
	code, err := gen(account.Secret, now())
	if err != nil {
		e.Bus.Warn("two-factor code generation failed", map[string]any{"email": account.Email, "error": err.Error()})
		return
	}
	account.TwoFactorCode = code
}

func cookieURL(domain string) *url.URL {
	return &url.URL{Scheme: "https", Host: strings.TrimPrefix(domain, "."), Path: "/"}
}
