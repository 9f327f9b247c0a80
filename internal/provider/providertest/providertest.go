// Package providertest provides in-memory storefront and login-adapter fakes.
package providertest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"freebies_claimer/internal/model"
	"freebies_claimer/internal/provider"
)

// Jar records every cookie set on it together with the URL it was scoped to.
type Jar struct {
	mu      sync.Mutex
	cookies []*http.Cookie
	URLs    []string
}

func NewJar(cookies ...*http.Cookie) *Jar {
	return &Jar{cookies: cookies}
}

func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	for _, c := range cookies {
		j.SetCookie(c, u)
	}
}

func (j *Jar) SetCookie(c *http.Cookie, u *url.URL) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cookies = append(j.cookies, c)
	if u != nil {
		j.URLs = append(j.URLs, u.String())
	}
}

func (j *Jar) Cookies(*url.URL) []*http.Cookie {
	return j.AllCookies()
}

func (j *Jar) AllCookies() []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*http.Cookie, len(j.cookies))
	copy(out, j.cookies)
	return out
}

type Client struct {
	mu sync.Mutex

	InitErr     error
	LoginOK     bool
	LoginErr    error
	ExchangeOK  bool
	ExchangeErr error
	LogoutErr   error
	Info        provider.AccountInfo

	Promotions    provider.PromotionsResponse
	PromotionsErr error
	Products      map[string]provider.ResolvedOffer
	Bundles       map[string]provider.ResolvedOffer
	DetailErrs    map[string]error

	// PurchaseErrs and Owned are keyed by offer ID.
	PurchaseErrs map[string]error
	Owned        map[string]bool

	CookieJar *Jar

	Inits         int
	Logins        []provider.Credentials
	ExchangeCodes []string
	Logouts       int
	Purchases     []model.PromotionOffer
	ProductSlugs  []string
	BundleSlugs   []string
	PromoQueries  [][3]string
}

func (c *Client) Init(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Inits++
	return c.InitErr
}

func (c *Client) Login(_ context.Context, creds provider.Credentials) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Logins = append(c.Logins, creds)
	if c.LoginErr != nil {
		return false, c.LoginErr
	}
	return c.LoginOK, nil
}

func (c *Client) LoginWithExchangeCode(_ context.Context, code string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ExchangeCodes = append(c.ExchangeCodes, code)
	if c.ExchangeErr != nil {
		return false, c.ExchangeErr
	}
	return c.ExchangeOK, nil
}

func (c *Client) Logout(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Logouts++
	return c.LogoutErr
}

func (c *Client) Purchase(_ context.Context, offer model.PromotionOffer, quantity int) (provider.PurchaseResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Purchases = append(c.Purchases, offer)
	if err := c.PurchaseErrs[offer.ID]; err != nil {
		return provider.PurchaseResult{}, err
	}
	if c.Owned[offer.ID] {
		return provider.PurchaseResult{}, nil
	}
	return provider.PurchaseResult{Claimed: true, OrderID: fmt.Sprintf("order-%s-%d", offer.ID, quantity)}, nil
}

func (c *Client) FreeGamesPromotions(_ context.Context, country, allowCountries, locale string) (provider.PromotionsResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PromoQueries = append(c.PromoQueries, [3]string{country, allowCountries, locale})
	return c.Promotions, c.PromotionsErr
}

func (c *Client) ProductForSlug(_ context.Context, slug, _ string) (provider.ResolvedOffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ProductSlugs = append(c.ProductSlugs, slug)
	if err := c.DetailErrs[slug]; err != nil {
		return provider.ResolvedOffer{}, err
	}
	return c.lookup(c.Products, slug)
}

func (c *Client) BundleForSlug(_ context.Context, slug, _ string) (provider.ResolvedOffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BundleSlugs = append(c.BundleSlugs, slug)
	if err := c.DetailErrs[slug]; err != nil {
		return provider.ResolvedOffer{}, err
	}
	return c.lookup(c.Bundles, slug)
}

func (c *Client) lookup(m map[string]provider.ResolvedOffer, slug string) (provider.ResolvedOffer, error) {
	r, ok := m[slug]
	if !ok {
		return provider.ResolvedOffer{}, fmt.Errorf("unknown slug %q", slug)
	}
	return r, nil
}

func (c *Client) Account() provider.AccountInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Info
}

func (c *Client) Jar() provider.CookieJar {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CookieJar == nil {
		c.CookieJar = NewJar()
	}
	return c.CookieJar
}

// Provider hands out the Client registered for an account's email.
type Provider struct {
	mu      sync.Mutex
	Clients map[string]*Client
	Err     error
	Created []model.Account
}

func (p *Provider) Name() string { return "fake" }

func (p *Provider) NewClient(account model.Account) (provider.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Created = append(p.Created, account)
	if p.Err != nil {
		return nil, p.Err
	}
	c, ok := p.Clients[account.Email]
	if !ok {
		return nil, fmt.Errorf("no client for %s", account.Email)
	}
	return c, nil
}

type Login struct {
	Code       string
	CodeErr    error
	Cookies    []model.BrowserCookie
	CookiesErr error
	OnClose    func()
	Closed     int
}

func (l *Login) ExchangeCode(context.Context) (string, error) {
	return l.Code, l.CodeErr
}

func (l *Login) PageCookies(context.Context) ([]model.BrowserCookie, error) {
	return l.Cookies, l.CookiesErr
}

func (l *Login) Close() error {
	l.Closed++
	if l.OnClose != nil {
		l.OnClose()
	}
	return nil
}

type Adapter struct {
	Login    *Login
	BeginErr error

	Accounts []model.Account
	Options  []model.LoginOptions
}

func (a *Adapter) Begin(_ context.Context, account model.Account, opts model.LoginOptions) (provider.InteractiveLogin, error) {
	a.Accounts = append(a.Accounts, account)
	a.Options = append(a.Options, opts)
	if a.BeginErr != nil {
		return nil, a.BeginErr
	}
	return a.Login, nil
}
