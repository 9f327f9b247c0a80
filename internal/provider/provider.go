package provider

import (
	"context"
	"net/http"
	"net/url"

	"freebies_claimer/internal/model"
)

type Credentials struct {
	Email               string `json:"email"`
	Password            string `json:"password"`
	TwoFactorCode       string `json:"twoFactorCode,omitempty"`
	RememberLastSession bool   `json:"rememberLastSession"`
}

func CredentialsFor(acc model.Account) Credentials {
	return Credentials{
		Email:               acc.Email,
		Password:            acc.Password,
		TwoFactorCode:       acc.TwoFactorCode,
		RememberLastSession: acc.RememberLastSession,
	}
}

// AccountInfo is the identity reported by the storefront after login.
type AccountInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Country string `json:"country"`
}

type PurchaseResult struct {
	// Claimed is false when the offer was already owned.
	Claimed bool   `json:"claimed"`
	OrderID string `json:"orderId,omitempty"`
}

// CookieJar is the session cookie jar of a storefront client.
type CookieJar interface {
	http.CookieJar
	AllCookies() []*http.Cookie
	SetCookie(c *http.Cookie, u *url.URL)
}

type Catalog interface {
	FreeGamesPromotions(ctx context.Context, country, allowCountries, locale string) (PromotionsResponse, error)
	ProductForSlug(ctx context.Context, slug, locale string) (ResolvedOffer, error)
	BundleForSlug(ctx context.Context, slug, locale string) (ResolvedOffer, error)
}

// Client is one account's storefront session.
type Client interface {
	Catalog

	Init(ctx context.Context) error
	Login(ctx context.Context, creds Credentials) (bool, error)
	LoginWithExchangeCode(ctx context.Context, code string) (bool, error)
	Logout(ctx context.Context) error
	Purchase(ctx context.Context, offer model.PromotionOffer, quantity int) (PurchaseResult, error)

	Account() AccountInfo
	Jar() CookieJar
}

type Provider interface {
	Name() string
	NewClient(account model.Account) (Client, error)
}

// InteractiveLogin is a running browser-driven login.
type InteractiveLogin interface {
	ExchangeCode(ctx context.Context) (string, error)
	PageCookies(ctx context.Context) ([]model.BrowserCookie, error)
	Close() error
}

type LoginAdapter interface {
	Begin(ctx context.Context, account model.Account, opts model.LoginOptions) (InteractiveLogin, error)
}
