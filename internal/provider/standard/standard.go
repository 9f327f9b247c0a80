package standard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"freebies_claimer/internal/config"
	"freebies_claimer/internal/logbus"
	"freebies_claimer/internal/model"
	"freebies_claimer/internal/provider"
	"freebies_claimer/internal/utils"
)

// StandardProvider talks to a storefront gateway exposing a small JSON API
// (see cmd/mock for a local implementation).
type StandardProvider struct {
	cfg      config.ProviderConfig
	proxyCfg config.ProxyConfig
	bus      *logbus.Bus
	limiter  *rate.Limiter
}

func New(cfg config.ProviderConfig, proxyCfg config.ProxyConfig, limits config.LimitsConfig, bus *logbus.Bus) *StandardProvider {
	qps := limits.GlobalQPS
	if qps <= 0 {
		qps = 5
	}
	burst := limits.GlobalBurst
	if burst <= 0 {
		burst = 10
	}
	return &StandardProvider{
		cfg:      cfg,
		proxyCfg: proxyCfg,
		bus:      bus,
		limiter:  rate.NewLimiter(rate.Limit(qps), burst),
	}
}

func (p *StandardProvider) Name() string { return "standard" }

type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("storefront: %s (status %d)", e.Message, e.Status)
	}
	return "storefront: " + e.Message
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data"`
}

func (e apiEnvelope) message() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

type loginData struct {
	Account provider.AccountInfo `json:"account"`
}

type exchangeReq struct {
	ExchangeCode string `json:"exchangeCode"`
}

type purchaseReq struct {
	Namespace string `json:"namespace"`
	OfferID   string `json:"offerId"`
	Quantity  int    `json:"quantity"`
}

type purchaseData struct {
	OrderID      any  `json:"orderId"`
	AlreadyOwned bool `json:"alreadyOwned"`
}

type Client struct {
	p    *StandardProvider
	http *resty.Client
	jar  *memoryJar

	mu      sync.Mutex
	account provider.AccountInfo
}

func (p *StandardProvider) NewClient(account model.Account) (provider.Client, error) {
	if _, err := url.Parse(p.cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("provider baseURL: %w", err)
	}
	jar := newMemoryJar()

	client := resty.New().
		SetBaseURL(p.cfg.BaseURL).
		SetTimeout(p.cfg.Timeout()).
		SetCookieJar(jar).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", utils.NormalizeDesktopUserAgent(p.cfg.UserAgent)).
		SetRetryCount(p.cfg.Retry.Count).
		SetRetryWaitTime(p.cfg.Retry.Wait()).
		SetRetryMaxWaitTime(p.cfg.Retry.MaxWait()).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			if r == nil {
				return true
			}
			return r.StatusCode() >= 500
		})
	if p.proxyCfg.Global != "" {
		client.SetProxy(p.proxyCfg.Global)
	}

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if err := p.limiter.Wait(req.Context()); err != nil {
			return err
		}
		p.bus.Debug("http request", map[string]any{
			"method":  req.Method,
			"url":     req.URL,
			"account": account.Email,
		})
		return nil
	})

	return &Client{p: p, http: client, jar: jar}, nil
}

func (c *Client) Init(ctx context.Context) error {
	return c.call(ctx, "GET", "/init", nil, nil, nil)
}

func (c *Client) Login(ctx context.Context, creds provider.Credentials) (bool, error) {
	return c.login(ctx, "/login", creds)
}

func (c *Client) LoginWithExchangeCode(ctx context.Context, code string) (bool, error) {
	if code == "" {
		return false, errors.New("exchange code is empty")
	}
	return c.login(ctx, "/login/exchange", exchangeReq{ExchangeCode: code})
}

func (c *Client) login(ctx context.Context, path string, body any) (bool, error) {
	var data loginData
	if err := c.call(ctx, "POST", path, body, nil, &data); err != nil {
		return false, err
	}
	if data.Account.ID == "" {
		return false, nil
	}
	c.mu.Lock()
	c.account = data.Account
	c.mu.Unlock()
	return true, nil
}

func (c *Client) Logout(ctx context.Context) error {
	err := c.call(ctx, "POST", "/logout", nil, nil, nil)
	c.mu.Lock()
	c.account = provider.AccountInfo{}
	c.mu.Unlock()
	return err
}

func (c *Client) Purchase(ctx context.Context, offer model.PromotionOffer, quantity int) (provider.PurchaseResult, error) {
	if quantity <= 0 {
		quantity = 1
	}
	var data purchaseData
	err := c.call(ctx, "POST", "/purchase", purchaseReq{
		Namespace: offer.Namespace,
		OfferID:   offer.ID,
		Quantity:  quantity,
	}, nil, &data)
	if err != nil {
		return provider.PurchaseResult{}, err
	}
	if data.AlreadyOwned || data.OrderID == nil {
		return provider.PurchaseResult{}, nil
	}
	return provider.PurchaseResult{Claimed: true, OrderID: fmt.Sprint(data.OrderID)}, nil
}

func (c *Client) FreeGamesPromotions(ctx context.Context, country, allowCountries, locale string) (provider.PromotionsResponse, error) {
	var data provider.PromotionsData
	err := c.call(ctx, "GET", "/promotions", nil, map[string]string{
		"country":        country,
		"allowCountries": allowCountries,
		"locale":         locale,
	}, &data)
	if err != nil {
		return provider.PromotionsResponse{}, err
	}
	return provider.PromotionsResponse{Data: data}, nil
}

func (c *Client) ProductForSlug(ctx context.Context, slug, locale string) (provider.ResolvedOffer, error) {
	return c.offerDetail(ctx, "/products/"+url.PathEscape(slug), locale)
}

func (c *Client) BundleForSlug(ctx context.Context, slug, locale string) (provider.ResolvedOffer, error) {
	return c.offerDetail(ctx, "/bundles/"+url.PathEscape(slug), locale)
}

func (c *Client) offerDetail(ctx context.Context, path, locale string) (provider.ResolvedOffer, error) {
	var raw json.RawMessage
	err := c.call(ctx, "GET", path, nil, map[string]string{"locale": locale}, &raw)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return provider.ResolvedOffer{Error: apiErr.Message}, nil
		}
		return provider.ResolvedOffer{}, err
	}
	return provider.DecodeResolvedOffer(raw)
}

func (c *Client) Account() provider.AccountInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account
}

func (c *Client) Jar() provider.CookieJar {
	return c.jar
}

func (c *Client) call(ctx context.Context, method, path string, body any, query map[string]string, out any) error {
	var env apiEnvelope
	req := c.http.R().
		SetContext(ctx).
		SetResult(&env).
		SetError(&env)
	if body != nil {
		req.SetBody(body)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	res, err := req.Execute(method, path)
	if err != nil {
		return err
	}
	if !env.Success {
		msg := env.message()
		if msg == "" {
			msg = fmt.Sprintf("%s %s failed", method, path)
		}
		return &APIError{Status: res.StatusCode(), Message: msg}
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return nil
}
