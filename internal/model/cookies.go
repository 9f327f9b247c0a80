package model

import (
	"math"
	"net/http"
	"strings"
	"time"
)

// BrowserCookie is the cookie shape used by the browser engine: expiry is a
// fractional epoch-seconds value and is absent for session cookies.
type BrowserCookie struct {
	Name     string  `yaml:"name" json:"name"`
	Value    string  `yaml:"value" json:"value"`
	Domain   string  `yaml:"domain,omitempty" json:"domain,omitempty"`
	Path     string  `yaml:"path,omitempty" json:"path,omitempty"`
	Expires  float64 `yaml:"expires,omitempty" json:"expires,omitempty"`
	HTTPOnly bool    `yaml:"httpOnly,omitempty" json:"httpOnly,omitempty"`
	Secure   bool    `yaml:"secure,omitempty" json:"secure,omitempty"`
	SameSite string  `yaml:"sameSite,omitempty" json:"sameSite,omitempty"`
	Session  bool    `yaml:"session,omitempty" json:"session,omitempty"`
}

// HasExpiry reports whether the cookie carries a concrete expiry. CDP reports
// -1 for session cookies, so anything non-positive counts as "no expiry".
func (c BrowserCookie) HasExpiry() bool {
	return !c.Session && c.Expires > 0 && !math.IsInf(c.Expires, 0) && !math.IsNaN(c.Expires)
}

// BrowserCookieFromJar converts a jar cookie into the browser representation.
func BrowserCookieFromJar(c *http.Cookie) BrowserCookie {
	if c == nil {
		return BrowserCookie{}
	}
	out := BrowserCookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		HTTPOnly: c.HttpOnly,
		Secure:   c.Secure,
		SameSite: sameSiteToString(c.SameSite),
	}
	if c.Expires.IsZero() {
		out.Session = true
	} else {
		out.Expires = float64(c.Expires.UnixNano()) / float64(time.Second)
	}
	return out
}

// JarCookieFromBrowser converts a browser cookie into the jar representation.
// A cookie without expiry yields a zero Expires, never the Unix epoch.
func JarCookieFromBrowser(c BrowserCookie) *http.Cookie {
	hc := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		HttpOnly: c.HTTPOnly,
		Secure:   c.Secure,
		SameSite: sameSiteFromString(c.SameSite),
	}
	if c.HasExpiry() {
		sec, frac := math.Modf(c.Expires)
		hc.Expires = time.Unix(int64(sec), int64(math.Round(frac*float64(time.Second))))
	}
	return hc
}

func BrowserCookiesFromJar(in []*http.Cookie) []BrowserCookie {
	out := make([]BrowserCookie, 0, len(in))
	for _, c := range in {
		if c == nil {
			continue
		}
		out = append(out, BrowserCookieFromJar(c))
	}
	return out
}

// CookieStore is the run-wide cookie list handed to every fallback login.
// Cookies appended while serving one account stay visible to later accounts.
type CookieStore struct {
	cookies []BrowserCookie
}

func NewCookieStore(initial []BrowserCookie) *CookieStore {
	s := &CookieStore{}
	return s.Append(initial...)
}

// Append adds cookies to the store and returns it.
func (s *CookieStore) Append(cookies ...BrowserCookie) *CookieStore {
	if s == nil {
		s = &CookieStore{}
	}
	if s.cookies == nil {
		s.cookies = make([]BrowserCookie, 0, len(cookies))
	}
	s.cookies = append(s.cookies, cookies...)
	return s
}

func (s *CookieStore) Snapshot() []BrowserCookie {
	if s == nil {
		return nil
	}
	out := make([]BrowserCookie, len(s.cookies))
	copy(out, s.cookies)
	return out
}

func (s *CookieStore) Len() int {
	if s == nil {
		return 0
	}
	return len(s.cookies)
}

func sameSiteToString(s http.SameSite) string {
	switch s {
	case http.SameSiteLaxMode:
		return "Lax"
	case http.SameSiteStrictMode:
		return "Strict"
	case http.SameSiteNoneMode:
		return "None"
	default:
		return ""
	}
}

func sameSiteFromString(s string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lax":
		return http.SameSiteLaxMode
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}
