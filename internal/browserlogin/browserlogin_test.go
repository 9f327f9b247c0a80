package browserlogin

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freebies_claimer/internal/model"
)

func TestCookieParamFromBrowser(t *testing.T) {
	p := cookieParamFromBrowser(model.BrowserCookie{
		Name: "EPIC_SSO", Value: "v", Domain: ".example.com", Path: "/",
		Expires: 1800000000.5, Secure: true, HTTPOnly: true, SameSite: "Lax",
	}, "https://login.example.com/")
	assert.Equal(t, "", p.URL)
	assert.Equal(t, proto.TimeSinceEpoch(1800000000.5), p.Expires)
	assert.Equal(t, proto.NetworkCookieSameSiteLax, p.SameSite)

	session := cookieParamFromBrowser(model.BrowserCookie{Name: "s", Value: "1", Expires: -1}, "https://login.example.com/")
	assert.Equal(t, "https://login.example.com/", session.URL)
	assert.Zero(t, session.Expires)
}

func TestCookieParams_SkipsUnnamed(t *testing.T) {
	params := cookieParams([]model.BrowserCookie{{Value: "x"}, {Name: "a", Value: "b", Domain: "d"}}, "")
	require.Len(t, params, 1)
	assert.Equal(t, "a", params[0].Name)
}

func TestBrowserCookieFromProto(t *testing.T) {
	c := browserCookieFromProto(&proto.NetworkCookie{
		Name: "sid", Value: "1", Domain: "store.example.com", Path: "/",
		Expires: -1, Session: true, SameSite: proto.NetworkCookieSameSiteNone,
	})
	assert.True(t, c.Session)
	assert.False(t, c.HasExpiry())
	assert.Equal(t, "None", c.SameSite)

	jar := model.JarCookieFromBrowser(c)
	assert.True(t, jar.Expires.IsZero())

	persistent := browserCookieFromProto(&proto.NetworkCookie{Name: "p", Value: "2", Expires: 1800000000})
	assert.True(t, persistent.HasExpiry())
	assert.Equal(t, int64(1800000000), model.JarCookieFromBrowser(persistent).Expires.Unix())
}
