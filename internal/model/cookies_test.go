package model

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrowserCookieFromJar_ConcreteExpiry(t *testing.T) {
	exp := time.Date(2031, 5, 4, 3, 2, 1, 500_000_000, time.UTC)
	jar := &http.Cookie{
		Name:     "EPIC_SESSION_AP",
		Value:    "abc",
		Domain:   ".epicgames.com",
		Path:     "/",
		Expires:  exp,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	bc := BrowserCookieFromJar(jar)
	assert.Equal(t, "EPIC_SESSION_AP", bc.Name)
	assert.Equal(t, "abc", bc.Value)
	assert.Equal(t, ".epicgames.com", bc.Domain)
	assert.Equal(t, "/", bc.Path)
	assert.InDelta(t, float64(exp.Unix())+0.5, bc.Expires, 1e-3)
	assert.False(t, bc.Session)
	assert.True(t, bc.Secure)
	assert.True(t, bc.HTTPOnly)
	assert.Equal(t, "Lax", bc.SameSite)

	// input untouched
	assert.Equal(t, exp, jar.Expires)
}

func TestCookieRoundTrip_JarFirst(t *testing.T) {
	exp := time.Unix(1_900_000_000, 250_000_000)
	in := &http.Cookie{Name: "a", Value: "1", Domain: "store.example.com", Path: "/p", Expires: exp}

	out := JarCookieFromBrowser(BrowserCookieFromJar(in))
	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.Value, out.Value)
	assert.Equal(t, in.Domain, out.Domain)
	assert.Equal(t, in.Path, out.Path)
	assert.WithinDuration(t, exp, out.Expires, time.Microsecond)
}

func TestCookieRoundTrip_BrowserFirst(t *testing.T) {
	in := BrowserCookie{Name: "b", Value: "2", Domain: ".example.com", Path: "/", Expires: 1_800_000_000.75}

	out := BrowserCookieFromJar(JarCookieFromBrowser(in))
	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.Value, out.Value)
	assert.Equal(t, in.Domain, out.Domain)
	assert.Equal(t, in.Path, out.Path)
	assert.InDelta(t, in.Expires, out.Expires, 1e-6)
}

func TestSessionCookieHasNoExpiryBothWays(t *testing.T) {
	bc := BrowserCookieFromJar(&http.Cookie{Name: "s", Value: "v"})
	assert.True(t, bc.Session)
	assert.Zero(t, bc.Expires)

	for _, c := range []BrowserCookie{
		{Name: "s", Value: "v"},
		{Name: "s", Value: "v", Expires: -1},
		{Name: "s", Value: "v", Expires: 1_800_000_000, Session: true},
	} {
		hc := JarCookieFromBrowser(c)
		assert.True(t, hc.Expires.IsZero(), "cookie %+v must stay a session cookie", c)
	}
}

func TestCookieStoreAppendAccumulates(t *testing.T) {
	var store *CookieStore
	store = store.Append(BrowserCookie{Name: "a"})
	require.NotNil(t, store)
	store.Append(BrowserCookie{Name: "b"}, BrowserCookie{Name: "c"})

	snap := store.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "c", snap[2].Name)

	snap[0].Name = "mutated"
	assert.Equal(t, "a", store.Snapshot()[0].Name)
	assert.Equal(t, 3, store.Len())
}
