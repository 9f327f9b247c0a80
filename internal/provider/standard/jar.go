package standard

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// memoryJar is an http.CookieJar that keeps full cookie attributes so the
// session can be exported to the browser representation. net/http/cookiejar
// only hands back name/value pairs.
type memoryJar struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]*http.Cookie
	order   []string
}

func newMemoryJar() *memoryJar {
	return &memoryJar{
		now:     time.Now,
		entries: make(map[string]*http.Cookie),
	}
}

func jarKey(c *http.Cookie) string {
	return strings.ToLower(c.Domain) + "|" + c.Path + "|" + c.Name
}

func (j *memoryJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	for _, c := range cookies {
		j.SetCookie(c, u)
	}
}

// SetCookie stores c scoped to u. Missing domain/path default to u's host and "/".
func (j *memoryJar) SetCookie(c *http.Cookie, u *url.URL) {
	if c == nil {
		return
	}
	cp := *c
	if cp.Domain == "" && u != nil {
		cp.Domain = u.Hostname()
	}
	if cp.Path == "" {
		cp.Path = "/"
	}
	now := j.now()
	if cp.MaxAge > 0 {
		cp.Expires = now.Add(time.Duration(cp.MaxAge) * time.Second)
		cp.MaxAge = 0
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	key := jarKey(&cp)
	if c.MaxAge < 0 || (!cp.Expires.IsZero() && !cp.Expires.After(now)) {
		if _, ok := j.entries[key]; ok {
			delete(j.entries, key)
			j.removeOrderLocked(key)
		}
		return
	}
	if _, ok := j.entries[key]; !ok {
		j.order = append(j.order, key)
	}
	j.entries[key] = &cp
}

func (j *memoryJar) Cookies(u *url.URL) []*http.Cookie {
	if u == nil {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	path := u.Path
	if path == "" {
		path = "/"
	}
	secure := u.Scheme == "https"
	now := j.now()

	j.mu.Lock()
	defer j.mu.Unlock()
	var out []*http.Cookie
	for _, key := range j.order {
		c := j.entries[key]
		if !c.Expires.IsZero() && !c.Expires.After(now) {
			continue
		}
		if c.Secure && !secure {
			continue
		}
		if !domainMatch(host, c.Domain) || !strings.HasPrefix(path, c.Path) {
			continue
		}
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

// AllCookies returns copies of every unexpired cookie in insertion order.
func (j *memoryJar) AllCookies() []*http.Cookie {
	now := j.now()
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*http.Cookie, 0, len(j.order))
	for _, key := range j.order {
		c := j.entries[key]
		if !c.Expires.IsZero() && !c.Expires.After(now) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out
}

func (j *memoryJar) removeOrderLocked(key string) {
	for idx, k := range j.order {
		if k == key {
			j.order = append(j.order[:idx], j.order[idx+1:]...)
			return
		}
	}
}

func domainMatch(host, domain string) bool {
	d := strings.TrimPrefix(strings.ToLower(domain), ".")
	if d == "" {
		return false
	}
	return host == d || strings.HasSuffix(host, "."+d)
}
