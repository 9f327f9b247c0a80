package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"freebies_claimer/internal/config"
)

// corsPolicy answers cross-origin requests for the read-only API. Origins are
// matched exactly, by "*" or by a "scheme://*.domain" pattern.
type corsPolicy struct {
	origins     []string
	credentials bool
}

func newCORSPolicy(cfg config.CorsConfig) corsPolicy {
	p := corsPolicy{credentials: cfg.AllowCredentials}
	for _, o := range cfg.AllowOrigins {
		if o = strings.TrimSpace(o); o != "" {
			p.origins = append(p.origins, strings.ToLower(strings.TrimSuffix(o, "/")))
		}
	}
	return p
}

func (p corsPolicy) allowedOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	lo := strings.ToLower(origin)
	for _, o := range p.origins {
		switch {
		case o == "*":
			if p.credentials {
				// A literal "*" is ignored by browsers for credentialed requests.
				return origin
			}
			return "*"
		case o == lo:
			return origin
		case strings.Contains(o, "://*."):
			scheme, suffix, _ := strings.Cut(o, "://*")
			if strings.HasPrefix(lo, scheme+"://") && strings.HasSuffix(lo, suffix) {
				return origin
			}
		}
	}
	return ""
}

func (p corsPolicy) middleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return p.wrap(next)
	}
}

func (p corsPolicy) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Add("Vary", "Origin")
		if allowed := p.allowedOrigin(r.Header.Get("Origin")); allowed != "" {
			h.Set("Access-Control-Allow-Origin", allowed)
			if p.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			h.Set("Access-Control-Max-Age", "600")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
