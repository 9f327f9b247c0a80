package main

import (
	crand "crypto/rand"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

type mockOffer struct {
	Slug       string
	Title      string
	ID         string
	Namespace  string
	Discount   float64
	Bundle     bool
	Unresolved bool
}

var catalog = []mockOffer{
	{Slug: "lantern-keeper", Title: "Lantern Keeper", ID: "off-lantern", Namespace: "ns-lantern", Discount: 0},
	{Slug: "starfall-pack", Title: "Starfall Pack", ID: "off-starfall", Namespace: "ns-starfall", Discount: 0, Bundle: true},
	{Slug: "half-price-racer", Title: "Half Price Racer", ID: "off-racer", Namespace: "ns-racer", Discount: 50},
	{Slug: "vanished-title", Title: "Vanished Title", ID: "off-vanished", Namespace: "ns-vanished", Discount: 0, Unresolved: true},
}

type mockState struct {
	mu       sync.Mutex
	sessions map[string]string          // sid -> email
	owned    map[string]map[string]bool // email -> offer id
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	st := &mockState{
		sessions: make(map[string]string),
		owned:    make(map[string]map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/mock/health", func(w http.ResponseWriter, _ *http.Request) {
		writeOK(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("/mock/init", func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "mock_csrf", Value: randString(16), Path: "/"})
		writeOK(w, nil)
	})

	// Emails containing "captcha" are refused so the interactive fallback can be tried.
	mux.HandleFunc("/mock/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Email == "" || body.Password == "" || strings.Contains(body.Email, "captcha") {
			writeFail(w, http.StatusUnauthorized, "captcha required")
			return
		}
		st.login(w, body.Email)
	})

	mux.HandleFunc("/mock/login/exchange", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ExchangeCode string `json:"exchangeCode"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		email, ok := strings.CutPrefix(body.ExchangeCode, "mock-")
		if !ok || email == "" {
			writeFail(w, http.StatusUnauthorized, "invalid exchange code")
			return
		}
		st.login(w, email)
	})

	mux.HandleFunc("/mock/logout", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("mock_sid"); err == nil {
			st.mu.Lock()
			delete(st.sessions, c.Value)
			st.mu.Unlock()
		}
		http.SetCookie(w, &http.Cookie{Name: "mock_sid", Path: "/", MaxAge: -1})
		writeOK(w, nil)
	})

	mux.HandleFunc("/mock/promotions", func(w http.ResponseWriter, _ *http.Request) {
		now := time.Now().UTC()
		elements := make([]map[string]any, 0, len(catalog))
		for _, o := range catalog {
			categories := []map[string]any{{"path": "games"}}
			if o.Bundle {
				categories = append(categories, map[string]any{"path": "bundles"})
			}
			elements = append(elements, map[string]any{
				"title":       o.Title,
				"id":          o.ID,
				"namespace":   o.Namespace,
				"productSlug": o.Slug,
				"categories":  categories,
				"promotions": map[string]any{
					"promotionalOffers": []any{map[string]any{
						"promotionalOffers": []any{map[string]any{
							"startDate":       now.Add(-24 * time.Hour).Format(time.RFC3339),
							"endDate":         now.Add(6 * 24 * time.Hour).Format(time.RFC3339),
							"discountSetting": map[string]any{"discountType": "PERCENTAGE", "discountPercentage": o.Discount},
						}},
					}},
				},
			})
		}
		writeOK(w, map[string]any{"Catalog": map[string]any{"searchStore": map[string]any{"elements": elements}}})
	})

	mux.HandleFunc("/mock/products/", func(w http.ResponseWriter, r *http.Request) {
		o, ok := findOffer(strings.TrimPrefix(r.URL.Path, "/mock/products/"))
		if !ok || o.Bundle || o.Unresolved {
			writeOK(w, map[string]any{"error": "product not found"})
			return
		}
		writeOK(w, map[string]any{
			"productName": o.Title,
			"offer":       map[string]any{"id": o.ID, "namespace": o.Namespace},
		})
	})

	mux.HandleFunc("/mock/bundles/", func(w http.ResponseWriter, r *http.Request) {
		o, ok := findOffer(strings.TrimPrefix(r.URL.Path, "/mock/bundles/"))
		if !ok || !o.Bundle {
			writeFail(w, http.StatusNotFound, "bundle not found")
			return
		}
		writeOK(w, map[string]any{
			"_title": o.Title,
			"pages":  []any{map[string]any{"offer": map[string]any{"id": o.ID, "namespace": o.Namespace}}},
		})
	})

	mux.HandleFunc("/mock/purchase", func(w http.ResponseWriter, r *http.Request) {
		email, ok := st.sessionEmail(r)
		if !ok {
			writeFail(w, http.StatusUnauthorized, "not logged in")
			return
		}
		var body struct {
			Namespace string `json:"namespace"`
			OfferID   string `json:"offerId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		st.mu.Lock()
		defer st.mu.Unlock()
		if st.owned[email] == nil {
			st.owned[email] = make(map[string]bool)
		}
		if st.owned[email][body.OfferID] {
			writeOK(w, map[string]any{"alreadyOwned": true})
			return
		}
		st.owned[email][body.OfferID] = true
		writeOK(w, map[string]any{"orderId": "ORD-" + strings.ToUpper(randString(10))})
	})

	// Minimal interactive login used by the browser fallback.
	mux.HandleFunc("/mock/id/login", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(loginPage))
	})
	mux.HandleFunc("/mock/id/api/exchange", func(w http.ResponseWriter, r *http.Request) {
		var email string
		if c, err := r.Cookie("mock_sso"); err == nil {
			email, _ = url.QueryUnescape(c.Value)
		}
		if email == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"errorCode": "not_logged_in"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"code": "mock-" + email})
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("mock storefront listening on %s", *addr)
	log.Fatal(srv.ListenAndServe())
}

const loginPage = `<!doctype html>
<html><body>
<form onsubmit="document.cookie='mock_sso='+encodeURIComponent(this.email.value)+'; path=/'; document.body.textContent='Signed in'; return false;">
<input type="email" name="email" placeholder="email" />
<button type="submit">Sign in</button>
</form>
</body></html>`

func (st *mockState) login(w http.ResponseWriter, email string) {
	sid := randString(24)
	st.mu.Lock()
	st.sessions[sid] = email
	st.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: "mock_sid", Value: sid, Path: "/", HttpOnly: true, Expires: time.Now().Add(8 * time.Hour)})
	name, _, _ := strings.Cut(email, "@")
	writeOK(w, map[string]any{"account": map[string]any{"id": "acc-" + name, "name": name, "country": "US"}})
}

func (st *mockState) sessionEmail(r *http.Request) (string, bool) {
	c, err := r.Cookie("mock_sid")
	if err != nil {
		return "", false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	email, ok := st.sessions[c.Value]
	return email, ok
}

func findOffer(slug string) (mockOffer, bool) {
	for _, o := range catalog {
		if o.Slug == slug {
			return o, true
		}
	}
	return mockOffer{}, false
}

func writeOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeFail(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}

func randString(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	if n <= 0 {
		return ""
	}
	raw := make([]byte, n)
	_, _ = crand.Read(raw)
	out := make([]byte, n)
	for i := range out {
		out[i] = letters[int(raw[i])%len(letters)]
	}
	return string(out)
}
