package claimer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freebies_claimer/internal/logbus"
	"freebies_claimer/internal/model"
	"freebies_claimer/internal/promo"
	"freebies_claimer/internal/provider"
	"freebies_claimer/internal/provider/providertest"
	"freebies_claimer/internal/session"
)

type fakeEstablisher struct {
	clients map[string]*providertest.Client
	err     map[string]error
	order   []string
}

func (f *fakeEstablisher) Establish(_ context.Context, acc *model.Account) (provider.Client, error) {
	f.order = append(f.order, acc.Email)
	if err := f.err[acc.Email]; err != nil {
		return nil, err
	}
	return f.clients[acc.Email], nil
}

type memLedger struct {
	mu       sync.Mutex
	runs     []string
	finished []string
	claims   []model.ClaimRecord
}

func (l *memLedger) StartRun(_ context.Context, pass int, _ int, _ time.Time) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := "run-" + string(rune('0'+pass))
	l.runs = append(l.runs, id)
	return id, nil
}

func (l *memLedger) FinishRun(_ context.Context, runID string, _ time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finished = append(l.finished, runID)
	return nil
}

func (l *memLedger) RecordClaim(_ context.Context, c model.ClaimRecord) (model.ClaimRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c.ID = int64(len(l.claims) + 1)
	l.claims = append(l.claims, c)
	return c, nil
}

type recordingNotifier struct {
	summaries []model.RunSummary
}

func (n *recordingNotifier) NotifyRunSummary(_ context.Context, s model.RunSummary) {
	n.summaries = append(n.summaries, s)
}

func freeElement(title, slug string) provider.CatalogElement {
	return provider.CatalogElement{
		Title:       title,
		ProductSlug: slug,
		Promotions: &provider.Promotions{PromotionalOffers: []provider.PromotionWindow{{
			PromotionalOffers: []provider.PromotionalOffer{{DiscountSetting: &provider.DiscountSetting{DiscountPercentage: new(float64)}}},
		}}},
	}
}

func storefront(info provider.AccountInfo, slugs ...string) *providertest.Client {
	c := &providertest.Client{LoginOK: true, Info: info, Products: map[string]provider.ResolvedOffer{}}
	var elements []provider.CatalogElement
	for _, s := range slugs {
		elements = append(elements, freeElement(s, s))
		c.Products[s] = provider.ResolvedOffer{ProductName: s, Detail: provider.Direct{Offer: provider.OfferRef{ID: "id-" + s, Namespace: "ns"}}}
	}
	c.Promotions.Data.Catalog.SearchStore.Elements = elements
	return c
}

func logMessages(b *logbus.Bus) []string {
	var out []string
	for _, m := range b.Snapshot() {
		if d, ok := m.Data.(logbus.LogData); ok {
			out = append(out, d.Msg)
		}
	}
	return out
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestRunPass_PurchaseIsolation(t *testing.T) {
	client := storefront(provider.AccountInfo{ID: "1", Name: "Alice", Country: "DE"}, "one", "two", "three")
	client.PurchaseErrs = map[string]error{"id-one": errors.New("checkout exploded")}
	client.Owned = map[string]bool{"id-two": true}

	bus := logbus.New(500)
	ledger := &memLedger{}
	notifier := &recordingNotifier{}
	r := New(Options{
		Establisher: &fakeEstablisher{clients: map[string]*providertest.Client{"a@example.com": client}},
		Resolver:    promo.NewResolver(2, bus),
		Ledger:      ledger,
		Notifier:    notifier,
		Bus:         bus,
		Locale:      "de-DE",
	})

	summary, err := r.RunPass(context.Background(), []model.Account{{Email: "a@example.com"}})
	require.NoError(t, err)

	require.Len(t, client.Purchases, 3)
	assert.Equal(t, 1, client.Logouts)
	assert.Equal(t, [][3]string{{"DE", "DE", "de-DE"}}, client.PromoQueries)

	require.Len(t, summary.Claims, 3)
	assert.Equal(t, model.ClaimStatusFailed, summary.Claims[0].Status)
	assert.Equal(t, "checkout exploded", summary.Claims[0].Error)
	assert.Equal(t, model.ClaimStatusOwned, summary.Claims[1].Status)
	assert.Equal(t, model.ClaimStatusClaimed, summary.Claims[2].Status)
	assert.Equal(t, "order-id-three-1", summary.Claims[2].OrderID)
	assert.Equal(t, "run-1", summary.RunID)
	assert.Len(t, ledger.claims, 3)
	assert.Equal(t, []string{"run-1"}, ledger.finished)
	require.Len(t, notifier.summaries, 1)

	logs := logMessages(bus)
	assert.Contains(t, logs, "Logged in as Alice (1)")
	assert.Contains(t, logs, "Failed to claim one (checkout exploded)")
	assert.Contains(t, logs, "two was already claimed for this account")
	assert.Contains(t, logs, "Successfully claimed three (order-id-three-1)")
	assert.Contains(t, logs, "Logged Alice out")
}

func TestRunPass_DeduplicatesOffers(t *testing.T) {
	client := storefront(provider.AccountInfo{ID: "1", Name: "A"}, "x")
	client.Promotions.Data.Catalog.SearchStore.Elements = append(client.Promotions.Data.Catalog.SearchStore.Elements, freeElement("x again", "x"))

	r := New(Options{
		Establisher: &fakeEstablisher{clients: map[string]*providertest.Client{"a@example.com": client}},
		Resolver:    promo.NewResolver(1, nil),
	})
	_, err := r.RunPass(context.Background(), []model.Account{{Email: "a@example.com"}})
	require.NoError(t, err)
	assert.Len(t, client.Purchases, 1)
	assert.Equal(t, [][3]string{{"US", "US", "en-US"}}, client.PromoQueries)
}

func TestRunPass_ResolutionErrorIsFatalButLogsOut(t *testing.T) {
	first := storefront(provider.AccountInfo{ID: "1", Name: "A"})
	first.PromotionsErr = errors.New("catalog down")
	second := storefront(provider.AccountInfo{ID: "2", Name: "B"}, "x")
	est := &fakeEstablisher{clients: map[string]*providertest.Client{"a@example.com": first, "b@example.com": second}}

	r := New(Options{Establisher: est, Resolver: promo.NewResolver(1, nil)})
	_, err := r.RunPass(context.Background(), []model.Account{{Email: "a@example.com"}, {Email: "b@example.com"}})
	require.ErrorIs(t, err, promo.ErrResolution)
	assert.Equal(t, 1, first.Logouts)
	assert.Equal(t, []string{"a@example.com"}, est.order)
	assert.Empty(t, second.Purchases)
	assert.False(t, r.State().Running)
	assert.Contains(t, r.State().LastError, "catalog down")
}

func TestRunPass_EstablishErrorIsFatal(t *testing.T) {
	est := &fakeEstablisher{err: map[string]error{"a@example.com": session.ErrAuthentication}}
	r := New(Options{Establisher: est, Resolver: promo.NewResolver(1, nil)})

	err := r.Run(context.Background(), Plan{Accounts: []model.Account{{Email: "a@example.com"}, {Email: "b@example.com"}}, Loop: true})
	assert.ErrorIs(t, err, session.ErrAuthentication)
	assert.Equal(t, []string{"a@example.com"}, est.order)
}

func TestRun_LoopBounded(t *testing.T) {
	a := storefront(provider.AccountInfo{ID: "1", Name: "A"}, "x")
	b := storefront(provider.AccountInfo{ID: "2", Name: "B"}, "y")
	est := &fakeEstablisher{clients: map[string]*providertest.Client{"a@example.com": a, "b@example.com": b}}

	var slept []time.Duration
	bus := logbus.New(500)
	r := New(Options{
		Establisher: est,
		Resolver:    promo.NewResolver(1, nil),
		Bus:         bus,
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	})

	err := r.Run(context.Background(), Plan{
		Accounts:  []model.Account{{Email: "a@example.com"}, {Email: "b@example.com"}},
		Loop:      true,
		Delay:     90 * time.Second,
		MaxPasses: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com", "b@example.com", "a@example.com", "b@example.com", "a@example.com", "b@example.com"}, est.order)
	assert.Equal(t, []time.Duration{90 * time.Second, 90 * time.Second}, slept)
	assert.Equal(t, 3, a.Logouts)
	assert.Equal(t, 3, r.State().Pass)
	assert.Contains(t, logMessages(bus), "Waiting 1.5 minutes")
}

func TestRun_NoLoopSinglePass(t *testing.T) {
	a := storefront(provider.AccountInfo{ID: "1", Name: "A"}, "x")
	est := &fakeEstablisher{clients: map[string]*providertest.Client{"a@example.com": a}}
	r := New(Options{Establisher: est, Resolver: promo.NewResolver(1, nil), Sleep: func(context.Context, time.Duration) error {
		t.Fatal("sleep must not be called")
		return nil
	}})

	require.NoError(t, r.Run(context.Background(), Plan{Accounts: []model.Account{{Email: "a@example.com"}}, Loop: false, Delay: time.Hour}))
	assert.Len(t, a.Purchases, 1)
}

func TestRun_SleepCancelled(t *testing.T) {
	a := storefront(provider.AccountInfo{ID: "1", Name: "A"})
	est := &fakeEstablisher{clients: map[string]*providertest.Client{"a@example.com": a}}
	r := New(Options{Establisher: est, Resolver: promo.NewResolver(1, nil)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, Plan{Accounts: []model.Account{{Email: "a@example.com"}}, Loop: true, Delay: time.Hour})
	}()
	require.Eventually(t, func() bool { return r.State().NextPassMs > 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestEndToEnd_WithSessionEstablisher(t *testing.T) {
	plain := storefront(provider.AccountInfo{ID: "1", Name: "Plain", Country: "FR"}, "a", "b")
	twoFA := storefront(provider.AccountInfo{ID: "2", Name: "Guarded"}, "a")
	p := &providertest.Provider{Clients: map[string]*providertest.Client{"plain@example.com": plain, "2fa@example.com": twoFA}}

	est := session.New(p, &providertest.Adapter{}, nil, model.LoginOptions{}, nil)
	est.OTP = func(secret string, _ time.Time) (string, error) { return "654321", nil }

	r := New(Options{Establisher: est, Resolver: promo.NewResolver(4, nil), Sleep: noSleep})
	accounts := []model.Account{
		{Email: "plain@example.com", Password: "pw"},
		{Email: "2fa@example.com", Password: "pw", Secret: "JBSWY3DPEHPK3PXP"},
	}
	require.NoError(t, r.Run(context.Background(), Plan{Accounts: accounts}))

	assert.Len(t, plain.Purchases, 2)
	assert.Equal(t, 1, plain.Logouts)
	assert.Empty(t, plain.Logins[0].TwoFactorCode)

	assert.Len(t, twoFA.Purchases, 1)
	assert.Equal(t, 1, twoFA.Logouts)
	assert.Equal(t, "654321", twoFA.Logins[0].TwoFactorCode)
	assert.Equal(t, "654321", accounts[1].TwoFactorCode)
}
