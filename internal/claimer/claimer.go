// Package claimer walks every configured account through login, offer
// discovery, purchase and logout, optionally repeating after a delay.
package claimer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"freebies_claimer/internal/logbus"
	"freebies_claimer/internal/model"
	"freebies_claimer/internal/notify"
	"freebies_claimer/internal/promo"
	"freebies_claimer/internal/provider"
)

const defaultCountry = "US"

type Establisher interface {
	Establish(ctx context.Context, account *model.Account) (provider.Client, error)
}

type OfferResolver interface {
	Resolve(ctx context.Context, catalog provider.Catalog, q promo.Query) ([]model.PromotionOffer, error)
}

// Ledger records passes and purchase outcomes. *sqlite.Store implements it.
type Ledger interface {
	StartRun(ctx context.Context, pass int, accounts int, startedAt time.Time) (string, error)
	FinishRun(ctx context.Context, runID string, finishedAt time.Time) error
	RecordClaim(ctx context.Context, c model.ClaimRecord) (model.ClaimRecord, error)
}

type Options struct {
	Establisher Establisher
	Resolver    OfferResolver
	Ledger      Ledger
	Notifier    notify.Notifier
	Bus         *logbus.Bus
	Locale      string

	// Sleep waits between passes; tests swap it for a no-op.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

type Plan struct {
	Accounts []model.Account
	Loop     bool
	Delay    time.Duration
	// MaxPasses > 0 stops a looping plan after that many passes.
	MaxPasses int
}

type Runner struct {
	establisher Establisher
	resolver    OfferResolver
	ledger      Ledger
	notifier    notify.Notifier
	bus         *logbus.Bus
	locale      string
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time

	mu    sync.Mutex
	state model.RunnerState
}

func New(opts Options) *Runner {
	r := &Runner{
		establisher: opts.Establisher,
		resolver:    opts.Resolver,
		ledger:      opts.Ledger,
		notifier:    opts.Notifier,
		bus:         opts.Bus,
		locale:      opts.Locale,
		sleep:       opts.Sleep,
		now:         opts.Now,
	}
	if r.notifier == nil {
		r.notifier = notify.Nop{}
	}
	if r.locale == "" {
		r.locale = "en-US"
	}
	if r.sleep == nil {
		r.sleep = sleepFor
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

func (r *Runner) State() model.RunnerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Run executes passes until the plan is exhausted, ctx is cancelled or a
// pass fails fatally.
func (r *Runner) Run(ctx context.Context, plan Plan) error {
	for pass := 1; ; pass++ {
		if _, err := r.RunPass(ctx, plan.Accounts); err != nil {
			return err
		}
		if !plan.Loop || (plan.MaxPasses > 0 && pass >= plan.MaxPasses) {
			return nil
		}

		r.bus.Info(fmt.Sprintf("Waiting %s minutes", strconv.FormatFloat(plan.Delay.Minutes(), 'f', -1, 64)), nil)
		r.update(func(st *model.RunnerState) {
			st.NextPassMs = r.now().Add(plan.Delay).UnixMilli()
		})
		if err := r.sleep(ctx, plan.Delay); err != nil {
			return err
		}
	}
}

// RunPass processes every account once, strictly one after another. Account
// entries are updated in place with the generated two-factor code.
func (r *Runner) RunPass(ctx context.Context, accounts []model.Account) (model.RunSummary, error) {
	started := r.now()
	var pass int
	r.update(func(st *model.RunnerState) {
		st.Pass++
		pass = st.Pass
		st.Running = true
		st.LastStartedMs = started.UnixMilli()
		st.NextPassMs = 0
		st.LastError = ""
	})

	runID := r.startRun(ctx, pass, len(accounts), started)
	summary := model.RunSummary{
		RunID:     runID,
		Pass:      pass,
		StartedAt: started,
		Accounts:  len(accounts),
	}

	var passErr error
	for i := range accounts {
		if err := ctx.Err(); err != nil {
			passErr = err
			break
		}
		acc := &accounts[i]
		r.update(func(st *model.RunnerState) { st.CurrentAccount = acc.Email })

		claims, err := r.runAccount(ctx, runID, acc)
		summary.Claims = append(summary.Claims, claims...)
		if err != nil {
			passErr = err
			break
		}
	}

	summary.FinishedAt = r.now()
	if r.ledger != nil {
		if err := r.ledger.FinishRun(context.WithoutCancel(ctx), runID, summary.FinishedAt); err != nil {
			r.bus.Warn("ledger finish run failed", map[string]any{"runId": runID, "error": err.Error()})
		}
	}
	r.update(func(st *model.RunnerState) {
		st.Running = false
		st.CurrentAccount = ""
		st.LastFinishedMs = summary.FinishedAt.UnixMilli()
		if passErr != nil {
			st.LastError = passErr.Error()
		}
	})
	r.notifier.NotifyRunSummary(ctx, summary)
	return summary, passErr
}

func (r *Runner) runAccount(ctx context.Context, runID string, acc *model.Account) (claims []model.ClaimRecord, err error) {
	client, err := r.establisher.Establish(ctx, acc)
	if err != nil {
		return nil, err
	}
	info := client.Account()
	r.bus.Info(fmt.Sprintf("Logged in as %s (%s)", info.Name, info.ID), map[string]any{"email": acc.Email})

	defer func() {
		if lerr := client.Logout(context.WithoutCancel(ctx)); lerr != nil {
			r.bus.Warn("logout failed", map[string]any{"email": acc.Email, "error": lerr.Error()})
			return
		}
		r.bus.Info(fmt.Sprintf("Logged %s out", info.Name), map[string]any{"email": acc.Email})
	}()

	country := info.Country
	if country == "" {
		country = defaultCountry
	}
	offers, err := r.resolver.Resolve(ctx, client, promo.Query{
		Country:        country,
		AllowCountries: country,
		Locale:         r.locale,
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(offers))
	for _, offer := range offers {
		if _, dup := seen[offer.Key()]; dup {
			continue
		}
		seen[offer.Key()] = struct{}{}
		if err := ctx.Err(); err != nil {
			return claims, err
		}
		claims = append(claims, r.claim(ctx, runID, acc.Email, client, offer))
	}
	return claims, nil
}

// claim never fails the account: purchase errors end up in the record.
func (r *Runner) claim(ctx context.Context, runID, email string, client provider.Client, offer model.PromotionOffer) model.ClaimRecord {
	rec := model.ClaimRecord{
		RunID:     runID,
		Email:     email,
		Title:     offer.Title,
		OfferID:   offer.ID,
		Namespace: offer.Namespace,
	}
	fields := map[string]any{"email": email, "offerId": offer.ID, "namespace": offer.Namespace}

	res, err := client.Purchase(ctx, offer, 1)
	switch {
	case err != nil:
		rec.Status = model.ClaimStatusFailed
		rec.Error = err.Error()
		r.bus.Warn(fmt.Sprintf("Failed to claim %s (%s)", offer.Title, err), fields)
	case !res.Claimed:
		rec.Status = model.ClaimStatusOwned
		r.bus.Info(fmt.Sprintf("%s was already claimed for this account", offer.Title), fields)
	default:
		rec.Status = model.ClaimStatusClaimed
		rec.OrderID = res.OrderID
		r.bus.Info(fmt.Sprintf("Successfully claimed %s (%s)", offer.Title, res.OrderID), fields)
	}
	rec.At = r.now()

	if r.ledger != nil {
		stored, lerr := r.ledger.RecordClaim(context.WithoutCancel(ctx), rec)
		if lerr != nil {
			r.bus.Warn("ledger record claim failed", map[string]any{"runId": runID, "error": lerr.Error()})
		} else {
			rec = stored
		}
	}
	r.bus.Publish(logbus.TypeClaim, rec)
	return rec
}

func (r *Runner) startRun(ctx context.Context, pass, accounts int, started time.Time) string {
	if r.ledger != nil {
		id, err := r.ledger.StartRun(ctx, pass, accounts, started)
		if err == nil {
			r.update(func(st *model.RunnerState) { st.RunID = id })
			return id
		}
		r.bus.Warn("ledger start run failed", map[string]any{"pass": pass, "error": err.Error()})
	}
	id := uuid.NewString()
	r.update(func(st *model.RunnerState) { st.RunID = id })
	return id
}

func (r *Runner) update(fn func(st *model.RunnerState)) {
	r.mu.Lock()
	fn(&r.state)
	st := r.state
	r.mu.Unlock()
	r.bus.Publish(logbus.TypeRunState, st)
}

func sleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
