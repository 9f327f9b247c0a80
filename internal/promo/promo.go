// Package promo discovers the offers that are currently free to claim.
package promo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"freebies_claimer/internal/logbus"
	"freebies_claimer/internal/model"
	"freebies_claimer/internal/provider"
)

var ErrResolution = errors.New("promotion resolution failed")

// ResolutionError is returned when the catalog itself could not be fetched.
type ResolutionError struct {
	Query Query
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("fetch promotions (%s/%s): %v", e.Query.Country, e.Query.Locale, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

type Query struct {
	Country        string
	AllowCountries string
	Locale         string
}

type Resolver struct {
	// Concurrency caps parallel product/bundle lookups.
	Concurrency int
	Bus         *logbus.Bus
}

func NewResolver(concurrency int, bus *logbus.Bus) *Resolver {
	return &Resolver{Concurrency: concurrency, Bus: bus}
}

// Resolve returns the free offers of the catalog in catalog order. Candidates
// whose detail lookup fails are dropped.
func (r *Resolver) Resolve(ctx context.Context, catalog provider.Catalog, q Query) ([]model.PromotionOffer, error) {
	resp, err := catalog.FreeGamesPromotions(ctx, q.Country, q.AllowCountries, q.Locale)
	if err != nil {
		return nil, &ResolutionError{Query: q, Err: err}
	}

	candidates := FreeCandidates(resp.Elements())
	if len(candidates) == 0 {
		return nil, nil
	}

	limit := r.Concurrency
	if limit <= 0 {
		limit = 4
	}
	sem := make(chan struct{}, limit)
	results := make([]*model.PromotionOffer, len(candidates))
	var wg sync.WaitGroup
	for i, el := range candidates {
		wg.Add(1)
		go func(i int, el provider.CatalogElement) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			offer, err := r.resolveOne(ctx, catalog, el, q.Locale)
			if err != nil {
				r.Bus.Debug("offer resolution dropped", map[string]any{
					"title": el.Title,
					"slug":  el.ProductSlug,
					"error": err.Error(),
				})
				return
			}
			results[i] = &offer
		}(i, el)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]model.PromotionOffer, 0, len(results))
	for _, o := range results {
		if o != nil {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *Resolver) resolveOne(ctx context.Context, catalog provider.Catalog, el provider.CatalogElement, locale string) (model.PromotionOffer, error) {
	var (
		res provider.ResolvedOffer
		err error
	)
	if IsBundle(el) {
		res, err = catalog.BundleForSlug(ctx, el.ProductSlug, locale)
	} else {
		res, err = catalog.ProductForSlug(ctx, el.ProductSlug, locale)
	}
	if err != nil {
		return model.PromotionOffer{}, err
	}
	if res.Failed() {
		return model.PromotionOffer{}, errors.New(res.Error)
	}
	return Project(res)
}

// FreeCandidates keeps elements whose first active promotion window has an
// entry with a discount percentage of exactly 0 (100% off). Entries without a
// percentage never count.
func FreeCandidates(elements []provider.CatalogElement) []provider.CatalogElement {
	var out []provider.CatalogElement
	for _, el := range elements {
		if isFree(el) {
			out = append(out, el)
		}
	}
	return out
}

func isFree(el provider.CatalogElement) bool {
	if el.Promotions == nil || len(el.Promotions.PromotionalOffers) == 0 {
		return false
	}
	for _, o := range el.Promotions.PromotionalOffers[0].PromotionalOffers {
		if pct, ok := o.Percentage(); ok && pct == 0 {
			return true
		}
	}
	return false
}

func IsBundle(el provider.CatalogElement) bool {
	for _, c := range el.Categories {
		if c.Path == "bundles" {
			return true
		}
	}
	return false
}

// Project maps a resolved product or bundle onto the offer that gets purchased.
func Project(res provider.ResolvedOffer) (model.PromotionOffer, error) {
	title := res.ProductName
	if title == "" {
		title = res.Title
	}
	var ref provider.OfferRef
	switch d := res.Detail.(type) {
	case provider.Paginated:
		if len(d.Pages) == 0 {
			return model.PromotionOffer{}, errors.New("bundle has no pages")
		}
		ref = d.Pages[0].Offer
	case provider.Direct:
		ref = d.Offer
	default:
		return model.PromotionOffer{}, errors.New("offer detail missing")
	}
	return model.PromotionOffer{Title: title, ID: ref.ID, Namespace: ref.Namespace}, nil
}
