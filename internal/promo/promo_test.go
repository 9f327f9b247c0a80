package promo

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freebies_claimer/internal/model"
	"freebies_claimer/internal/provider"
	"freebies_claimer/internal/provider/providertest"
)

func element(title, slug string, pct float64, categories ...string) provider.CatalogElement {
	el := provider.CatalogElement{Title: title, ProductSlug: slug}
	for _, c := range categories {
		el.Categories = append(el.Categories, provider.Category{Path: c})
	}
	if pct >= 0 {
		el.Promotions = &provider.Promotions{PromotionalOffers: []provider.PromotionWindow{{
			PromotionalOffers: []provider.PromotionalOffer{{DiscountSetting: &provider.DiscountSetting{DiscountType: "PERCENTAGE", DiscountPercentage: &pct}}},
		}}}
	}
	return el
}

func catalogOf(elements ...provider.CatalogElement) provider.PromotionsResponse {
	var resp provider.PromotionsResponse
	resp.Data.Catalog.SearchStore.Elements = elements
	return resp
}

func direct(name, id, ns string) provider.ResolvedOffer {
	return provider.ResolvedOffer{ProductName: name, Detail: provider.Direct{Offer: provider.OfferRef{ID: id, Namespace: ns}}}
}

func TestFreeCandidates(t *testing.T) {
	a := element("A", "a", 0)
	b := element("B", "b", 50)
	c := element("C", "c", -1)
	empty := provider.CatalogElement{Title: "D", Promotions: &provider.Promotions{}}

	got := FreeCandidates([]provider.CatalogElement{a, b, c, empty})
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Title)
}

func TestFreeCandidates_RequiresExplicitZeroPercentage(t *testing.T) {
	var elements []provider.CatalogElement
	require.NoError(t, json.Unmarshal([]byte(`[
		{"title":"NoSetting","promotions":{"promotionalOffers":[{"promotionalOffers":[{"startDate":"x"}]}]}},
		{"title":"NullSetting","promotions":{"promotionalOffers":[{"promotionalOffers":[{"discountSetting":null}]}]}},
		{"title":"NullPct","promotions":{"promotionalOffers":[{"promotionalOffers":[{"discountSetting":{"discountPercentage":null}}]}]}},
		{"title":"Free","promotions":{"promotionalOffers":[{"promotionalOffers":[{"discountSetting":{"discountType":"PERCENTAGE","discountPercentage":0}}]}]}}
	]`), &elements))

	got := FreeCandidates(elements)
	require.Len(t, got, 1)
	assert.Equal(t, "Free", got[0].Title)
}

func TestResolve_RoutesBundles(t *testing.T) {
	client := &providertest.Client{
		Promotions: catalogOf(element("Game", "game", 0, "games"), element("Pack", "pack", 0, "bundles", "games")),
		Products:   map[string]provider.ResolvedOffer{"game": direct("Game", "g1", "ng")},
		Bundles: map[string]provider.ResolvedOffer{"pack": {
			Title:  "Pack Bundle",
			Detail: provider.Paginated{Pages: []provider.Page{{Offer: provider.OfferRef{ID: "b1", Namespace: "nb"}}}},
		}},
	}

	got, err := NewResolver(2, nil).Resolve(context.Background(), client, Query{Country: "US", AllowCountries: "US", Locale: "en-US"})
	require.NoError(t, err)
	assert.Equal(t, []model.PromotionOffer{
		{Title: "Game", ID: "g1", Namespace: "ng"},
		{Title: "Pack Bundle", ID: "b1", Namespace: "nb"},
	}, got)
	assert.Equal(t, []string{"game"}, client.ProductSlugs)
	assert.Equal(t, []string{"pack"}, client.BundleSlugs)
	assert.Equal(t, [][3]string{{"US", "US", "en-US"}}, client.PromoQueries)
}

func TestResolve_DropsFailuresKeepsOrder(t *testing.T) {
	for name, second := range map[string]func(c *providertest.Client){
		"error":  func(c *providertest.Client) { c.DetailErrs = map[string]error{"two": errors.New("503")} },
		"marker": func(c *providertest.Client) { c.Products["two"] = provider.ResolvedOffer{Error: "not found"} },
	} {
		t.Run(name, func(t *testing.T) {
			client := &providertest.Client{
				Promotions: catalogOf(element("One", "one", 0), element("Two", "two", 0), element("Three", "three", 0)),
				Products: map[string]provider.ResolvedOffer{
					"one":   direct("One", "1", "n"),
					"two":   direct("Two", "2", "n"),
					"three": direct("Three", "3", "n"),
				},
			}
			second(client)

			got, err := NewResolver(3, nil).Resolve(context.Background(), client, Query{Locale: "en-US"})
			require.NoError(t, err)
			assert.Equal(t, []model.PromotionOffer{
				{Title: "One", ID: "1", Namespace: "n"},
				{Title: "Three", ID: "3", Namespace: "n"},
			}, got)
			assert.Len(t, client.ProductSlugs, 3)
		})
	}
}

func TestResolve_KeepsDuplicates(t *testing.T) {
	client := &providertest.Client{
		Promotions: catalogOf(element("X", "x", 0), element("X again", "x", 0)),
		Products:   map[string]provider.ResolvedOffer{"x": direct("X", "1", "n")},
	}
	got, err := NewResolver(1, nil).Resolve(context.Background(), client, Query{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestResolve_CatalogErrorPropagates(t *testing.T) {
	cause := errors.New("connection reset")
	client := &providertest.Client{PromotionsErr: cause}

	_, err := NewResolver(0, nil).Resolve(context.Background(), client, Query{Country: "DE"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResolution)
	assert.ErrorIs(t, err, cause)
	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "DE", re.Query.Country)
}

func TestProject(t *testing.T) {
	o, err := Project(provider.ResolvedOffer{ProductName: "P", Title: "ignored", Detail: provider.Direct{Offer: provider.OfferRef{ID: "i", Namespace: "n"}}})
	require.NoError(t, err)
	assert.Equal(t, model.PromotionOffer{Title: "P", ID: "i", Namespace: "n"}, o)

	_, err = Project(provider.ResolvedOffer{Title: "B", Detail: provider.Paginated{}})
	assert.Error(t, err)

	_, err = Project(provider.ResolvedOffer{Title: "B"})
	assert.Error(t, err)
}
