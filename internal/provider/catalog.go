package provider

import (
	"encoding/json"
	"errors"
)

type PromotionsResponse struct {
	Data PromotionsData `json:"data"`
}

type PromotionsData struct {
	Catalog struct {
		SearchStore struct {
			Elements []CatalogElement `json:"elements"`
		} `json:"searchStore"`
	} `json:"Catalog"`
}

func (r PromotionsResponse) Elements() []CatalogElement {
	return r.Data.Catalog.SearchStore.Elements
}

type CatalogElement struct {
	Title       string      `json:"title"`
	ID          string      `json:"id"`
	Namespace   string      `json:"namespace"`
	ProductSlug string      `json:"productSlug"`
	Categories  []Category  `json:"categories"`
	Promotions  *Promotions `json:"promotions"`
}

type Category struct {
	Path string `json:"path"`
}

type Promotions struct {
	PromotionalOffers         []PromotionWindow `json:"promotionalOffers"`
	UpcomingPromotionalOffers []PromotionWindow `json:"upcomingPromotionalOffers"`
}

type PromotionWindow struct {
	PromotionalOffers []PromotionalOffer `json:"promotionalOffers"`
}

type PromotionalOffer struct {
	StartDate       string           `json:"startDate"`
	EndDate         string           `json:"endDate"`
	DiscountSetting *DiscountSetting `json:"discountSetting"`
}

// DiscountSetting is nil-able at both levels: a missing or null percentage
// must not read as 0 (free).
type DiscountSetting struct {
	DiscountType       string   `json:"discountType"`
	DiscountPercentage *float64 `json:"discountPercentage"`
}

// Percentage reports the discount percentage and whether the storefront sent one.
func (o PromotionalOffer) Percentage() (float64, bool) {
	if o.DiscountSetting == nil || o.DiscountSetting.DiscountPercentage == nil {
		return 0, false
	}
	return *o.DiscountSetting.DiscountPercentage, true
}

type OfferRef struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
}

// OfferDetail is either Paginated or Direct.
type OfferDetail interface {
	isOfferDetail()
}

// Paginated is the bundle response shape: the offer sits on the first page.
type Paginated struct {
	Pages []Page
}

type Page struct {
	Offer OfferRef `json:"offer"`
}

// Direct is the product response shape with a top-level offer.
type Direct struct {
	Offer OfferRef
}

func (Paginated) isOfferDetail() {}
func (Direct) isOfferDetail()    {}

// ResolvedOffer is the product or bundle detail for one slug.
type ResolvedOffer struct {
	ProductName string
	// Title is the bundle title (bundles have no product name).
	Title  string
	Error  string
	Detail OfferDetail
}

func (r ResolvedOffer) Failed() bool {
	return r.Error != ""
}

// DecodeResolvedOffer maps a raw product/bundle document onto ResolvedOffer,
// choosing Paginated when the document has a "pages" array.
func DecodeResolvedOffer(raw []byte) (ResolvedOffer, error) {
	var doc struct {
		ProductName string          `json:"productName"`
		Title       string          `json:"_title"`
		Error       json.RawMessage `json:"error"`
		Pages       *[]Page         `json:"pages"`
		Offer       *OfferRef       `json:"offer"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ResolvedOffer{}, err
	}
	out := ResolvedOffer{ProductName: doc.ProductName, Title: doc.Title}
	if msg := errorMarker(doc.Error); msg != "" {
		out.Error = msg
		return out, nil
	}
	switch {
	case doc.Pages != nil:
		out.Detail = Paginated{Pages: *doc.Pages}
	case doc.Offer != nil:
		out.Detail = Direct{Offer: *doc.Offer}
	default:
		return out, errors.New("offer detail has neither pages nor offer")
	}
	return out, nil
}

func errorMarker(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "false" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
