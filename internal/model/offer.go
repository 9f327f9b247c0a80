package model

type PromotionOffer struct {
	Title     string `json:"title"`
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
}

// Key identifies an offer across catalog partitions.
func (o PromotionOffer) Key() string {
	return o.Namespace + ":" + o.ID
}
