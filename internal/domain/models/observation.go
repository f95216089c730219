package models

import "time"

// AssetObservation is a single sentiment/volume/price sample for one asset.
// Sentiment is expected in [-1, 1] but is not enforced.
type AssetObservation struct {
	Symbol    string    `json:"symbol"`
	Chain     string    `json:"chain,omitempty"`
	Sector    string    `json:"sector,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Sentiment float64   `json:"sentiment"`
	Volume    float64   `json:"volume"`
	Price     *float64  `json:"price,omitempty"`
}

// HasPrice reports whether the observation carries a price.
func (o AssetObservation) HasPrice() bool { return o.Price != nil }

// PriceValue returns the price or 0 when absent.
func (o AssetObservation) PriceValue() float64 {
	if o.Price == nil {
		return 0
	}
	return *o.Price
}
