package models

import (
	"time"

	xutil "ContagionRadar/pkg/util"
)

// Requests for the contagion HTTP API.

type ObservationRequest struct {
	Symbol    string   `json:"symbol" validate:"required,max=64"`
	Chain     string   `json:"chain" validate:"max=64"`
	Sector    string   `json:"sector" validate:"max=64"`
	Timestamp string   `json:"timestamp"`
	Sentiment float64  `json:"sentiment" validate:"gte=-1,lte=1"`
	Volume    float64  `json:"volume" validate:"gte=0"`
	Price     *float64 `json:"price" validate:"omitempty,gte=0"`
}

// ToObservation converts the request, falling back to now when the timestamp is missing or invalid.
func (r ObservationRequest) ToObservation(now time.Time) AssetObservation {
	return AssetObservation{
		Symbol:    r.Symbol,
		Chain:     r.Chain,
		Sector:    r.Sector,
		Timestamp: xutil.ParseTimeDefault(r.Timestamp, now),
		Sentiment: r.Sentiment,
		Volume:    r.Volume,
		Price:     r.Price,
	}
}

type ContagionHistoryRequest struct {
	Limit int `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=100"`
}

type CorrelationsRequest struct {
	Asset string `query:"asset" json:"asset" validate:"required"`
}

type RelationshipRequest struct {
	A string `query:"a" json:"a" validate:"required"`
	B string `query:"b" json:"b" validate:"required,nefield=A"`
}

type ChainMetricsRequest struct {
	Chain string `query:"chain" json:"chain"`
}

type RotationsRequest struct {
	Limit int `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=20"`
}

type AssetHistoryRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
}

type ObservationBatchRequest struct {
	Observations []ObservationRequest `json:"observations" validate:"required,min=1,max=500,dive"`
}

type LatestSignalRequest struct {
	Origin string `query:"origin" json:"origin"`
}

type DeadLettersRequest struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}

type RedriveRequest struct {
	Limit int `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}
