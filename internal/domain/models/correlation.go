package models

import "time"

// SignalKind names the relationship that best explains a correlation edge.
type SignalKind string

const (
	SignalPrice      SignalKind = "price"
	SignalSentiment  SignalKind = "sentiment"
	SignalVolume     SignalKind = "volume"
	SignalCrossChain SignalKind = "cross_chain"
	SignalSector     SignalKind = "sector"
)

// Strength buckets |correlation|.
type Strength string

const (
	StrengthStrong   Strength = "strong"
	StrengthModerate Strength = "moderate"
	StrengthWeak     Strength = "weak"
)

// ClassifyStrength maps a correlation to strong (>0.8), moderate (>0.6) or weak.
func ClassifyStrength(corr float64) Strength {
	if corr < 0 {
		corr = -corr
	}
	switch {
	case corr > 0.8:
		return StrengthStrong
	case corr > 0.6:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}

// CorrelationEdge links two assets. AssetA < AssetB lexicographically.
type CorrelationEdge struct {
	AssetA         string     `json:"asset_a"`
	AssetB         string     `json:"asset_b"`
	Correlation    float64    `json:"correlation"`
	DominantSignal SignalKind `json:"dominant_signal"`
	Strength       Strength   `json:"strength"`
	WindowHours    float64    `json:"window_hours"`
	Samples        int        `json:"samples"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Other returns the endpoint opposite to symbol.
func (e CorrelationEdge) Other(symbol string) string {
	if e.AssetA == symbol {
		return e.AssetB
	}
	return e.AssetA
}

// AtLeastModerate reports whether the edge is moderate or strong.
func (e CorrelationEdge) AtLeastModerate() bool {
	return e.Strength == StrengthStrong || e.Strength == StrengthModerate
}

// AssetRelationship refines an edge with temporal and structural context.
// LeadLagMinutes is positive when AssetA moves first.
type AssetRelationship struct {
	AssetA         string   `json:"asset_a"`
	AssetB         string   `json:"asset_b"`
	Correlation    float64  `json:"correlation"`
	LeadLagMinutes int      `json:"lead_lag_minutes"`
	SharedSectors  []string `json:"shared_sectors"`
	BridgeAssets   []string `json:"bridge_assets"`
}
