package models

import "time"

type ChainMetrics struct {
	Chain                   string    `json:"chain"`
	SentimentMomentum       float64   `json:"sentiment_momentum"`
	ContagionSusceptibility float64   `json:"contagion_susceptibility"`
	TrackedAssets           int       `json:"tracked_assets"`
	RecentContagionCount    int       `json:"recent_contagion_count"`
	AverageSpreadMinutes    float64   `json:"average_spread_minutes"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// EngineStats summarizes engine state sizes.
type EngineStats struct {
	TrackedAssets    int `json:"tracked_assets"`
	CorrelationEdges int `json:"correlation_edges"`
	ContagionEvents  int `json:"contagion_events"`
	SectorRotations  int `json:"sector_rotations"`
	TrackedChains    int `json:"tracked_chains"`
}
