package models

import "time"

type Polarity string

const (
	PolarityPositive Polarity = "positive"
	PolarityNegative Polarity = "negative"
	PolarityMixed    Polarity = "mixed"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SeverityRank orders severities for threshold comparisons; unknown values rank lowest.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// AffectedAsset is a neighbor pulled into a contagion episode.
type AffectedAsset struct {
	Asset        string  `json:"asset"`
	Chain        string  `json:"chain,omitempty"`
	DelayMinutes float64 `json:"delay_minutes"`
	Impact       float64 `json:"impact"`
	Correlation  float64 `json:"correlation"`
}

// ContagionEvent records a sentiment shock spreading from OriginAsset.
type ContagionEvent struct {
	ID               string          `json:"id"`
	OriginAsset      string          `json:"origin_asset"`
	OriginChain      string          `json:"origin_chain,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
	InitialSentiment float64         `json:"initial_sentiment"`
	SentimentChange  float64         `json:"sentiment_change"`
	AffectedAssets   []AffectedAsset `json:"affected_assets"`
	Velocity         float64         `json:"velocity"`
	Reach            int             `json:"reach"`
	Polarity         Polarity        `json:"polarity"`
}

type PredictedAsset struct {
	Asset            string  `json:"asset"`
	Via              string  `json:"via"`
	Probability      float64 `json:"probability"`
	EstimatedMinutes float64 `json:"estimated_minutes"`
	EstimatedImpact  float64 `json:"estimated_impact"`
}

type ChainExposure struct {
	Chain    string  `json:"chain"`
	Exposure float64 `json:"exposure"`
	Direct   bool    `json:"direct"`
}

type ContagionMetrics struct {
	CurrentReach       int     `json:"current_reach"`
	ProjectedReach     int     `json:"projected_reach"`
	Velocity           float64 `json:"velocity"`
	AverageCorrelation float64 `json:"average_correlation"`
}

// ContagionSignal is the emitted, annotated form of a ContagionEvent. It is not stored.
type ContagionSignal struct {
	Event          ContagionEvent   `json:"event"`
	Severity       Severity         `json:"severity"`
	Metrics        ContagionMetrics `json:"contagion_metrics"`
	Predictions    []PredictedAsset `json:"predictions"`
	ChainExposure  []ChainExposure  `json:"chain_exposure"`
	SectorRotation *SectorRotation  `json:"sector_rotation,omitempty"`
	Confidence     float64          `json:"confidence"`
	GeneratedAt    time.Time        `json:"generated_at"`
}
