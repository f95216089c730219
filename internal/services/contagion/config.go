package contagion

import (
	"time"

	"github.com/creasty/defaults"
)

// AdmissionMode controls how a correlated neighbor that is not already moving with the
// origin gets admitted into a contagion event.
type AdmissionMode string

const (
	// AdmissionDeterministic admits when |correlation| >= AdmissionCutoff.
	AdmissionDeterministic AdmissionMode = "deterministic"
	// AdmissionStochastic admits with probability equal to the correlation.
	AdmissionStochastic AdmissionMode = "stochastic"
)

// Config holds engine tuning. Zero fields are filled from the default tags by New.
type Config struct {
	CorrelationThreshold    float64       `yaml:"correlation_threshold" default:"0.5" validate:"gt=0,lt=1"`
	ContagionThreshold      float64       `yaml:"contagion_threshold" default:"0.3" validate:"gt=0"`
	MinHistorySize          int           `yaml:"min_history_size" default:"20" validate:"gte=10"`
	HistorySize             int           `yaml:"history_size" default:"100" validate:"gtefield=MinHistorySize"`
	ContagionWindow         time.Duration `yaml:"contagion_window" default:"24h" validate:"gt=0"`
	PredictionHorizon       time.Duration `yaml:"prediction_horizon" default:"6h" validate:"gt=0"`
	VelocityThreshold       float64       `yaml:"velocity_threshold" default:"0.5" validate:"gte=0,lte=1"`
	CrossChainMultiplier    float64       `yaml:"cross_chain_multiplier" default:"1.2" validate:"gte=1"`
	SectorRotationThreshold float64       `yaml:"sector_rotation_threshold" default:"0.4" validate:"gt=0"`
	BridgeAssetWeight       float64       `yaml:"bridge_asset_weight" default:"0.1" validate:"gte=0"`
	Layer2ContagionBoost    float64       `yaml:"layer2_contagion_boost" default:"1.3" validate:"gte=1"`
	MaxPredictions          int           `yaml:"max_predictions" default:"10" validate:"gte=1"`

	AlignmentTolerance  time.Duration `yaml:"alignment_tolerance" default:"5m" validate:"gt=0"`
	MinAlignedSamples   int           `yaml:"min_aligned_samples" default:"20" validate:"gte=2"`
	MaxContagionHistory int           `yaml:"max_contagion_history" default:"100" validate:"gte=1"`
	MaxRotationHistory  int           `yaml:"max_rotation_history" default:"20" validate:"gte=1"`
	RotationCooldown    time.Duration `yaml:"rotation_cooldown" default:"1h"`
	AdmissionMode       AdmissionMode `yaml:"admission_mode" default:"deterministic" validate:"oneof=deterministic stochastic"`
	AdmissionCutoff     float64       `yaml:"admission_cutoff" default:"0.7" validate:"gt=0"`
	RandomSeed          int64         `yaml:"random_seed"`
}

// DefaultConfig returns a Config populated from the default tags.
func DefaultConfig() Config {
	var c Config
	_ = defaults.Set(&c)
	return c
}
