package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ContagionRadar/internal/services/contagion"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "info", c.Logger.Level)
	assert.Equal(t, "contagion.signals", c.Kafka.Topics.Signals)
	assert.Equal(t, 24*time.Hour, c.Replay.Lookback)
	assert.Equal(t, contagion.DefaultConfig(), c.Contagion)
}

func TestParseContagionOverrides(t *testing.T) {
	c, err := Parse([]byte(`
environment: test
contagion:
  correlation_threshold: 0.6
  admission_mode: stochastic
  random_seed: 42
  prediction_horizon: 2h
`))
	require.NoError(t, err)
	assert.Equal(t, 0.6, c.Contagion.CorrelationThreshold)
	assert.Equal(t, contagion.AdmissionStochastic, c.Contagion.AdmissionMode)
	assert.Equal(t, int64(42), c.Contagion.RandomSeed)
	assert.Equal(t, 2*time.Hour, c.Contagion.PredictionHorizon)
	assert.Equal(t, 20, c.Contagion.MinHistorySize)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"missing environment":   "server:\n  port: 80\n",
		"bad admission mode":    "environment: x\ncontagion:\n  admission_mode: sometimes\n",
		"history below min":     "environment: x\ncontagion:\n  min_history_size: 30\n  history_size: 20\n",
		"kafka without brokers": "environment: x\nkafka:\n  enabled: true\n",
		"webhook without redis": "environment: x\nwebhook:\n  enabled: true\n  url: http://hook\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: dev\n"), 0o600))

	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("HTTP_PORT", "9090")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "debug", c.Logger.Level)
	assert.Equal(t, 9090, c.Server.Port)
}

func TestShippedConfigParses(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, contagion.DefaultConfig(), c.Contagion)
	assert.Equal(t, 500, c.ClickHouse.BatchSize)
	assert.False(t, c.Kafka.Enabled)
}
