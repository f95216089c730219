package kafka

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducerConfigDefaults(t *testing.T) {
	cfg := defaultProducerConfig()
	for _, opt := range []ProducerOption{
		WithBrokers([]string{"b:9092"}),
		WithBatchSize(0),
		WithTimeouts(0, time.Second),
		WithMaxAttempts(-1),
	} {
		opt(cfg)
	}
	require.NoError(t, cfg.validate())
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Equal(t, time.Second, cfg.ReadTimeout)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, kafka.Snappy, cfg.codec())
	assert.IsType(t, &kafka.Hash{}, cfg.balancer())

	WithHashByKey(false)(cfg)
	assert.IsType(t, &kafka.LeastBytes{}, cfg.balancer())
}

func TestProducerConfigValidate(t *testing.T) {
	cfg := defaultProducerConfig()
	assert.Error(t, cfg.validate(), "brokers")

	cfg.Brokers = []string{"b:9092"}
	cfg.RequiredAcks = 2
	assert.Error(t, cfg.validate())

	cfg.RequiredAcks = 1
	cfg.Compression = "brotli"
	assert.Error(t, cfg.validate())

	cfg.Compression = ""
	require.NoError(t, cfg.validate())
	assert.Equal(t, kafka.Compression(0), cfg.codec())
}

func TestNewProducerRejectsBadConfig(t *testing.T) {
	_, err := NewProducer(WithBrokers([]string{"b:9092"}), WithCompression("brotli"))
	assert.Error(t, err)

	p, err := NewProducer(WithBrokers([]string{"b:9092"}))
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}
