package kafka

import (
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ProducerOption configures Producer.
type ProducerOption func(*ProducerConfig)

// ProducerConfig mirrors the kafka section of the service config. Signal
// topics are keyed by asset, so HashByKey is on unless a caller opts out.
type ProducerConfig struct {
	Brokers      []string
	RequiredAcks int
	Compression  string
	MaxAttempts  int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	BatchSize    int
	BatchBytes   int
	BatchTimeout time.Duration
	Async        bool
	HashByKey    bool
}

var compressionCodecs = map[string]kafka.Compression{
	"gzip":   kafka.Gzip,
	"snappy": kafka.Snappy,
	"lz4":    kafka.Lz4,
	"zstd":   kafka.Zstd,
}

func defaultProducerConfig() *ProducerConfig {
	return &ProducerConfig{
		RequiredAcks: int(kafka.RequireAll),
		Compression:  "snappy",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		BatchSize:    100,
		BatchBytes:   1 << 20,
		BatchTimeout: 50 * time.Millisecond,
		HashByKey:    true,
	}
}

func (c *ProducerConfig) validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka producer: brokers are required")
	}
	switch kafka.RequiredAcks(c.RequiredAcks) {
	case kafka.RequireAll, kafka.RequireNone, kafka.RequireOne:
	default:
		return fmt.Errorf("kafka producer: required acks must be -1, 0 or 1, got %d", c.RequiredAcks)
	}
	if _, ok := compressionCodecs[c.Compression]; !ok && c.Compression != "" {
		return fmt.Errorf("kafka producer: unknown compression %q", c.Compression)
	}
	return nil
}

// codec returns the writer codec; an empty name disables compression.
func (c *ProducerConfig) codec() kafka.Compression {
	return compressionCodecs[c.Compression]
}

func (c *ProducerConfig) balancer() kafka.Balancer {
	if c.HashByKey {
		return &kafka.Hash{}
	}
	return &kafka.LeastBytes{}
}

func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) { c.Brokers = brokers }
}

// WithCompression accepts gzip, snappy, lz4, zstd or "" for none.
func WithCompression(name string) ProducerOption {
	return func(c *ProducerConfig) { c.Compression = name }
}

// WithRequiredAcks sets required acknowledgements (-1 = all in-sync replicas).
func WithRequiredAcks(acks int) ProducerOption {
	return func(c *ProducerConfig) { c.RequiredAcks = acks }
}

// WithMaxAttempts sets how often the writer retries a batch; zero keeps the default.
func WithMaxAttempts(n int) ProducerOption {
	return func(c *ProducerConfig) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

func WithBatchSize(size int) ProducerOption {
	return func(c *ProducerConfig) {
		if size > 0 {
			c.BatchSize = size
		}
	}
}

func WithBatchTimeout(linger time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		if linger > 0 {
			c.BatchTimeout = linger
		}
	}
}

func WithBatchBytes(bytes int) ProducerOption {
	return func(c *ProducerConfig) {
		if bytes > 0 {
			c.BatchBytes = bytes
		}
	}
}

// WithTimeouts sets writer read/write timeouts.
func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		if write > 0 {
			c.WriteTimeout = write
		}
		if read > 0 {
			c.ReadTimeout = read
		}
	}
}

// WithAsync makes Publish return before the broker acknowledges. Write
// errors are then only visible in the producer error counter.
func WithAsync(async bool) ProducerOption {
	return func(c *ProducerConfig) { c.Async = async }
}

func WithHashByKey(hash bool) ProducerOption {
	return func(c *ProducerConfig) { c.HashByKey = hash }
}
