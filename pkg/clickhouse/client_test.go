package clickhouse

import (
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsNative(t *testing.T) {
	cfg := defaultClientConfig()
	for _, opt := range []ClientOption{
		WithHost("ch"),
		WithDatabase("contagion"),
		WithCredentials("default", "pw"),
		WithMaxExecutionTime(60 * time.Second),
		WithAsyncInsert(true, true),
	} {
		opt(cfg)
	}

	opts, err := cfg.options()
	require.NoError(t, err)
	assert.Equal(t, []string{"ch:9000"}, opts.Addr)
	assert.Equal(t, ch.Auth{Database: "contagion", Username: "default", Password: "pw"}, opts.Auth)
	assert.Equal(t, ch.Native, opts.Protocol)
	require.NotNil(t, opts.Compression)
	assert.Equal(t, ch.CompressionLZ4, opts.Compression.Method)
	assert.Equal(t, ch.Settings{"max_execution_time": 60, "async_insert": 1, "wait_for_async_insert": 1}, opts.Settings)
}

func TestOptionsHTTPWithoutCompression(t *testing.T) {
	cfg := defaultClientConfig()
	WithHost("ch")(cfg)
	WithPort(8123)(cfg)
	WithHTTP(true)(cfg)
	WithCompression("none")(cfg)

	opts, err := cfg.options()
	require.NoError(t, err)
	assert.Equal(t, ch.HTTP, opts.Protocol)
	assert.Equal(t, []string{"ch:8123"}, opts.Addr)
	assert.Nil(t, opts.Compression)
	assert.Empty(t, opts.Settings)
}

func TestOptionsRejectsBadConfig(t *testing.T) {
	_, err := NewClient()
	assert.Error(t, err)

	cfg := defaultClientConfig()
	cfg.Host = "ch"
	cfg.Compression = "brotli"
	_, err = cfg.options()
	assert.Error(t, err)
}
