package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"ContagionRadar/internal/services/contagion"
	"ContagionRadar/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" validate:"required"`
	Logger      struct {
		Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format     string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output     string `yaml:"output" default:"stdout"`
		TimeFormat string `yaml:"time_format"`
		Collector  struct {
			Enabled   bool          `yaml:"enabled"`
			Topic     string        `yaml:"topic" default:"contagion.logs"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"logger"`
	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"500ms"`
		CORSOrigins     []string      `yaml:"cors_origins" default:"[\"*\"]"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Ingest struct {
		MaxRPS      int     `yaml:"max_rps" default:"200" validate:"gte=0"`
		ClientRPS   float64 `yaml:"client_rps" default:"20" validate:"gt=0"`
		ClientBurst int     `yaml:"client_burst" default:"40" validate:"gt=0"`
	} `yaml:"ingest"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers" validate:"required_if=Enabled true"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=gzip snappy lz4 zstd"`
		Topics       struct {
			Observations string `yaml:"observations" default:"contagion.observations"`
			Signals      string `yaml:"signals" default:"contagion.signals"`
			Rotations    string `yaml:"rotations" default:"contagion.rotations"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"contagion-radar"`
			Workers    int           `yaml:"workers" default:"1"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"contagion.observations.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost" validate:"required_if=Enabled true"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"contagion"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		Compression      string        `yaml:"compression" default:"lz4" validate:"oneof=none lz4 zstd"`
		MaxOpenConns     int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns     int           `yaml:"max_idle_conns" default:"5"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		BatchSize        int           `yaml:"batch_size" default:"500"`
		FlushInterval    time.Duration `yaml:"flush_interval" default:"2s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled     bool          `yaml:"enabled"`
		Addr        string        `yaml:"addr" default:"localhost:6379" validate:"required_if=Enabled true"`
		Password    string        `yaml:"password"`
		DB          int           `yaml:"db"`
		Prefix      string        `yaml:"prefix" default:"contagion"`
		SnapshotTTL time.Duration `yaml:"snapshot_ttl" default:"24h"`
	} `yaml:"redis"`
	Feed struct {
		Enabled           bool          `yaml:"enabled"`
		URL               string        `yaml:"url" validate:"required_if=Enabled true"`
		APIKey            string        `yaml:"api_key"`
		Symbols           []string      `yaml:"symbols"`
		ReconnectDelay    time.Duration `yaml:"reconnect_delay" default:"5s"`
		MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay" default:"2m"`
		PingInterval      time.Duration `yaml:"ping_interval" default:"30s"`
		BufferSize        int           `yaml:"buffer_size" default:"1024" validate:"gt=0"`
	} `yaml:"feed"`
	Webhook struct {
		Enabled       bool          `yaml:"enabled"`
		URL           string        `yaml:"url" validate:"required_if=Enabled true"`
		Timeout       time.Duration `yaml:"timeout" default:"5s"`
		MinSeverity   string        `yaml:"min_severity" default:"high" validate:"oneof=low medium high"`
		QueueWorkers  int           `yaml:"queue_workers" default:"2"`
		EnqueueOnly   bool          `yaml:"enqueue_only"`
		RetryLimit    int           `yaml:"retry_limit" default:"3"`
		RetryDelay    time.Duration `yaml:"retry_delay" default:"10s"`
		MaxRetryDelay time.Duration `yaml:"max_retry_delay" default:"5m"`
	} `yaml:"webhook"`
	Replay struct {
		OnStartup bool          `yaml:"on_startup"`
		Lookback  time.Duration `yaml:"lookback" default:"24h"`
		Limit     int           `yaml:"limit" default:"200000"`
	} `yaml:"replay"`
	Dispatcher struct {
		BufferSize     int           `yaml:"buffer_size" default:"1024" validate:"gt=0"`
		PublishTimeout time.Duration `yaml:"publish_timeout" default:"5s"`
	} `yaml:"dispatcher"`
	Contagion contagion.Config `yaml:"contagion"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads an optional .env file, then the YAML config, and applies
// environment overrides on top.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitTrim(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("FEED_URL"); v != "" {
		c.Feed.URL = v
		c.Feed.Enabled = true
	}
	if v := os.Getenv("FEED_SYMBOLS"); v != "" {
		c.Feed.Symbols = util.SplitTrim(v, ",")
	}
	if v := os.Getenv("FEED_API_KEY"); v != "" {
		c.Feed.APIKey = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		c.Webhook.URL = v
		c.Webhook.Enabled = true
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Webhook.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("webhook alerts need redis.enabled for the delivery queue")
	}
	if c.Replay.OnStartup && !c.ClickHouse.Enabled {
		return fmt.Errorf("replay.on_startup needs clickhouse.enabled")
	}
	return nil
}
