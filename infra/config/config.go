package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"matchbook/domain/orderbook"
)

type Config struct {
	Server  Server  `yaml:"server"`
	Storage Storage `yaml:"storage"`
	Engine  Engine  `yaml:"engine"`
	Events  Events  `yaml:"events"`
	Logging Logging `yaml:"logging"`
}

type Server struct {
	GRPCAddr        string        `yaml:"grpc_addr"`
	HTTPAddr        string        `yaml:"http_addr"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Storage struct {
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	RetryBase   time.Duration `yaml:"retry_base"`
}

type Engine struct {
	// MarketRemainder is the final status of the unfilled part of a MARKET
	// order: "canceled" or "rejected".
	MarketRemainder string `yaml:"market_remainder"`
	DefaultDepth    int    `yaml:"default_depth"`
}

type Events struct {
	WALDir           string        `yaml:"wal_dir"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	SnapshotDepth    int           `yaml:"snapshot_depth"`
	Kafka            Kafka         `yaml:"kafka"`
}

type Kafka struct {
	Enabled      bool          `yaml:"enabled"`
	Client       string        `yaml:"client"` // sarama | kafka-go
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxRetries   uint32        `yaml:"max_retries"`
}

type Logging struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

func Default() Config {
	return Config{
		Server: Server{
			GRPCAddr:        ":50051",
			HTTPAddr:        ":8080",
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: Storage{
			Path:        "data/engine.db",
			BusyTimeout: 5 * time.Second,
			MaxRetries:  3,
			RetryBase:   20 * time.Millisecond,
		},
		Engine: Engine{
			MarketRemainder: "canceled",
			DefaultDepth:    10,
		},
		Events: Events{
			WALDir:           "data/wal_exit",
			SnapshotInterval: time.Second,
			SnapshotDepth:    10,
			Kafka: Kafka{
				Enabled:      false,
				Client:       "sarama",
				Brokers:      []string{"localhost:9092"},
				Topic:        "engine.events",
				PollInterval: 250 * time.Millisecond,
				MaxRetries:   5,
			},
		},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies .env
// and environment overrides, then validates.
// Priority: ENV > .env file > YAML file > defaults. A missing YAML file or
// .env file is not an error.
func Load(path, envPath string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("ENGINE_GRPC_ADDR"); v != "" {
		cfg.Server.GRPCAddr = v
	}
	if v := os.Getenv("ENGINE_HTTP_ADDR"); v != "" {
		cfg.Server.HTTPAddr = v
	}
	if v := os.Getenv("ENGINE_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("ENGINE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ENGINE_MARKET_REMAINDER"); v != "" {
		cfg.Engine.MarketRemainder = v
	}
	if v := os.Getenv("ENGINE_KAFKA_BROKERS"); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		cfg.Events.Kafka.Brokers = brokers
		cfg.Events.Kafka.Enabled = len(brokers) > 0
	}
}

// FieldError names the setting that failed validation.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *FieldError) Unwrap() error { return e.Err }

var ErrInvalid = errors.New("invalid value")

func invalid(field, format string, args ...any) error {
	return &FieldError{Field: field, Err: fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)}
}

func (c *Config) Validate() error {
	if c.Server.GRPCAddr == "" {
		return invalid("server.grpc_addr", "empty")
	}
	if c.Storage.Path == "" {
		return invalid("storage.path", "empty")
	}
	if c.Storage.MaxRetries < 0 {
		return invalid("storage.max_retries", "%d", c.Storage.MaxRetries)
	}
	if _, err := c.Engine.RemainderStatus(); err != nil {
		return err
	}
	if c.Engine.DefaultDepth < 0 {
		return invalid("engine.default_depth", "%d", c.Engine.DefaultDepth)
	}
	if c.Events.SnapshotInterval < 0 {
		return invalid("events.snapshot_interval", "%s", c.Events.SnapshotInterval)
	}

	k := c.Events.Kafka
	if k.Enabled {
		if len(k.Brokers) == 0 {
			return invalid("events.kafka.brokers", "at least one broker is required")
		}
		if k.Topic == "" {
			return invalid("events.kafka.topic", "empty")
		}
		if k.Client != "sarama" && k.Client != "kafka-go" {
			return invalid("events.kafka.client", "%q", k.Client)
		}
		if k.PollInterval <= 0 {
			return invalid("events.kafka.poll_interval", "%s", k.PollInterval)
		}
		if c.Events.WALDir == "" {
			return invalid("events.wal_dir", "required when kafka is enabled")
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("logging.level", "%q", c.Logging.Level)
	}
	return nil
}

// RemainderStatus maps MarketRemainder to the order status it stands for.
func (e Engine) RemainderStatus() (orderbook.Status, error) {
	switch strings.ToLower(e.MarketRemainder) {
	case "", "canceled", "cancelled":
		return orderbook.StatusCanceled, nil
	case "rejected":
		return orderbook.StatusRejected, nil
	default:
		return 0, invalid("engine.market_remainder", "%q", e.MarketRemainder)
	}
}
