package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Storage backends for generated bio-code sequences
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// ServerConfig holds HTTP API server configuration
type ServerConfig struct {
	TwinID          string        `yaml:"twin_id" validate:"required"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// NetworkConfig holds self-healing controller configuration
type NetworkConfig struct {
	// RegenRate is passed through unchecked; the network service replaces a
	// negative or non-finite rate with its default and logs a configuration error
	RegenRate    float64 `yaml:"regen_rate"`
	EventLimit   int     `yaml:"event_limit" validate:"gte=1"`
	HistoryLimit int     `yaml:"history_limit" validate:"gte=2"`
}

// TelemetryConfig holds the static physical model readings applied on every
// regeneration cycle. Empty means no physical model is attached.
type TelemetryConfig struct {
	Readings map[string]float64 `yaml:"readings"`
}

// StorageConfig holds bio-code persistence configuration
type StorageConfig struct {
	Backend    string `yaml:"backend" validate:"oneof=none memory file redis"`
	BioCodeDir string `yaml:"biocode_dir"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db" validate:"gte=0"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// AuditConfig holds the audit archive configuration
type AuditConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

// GossipConfig holds gossip protocol configuration
type GossipConfig struct {
	Enabled        bool          `yaml:"enabled"`
	BindAddr       string        `yaml:"bind_addr"`
	BindPort       int           `yaml:"bind_port" validate:"gte=0,max=65535"`
	SeedNodes      []string      `yaml:"seed_nodes"`
	GossipInterval time.Duration `yaml:"gossip_interval"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	ProbeInterval  time.Duration `yaml:"probe_interval"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	Path            string        `yaml:"path"`
	CollectInterval time.Duration `yaml:"collect_interval"`
}

// RateLimiterConfig holds control endpoint rate limiting
type RateLimiterConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	BurstSize         int     `yaml:"burst_size" validate:"gte=0"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// StressConfig holds batch stress runner configuration
type StressConfig struct {
	Runs      int   `yaml:"runs" validate:"gte=1"`
	Workers   int   `yaml:"workers" validate:"gte=1"`
	QueueSize int   `yaml:"queue_size" validate:"gte=1"`
	MaxCycles int   `yaml:"max_cycles" validate:"gte=1"`
	Seed      int64 `yaml:"seed"`
}

// Config represents the complete configuration for a twin process
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Network     NetworkConfig     `yaml:"network"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Storage     StorageConfig     `yaml:"storage"`
	Redis       RedisConfig       `yaml:"redis"`
	Audit       AuditConfig       `yaml:"audit"`
	Gossip      GossipConfig      `yaml:"gossip"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	RateLimiter RateLimiterConfig `yaml:"rate_limiter"`
	Logging     LoggingConfig     `yaml:"logging"`
	Stress      StressConfig      `yaml:"stress"`
}

// LoadConfig loads configuration from a file
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a fully defaulted configuration for the given twin
func Default(twinID string) *Config {
	cfg := &Config{Server: ServerConfig{TwinID: twinID}}
	setDefaults(cfg)
	return cfg
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	if cfg.Network.RegenRate == 0 {
		cfg.Network.RegenRate = 8.5
	}
	if cfg.Network.EventLimit == 0 {
		cfg.Network.EventLimit = 100
	}
	if cfg.Network.HistoryLimit == 0 {
		cfg.Network.HistoryLimit = 10
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendMemory
	}
	if cfg.Storage.BioCodeDir == "" {
		cfg.Storage.BioCodeDir = "/var/lib/metaspace/biocode"
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "twin:" + cfg.Server.TwinID
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = 7 * 24 * time.Hour
	}

	if cfg.Gossip.BindPort == 0 && cfg.Gossip.Enabled {
		cfg.Gossip.BindPort = 7946
	}
	if cfg.Gossip.GossipInterval == 0 {
		cfg.Gossip.GossipInterval = 200 * time.Millisecond
	}
	if cfg.Gossip.ProbeTimeout == 0 {
		cfg.Gossip.ProbeTimeout = 500 * time.Millisecond
	}
	if cfg.Gossip.ProbeInterval == 0 {
		cfg.Gossip.ProbeInterval = time.Second
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.CollectInterval == 0 {
		cfg.Metrics.CollectInterval = 15 * time.Second
	}

	if cfg.RateLimiter.RequestsPerSecond == 0 {
		cfg.RateLimiter.RequestsPerSecond = 50
	}
	if cfg.RateLimiter.BurstSize == 0 {
		cfg.RateLimiter.BurstSize = 100
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Stress.Runs == 0 {
		cfg.Stress.Runs = 100
	}
	if cfg.Stress.Workers == 0 {
		cfg.Stress.Workers = 8
	}
	if cfg.Stress.QueueSize == 0 {
		cfg.Stress.QueueSize = 256
	}
	if cfg.Stress.MaxCycles == 0 {
		cfg.Stress.MaxCycles = 50
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Storage.Backend == BackendFile && c.Storage.BioCodeDir == "" {
		return fmt.Errorf("storage.biocode_dir is required for the file backend")
	}
	for id, h := range c.Telemetry.Readings {
		if h < 0 || h > 100 {
			return fmt.Errorf("telemetry.readings[%s] must be between 0 and 100", id)
		}
	}
	return nil
}
