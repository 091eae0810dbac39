// Package config loads indexer configuration from a TOML file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Default configuration values.
const (
	DefaultConcurrency      = 4
	DefaultTickInterval     = 200 * time.Millisecond
	DefaultBufferSize       = 64
	DefaultBlockMaxTries    = 10
	DefaultSlotPollInterval = 400 * time.Millisecond
	DefaultCacheSize        = 100_000
	DefaultRPCTimeout       = 30 * time.Second
	DefaultRPCMaxRetries    = 5
	DefaultRPCPendingWindow = time.Minute
	DefaultMetricsAddr      = ":9090"
)

// Config is the root configuration.
type Config struct {
	RPC        RPCConfig        `toml:"rpc"`
	DB         DBConfig         `toml:"db"`
	ClickHouse ClickHouseConfig `toml:"clickhouse"`
	Indexer    IndexerConfig    `toml:"indexer"`
	Logger     LoggerConfig     `toml:"logger"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

type RPCConfig struct {
	HTTPURL    string   `toml:"http_url" envconfig:"RPC_HTTP_URL"`
	WSURL      string   `toml:"ws_url" envconfig:"RPC_WS_URL"`
	Timeout    Duration `toml:"timeout"`
	MaxRetries int      `toml:"max_retries" envconfig:"RPC_MAX_RETRIES"`
	Commitment string   `toml:"commitment"`
	// PendingWindow is how long a block reported as not available yet is polled.
	PendingWindow Duration `toml:"pending_window"`
}

type DBConfig struct {
	DSN      string `toml:"dsn" envconfig:"DB_DSN"`
	MaxConns int32  `toml:"max_conns" envconfig:"DB_MAX_CONNS"`
	Migrate  bool   `toml:"migrate"`
}

// ClickHouseConfig is optional; an empty DSN disables the analytics export.
type ClickHouseConfig struct {
	DSN string `toml:"dsn" envconfig:"CLICKHOUSE_DSN"`
}

type IndexerConfig struct {
	Concurrency      int      `toml:"concurrency" envconfig:"INDEXER_CONCURRENCY"`
	TickInterval     Duration `toml:"tick_interval"`
	BufferSize       int      `toml:"buffer_size"`
	BlockMaxTries    uint     `toml:"block_max_tries"`
	SlotPollInterval Duration `toml:"slot_poll_interval"`
	CacheSize        int      `toml:"cache_size"`
	StartSlot        uint64   `toml:"start_slot" envconfig:"INDEXER_START_SLOT"`
}

type LoggerConfig struct {
	Level       string `toml:"level" envconfig:"LOG_LEVEL"` // DEBUG, INFO, WARN, ERROR, DPANIC, PANIC, FATAL
	File        string `toml:"file"`
	MaxFileSize int    `toml:"max_file_size"` // megabytes
	MaxBackups  int    `toml:"max_backups"`
	Console     bool   `toml:"console"`
}

type MetricsConfig struct {
	Addr string `toml:"addr" envconfig:"METRICS_ADDR"`
}

// Duration decodes TOML strings such as "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the TOML file, applies a .env file if present, then environment overrides.
func Load(fileName string) (*Config, error) {
	cfg := &Config{Logger: LoggerConfig{Console: true}}

	if fileName != "" {
		if err := ParseConfigFile(cfg, fileName); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	if err := ReadEnv(cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ParseConfigFile(cfg *Config, fileName string) error {
	content, err := os.ReadFile(fileName)
	if err != nil {
		return fmt.Errorf("error opening config file: %w", err)
	}

	if _, err := toml.Decode(string(content), cfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	return nil
}

func ReadEnv(cfg interface{}) error {
	if err := envconfig.Process("", cfg); err != nil {
		return fmt.Errorf("error reading env config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.RPC.Timeout.Duration == 0 {
		c.RPC.Timeout.Duration = DefaultRPCTimeout
	}
	if c.RPC.MaxRetries == 0 {
		c.RPC.MaxRetries = DefaultRPCMaxRetries
	}
	if c.RPC.Commitment == "" {
		c.RPC.Commitment = "confirmed"
	}
	if c.RPC.PendingWindow.Duration == 0 {
		c.RPC.PendingWindow.Duration = DefaultRPCPendingWindow
	}
	if c.Indexer.Concurrency == 0 {
		c.Indexer.Concurrency = DefaultConcurrency
	}
	if c.Indexer.TickInterval.Duration == 0 {
		c.Indexer.TickInterval.Duration = DefaultTickInterval
	}
	if c.Indexer.BufferSize == 0 {
		c.Indexer.BufferSize = DefaultBufferSize
	}
	if c.Indexer.BlockMaxTries == 0 {
		c.Indexer.BlockMaxTries = DefaultBlockMaxTries
	}
	if c.Indexer.SlotPollInterval.Duration == 0 {
		c.Indexer.SlotPollInterval.Duration = DefaultSlotPollInterval
	}
	if c.Indexer.CacheSize == 0 {
		c.Indexer.CacheSize = DefaultCacheSize
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "INFO"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.RPC.HTTPURL == "" {
		return errors.New("rpc.http_url is required")
	}
	if c.DB.DSN == "" {
		return errors.New("db.dsn is required")
	}
	if c.Indexer.Concurrency < 0 {
		return fmt.Errorf("indexer.concurrency must not be negative, got %d", c.Indexer.Concurrency)
	}
	if c.Indexer.BufferSize < 1 {
		return fmt.Errorf("indexer.buffer_size must be positive, got %d", c.Indexer.BufferSize)
	}
	return nil
}
