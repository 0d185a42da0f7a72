package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Optionsflow OptionsflowConfig `yaml:"optionsflow"`
	Channels    ChannelsConfig    `yaml:"channels"`
	Reader      ReaderConfig      `yaml:"reader"`
	Processor   ProcessorConfig   `yaml:"processor"`
	Grouping    GroupingConfig    `yaml:"grouping"`
	Store       StoreConfig       `yaml:"store"`
	Source      SourceConfig      `yaml:"source"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Storage     StorageConfig     `yaml:"storage"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type OptionsflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	RawBuffer   int `yaml:"raw_buffer"`
	TradeBuffer int `yaml:"trade_buffer"`
	GroupBuffer int `yaml:"group_buffer"`
}

type ReaderConfig struct {
	Timeout        time.Duration        `yaml:"timeout"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	Retry          RetryConfig          `yaml:"retry"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type RetryConfig struct {
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type ProcessorConfig struct {
	MaxWorkers int `yaml:"max_workers"`
}

// GroupingConfig controls when a block group is considered complete. A
// group seals once no leg has arrived for SettleWindow, or unconditionally
// once it is MaxWait old. ScanInterval is the arena sweep cadence.
type GroupingConfig struct {
	SettleWindow time.Duration `yaml:"settle_window"`
	MaxWait      time.Duration `yaml:"max_wait"`
	ScanInterval time.Duration `yaml:"scan_interval"`
}

type StoreConfig struct {
	Backend  string        `yaml:"backend"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	DedupTTL time.Duration `yaml:"dedup_ttl"`
}

type SourceConfig struct {
	Deribit DeribitSourceConfig `yaml:"deribit"`
	Bybit   BybitSourceConfig   `yaml:"bybit"`
	Okx     OkxSourceConfig     `yaml:"okx"`
	Binance BinanceSourceConfig `yaml:"binance"`
}

type DeribitSourceConfig struct {
	Enabled    bool                   `yaml:"enabled"`
	TradesURL  string                 `yaml:"trades_url"`
	TickerURL  string                 `yaml:"ticker_url"`
	Currencies []string               `yaml:"currencies"`
	Count      int                    `yaml:"count"`
	IntervalMs int                    `yaml:"interval_ms"`
	Websocket  DeribitWebsocketConfig `yaml:"websocket"`
}

type DeribitWebsocketConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

type BybitSourceConfig struct {
	Enabled        bool          `yaml:"enabled"`
	TradesURL      string        `yaml:"trades_url"`
	InstrumentsURL string        `yaml:"instruments_url"`
	Currencies     []string      `yaml:"currencies"`
	IntervalMs     int           `yaml:"interval_ms"`
	SymbolPauseMs  int           `yaml:"symbol_pause_ms"`
	SymbolCacheTTL time.Duration `yaml:"symbol_cache_ttl"`
}

type OkxSourceConfig struct {
	Enabled    bool               `yaml:"enabled"`
	TradesURL  string             `yaml:"trades_url"`
	Currencies []string           `yaml:"currencies"`
	IntervalMs int                `yaml:"interval_ms"`
	Contracts  map[string]float64 `yaml:"contracts"`
}

type BinanceSourceConfig struct {
	Enabled    bool     `yaml:"enabled"`
	TradesURL  string   `yaml:"trades_url"`
	Currencies []string `yaml:"currencies"`
	IntervalMs int      `yaml:"interval_ms"`
}

type DispatchConfig struct {
	Telegram   TelegramConfig     `yaml:"telegram"`
	Gateway    GatewayConfig      `yaml:"gateway"`
	MinPrice   float64            `yaml:"min_price"`
	AlarmSizes map[string]float64 `yaml:"alarm_sizes"`
}

type TelegramConfig struct {
	APIURL string `yaml:"api_url"`
	Token  string `yaml:"token"`
}

// GatewayConfig describes the optional upstream signal gateway every block
// alert is mirrored to once per group.
type GatewayConfig struct {
	Enabled   bool   `yaml:"enabled"`
	URL       string `yaml:"url"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

type StorageConfig struct {
	S3    S3Config    `yaml:"s3"`
	Kafka KafkaConfig `yaml:"kafka"`
}

type S3Config struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Prefix          string        `yaml:"prefix"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	PathStyle       bool          `yaml:"path_style"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Grouping: GroupingConfig{
			SettleWindow: 5 * time.Second,
			MaxWait:      60 * time.Second,
			ScanInterval: time.Second,
		},
		Store: StoreConfig{
			Backend:  "memory",
			DedupTTL: 48 * time.Hour,
		},
		Dispatch: DispatchConfig{
			MinPrice: 0.0005,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Secrets come from the environment when present.
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		config.Dispatch.Telegram.Token = strings.TrimSpace(v)
	}
	if v := os.Getenv("GATEWAY_ACCESS_KEY"); v != "" {
		config.Dispatch.Gateway.AccessKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("GATEWAY_SECRET_KEY"); v != "" {
		config.Dispatch.Gateway.SecretKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		config.Store.Addr = strings.TrimSpace(v)
	}
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Optionsflow.Name == "" {
		return fmt.Errorf("optionsflow.name is required")
	}
	if cfg.Optionsflow.Version == "" {
		return fmt.Errorf("optionsflow.version is required")
	}

	if cfg.Channels.RawBuffer <= 0 {
		return fmt.Errorf("channels.raw_buffer must be greater than 0")
	}
	if cfg.Channels.TradeBuffer <= 0 {
		return fmt.Errorf("channels.trade_buffer must be greater than 0")
	}
	if cfg.Channels.GroupBuffer <= 0 {
		return fmt.Errorf("channels.group_buffer must be greater than 0")
	}

	if cfg.Processor.MaxWorkers <= 0 {
		return fmt.Errorf("processor.max_workers must be greater than 0")
	}

	if cfg.Grouping.SettleWindow <= 0 {
		return fmt.Errorf("grouping.settle_window must be greater than 0")
	}
	if cfg.Grouping.MaxWait < cfg.Grouping.SettleWindow {
		return fmt.Errorf("grouping.max_wait must be at least grouping.settle_window")
	}
	if cfg.Grouping.ScanInterval <= 0 {
		return fmt.Errorf("grouping.scan_interval must be greater than 0")
	}

	switch cfg.Store.Backend {
	case "memory":
	case "redis":
		if cfg.Store.Addr == "" {
			return fmt.Errorf("store.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not supported", cfg.Store.Backend)
	}
	if cfg.Store.DedupTTL <= 0 {
		return fmt.Errorf("store.dedup_ttl must be greater than 0")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.FlushInterval <= 0 {
			return fmt.Errorf("storage.s3.flush_interval must be greater than 0 when S3 is enabled")
		}
	}
	if cfg.Storage.Kafka.Enabled {
		if len(cfg.Storage.Kafka.Brokers) == 0 {
			return fmt.Errorf("storage.kafka.brokers is required when kafka is enabled")
		}
		if cfg.Storage.Kafka.Topic == "" {
			return fmt.Errorf("storage.kafka.topic is required when kafka is enabled")
		}
	}

	if cfg.Dispatch.Gateway.Enabled && cfg.Dispatch.Gateway.URL == "" {
		return fmt.Errorf("dispatch.gateway.url is required when the gateway is enabled")
	}

	return nil
}
