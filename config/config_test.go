package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validYAML = `
optionsflow:
  name: optionsflow
  version: "1.0.0"
channels:
  raw_buffer: 4096
  trade_buffer: 2048
  group_buffer: 512
reader:
  timeout: 10s
  retry:
    base_delay: 1s
    max_delay: 30s
processor:
  max_workers: 4
grouping:
  settle_window: 5s
  max_wait: 60s
  scan_interval: 1s
store:
  backend: memory
  dedup_ttl: 48h
source:
  deribit:
    enabled: true
    trades_url: https://www.deribit.com/api/v2/public/get_last_trades_by_currency
    currencies: [BTC, ETH]
    count: 100
    interval_ms: 1000
dispatch:
  min_price: 0.0005
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeTempConfig(t, validYAML))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Optionsflow.Name != "optionsflow" {
		t.Errorf("name = %q", cfg.Optionsflow.Name)
	}
	if cfg.Grouping.SettleWindow != 5*time.Second {
		t.Errorf("settle_window = %v", cfg.Grouping.SettleWindow)
	}
	if cfg.Store.DedupTTL != 48*time.Hour {
		t.Errorf("dedup_ttl = %v", cfg.Store.DedupTTL)
	}
	if !cfg.Source.Deribit.Enabled || len(cfg.Source.Deribit.Currencies) != 2 {
		t.Errorf("deribit source not loaded: %+v", cfg.Source.Deribit)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	minimal := `
optionsflow:
  name: optionsflow
  version: "1.0.0"
channels:
  raw_buffer: 1
  trade_buffer: 1
  group_buffer: 1
processor:
  max_workers: 1
`
	cfg, err := LoadConfig(writeTempConfig(t, minimal))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Grouping.SettleWindow != 5*time.Second || cfg.Grouping.MaxWait != 60*time.Second {
		t.Errorf("grouping defaults not applied: %+v", cfg.Grouping)
	}
	if cfg.Store.Backend != "memory" || cfg.Store.DedupTTL != 48*time.Hour {
		t.Errorf("store defaults not applied: %+v", cfg.Store)
	}
	if cfg.Dispatch.MinPrice != 0.0005 {
		t.Errorf("min_price default not applied: %v", cfg.Dispatch.MinPrice)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "12345:abcdef")
	t.Setenv("REDIS_ADDR", "localhost:6380")
	cfg, err := LoadConfig(writeTempConfig(t, validYAML))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Dispatch.Telegram.Token != "12345:abcdef" {
		t.Errorf("telegram token override not applied")
	}
	if cfg.Store.Addr != "localhost:6380" {
		t.Errorf("redis addr override not applied")
	}
}

func TestValidateConfigRejections(t *testing.T) {
	base := func() Config {
		return Config{
			Optionsflow: OptionsflowConfig{Name: "optionsflow", Version: "1.0.0"},
			Channels:    ChannelsConfig{RawBuffer: 1, TradeBuffer: 1, GroupBuffer: 1},
			Processor:   ProcessorConfig{MaxWorkers: 1},
			Grouping:    GroupingConfig{SettleWindow: time.Second, MaxWait: time.Minute, ScanInterval: time.Second},
			Store:       StoreConfig{Backend: "memory", DedupTTL: time.Hour},
		}
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing name", func(c *Config) { c.Optionsflow.Name = "" }},
		{"zero raw buffer", func(c *Config) { c.Channels.RawBuffer = 0 }},
		{"zero workers", func(c *Config) { c.Processor.MaxWorkers = 0 }},
		{"max_wait below settle_window", func(c *Config) { c.Grouping.MaxWait = c.Grouping.SettleWindow / 2 }},
		{"unknown store backend", func(c *Config) { c.Store.Backend = "cassandra" }},
		{"redis without addr", func(c *Config) { c.Store.Backend = "redis" }},
		{"s3 without bucket", func(c *Config) { c.Storage.S3.Enabled = true; c.Storage.S3.Region = "us-east-1" }},
		{"kafka without brokers", func(c *Config) { c.Storage.Kafka.Enabled = true; c.Storage.Kafka.Topic = "t" }},
		{"gateway without url", func(c *Config) { c.Dispatch.Gateway.Enabled = true }},
	}
	for _, tc := range cases {
		cfg := base()
		tc.mutate(&cfg)
		if err := validateConfig(&cfg); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}

	cfg := base()
	if err := validateConfig(&cfg); err != nil {
		t.Fatalf("base config rejected: %v", err)
	}
}

func TestLoadTiers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiers.yml")
	content := `
tiers:
  - name: whale
    chat_id: "-1001"
    thresholds:
      BTC: 25
      ETH: 250
  - name: mega
    chat_id: "-1002"
    thresholds:
      BTC: 500
      ETH: 5000
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write tiers: %v", err)
	}
	cfg, err := LoadTiers(path)
	if err != nil {
		t.Fatalf("LoadTiers: %v", err)
	}
	if len(cfg.Tiers) != 2 {
		t.Fatalf("tiers = %d, want 2", len(cfg.Tiers))
	}
	if cfg.Tiers[0].Thresholds["BTC"] != 25 {
		t.Errorf("whale BTC threshold = %v", cfg.Tiers[0].Thresholds["BTC"])
	}
}

func TestValidateTiers(t *testing.T) {
	cases := []struct {
		name string
		cfg  Tiers
	}{
		{"empty", Tiers{}},
		{"missing chat", Tiers{Tiers: []Tier{{Name: "a", Thresholds: map[string]float64{"BTC": 1}}}}},
		{"no thresholds", Tiers{Tiers: []Tier{{Name: "a", ChatID: "-1"}}}},
		{"duplicate name", Tiers{Tiers: []Tier{
			{Name: "a", ChatID: "-1", Thresholds: map[string]float64{"BTC": 1}},
			{Name: "a", ChatID: "-2", Thresholds: map[string]float64{"BTC": 2}},
		}}},
		{"non-positive threshold", Tiers{Tiers: []Tier{{Name: "a", ChatID: "-1", Thresholds: map[string]float64{"BTC": 0}}}}},
	}
	for _, tc := range cases {
		cfg := tc.cfg
		if err := validateTiers(&cfg); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}
