package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tier defines one subscriber class: the chat it posts to and the minimum
// total group size, per currency, that makes an alert eligible for it. A
// currency missing from Thresholds means the tier never receives alerts for
// that currency.
type Tier struct {
	Name       string             `yaml:"name"`
	ChatID     string             `yaml:"chat_id"`
	Thresholds map[string]float64 `yaml:"thresholds"`
}

// Tiers represents the full tier routing configuration.
type Tiers struct {
	Tiers []Tier `yaml:"tiers"`
}

// LoadTiers loads tier configuration from the given path.
func LoadTiers(path string) (*Tiers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tiers file: %w", err)
	}
	var cfg Tiers
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse tiers file: %w", err)
	}
	if err := validateTiers(&cfg); err != nil {
		return nil, fmt.Errorf("tiers validation failed: %w", err)
	}
	return &cfg, nil
}

func validateTiers(cfg *Tiers) error {
	if len(cfg.Tiers) == 0 {
		return fmt.Errorf("at least one tier is required")
	}
	seen := make(map[string]bool, len(cfg.Tiers))
	for i := range cfg.Tiers {
		t := &cfg.Tiers[i]
		if t.Name == "" {
			return fmt.Errorf("tier %d is missing a name", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("tier name %q is duplicated", t.Name)
		}
		seen[t.Name] = true
		if t.ChatID == "" {
			return fmt.Errorf("tier %q is missing a chat_id", t.Name)
		}
		if len(t.Thresholds) == 0 {
			return fmt.Errorf("tier %q has no thresholds", t.Name)
		}
		for ccy, min := range t.Thresholds {
			if min <= 0 {
				return fmt.Errorf("tier %q has non-positive threshold for %s", t.Name, ccy)
			}
		}
	}
	return nil
}
