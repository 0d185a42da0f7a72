package processor

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"optionsflow/models"
)

//go:embed combos.csv
var combosCSV string

// Taxonomy is the strategy rule table keyed by the six classification
// dimensions. Lookups are exact.
type Taxonomy struct {
	rules map[models.StrategyKey]models.StrategyRule
}

// LoadTaxonomy parses the embedded rule table. Duplicate keys are rejected
// so a table edit cannot silently shadow an existing strategy.
func LoadTaxonomy() (*Taxonomy, error) {
	return parseTaxonomy(combosCSV)
}

func parseTaxonomy(data string) (*Taxonomy, error) {
	reader := csv.NewReader(strings.NewReader(data))
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse strategy table: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("strategy table is empty")
	}

	t := &Taxonomy{rules: make(map[models.StrategyKey]models.StrategyRule, len(records)-1)}
	for i, rec := range records[1:] {
		if len(rec) != 9 {
			return nil, fmt.Errorf("strategy table row %d has %d columns, want 9", i+2, len(rec))
		}
		legs, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("strategy table row %d has invalid leg count %q", i+2, rec[0])
		}
		rule := models.StrategyRule{
			Key: models.StrategyKey{
				Legs:         legs,
				ContractType: rec[1],
				Strike:       rec[2],
				Expiry:       rec[3],
				SizeRatio:    rec[4],
				Side:         rec[5],
			},
			Name:      rec[6],
			View:      rec[7],
			ShortName: rec[8],
		}
		if _, exists := t.rules[rule.Key]; exists {
			return nil, fmt.Errorf("strategy table row %d duplicates key %+v", i+2, rule.Key)
		}
		t.rules[rule.Key] = rule
	}
	return t, nil
}

// Lookup returns the rule matching the key exactly.
func (t *Taxonomy) Lookup(key models.StrategyKey) (models.StrategyRule, bool) {
	rule, ok := t.rules[key]
	return rule, ok
}

// Size reports the number of rules in the table.
func (t *Taxonomy) Size() int {
	return len(t.rules)
}
