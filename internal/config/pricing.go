package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/janekbaraniewski/costwatch/internal/usage"
)

func PricingPath() string {
	return filepath.Join(ConfigDir(), "pricing.json")
}

// LoadPriceTable reads the externally supplied price table, falling back to
// the built-in rates when the file is absent. The owning context re-reads it
// and calls the engine's cost-recompute operation when the settings
// collaborator reports a change.
func LoadPriceTable() (usage.PriceTable, error) {
	return LoadPriceTableFrom(PricingPath())
}

func LoadPriceTableFrom(path string) (usage.PriceTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return usage.DefaultPriceTable(), nil
		}
		return usage.DefaultPriceTable(), fmt.Errorf("reading pricing: %w", err)
	}

	var table usage.PriceTable
	if err := json.Unmarshal(data, &table); err != nil {
		return usage.DefaultPriceTable(), fmt.Errorf("parsing pricing %s: %w", path, err)
	}
	if len(table) == 0 {
		return usage.DefaultPriceTable(), nil
	}
	return table, nil
}
