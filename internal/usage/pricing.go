package usage

// Price holds per-1,000-token rates in USD for one model variant.
type Price struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheRead  float64 `json:"cache_read"`
	CacheWrite float64 `json:"cache_write"`
}

// PriceTable maps model variants to their rates. Variants absent from the
// table (including ModelUnknown) contribute nothing to cost.
type PriceTable map[ModelVariant]Price

// RecordCost prices a single record. Unpriced variants cost nothing.
func RecordCost(r Record, table PriceTable) float64 {
	p, ok := table[r.Variant]
	if !ok {
		return 0
	}
	return float64(r.InputTokens)*p.Input/1000 +
		float64(r.OutputTokens)*p.Output/1000 +
		float64(r.CacheReadTokens)*p.CacheRead/1000 +
		float64(r.CacheWriteTokens)*p.CacheWrite/1000
}

// DefaultPriceTable returns the built-in rates, used until an external
// settings collaborator supplies its own table.
func DefaultPriceTable() PriceTable {
	return PriceTable{
		ModelOpus: {
			Input:      0.015,
			Output:     0.075,
			CacheRead:  0.0015,
			CacheWrite: 0.01875,
		},
		ModelSonnet: {
			Input:      0.003,
			Output:     0.015,
			CacheRead:  0.0003,
			CacheWrite: 0.00375,
		},
		ModelHaiku: {
			Input:      0.0008,
			Output:     0.004,
			CacheRead:  0.00008,
			CacheWrite: 0.001,
		},
	}
}
