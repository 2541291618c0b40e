package usage

// TokenBreakdown is the per-model slice of an aggregate.
type TokenBreakdown struct {
	Input      uint64 `json:"input"`
	Output     uint64 `json:"output"`
	CacheRead  uint64 `json:"cache_read"`
	CacheWrite uint64 `json:"cache_write"`
}

func (b TokenBreakdown) plus(o TokenBreakdown) TokenBreakdown {
	return TokenBreakdown{
		Input:      b.Input + o.Input,
		Output:     b.Output + o.Output,
		CacheRead:  b.CacheRead + o.CacheRead,
		CacheWrite: b.CacheWrite + o.CacheWrite,
	}
}

// Aggregate is an additive summary of token usage over some set of records.
// Merging is field-wise addition, so it is associative and commutative: the
// merge of two aggregates equals the aggregate of the union of their records.
// Invariant: the top-level totals equal the sum over ByModel.
type Aggregate struct {
	Input      uint64                          `json:"input"`
	Output     uint64                          `json:"output"`
	CacheRead  uint64                          `json:"cache_read"`
	CacheWrite uint64                          `json:"cache_write"`
	Records    uint64                          `json:"records"`
	ByModel    map[ModelVariant]TokenBreakdown `json:"by_model"`
}

func NewAggregate() *Aggregate {
	return &Aggregate{ByModel: make(map[ModelVariant]TokenBreakdown)}
}

// Add folds one record into the aggregate in O(1). Unknown-model records
// count toward the raw totals (under ModelUnknown) but never toward cost,
// because ModelUnknown has no price-table entry.
func (a *Aggregate) Add(r Record) {
	a.Input += r.InputTokens
	a.Output += r.OutputTokens
	a.CacheRead += r.CacheReadTokens
	a.CacheWrite += r.CacheWriteTokens
	a.Records++
	a.ByModel[r.Variant] = a.ByModel[r.Variant].plus(TokenBreakdown{
		Input:      r.InputTokens,
		Output:     r.OutputTokens,
		CacheRead:  r.CacheReadTokens,
		CacheWrite: r.CacheWriteTokens,
	})
}

// Merge folds another aggregate into this one.
func (a *Aggregate) Merge(o *Aggregate) {
	if o == nil {
		return
	}
	a.Input += o.Input
	a.Output += o.Output
	a.CacheRead += o.CacheRead
	a.CacheWrite += o.CacheWrite
	a.Records += o.Records
	for variant, b := range o.ByModel {
		a.ByModel[variant] = a.ByModel[variant].plus(b)
	}
}

// Clone returns a deep copy, so published snapshots never alias cache state.
func (a *Aggregate) Clone() *Aggregate {
	out := NewAggregate()
	out.Merge(a)
	return out
}

// TotalTokens is the sum of all four token counters.
func (a *Aggregate) TotalTokens() uint64 {
	return a.Input + a.Output + a.CacheRead + a.CacheWrite
}

// Cost prices the aggregate with the given table. Rates are per 1,000 tokens.
func (a *Aggregate) Cost(table PriceTable) float64 {
	var total float64
	for variant, b := range a.ByModel {
		p, ok := table[variant]
		if !ok {
			continue
		}
		total += float64(b.Input)*p.Input/1000 +
			float64(b.Output)*p.Output/1000 +
			float64(b.CacheRead)*p.CacheRead/1000 +
			float64(b.CacheWrite)*p.CacheWrite/1000
	}
	return total
}

// CostByModel prices each variant independently, skipping unpriced ones.
func (a *Aggregate) CostByModel(table PriceTable) map[ModelVariant]float64 {
	out := make(map[ModelVariant]float64, len(a.ByModel))
	for variant, b := range a.ByModel {
		p, ok := table[variant]
		if !ok {
			continue
		}
		out[variant] = float64(b.Input)*p.Input/1000 +
			float64(b.Output)*p.Output/1000 +
			float64(b.CacheRead)*p.CacheRead/1000 +
			float64(b.CacheWrite)*p.CacheWrite/1000
	}
	return out
}

// CacheHitRate is cache_read / (input + cache_read + cache_write), as a
// fraction in [0,1]. Zero denominator reports 0.
func (a *Aggregate) CacheHitRate() float64 {
	denom := a.Input + a.CacheRead + a.CacheWrite
	if denom == 0 {
		return 0
	}
	return float64(a.CacheRead) / float64(denom)
}

// CacheSavings is the money saved by paying cache-read rates instead of input
// rates for cached reads. Deliberately unclamped: if a cache-read rate ever
// exceeds the input rate the "saving" is negative and reported as such.
func (a *Aggregate) CacheSavings(table PriceTable) float64 {
	var total float64
	for variant, b := range a.ByModel {
		p, ok := table[variant]
		if !ok {
			continue
		}
		total += float64(b.CacheRead) * (p.Input - p.CacheRead) / 1000
	}
	return total
}
