package engine

import (
	"sort"

	"github.com/samber/lo"

	"github.com/janekbaraniewski/costwatch/internal/usage"
)

// TaskSize buckets today's requests by output volume. The thresholds are
// heuristic; the advisor is advisory output only and never persisted.
type TaskSize string

const (
	TaskSmall  TaskSize = "small"
	TaskMedium TaskSize = "medium"
	TaskLarge  TaskSize = "large"
)

const (
	smallTaskMaxOutput  = 500
	mediumTaskMaxOutput = 2000
)

// Advice suggests a cheaper model for one task-size bucket, based on what
// today's traffic actually used.
type Advice struct {
	Size        TaskSize
	Requests    int
	Spend       float64
	Recommended usage.ModelVariant
}

func taskSize(r usage.Record) TaskSize {
	switch {
	case r.OutputTokens < smallTaskMaxOutput:
		return TaskSmall
	case r.OutputTokens < mediumTaskMaxOutput:
		return TaskMedium
	default:
		return TaskLarge
	}
}

// RecommendModels inspects today's raw records and, per task-size bucket,
// recommends the cheapest priced variant that bucket already uses. A bucket
// that only ever uses its cheapest variant produces no advice.
func RecommendModels(records []usage.Record, table usage.PriceTable) []Advice {
	buckets := lo.GroupBy(records, func(r usage.Record) TaskSize { return taskSize(r) })

	var out []Advice
	for size, recs := range buckets {
		variants := lo.Uniq(lo.Map(recs, func(r usage.Record, _ int) usage.ModelVariant {
			return r.Variant
		}))

		cheapest, found := cheapestPriced(variants, table)
		if !found {
			continue
		}

		// Advice only matters when the bucket mixes in something pricier.
		pricier := lo.SomeBy(variants, func(v usage.ModelVariant) bool {
			p, ok := table[v]
			return ok && v != cheapest && outputRate(p) > outputRate(table[cheapest])
		})
		if !pricier {
			continue
		}

		spend := lo.SumBy(recs, func(r usage.Record) float64 {
			return usage.RecordCost(r, table)
		})
		out = append(out, Advice{
			Size:        size,
			Requests:    len(recs),
			Spend:       spend,
			Recommended: cheapest,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Size < out[j].Size })
	return out
}

func outputRate(p usage.Price) float64 {
	return p.Input + p.Output
}

func cheapestPriced(variants []usage.ModelVariant, table usage.PriceTable) (usage.ModelVariant, bool) {
	var best usage.ModelVariant
	found := false
	for _, v := range variants {
		p, ok := table[v]
		if !ok {
			continue
		}
		if !found || outputRate(p) < outputRate(table[best]) {
			best = v
			found = true
		}
	}
	return best, found
}
