package engine

import (
	"time"

	"github.com/janekbaraniewski/costwatch/internal/quota"
	"github.com/janekbaraniewski/costwatch/internal/usage"
)

// PeriodTotals is the cost and token volume for one reporting period.
type PeriodTotals struct {
	Cost   float64
	Tokens uint64
}

// ProjectCost is one project's share of a window, highest-cost first in the
// published slice.
type ProjectCost struct {
	Project string
	Cost    float64
	Tokens  uint64
}

// Snapshot is the immutable view published after each refresh cycle. Readers
// receive a value copy and see either the pre- or fully-post-cycle state,
// never a partial mix.
type Snapshot struct {
	Today   PeriodTotals
	Week    PeriodTotals
	Month   PeriodTotals
	AllTime PeriodTotals

	CostByModel map[usage.ModelVariant]float64
	Projects    map[usage.Window][]ProjectCost

	CacheHitPercent float64
	CacheSavings    float64
	BurnRatePerHour float64

	Advice []Advice

	Quota       map[quota.Kind]quota.Bucket
	QuotaStatus string
	Pacing      *quota.Forecast

	LastUpdated time.Time
	Loading     bool
}

func cloneSnapshot(s Snapshot) Snapshot {
	out := s
	out.CostByModel = make(map[usage.ModelVariant]float64, len(s.CostByModel))
	for k, v := range s.CostByModel {
		out.CostByModel[k] = v
	}
	out.Projects = make(map[usage.Window][]ProjectCost, len(s.Projects))
	for w, list := range s.Projects {
		out.Projects[w] = append([]ProjectCost(nil), list...)
	}
	out.Quota = make(map[quota.Kind]quota.Bucket, len(s.Quota))
	for k, v := range s.Quota {
		out.Quota[k] = v
	}
	out.Advice = append([]Advice(nil), s.Advice...)
	if s.Pacing != nil {
		pacing := *s.Pacing
		out.Pacing = &pacing
	}
	return out
}
