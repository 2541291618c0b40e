package engine

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/janekbaraniewski/costwatch/internal/cache"
	"github.com/janekbaraniewski/costwatch/internal/logs"
	"github.com/janekbaraniewski/costwatch/internal/quota"
	"github.com/janekbaraniewski/costwatch/internal/store"
	"github.com/janekbaraniewski/costwatch/internal/usage"
)

// coldStartThreshold is the daily-row count below which a refresh widens its
// reparse window from "today" to a full month of backfill.
const coldStartThreshold = 7

// Options tune the coordinator's cadences and retention.
type Options struct {
	RefreshInterval time.Duration // periodic reparse tick, default 120s
	QuotaInterval   time.Duration // quota poll cadence, default 5m
	RetentionDays   int           // daily-row horizon, default 90
}

func (o *Options) fill() {
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = 120 * time.Second
	}
	if o.QuotaInterval <= 0 {
		o.QuotaInterval = 5 * time.Minute
	}
	if o.RetentionDays <= 0 {
		o.RetentionDays = 90
	}
}

// Coordinator is the single authority over refresh cycles. One goroutine
// (Run) owns every mutation of the cache and the store; the quota poller is
// an independent task that only merges into the published snapshot. At most
// one cycle is ever in flight; triggers arriving mid-cycle are dropped, not
// queued, and the next tick or file event catches up.
type Coordinator struct {
	scanner *logs.Scanner
	cache   *cache.Cache
	store   *store.Store
	quota   *quota.Client // nil disables quota polling
	opts    Options

	priceMu sync.RWMutex
	prices  usage.PriceTable

	mu   sync.RWMutex
	snap Snapshot

	refreshing atomic.Bool
	trigger    chan struct{}

	now func() time.Time
}

// New wires the coordinator from its collaborators. Dependencies are passed
// in explicitly; there is no ambient global state.
func New(scanner *logs.Scanner, c *cache.Cache, s *store.Store, q *quota.Client, prices usage.PriceTable, opts Options) *Coordinator {
	opts.fill()
	if prices == nil {
		prices = usage.DefaultPriceTable()
	}
	return &Coordinator{
		scanner: scanner,
		cache:   c,
		store:   s,
		quota:   q,
		opts:    opts,
		prices:  prices,
		trigger: make(chan struct{}, 1),
		snap:    Snapshot{Loading: true},
		now:     time.Now,
	}
}

// Snapshot returns a value copy of the published view.
func (co *Coordinator) Snapshot() Snapshot {
	co.mu.RLock()
	defer co.mu.RUnlock()
	return cloneSnapshot(co.snap)
}

// Refresh requests a cycle. It reports false when a cycle is already in
// flight and the trigger was dropped.
func (co *Coordinator) Refresh() bool {
	if co.refreshing.Load() {
		return false
	}
	select {
	case co.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Bootstrap publishes the persisted summary before any log has been parsed,
// so consumers have numbers to show immediately on startup.
func (co *Coordinator) Bootstrap(ctx context.Context) error {
	sum, err := co.store.Summary(ctx)
	if err != nil {
		return err
	}
	co.mu.Lock()
	co.snap.Today.Cost = sum.TodayCost
	co.snap.Week.Cost = sum.WeekCost
	co.snap.Month.Cost = sum.MonthCost
	co.snap.AllTime.Cost = sum.AllTimeCost
	co.snap.CacheHitPercent = sum.CacheHitPercent
	co.snap.CacheSavings = sum.CacheSavings
	co.snap.LastUpdated = sum.UpdatedAt
	co.snap.Loading = true
	co.mu.Unlock()
	return nil
}

// Run drives the coordinator until the context is cancelled: one startup
// cycle, then periodic ticks and debounced triggers, with the quota poller
// running independently alongside.
func (co *Coordinator) Run(ctx context.Context) {
	if co.quota != nil {
		go co.quotaLoop(ctx)
	}

	co.RunCycle(ctx)

	ticker := time.NewTicker(co.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			co.RunCycle(ctx)
		case <-co.trigger:
			co.RunCycle(ctx)
		}
		// Triggers that landed while the cycle ran are dropped, not queued.
		select {
		case <-co.trigger:
		default:
		}
	}
}

// RunCycle executes one full refresh cycle, unless one is already in flight.
func (co *Coordinator) RunCycle(ctx context.Context) {
	if !co.refreshing.CompareAndSwap(false, true) {
		return
	}
	defer co.refreshing.Store(false)

	if err := co.refreshOnce(ctx); err != nil {
		log.Printf("engine: refresh cycle: %v", err)
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func (co *Coordinator) priceTable() usage.PriceTable {
	co.priceMu.RLock()
	defer co.priceMu.RUnlock()
	return co.prices
}

func (co *Coordinator) refreshOnce(ctx context.Context) error {
	now := co.now()
	dayStart := startOfDay(now)
	prices := co.priceTable()

	// Cold-start backfill: with fewer than seven cached days, widen the
	// window to a month so week/month figures are meaningful right away.
	parseFrom := dayStart
	if count, err := co.store.DailyCount(ctx); err != nil {
		return err
	} else if count < coldStartThreshold {
		parseFrom = dayStart.AddDate(0, -1, 0)
	}

	days := co.cache.RefreshDays(parseFrom, time.Time{})

	dayKeys := make([]string, 0, len(days))
	for key := range days {
		dayKeys = append(dayKeys, key)
	}
	sort.Strings(dayKeys)
	for _, key := range dayKeys {
		agg := days[key]
		entry := store.DailyEntry{
			DayKey:      key,
			Aggregate:   agg,
			TotalCost:   agg.Cost(prices),
			CostByModel: agg.CostByModel(prices),
		}
		if err := co.store.UpsertDaily(ctx, entry); err != nil {
			return err
		}
	}

	projects := make(map[usage.Window][]ProjectCost, 3)
	for _, window := range usage.Windows() {
		byProject := co.cache.RefreshProjects(window, now)

		entries := make([]store.ProjectEntry, 0, len(byProject))
		costs := make([]ProjectCost, 0, len(byProject))
		for project, agg := range byProject {
			cost := agg.Cost(prices)
			entries = append(entries, store.ProjectEntry{
				Project:   project,
				Aggregate: agg,
				TotalCost: cost,
			})
			costs = append(costs, ProjectCost{
				Project: project,
				Cost:    cost,
				Tokens:  agg.TotalTokens(),
			})
		}
		sort.Slice(costs, func(i, j int) bool {
			if costs[i].Cost != costs[j].Cost {
				return costs[i].Cost > costs[j].Cost
			}
			return costs[i].Project < costs[j].Project
		})
		if err := co.store.ReplaceProjectWindow(ctx, window, entries); err != nil {
			return err
		}
		projects[window] = costs
	}

	// Today's raw records drive the advisory heuristics only; nothing here
	// is persisted or correctness-critical.
	todayRecords := logs.ParseFiles(co.scanner.FilesSince(dayStart), dayStart, time.Time{})
	advice := RecommendModels(todayRecords, prices)

	if _, err := co.store.Cleanup(ctx, co.opts.RetentionDays); err != nil {
		return err
	}

	view, err := co.buildView(ctx, now, prices)
	if err != nil {
		return err
	}
	view.Projects = projects
	view.Advice = advice

	sum := store.Summary{
		TodayCost:       view.Today.Cost,
		WeekCost:        view.Week.Cost,
		MonthCost:       view.Month.Cost,
		AllTimeCost:     view.AllTime.Cost,
		CacheHitPercent: view.CacheHitPercent,
		CacheSavings:    view.CacheSavings,
		UpdatedAt:       now,
	}
	if err := co.store.SaveSummary(ctx, sum); err != nil {
		return err
	}

	co.publish(view, now)
	return nil
}

// buildView derives period totals and cache figures from the persisted daily
// rows, pricing aggregates at the current table.
func (co *Coordinator) buildView(ctx context.Context, now time.Time, prices usage.PriceTable) (Snapshot, error) {
	entries, err := co.store.DailyEntries(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	todayKey := usage.DayKey(now)
	weekFrom := usage.DayKey(now.AddDate(0, 0, -7))
	monthFrom := usage.DayKey(now.AddDate(0, -1, 0))

	all := usage.NewAggregate()
	week := usage.NewAggregate()
	month := usage.NewAggregate()
	today := usage.NewAggregate()

	for _, entry := range entries {
		all.Merge(entry.Aggregate)
		if entry.DayKey >= weekFrom {
			week.Merge(entry.Aggregate)
		}
		if entry.DayKey >= monthFrom {
			month.Merge(entry.Aggregate)
		}
		if entry.DayKey == todayKey {
			today.Merge(entry.Aggregate)
		}
	}

	view := Snapshot{
		Today:           PeriodTotals{Cost: today.Cost(prices), Tokens: today.TotalTokens()},
		Week:            PeriodTotals{Cost: week.Cost(prices), Tokens: week.TotalTokens()},
		Month:           PeriodTotals{Cost: month.Cost(prices), Tokens: month.TotalTokens()},
		AllTime:         PeriodTotals{Cost: all.Cost(prices), Tokens: all.TotalTokens()},
		CostByModel:     all.CostByModel(prices),
		CacheHitPercent: all.CacheHitRate() * 100,
		CacheSavings:    all.CacheSavings(prices),
	}

	if elapsed := now.Sub(startOfDay(now)); elapsed > time.Minute && view.Today.Cost > 0 {
		view.BurnRatePerHour = view.Today.Cost / elapsed.Hours()
	}

	return view, nil
}

// publish swaps in the post-cycle view atomically, preserving the quota
// fields the poller owns.
func (co *Coordinator) publish(view Snapshot, now time.Time) {
	co.mu.Lock()
	defer co.mu.Unlock()
	view.Quota = co.snap.Quota
	view.QuotaStatus = co.snap.QuotaStatus
	view.Pacing = co.snap.Pacing
	view.LastUpdated = now
	view.Loading = false
	co.snap = view
}

// RecomputeCosts re-prices the published view with a new table, without a
// reparse. The owning context calls this when the external settings
// collaborator reports a pricing change.
func (co *Coordinator) RecomputeCosts(ctx context.Context, table usage.PriceTable) error {
	if table == nil {
		return nil
	}
	co.priceMu.Lock()
	co.prices = table
	co.priceMu.Unlock()

	view, err := co.buildView(ctx, co.now(), table)
	if err != nil {
		return err
	}

	co.mu.Lock()
	defer co.mu.Unlock()
	view.Projects = co.snap.Projects
	view.Advice = co.snap.Advice
	view.Quota = co.snap.Quota
	view.QuotaStatus = co.snap.QuotaStatus
	view.Pacing = co.snap.Pacing
	view.LastUpdated = co.snap.LastUpdated
	view.Loading = co.snap.Loading
	co.snap = view
	return nil
}

func (co *Coordinator) quotaLoop(ctx context.Context) {
	co.fetchQuota(ctx)

	ticker := time.NewTicker(co.opts.QuotaInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			co.fetchQuota(ctx)
		}
	}
}

// fetchQuota polls the quota service and merges the result into the
// published snapshot. Failures become a status string; they never touch the
// log pipeline.
func (co *Coordinator) fetchQuota(ctx context.Context) {
	snap, err := co.quota.Fetch(ctx)

	co.mu.Lock()
	defer co.mu.Unlock()

	if err != nil {
		if errors.Is(err, quota.ErrThrottled) {
			return // previous snapshot stays current
		}
		co.snap.QuotaStatus = quotaStatusMessage(err)
		return
	}

	co.snap.Quota = snap.Buckets
	co.snap.QuotaStatus = ""
	co.snap.Pacing = nil
	if bucket, ok := snap.Buckets[quota.KindWeekly]; ok {
		if forecast, defined := quota.ForecastWeekly(bucket.UtilizationPercent, bucket.ResetAt, co.now()); defined {
			co.snap.Pacing = &forecast
		}
	}
}

func quotaStatusMessage(err error) string {
	switch {
	case errors.Is(err, quota.ErrNoCredential):
		return "quota unavailable: no credential configured"
	case errors.Is(err, quota.ErrUnauthorized):
		return "quota unavailable: credential expired or revoked"
	case errors.Is(err, quota.ErrRateLimited):
		return "quota unavailable: rate limited, retrying on next cycle"
	default:
		return "quota unavailable: " + err.Error()
	}
}
