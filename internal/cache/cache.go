package cache

import (
	"sync"
	"time"

	"github.com/janekbaraniewski/costwatch/internal/logs"
	"github.com/janekbaraniewski/costwatch/internal/usage"
)

// Cache holds the process-lifetime aggregation state: a per-day map valid for
// the current calendar day and independent per-project maps, one per
// reporting window. Only the refresh-owning goroutine mutates it.
type Cache struct {
	scanner *logs.Scanner

	mu       sync.Mutex
	day      string // calendar day the per-day cache was built on
	days     map[string]*usage.Aggregate
	projects map[usage.Window]map[string]*usage.Aggregate
	reparses int

	now func() time.Time
}

func New(scanner *logs.Scanner) *Cache {
	return &Cache{
		scanner:  scanner,
		days:     make(map[string]*usage.Aggregate),
		projects: make(map[usage.Window]map[string]*usage.Aggregate),
		now:      time.Now,
	}
}

// RefreshDays brings the per-day map up to date for records in [start,end)
// and returns a copy of it.
//
// The cycle follows a strict order: a day rollover clears both the per-day
// cache and the scanner's change table; if no file changed since the last
// pass and the cache is warm, the cached map is returned untouched (the cheap
// path); otherwise the per-day map is rebuilt from scratch by reparsing every
// file overlapping the window, not just the changed ones. A changed file can
// back-date records into a day that was already counted, so daily buckets
// are wholesale-replaced rather than merged to rule out double counting.
func (c *Cache) RefreshDays(start, end time.Time) map[string]*usage.Aggregate {
	c.mu.Lock()
	defer c.mu.Unlock()

	today := usage.DayKey(c.now())
	if c.day != today {
		c.days = make(map[string]*usage.Aggregate)
		c.scanner.ResetSeen()
		c.day = today
	}

	files := c.scanner.FilesSince(start)
	changed := c.scanner.Changed(files)
	if len(changed) == 0 && len(c.days) > 0 {
		return cloneDayMap(c.days)
	}

	fresh := make(map[string]*usage.Aggregate)
	for _, r := range logs.ParseFiles(files, start, end) {
		key := usage.DayKey(r.Timestamp)
		agg, ok := fresh[key]
		if !ok {
			agg = usage.NewAggregate()
			fresh[key] = agg
		}
		agg.Add(r)
	}
	c.reparses++
	c.days = fresh
	c.scanner.MarkSeen(files)

	return cloneDayMap(c.days)
}

// RefreshProjects rebuilds the per-project aggregate for one window and
// returns a copy. Project maps are wholesale-replaced every refresh cycle;
// merging across cycles would double-count records that moved between
// windows.
func (c *Cache) RefreshProjects(window usage.Window, now time.Time) map[string]*usage.Aggregate {
	start := window.Start(now)
	files := c.scanner.FilesSince(start)

	fresh := make(map[string]*usage.Aggregate)
	for _, r := range logs.ParseFiles(files, start, time.Time{}) {
		agg, ok := fresh[r.Project]
		if !ok {
			agg = usage.NewAggregate()
			fresh[r.Project] = agg
		}
		agg.Add(r)
	}

	c.mu.Lock()
	c.projects[window] = fresh
	c.mu.Unlock()

	return cloneDayMap(fresh)
}

// Reparses reports how many full day-map rebuilds have run. Used to verify
// that untouched files produce zero reparses.
func (c *Cache) Reparses() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reparses
}

func cloneDayMap(in map[string]*usage.Aggregate) map[string]*usage.Aggregate {
	out := make(map[string]*usage.Aggregate, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}
