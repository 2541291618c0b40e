package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/janekbaraniewski/costwatch/internal/logs"
	"github.com/janekbaraniewski/costwatch/internal/usage"
)

func writeLog(t *testing.T, root, name, content string) string {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func usageLine(ts, cwd string, in, out int) string {
	return `{"type":"assistant","sessionId":"s1","cwd":"` + cwd + `","timestamp":"` + ts +
		`","message":{"model":"claude-sonnet-4","usage":{"input_tokens":` + itoa(in) +
		`,"output_tokens":` + itoa(out) + `}}}` + "\n"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// dayKeyOf buckets an RFC3339 fixture timestamp the same way the parser
// pipeline does, so expectations hold in any host timezone.
func dayKeyOf(t *testing.T, ts string) string {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		t.Fatal(err)
	}
	return usage.DayKey(parsed)
}

func newTestCache(t *testing.T, root string) *Cache {
	t.Helper()
	c := New(logs.NewScanner(root))
	c.now = func() time.Time {
		return time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	}
	return c
}

func TestRefreshDaysBucketsByDay(t *testing.T) {
	root := t.TempDir()
	writeLog(t, root, "p1/a.jsonl",
		usageLine("2026-03-01T10:00:00Z", "/work/a", 100, 50)+
			usageLine("2026-03-02T10:00:00Z", "/work/a", 10, 5))

	c := newTestCache(t, root)
	days := c.RefreshDays(time.Time{}, time.Time{})

	if len(days) != 2 {
		t.Fatalf("got %d day buckets, want 2: %v", len(days), days)
	}
	day1 := dayKeyOf(t, "2026-03-01T10:00:00Z")
	day2 := dayKeyOf(t, "2026-03-02T10:00:00Z")
	if days[day1].Input != 100 || days[day2].Input != 10 {
		t.Fatalf("day buckets wrong: %+v", days)
	}
}

func TestRefreshDaysCheapPathWhenUnchanged(t *testing.T) {
	root := t.TempDir()
	writeLog(t, root, "p1/a.jsonl", usageLine("2026-03-02T10:00:00Z", "/work/a", 1, 1))

	c := newTestCache(t, root)

	first := c.RefreshDays(time.Time{}, time.Time{})
	if c.Reparses() != 1 {
		t.Fatalf("reparses after first refresh = %d", c.Reparses())
	}

	second := c.RefreshDays(time.Time{}, time.Time{})
	if c.Reparses() != 1 {
		t.Fatalf("untouched files caused a reparse: %d", c.Reparses())
	}

	if len(first) != len(second) {
		t.Fatalf("cheap path changed results: %v vs %v", first, second)
	}
	for key, agg := range first {
		other := second[key]
		if other == nil || other.Input != agg.Input || other.Output != agg.Output ||
			other.Records != agg.Records {
			t.Fatalf("idempotent rescan mismatch for %s: %+v vs %+v", key, agg, other)
		}
	}
}

func TestRefreshDaysPicksUpTouchedFile(t *testing.T) {
	root := t.TempDir()
	path := writeLog(t, root, "p1/a.jsonl", usageLine("2026-03-02T10:00:00Z", "/work/a", 1, 1))

	c := newTestCache(t, root)
	c.RefreshDays(time.Time{}, time.Time{})

	// Append a record and bump the mtime past the recorded value.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(usageLine("2026-03-02T11:00:00Z", "/work/a", 50, 50))
	f.Close()
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	days := c.RefreshDays(time.Time{}, time.Time{})
	if c.Reparses() != 2 {
		t.Fatalf("touched file did not trigger reparse: %d", c.Reparses())
	}
	key := dayKeyOf(t, "2026-03-02T10:00:00Z")
	if days[key].Input != 51 {
		t.Fatalf("appended record not reflected: %+v", days[key])
	}
}

func TestRefreshDaysDayRolloverInvalidates(t *testing.T) {
	root := t.TempDir()
	writeLog(t, root, "p1/a.jsonl", usageLine("2026-03-02T10:00:00Z", "/work/a", 1, 1))

	c := New(logs.NewScanner(root))
	day := time.Date(2026, time.March, 2, 23, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return day }

	c.RefreshDays(time.Time{}, time.Time{})
	if c.Reparses() != 1 {
		t.Fatalf("reparses = %d", c.Reparses())
	}

	// Same files, but the wall-clock day rolled over: full reparse.
	day = day.Add(24 * time.Hour)
	c.RefreshDays(time.Time{}, time.Time{})
	if c.Reparses() != 2 {
		t.Fatalf("day rollover did not force reparse: %d", c.Reparses())
	}
}

func TestRefreshProjectsGroupsByWorkingDirectory(t *testing.T) {
	root := t.TempDir()
	writeLog(t, root, "p1/a.jsonl",
		usageLine("2026-03-02T10:00:00Z", "/work/alpha", 100, 0)+
			usageLine("2026-03-02T10:01:00Z", "/work/beta", 200, 0))
	writeLog(t, root, "p2/b.jsonl", usageLine("2026-03-02T10:02:00Z", "/work/alpha", 1, 0))

	c := newTestCache(t, root)
	projects := c.RefreshProjects(usage.WindowAllTime, c.now())

	if len(projects) != 2 {
		t.Fatalf("got %d projects, want 2: %v", len(projects), projects)
	}
	if projects["/work/alpha"].Input != 101 || projects["/work/beta"].Input != 200 {
		t.Fatalf("project aggregates wrong: %+v", projects)
	}
}

func TestRefreshProjectsWholesaleReplace(t *testing.T) {
	root := t.TempDir()
	writeLog(t, root, "p1/a.jsonl", usageLine("2026-03-02T10:00:00Z", "/work/alpha", 5, 5))

	c := newTestCache(t, root)
	c.RefreshProjects(usage.WindowAllTime, c.now())
	projects := c.RefreshProjects(usage.WindowAllTime, c.now())

	// Two refreshes over the same file must not double-count.
	if projects["/work/alpha"].Input != 5 {
		t.Fatalf("project window merged instead of replaced: %+v", projects["/work/alpha"])
	}
}
