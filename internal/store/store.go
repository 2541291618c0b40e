package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/janekbaraniewski/costwatch/internal/usage"
)

// Store is the durable cache of daily aggregates, per-window project
// aggregates, and the single summary row. It is written only from the
// refresh-owning goroutine; no cross-context locking is needed.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the store at path. If the existing database cannot
// be opened or its schema cannot be initialized, the underlying files are
// deleted and the store is recreated empty; failure after that is returned to
// the caller, for whom it is fatal.
func Open(path string) (*Store, error) {
	store, err := open(path)
	if err == nil {
		return store, nil
	}

	log.Printf("store: resetting corrupt database at %s: %v", path, err)
	for _, suffix := range []string{"", "-wal", "-shm"} {
		os.Remove(path + suffix)
	}

	store, err = open(path)
	if err != nil {
		return nil, fmt.Errorf("store: reopening after reset: %w", err)
	}
	return store, nil
}

func open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: creating DB dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening DB: %w", err)
	}

	store := NewStore(db)
	if err := store.Init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS daily_usage (
			day_key TEXT PRIMARY KEY,
			aggregate TEXT NOT NULL,
			total_cost REAL NOT NULL,
			cost_by_model TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS project_usage (
			window TEXT NOT NULL,
			project_key TEXT NOT NULL,
			aggregate TEXT NOT NULL,
			total_cost REAL NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (window, project_key)
		);`,
		`CREATE TABLE IF NOT EXISTS summary (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			today_cost REAL NOT NULL,
			week_cost REAL NOT NULL,
			month_cost REAL NOT NULL,
			all_time_cost REAL NOT NULL,
			cache_hit_percent REAL NOT NULL,
			cache_savings REAL NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_project_usage_window ON project_usage(window);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}

	// A malformed file can still open and accept DDL; force a real read so a
	// corrupt database fails here and triggers the reset path.
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM daily_usage`).Scan(&n); err != nil {
		return fmt.Errorf("store: verifying schema: %w", err)
	}
	return nil
}

// DailyEntry is one cached day row: the day's aggregate plus costs priced at
// the time the row was last replaced.
type DailyEntry struct {
	DayKey      string
	Aggregate   *usage.Aggregate
	TotalCost   float64
	CostByModel map[usage.ModelVariant]float64
}

// ProjectEntry is one project's aggregate for a single reporting window.
type ProjectEntry struct {
	Project   string
	Aggregate *usage.Aggregate
	TotalCost float64
}

// Summary is the single rolling row shown immediately on startup, before any
// log has been parsed.
type Summary struct {
	TodayCost       float64
	WeekCost        float64
	MonthCost       float64
	AllTimeCost     float64
	CacheHitPercent float64
	CacheSavings    float64
	UpdatedAt       time.Time
}

// UpsertDaily inserts or replaces the row for one day wholesale.
func (s *Store) UpsertDaily(ctx context.Context, entry DailyEntry) error {
	aggJSON, err := json.Marshal(entry.Aggregate)
	if err != nil {
		return fmt.Errorf("store: marshal daily aggregate: %w", err)
	}
	costJSON, err := json.Marshal(entry.CostByModel)
	if err != nil {
		return fmt.Errorf("store: marshal daily costs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO daily_usage (day_key, aggregate, total_cost, cost_by_model, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(day_key) DO UPDATE SET
			aggregate = excluded.aggregate,
			total_cost = excluded.total_cost,
			cost_by_model = excluded.cost_by_model,
			updated_at = excluded.updated_at
	`, entry.DayKey, string(aggJSON), entry.TotalCost, string(costJSON), s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: upsert daily %s: %w", entry.DayKey, err)
	}
	return nil
}

// DailyEntries returns all cached day rows, oldest first.
func (s *Store) DailyEntries(ctx context.Context) ([]DailyEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day_key, aggregate, total_cost, cost_by_model
		FROM daily_usage ORDER BY day_key ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: query daily entries: %w", err)
	}
	defer rows.Close()

	var entries []DailyEntry
	for rows.Next() {
		var entry DailyEntry
		var aggJSON, costJSON string
		if err := rows.Scan(&entry.DayKey, &aggJSON, &entry.TotalCost, &costJSON); err != nil {
			return nil, fmt.Errorf("store: scan daily entry: %w", err)
		}
		entry.Aggregate = usage.NewAggregate()
		if err := json.Unmarshal([]byte(aggJSON), entry.Aggregate); err != nil {
			return nil, fmt.Errorf("store: unmarshal daily aggregate %s: %w", entry.DayKey, err)
		}
		if err := json.Unmarshal([]byte(costJSON), &entry.CostByModel); err != nil {
			return nil, fmt.Errorf("store: unmarshal daily costs %s: %w", entry.DayKey, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DailyCount reports how many day rows exist, for the cold-start backfill
// decision.
func (s *Store) DailyCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM daily_usage`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count daily entries: %w", err)
	}
	return n, nil
}

// ReplaceProjectWindow deletes every row for the window and inserts the fresh
// set in one transaction. Project rows are never merged incrementally; a
// record can move between windows between refreshes.
func (s *Store) ReplaceProjectWindow(ctx context.Context, window usage.Window, projects []ProjectEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin project replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM project_usage WHERE window = ?`, string(window)); err != nil {
		return fmt.Errorf("store: clear project window %s: %w", window, err)
	}

	now := s.now().UTC().Format(time.RFC3339Nano)
	for _, p := range projects {
		aggJSON, err := json.Marshal(p.Aggregate)
		if err != nil {
			return fmt.Errorf("store: marshal project aggregate: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO project_usage (window, project_key, aggregate, total_cost, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, string(window), p.Project, string(aggJSON), p.TotalCost, now); err != nil {
			return fmt.Errorf("store: insert project %s/%s: %w", window, p.Project, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit project replace: %w", err)
	}
	return nil
}

// ProjectsForWindow returns the cached project rows for one window, highest
// cost first.
func (s *Store) ProjectsForWindow(ctx context.Context, window usage.Window) ([]ProjectEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_key, aggregate, total_cost
		FROM project_usage WHERE window = ? ORDER BY total_cost DESC, project_key ASC
	`, string(window))
	if err != nil {
		return nil, fmt.Errorf("store: query projects %s: %w", window, err)
	}
	defer rows.Close()

	var projects []ProjectEntry
	for rows.Next() {
		var p ProjectEntry
		var aggJSON string
		if err := rows.Scan(&p.Project, &aggJSON, &p.TotalCost); err != nil {
			return nil, fmt.Errorf("store: scan project entry: %w", err)
		}
		p.Aggregate = usage.NewAggregate()
		if err := json.Unmarshal([]byte(aggJSON), p.Aggregate); err != nil {
			return nil, fmt.Errorf("store: unmarshal project aggregate %s: %w", p.Project, err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// Summary returns the rolling summary row, creating the default row if none
// exists yet.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	var sum Summary
	var updated string
	err := s.db.QueryRowContext(ctx, `
		SELECT today_cost, week_cost, month_cost, all_time_cost, cache_hit_percent, cache_savings, updated_at
		FROM summary WHERE id = 1
	`).Scan(&sum.TodayCost, &sum.WeekCost, &sum.MonthCost, &sum.AllTimeCost,
		&sum.CacheHitPercent, &sum.CacheSavings, &updated)
	if err == sql.ErrNoRows {
		sum = Summary{UpdatedAt: s.now().UTC()}
		if err := s.SaveSummary(ctx, sum); err != nil {
			return Summary{}, err
		}
		return sum, nil
	}
	if err != nil {
		return Summary{}, fmt.Errorf("store: query summary: %w", err)
	}
	if t, perr := time.Parse(time.RFC3339Nano, updated); perr == nil {
		sum.UpdatedAt = t
	}
	return sum, nil
}

// SaveSummary replaces the summary row atomically.
func (s *Store) SaveSummary(ctx context.Context, sum Summary) error {
	updated := sum.UpdatedAt
	if updated.IsZero() {
		updated = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO summary (id, today_cost, week_cost, month_cost, all_time_cost, cache_hit_percent, cache_savings, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			today_cost = excluded.today_cost,
			week_cost = excluded.week_cost,
			month_cost = excluded.month_cost,
			all_time_cost = excluded.all_time_cost,
			cache_hit_percent = excluded.cache_hit_percent,
			cache_savings = excluded.cache_savings,
			updated_at = excluded.updated_at
	`, sum.TodayCost, sum.WeekCost, sum.MonthCost, sum.AllTimeCost,
		sum.CacheHitPercent, sum.CacheSavings, updated.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: save summary: %w", err)
	}
	return nil
}

// Cleanup prunes day rows beyond the retention horizon, keeping the
// retentionDays most recent day keys.
func (s *Store) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM daily_usage WHERE day_key NOT IN (
			SELECT day_key FROM daily_usage ORDER BY day_key DESC LIMIT ?
		)
	`, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("store: cleanup: %w", err)
	}
	removed, _ := res.RowsAffected()
	return removed, nil
}
