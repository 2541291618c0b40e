package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Kind identifies one quota bucket reported by the remote service.
type Kind string

const (
	KindSession      Kind = "five_hour"
	KindWeekly       Kind = "seven_day"
	KindWeeklySonnet Kind = "seven_day_sonnet"
	KindWeeklyOpus   Kind = "seven_day_opus"
)

// Bucket is one quota kind's utilization. ResetAt is zero when the service
// reports no reset instant.
type Bucket struct {
	UtilizationPercent float64
	ResetAt            time.Time
}

// Snapshot is the full set of buckets from one fetch. Immutable once built;
// each fetch replaces it wholesale.
type Snapshot struct {
	FetchedAt time.Time
	Buckets   map[Kind]Bucket
}

var (
	// ErrNoCredential means the credential store produced no token.
	ErrNoCredential = errors.New("quota: no credential available")
	// ErrUnauthorized means the token was rejected (expired or revoked).
	ErrUnauthorized = errors.New("quota: credential rejected")
	// ErrRateLimited means the service asked us to back off.
	ErrRateLimited = errors.New("quota: rate limited")
	// ErrThrottled means the local limiter suppressed the fetch; the previous
	// snapshot stays current until the next cadence tick.
	ErrThrottled = errors.New("quota: fetch suppressed by local limiter")
)

// TokenSource supplies the bearer credential. How the token is obtained is
// opaque to this package; it is a string, or absent.
type TokenSource func() (string, error)

type Client struct {
	baseURL string
	token   TokenSource
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient builds a quota client that will never hit the service more often
// than minInterval, regardless of how often Fetch is called.
func NewClient(baseURL string, token TokenSource, minInterval time.Duration) *Client {
	if minInterval <= 0 {
		minInterval = time.Minute
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

type usageResponse struct {
	FiveHour       *usageBucket `json:"five_hour"`
	SevenDay       *usageBucket `json:"seven_day"`
	SevenDaySonnet *usageBucket `json:"seven_day_sonnet"`
	SevenDayOpus   *usageBucket `json:"seven_day_opus"`
}

type usageBucket struct {
	Utilization float64 `json:"utilization"`
	ResetsAt    string  `json:"resets_at"`
}

// Fetch requests current utilization figures. Remote failures come back as
// typed errors for the presentation layer; they never affect the log
// pipeline, which is fully independent of this client.
func (c *Client) Fetch(ctx context.Context) (Snapshot, error) {
	if !c.limiter.Allow() {
		return Snapshot{}, ErrThrottled
	}

	token, err := c.token()
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrNoCredential, err)
	}
	if token == "" {
		return Snapshot{}, ErrNoCredential
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/oauth/usage", nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("quota: creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("quota: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Snapshot{}, ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return Snapshot{}, ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Snapshot{}, fmt.Errorf("quota: service returned %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("quota: reading response: %w", err)
	}

	var usage usageResponse
	if err := json.Unmarshal(body, &usage); err != nil {
		return Snapshot{}, fmt.Errorf("quota: parsing response: %w", err)
	}

	return buildSnapshot(&usage, time.Now()), nil
}

func buildSnapshot(usage *usageResponse, now time.Time) Snapshot {
	snap := Snapshot{
		FetchedAt: now,
		Buckets:   make(map[Kind]Bucket),
	}
	apply := func(kind Kind, bucket *usageBucket) {
		if bucket == nil {
			return
		}
		b := Bucket{UtilizationPercent: bucket.Utilization}
		if t, ok := parseReset(bucket.ResetsAt); ok {
			// A reset instant already in the past means the reported
			// utilization is stale pre-reset data.
			if !t.After(now) {
				b.UtilizationPercent = 0
			}
			b.ResetAt = t
		}
		snap.Buckets[kind] = b
	}
	apply(KindSession, usage.FiveHour)
	apply(KindWeekly, usage.SevenDay)
	apply(KindWeeklySonnet, usage.SevenDaySonnet)
	apply(KindWeeklyOpus, usage.SevenDayOpus)
	return snap
}

func parseReset(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
