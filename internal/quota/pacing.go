package quota

import (
	"fmt"
	"time"
)

// Severity is the tri-state pacing classification. Only warning and critical
// carry a user-facing message; safe is silent.
type Severity string

const (
	SeveritySafe     Severity = "safe"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const weeklyPeriod = 7 * 24 * time.Hour

// Forecast is a pacing projection for the rolling weekly quota.
type Forecast struct {
	BurnRatePerHour       float64 // percent per hour
	ProjectedHoursToLimit float64
	HoursUntilReset       float64
	Severity              Severity
	Message               string
}

// ForecastWeekly projects time-to-exhaustion from the current weekly
// utilization and its reset instant. The period is assumed to have started
// seven days before the reset. The second return is false when no forecast
// can be made: unknown reset, a period that has not started, or zero usage
// (no burn rate can be projected from nothing).
//
// Classification: critical when the projected time to the limit is at most
// six hours; warning when the limit would be hit strictly before the reset.
// Equal projected and reset horizons classify as safe.
func ForecastWeekly(utilizationPercent float64, resetAt, now time.Time) (Forecast, bool) {
	if resetAt.IsZero() {
		return Forecast{}, false
	}

	periodStart := resetAt.Add(-weeklyPeriod)
	elapsed := now.Sub(periodStart).Hours()
	if elapsed <= 0 {
		return Forecast{}, false
	}
	if utilizationPercent <= 0 {
		return Forecast{}, false
	}

	burn := utilizationPercent / elapsed
	remaining := 100 - utilizationPercent

	projected := 0.0
	if remaining > 0 {
		projected = remaining / burn
	}

	f := Forecast{
		BurnRatePerHour:       burn,
		ProjectedHoursToLimit: projected,
		HoursUntilReset:       resetAt.Sub(now).Hours(),
	}

	switch {
	case projected <= 6:
		f.Severity = SeverityCritical
		f.Message = fmt.Sprintf("On pace to hit the weekly limit in %.1fh", projected)
	case projected < f.HoursUntilReset:
		f.Severity = SeverityWarning
		f.Message = fmt.Sprintf("On pace to hit the weekly limit %.1fh before it resets", f.HoursUntilReset-projected)
	default:
		f.Severity = SeveritySafe
	}

	return f, true
}
