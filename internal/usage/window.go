package usage

import "time"

// Window is one of the three fixed reporting periods used for project-cost
// snapshots. The three are tracked as independent snapshots, never derived
// from one another.
type Window string

const (
	WindowWeek    Window = "week"
	WindowMonth   Window = "month"
	WindowAllTime Window = "all-time"
)

func Windows() []Window {
	return []Window{WindowWeek, WindowMonth, WindowAllTime}
}

// Start returns the lower bound of the window relative to now. The all-time
// window has no lower bound.
func (w Window) Start(now time.Time) time.Time {
	switch w {
	case WindowWeek:
		return now.AddDate(0, 0, -7)
	case WindowMonth:
		return now.AddDate(0, -1, 0)
	default:
		return time.Time{}
	}
}
