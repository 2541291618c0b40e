package usage

import (
	"strings"
	"time"
)

// ModelVariant is the closed set of model families the pricing table knows about.
// Free-form model identifiers from log records are mapped onto it by substring match.
type ModelVariant string

const (
	ModelOpus    ModelVariant = "opus"
	ModelSonnet  ModelVariant = "sonnet"
	ModelHaiku   ModelVariant = "haiku"
	ModelUnknown ModelVariant = "unknown"
)

// VariantFor maps a raw model identifier to a known variant. Order matters:
// some identifiers contain more than one family name, so the more specific
// families are checked first.
func VariantFor(modelID string) ModelVariant {
	lower := strings.ToLower(modelID)
	for _, family := range []ModelVariant{ModelOpus, ModelHaiku, ModelSonnet} {
		if strings.Contains(lower, string(family)) {
			return family
		}
	}
	return ModelUnknown
}

// Record is one assistant-usage event from a session log. Token counts default
// to zero for absent fields; a record always belongs to exactly one project and
// one model variant (possibly ModelUnknown).
type Record struct {
	Timestamp        time.Time
	Model            string
	Variant          ModelVariant
	SessionID        string
	Project          string
	InputTokens      uint64
	OutputTokens     uint64
	CacheReadTokens  uint64
	CacheWriteTokens uint64
}

// DayKey is the calendar-day cache key for a timestamp, in local time. The
// instant is normalized first: a record parsed in UTC and a local clock
// reading must agree on which day they fall in.
func DayKey(t time.Time) string {
	return t.In(time.Local).Format("2006-01-02")
}
