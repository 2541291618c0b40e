package engine

import (
	"testing"

	"github.com/janekbaraniewski/costwatch/internal/usage"
)

func advisorRecord(variant usage.ModelVariant, out uint64) usage.Record {
	return usage.Record{
		Model:        string(variant),
		Variant:      variant,
		InputTokens:  100,
		OutputTokens: out,
	}
}

func TestRecommendModelsFlagsPricierSmallTasks(t *testing.T) {
	records := []usage.Record{
		advisorRecord(usage.ModelOpus, 100),   // small task on the priciest model
		advisorRecord(usage.ModelHaiku, 200),  // small task already cheap
		advisorRecord(usage.ModelOpus, 5000),  // large task, opus only
		advisorRecord(usage.ModelSonnet, 120), // small
	}

	advice := RecommendModels(records, usage.DefaultPriceTable())
	if len(advice) != 1 {
		t.Fatalf("advice = %+v, want exactly one bucket", advice)
	}
	if advice[0].Size != TaskSmall || advice[0].Recommended != usage.ModelHaiku {
		t.Fatalf("advice = %+v", advice[0])
	}
	if advice[0].Requests != 3 {
		t.Fatalf("requests = %d, want 3", advice[0].Requests)
	}
	if advice[0].Spend <= 0 {
		t.Fatalf("spend = %v", advice[0].Spend)
	}
}

func TestRecommendModelsSilentWhenAlreadyCheapest(t *testing.T) {
	records := []usage.Record{
		advisorRecord(usage.ModelHaiku, 100),
		advisorRecord(usage.ModelHaiku, 300),
	}
	if advice := RecommendModels(records, usage.DefaultPriceTable()); len(advice) != 0 {
		t.Fatalf("advice = %+v, want none", advice)
	}
}

func TestRecommendModelsIgnoresUnpricedVariants(t *testing.T) {
	records := []usage.Record{
		advisorRecord(usage.ModelUnknown, 100),
	}
	if advice := RecommendModels(records, usage.DefaultPriceTable()); len(advice) != 0 {
		t.Fatalf("advice = %+v, want none for unpriced traffic", advice)
	}
}

func TestRecommendModelsEmptyInput(t *testing.T) {
	if advice := RecommendModels(nil, usage.DefaultPriceTable()); advice != nil {
		t.Fatalf("advice = %+v, want nil", advice)
	}
}
