package stats

import (
	"errors"
	"testing"

	"neurofault/internal/model"
)

func sampleRuns() []model.FaultRunRecord {
	return []model.FaultRunRecord{
		{Key: "NoFault_None_0", Component: "None", Failure: "None", Counts: [][]int{{2, 1}, {0, 3}}, TotalSpikes: 6},
		{Key: "VTh_StuckAt1_1_0", Component: "VTh", Failure: "StuckAt1", Bit: 1, Counts: [][]int{{0, 1}, {0, 3}}, TotalSpikes: 4},
		{Key: "VTh_StuckAt0_3_1", Component: "VTh", Failure: "StuckAt0", Bit: 3, Neuron: 1, Skipped: true, SkipReason: "bit 3 of VTh is already 0"},
		{Key: "VMem_TransientBitFlip_5_1", Component: "VMem", Failure: "TransientBitFlip", Bit: 5, Neuron: 1, Counts: [][]int{{2, 1}, {0, 3}}, TotalSpikes: 6},
		{Key: "Weights_StuckAt1_1_0", Component: "Weights", Failure: "StuckAt1", Bit: 1, Counts: [][]int{{5, 1}, {4, 4}}, TotalSpikes: 14},
	}
}

func TestEffects(t *testing.T) {
	effects, err := Effects(sampleRuns(), "NoFault_None_0")
	if err != nil {
		t.Fatalf("effects: %v", err)
	}
	if len(effects) != 5 {
		t.Fatalf("expected 5 effects, got %d", len(effects))
	}

	if effects[0].Affected() || effects[0].Delta != 0 {
		t.Fatalf("baseline must not differ from itself: %+v", effects[0])
	}
	vth := effects[1]
	if vth.Delta != -2 || vth.MismatchedCycles != 1 || vth.MismatchedCounts != 1 {
		t.Fatalf("unexpected vth effect: %+v", vth)
	}
	skipped := effects[2]
	if !skipped.Skipped || skipped.Affected() || skipped.TotalSpikes != 6 {
		t.Fatalf("skipped run should mirror the baseline: %+v", skipped)
	}
	if effects[3].Affected() {
		t.Fatalf("masked transient should be unaffected: %+v", effects[3])
	}
	weights := effects[4]
	if weights.Delta != 8 || weights.MismatchedCycles != 2 || weights.MismatchedCounts != 3 {
		t.Fatalf("unexpected weights effect: %+v", weights)
	}
}

func TestEffectsCountsShapeMismatch(t *testing.T) {
	runs := []model.FaultRunRecord{
		{Key: "base", Counts: [][]int{{1, 1}, {1, 1}}},
		{Key: "short", Counts: [][]int{{1, 1}}},
	}
	effects, err := Effects(runs, "base")
	if err != nil {
		t.Fatalf("effects: %v", err)
	}
	if effects[1].MismatchedCycles != 1 || effects[1].MismatchedCounts != 2 {
		t.Fatalf("missing cycle should count as mismatched: %+v", effects[1])
	}
}

func TestEffectsRequiresBaseline(t *testing.T) {
	_, err := Effects(sampleRuns()[1:], "NoFault_None_0")
	if !errors.Is(err, ErrNoBaseline) {
		t.Fatalf("expected ErrNoBaseline, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	effects, err := Effects(sampleRuns(), "NoFault_None_0")
	if err != nil {
		t.Fatalf("effects: %v", err)
	}
	s := Summarize(effects)
	if s.Runs != 5 || s.Skipped != 1 || s.Affected != 2 || s.MaxAbsDelta != 8 {
		t.Fatalf("unexpected summary: %+v", s)
	}

	want := []ComponentSummary{
		{Component: "None", Runs: 1},
		{Component: "VMem", Runs: 1},
		{Component: "VTh", Runs: 2, Skipped: 1, Affected: 1},
		{Component: "Weights", Runs: 1, Affected: 1},
	}
	if len(s.Components) != len(want) {
		t.Fatalf("unexpected components: %+v", s.Components)
	}
	for i := range want {
		if s.Components[i] != want[i] {
			t.Fatalf("component %d: got %+v want %+v", i, s.Components[i], want[i])
		}
	}
}
