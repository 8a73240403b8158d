package stats

import (
	"errors"
	"sort"

	"neurofault/internal/model"
)

var ErrNoBaseline = errors.New("campaign has no baseline run")

// RunEffect compares one fault run against the campaign baseline.
type RunEffect struct {
	Key       string `json:"key"`
	Component string `json:"component"`
	Failure   string `json:"failure"`
	Bit       uint32 `json:"bit"`
	Neuron    int    `json:"neuron"`
	Skipped   bool   `json:"skipped"`

	TotalSpikes int `json:"total_spikes"`
	Delta       int `json:"delta"`
	// MismatchedCycles counts cycles whose per-neuron counts differ from
	// the baseline; MismatchedCounts counts differing (cycle, neuron) cells.
	MismatchedCycles int `json:"mismatched_cycles"`
	MismatchedCounts int `json:"mismatched_counts"`
}

func (e RunEffect) Affected() bool {
	return e.MismatchedCounts > 0
}

type ComponentSummary struct {
	Component string `json:"component"`
	Runs      int    `json:"runs"`
	Skipped   int    `json:"skipped"`
	Affected  int    `json:"affected"`
}

type Summary struct {
	Runs        int                `json:"runs"`
	Skipped     int                `json:"skipped"`
	Affected    int                `json:"affected"`
	Components  []ComponentSummary `json:"components"`
	MaxAbsDelta int                `json:"max_abs_delta"`
}

// Effects measures every run against the run stored under baselineKey. The
// baseline itself is included with zero deltas. Skipped runs left the network
// unchanged and are reported as unaffected.
func Effects(runs []model.FaultRunRecord, baselineKey string) ([]RunEffect, error) {
	var baseline *model.FaultRunRecord
	for i := range runs {
		if runs[i].Key == baselineKey {
			baseline = &runs[i]
			break
		}
	}
	if baseline == nil {
		return nil, ErrNoBaseline
	}

	effects := make([]RunEffect, 0, len(runs))
	for _, r := range runs {
		e := RunEffect{
			Key:       r.Key,
			Component: r.Component,
			Failure:   r.Failure,
			Bit:       r.Bit,
			Neuron:    r.Neuron,
			Skipped:   r.Skipped,
		}
		if r.Skipped {
			e.TotalSpikes = baseline.TotalSpikes
			effects = append(effects, e)
			continue
		}
		e.TotalSpikes = r.TotalSpikes
		e.Delta = r.TotalSpikes - baseline.TotalSpikes
		e.MismatchedCycles, e.MismatchedCounts = mismatches(baseline.Counts, r.Counts)
		effects = append(effects, e)
	}
	return effects, nil
}

func mismatches(want, got [][]int) (cycles, counts int) {
	n := max(len(want), len(got))
	for c := 0; c < n; c++ {
		var w, g []int
		if c < len(want) {
			w = want[c]
		}
		if c < len(got) {
			g = got[c]
		}
		diff := 0
		for i := 0; i < max(len(w), len(g)); i++ {
			if i >= len(w) || i >= len(g) || w[i] != g[i] {
				diff++
			}
		}
		if diff > 0 {
			cycles++
			counts += diff
		}
	}
	return cycles, counts
}

func Summarize(effects []RunEffect) Summary {
	var s Summary
	byComponent := map[string]*ComponentSummary{}
	for _, e := range effects {
		s.Runs++
		cs, ok := byComponent[e.Component]
		if !ok {
			cs = &ComponentSummary{Component: e.Component}
			byComponent[e.Component] = cs
		}
		cs.Runs++
		if e.Skipped {
			s.Skipped++
			cs.Skipped++
		}
		if e.Affected() {
			s.Affected++
			cs.Affected++
		}
		s.MaxAbsDelta = max(s.MaxAbsDelta, abs(e.Delta))
	}

	s.Components = make([]ComponentSummary, 0, len(byComponent))
	for _, cs := range byComponent {
		s.Components = append(s.Components, *cs)
	}
	sort.Slice(s.Components, func(i, j int) bool {
		return s.Components[i].Component < s.Components[j].Component
	})
	return s
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
