// Package campaign drives fault-injection campaigns: it enumerates fault
// configurations, runs every input cycle through a faulted copy of a base
// network and records per-neuron spike counts.
package campaign

import (
	"errors"
	"fmt"
	"math/rand"

	"neurofault/internal/fault"
	"neurofault/internal/network"
	"neurofault/internal/nn"
)

// BaselineKey names the fault-free reference run.
const BaselineKey = "NoFault_None_0"

type Options struct {
	Components []fault.Component
	Failures   []fault.Kind
	// BitRange bounds the random bit position to [0, BitRange).
	BitRange  int
	Cycles    int
	Seed      int64
	Workers   int
	Transient fault.TransientMode
	Baseline  bool
	// Layer is the index of the layer receiving the faults.
	Layer     int
	OutputDir string
}

// Job is one planned fault run.
type Job struct {
	Key        string
	Config     fault.Config
	Address    fault.Address
	Skipped    bool
	SkipReason string
}

// Plan draws, for every component, one random bit and one random neuron (and
// matrix column) and pairs them with every failure kind. Stuck-at runs whose
// target bit already holds the stuck value are marked skipped.
func Plan(base *network.Network, opts Options) ([]Job, error) {
	if opts.Layer < 0 || opts.Layer >= base.NumLayers() {
		return nil, fmt.Errorf("fault layer %d out of range [0,%d)", opts.Layer, base.NumLayers())
	}
	if opts.BitRange <= 0 || opts.BitRange > 64 {
		return nil, fmt.Errorf("bit range must be in (0, 64], got %d", opts.BitRange)
	}
	layer := base.Layers()[opts.Layer]
	rng := rand.New(rand.NewSource(opts.Seed))

	var jobs []Job
	if opts.Baseline {
		jobs = append(jobs, Job{Key: BaselineKey, Config: fault.NoFault()})
	}

	seen := make(map[string]bool)
	for _, comp := range opts.Components {
		if comp == fault.ComponentNone {
			continue
		}
		bit := uint32(rng.Intn(opts.BitRange))
		neuron := rng.Intn(layer.NumNeurons())
		col := 0
		switch comp {
		case fault.ComponentWeights:
			col = rng.Intn(layer.InputWidth())
		case fault.ComponentIntraWeights:
			col = rng.Intn(layer.NumNeurons())
		}

		for _, kind := range opts.Failures {
			if kind == fault.KindNone {
				continue
			}
			cfg := fault.NewConfig([]fault.Component{comp}, fault.NewFailure(kind, bit), neuron).
				WithTransientMode(opts.Transient)
			if comp.IsMatrix() {
				cfg = cfg.WithCell(neuron, col)
			}
			addrs := cfg.Addresses(layer.NumNeurons())
			job := Job{Key: cfg.Name(), Config: cfg, Address: addrs[0]}
			if seen[job.Key] {
				continue
			}
			seen[job.Key] = true

			skip, reason, err := useless(layer, job.Address, kind)
			if err != nil {
				return nil, err
			}
			job.Skipped, job.SkipReason = skip, reason
			jobs = append(jobs, job)
		}
	}
	if len(jobs) == 0 {
		return nil, errors.New("campaign has nothing to run")
	}
	return jobs, nil
}

// useless reports whether a stuck-at fault cannot change a static target
// because the bit already holds the stuck value. State that evolves during a
// run (VMem, Ts, PrevSpikes) is never skipped.
func useless(layer *nn.Layer, addr fault.Address, kind fault.Kind) (bool, string, error) {
	switch addr.Component {
	case fault.ComponentVMem, fault.ComponentTs, fault.ComponentPrevSpikes:
		return false, "", nil
	}
	if kind != fault.KindStuckAt0 && kind != fault.KindStuckAt1 {
		return false, "", nil
	}
	bits, err := layer.BitsAt(addr)
	if err != nil {
		return false, "", err
	}
	set := fault.BitAt(bits, addr.Bit)
	if kind == fault.KindStuckAt0 && !set {
		return true, fmt.Sprintf("bit %d of %s is already 0", addr.Bit, addr.Component), nil
	}
	if kind == fault.KindStuckAt1 && set {
		return true, fmt.Sprintf("bit %d of %s is already 1", addr.Bit, addr.Component), nil
	}
	return false, "", nil
}
