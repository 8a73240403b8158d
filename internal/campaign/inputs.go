package campaign

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"neurofault/internal/config"
	"neurofault/internal/fault"
	"neurofault/internal/network"
	"neurofault/internal/nn"
	"neurofault/internal/spikeio"
)

// Inputs is everything read from a simulation directory.
type Inputs struct {
	// Spikes is indexed [cycle][input][instant].
	Spikes     [][][]uint8
	Thresholds []float64
	Weights    [][]float64
}

// LoadInputs reads spikes, thresholds and weights as described by cfg.
// When the spike file is missing and an archive is configured, the archive's
// first entry is extracted to the spike file path first.
func LoadInputs(cfg *config.Config, logger *slog.Logger) (*Inputs, error) {
	sim := cfg.Simulation
	spikePath := cfg.Resolve(sim.InputSpikes)
	if _, err := os.Stat(spikePath); errors.Is(err, fs.ErrNotExist) && sim.InputZip != "" {
		zipPath := cfg.Resolve(sim.InputZip)
		if logger != nil {
			logger.Info("extracting input spikes", "archive", zipPath, "dest", spikePath)
		}
		if err := spikeio.ExtractFirst(zipPath, spikePath); err != nil {
			return nil, fmt.Errorf("extract %s: %w", zipPath, err)
		}
	}

	spikes, err := spikeio.ReadInputSpikesFile(spikePath, sim.Inputs, sim.Instants, cfg.Campaign.Cycles)
	if err != nil {
		return nil, fmt.Errorf("read input spikes: %w", err)
	}
	thresholds, err := spikeio.ReadThresholdsFile(cfg.Resolve(sim.Thresholds), sim.Neurons)
	if err != nil {
		return nil, fmt.Errorf("read thresholds: %w", err)
	}
	weights, err := spikeio.ReadWeightsFile(cfg.Resolve(sim.Weights), sim.Neurons, sim.Inputs)
	if err != nil {
		return nil, fmt.Errorf("read weights: %w", err)
	}
	return &Inputs{Spikes: spikes, Thresholds: thresholds, Weights: weights}, nil
}

// BuildNetwork assembles the single-layer network under test: one LIF neuron
// per threshold, the read weights, and uniform lateral inhibition.
func BuildNetwork(sim config.SimulationConfig, in *Inputs) (*network.Network, error) {
	neurons := nn.NeuronsFromThresholds(in.Thresholds, sim.VRest, sim.VReset, sim.Tau, sim.Dt)
	return network.NewBuilder(sim.Inputs).
		AddLayer(neurons, in.Weights, network.UniformInhibition(len(neurons), sim.IntraWeight), fault.NoFault()).
		Build()
}

// OptionsFromConfig converts the campaign section of cfg.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	components, err := cfg.Components()
	if err != nil {
		return Options{}, err
	}
	failures, err := cfg.FailureKinds()
	if err != nil {
		return Options{}, err
	}
	mode, err := fault.ParseTransientMode(cfg.Campaign.TransientMode)
	if err != nil {
		return Options{}, err
	}
	cp := cfg.Campaign
	return Options{
		Components: components,
		Failures:   failures,
		BitRange:   cp.BitRange,
		Cycles:     cp.Cycles,
		Seed:       cp.Seed,
		Workers:    cp.Workers,
		Transient:  mode,
		Baseline:   cp.Baseline,
		OutputDir:  cp.OutputDir,
	}, nil
}
