package campaign

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"neurofault/internal/config"
	"neurofault/internal/fault"
	"neurofault/internal/network"
	"neurofault/internal/nn"
	"neurofault/internal/spikeio"
	"neurofault/internal/storage"
)

func testNetwork(t *testing.T) *network.Network {
	t.Helper()
	neurons := nn.NeuronsFromThresholds([]float64{0.5, 0.6, 0.7}, 0, 0, 2, 0.5)
	weights := [][]float64{
		{0.3, 0.2, 0.1, 0.4},
		{0.1, 0.5, 0.2, 0.2},
		{0.4, 0.1, 0.3, 0.3},
	}
	net, err := network.NewBuilder(4).
		AddLayer(neurons, weights, network.UniformInhibition(3, -0.2), fault.NoFault()).
		Build()
	require.NoError(t, err)
	return net
}

func testCycles() [][][]uint8 {
	return [][][]uint8{
		{{1, 0, 1, 1, 0}, {0, 1, 1, 0, 1}, {1, 1, 0, 0, 1}, {0, 0, 1, 1, 1}},
		{{0, 1, 0, 1, 0}, {1, 1, 1, 0, 0}, {0, 0, 1, 1, 1}, {1, 0, 0, 1, 0}},
	}
}

func testOptions() Options {
	return Options{
		Components: fault.AllComponents(),
		Failures:   []fault.Kind{fault.KindStuckAt1, fault.KindStuckAt0, fault.KindTransientBitFlip},
		BitRange:   12,
		Seed:       5,
		Workers:    3,
		Baseline:   true,
	}
}

func TestPlanIsDeterministic(t *testing.T) {
	net := testNetwork(t)
	a, err := Plan(net, testOptions())
	require.NoError(t, err)
	b, err := Plan(net, testOptions())
	require.NoError(t, err)
	require.Equal(t, a, b)

	require.Equal(t, BaselineKey, a[0].Key)
	require.Len(t, a, 1+len(fault.AllComponents())*3)
	for _, j := range a[1:] {
		require.Less(t, j.Address.Bit, uint32(12))
		require.Less(t, j.Address.Neuron, 3)
		if j.Address.Component.IsMatrix() {
			require.Equal(t, j.Address.Neuron, j.Address.Row)
			require.NotNil(t, j.Config.Cell)
		}
	}
}

func TestPlanValidation(t *testing.T) {
	net := testNetwork(t)

	opts := testOptions()
	opts.Layer = 1
	_, err := Plan(net, opts)
	require.Error(t, err)

	opts = testOptions()
	opts.BitRange = 0
	_, err = Plan(net, opts)
	require.Error(t, err)

	opts = testOptions()
	opts.Components = []fault.Component{fault.ComponentNone}
	opts.Baseline = false
	_, err = Plan(net, opts)
	require.Error(t, err)
}

func TestUselessStuckAtRuns(t *testing.T) {
	layer := testNetwork(t).Layers()[0]
	// 0.5 is 0x3FE0...: the sign bit is 0 and bit 2 is 1.
	vth := func(bit uint32) fault.Address {
		return fault.Address{Component: fault.ComponentVTh, Neuron: 0, Bit: bit}
	}

	skip, reason, err := useless(layer, vth(0), fault.KindStuckAt0)
	require.NoError(t, err)
	require.True(t, skip)
	require.Contains(t, reason, "already 0")

	skip, _, err = useless(layer, vth(0), fault.KindStuckAt1)
	require.NoError(t, err)
	require.False(t, skip)

	skip, _, err = useless(layer, vth(2), fault.KindStuckAt1)
	require.NoError(t, err)
	require.True(t, skip)

	skip, _, err = useless(layer, vth(2), fault.KindTransientBitFlip)
	require.NoError(t, err)
	require.False(t, skip)

	skip, _, err = useless(layer, fault.Address{Component: fault.ComponentVMem, Bit: 0}, fault.KindStuckAt0)
	require.NoError(t, err)
	require.False(t, skip, "evolving state is never skipped")
}

func TestRunPersistsAndWritesCounters(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Init(ctx))

	net := testNetwork(t)
	opts := testOptions()
	opts.OutputDir = filepath.Join(t.TempDir(), "counters")

	res, err := NewRunner(store, nil).Run(ctx, net, testCycles(), opts)
	require.NoError(t, err)
	require.NotEmpty(t, res.Campaign.ID)
	require.Equal(t, 2, res.Campaign.Cycles)
	require.Equal(t, 5, res.Campaign.Instants)
	require.Len(t, res.Campaign.RunKeys, len(res.Runs))

	baseline := res.Runs[0]
	require.Equal(t, BaselineKey, baseline.Key)
	require.Len(t, baseline.Counts, 2)
	for c, input := range testCycles() {
		out, err := net.Process(ctx, input)
		require.NoError(t, err)
		require.Equal(t, spikeio.SpikeCounts(out), baseline.Counts[c])
	}

	written := 0
	for _, r := range res.Runs {
		if r.Skipped {
			require.Empty(t, r.Counts)
			require.NotEmpty(t, r.SkipReason)
			continue
		}
		written++
		require.Len(t, r.Counts, 2)
	}
	require.Len(t, res.Files, written)
	require.FileExists(t, filepath.Join(opts.OutputDir, "NoFault_None_0.txt"))

	stored, ok, err := store.GetCampaign(ctx, res.Campaign.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, res.Campaign.RunKeys, stored.RunKeys)

	runs, err := store.ListFaultRuns(ctx, res.Campaign.ID)
	require.NoError(t, err)
	require.Len(t, runs, len(res.Runs))
}

func TestRunIsIndependentOfWorkerCount(t *testing.T) {
	ctx := context.Background()
	net := testNetwork(t)

	opts := testOptions()
	opts.Workers = 1
	serial, err := NewRunner(nil, nil).Run(ctx, net, testCycles(), opts)
	require.NoError(t, err)

	opts.Workers = 8
	parallel, err := NewRunner(nil, nil).Run(ctx, net, testCycles(), opts)
	require.NoError(t, err)

	require.Len(t, parallel.Runs, len(serial.Runs))
	for i := range serial.Runs {
		require.Equal(t, serial.Runs[i].Key, parallel.Runs[i].Key)
		require.Equal(t, serial.Runs[i].Counts, parallel.Runs[i].Counts, serial.Runs[i].Key)
	}
}

func TestRunLimitsCycles(t *testing.T) {
	opts := testOptions()
	opts.Cycles = 1
	opts.Components = []fault.Component{fault.ComponentVMem}
	res, err := NewRunner(nil, nil).Run(context.Background(), testNetwork(t), testCycles(), opts)
	require.NoError(t, err)
	require.Equal(t, 1, res.Campaign.Cycles)
	for _, r := range res.Runs {
		require.Len(t, r.Counts, 1)
	}
}

func TestRunRequiresCycles(t *testing.T) {
	_, err := NewRunner(nil, nil).Run(context.Background(), testNetwork(t), nil, testOptions())
	require.ErrorIs(t, err, ErrNoCycles)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRunner(nil, nil).Run(ctx, testNetwork(t), testCycles(), testOptions())
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoadInputsExtractsArchive(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Simulation.Dir = dir
	cfg.Simulation.Inputs = 2
	cfg.Simulation.Neurons = 3
	cfg.Simulation.Instants = 3
	cfg.Simulation.VRest, cfg.Simulation.VReset = 0, 0
	cfg.Simulation.IntraWeight = -0.1
	cfg.Campaign.Cycles = 2

	writeZip(t, filepath.Join(dir, cfg.Simulation.InputZip), "01\n10\n11\n00\n01\n10\n")
	writeFile(t, filepath.Join(dir, cfg.Simulation.Thresholds), "0.5\n0.6\n0.7\n")
	writeFile(t, filepath.Join(dir, cfg.Simulation.Weights), "0.1 0.2\n0.3 0.4\n0.5 0.6\n")

	in, err := LoadInputs(cfg, nil)
	require.NoError(t, err)
	require.Len(t, in.Spikes, 2)
	require.Equal(t, []float64{0.5, 0.6, 0.7}, in.Thresholds)
	require.FileExists(t, filepath.Join(dir, cfg.Simulation.InputSpikes))

	net, err := BuildNetwork(cfg.Simulation, in)
	require.NoError(t, err)
	require.Equal(t, 2, net.InputWidth())
	require.Equal(t, 3, net.OutputWidth())
	require.Equal(t, -0.1, net.Layers()[0].IntraWeights()[0][1])

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	require.Len(t, opts.Failures, 3)
	require.Equal(t, fault.TransientOncePerRun, opts.Transient)
}

func TestLoadInputsMissingFiles(t *testing.T) {
	cfg := config.Default()
	cfg.Simulation.Dir = t.TempDir()
	cfg.Simulation.InputZip = ""
	_, err := LoadInputs(cfg, nil)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "input spikes"))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeZip(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("inputSpikes.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}
