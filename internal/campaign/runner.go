package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"neurofault/internal/logging"
	"neurofault/internal/model"
	"neurofault/internal/network"
	"neurofault/internal/spikeio"
	"neurofault/internal/storage"
)

var ErrNoCycles = errors.New("campaign needs at least one input cycle")

// Result is a finished campaign with its runs ordered as planned.
type Result struct {
	Campaign model.CampaignRecord
	Runs     []model.FaultRunRecord
	// Files lists the counter files written under Options.OutputDir.
	Files []string
}

type Runner struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewRunner returns a Runner persisting to store. A nil store keeps results
// in memory only.
func NewRunner(store storage.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{store: store, logger: logger, now: time.Now}
}

// Run plans the campaign against base and simulates every planned fault over
// cycles of spikes, each cycle indexed [input][instant].
func (r *Runner) Run(ctx context.Context, base *network.Network, cycles [][][]uint8, opts Options) (Result, error) {
	if len(cycles) == 0 {
		return Result{}, ErrNoCycles
	}
	if opts.Cycles <= 0 || opts.Cycles > len(cycles) {
		opts.Cycles = len(cycles)
	}
	cycles = cycles[:opts.Cycles]

	jobs, err := Plan(base, opts)
	if err != nil {
		return Result{}, err
	}

	started := r.now()
	campaignID := uuid.NewString()
	layer := base.Layers()[opts.Layer]
	r.logger.Info("campaign started",
		"campaign", campaignID,
		"runs", len(jobs),
		"cycles", len(cycles),
		"workers", workerCount(opts.Workers, len(jobs)),
	)

	runs, err := r.execute(ctx, campaignID, base, cycles, jobs, opts)
	if err != nil {
		return Result{}, err
	}

	rec := model.CampaignRecord{
		VersionedRecord: storage.Versioned(),
		ID:              campaignID,
		CreatedAtUTC:    started.UTC().Format(time.RFC3339Nano),
		Seed:            opts.Seed,
		Inputs:          base.InputWidth(),
		Neurons:         layer.NumNeurons(),
		Instants:        instants(cycles[0]),
		Cycles:          len(cycles),
		BitRange:        opts.BitRange,
		TransientMode:   opts.Transient.String(),
		ElapsedMillis:   r.now().Sub(started).Milliseconds(),
	}
	for _, c := range opts.Components {
		rec.Components = append(rec.Components, c.String())
	}
	for _, k := range opts.Failures {
		rec.Failures = append(rec.Failures, k.String())
	}
	for _, run := range runs {
		rec.RunKeys = append(rec.RunKeys, run.Key)
	}

	res := Result{Campaign: rec, Runs: runs}
	if r.store != nil {
		for _, run := range runs {
			if err := r.store.SaveFaultRun(ctx, run); err != nil {
				return Result{}, fmt.Errorf("save fault run %s: %w", run.Key, err)
			}
		}
		if err := r.store.SaveCampaign(ctx, rec); err != nil {
			return Result{}, fmt.Errorf("save campaign %s: %w", rec.ID, err)
		}
	}

	if opts.OutputDir != "" {
		for i, run := range runs {
			if run.Skipped {
				continue
			}
			path, err := spikeio.WriteCounterFile(opts.OutputDir, spikeio.RunFileName(jobs[i].Config), run.Counts)
			if err != nil {
				return Result{}, fmt.Errorf("write counters %s: %w", run.Key, err)
			}
			res.Files = append(res.Files, path)
		}
	}

	r.logger.Info("campaign finished", "campaign", campaignID, "elapsed_ms", rec.ElapsedMillis)
	return res, nil
}

func (r *Runner) execute(ctx context.Context, campaignID string, base *network.Network, cycles [][][]uint8, plan []Job, opts Options) ([]model.FaultRunRecord, error) {
	type job struct {
		idx int
		job Job
	}
	type result struct {
		idx int
		run model.FaultRunRecord
		err error
	}

	jobs := make(chan job)
	results := make(chan result, len(plan))

	workers := workerCount(opts.Workers, len(plan))
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				run, err := r.simulate(ctx, campaignID, base, cycles, j.job, opts.Layer)
				results <- result{idx: j.idx, run: run, err: err}
			}
		}()
	}

	for i := range plan {
		jobs <- job{idx: i, job: plan[i]}
	}
	close(jobs)

	wg.Wait()
	close(results)

	runs := make([]model.FaultRunRecord, len(plan))
	for res := range results {
		if res.err != nil {
			return nil, res.err
		}
		runs[res.idx] = res.run
	}
	return runs, nil
}

func (r *Runner) simulate(ctx context.Context, campaignID string, base *network.Network, cycles [][][]uint8, j Job, layer int) (model.FaultRunRecord, error) {
	run := model.FaultRunRecord{
		VersionedRecord: storage.Versioned(),
		CampaignID:      campaignID,
		Key:             j.Key,
		Component:       j.Address.Component.String(),
		Failure:         j.Config.Failure.Kind.String(),
		Bit:             j.Address.Bit,
		Neuron:          j.Address.Neuron,
		Row:             j.Address.Row,
		Col:             j.Address.Col,
		Skipped:         j.Skipped,
		SkipReason:      j.SkipReason,
	}
	if j.Skipped {
		r.logger.Info("skipping fault run", "key", j.Key, "reason", j.SkipReason)
		return run, nil
	}

	net, err := base.WithFaults(layer, j.Config)
	if err != nil {
		return model.FaultRunRecord{}, err
	}
	for c, input := range cycles {
		out, err := net.Process(ctx, input)
		if err != nil {
			return model.FaultRunRecord{}, fmt.Errorf("%s cycle %d: %w", j.Key, c, err)
		}
		counts := spikeio.SpikeCounts(out)
		for _, n := range counts {
			run.TotalSpikes += n
		}
		run.Counts = append(run.Counts, counts)
		r.logger.Debug("cycle done", "key", j.Key, "cycle", c)
	}
	r.logger.Info("fault run complete", "key", j.Key, "total_spikes", run.TotalSpikes)
	return run, nil
}

func workerCount(requested, jobs int) int {
	if requested <= 0 {
		requested = 1
	}
	if requested > jobs {
		requested = jobs
	}
	return requested
}

func instants(cycle [][]uint8) int {
	if len(cycle) == 0 {
		return 0
	}
	return len(cycle[0])
}
