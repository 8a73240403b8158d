package neurofault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"neurofault/internal/campaign"
	"neurofault/internal/config"
	"neurofault/internal/fault"
	"neurofault/internal/logging"
	"neurofault/internal/model"
	"neurofault/internal/network"
	"neurofault/internal/nn"
	"neurofault/internal/spikeio"
	"neurofault/internal/stats"
	"neurofault/internal/storage"
)

const defaultDBPath = "neurofault.db"

type Options struct {
	StoreKind string
	DBPath    string
	Logger    *slog.Logger
}

type Client struct {
	store  storage.Store
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
}

// LayerSpec describes one layer of a network to simulate.
type LayerSpec struct {
	Neurons      []nn.LIFNeuron
	Weights      [][]float64
	IntraWeights [][]float64
	Fault        fault.Config
}

type SimulateRequest struct {
	InputWidth int
	Layers     []LayerSpec
	// Input has one row per input line and one column per instant.
	Input [][]uint8
}

type SimulateResult struct {
	Output [][]uint8
	Counts []int
}

type CampaignRequest struct {
	// Config defaults to config.Default() when nil.
	Config *config.Config
}

type CampaignSummary struct {
	CampaignID string
	Runs       int
	Skipped    int
	Files      []string
	Elapsed    time.Duration
}

type RunsRequest struct {
	Limit int
}

type CampaignItem struct {
	CampaignID   string
	CreatedAtUTC string
	Seed         int64
	Neurons      int
	Cycles       int
	Runs         int
}

type CampaignDetail struct {
	Campaign model.CampaignRecord
	Runs     []model.FaultRunRecord
}

type ExportRequest struct {
	// CampaignID selects the most recent campaign when empty.
	CampaignID string
	OutDir     string
}

type ExportResult struct {
	CampaignID string
	Dir        string
	Summary    stats.Summary
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	return &Client{store: store, logger: logger}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// Simulate builds the requested network and runs one input matrix through it.
func (c *Client) Simulate(ctx context.Context, req SimulateRequest) (SimulateResult, error) {
	b := network.NewBuilder(req.InputWidth)
	for _, l := range req.Layers {
		b.AddLayer(l.Neurons, l.Weights, l.IntraWeights, l.Fault)
	}
	net, err := b.Build()
	if err != nil {
		return SimulateResult{}, err
	}
	net.SetLogger(c.logger)

	out, err := net.Process(ctx, req.Input)
	if err != nil {
		return SimulateResult{}, err
	}
	return SimulateResult{Output: out, Counts: spikeio.SpikeCounts(out)}, nil
}

// RunCampaign loads the simulation inputs named by the configuration and runs
// a full fault-injection campaign over them.
func (c *Client) RunCampaign(ctx context.Context, req CampaignRequest) (CampaignSummary, error) {
	cfg := req.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return CampaignSummary{}, err
	}
	if err := c.Init(ctx); err != nil {
		return CampaignSummary{}, err
	}

	inputs, err := campaign.LoadInputs(cfg, c.logger)
	if err != nil {
		return CampaignSummary{}, err
	}
	net, err := campaign.BuildNetwork(cfg.Simulation, inputs)
	if err != nil {
		return CampaignSummary{}, err
	}
	net.SetLogger(c.logger)

	opts, err := campaign.OptionsFromConfig(cfg)
	if err != nil {
		return CampaignSummary{}, err
	}
	res, err := campaign.NewRunner(c.store, c.logger).Run(ctx, net, inputs.Spikes, opts)
	if err != nil {
		return CampaignSummary{}, err
	}

	summary := CampaignSummary{
		CampaignID: res.Campaign.ID,
		Runs:       len(res.Runs),
		Files:      res.Files,
		Elapsed:    time.Duration(res.Campaign.ElapsedMillis) * time.Millisecond,
	}
	for _, r := range res.Runs {
		if r.Skipped {
			summary.Skipped++
		}
	}
	return summary, nil
}

// Campaign returns a stored campaign with its runs. An empty id selects the
// most recent campaign.
func (c *Client) Campaign(ctx context.Context, id string) (CampaignDetail, error) {
	if err := c.Init(ctx); err != nil {
		return CampaignDetail{}, err
	}
	if id == "" {
		campaigns, err := c.store.ListCampaigns(ctx)
		if err != nil {
			return CampaignDetail{}, err
		}
		if len(campaigns) == 0 {
			return CampaignDetail{}, errors.New("no campaigns available")
		}
		id = campaigns[0].ID
	}

	rec, ok, err := c.store.GetCampaign(ctx, id)
	if err != nil {
		return CampaignDetail{}, err
	}
	if !ok {
		return CampaignDetail{}, fmt.Errorf("campaign not found: %s", id)
	}
	runs, err := c.store.ListFaultRuns(ctx, id)
	if err != nil {
		return CampaignDetail{}, err
	}
	return CampaignDetail{Campaign: rec, Runs: runs}, nil
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]CampaignItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	campaigns, err := c.store.ListCampaigns(ctx)
	if err != nil {
		return nil, err
	}
	if len(campaigns) > req.Limit {
		campaigns = campaigns[:req.Limit]
	}

	out := make([]CampaignItem, 0, len(campaigns))
	for _, rec := range campaigns {
		out = append(out, CampaignItem{
			CampaignID:   rec.ID,
			CreatedAtUTC: rec.CreatedAtUTC,
			Seed:         rec.Seed,
			Neurons:      rec.Neurons,
			Cycles:       rec.Cycles,
			Runs:         len(rec.RunKeys),
		})
	}
	return out, nil
}

// Export compares each run of a stored campaign with its baseline and writes
// the campaign, its runs and the per-run effects under req.OutDir. The export
// is recorded in the directory's run index.
func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportResult, error) {
	if req.OutDir == "" {
		return ExportResult{}, errors.New("export directory is required")
	}
	detail, err := c.Campaign(ctx, req.CampaignID)
	if err != nil {
		return ExportResult{}, err
	}

	effects, err := stats.Effects(detail.Runs, campaign.BaselineKey)
	if err != nil {
		return ExportResult{}, fmt.Errorf("campaign %s: %w", detail.Campaign.ID, err)
	}
	summary := stats.Summarize(effects)
	dir, err := stats.WriteCampaignArtifacts(req.OutDir, stats.CampaignArtifacts{
		Campaign: detail.Campaign,
		Runs:     detail.Runs,
		Effects:  effects,
		Summary:  summary,
	})
	if err != nil {
		return ExportResult{}, err
	}
	if err := stats.AppendRunIndex(req.OutDir, stats.RunIndexEntry{
		CampaignID:   detail.Campaign.ID,
		CreatedAtUTC: detail.Campaign.CreatedAtUTC,
		Seed:         detail.Campaign.Seed,
		Runs:         summary.Runs,
		Skipped:      summary.Skipped,
		Affected:     summary.Affected,
	}); err != nil {
		return ExportResult{}, err
	}
	c.logger.Info("campaign exported", "campaign", detail.Campaign.ID, "dir", dir, "affected", summary.Affected)
	return ExportResult{CampaignID: detail.Campaign.ID, Dir: dir, Summary: summary}, nil
}
