package main

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"neurofault/pkg/neurofault"
)

func newCampaignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaign",
		Short: "Run a fault-injection campaign",
		Long: `Run every configured failure kind against every configured component.
Each fault targets one random bit in [0, bit_range) of one random neuron and
is simulated over every input cycle. Stuck-at faults that cannot change a
static parameter are recorded as skipped.

Examples:
  neurofaultctl campaign --cycles 5 --seed 7
  neurofaultctl campaign --components vth,weights --failures StuckAt1 --output-dir out
  neurofaultctl --store sqlite --db-path results.db campaign --workers 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			flags := cmd.Flags()
			if flags.Changed("components") {
				cfg.Campaign.Components, _ = flags.GetStringSlice("components")
			}
			if flags.Changed("failures") {
				cfg.Campaign.Failures, _ = flags.GetStringSlice("failures")
			}
			if flags.Changed("seed") {
				cfg.Campaign.Seed, _ = flags.GetInt64("seed")
			}
			if flags.Changed("cycles") {
				cfg.Campaign.Cycles, _ = flags.GetInt("cycles")
			}
			if flags.Changed("workers") {
				cfg.Campaign.Workers, _ = flags.GetInt("workers")
			}
			if flags.Changed("bit-range") {
				cfg.Campaign.BitRange, _ = flags.GetInt("bit-range")
			}
			if flags.Changed("transient-mode") {
				cfg.Campaign.TransientMode, _ = flags.GetString("transient-mode")
			}
			if flags.Changed("output-dir") {
				cfg.Campaign.OutputDir, _ = flags.GetString("output-dir")
			}
			if noBaseline, _ := flags.GetBool("no-baseline"); noBaseline {
				cfg.Campaign.Baseline = false
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			client, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			summary, err := client.RunCampaign(cmd.Context(), neurofault.CampaignRequest{Config: cfg})
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"campaign_id": summary.CampaignID,
					"runs":        summary.Runs,
					"skipped":     summary.Skipped,
					"files":       summary.Files,
					"elapsed_ms":  summary.Elapsed.Milliseconds(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "campaign_id=%s runs=%s skipped=%s elapsed=%s\n",
				summary.CampaignID,
				humanize.Comma(int64(summary.Runs)),
				humanize.Comma(int64(summary.Skipped)),
				summary.Elapsed,
			)
			for _, f := range summary.Files {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", f)
			}
			return nil
		},
	}

	cmd.Flags().StringSlice("components", nil, "Fault targets (default: every component)")
	cmd.Flags().StringSlice("failures", nil, "Failure kinds to inject")
	cmd.Flags().Int64("seed", 0, "Random seed for bit and neuron selection")
	cmd.Flags().Int("cycles", 0, "Number of input cycles per fault")
	cmd.Flags().Int("workers", 0, "Fault runs simulated in parallel")
	cmd.Flags().Int("bit-range", 0, "Pick bits in [0, bit-range)")
	cmd.Flags().String("transient-mode", "", "Transient flips: once_per_run or every_instant")
	cmd.Flags().String("output-dir", "", "Write one counter file per run to this directory")
	cmd.Flags().Bool("no-baseline", false, "Skip the fault-free reference run")
	return cmd
}
