package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"neurofault/pkg/neurofault"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored campaigns",
		Long: `List campaigns saved in the result store, newest first.
Only the sqlite store keeps campaigns between invocations.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			client, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			items, err := client.Runs(cmd.Context(), neurofault.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(items)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no campaigns")
				return nil
			}
			for _, item := range items {
				fmt.Fprintf(cmd.OutOrStdout(), "%s created=%s seed=%d neurons=%d cycles=%d runs=%d\n",
					item.CampaignID, createdAgo(item.CreatedAtUTC), item.Seed, item.Neurons, item.Cycles, item.Runs)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum campaigns to list")
	cmd.AddCommand(newRunsShowCmd())
	cmd.AddCommand(newRunsExportCmd())
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [campaign-id]",
		Short: "Show a campaign's fault runs (latest when no id is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			client, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			detail, err := client.Campaign(cmd.Context(), id)
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(detail)
			}
			c := detail.Campaign
			fmt.Fprintf(cmd.OutOrStdout(), "campaign %s (%s, seed=%d, transient=%s)\n",
				c.ID, createdAgo(c.CreatedAtUTC), c.Seed, c.TransientMode)
			for _, r := range detail.Runs {
				if r.Skipped {
					fmt.Fprintf(cmd.OutOrStdout(), "  %-32s skipped: %s\n", r.Key, r.SkipReason)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %-32s total_spikes=%s\n", r.Key, humanize.Comma(int64(r.TotalSpikes)))
			}
			return nil
		},
	}
}

func newRunsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [campaign-id]",
		Short: "Export a campaign's runs and their effect against the baseline",
		Long: `Write campaign.json, runs.json, summary.json and effects.csv for a
stored campaign (latest when no id is given) under --out/<campaign-id>.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			client, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			req := neurofault.ExportRequest{}
			req.OutDir, _ = cmd.Flags().GetString("out")
			if len(args) == 1 {
				req.CampaignID = args[0]
			}
			res, err := client.Export(cmd.Context(), req)
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"campaign_id": res.CampaignID,
					"dir":         res.Dir,
					"summary":     res.Summary,
				})
			}
			s := res.Summary
			fmt.Fprintf(cmd.OutOrStdout(), "exported %s to %s: %d runs, %d skipped, %d affected (max delta %s spikes)\n",
				res.CampaignID, res.Dir, s.Runs, s.Skipped, s.Affected, humanize.Comma(int64(s.MaxAbsDelta)))
			for _, c := range s.Components {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-12s runs=%d skipped=%d affected=%d\n", c.Component, c.Runs, c.Skipped, c.Affected)
			}
			return nil
		},
	}
	cmd.Flags().String("out", "exports", "Directory to write campaign artifacts to")
	return cmd
}

func createdAgo(createdAtUTC string) string {
	ts, err := time.Parse(time.RFC3339Nano, createdAtUTC)
	if err != nil {
		return createdAtUTC
	}
	return humanize.Time(ts)
}
