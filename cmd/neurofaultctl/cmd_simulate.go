package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"neurofault/internal/campaign"
	"neurofault/internal/fault"
	"neurofault/internal/network"
	"neurofault/internal/nn"
	"neurofault/internal/spikeio"
	"neurofault/pkg/neurofault"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run one input cycle through the configured network",
		Long: `Run one input cycle through the network described by the simulation
section of the config, optionally with a single fault injected.

Examples:
  neurofaultctl simulate --cycle 3
  neurofaultctl simulate --component vth --failure StuckAt1 --bit 4 --neuron 17
  neurofaultctl simulate --component weights --failure transient --bit 9 --row 2 --col 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cycle, _ := cmd.Flags().GetInt("cycle")
			if cycle < 0 {
				return fmt.Errorf("cycle must be >= 0, got %d", cycle)
			}
			cfg.Campaign.Cycles = cycle + 1
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			faults, err := faultFromFlags(cmd)
			if err != nil {
				return err
			}

			logger := newLogger(cmd, cfg)
			inputs, err := campaign.LoadInputs(cfg, logger)
			if err != nil {
				return err
			}
			if cycle >= len(inputs.Spikes) {
				return fmt.Errorf("cycle %d not available, input holds %d cycles", cycle, len(inputs.Spikes))
			}

			client, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			sim := cfg.Simulation
			res, err := client.Simulate(cmd.Context(), neurofault.SimulateRequest{
				InputWidth: sim.Inputs,
				Layers: []neurofault.LayerSpec{{
					Neurons:      nn.NeuronsFromThresholds(inputs.Thresholds, sim.VRest, sim.VReset, sim.Tau, sim.Dt),
					Weights:      inputs.Weights,
					IntraWeights: network.UniformInhibition(len(inputs.Thresholds), sim.IntraWeight),
					Fault:        faults,
				}},
				Input: inputs.Spikes[cycle],
			})
			if err != nil {
				return err
			}

			if out, _ := cmd.Flags().GetString("out"); out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := spikeio.WriteCounters(f, res.Counts); err != nil {
					_ = f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
			}

			total := 0
			for _, c := range res.Counts {
				total += c
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"fault":        faults.Name(),
					"cycle":        cycle,
					"counts":       res.Counts,
					"total_spikes": total,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fault=%s cycle=%d neurons=%d total_spikes=%s\n",
				faults.Name(), cycle, len(res.Counts), humanize.Comma(int64(total)))
			for i, c := range res.Counts {
				if c > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "  neuron %d: %d\n", i, c)
				}
			}
			return nil
		},
	}

	cmd.Flags().Int("cycle", 0, "Input cycle to simulate")
	cmd.Flags().String("component", "", "Fault target: vth, vrest, vreset, tau, vmem, ts, dt, weights, intraweights, prevspikes")
	cmd.Flags().String("failure", "", "Failure kind: StuckAt0, StuckAt1, TransientBitFlip")
	cmd.Flags().Uint32("bit", 0, "Bit position, counted from the most significant bit")
	cmd.Flags().Int("neuron", 0, "Target neuron index")
	cmd.Flags().Int("row", -1, "Matrix row for weight faults (defaults to --neuron)")
	cmd.Flags().Int("col", -1, "Matrix column for weight faults; without it the bit position is decoded over the whole matrix")
	cmd.Flags().String("out", "", "Write per-neuron spike counters to this file")
	return cmd
}

func faultFromFlags(cmd *cobra.Command) (fault.Config, error) {
	compName, _ := cmd.Flags().GetString("component")
	failureName, _ := cmd.Flags().GetString("failure")
	if compName == "" && failureName == "" {
		return fault.NoFault(), nil
	}
	if compName == "" || failureName == "" {
		return fault.Config{}, fmt.Errorf("--component and --failure must be used together")
	}

	comp, err := fault.ParseComponent(compName)
	if err != nil {
		return fault.Config{}, err
	}
	kind, err := fault.ParseKind(failureName)
	if err != nil {
		return fault.Config{}, err
	}
	bit, _ := cmd.Flags().GetUint32("bit")
	neuron, _ := cmd.Flags().GetInt("neuron")
	row, _ := cmd.Flags().GetInt("row")
	col, _ := cmd.Flags().GetInt("col")

	cfg := fault.NewConfig([]fault.Component{comp}, fault.NewFailure(kind, bit), neuron)
	if comp.IsMatrix() && col >= 0 {
		if row < 0 {
			row = neuron
		}
		cfg = cfg.WithCell(row, col)
	}
	return cfg, nil
}
