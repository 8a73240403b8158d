package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"neurofault/internal/config"
	"neurofault/internal/logging"
	"neurofault/pkg/neurofault"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "neurofaultctl",
		Short: "Fault injection for spiking neural networks",
		Long: `neurofaultctl simulates layered LIF spiking networks and runs
bit-level fault-injection campaigns against their parameters and state.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: warn, info, debug, trace")
	rootCmd.PersistentFlags().String("store", "", "Result store: memory or sqlite")
	rootCmd.PersistentFlags().String("db-path", "", "SQLite database path")

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(),
		newSimulateCmd(),
		newCampaignCmd(),
		newRunsCmd(),
	)
	return rootCmd
}

// loadConfig resolves defaults, the config file, the environment and the
// persistent flags, in that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v, _ := cmd.Flags().GetString("store"); v != "" {
		cfg.Store.Kind = v
	}
	if v, _ := cmd.Flags().GetString("db-path"); v != "" {
		cfg.Store.Path = v
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
}

func newClient(cmd *cobra.Command, cfg *config.Config) (*neurofault.Client, error) {
	return neurofault.New(neurofault.Options{
		StoreKind: cfg.Store.Kind,
		DBPath:    cfg.Store.Path,
		Logger:    newLogger(cmd, cfg),
	})
}
