package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/tether/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tether",
	Short: "tether drives remote interruptible workflows",
	Long: `tether starts a workflow on a remote backend, follows its event stream,
answers the questions the workflow pauses on, and reports the final result.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default ./"+cli.DefaultConfigFile+" if present)")
	flags.String("base-url", "", "Backend base URL")
	flags.Duration("timeout", 0, "Bound for each start and resume call")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.Bool("log-json", false, "Write logs as JSON")
	flags.String("redis-url", "", "Redis URL for snapshot checkpoints")
	flags.String("snapshot-key", "", "Key the current run is checkpointed under")
	flags.Bool("validate-contract", false, "Validate backend responses against the OpenAPI contract")
}

// loadConfig reads the config file and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (cli.Config, *slog.Logger, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := cli.LoadConfig(path)
	if err != nil {
		return cfg, nil, err
	}

	if flags.Changed("base-url") {
		cfg.BaseURL, _ = flags.GetString("base-url")
	}
	if flags.Changed("timeout") {
		cfg.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("redis-url") {
		cfg.RedisURL, _ = flags.GetString("redis-url")
	}
	if flags.Changed("snapshot-key") {
		cfg.SnapshotKey, _ = flags.GetString("snapshot-key")
	}
	if flags.Changed("validate-contract") {
		cfg.ValidateContract, _ = flags.GetBool("validate-contract")
	}
	if flags.Lookup("metrics-addr") != nil && flags.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}

	jsonLogs, _ := flags.GetBool("log-json")
	logger, err := cli.NewLogger(cfg.LogLevel, jsonLogs)
	if err != nil {
		return cfg, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}
