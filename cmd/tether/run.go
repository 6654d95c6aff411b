package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/aretw0/tether"
	"github.com/aretw0/tether/internal/cli"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <prompt>",
	Short: "Start a workflow run and answer its questions",
	Long: `Starts a run on the backend, prints its events as they arrive and prompts for
every field the run pauses on. When stdin is not a terminal, the run is driven
in JSON-lines mode: one message per line on stdout, one input object per line
on stdin.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		jsonMode, _ := cmd.Flags().GetBool("json")
		if !cmd.Flags().Changed("json") && !cli.IsTerminal(os.Stdin) {
			jsonMode = true
		}
		quiet, _ := cmd.Flags().GetBool("quiet")
		style, _ := cmd.Flags().GetString("style")

		rt, err := cli.Open(cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()

		unlock, err := rt.Lock(sc)
		if err != nil {
			return err
		}
		defer func() {
			if err := unlock(context.Background()); err != nil {
				logger.Warn("failed to release snapshot key", "error", err)
			}
		}()

		if cfg.MetricsAddr != "" {
			go func() {
				if err := rt.ServeMetrics(sc, cfg.MetricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("metrics server failed", "error", err)
				}
			}()
		}

		err = cli.Execute(sc, rt.Client, cli.RunOptions{
			Prompt:  strings.Join(args, " "),
			JSON:    jsonMode,
			Quiet:   quiet || jsonMode,
			Style:   style,
			Profile: termenv.EnvColorProfile(),
			Version: tether.Version,
			In:      os.Stdin,
			Out:     os.Stdout,
		})
		return cli.HandleExecutionError(os.Stdout, err, sc.Signal())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("json", false, "Run in JSON-lines mode (default when stdin is not a terminal)")
	runCmd.Flags().BoolP("quiet", "q", false, "Hide the banner and system messages")
	runCmd.Flags().String("style", "", "Markdown style: dark, light, notty (default: detect)")
	runCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
}
