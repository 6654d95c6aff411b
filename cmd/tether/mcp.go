package main

import (
	"context"
	"errors"
	"os"

	"github.com/aretw0/tether"
	"github.com/aretw0/tether/internal/cli"
	"github.com/aretw0/tether/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the workflow driver as MCP tools over stdio, so that AI agents can
start runs, answer their questions and read their results.

Tools: start_run, set_input, resume_run, get_run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}

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
		defer func() { _ = unlock(context.Background()) }()

		// Logs go to stderr; stdout carries JSON-RPC.
		srv := mcp.NewServer(rt.Client, tether.Version, mcp.WithLogger(logger))
		logger.Info("starting MCP server (stdio)")
		if err := srv.Listen(sc, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
