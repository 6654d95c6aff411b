package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aretw0/tether/internal/cli"
	"github.com/aretw0/tether/internal/presentation/graph"
	"github.com/aretw0/tether/internal/presentation/tui"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the run checkpointed in the snapshot store",
	Long:  `Loads the current run's snapshot from Redis, as saved by another tether process.`,
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

		snap, err := rt.LoadSnapshot(cmd.Context())
		if err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			data, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal snapshot: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		asGraph, _ := cmd.Flags().GetBool("graph")
		if asGraph {
			fmt.Print(graph.GenerateMermaid(&graph.Overlay{Current: snap.State}))
			return nil
		}

		p := termenv.EnvColorProfile()
		fmt.Printf("Run:     %s\n", snap.RunID)
		fmt.Printf("State:   %s\n", tui.StateLabel(p, snap.State))
		fmt.Printf("Events:  %d\n", len(snap.Events))
		fmt.Printf("Updated: %s\n", snap.UpdatedAt.Local().Format("2006-01-02 15:04:05"))

		style, _ := cmd.Flags().GetString("style")
		render, err := tui.NewRenderer(style)
		if err != nil {
			return err
		}
		var md string
		switch {
		case snap.Interrupt != nil:
			md = tui.InterruptMarkdown(snap.Interrupt, snap.Pending)
		case snap.State.IsTerminal():
			md = tui.ResultMarkdown(snap)
		}
		if md != "" {
			out, err := render(md)
			if err != nil {
				return err
			}
			fmt.Fprint(os.Stdout, out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().Bool("json", false, "Print the raw snapshot as JSON")
	statusCmd.Flags().Bool("graph", false, "Print the lifecycle diagram with the current state highlighted")
	statusCmd.Flags().String("style", "", "Markdown style: dark, light, notty (default: detect)")
}
