package main

import (
	"fmt"
	"slices"

	"github.com/aretw0/tether/internal/presentation/graph"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the run lifecycle diagram",
	Long:  `Outputs a Mermaid state diagram of the run lifecycle, optionally highlighting one state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		current, _ := cmd.Flags().GetString("current")
		if current == "" {
			fmt.Print(graph.GenerateMermaid(nil))
			return nil
		}
		state := domain.RunState(current)
		if !slices.Contains(domain.AllStates(), state) {
			return fmt.Errorf("unknown state %q", current)
		}
		fmt.Print(graph.GenerateMermaid(&graph.Overlay{Current: state}))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("current", "", "State to highlight")
}
