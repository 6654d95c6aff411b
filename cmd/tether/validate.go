package main

import (
	"fmt"

	httpAdapter "github.com/aretw0/tether/pkg/adapters/http"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <script.yaml>...",
	Short: "Check scripted backend files",
	Long:  `Parses each script and reports the ones the scripted backend could not play.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := 0
		for _, path := range args {
			script, err := httpAdapter.LoadScript(path)
			if err != nil {
				fmt.Printf("%s: %v\n", path, err)
				failed++
				continue
			}
			fmt.Printf("%s: %d segments, ok\n", path, len(script.Segments))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d scripts are invalid", failed, len(args))
		}
		fmt.Println("Scripts are valid! ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
