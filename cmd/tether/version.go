package main

import (
	"fmt"

	"github.com/aretw0/tether"
	httpAdapter "github.com/aretw0/tether/pkg/adapters/http"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of tether",
	RunE: func(cmd *cobra.Command, args []string) error {
		contract, err := httpAdapter.NewContract(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("tether version %s (api %s)\n", tether.Version, contract.Version())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
