package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/validata-io/validata/cmd/connections"
	"github.com/validata-io/validata/cmd/run"
)

var rootCmd = &cobra.Command{
	Use:   "validata",
	Short: "Cross-store data validation",
	Long:  `Validata compares table data between two stores by running the same aggregation shape on both sides and reconciling the results into verdicts.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(run.Command())
	rootCmd.AddCommand(run.ConfigCommand())
	rootCmd.AddCommand(connections.Command())
}
