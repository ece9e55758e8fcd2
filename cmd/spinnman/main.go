package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "spinnman",
		Short: "Host-side client for SpiNNaker neuromorphic machines",
		Long: `spinnman talks SCP-over-SDP to a SpiNNaker machine: boot it, discover its
topology, move memory and executables on and off chips, manage routing
tables and IP tags, and read back core state.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "spinnman.yaml", "path to the machine configuration file")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newBootCmd())
	rootCmd.AddCommand(newDiscoverCmd())
	rootCmd.AddCommand(newReadMemCmd())
	rootCmd.AddCommand(newWriteMemCmd())
	rootCmd.AddCommand(newFloodCmd())
	rootCmd.AddCommand(newExecuteCmd())
	rootCmd.AddCommand(newIOBufCmd())
	rootCmd.AddCommand(newTagsCmd())
	rootCmd.AddCommand(newPowerCmd())
	rootCmd.AddCommand(newServeMetricsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
