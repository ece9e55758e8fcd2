package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/spinnaker-go/spinnman/internal/progress"
)

type floodFlags struct {
	base    uint32
	inFile  string
	timeout time.Duration
}

func newFloodCmd() *cobra.Command {
	flags := &floodFlags{}
	cmd := &cobra.Command{
		Use:   "flood",
		Short: "Write a file to every chip's SDRAM via flood fill",
		Long: `Sends a FloodFillStart/FloodFillData.../FloodFillEnd sequence to load
--in onto every chip at once (spec §4.6 "WriteMemoryFlood"), under the
flood lock so no per-chip Execute can race it.`,
		Example: `  spinnman flood --base 0x67800000 --in app.aplx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlood(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.inFile, "in", "", "input file (required)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 2*time.Minute, "operation timeout")
	cmd.Flags().Var(hexUint32Flag{&flags.base}, "base", "base address (hex or decimal)")
	cmd.MarkFlagRequired("in")
	return cmd
}

func runFlood(cmd *cobra.Command, flags *floodFlags) error {
	data, err := os.ReadFile(flags.inFile)
	if err != nil {
		return fmt.Errorf("read %s: %w", flags.inFile, err)
	}

	configPath, _ := cmd.Flags().GetString("config")
	tr, _, err := connect(configPath)
	if err != nil {
		return err
	}
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	reporter := progress.NewCoreStatusReporter("flood", 500*time.Millisecond)
	reporter.Status(0, 0, fmt.Sprintf("flooding %d bytes to every chip", len(data)))
	done := make(chan error, 1)
	go func() { done <- tr.WriteMemoryFlood(ctx, flags.base, data) }()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			reporter.Done()
			if err != nil {
				return fmt.Errorf("write memory flood: %w", err)
			}
			fmt.Fprintln(os.Stdout, "flood complete")
			return nil
		case <-ticker.C:
			reporter.Status(0, 0, "in progress")
		}
	}
}
