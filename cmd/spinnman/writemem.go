package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/spinnaker-go/spinnman/internal/errors"
	"github.com/spinnaker-go/spinnman/internal/progress"
)

type writeMemFlags struct {
	chip       string
	base       uint32
	inFile     string
	timeout    time.Duration
	noProgress bool
}

// reportedChunkSize is the granularity write-mem reports progress at; it
// is independent of the wire chunk size (memory.chunkSize) WriteMemory
// uses internally.
const reportedChunkSize = 4096

func newWriteMemCmd() *cobra.Command {
	flags := &writeMemFlags{}
	cmd := &cobra.Command{
		Use:   "write-mem",
		Short: "Write a file's contents into a chip's SDRAM",
		Long: `Reads --in and writes it to [base, base+len(data)) (spec §4.6
"WriteMemory"), reporting progress on stderr as each reported chunk
completes.`,
		Example: `  spinnman write-mem --chip 1,2 --base 0x67800000 --in app.aplx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWriteMem(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.chip, "chip", "0,0", "chip coordinate as x,y")
	cmd.Flags().StringVar(&flags.inFile, "in", "", "input file (required)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 60*time.Second, "operation timeout")
	cmd.Flags().BoolVar(&flags.noProgress, "no-progress", false, "disable the progress bar")
	cmd.Flags().Var(hexUint32Flag{&flags.base}, "base", "base address (hex or decimal)")
	cmd.MarkFlagRequired("in")
	return cmd
}

func runWriteMem(cmd *cobra.Command, flags *writeMemFlags) error {
	x, y, err := parseChipCoord(flags.chip)
	if err != nil {
		return err
	}
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

	reporter := progress.NewTransferReporter(int64(len(data)), fmt.Sprintf("write-mem %s", flags.chip))
	if flags.noProgress {
		reporter.Disable()
	}

	for offset := 0; offset < len(data); offset += reportedChunkSize {
		end := offset + reportedChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]
		if err := tr.WriteMemory(ctx, x, y, flags.base+uint32(offset), chunk); err != nil {
			return errors.WrapSCPError(err, fmt.Sprintf("write_memory at offset %d", offset))
		}
		reporter.Advance(int64(len(chunk)))
	}
	reporter.Done()
	return nil
}
