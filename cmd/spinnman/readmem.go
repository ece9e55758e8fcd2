package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/spinnaker-go/spinnman/internal/errors"
)

type readMemFlags struct {
	chip    string
	base    uint32
	length  uint32
	outFile string
	timeout time.Duration
}

func newReadMemCmd() *cobra.Command {
	flags := &readMemFlags{}
	cmd := &cobra.Command{
		Use:   "read-mem",
		Short: "Read a block of SDRAM from a chip",
		Long: `Splits [base, base+length) into <=256-byte ReadMemory chunks, submits
them all concurrently via the chip's pipeline, and writes the reassembled
bytes to --out (or stdout).`,
		Example: `  spinnman read-mem --chip 1,2 --base 0x67800000 --length 1024 --out dump.bin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReadMem(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.chip, "chip", "0,0", "chip coordinate as x,y")
	cmd.Flags().StringVar(&flags.outFile, "out", "", "output file (default: stdout)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 30*time.Second, "operation timeout")
	cmd.Flags().Var(hexUint32Flag{&flags.base}, "base", "base address (hex or decimal)")
	cmd.Flags().Var(hexUint32Flag{&flags.length}, "length", "number of bytes to read")
	return cmd
}

func runReadMem(cmd *cobra.Command, flags *readMemFlags) error {
	x, y, err := parseChipCoord(flags.chip)
	if err != nil {
		return err
	}
	configPath, _ := cmd.Flags().GetString("config")
	tr, _, err := connect(configPath)
	if err != nil {
		return err
	}
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	data, err := tr.ReadMemory(ctx, x, y, flags.base, flags.length)
	if err != nil {
		return errors.WrapSCPError(err, "read_memory")
	}

	if flags.outFile == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(flags.outFile, data, 0644)
}

func parseChipCoord(s string) (x, y uint8, err error) {
	var xi, yi int
	if _, err := fmt.Sscanf(s, "%d,%d", &xi, &yi); err != nil {
		return 0, 0, fmt.Errorf("invalid chip coordinate %q, want x,y", s)
	}
	return uint8(xi), uint8(yi), nil
}

// hexUint32Flag implements pflag.Value over a *uint32, accepting both
// "0x"-prefixed hex and plain decimal (spec addresses are usually quoted
// in hex).
type hexUint32Flag struct{ dest *uint32 }

func (f hexUint32Flag) String() string {
	if f.dest == nil {
		return "0"
	}
	return strconv.FormatUint(uint64(*f.dest), 10)
}

func (f hexUint32Flag) Set(s string) error {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return fmt.Errorf("invalid integer %q: %w", s, err)
	}
	*f.dest = uint32(v)
	return nil
}

func (f hexUint32Flag) Type() string { return "uint32" }
