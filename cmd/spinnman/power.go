package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type powerFlags struct {
	bmpIndex int
	boards   string
	delay    float64
	timeout  time.Duration
}

func newPowerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "power",
		Short: "Power a BMP's boards on or off",
	}
	cmd.AddCommand(newPowerOnCmd())
	cmd.AddCommand(newPowerOffCmd())
	return cmd
}

func newPowerOnCmd() *cobra.Command {
	flags := &powerFlags{}
	cmd := &cobra.Command{
		Use:   "on",
		Short: "Power on the given BMP's boards",
		Example: `  spinnman power on --bmp 0 --boards 0,1,2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPower(cmd, flags, true)
		},
	}
	registerPowerFlags(cmd, flags)
	return cmd
}

func newPowerOffCmd() *cobra.Command {
	flags := &powerFlags{}
	cmd := &cobra.Command{
		Use:   "off",
		Short: "Power off the given BMP's boards",
		Example: `  spinnman power off --bmp 0 --boards 0,1,2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPower(cmd, flags, false)
		},
	}
	registerPowerFlags(cmd, flags)
	return cmd
}

func registerPowerFlags(cmd *cobra.Command, flags *powerFlags) {
	cmd.Flags().IntVar(&flags.bmpIndex, "bmp", 0, "index into machine.bmps in the config file")
	cmd.Flags().StringVar(&flags.boards, "boards", "", "comma-separated board numbers (required)")
	cmd.Flags().Float64Var(&flags.delay, "delay", 0, "delay in seconds the BMP waits between successive boards' power changes")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 30*time.Second, "operation timeout")
	cmd.MarkFlagRequired("boards")
}

func runPower(cmd *cobra.Command, flags *powerFlags, on bool) error {
	boards, err := parseIntList(flags.boards)
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

	if on {
		err = tr.PowerOnBoards(ctx, flags.bmpIndex, boards, flags.delay)
	} else {
		err = tr.PowerOffBoards(ctx, flags.bmpIndex, boards, flags.delay)
	}
	if err != nil {
		return fmt.Errorf("power: %w", err)
	}
	fmt.Fprintf(os.Stdout, "bmp[%d] boards %v powered\n", flags.bmpIndex, boards)
	return nil
}

func parseIntList(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid board number %q: %w", p, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no boards given")
	}
	return out, nil
}
