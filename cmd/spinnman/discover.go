package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/spinnaker-go/spinnman/internal/errors"
)

type discoverFlags struct {
	width   int
	height  int
	timeout time.Duration
}

func newDiscoverCmd() *cobra.Command {
	flags := &discoverFlags{}
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Run topology discovery and print the resulting chip graph",
		Long: `Walks the machine's chip-to-chip links breadth-first from (0,0) (spec §4.6
"Discovery algorithm"), filtering out any ignore_chips/ignore_cores the
config file names, and prints every discovered chip.`,
		Example: `  spinnman discover --width 8 --height 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(cmd, flags)
		},
	}
	cmd.Flags().IntVar(&flags.width, "width", 8, "machine width in chips")
	cmd.Flags().IntVar(&flags.height, "height", 8, "machine height in chips")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 60*time.Second, "discovery timeout")
	return cmd
}

var (
	discoverHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7aa2f7"))
	discoverDimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89"))
	discoverEthStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#9ece6a"))
)

func runDiscover(cmd *cobra.Command, flags *discoverFlags) error {
	configPath, _ := cmd.Flags().GetString("config")
	tr, _, err := connect(configPath)
	if err != nil {
		return err
	}
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	m, err := tr.Discover(ctx, [2]int{flags.width, flags.height})
	if err != nil {
		return errors.WrapSCPError(err, "discover")
	}

	chips := m.Chips()
	sort.Slice(chips, func(i, j int) bool {
		if chips[i].Coord.X != chips[j].Coord.X {
			return chips[i].Coord.X < chips[j].Coord.X
		}
		return chips[i].Coord.Y < chips[j].Coord.Y
	})

	fmt.Fprintln(os.Stdout, discoverHeaderStyle.Render(fmt.Sprintf("discovered %d chip(s)", len(chips))))
	fmt.Fprintf(os.Stdout, "%-8s %-6s %-16s %-10s %-18s %s\n",
		"chip", "cores", "links", "clock", "ethernet", "router")
	for _, c := range chips {
		links := 0
		for _, l := range c.Router.Links {
			if l != nil {
				links++
			}
		}
		eth := discoverDimStyle.Render("-")
		if c.EthernetIP != "" {
			eth = discoverEthStyle.Render(c.EthernetIP)
		}
		fmt.Fprintf(os.Stdout, "%-8s %-6d %-16d %-10s %-18s %d/free\n",
			c.Coord.String(), len(c.VirtualCoreIDs), links,
			fmt.Sprintf("%dMHz", c.CPUClockMHz), eth, c.Router.FirstFreeEntry)
	}
	return nil
}
