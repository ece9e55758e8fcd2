package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/spinnaker-go/spinnman/internal/transceiver"
)

type iobufFlags struct {
	cores   string
	timeout time.Duration
}

func newIOBufCmd() *cobra.Command {
	flags := &iobufFlags{}
	cmd := &cobra.Command{
		Use:   "iobuf",
		Short: "Print the IOBuf text each listed core has written",
		Long: `Walks each core's iobuf linked list (spec §4.6 "GetIOBuf",
original_source read_iobuf_process.py) and prints the concatenated text.`,
		Example: `  spinnman iobuf --cores 0,0,1;0,0,2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIOBuf(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.cores, "cores", "", "semicolon-separated x,y,p triples (empty: every discovered core)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 30*time.Second, "operation timeout")
	return cmd
}

func runIOBuf(cmd *cobra.Command, flags *iobufFlags) error {
	cores, err := parseCoreList(flags.cores)
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

	buffers, err := tr.GetIOBuf(ctx, cores)
	if err != nil {
		return fmt.Errorf("get iobuf: %w", err)
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7aa2f7"))
	for _, b := range buffers {
		fmt.Fprintln(os.Stdout, headerStyle.Render(fmt.Sprintf("=== core (%d,%d,%d) ===", b.X, b.Y, b.P)))
		fmt.Fprintln(os.Stdout, b.Text)
	}
	return nil
}

func parseCoreList(s string) ([]transceiver.CoreLocation, error) {
	if s == "" {
		return nil, nil
	}
	var out []transceiver.CoreLocation
	for _, triple := range splitNonEmpty(s, ';') {
		var x, y, p int
		if _, err := fmt.Sscanf(triple, "%d,%d,%d", &x, &y, &p); err != nil {
			return nil, fmt.Errorf("invalid core %q, want x,y,p", triple)
		}
		out = append(out, transceiver.CoreLocation{X: uint8(x), Y: uint8(y), P: uint8(p)})
	}
	return out, nil
}

func splitNonEmpty(s string, sep rune) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == sep {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
