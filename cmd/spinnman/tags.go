package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/spinnaker-go/spinnman/internal/transceiver"
)

func newTagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Manage IP tags",
	}
	cmd.AddCommand(newTagsSetCmd())
	cmd.AddCommand(newTagsClearCmd())
	cmd.AddCommand(newTagsGetCmd())
	return cmd
}

type tagsSetFlags struct {
	tag     uint8
	host    string
	port    uint16
	strip   bool
	timeout time.Duration
}

func newTagsSetCmd() *cobra.Command {
	flags := &tagsSetFlags{}
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Install an IP tag on every SCP-sender endpoint",
		Example: `  spinnman tags set --tag 1 --host 192.168.1.50 --port 17893`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			tr, _, err := connect(configPath)
			if err != nil {
				return err
			}
			defer tr.Close()
			ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
			defer cancel()
			err = tr.SetIPTag(ctx, transceiver.IPTag{
				Tag: flags.tag, Host: flags.host, Port: flags.port, StripSDP: flags.strip,
			})
			if err != nil {
				return fmt.Errorf("set ip tag: %w", err)
			}
			fmt.Fprintln(os.Stdout, "tag installed")
			return nil
		},
	}
	cmd.Flags().Uint8Var(&flags.tag, "tag", 0, "tag number")
	cmd.Flags().StringVar(&flags.host, "host", "", "destination host (required)")
	cmd.Flags().Uint16Var(&flags.port, "port", 0, "destination port (required)")
	cmd.Flags().BoolVar(&flags.strip, "strip-sdp", false, "strip the SDP header before forwarding")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 10*time.Second, "operation timeout")
	cmd.MarkFlagRequired("host")
	cmd.MarkFlagRequired("port")
	return cmd
}

type tagsClearFlags struct {
	tag     uint8
	timeout time.Duration
}

func newTagsClearCmd() *cobra.Command {
	flags := &tagsClearFlags{}
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove an IP tag from every SCP-sender endpoint",
		Example: `  spinnman tags clear --tag 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			tr, _, err := connect(configPath)
			if err != nil {
				return err
			}
			defer tr.Close()
			ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
			defer cancel()
			if err := tr.ClearIPTag(ctx, flags.tag, nil); err != nil {
				return fmt.Errorf("clear ip tag: %w", err)
			}
			fmt.Fprintln(os.Stdout, "tag cleared")
			return nil
		},
	}
	cmd.Flags().Uint8Var(&flags.tag, "tag", 0, "tag number")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 10*time.Second, "operation timeout")
	return cmd
}

type tagsGetFlags struct {
	timeout time.Duration
}

func newTagsGetCmd() *cobra.Command {
	flags := &tagsGetFlags{}
	cmd := &cobra.Command{
		Use:   "get",
		Short: "List every installed tag's in-use status",
		Example: `  spinnman tags get`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			tr, _, err := connect(configPath)
			if err != nil {
				return err
			}
			defer tr.Close()
			ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
			defer cancel()
			infos, err := tr.GetTags(ctx)
			if err != nil {
				return fmt.Errorf("get tags: %w", err)
			}
			for _, info := range infos {
				state := "free"
				if info.InUse {
					state = "in use"
				}
				fmt.Fprintf(os.Stdout, "%s tag %d: %s\n", info.Chip.String(), info.Tag, state)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 10*time.Second, "operation timeout")
	return cmd
}
