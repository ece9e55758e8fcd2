package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/spinnaker-go/spinnman/internal/metrics"
)

type serveMetricsFlags struct {
	listen string
}

func newServeMetricsCmd() *cobra.Command {
	flags := &serveMetricsFlags{}
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Connect to the machine and serve pipeline statistics over HTTP",
		Long: `Connects to the configured machine, registers every live pipeline
(chip-facing and BMP) with a Prometheus collector (spec §4.4
PipelineState.counters), and serves it on --listen until interrupted.`,
		Example: `  spinnman serve-metrics --listen :9109`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeMetrics(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.listen, "listen", "", "listen address (default: metrics.listen_ip:metrics.port from config)")
	return cmd
}

func runServeMetrics(cmd *cobra.Command, flags *serveMetricsFlags) error {
	configPath, _ := cmd.Flags().GetString("config")
	tr, cfg, err := connect(configPath)
	if err != nil {
		return err
	}
	defer tr.Close()

	collector := metrics.NewPipelineCollector()
	tr.RegisterMetrics(collector)

	registry := prometheus.NewRegistry()
	if err := registry.Register(collector); err != nil {
		return fmt.Errorf("register collector: %w", err)
	}

	listen := flags.listen
	if listen == "" {
		listen = fmt.Sprintf("%s:%d", cfg.Metrics.ListenIP, cfg.Metrics.Port)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	fmt.Fprintf(os.Stdout, "serving /metrics on %s\n", listen)
	return http.ListenAndServe(listen, mux)
}
