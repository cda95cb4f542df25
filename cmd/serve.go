package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"kernelctl/internal/app"

	"github.com/spf13/cobra"
)

type serveOptions struct {
	watch       bool
	metricsAddr string
	manifests   []string
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Apply the subsystem manifests and keep the kernel running",
		Long: `Loads the configuration and every subsystem manifest, registers the
capabilities of all resources, resolves their requirements and starts the
services in dependency order. The kernel runs until interrupted; on SIGINT or
SIGTERM every service is stopped in reverse start order.

With --watch, manifest changes are re-applied while running: changed or
deleted resources are stopped (dependents first) and new ones are started.

Configuration:
  kernelctl loads .kernelctl/config.yaml in the current directory and
  ~/.config/kernelctl/config.yaml, or the file given with --config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Re-apply manifests when they change")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address (e.g. localhost:9464)")
	cmd.Flags().StringSliceVarP(&opts.manifests, "manifests", "m", nil, "Manifest files or directories (overrides manifests.paths)")
	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	cfg := app.NewConfig(configPath, debug)
	cfg.Watch = opts.watch
	cfg.MetricsAddr = opts.metricsAddr
	cfg.ManifestPaths = opts.manifests

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return application.Run(ctx)
}
