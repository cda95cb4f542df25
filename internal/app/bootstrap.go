package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"kernelctl/internal/config"
	"kernelctl/internal/manifest"
	"kernelctl/pkg/logging"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultDebounce = 500 * time.Millisecond

// Application is the main application structure that bootstraps and runs the kernel
type Application struct {
	config   *Config
	services *Services
	debounce time.Duration
}

// NewApplication loads the configuration, initializes logging and wires
// the kernel services.
func NewApplication(cfg *Config) (*Application, error) {
	var (
		kc  config.KernelConfig
		err error
	)
	if cfg.ConfigPath != "" {
		kc, err = config.LoadConfigFromFile(cfg.ConfigPath)
	} else {
		kc, err = config.LoadConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load kernelctl configuration: %w", err)
	}
	cfg.KernelConfig = &kc
	cfg.applyOverrides()

	level, err := logging.ParseLevel(kc.Logging.Level)
	if err != nil {
		return nil, err
	}
	logging.Init(level, logging.Format(kc.Logging.Format), os.Stderr)
	if cfg.ConfigPath != "" {
		logging.Info("Bootstrap", "Loaded configuration from %s", cfg.ConfigPath)
	} else {
		logging.Info("Bootstrap", "Loaded configuration using layered approach")
	}

	services, err := InitializeServices(cfg.KernelConfig)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
		debounce: defaultDebounce,
	}, nil
}

// Services returns the kernel components.
func (a *Application) Services() *Services { return a.services }

// Apply loads and compiles every manifest and reconciles the resource
// tree with them. Nothing is touched when loading or compiling fails.
func (a *Application) Apply(ctx context.Context) error {
	manifests, err := a.services.Loader.Load(a.config.KernelConfig.Manifests.Paths...)
	if err != nil {
		return err
	}
	entries, err := manifest.Compile(manifests)
	if err != nil {
		return err
	}
	if err := a.services.Applier.Apply(ctx, entries); err != nil {
		return err
	}
	if err := a.services.Registry.Validate(); err != nil {
		logging.Warn("Bootstrap", "Unsatisfied capability requirements: %v", err)
	}
	return nil
}

// Run applies the manifests and keeps the kernel up until ctx is done,
// re-applying on manifest changes when watching is enabled. Everything
// is stopped in reverse start order before Run returns.
func (a *Application) Run(ctx context.Context) (err error) {
	kc := a.config.KernelConfig

	defer func() {
		err = errors.Join(err, a.Shutdown())
	}()

	if kc.Metrics.Enabled {
		ms, err := NewMetricsServer(kc.Metrics.Address, prometheus.DefaultGatherer)
		if err != nil {
			return err
		}
		ms.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := ms.Shutdown(shutdownCtx); err != nil {
				logging.Error("Metrics", err, "Failed to stop metrics server")
			}
		}()
	}

	if err := a.Apply(ctx); err != nil {
		if !kc.Manifests.Watch {
			return err
		}
		logging.Error("Bootstrap", err, "Initial manifest apply failed, waiting for changes")
	}
	logging.Info("Bootstrap", "Kernel running with %d resources. Press Ctrl+C to stop.", a.services.Applier.Applied())

	if kc.Manifests.Watch {
		return a.Watch(ctx)
	}
	<-ctx.Done()
	return nil
}

// Shutdown stops every unit in reverse start order and flushes spans.
func (a *Application) Shutdown() error {
	kc := a.config.KernelConfig
	ctx, cancel := context.WithTimeout(context.Background(), kc.Kernel.StopTimeout+5*time.Second)
	defer cancel()

	logging.Info("Bootstrap", "Shutting down kernel")
	return errors.Join(
		a.services.Context.Shutdown(ctx),
		a.services.Tracing.Shutdown(ctx),
	)
}
