package app

import (
	"kernelctl/internal/config"
)

// Config holds the application configuration
type Config struct {
	// ConfigPath is an explicit config file. Empty means the layered lookup.
	ConfigPath string

	// Debug forces debug logging regardless of the configured level.
	Debug bool

	// Overrides from flags. Zero values keep the configured setting.
	Watch         bool
	MetricsAddr   string
	ManifestPaths []string

	// Kernel configuration, filled in by NewApplication.
	KernelConfig *config.KernelConfig
}

// NewConfig creates a new application configuration
func NewConfig(configPath string, debug bool) *Config {
	return &Config{
		ConfigPath: configPath,
		Debug:      debug,
	}
}

// applyOverrides folds the flag overrides into the loaded configuration.
func (c *Config) applyOverrides() {
	kc := c.KernelConfig
	if c.Debug {
		kc.Logging.Level = "debug"
	}
	if c.Watch {
		kc.Manifests.Watch = true
	}
	if c.MetricsAddr != "" {
		kc.Metrics.Enabled = true
		kc.Metrics.Address = c.MetricsAddr
	}
	if len(c.ManifestPaths) > 0 {
		kc.Manifests.Paths = c.ManifestPaths
	}
}
