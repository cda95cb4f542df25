package config

import (
	"time"
)

// KernelConfig is the top-level configuration structure for kernelctl.
type KernelConfig struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Manifests ManifestsConfig `yaml:"manifests"`
	Kernel    KernelSettings  `yaml:"kernel"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn or error
	Format string `yaml:"format"` // text or json
}

// ManifestsConfig locates the subsystem manifests.
type ManifestsConfig struct {
	Paths []string `yaml:"paths"`           // Files or directories of *.yaml manifests
	Watch bool     `yaml:"watch,omitempty"` // Re-apply manifests when they change
}

// KernelSettings tunes the resolution context.
type KernelSettings struct {
	// SupportedModelVersions is a semver constraint manifests' modelVersion must satisfy.
	SupportedModelVersions string        `yaml:"supportedModelVersions"`
	StartTimeout           time.Duration `yaml:"startTimeout"`
	StopTimeout            time.Duration `yaml:"stopTimeout"`
}

// MetricsConfig controls the prometheus endpoint of serve.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address,omitempty"` // e.g. "localhost:9464"
}

// TracingConfig controls span export.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Exporter    string `yaml:"exporter,omitempty"` // none or stdout
	ServiceName string `yaml:"serviceName,omitempty"`
}
