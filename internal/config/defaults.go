package config

import "time"

const (
	DefaultModelVersions  = ">=1.0.0, <2.0.0"
	DefaultMetricsAddress = "localhost:9464"
	DefaultServiceName    = "kernelctl"
)

// GetDefaultConfig returns the configuration used when no file overrides it.
func GetDefaultConfig() KernelConfig {
	return KernelConfig{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Manifests: ManifestsConfig{
			Paths: []string{"manifests"},
		},
		Kernel: KernelSettings{
			SupportedModelVersions: DefaultModelVersions,
			StartTimeout:           30 * time.Second,
			StopTimeout:            10 * time.Second,
		},
		Metrics: MetricsConfig{
			Address: DefaultMetricsAddress,
		},
		Tracing: TracingConfig{
			Exporter:    "none",
			ServiceName: DefaultServiceName,
		},
	}
}
