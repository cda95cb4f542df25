package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"kernelctl/pkg/logging"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/kernelctl"
	projectConfigDir = ".kernelctl"
	configFileName   = "config.yaml"
)

// LoadConfig loads the kernelctl configuration by layering default, user, and project settings.
func LoadConfig() (KernelConfig, error) {
	config := GetDefaultConfig()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// User config is optional
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else if err := overlayIfExists(&config, userConfigPath); err != nil {
		return KernelConfig{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
	}

	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine project config path: %v\n", err)
	} else if err := overlayIfExists(&config, projectConfigPath); err != nil {
		return KernelConfig{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
	}

	if err := Validate(config); err != nil {
		return KernelConfig{}, err
	}
	return config, nil
}

// LoadConfigFromFile loads the defaults overlaid with a single explicit file.
// The user and project layers are skipped.
func LoadConfigFromFile(path string) (KernelConfig, error) {
	config := GetDefaultConfig()
	if err := overlayFromFile(&config, path); err != nil {
		return KernelConfig{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	if err := Validate(config); err != nil {
		return KernelConfig{}, err
	}
	return config, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

func overlayIfExists(config *KernelConfig, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return overlayFromFile(config, path)
}

// overlayFromFile decodes a YAML file on top of config. Keys missing from
// the file keep their current values; lists are replaced as a whole.
func overlayFromFile(config *KernelConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	overlay := *config
	overlay.Manifests.Paths = append([]string(nil), config.Manifests.Paths...)
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return err
	}
	*config = overlay
	return nil
}

// Validate reports every invalid setting of config.
func Validate(config KernelConfig) error {
	var errs []error
	if _, err := logging.ParseLevel(config.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch logging.Format(config.Logging.Format) {
	case logging.FormatText, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", config.Logging.Format))
	}
	if config.Kernel.SupportedModelVersions != "" {
		if _, err := semver.NewConstraint(config.Kernel.SupportedModelVersions); err != nil {
			errs = append(errs, fmt.Errorf("kernel.supportedModelVersions: %w", err))
		}
	}
	if config.Kernel.StartTimeout <= 0 {
		errs = append(errs, fmt.Errorf("kernel.startTimeout must be positive"))
	}
	if config.Kernel.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("kernel.stopTimeout must be positive"))
	}
	if config.Metrics.Enabled && config.Metrics.Address == "" {
		errs = append(errs, fmt.Errorf("metrics.address is required when metrics are enabled"))
	}
	switch config.Tracing.Exporter {
	case "", "none", "stdout":
	default:
		errs = append(errs, fmt.Errorf("tracing.exporter: unknown exporter %q", config.Tracing.Exporter))
	}
	return errors.Join(errs...)
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
