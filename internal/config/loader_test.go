package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockConfigPaths points the user and project layers into dir.
func mockConfigPaths(t *testing.T, dir string) {
	t.Helper()
	originalHome, originalGetwd := osUserHomeDir, osGetwd
	t.Cleanup(func() {
		osUserHomeDir, osGetwd = originalHome, originalGetwd
	})
	osUserHomeDir = func() (string, error) { return filepath.Join(dir, "home"), nil }
	osGetwd = func() (string, error) { return filepath.Join(dir, "project"), nil }
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadConfig_DefaultOnly(t *testing.T) {
	mockConfigPaths(t, t.TempDir())

	loaded, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), loaded)
}

func TestLoadConfig_UserOverride(t *testing.T) {
	dir := t.TempDir()
	mockConfigPaths(t, dir)

	writeConfig(t, filepath.Join(dir, "home", userConfigDir, configFileName), `
logging:
  level: debug
kernel:
  startTimeout: 1m
`)

	loaded, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", loaded.Logging.Level)
	assert.Equal(t, "text", loaded.Logging.Format)
	assert.Equal(t, time.Minute, loaded.Kernel.StartTimeout)
	assert.Equal(t, 10*time.Second, loaded.Kernel.StopTimeout)
}

func TestLoadConfig_ProjectOverridesUser(t *testing.T) {
	dir := t.TempDir()
	mockConfigPaths(t, dir)

	writeConfig(t, filepath.Join(dir, "home", userConfigDir, configFileName), `
logging:
  format: json
manifests:
  paths: [/etc/kernelctl]
metrics:
  enabled: true
`)
	writeConfig(t, filepath.Join(dir, "project", projectConfigDir, configFileName), `
manifests:
  paths: [subsystems, extra.yaml]
  watch: true
metrics:
  enabled: false
`)

	loaded, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "json", loaded.Logging.Format)
	assert.Equal(t, []string{"subsystems", "extra.yaml"}, loaded.Manifests.Paths)
	assert.True(t, loaded.Manifests.Watch)
	assert.False(t, loaded.Metrics.Enabled)
}

func TestLoadConfig_Malformed(t *testing.T) {
	dir := t.TempDir()
	mockConfigPaths(t, dir)

	writeConfig(t, filepath.Join(dir, "project", projectConfigDir, configFileName), "logging: [")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error loading project config")
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	mockConfigPaths(t, dir)

	// Ignored when an explicit file is given.
	writeConfig(t, filepath.Join(dir, "project", projectConfigDir, configFileName), "logging:\n  level: error\n")

	path := filepath.Join(dir, "explicit.yaml")
	writeConfig(t, path, "tracing:\n  enabled: true\n  exporter: stdout\n")

	loaded, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "info", loaded.Logging.Level)
	assert.True(t, loaded.Tracing.Enabled)
	assert.Equal(t, "stdout", loaded.Tracing.Exporter)
	assert.Equal(t, DefaultServiceName, loaded.Tracing.ServiceName)

	_, err = LoadConfigFromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *KernelConfig)
		wantErr string
	}{
		{name: "defaults", mutate: func(*KernelConfig) {}},
		{name: "log level", mutate: func(c *KernelConfig) { c.Logging.Level = "loud" }, wantErr: "logging.level"},
		{name: "log format", mutate: func(c *KernelConfig) { c.Logging.Format = "xml" }, wantErr: "logging.format"},
		{name: "constraint", mutate: func(c *KernelConfig) { c.Kernel.SupportedModelVersions = "latest please" }, wantErr: "kernel.supportedModelVersions"},
		{name: "start timeout", mutate: func(c *KernelConfig) { c.Kernel.StartTimeout = 0 }, wantErr: "kernel.startTimeout"},
		{name: "stop timeout", mutate: func(c *KernelConfig) { c.Kernel.StopTimeout = -time.Second }, wantErr: "kernel.stopTimeout"},
		{name: "metrics address", mutate: func(c *KernelConfig) { c.Metrics.Enabled = true; c.Metrics.Address = "" }, wantErr: "metrics.address"},
		{name: "exporter", mutate: func(c *KernelConfig) { c.Tracing.Exporter = "jaeger" }, wantErr: "tracing.exporter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := GetDefaultConfig()
			tt.mutate(&c)
			err := Validate(c)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
