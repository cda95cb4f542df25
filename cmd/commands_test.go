package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"kernelctl/internal/api"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ioManifest = `
subsystem: io
modelVersion: 1.0.0
capabilities:
  - name: org.wildfly.io.worker
    arity: 1
resources:
  - address: subsystem=io/worker=default
    provides: [org.wildfly.io.worker]
`
	remotingManifest = `
subsystem: remoting
modelVersion: 1.0.0
resources:
  - address: subsystem=remoting
    provides: [org.wildfly.remoting.endpoint]
    requires:
      - capability: org.wildfly.io.worker
        segments: [default]
`
	cycleManifest = `
subsystem: loop
modelVersion: 1.0.0
resources:
  - address: subsystem=loop/node=a
    provides: [org.example.a]
    requires:
      - capability: org.example.b
  - address: subsystem=loop/node=b
    provides: [org.example.b]
    requires:
      - capability: org.example.a
`
)

// withManifests writes the manifests and a config pointing at them, and
// selects that config for the commands under test.
func withManifests(t *testing.T, manifests map[string]string) {
	t.Helper()
	dir := t.TempDir()
	mdir := filepath.Join(dir, "manifests")
	require.NoError(t, os.MkdirAll(mdir, 0755))
	for name, content := range manifests {
		require.NoError(t, os.WriteFile(filepath.Join(mdir, name), []byte(content), 0644))
	}
	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("logging:\n  level: error\nmanifests:\n  paths: ["+mdir+"]\n"), 0644))

	original := configPath
	configPath = cfg
	t.Cleanup(func() { configPath = original })
}

func execute(t *testing.T, c *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	c.SetOut(&out)
	c.SetErr(&errOut)
	c.SetArgs(args)
	err := c.Execute()
	return out.String() + errOut.String(), err
}

func TestCapabilityList_JSON(t *testing.T) {
	withManifests(t, map[string]string{"io.yaml": ioManifest, "remoting.yaml": remotingManifest})

	out, err := execute(t, newCapabilityCmd(), "list", "-o", "json")
	require.NoError(t, err)

	var entries []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "org.wildfly.io.worker.default", entries[0]["name"])
	assert.Equal(t, "subsystem=io/worker=default", entries[0]["provider"])
	assert.Equal(t, "active", entries[0]["state"])
	assert.Equal(t, "org.wildfly.remoting.endpoint", entries[1]["name"])
}

func TestCapabilityList_Table(t *testing.T) {
	withManifests(t, map[string]string{"io.yaml": ioManifest})

	out, err := execute(t, newCapabilityCmd(), "list")
	require.NoError(t, err)
	assert.Contains(t, out, "org.wildfly.io.worker.default")
	assert.Contains(t, out, "subsystem=io/worker=default")
}

func TestCapabilityList_BadFormat(t *testing.T) {
	withManifests(t, map[string]string{"io.yaml": ioManifest})

	_, err := execute(t, newCapabilityCmd(), "list", "-o", "xml")
	assert.Error(t, err)
}

func TestPlan_Levels(t *testing.T) {
	withManifests(t, map[string]string{"io.yaml": ioManifest, "remoting.yaml": remotingManifest})

	out, err := execute(t, newPlanCmd(), "-o", "json")
	require.NoError(t, err)

	var levels []planLevel
	require.NoError(t, json.Unmarshal([]byte(out), &levels))
	require.Len(t, levels, 2)
	require.Len(t, levels[0].Units, 1)
	assert.Equal(t, "subsystem=io/worker=default#org.wildfly.io.worker", levels[0].Units[0].Name)
	require.Len(t, levels[1].Units, 1)
	assert.Equal(t, "subsystem=remoting#org.wildfly.remoting.endpoint", levels[1].Units[0].Name)
	assert.Equal(t, []string{"org.wildfly.io.worker.default"}, levels[1].Units[0].DependsOn)
}

func TestPlan_Cycle(t *testing.T) {
	withManifests(t, map[string]string{"loop.yaml": cycleManifest})

	out, err := execute(t, newPlanCmd())
	require.ErrorIs(t, err, api.ErrDependencyCycle)
	assert.Contains(t, out, "Dependency cycle")
}
