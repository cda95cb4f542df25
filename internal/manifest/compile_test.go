package manifest

import (
	"context"
	"testing"

	"kernelctl/internal/api"
	"kernelctl/internal/capability"
	"kernelctl/internal/descriptor"
	"kernelctl/internal/resolution"
	"kernelctl/internal/resource"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, contents ...string) []*Manifest {
	t.Helper()
	l, err := NewLoader("")
	require.NoError(t, err)

	var manifests []*Manifest
	for _, c := range contents {
		m, err := l.Parse([]byte(c))
		require.NoError(t, err)
		manifests = append(manifests, m)
	}
	return manifests
}

func TestCompile_AppliesToTree(t *testing.T) {
	entries, err := Compile(parse(t, remotingManifest, ioManifest))
	require.NoError(t, err)

	var addrs []string
	for _, e := range entries {
		addrs = append(addrs, e.Resource.Address.String())
	}
	assert.Equal(t, []string{"subsystem=io", "subsystem=io/worker=default", "subsystem=remoting"}, addrs)
	assert.Equal(t, "io", entries[0].Subsystem)

	reg := capability.NewRegistry()
	tree := resource.NewTree(resolution.NewContext(reg))
	require.NoError(t, tree.Add(context.Background(), Resources(entries)...))

	worker, err := reg.Lookup(descriptor.Unary[any]("org.wildfly.io.worker"), "default")
	require.NoError(t, err)
	v, err := worker.Value()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"threads": 4}, v)

	_, err = reg.Lookup(descriptor.Nullary[any]("org.wildfly.remoting.endpoint"))
	require.NoError(t, err)
	assert.NoError(t, reg.Validate())
}

func TestCompile_UnresolvedRequirementFailsBatch(t *testing.T) {
	entries, err := Compile(parse(t, remotingManifest))
	require.NoError(t, err)

	reg := capability.NewRegistry()
	tree := resource.NewTree(resolution.NewContext(reg))
	err = tree.Add(context.Background(), Resources(entries)...)
	require.ErrorIs(t, err, api.ErrUnresolvedCapability)
	assert.Equal(t, 0, reg.Count())
}

func TestCompile_AllowMultiple(t *testing.T) {
	const pools = `
subsystem: io
modelVersion: 1.0.0
capabilities:
  - name: org.wildfly.io.buffer-pool
    arity: 1
    allowMultiple: true
resources:
  - address: subsystem=io/buffer-pool=default
    provides: [org.wildfly.io.buffer-pool]
  - address: subsystem=io/buffer-pool=large
    provides: [org.wildfly.io.buffer-pool]
`
	entries, err := Compile(parse(t, pools))
	require.NoError(t, err)

	reg := capability.NewRegistry()
	tree := resource.NewTree(resolution.NewContext(reg))
	require.NoError(t, tree.Add(context.Background(), Resources(entries)...))
	pool := descriptor.Unary[any]("org.wildfly.io.buffer-pool")
	for _, name := range []string{"default", "large"} {
		providers, err := reg.LookupAll(pool, name)
		require.NoError(t, err)
		assert.Len(t, providers, 1)
	}
	assert.Equal(t, 2, reg.Count())
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name      string
		manifests []string
		wantErr   error
	}{
		{
			name: "conflicting declarations",
			manifests: []string{
				"subsystem: a\nmodelVersion: 1.0.0\ncapabilities:\n  - {name: org.x, arity: 1}\n",
				"subsystem: b\nmodelVersion: 1.0.0\ncapabilities:\n  - {name: org.x, arity: 2}\n",
			},
			wantErr: api.ErrInvalidArgument,
		},
		{
			name: "inconsistent forward references",
			manifests: []string{`
subsystem: a
modelVersion: 1.0.0
resources:
  - address: subsystem=a
    requires:
      - {capability: org.x, segments: [one]}
      - {capability: org.x, segments: [one, two]}
`},
			wantErr: api.ErrInvalidArgument,
		},
		{
			name: "wrong requirement segments",
			manifests: []string{`
subsystem: a
modelVersion: 1.0.0
capabilities:
  - {name: org.x, arity: 2}
resources:
  - address: subsystem=a
    requires:
      - {capability: org.x, segments: [one]}
`},
			wantErr: api.ErrInvalidArgument,
		},
		{
			name: "address too short for arity",
			manifests: []string{`
subsystem: a
modelVersion: 1.0.0
capabilities:
  - {name: org.x, arity: 2}
resources:
  - address: subsystem=a
    provides: [org.x]
`},
			wantErr: api.ErrInvalidArgument,
		},
		{
			name: "duplicate address",
			manifests: []string{
				"subsystem: a\nmodelVersion: 1.0.0\nresources:\n  - address: subsystem=a\n",
				"subsystem: b\nmodelVersion: 1.0.0\nresources:\n  - address: subsystem=a\n",
			},
			wantErr: api.ErrInvalidArgument,
		},
		{
			name:      "bad address",
			manifests: []string{"subsystem: a\nmodelVersion: 1.0.0\nresources:\n  - address: subsystem\n"},
			wantErr:   api.ErrInvalidArgument,
		},
		{
			name:      "bad capability name",
			manifests: []string{"subsystem: a\nmodelVersion: 1.0.0\ncapabilities:\n  - {name: 'org..x', arity: 0}\n"},
			wantErr:   api.ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(parse(t, tt.manifests...))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCompile_DigestTracksChanges(t *testing.T) {
	before, err := Compile(parse(t, ioManifest))
	require.NoError(t, err)
	same, err := Compile(parse(t, ioManifest))
	require.NoError(t, err)

	changed := `
subsystem: io
modelVersion: 1.2.0
capabilities:
  - name: org.wildfly.io.worker
    arity: 1
    allowMultiple: true
resources:
  - address: subsystem=io/worker=default
    provides: [org.wildfly.io.worker]
    value:
      threads: 4
`
	after, err := Compile(parse(t, changed))
	require.NoError(t, err)

	require.Len(t, before, 2)
	assert.Equal(t, before[1].Digest, same[1].Digest)
	assert.NotEqual(t, before[1].Digest, after[1].Digest)
	assert.Equal(t, before[0].Digest, after[0].Digest)
}
