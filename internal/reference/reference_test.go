package reference

import (
	"testing"

	"kernelctl/internal/api"
	"kernelctl/internal/capability"
	"kernelctl/internal/descriptor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type Worker struct {
	Threads int
}

var workerDesc = descriptor.Unary[*Worker]("org.wildfly.io.worker")

type registryBinder struct {
	registry  *capability.Registry
	requester string
}

func (b registryBinder) Requester() string { return b.requester }

func (b registryBinder) Bind(d descriptor.ServiceDescriptor, r descriptor.Resolved) (*capability.Provider, error) {
	return b.registry.LookupResolved(d, r)
}

func TestOn_DoesNotNeedProvider(t *testing.T) {
	ref, err := On(workerDesc, "default")
	require.NoError(t, err)

	key, bound := ref.Key()
	assert.True(t, bound)
	assert.Equal(t, "org.wildfly.io.worker.default", key.String())
	assert.False(t, ref.Literal())

	_, fixed := ref.Fixed()
	assert.False(t, fixed)
}

func TestOn_InvalidSegments(t *testing.T) {
	_, err := On(workerDesc)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	_, err = On(workerDesc, "")
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	assert.Panics(t, func() { MustOn(workerDesc, "a", "b") })
}

func TestOf_Literal(t *testing.T) {
	w := &Worker{Threads: 2}
	ref := Of(w)

	_, bound := ref.Key()
	assert.False(t, bound)
	assert.Nil(t, ref.Descriptor())

	fixed, ok := ref.Fixed()
	require.True(t, ok)
	got, err := fixed.Get()
	require.NoError(t, err)
	assert.Same(t, w, got)

	s, err := ref.Bind(nil)
	require.NoError(t, err)
	got, err = s.Get()
	require.NoError(t, err)
	assert.Same(t, w, got)

	nilRef := Of[*Worker](nil)
	s, err = nilRef.Bind(nil)
	require.NoError(t, err)
	got, err = s.Get()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBind_WorkerExample(t *testing.T) {
	reg := capability.NewRegistry()
	binder := registryBinder{registry: reg, requester: "subsystem=remoting"}
	ref := MustOn(workerDesc, "default")

	_, err := ref.Bind(binder)
	require.ErrorIs(t, err, api.ErrUnresolvedCapability)
	assert.ErrorIs(t, err, api.ErrCapabilityNotFound)

	var capErr *api.CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "subsystem=remoting", capErr.Requester)
	assert.Equal(t, "org.wildfly.io.worker.default", capErr.Capability)

	h, err := reg.Register(capability.Registration{
		Capability: capability.Of(workerDesc).Build(),
		Segments:   []string{"default"},
		Provider:   "subsystem=io/worker=default",
	})
	require.NoError(t, err)

	supplier, err := ref.Bind(binder)
	require.NoError(t, err)

	_, err = supplier.Get()
	assert.ErrorIs(t, err, api.ErrNotYetStarted)

	p, ok := reg.Get(h.ID)
	require.True(t, ok)
	produced := &Worker{Threads: 4}
	require.NoError(t, p.Activate(produced))

	first, err := supplier.Get()
	require.NoError(t, err)
	second, err := supplier.Get()
	require.NoError(t, err)
	assert.Same(t, produced, first)
	assert.Same(t, first, second)
}

func TestEqual(t *testing.T) {
	a := MustOn(workerDesc, "default")
	b := MustOn(workerDesc, "default")
	c := MustOn(workerDesc, "other")
	untyped := MustOn(descriptor.Unary[any]("org.wildfly.io.worker"), "default")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.True(t, a.Equal(untyped))
	assert.False(t, a.Equal(Of(&Worker{})))

	assert.True(t, Equal(Of(3), Of(3)))
	assert.False(t, Equal(Of(3), Of(4)))

	ka, _ := a.Key()
	kb, _ := b.Key()
	edges := map[descriptor.Resolved]int{}
	edges[ka]++
	edges[kb]++
	assert.Len(t, edges, 1)
}

func TestEqual_Property(t *testing.T) {
	binary := descriptor.Binary[string]("org.wildfly.security.security-realm")
	seg := rapid.StringMatching(`[a-z]{1,4}`)

	rapid.Check(t, func(t *rapid.T) {
		p1, c1 := seg.Draw(t, "p1"), seg.Draw(t, "c1")
		p2, c2 := seg.Draw(t, "p2"), seg.Draw(t, "c2")

		a := MustOn(binary, p1, c1)
		b := MustOn(binary, p2, c2)

		if a.Equal(b) != (p1 == p2 && c1 == c2) {
			t.Fatalf("equality of %s and %s is wrong", a, b)
		}
		if a.Equal(b) != b.Equal(a) {
			t.Fatalf("equality is not symmetric for %s and %s", a, b)
		}
	})
}
