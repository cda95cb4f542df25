package descriptor

import (
	"errors"
	"reflect"
	"testing"

	"kernelctl/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type worker struct{ threads int }

var (
	workerDesc   = Unary[*worker]("org.wildfly.io.worker")
	endpointDesc = Nullary[string]("org.wildfly.remoting.endpoint")
	realmDesc    = Binary[string]("org.wildfly.security.security-realm")
	mechDesc     = Ternary[string]("org.wildfly.security.sasl-mechanism")
)

func descriptorOfArity(a Arity) ServiceDescriptor {
	switch a {
	case ArityNullary:
		return endpointDesc
	case ArityUnary:
		return workerDesc
	case ArityBinary:
		return realmDesc
	default:
		return mechDesc
	}
}

func segmentGen() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-z0-9][a-z0-9-]{0,11}`)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		capName string
		arity   Arity
		wantErr bool
	}{
		{"valid nullary", "org.wildfly.management.jmx", ArityNullary, false},
		{"valid ternary", "org.wildfly.security.sasl-mechanism", ArityTernary, false},
		{"empty name", "", ArityUnary, true},
		{"trailing dot", "org.wildfly.", ArityUnary, true},
		{"space", "org wildfly", ArityUnary, true},
		{"negative arity", "org.wildfly.io.worker", Arity(-1), true},
		{"arity too large", "org.wildfly.io.worker", Arity(4), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New[int](tt.capName, tt.arity)
			if tt.wantErr {
				assert.ErrorIs(t, err, api.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.capName, d.Name())
			assert.Equal(t, tt.arity, d.Arity())
		})
	}
}

func TestConstructorsPanicOnInvalidName(t *testing.T) {
	assert.Panics(t, func() { Unary[int]("not a name") })
	assert.NotPanics(t, func() { Unary[int]("org.wildfly.io.worker") })
}

func TestIdentity(t *testing.T) {
	a := Unary[*worker]("org.wildfly.io.worker")
	b := Unary[*worker]("org.wildfly.io.worker")
	assert.Equal(t, a, b)
	assert.True(t, ServiceDescriptor(a) == ServiceDescriptor(b))

	// Same name, different value type: different identity.
	c := Unary[string]("org.wildfly.io.worker")
	assert.False(t, ServiceDescriptor(a) == ServiceDescriptor(c))
	assert.Equal(t, reflect.TypeFor[*worker](), a.ValueType())
	assert.Equal(t, reflect.TypeFor[string](), c.ValueType())
}

func TestResolve_Worker(t *testing.T) {
	r, err := workerDesc.Resolve("default")
	require.NoError(t, err)

	assert.Equal(t, "org.wildfly.io.worker", r.Name())
	assert.Equal(t, []string{"default"}, r.Segments())
	assert.Equal(t, "org.wildfly.io.worker.default", r.String())
}

func TestResolve_NamesOffendingSegment(t *testing.T) {
	_, err := mechDesc.Resolve("ApplicationDomain", "", "PLAIN")

	var argErr *api.ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "parent", argErr.Param)

	_, err = realmDesc.Resolve("", "child")
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "parent", argErr.Param)

	_, err = workerDesc.Resolve("")
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "name", argErr.Param)
}

func TestResolve_SegmentsCopied(t *testing.T) {
	r, err := realmDesc.Resolve("a", "b")
	require.NoError(t, err)

	segs := r.Segments()
	segs[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, r.Segments())
}

func TestResolve_DistinctDescriptorsDoNotCollide(t *testing.T) {
	// Concatenated names coincide but the structured keys do not.
	outer := Unary[string]("org.wildfly.io")
	inner := Nullary[string]("org.wildfly.io.worker")

	a, err := outer.Resolve("worker")
	require.NoError(t, err)
	b, err := inner.Resolve()
	require.NoError(t, err)

	assert.Equal(t, a.String(), b.String())
	assert.NotEqual(t, a, b)
}

func TestResolve_Deterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		arity := Arity(rapid.IntRange(0, int(MaxArity)).Draw(t, "arity"))
		d := descriptorOfArity(arity)
		segs := rapid.SliceOfN(segmentGen(), int(arity), int(arity)).Draw(t, "segments")

		first, err := d.Resolve(segs...)
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		second, err := d.Resolve(append([]string(nil), segs...)...)
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		if first != second {
			t.Fatalf("resolve not deterministic: %v != %v", first, second)
		}
		if !reflect.DeepEqual(first.Segments(), segs) && len(segs) > 0 {
			t.Fatalf("segments reordered: %v != %v", first.Segments(), segs)
		}
	})
}

func TestResolve_WrongCountRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		arity := Arity(rapid.IntRange(0, int(MaxArity)).Draw(t, "arity"))
		d := descriptorOfArity(arity)
		n := rapid.IntRange(0, 5).Filter(func(n int) bool { return n != int(arity) }).Draw(t, "count")
		segs := rapid.SliceOfN(segmentGen(), n, n).Draw(t, "segments")

		_, err := d.Resolve(segs...)
		if !errorsIsInvalid(err) {
			t.Fatalf("expected invalid argument for %d segments on %s, got %v", n, d, err)
		}
	})
}

func TestResolve_EmptySegmentRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		arity := Arity(rapid.IntRange(1, int(MaxArity)).Draw(t, "arity"))
		d := descriptorOfArity(arity)
		segs := rapid.SliceOfN(segmentGen(), int(arity), int(arity)).Draw(t, "segments")
		segs[rapid.IntRange(0, int(arity)-1).Draw(t, "hole")] = ""

		_, err := d.Resolve(segs...)
		if !errorsIsInvalid(err) {
			t.Fatalf("expected invalid argument for %v on %s, got %v", segs, d, err)
		}
	})
}

func errorsIsInvalid(err error) bool {
	return errors.Is(err, api.ErrInvalidArgument)
}
