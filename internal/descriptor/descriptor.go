package descriptor

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"kernelctl/internal/api"
)

// Arity is the number of dynamic segments a capability name takes.
type Arity int

const (
	ArityNullary Arity = iota
	ArityUnary
	ArityBinary
	ArityTernary
)

// MaxArity is the largest supported number of dynamic segments.
const MaxArity = ArityTernary

// segmentParams names the segments of each arity, most general first.
var segmentParams = [...][]string{
	ArityNullary: nil,
	ArityUnary:   {"name"},
	ArityBinary:  {"parent", "child"},
	ArityTernary: {"ancestor", "parent", "child"},
}

func (a Arity) String() string {
	switch a {
	case ArityNullary:
		return "nullary"
	case ArityUnary:
		return "unary"
	case ArityBinary:
		return "binary"
	case ArityTernary:
		return "ternary"
	default:
		return fmt.Sprintf("arity(%d)", int(a))
	}
}

// Valid reports whether a is one of the supported arities.
func (a Arity) Valid() bool {
	return a >= ArityNullary && a <= MaxArity
}

// SegmentNames returns the parameter names of the segments for this arity.
func (a Arity) SegmentNames() []string {
	if !a.Valid() {
		return nil
	}
	return append([]string(nil), segmentParams[a]...)
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)*$`)

// ValidateName checks that name is a dot-separated ASCII identifier.
func ValidateName(name string) error {
	if name == "" {
		return api.NewArgumentError("name", "capability name must not be empty")
	}
	if !namePattern.MatchString(name) {
		return api.NewArgumentError("name", "capability name %q is not a dot-separated identifier", name)
	}
	return nil
}

// ServiceDescriptor is the untyped view of a Descriptor used by the registry
// and the resolution context. It cannot be implemented outside this package.
type ServiceDescriptor interface {
	Name() string
	Arity() Arity
	ValueType() reflect.Type
	Resolve(segments ...string) (Resolved, error)
	String() string

	sealed()
}

// Descriptor identifies a capability kind producing values of type T.
// Two descriptors are identical iff they have the same name and value type,
// which is exactly Go equality on Descriptor[T] values and on
// ServiceDescriptor interface values.
type Descriptor[T any] struct {
	name  string
	arity Arity
}

// New creates a descriptor with the given name and arity.
func New[T any](name string, arity Arity) (Descriptor[T], error) {
	if err := ValidateName(name); err != nil {
		return Descriptor[T]{}, err
	}
	if !arity.Valid() {
		return Descriptor[T]{}, api.NewArgumentError("arity", "must be between 0 and %d, got %d", int(MaxArity), int(arity))
	}
	return Descriptor[T]{name: name, arity: arity}, nil
}

func must[T any](name string, arity Arity) Descriptor[T] {
	d, err := New[T](name, arity)
	if err != nil {
		panic(err)
	}
	return d
}

// Nullary creates a descriptor whose name takes no segments.
// It panics on an invalid name and is meant for package-level values.
func Nullary[T any](name string) Descriptor[T] { return must[T](name, ArityNullary) }

// Unary creates a descriptor whose name takes one segment.
func Unary[T any](name string) Descriptor[T] { return must[T](name, ArityUnary) }

// Binary creates a descriptor whose name takes a parent and a child segment.
func Binary[T any](name string) Descriptor[T] { return must[T](name, ArityBinary) }

// Ternary creates a descriptor whose name takes ancestor, parent and child segments.
func Ternary[T any](name string) Descriptor[T] { return must[T](name, ArityTernary) }

func (d Descriptor[T]) Name() string { return d.name }
func (d Descriptor[T]) Arity() Arity { return d.arity }
func (d Descriptor[T]) sealed() {}
func (d Descriptor[T]) IsZero() bool   { return d.name == "" }
func (d Descriptor[T]) String() string { return fmt.Sprintf("%s(%s)", d.name, d.arity) }

// ValueType returns the type of the value the capability produces.
func (d Descriptor[T]) ValueType() reflect.Type {
	return reflect.TypeFor[T]()
}

// Resolve binds the descriptor to concrete segments. Exactly Arity non-empty
// segments are required, most general first.
func (d Descriptor[T]) Resolve(segments ...string) (Resolved, error) {
	if d.name == "" {
		return Resolved{}, api.NewArgumentError("descriptor", "zero descriptor cannot be resolved")
	}
	if len(segments) != int(d.arity) {
		return Resolved{}, api.NewArgumentError("segments", "%s expects %d segment(s), got %d", d.name, int(d.arity), len(segments))
	}

	r := Resolved{name: d.name, n: len(segments)}
	for i, s := range segments {
		if s == "" {
			return Resolved{}, api.NewArgumentError(segmentParams[d.arity][i], "must not be empty")
		}
		r.segments[i] = s
	}
	return r, nil
}

// Resolved is a descriptor name bound to concrete segments. It is a
// comparable value: equal names and segments give equal values, so it can
// be used directly as a map key.
type Resolved struct {
	name     string
	n        int
	segments [MaxArity]string
}

func (r Resolved) Name() string { return r.name }
func (r Resolved) Len() int     { return r.n }
func (r Resolved) IsZero() bool { return r.name == "" }

// Segments returns a copy of the segments in order.
func (r Resolved) Segments() []string {
	out := make([]string, r.n)
	copy(out, r.segments[:r.n])
	return out
}

// String renders the canonical dotted form, e.g. org.wildfly.io.worker.default.
func (r Resolved) String() string {
	if r.n == 0 {
		return r.name
	}
	parts := make([]string, 0, r.n+1)
	parts = append(parts, r.name)
	parts = append(parts, r.segments[:r.n]...)
	return strings.Join(parts, ".")
}
