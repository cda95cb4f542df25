package reference

import (
	"fmt"
	"reflect"

	"kernelctl/internal/api"
	"kernelctl/internal/capability"
	"kernelctl/internal/descriptor"
)

// Binder resolves references to live registrations during a binding pass.
// The resolution context implements it once per requesting unit.
type Binder interface {
	// Requester names the unit the binding is done for.
	Requester() string
	// Bind returns the live provider for a name resolved from d.
	Bind(d descriptor.ServiceDescriptor, r descriptor.Resolved) (*capability.Provider, error)
}

// Dependency is the untyped view of a Reference.
type Dependency interface {
	// Key returns the resolved name a descriptor-bound reference points at.
	// Literals have no key.
	Key() (descriptor.Resolved, bool)
	Descriptor() descriptor.ServiceDescriptor
	String() string
}

// Reference is either a literal value or a pointer to the value a
// capability will produce. Constructing one never touches the registry, so
// references can name providers that do not exist yet.
type Reference[T any] struct {
	desc     descriptor.Descriptor[T]
	resolved descriptor.Resolved
	literal  T
	bound    bool
}

// Of returns a reference to a fixed value. The zero value is allowed.
func Of[T any](value T) Reference[T] {
	return Reference[T]{literal: value}
}

// On returns a reference to the value of capability d under segments.
func On[T any](d descriptor.Descriptor[T], segments ...string) (Reference[T], error) {
	r, err := d.Resolve(segments...)
	if err != nil {
		return Reference[T]{}, err
	}
	return Reference[T]{desc: d, resolved: r, bound: true}, nil
}

// MustOn is On for references built from constants. It panics on an
// invalid segment list.
func MustOn[T any](d descriptor.Descriptor[T], segments ...string) Reference[T] {
	ref, err := On(d, segments...)
	if err != nil {
		panic(err)
	}
	return ref
}

// Literal reports whether the reference holds a fixed value.
func (r Reference[T]) Literal() bool { return !r.bound }

// Fixed returns the supplier of a literal reference. It reports false for
// references bound to a capability, which need Bind.
func (r Reference[T]) Fixed() (Supplier[T], bool) {
	if r.bound {
		return nil, false
	}
	return literalSupplier[T]{value: r.literal}, true
}

func (r Reference[T]) Key() (descriptor.Resolved, bool) {
	return r.resolved, r.bound
}

func (r Reference[T]) Descriptor() descriptor.ServiceDescriptor {
	if !r.bound {
		return nil
	}
	return r.desc
}

func (r Reference[T]) String() string {
	if !r.bound {
		return fmt.Sprintf("literal(%v)", r.literal)
	}
	return r.resolved.String()
}

// Equal reports whether two references denote the same value. Bound
// references compare by resolved name only, whatever their value type.
func (r Reference[T]) Equal(other Dependency) bool {
	return Equal(r, other)
}

// Equal compares two dependencies structurally.
func Equal(a, b Dependency) bool {
	ka, boundA := a.Key()
	kb, boundB := b.Key()
	if boundA || boundB {
		return boundA && boundB && ka == kb
	}
	la, okA := a.(interface{ literalValue() any })
	lb, okB := b.(interface{ literalValue() any })
	return okA && okB && reflect.DeepEqual(la.literalValue(), lb.literalValue())
}

func (r Reference[T]) literalValue() any { return r.literal }

// Bind resolves the reference through b. It fails with
// ErrUnresolvedCapability when no live registration matches; calling it
// again once the provider is registered succeeds.
func (r Reference[T]) Bind(b Binder) (Supplier[T], error) {
	if s, ok := r.Fixed(); ok {
		return s, nil
	}
	if b == nil {
		return nil, api.NewArgumentError("binder", "must not be nil")
	}

	p, err := b.Bind(r.desc, r.resolved)
	if err != nil {
		return nil, api.NewUnresolvedCapabilityError(r.resolved.String(), b.Requester(), err)
	}
	return providerSupplier[T]{provider: p}, nil
}
