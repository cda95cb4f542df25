package resolution

import (
	"context"
	"sync"

	"kernelctl/internal/api"
	"kernelctl/internal/capability"
	"kernelctl/internal/descriptor"
	"kernelctl/internal/reference"
)

// StartFunc produces the value a unit provides. It runs outside every lock.
type StartFunc func(ctx context.Context) (any, error)

// StopFunc releases the value produced by StartFunc.
type StopFunc func(ctx context.Context, value any) error

// binding is a declared reference of a unit and the hook that binds its
// typed supplier.
type binding struct {
	ref  reference.Dependency
	bind func(reference.Binder) error
}

type unit struct {
	name     string
	state    api.UnitState
	handles  []capability.Handle
	owned    []*capability.Provider
	bindings []binding
	start    StartFunc
	stop     StopFunc

	// set during a build
	edges map[descriptor.Resolved]*capability.Provider
	value any
	level int
}

// UnitBuilder collects the definition of a unit before Install.
type UnitBuilder struct {
	ctx       *Context
	u         *unit
	installed bool
}

// Name returns the unit name.
func (b *UnitBuilder) Name() string { return b.u.name }

// Provides marks registrations whose value this unit produces. The unit
// owns them: they are unregistered when the unit is removed.
func (b *UnitBuilder) Provides(handles ...capability.Handle) *UnitBuilder {
	b.u.handles = append(b.u.handles, handles...)
	return b
}

// OnStart sets the function producing the unit's value.
func (b *UnitBuilder) OnStart(fn StartFunc) *UnitBuilder {
	b.u.start = fn
	return b
}

// OnStop sets the function releasing the unit's value.
func (b *UnitBuilder) OnStop(fn StopFunc) *UnitBuilder {
	b.u.stop = fn
	return b
}

// Install submits the unit. It stays PENDING until the next Build.
func (b *UnitBuilder) Install() error {
	if b.installed {
		return api.NewArgumentError("unit", "%s is already installed", b.u.name)
	}
	if err := b.ctx.install(b.u); err != nil {
		return err
	}
	b.installed = true
	return nil
}

// Requires declares that the unit depends on ref and returns a supplier
// for the referenced value. The supplier fails with ErrNotYetStarted until
// the unit has been bound and the provider is active; equal references
// share one registry lookup and one graph edge.
func Requires[T any](b *UnitBuilder, ref reference.Reference[T]) reference.Supplier[T] {
	if s, ok := ref.Fixed(); ok {
		return s
	}

	var (
		mu       sync.RWMutex
		supplier reference.Supplier[T]
	)

	b.u.bindings = append(b.u.bindings, binding{
		ref: ref,
		bind: func(binder reference.Binder) error {
			s, err := ref.Bind(binder)
			if err != nil {
				return err
			}
			mu.Lock()
			supplier = s
			mu.Unlock()
			return nil
		},
	})

	return reference.SupplierFunc[T](func() (T, error) {
		mu.RLock()
		s := supplier
		mu.RUnlock()
		if s == nil {
			var zero T
			return zero, api.NewNotYetStartedError(ref.String())
		}
		return s.Get()
	})
}

// unitBinder binds the references of one unit. Lookups are memoized per
// build pass, keyed by resolved name.
type unitBinder struct {
	ctx  *Context
	unit *unit
	memo map[descriptor.Resolved]*capability.Provider
}

func (b *unitBinder) Requester() string { return b.unit.name }

func (b *unitBinder) Bind(d descriptor.ServiceDescriptor, r descriptor.Resolved) (*capability.Provider, error) {
	p, ok := b.memo[r]
	if ok && !p.Removed() {
		provided := p.Capability().Descriptor().ValueType()
		if !provided.AssignableTo(d.ValueType()) {
			return nil, api.NewArgumentError("descriptor", "%s provides %s, which is not assignable to %s", r, provided, d.ValueType())
		}
	} else {
		var err error
		p, err = b.ctx.registry.LookupResolved(d, r)
		bindingLookups.Inc()
		if err != nil {
			return nil, err
		}
		b.memo[r] = p
	}

	b.unit.edges[r] = p
	return p, nil
}
