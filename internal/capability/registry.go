package capability

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"kernelctl/internal/api"
	"kernelctl/internal/descriptor"
	"kernelctl/pkg/logging"

	"github.com/google/uuid"
)

// entry holds the live registrations of one resolved name, oldest first.
type entry struct {
	valueType     reflect.Type
	allowMultiple bool
	providers     []*Provider
}

// Registry maps resolved capability names to live registrations.
// Mutations are serialized; lookups run concurrently and see a registration
// either fully or not at all.
type Registry struct {
	mu      sync.RWMutex
	entries map[descriptor.Resolved]*entry // resolved name -> registrations
	byID    map[string]*Provider           // handle ID -> registration

	// Callbacks, invoked outside the lock
	onRegister       []func(p *Provider)
	onUnregister     []func(p *Provider)
	beforeUnregister []func(p *Provider) error
}

// NewRegistry creates an empty capability registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[descriptor.Resolved]*entry),
		byID:    make(map[string]*Provider),
	}
}

// Register adds a registration. A second live registration under the same
// resolved name fails with ErrDuplicateCapability unless both sides allow
// multiple registrations; a failed call leaves the registry unchanged.
func (r *Registry) Register(reg Registration) (Handle, error) {
	if reg.Capability == nil || reg.Capability.Descriptor() == nil {
		return Handle{}, api.NewArgumentError("capability", "must not be nil")
	}
	d := reg.Capability.Descriptor()

	resolved, err := d.Resolve(reg.Segments...)
	if err != nil {
		registrationErrors.WithLabelValues(d.Name(), "invalid").Inc()
		return Handle{}, fmt.Errorf("failed to register %s for %s: %w", d.Name(), reg.Provider, err)
	}

	r.mu.Lock()
	e, exists := r.entries[resolved]
	if exists {
		if e.valueType != d.ValueType() {
			r.mu.Unlock()
			registrationErrors.WithLabelValues(d.Name(), "type_mismatch").Inc()
			return Handle{}, api.NewArgumentError("capability",
				"%s is registered with value type %s, got %s", resolved, e.valueType, d.ValueType())
		}
		if len(e.providers) > 0 && !(e.allowMultiple && reg.Capability.AllowMultiple()) {
			r.mu.Unlock()
			registrationErrors.WithLabelValues(d.Name(), "duplicate").Inc()
			return Handle{}, api.NewDuplicateCapabilityError(resolved.String(), reg.Provider)
		}
	} else {
		e = &entry{valueType: d.ValueType(), allowMultiple: reg.Capability.AllowMultiple()}
		r.entries[resolved] = e
	}

	p := &Provider{
		id:           uuid.New().String(),
		resolved:     resolved,
		capability:   reg.Capability,
		provider:     reg.Provider,
		registeredAt: time.Now(),
	}
	e.providers = append(e.providers, p)
	r.byID[p.id] = p
	callbacks := append([]func(*Provider){}, r.onRegister...)
	r.mu.Unlock()

	liveRegistrations.WithLabelValues(d.Name()).Inc()
	logging.Info("Registry", "Registered capability %s (provider: %s, multiple: %t)",
		resolved, reg.Provider, reg.Capability.AllowMultiple())

	for _, callback := range callbacks {
		callback(p)
	}

	return p.Handle(), nil
}

// Unregister removes the registration identified by h and retracts its
// value. BeforeUnregister hooks run first, while the registration is still
// live. Removing an unknown or already removed handle is a no-op.
func (r *Registry) Unregister(h Handle) error {
	r.mu.RLock()
	p, exists := r.byID[h.ID]
	hooks := append([]func(*Provider) error{}, r.beforeUnregister...)
	r.mu.RUnlock()
	if !exists {
		logging.Debug("Registry", "Ignoring unregister of unknown capability handle %s (%s)", h.ID, h.Resolved)
		return nil
	}

	var errs []error
	for _, hook := range hooks {
		if err := hook(p); err != nil {
			errs = append(errs, err)
		}
	}

	r.mu.Lock()
	if _, exists := r.byID[h.ID]; !exists {
		// A hook already removed it.
		r.mu.Unlock()
		return errors.Join(errs...)
	}
	delete(r.byID, h.ID)
	if e, ok := r.entries[p.resolved]; ok {
		e.providers = removeProvider(e.providers, p)
		if len(e.providers) == 0 {
			delete(r.entries, p.resolved)
		}
	}
	p.markRemoved()
	callbacks := append([]func(*Provider){}, r.onUnregister...)
	r.mu.Unlock()

	liveRegistrations.WithLabelValues(p.resolved.Name()).Dec()
	logging.Info("Registry", "Unregistered capability %s (provider: %s)", p.resolved, p.provider)

	for _, callback := range callbacks {
		callback(p)
	}

	return errors.Join(errs...)
}

// Lookup resolves d against segments and returns the oldest live
// registration with exactly that resolved name.
func (r *Registry) Lookup(d descriptor.ServiceDescriptor, segments ...string) (*Provider, error) {
	resolved, err := resolve(d, segments)
	if err != nil {
		return nil, err
	}
	return r.LookupResolved(d, resolved)
}

// LookupResolved is Lookup for a name already resolved from d.
func (r *Registry) LookupResolved(d descriptor.ServiceDescriptor, resolved descriptor.Resolved) (*Provider, error) {
	providers, err := r.lookup(d, resolved)
	if err != nil {
		return nil, err
	}
	return providers[0], nil
}

// LookupAll returns every live registration for the resolved name, oldest first.
func (r *Registry) LookupAll(d descriptor.ServiceDescriptor, segments ...string) ([]*Provider, error) {
	resolved, err := resolve(d, segments)
	if err != nil {
		return nil, err
	}
	return r.lookup(d, resolved)
}

func (r *Registry) lookup(d descriptor.ServiceDescriptor, resolved descriptor.Resolved) ([]*Provider, error) {
	if d == nil {
		return nil, api.NewArgumentError("descriptor", "must not be nil")
	}
	if resolved.Name() != d.Name() {
		return nil, api.NewArgumentError("resolved", "%s was not resolved from %s", resolved, d.Name())
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entries[resolved]
	if !exists || len(e.providers) == 0 {
		lookupTotal.WithLabelValues("not_found").Inc()
		return nil, api.NewCapabilityNotFoundError(resolved.String(), "")
	}
	if !e.valueType.AssignableTo(d.ValueType()) {
		lookupTotal.WithLabelValues("type_mismatch").Inc()
		return nil, api.NewArgumentError("descriptor",
			"%s provides %s, which is not assignable to %s", resolved, e.valueType, d.ValueType())
	}

	lookupTotal.WithLabelValues("found").Inc()
	result := make([]*Provider, len(e.providers))
	copy(result, e.providers)
	return result, nil
}

// Get retrieves a registration by handle ID
func (r *Registry) Get(id string) (*Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.byID[id]
	return p, exists
}

// Count returns the number of live registrations
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// List returns all live registrations ordered by name, then registration time.
func (r *Registry) List() []Info {
	r.mu.RLock()
	providers := make([]*Provider, 0, len(r.byID))
	for _, p := range r.byID {
		providers = append(providers, p)
	}
	r.mu.RUnlock()

	sort.Slice(providers, func(i, j int) bool {
		a, b := providers[i], providers[j]
		if a.resolved.String() != b.resolved.String() {
			return a.resolved.String() < b.resolved.String()
		}
		return a.registeredAt.Before(b.registeredAt)
	})

	result := make([]Info, len(providers))
	for i, p := range providers {
		result[i] = p.info()
	}
	return result
}

// ListByProvider returns the live registrations made by one provider
func (r *Registry) ListByProvider(provider string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Handle
	for _, p := range r.byID {
		if p.provider == provider {
			result = append(result, p.Handle())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Resolved.String() < result[j].Resolved.String() })
	return result
}

// Validate checks the declared requirements of every live registration and
// reports each one that has no live provider.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	unresolved := 0
	for _, p := range r.byID {
		for _, req := range p.capability.requirements {
			target, err := req.Resolve(p.resolved.Segments())
			if err != nil {
				errs = append(errs, fmt.Errorf("requirement of %s: %w", p.resolved, err))
				unresolved++
				continue
			}
			if e, ok := r.entries[target]; !ok || len(e.providers) == 0 {
				errs = append(errs, api.NewCapabilityNotFoundError(target.String(), p.provider))
				unresolved++
			}
		}
	}
	unresolvedRequirements.Set(float64(unresolved))
	return errors.Join(errs...)
}

// OnRegister adds a callback for capability registration
func (r *Registry) OnRegister(callback func(p *Provider)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRegister = append(r.onRegister, callback)
}

// OnUnregister adds a callback for capability removal
func (r *Registry) OnUnregister(callback func(p *Provider)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onUnregister = append(r.onUnregister, callback)
}

// BeforeUnregister adds a hook that runs before a registration is removed.
// Hooks run outside the lock and may unregister the same handle
// themselves. Errors are returned from Unregister; the registration is
// removed either way.
func (r *Registry) BeforeUnregister(hook func(p *Provider) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeUnregister = append(r.beforeUnregister, hook)
}

func resolve(d descriptor.ServiceDescriptor, segments []string) (descriptor.Resolved, error) {
	if d == nil {
		return descriptor.Resolved{}, api.NewArgumentError("descriptor", "must not be nil")
	}
	return d.Resolve(segments...)
}

// removeProvider removes p from the slice, keeping order
func removeProvider(slice []*Provider, p *Provider) []*Provider {
	for i, c := range slice {
		if c == p {
			return append(slice[:i], slice[i+1:]...)
		}
	}
	return slice
}
