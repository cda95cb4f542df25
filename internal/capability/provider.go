package capability

import (
	"reflect"
	"sync"
	"time"

	"kernelctl/internal/api"
	"kernelctl/internal/descriptor"
)

// Provider is a live registration and the slot holding the value its
// provider produced once started.
type Provider struct {
	id           string
	resolved     descriptor.Resolved
	capability   *Capability
	provider     string
	registeredAt time.Time

	mu      sync.RWMutex
	value   any
	active  bool
	removed bool
}

func (p *Provider) ID() string                    { return p.id }
func (p *Provider) Resolved() descriptor.Resolved { return p.resolved }
func (p *Provider) Capability() *Capability       { return p.capability }
func (p *Provider) Address() string               { return p.provider }
func (p *Provider) RegisteredAt() time.Time       { return p.registeredAt }

// Handle returns the handle of this registration.
func (p *Provider) Handle() Handle {
	return Handle{ID: p.id, Resolved: p.resolved, Provider: p.provider}
}

// Activate publishes the started value. The value must be assignable to
// the descriptor's value type.
func (p *Provider) Activate(value any) error {
	vt := p.capability.Descriptor().ValueType()
	if !assignable(value, vt) {
		return api.NewArgumentError("value", "%T is not assignable to %s for %s", value, vt, p.resolved)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.removed {
		return api.NewCapabilityNotFoundError(p.resolved.String(), p.provider)
	}
	p.value = value
	p.active = true
	return nil
}

// Deactivate retracts the value. Suppliers fail again until the next Activate.
func (p *Provider) Deactivate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value = nil
	p.active = false
}

// Active reports whether a value is published.
func (p *Provider) Active() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// Removed reports whether the registration has been unregistered.
func (p *Provider) Removed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.removed
}

// Value returns the published value. It fails with ErrNotYetStarted before
// Activate and again once the value is retracted or the registration removed.
func (p *Provider) Value() (any, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.active {
		return nil, api.NewNotYetStartedError(p.resolved.String())
	}
	return p.value, nil
}

func (p *Provider) markRemoved() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = true
	p.active = false
	p.value = nil
}

func (p *Provider) info() Info {
	return Info{
		ID:            p.id,
		Name:          p.resolved.String(),
		Capability:    p.resolved.Name(),
		Segments:      p.resolved.Segments(),
		Provider:      p.provider,
		ValueType:     p.capability.Descriptor().ValueType().String(),
		AllowMultiple: p.capability.AllowMultiple(),
		Active:        p.Active(),
		RegisteredAt:  p.registeredAt,
	}
}

func assignable(value any, to reflect.Type) bool {
	if value == nil {
		switch to.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return true
		}
		return false
	}
	return reflect.TypeOf(value).AssignableTo(to)
}
