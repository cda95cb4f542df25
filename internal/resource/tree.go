package resource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"kernelctl/internal/api"
	"kernelctl/internal/capability"
	"kernelctl/internal/resolution"
	"kernelctl/pkg/logging"
)

// InstallFunc configures the unit producing a resource's capability value:
// its references, start and stop functions.
type InstallFunc func(b *resolution.UnitBuilder, addr Address) error

// Service is one unit a resource contributes. When Capability is set the
// unit provides it, registered under segments taken from the address.
type Service struct {
	Capability *capability.Capability
	Install    InstallFunc
}

// Definition is the static definition of a resource.
type Definition struct {
	Services []Service
}

// UnitName names the unit providing capability for the resource at addr.
func UnitName(addr, capability string) string {
	return addr + "#" + capability
}

// Resource is a resource to add to the tree.
type Resource struct {
	Address    Address
	Definition Definition
}

type node struct {
	address Address
	handles []capability.Handle
	units   []string
}

// Info describes a resource for listings.
type Info struct {
	Address      string            `json:"address" yaml:"address"`
	Capabilities []string          `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Units        map[string]string `json:"units,omitempty" yaml:"units,omitempty"`
}

// Tree holds the configuration resources and keeps their capability
// registrations and units in step with them.
type Tree struct {
	mu    sync.Mutex
	rc    *resolution.Context
	nodes map[string]*node // address -> node
}

// NewTree creates an empty tree driving rc.
func NewTree(rc *resolution.Context) *Tree {
	return &Tree{
		rc:    rc,
		nodes: make(map[string]*node),
	}
}

// Add registers the capabilities of every resource, installs their units
// and builds them as one request. Resources may reference each other in
// any order. On failure nothing is added.
func (t *Tree) Add(ctx context.Context, resources ...Resource) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.validate(resources); err != nil {
		return err
	}

	registry := t.rc.Registry()
	var (
		added     []*node
		installed []string
		orphans   []capability.Handle
	)
	rollback := func(cause error) error {
		errs := []error{cause}
		for _, name := range installed {
			if err := t.rc.Remove(ctx, name); err != nil {
				errs = append(errs, err)
			}
		}
		for _, h := range orphans {
			if err := registry.Unregister(h); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	for _, res := range resources {
		n := &node{address: res.Address}
		for _, svc := range res.Definition.Services {
			name := res.Address.String()
			var h capability.Handle
			if svc.Capability != nil {
				segments, err := res.Address.Segments(svc.Capability.Descriptor().Arity())
				if err != nil {
					return rollback(err)
				}
				h, err = registry.Register(capability.Registration{
					Capability: svc.Capability,
					Segments:   segments,
					Provider:   res.Address.String(),
				})
				if err != nil {
					return rollback(err)
				}
				orphans = append(orphans, h)
				n.handles = append(n.handles, h)
				name = UnitName(res.Address.String(), svc.Capability.Name())
			}

			b := t.rc.AddUnit(name)
			if !h.IsZero() {
				b.Provides(h)
			}
			if svc.Install != nil {
				if err := svc.Install(b, res.Address); err != nil {
					return rollback(fmt.Errorf("failed to configure %s: %w", name, err))
				}
			}
			if err := b.Install(); err != nil {
				return rollback(err)
			}
			if !h.IsZero() {
				orphans = orphans[:len(orphans)-1]
			}
			installed = append(installed, name)
			n.units = append(n.units, name)
		}
		added = append(added, n)
	}

	if err := t.rc.Build(ctx); err != nil {
		// A failed build already released every unit of the request.
		return rollback(err)
	}

	for _, n := range added {
		t.nodes[n.address.String()] = n
		logging.Info("ResourceTree", "Added resource %s (%d capabilities)", n.address, len(n.handles))
	}
	return nil
}

func (t *Tree) validate(resources []Resource) error {
	batch := make(map[string]bool, len(resources))
	for _, res := range resources {
		if len(res.Address) == 0 {
			return api.NewArgumentError("address", "must not be empty")
		}
		key := res.Address.String()
		if _, exists := t.nodes[key]; exists || batch[key] {
			return api.NewArgumentError("address", "resource %s already exists", key)
		}
		batch[key] = true
	}
	for _, res := range resources {
		parent := res.Address.Parent()
		if len(parent) == 0 {
			continue
		}
		if _, exists := t.nodes[parent.String()]; !exists && !batch[parent.String()] {
			return api.NewArgumentError("address", "parent %s of %s does not exist", parent, res.Address)
		}
	}
	return nil
}

// Remove removes the resource at addr and everything below it, deepest
// first. Units of other resources that depend on the removed capabilities
// are stopped before the capabilities go away. Removing an unknown
// address is a no-op.
func (t *Tree) Remove(ctx context.Context, addr Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var doomed []*node
	for _, n := range t.nodes {
		if addr.Contains(n.address) {
			doomed = append(doomed, n)
		}
	}
	sort.Slice(doomed, func(i, j int) bool {
		if len(doomed[i].address) != len(doomed[j].address) {
			return len(doomed[i].address) > len(doomed[j].address)
		}
		return doomed[i].address.String() < doomed[j].address.String()
	})

	var errs []error
	for _, n := range doomed {
		for _, name := range n.units {
			if err := t.rc.Remove(ctx, name); err != nil {
				errs = append(errs, err)
			}
		}
		for _, h := range n.handles {
			if err := t.rc.Unregister(ctx, h); err != nil {
				errs = append(errs, err)
			}
		}
		delete(t.nodes, n.address.String())
		logging.Info("ResourceTree", "Removed resource %s", n.address)
	}
	return errors.Join(errs...)
}

// Active reports whether the resource exists and all of its units are active.
func (t *Tree) Active(addr Address) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[addr.String()]
	if !ok {
		return false
	}
	for _, name := range n.units {
		if state, _ := t.rc.State(name); state != api.StateActive {
			return false
		}
	}
	return true
}

// Resources lists the resources in address order.
func (t *Tree) Resources() []Info {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make([]Info, 0, len(t.nodes))
	for _, n := range t.nodes {
		info := Info{Address: n.address.String(), Units: make(map[string]string, len(n.units))}
		for _, h := range n.handles {
			info.Capabilities = append(info.Capabilities, h.Resolved.String())
		}
		for _, name := range n.units {
			state, _ := t.rc.State(name)
			info.Units[name] = string(state)
		}
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Address < result[j].Address })
	return result
}
