package resolution

import (
	"context"
	"errors"
	"sort"
	"sync"

	"kernelctl/internal/api"
	"kernelctl/internal/capability"
	"kernelctl/internal/dependency"
	"kernelctl/pkg/logging"
)

// Remove stops a unit after stopping every unit that depends on it,
// directly or transitively, in reverse dependency order. Its registrations
// are unregistered once it has stopped. Removing an unknown or already
// removed unit is a no-op.
func (c *Context) Remove(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	u, ok := c.units[name]
	if !ok || u.state.Terminal() {
		return nil
	}
	if u.state == api.StatePending {
		c.discardPending(u)
		return nil
	}
	return c.cascade(ctx, dependency.NodeID(name))
}

// Unregister removes a registration. Units depending on it are stopped
// first; if a unit of this context provides it, that unit is removed as
// in Remove. Unknown handles are ignored.
func (c *Context) Unregister(ctx context.Context, h capability.Handle) error {
	c.mu.Lock()
	err := c.retract(ctx, h)
	c.mu.Unlock()
	return errors.Join(err, c.registry.Unregister(h))
}

// beforeUnregister runs for every registry removal this context did not
// start itself.
func (c *Context) beforeUnregister(p *capability.Provider) error {
	if _, own := c.releasing.Load(p.ID()); own {
		return nil
	}
	logging.Debug("Resolution", "Registration %s is being unregistered directly, stopping its dependents", p.Resolved())

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retract(context.Background(), p.Handle())
}

// retract stops everything that depends on h. A unit providing h is
// removed, which also unregisters h.
func (c *Context) retract(ctx context.Context, h capability.Handle) error {
	if owner, ok := c.owners[h.ID]; ok {
		u := c.units[owner]
		if u.state == api.StatePending {
			c.discardPending(u)
			return nil
		}
		return c.cascade(ctx, dependency.NodeID(owner))
	}

	id := dependency.NodeID(externalPrefix + h.ID)
	if c.graph.Get(id) == nil {
		return nil
	}
	err := c.cascade(ctx, id)
	c.graph.RemoveNode(id)
	return err
}

// unregister removes a registration without running this context's hook.
func (c *Context) unregister(h capability.Handle) error {
	c.releasing.Store(h.ID, struct{}{})
	defer c.releasing.Delete(h.ID)
	return c.registry.Unregister(h)
}

// cascade stops root and all its transitive dependents, last level first.
// Units within a level stop in parallel. Stop errors are collected; every
// unit is still stopped.
func (c *Context) cascade(ctx context.Context, root dependency.NodeID) error {
	dependents := c.graph.TransitiveDependents(root)
	subset := append([]dependency.NodeID{root}, dependents...)

	levels, err := c.graph.Levels(subset)
	if err != nil {
		// Built graphs are acyclic; fall back to removing dependents first.
		logging.Error("Resolution", err, "Unexpected cycle while removing %s", root)
		levels = [][]dependency.NodeID{{root}, dependents}
	}

	logging.Info("Resolution", "Removing %s and %d dependent units", root, len(dependents))

	var errs []error
	for i := len(levels) - 1; i >= 0; i-- {
		var (
			wg sync.WaitGroup
			mu sync.Mutex
		)
		for _, id := range levels[i] {
			u, ok := c.units[string(id)]
			if !ok {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := c.stopUnit(ctx, u); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
	}
	return errors.Join(errs...)
}

// Shutdown stops every active unit in exact reverse start order and
// discards units that were installed but never built.
func (c *Context) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for len(c.started) > 0 {
		u := c.started[len(c.started)-1]
		if err := c.stopUnit(ctx, u); err != nil {
			errs = append(errs, err)
		}
		if len(c.started) > 0 && c.started[len(c.started)-1] == u {
			c.started = c.started[:len(c.started)-1]
		}
	}

	for len(c.pending) > 0 {
		c.discardPending(c.pending[0])
	}

	logging.Info("Resolution", "Shutdown complete")
	return errors.Join(errs...)
}

func (c *Context) discardPending(u *unit) {
	for i, p := range c.pending {
		if p == u {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			break
		}
	}
	c.transition(u, api.StateRemoved, nil)
	c.release(u)
}

// UnitInfo describes a unit for listings.
type UnitInfo struct {
	Name      string        `json:"name" yaml:"name"`
	State     api.UnitState `json:"state" yaml:"state"`
	Level     int           `json:"level" yaml:"level"`
	Provides  []string      `json:"provides,omitempty" yaml:"provides,omitempty"`
	DependsOn []string      `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
}

// Units lists units that have not been removed, sorted by name.
func (c *Context) Units() []UnitInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result []UnitInfo
	for _, u := range c.units {
		state, _ := c.State(u.name)
		if state.Terminal() {
			continue
		}
		info := UnitInfo{Name: u.name, State: state, Level: u.level}
		for _, p := range u.owned {
			info.Provides = append(info.Provides, p.Resolved().String())
		}
		for r := range u.edges {
			info.DependsOn = append(info.DependsOn, r.String())
		}
		sort.Strings(info.DependsOn)
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Levels returns the active units grouped by start level.
func (c *Context) Levels() ([][]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]dependency.NodeID, 0, len(c.started))
	for _, u := range c.started {
		ids = append(ids, dependency.NodeID(u.name))
	}
	levels, err := c.graph.Levels(ids)
	if err != nil {
		return nil, err
	}

	result := make([][]string, len(levels))
	for i, level := range levels {
		for _, id := range level {
			result[i] = append(result[i], string(id))
		}
	}
	return result, nil
}
