package resolution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"kernelctl/internal/api"
	"kernelctl/internal/capability"
	"kernelctl/internal/dependency"
	"kernelctl/internal/descriptor"
	"kernelctl/pkg/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const externalPrefix = "external:"

// Context binds units of work to the providers they reference, orders them
// by dependency and drives their lifecycle. Builds and removals are
// serialized; units of one dependency level start and stop in parallel.
//
// Unregistering a registration directly on the registry goes through the
// context too: dependents are stopped before the registration disappears.
// Start and stop functions must therefore not unregister capabilities.
type Context struct {
	registry *capability.Registry

	mu      sync.Mutex // serializes Build, Remove, Unregister, Shutdown
	graph   *dependency.Graph
	units   map[string]*unit
	pending []*unit
	started []*unit           // active units in activation order
	owners  map[string]string // registration handle ID -> unit name

	// guards graph, owners and started while a level stops in parallel
	releaseMu sync.Mutex
	releasing sync.Map // handle ID -> struct{}, unregistered by this context

	stateMu   sync.RWMutex
	observers []api.TransitionCallback

	tracer       trace.Tracer
	startTimeout time.Duration
	stopTimeout  time.Duration
}

// Option configures a Context.
type Option func(*Context)

// WithTracer sets the tracer used for unit start and stop spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Context) { c.tracer = t }
}

// WithStartTimeout bounds each unit's start function.
func WithStartTimeout(d time.Duration) Option {
	return func(c *Context) { c.startTimeout = d }
}

// WithStopTimeout bounds each unit's stop function.
func WithStopTimeout(d time.Duration) Option {
	return func(c *Context) { c.stopTimeout = d }
}

// NewContext creates a resolution context over registry.
func NewContext(registry *capability.Registry, opts ...Option) *Context {
	c := &Context{
		registry: registry,
		graph:    dependency.New(),
		units:    make(map[string]*unit),
		owners:   make(map[string]string),
		tracer:   otel.Tracer("kernelctl/resolution"),
	}
	for _, opt := range opts {
		opt(c)
	}
	registry.BeforeUnregister(c.beforeUnregister)
	return c
}

// Registry returns the registry the context binds against.
func (c *Context) Registry() *capability.Registry { return c.registry }

// AddUnit starts the definition of a unit.
func (c *Context) AddUnit(name string) *UnitBuilder {
	return &UnitBuilder{
		ctx: c,
		u: &unit{
			name:  name,
			state: api.StatePending,
			edges: make(map[descriptor.Resolved]*capability.Provider),
		},
	}
}

// OnTransition registers an observer for unit state changes. Units of one
// level change state concurrently, so observers must be safe for
// concurrent use.
func (c *Context) OnTransition(cb api.TransitionCallback) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.observers = append(c.observers, cb)
}

// State returns the state of a unit.
func (c *Context) State(name string) (api.UnitState, bool) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	u, ok := c.units[name]
	if !ok {
		return "", false
	}
	return u.state, true
}

func (c *Context) install(u *unit) error {
	if u.name == "" || strings.HasPrefix(u.name, externalPrefix) {
		return api.NewArgumentError("unit", "invalid unit name %q", u.name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stateMu.RLock()
	existing, exists := c.units[u.name]
	live := exists && !existing.state.Terminal()
	c.stateMu.RUnlock()
	if live {
		return api.NewArgumentError("unit", "%s is already installed", u.name)
	}

	owned := make([]*capability.Provider, 0, len(u.handles))
	for _, h := range u.handles {
		p, ok := c.registry.Get(h.ID)
		if !ok {
			return api.NewCapabilityNotFoundError(h.Resolved.String(), u.name)
		}
		if owner, taken := c.owners[h.ID]; taken {
			return api.NewArgumentError("unit", "%s is already provided by unit %s", h.Resolved, owner)
		}
		owned = append(owned, p)
	}
	u.owned = owned
	for _, h := range u.handles {
		c.owners[h.ID] = u.name
	}

	c.stateMu.Lock()
	c.units[u.name] = u
	c.stateMu.Unlock()
	c.pending = append(c.pending, u)

	logging.Debug("Resolution", "Installed unit %s providing %d capabilities", u.name, len(u.owned))
	return nil
}

// Build binds, orders and starts every pending unit as one request. Any
// failure aborts the whole request: units already started are stopped in
// reverse activation order, the rest are discarded, and the error is
// returned.
func (c *Context) Build(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	batch := c.pending
	c.pending = nil
	if len(batch) == 0 {
		return nil
	}

	started := time.Now()
	err := c.build(ctx, batch)
	buildDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		buildsTotal.WithLabelValues("failed").Inc()
		logging.Error("Resolution", err, "Build of %d units failed", len(batch))
		return err
	}

	buildsTotal.WithLabelValues("succeeded").Inc()
	logging.Info("Resolution", "Started %d units in %s", len(batch), time.Since(started).Round(time.Millisecond))
	return nil
}

func (c *Context) build(ctx context.Context, batch []*unit) error {
	// Bind every reference. One lookup per resolved name per pass.
	memo := make(map[descriptor.Resolved]*capability.Provider)
	var errs []error
	for _, u := range batch {
		c.transition(u, api.StateResolving, nil)
		binder := &unitBinder{ctx: c, unit: u, memo: memo}
		var unitErrs []error
		for _, b := range u.bindings {
			if err := b.bind(binder); err != nil {
				unitErrs = append(unitErrs, err)
			}
		}
		if len(unitErrs) > 0 {
			errs = append(errs, unitErrs...)
			continue
		}
		c.transition(u, api.StateReady, nil)
	}
	if len(errs) > 0 {
		return c.abort(ctx, batch, nil, errors.Join(errs...))
	}

	ids := make([]dependency.NodeID, 0, len(batch))
	for _, u := range batch {
		c.addToGraph(u)
		ids = append(ids, dependency.NodeID(u.name))
	}

	levels, err := c.graph.Levels(ids)
	if err != nil {
		return c.abort(ctx, batch, nil, err)
	}

	var (
		activatedMu sync.Mutex
		activated   []*unit
	)
	for i, level := range levels {
		if err := ctx.Err(); err != nil {
			return c.abort(ctx, batch, activated, fmt.Errorf("build cancelled before level %d: %w", i, err))
		}

		logging.Debug("Resolution", "Starting dependency level %d with %d units", i, len(level))

		var (
			wg        sync.WaitGroup
			levelErrs []error
		)
		for _, id := range level {
			u := c.units[string(id)]
			u.level = i
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := c.startUnit(ctx, u)
				activatedMu.Lock()
				defer activatedMu.Unlock()
				if err != nil {
					levelErrs = append(levelErrs, err)
					return
				}
				activated = append(activated, u)
			}()
		}
		wg.Wait()

		if len(levelErrs) > 0 {
			return c.abort(ctx, batch, activated, errors.Join(levelErrs...))
		}
	}

	c.started = append(c.started, activated...)
	return nil
}

// addToGraph records the unit and edges to the owners of its bound
// providers, or to external nodes for providers no unit here owns.
func (c *Context) addToGraph(u *unit) {
	keys := make([]descriptor.Resolved, 0, len(u.edges))
	for k := range u.edges {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	deps := make([]dependency.NodeID, 0, len(keys))
	for _, k := range keys {
		p := u.edges[k]
		if owner, ok := c.owners[p.ID()]; ok {
			deps = append(deps, dependency.NodeID(owner))
			continue
		}
		id := dependency.NodeID(externalPrefix + p.ID())
		if c.graph.Get(id) == nil {
			c.graph.AddNode(dependency.Node{ID: id, FriendlyName: p.Resolved().String(), Kind: dependency.KindExternal})
		}
		deps = append(deps, id)
	}

	c.graph.AddNode(dependency.Node{
		ID:           dependency.NodeID(u.name),
		FriendlyName: friendlyName(u),
		Kind:         dependency.KindUnit,
		DependsOn:    deps,
	})
}

func friendlyName(u *unit) string {
	if len(u.owned) == 0 {
		return u.name
	}
	names := make([]string, len(u.owned))
	for i, p := range u.owned {
		names[i] = p.Resolved().String()
	}
	return strings.Join(names, ",")
}

func (c *Context) startUnit(ctx context.Context, u *unit) error {
	for r, p := range u.edges {
		if !p.Active() {
			c.transition(u, api.StateRemoved, nil)
			return &api.CapabilityError{Op: "start", Capability: r.String(), Requester: u.name, Err: api.ErrNotYetStarted}
		}
	}

	c.transition(u, api.StateStarting, nil)

	ctx, span := c.tracer.Start(ctx, "unit.start", trace.WithAttributes(
		attribute.String("unit", u.name),
		attribute.Int("level", u.level),
	))
	defer span.End()

	var value any
	if u.start != nil {
		startCtx, cancel := withTimeout(ctx, c.startTimeout)
		v, err := u.start(startCtx)
		cancel()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			err = fmt.Errorf("failed to start unit %s: %w", u.name, err)
			c.transition(u, api.StateRemoved, err)
			return err
		}
		value = v
	}

	err := c.transitionWith(u, api.StateActive, nil, func() error {
		for _, p := range u.owned {
			if err := p.Activate(value); err != nil {
				for _, activated := range u.owned {
					activated.Deactivate()
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		err = fmt.Errorf("failed to publish value of unit %s: %w", u.name, err)
		c.transition(u, api.StateStopping, err)
		if u.stop != nil {
			stopCtx, cancel := withTimeout(ctx, c.stopTimeout)
			if stopErr := u.stop(stopCtx, value); stopErr != nil {
				err = errors.Join(err, stopErr)
			}
			cancel()
		}
		c.transition(u, api.StateRemoved, err)
		return err
	}

	u.value = value
	return nil
}

// abort rolls back a failed build: activated units stop in reverse
// activation order, every other unit of the batch is discarded.
func (c *Context) abort(ctx context.Context, batch, activated []*unit, cause error) error {
	errs := []error{cause}

	// Rollback must run even when ctx is what failed.
	stopCtx := context.WithoutCancel(ctx)
	for i := len(activated) - 1; i >= 0; i-- {
		if err := c.stopUnit(stopCtx, activated[i]); err != nil {
			errs = append(errs, err)
		}
	}

	for _, u := range batch {
		if u.state != api.StateRemoved {
			c.transition(u, api.StateRemoved, cause)
		}
		c.release(u)
	}

	logging.Warn("Resolution", "Rolled back %d units (%d had started)", len(batch), len(activated))
	return errors.Join(errs...)
}

// stopUnit drives an active unit through STOPPING to REMOVED and releases
// its registrations.
func (c *Context) stopUnit(ctx context.Context, u *unit) error {
	if u.state != api.StateActive {
		return nil
	}

	_ = c.transitionWith(u, api.StateStopping, nil, func() error {
		for _, p := range u.owned {
			p.Deactivate()
		}
		return nil
	})

	ctx, span := c.tracer.Start(ctx, "unit.stop", trace.WithAttributes(attribute.String("unit", u.name)))
	defer span.End()

	var err error
	if u.stop != nil {
		stopCtx, cancel := withTimeout(ctx, c.stopTimeout)
		if stopErr := u.stop(stopCtx, u.value); stopErr != nil {
			span.RecordError(stopErr)
			span.SetStatus(codes.Error, stopErr.Error())
			err = fmt.Errorf("failed to stop unit %s: %w", u.name, stopErr)
		}
		cancel()
	}
	u.value = nil

	c.release(u)
	c.transition(u, api.StateRemoved, err)
	return err
}

// release unregisters the unit's registrations and drops it from the graph.
func (c *Context) release(u *unit) {
	c.releaseMu.Lock()
	defer c.releaseMu.Unlock()

	for _, h := range u.handles {
		if c.owners[h.ID] == u.name {
			delete(c.owners, h.ID)
			if err := c.unregister(h); err != nil {
				logging.Error("Resolution", err, "Failed to unregister %s of unit %s", h.Resolved, u.name)
			}
		}
	}

	deps := c.graph.Dependencies(dependency.NodeID(u.name))
	c.graph.RemoveNode(dependency.NodeID(u.name))
	for _, dep := range deps {
		if n := c.graph.Get(dep); n != nil && n.Kind == dependency.KindExternal && len(c.graph.Dependents(dep)) == 0 {
			c.graph.RemoveNode(dep)
		}
	}

	for i, s := range c.started {
		if s == u {
			c.started = append(c.started[:i], c.started[i+1:]...)
			break
		}
	}
}

func (c *Context) transition(u *unit, to api.UnitState, err error) {
	_ = c.transitionWith(u, to, err, nil)
}

// transitionWith runs publish under the state lock right before the state
// changes, so State and the published values move together. If publish
// fails the state is left unchanged and its error returned.
func (c *Context) transitionWith(u *unit, to api.UnitState, err error, publish func() error) error {
	c.stateMu.Lock()
	from := u.state
	if !from.CanTransition(to) {
		c.stateMu.Unlock()
		logging.Warn("Resolution", "Ignoring invalid transition of unit %s from %s to %s", u.name, from, to)
		return nil
	}
	if publish != nil {
		if perr := publish(); perr != nil {
			c.stateMu.Unlock()
			return perr
		}
	}
	u.state = to
	observers := append([]api.TransitionCallback(nil), c.observers...)
	c.stateMu.Unlock()

	unitTransitions.WithLabelValues(string(to)).Inc()
	switch {
	case to == api.StateActive:
		activeUnits.Inc()
	case from == api.StateActive:
		activeUnits.Dec()
	}

	logging.Debug("Resolution", "Unit %s: %s -> %s", u.name, from, to)

	t := api.Transition{Unit: u.name, From: from, To: to, Error: err, Timestamp: time.Now()}
	for _, cb := range observers {
		cb(t)
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
