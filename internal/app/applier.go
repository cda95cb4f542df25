package app

import (
	"context"
	"errors"
	"sort"
	"sync"

	"kernelctl/internal/manifest"
	"kernelctl/internal/resource"
	"kernelctl/pkg/logging"
)

// Applier reconciles the resource tree with the compiled manifests.
type Applier struct {
	mu      sync.Mutex
	tree    *resource.Tree
	applied map[string]manifest.Entry // address -> entry
}

// NewApplier creates an applier driving tree.
func NewApplier(tree *resource.Tree) *Applier {
	return &Applier{
		tree:    tree,
		applied: make(map[string]manifest.Entry),
	}
}

// Apply makes the tree match desired. Resources that disappeared or
// changed are removed first, together with their descendants. Resources
// left inactive because something they depended on was removed are removed
// too. Everything desired that is then missing is added as one batch.
func (a *Applier) Apply(ctx context.Context, desired []manifest.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	want := make(map[string]manifest.Entry, len(desired))
	for _, e := range desired {
		want[e.Resource.Address.String()] = e
	}

	var stale []resource.Address
	for key, e := range a.applied {
		if w, ok := want[key]; !ok || w.Digest != e.Digest {
			stale = append(stale, e.Resource.Address)
		}
	}

	var errs []error
	if err := a.remove(ctx, stale); err != nil {
		errs = append(errs, err)
	}
	if err := a.pruneInactive(ctx); err != nil {
		errs = append(errs, err)
	}

	present := make(map[string]bool)
	for _, info := range a.tree.Resources() {
		present[info.Address] = true
	}
	var missing []manifest.Entry
	for key, e := range want {
		if !present[key] {
			missing = append(missing, e)
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		return missing[i].Resource.Address.String() < missing[j].Resource.Address.String()
	})

	if len(missing) > 0 {
		if err := a.tree.Add(ctx, manifest.Resources(missing)...); err != nil {
			errs = append(errs, err)
		} else {
			for _, e := range missing {
				present[e.Resource.Address.String()] = true
			}
		}
	}

	a.applied = make(map[string]manifest.Entry, len(want))
	for key, e := range want {
		if present[key] {
			a.applied[key] = e
		}
	}

	logging.Info("Applier", "Applied manifests: %d resources live, %d removed, %d added", len(a.applied), len(stale), len(missing))
	return errors.Join(errs...)
}

// Applied returns the number of manifest resources currently in the tree.
func (a *Applier) Applied() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.applied)
}

func (a *Applier) remove(ctx context.Context, addrs []resource.Address) error {
	// Shallowest first; removing a parent takes its descendants with it.
	sort.Slice(addrs, func(i, j int) bool { return len(addrs[i]) < len(addrs[j]) })

	var errs []error
	for _, addr := range addrs {
		if err := a.tree.Remove(ctx, addr); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Applier) pruneInactive(ctx context.Context) error {
	var errs []error
	for {
		var inactive []resource.Address
		for _, info := range a.tree.Resources() {
			addr, err := resource.ParseAddress(info.Address)
			if err != nil {
				return err
			}
			if !a.tree.Active(addr) {
				inactive = append(inactive, addr)
			}
		}
		if len(inactive) == 0 {
			return errors.Join(errs...)
		}
		if err := a.remove(ctx, inactive); err != nil {
			errs = append(errs, err)
		}
	}
}
