package manifest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"kernelctl/internal/api"
	"kernelctl/internal/capability"
	"kernelctl/internal/descriptor"
	"kernelctl/internal/reference"
	"kernelctl/internal/resolution"
	"kernelctl/internal/resource"

	"gopkg.in/yaml.v3"
)

// Entry is a resource compiled from a manifest.
type Entry struct {
	Resource  resource.Resource
	Subsystem string
	// Digest changes whenever anything that affects the resource changes,
	// including the declarations of the capabilities it provides.
	Digest string
}

type kind struct {
	desc          descriptor.Descriptor[any]
	allowMultiple bool
	declared      bool
}

type catalog map[string]*kind

// Compile turns manifests into resources ready for the resource tree.
// Capabilities that are referenced but never declared get an arity equal
// to the number of segments they are referenced with, or nullary when only
// provided. Missing parent resources are created empty. Entries are
// returned in address order.
func Compile(manifests []*Manifest) ([]Entry, error) {
	cat, err := buildCatalog(manifests)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]Entry)
	for _, m := range manifests {
		for _, decl := range m.Resources {
			e, err := compileResource(cat, m.Subsystem, decl)
			if err != nil {
				return nil, fmt.Errorf("subsystem %s: %w", m.Subsystem, err)
			}
			key := e.Resource.Address.String()
			if prev, dup := entries[key]; dup {
				return nil, api.NewArgumentError("address", "resource %s is defined by subsystems %s and %s", key, prev.Subsystem, m.Subsystem)
			}
			entries[key] = e
		}
	}

	declared := make([]Entry, 0, len(entries))
	for _, e := range entries {
		declared = append(declared, e)
	}
	for _, e := range declared {
		for parent := e.Resource.Address.Parent(); len(parent) > 0; parent = parent.Parent() {
			key := parent.String()
			if _, ok := entries[key]; ok {
				break
			}
			entries[key] = Entry{
				Resource:  resource.Resource{Address: append(resource.Address(nil), parent...)},
				Subsystem: e.Subsystem,
				Digest:    digest(key),
			}
		}
	}

	result := make([]Entry, 0, len(entries))
	for _, e := range entries {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Resource.Address.String() < result[j].Resource.Address.String()
	})
	return result, nil
}

// Resources returns the resources of entries.
func Resources(entries []Entry) []resource.Resource {
	result := make([]resource.Resource, len(entries))
	for i, e := range entries {
		result[i] = e.Resource
	}
	return result
}

func buildCatalog(manifests []*Manifest) (catalog, error) {
	cat := make(catalog)
	for _, m := range manifests {
		for _, c := range m.Capabilities {
			d, err := descriptor.New[any](c.Name, descriptor.Arity(c.Arity))
			if err != nil {
				return nil, fmt.Errorf("subsystem %s: capability %s: %w", m.Subsystem, c.Name, err)
			}
			if prev, ok := cat[c.Name]; ok && (prev.desc != d || prev.allowMultiple != c.AllowMultiple) {
				return nil, api.NewArgumentError("capabilities", "capability %s is declared differently by several subsystems", c.Name)
			}
			cat[c.Name] = &kind{desc: d, allowMultiple: c.AllowMultiple, declared: true}
		}
	}

	// Forward references take their arity from the segments they use.
	for _, m := range manifests {
		for _, r := range m.Resources {
			for _, req := range r.Requires {
				if err := cat.infer(req.Capability, len(req.Segments)); err != nil {
					return nil, fmt.Errorf("subsystem %s: %w", m.Subsystem, err)
				}
			}
		}
	}
	for _, m := range manifests {
		for _, r := range m.Resources {
			for _, name := range r.Provides {
				if _, ok := cat[name]; ok {
					continue
				}
				if err := cat.infer(name, 0); err != nil {
					return nil, fmt.Errorf("subsystem %s: %w", m.Subsystem, err)
				}
			}
		}
	}
	return cat, nil
}

func (c catalog) infer(name string, segments int) error {
	if k, ok := c[name]; ok {
		if !k.declared && int(k.desc.Arity()) != segments {
			return api.NewArgumentError("segments", "capability %s is referenced with both %d and %d segments", name, k.desc.Arity(), segments)
		}
		return nil
	}
	d, err := descriptor.New[any](name, descriptor.Arity(segments))
	if err != nil {
		return fmt.Errorf("capability %s: %w", name, err)
	}
	c[name] = &kind{desc: d}
	return nil
}

func compileResource(cat catalog, subsystem string, decl ResourceDecl) (Entry, error) {
	addr, err := resource.ParseAddress(decl.Address)
	if err != nil {
		return Entry{}, err
	}

	refs := make([]reference.Reference[any], 0, len(decl.Requires))
	reqs := make([]capability.Requirement, 0, len(decl.Requires))
	for _, r := range decl.Requires {
		k := cat[r.Capability]
		ref, err := reference.On(k.desc, r.Segments...)
		if err != nil {
			return Entry{}, fmt.Errorf("resource %s requires %s: %w", addr, r.Capability, err)
		}
		refs = append(refs, ref)
		reqs = append(reqs, capability.Require(k.desc, r.Segments...))
	}

	install := func(b *resolution.UnitBuilder, _ resource.Address) error {
		suppliers := make([]reference.Supplier[any], len(refs))
		for i, ref := range refs {
			suppliers[i] = resolution.Requires(b, ref)
		}
		value := decl.Value
		b.OnStart(func(context.Context) (any, error) {
			for _, s := range suppliers {
				if _, err := s.Get(); err != nil {
					return nil, err
				}
			}
			return value, nil
		})
		return nil
	}

	var def resource.Definition
	for _, name := range decl.Provides {
		k := cat[name]
		if int(k.desc.Arity()) > len(addr) {
			return Entry{}, api.NewArgumentError("provides", "%s needs %d address elements, %s has %d", k.desc, k.desc.Arity(), addr, len(addr))
		}
		b := capability.Of(k.desc).Requires(reqs...)
		if k.allowMultiple {
			b.AllowMultipleRegistrations()
		}
		def.Services = append(def.Services, resource.Service{Capability: b.Build(), Install: install})
	}
	if len(def.Services) == 0 && len(refs) > 0 {
		// Consumes without providing anything.
		def.Services = append(def.Services, resource.Service{Install: install})
	}

	return Entry{
		Resource:  resource.Resource{Address: addr, Definition: def},
		Subsystem: subsystem,
		Digest:    digestDecl(cat, decl),
	}, nil
}

func digestDecl(cat catalog, decl ResourceDecl) string {
	data, err := yaml.Marshal(decl)
	if err != nil {
		// Values come from YAML, so they always marshal back.
		data = []byte(fmt.Sprintf("%#v", decl))
	}
	h := sha256.New()
	h.Write(data)
	for _, name := range decl.Provides {
		k := cat[name]
		fmt.Fprintf(h, "|%s|%t", k.desc, k.allowMultiple)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
