package capability

import (
	"fmt"

	"kernelctl/internal/api"
	"kernelctl/internal/descriptor"
)

// Requirement is another capability a capability needs to build its value.
// Segments are either fixed, or derived from the segments the requiring
// capability is registered with.
type Requirement struct {
	Descriptor descriptor.ServiceDescriptor
	Segments   []string
	Derive     func(own []string) []string
}

// Require declares a requirement on fixed segments.
func Require(d descriptor.ServiceDescriptor, segments ...string) Requirement {
	return Requirement{Descriptor: d, Segments: segments}
}

// RequireFromOwn declares a requirement whose segments are computed from
// the requiring registration's own segments.
func RequireFromOwn(d descriptor.ServiceDescriptor, derive func(own []string) []string) Requirement {
	return Requirement{Descriptor: d, Derive: derive}
}

// Resolve returns the resolved name the requirement points at for a
// registration with the given segments.
func (r Requirement) Resolve(own []string) (descriptor.Resolved, error) {
	if r.Descriptor == nil {
		return descriptor.Resolved{}, api.NewArgumentError("requirement", "descriptor must not be nil")
	}
	segments := r.Segments
	if r.Derive != nil {
		segments = r.Derive(append([]string(nil), own...))
	}
	return r.Descriptor.Resolve(segments...)
}

// Capability is the metadata a provider publishes for a descriptor.
type Capability struct {
	descriptor    descriptor.ServiceDescriptor
	allowMultiple bool
	requirements  []Requirement
}

func (c *Capability) Descriptor() descriptor.ServiceDescriptor { return c.descriptor }
func (c *Capability) Name() string                             { return c.descriptor.Name() }

// Dynamic reports whether the registered name varies per registration.
func (c *Capability) Dynamic() bool { return c.descriptor.Arity() > descriptor.ArityNullary }

// AllowMultiple reports whether several live registrations may share one resolved name.
func (c *Capability) AllowMultiple() bool { return c.allowMultiple }

// Requirements returns the declared requirements.
func (c *Capability) Requirements() []Requirement {
	return append([]Requirement(nil), c.requirements...)
}

func (c *Capability) String() string {
	return fmt.Sprintf("%s[dynamic=%t, multiple=%t]", c.descriptor.Name(), c.Dynamic(), c.allowMultiple)
}

// Builder assembles a Capability.
//
//	worker := capability.Of(WorkerDescriptor).
//	    Requires(capability.Require(BufferPoolDescriptor, "default")).
//	    Build()
type Builder struct {
	c Capability
}

// Of starts a capability definition for d.
func Of(d descriptor.ServiceDescriptor) *Builder {
	return &Builder{c: Capability{descriptor: d}}
}

// AllowMultipleRegistrations permits several live registrations under the
// same resolved name.
func (b *Builder) AllowMultipleRegistrations() *Builder {
	b.c.allowMultiple = true
	return b
}

// Requires adds requirements.
func (b *Builder) Requires(reqs ...Requirement) *Builder {
	b.c.requirements = append(b.c.requirements, reqs...)
	return b
}

// Build returns the capability. It panics if no descriptor was given, which
// is a programming error in a package-level definition.
func (b *Builder) Build() *Capability {
	if b.c.descriptor == nil {
		panic("capability: Of called with a nil descriptor")
	}
	c := b.c
	c.requirements = append([]Requirement(nil), b.c.requirements...)
	return &c
}
