// Package capability provides capability registrations and the registry that
// tracks which provider currently satisfies each resolved capability name.
//
// # Core Concepts
//
// Capability: the metadata a provider publishes for a service descriptor,
// namely whether its name is dynamic, whether several registrations may share
// one resolved name, and which other capabilities it requires.
//
// Registration: a capability registered under concrete segments by a
// provider, typically a resource address such as subsystem=io/worker=default.
//
// Provider: the live registration returned by lookups. It holds the value
// slot that is filled once the providing unit has started.
//
// # Usage
//
// Subsystems define their capabilities once:
//
//	var WorkerCapability = capability.Of(WorkerDescriptor).Build()
//
// and register them when the owning resource is added:
//
//	h, err := registry.Register(capability.Registration{
//	    Capability: WorkerCapability,
//	    Segments:   []string{"default"},
//	    Provider:   "subsystem=io/worker=default",
//	})
//
// Consumers look providers up by descriptor and segments. There is no
// wildcard matching: the resolved name must match a prior registration.
package capability
