package capability

import (
	"time"

	"kernelctl/internal/descriptor"
)

// Registration is a request to register a capability under concrete segments.
type Registration struct {
	Capability *Capability
	Segments   []string
	// Provider identifies the registering party, usually a resource address.
	Provider string
}

// Handle identifies a live registration and is used to remove it.
type Handle struct {
	ID       string
	Resolved descriptor.Resolved
	Provider string
}

// IsZero reports whether h was never returned by Register.
func (h Handle) IsZero() bool { return h.ID == "" }

func (h Handle) String() string { return h.Resolved.String() }

// Info is a point-in-time view of a registration for listings.
type Info struct {
	ID            string    `json:"id" yaml:"id"`
	Name          string    `json:"name" yaml:"name"`
	Capability    string    `json:"capability" yaml:"capability"`
	Segments      []string  `json:"segments,omitempty" yaml:"segments,omitempty"`
	Provider      string    `json:"provider" yaml:"provider"`
	ValueType     string    `json:"valueType" yaml:"valueType"`
	AllowMultiple bool      `json:"allowMultiple" yaml:"allowMultiple"`
	Active        bool      `json:"active" yaml:"active"`
	RegisteredAt  time.Time `json:"registeredAt" yaml:"registeredAt"`
}
