package manifest

// Manifest describes the resources of one subsystem.
type Manifest struct {
	Subsystem    string            `yaml:"subsystem" json:"subsystem"`
	ModelVersion string            `yaml:"modelVersion" json:"modelVersion"`
	Capabilities []CapabilityDecl  `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
	Resources    []ResourceDecl    `yaml:"resources,omitempty" json:"resources,omitempty"`
	Labels       map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`

	// Source is the file the manifest was read from.
	Source string `yaml:"-" json:"-"`
}

// CapabilityDecl declares a capability kind.
type CapabilityDecl struct {
	Name          string `yaml:"name" json:"name"`
	Arity         int    `yaml:"arity" json:"arity"`
	AllowMultiple bool   `yaml:"allowMultiple,omitempty" json:"allowMultiple,omitempty"`
}

// ResourceDecl is one resource of a subsystem. Provided capabilities take
// their dynamic segments from the address.
type ResourceDecl struct {
	Address  string            `yaml:"address" json:"address"`
	Provides []string          `yaml:"provides,omitempty" json:"provides,omitempty"`
	Value    any               `yaml:"value,omitempty" json:"value,omitempty"`
	Requires []RequirementDecl `yaml:"requires,omitempty" json:"requires,omitempty"`
}

// RequirementDecl references a capability, resolved by name and segments.
type RequirementDecl struct {
	Capability string   `yaml:"capability" json:"capability"`
	Segments   []string `yaml:"segments,omitempty" json:"segments,omitempty"`
}
