package resource

import (
	"strings"

	"kernelctl/internal/api"
	"kernelctl/internal/descriptor"
)

// Element is one key=value step of a resource address.
type Element struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Address locates a resource in the tree, most general element first,
// e.g. subsystem=io/worker=default.
type Address []Element

// ParseAddress parses the key=value/key=value form.
func ParseAddress(s string) (Address, error) {
	s = strings.Trim(strings.TrimSpace(s), "/")
	if s == "" {
		return nil, api.NewArgumentError("address", "must not be empty")
	}

	parts := strings.Split(s, "/")
	addr := make(Address, 0, len(parts))
	for _, part := range parts {
		key, value, ok := strings.Cut(part, "=")
		if !ok || key == "" || value == "" {
			return nil, api.NewArgumentError("address", "element %q of %q is not key=value", part, s)
		}
		addr = append(addr, Element{Key: key, Value: value})
	}
	return addr, nil
}

// MustParseAddress is ParseAddress for constants.
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) String() string {
	parts := make([]string, len(a))
	for i, e := range a {
		parts[i] = e.Key + "=" + e.Value
	}
	return strings.Join(parts, "/")
}

// Parent returns the address without its last element.
func (a Address) Parent() Address {
	if len(a) == 0 {
		return nil
	}
	return a[:len(a)-1]
}

// Contains reports whether other equals a or lies below it.
func (a Address) Contains(other Address) bool {
	if len(other) < len(a) {
		return false
	}
	for i := range a {
		if a[i] != other[i] {
			return false
		}
	}
	return true
}

// Segments returns the dynamic segments a capability of the given arity
// takes from this address: the values of the last arity elements.
func (a Address) Segments(arity descriptor.Arity) ([]string, error) {
	n := int(arity)
	if n > len(a) {
		return nil, api.NewArgumentError("address", "%s has %d elements, %s capability needs %d", a, len(a), arity, n)
	}
	segments := make([]string, 0, n)
	for _, e := range a[len(a)-n:] {
		segments = append(segments, e.Value)
	}
	return segments, nil
}
