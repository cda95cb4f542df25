package reference

import (
	"kernelctl/internal/api"
	"kernelctl/internal/capability"
)

// Supplier yields the value behind a bound reference. Get returns the same
// instance on every call while the provider is active and fails with
// ErrNotYetStarted otherwise.
type Supplier[T any] interface {
	Get() (T, error)
}

// SupplierFunc adapts a function to Supplier.
type SupplierFunc[T any] func() (T, error)

func (f SupplierFunc[T]) Get() (T, error) { return f() }

type literalSupplier[T any] struct {
	value T
}

func (s literalSupplier[T]) Get() (T, error) { return s.value, nil }

type providerSupplier[T any] struct {
	provider *capability.Provider
}

func (s providerSupplier[T]) Get() (T, error) {
	var zero T
	v, err := s.provider.Value()
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	typed, ok := v.(T)
	if !ok {
		return zero, api.NewArgumentError("value", "%s produced %T", s.provider.Resolved(), v)
	}
	return typed, nil
}
