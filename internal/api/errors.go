package api

import (
	"errors"
	"fmt"
	"strings"
)

// Kernel error taxonomy. Callers match with errors.Is; the typed errors
// below wrap these with the capability name and requester involved.
var (
	// ErrInvalidArgument reports a malformed descriptor or resolve call.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDuplicateCapability reports a registration that conflicts with a
	// live registration that does not allow multiple registrations.
	ErrDuplicateCapability = errors.New("duplicate capability")

	// ErrCapabilityNotFound reports a lookup with no live registration.
	ErrCapabilityNotFound = errors.New("capability not found")

	// ErrUnresolvedCapability reports a dependency that could not be bound.
	ErrUnresolvedCapability = errors.New("unresolved capability")

	// ErrDependencyCycle reports a cycle found while building the dependency graph.
	ErrDependencyCycle = errors.New("dependency cycle")

	// ErrNotYetStarted reports a supplier invoked before its provider is active.
	ErrNotYetStarted = errors.New("not yet started")
)

// ArgumentError names the offending parameter of an invalid call.
type ArgumentError struct {
	Param  string
	Reason string
}

func (e *ArgumentError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidArgument, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrInvalidArgument, e.Param, e.Reason)
}

func (e *ArgumentError) Unwrap() error { return ErrInvalidArgument }

// NewArgumentError creates an ArgumentError.
func NewArgumentError(param, reasonFmt string, args ...interface{}) *ArgumentError {
	return &ArgumentError{Param: param, Reason: fmt.Sprintf(reasonFmt, args...)}
}

// CapabilityError attributes a failure to a capability and the requester
// that triggered it.
type CapabilityError struct {
	Op         string
	Capability string
	Requester  string
	Err        error
}

func (e *CapabilityError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(" ")
	b.WriteString(e.Capability)
	if e.Requester != "" {
		b.WriteString(" (requested by ")
		b.WriteString(e.Requester)
		b.WriteString(")")
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// NewDuplicateCapabilityError reports a conflicting registration.
func NewDuplicateCapabilityError(capability, requester string) *CapabilityError {
	return &CapabilityError{Op: "register", Capability: capability, Requester: requester, Err: ErrDuplicateCapability}
}

// NewCapabilityNotFoundError reports a lookup with no live provider.
func NewCapabilityNotFoundError(capability, requester string) *CapabilityError {
	return &CapabilityError{Op: "lookup", Capability: capability, Requester: requester, Err: ErrCapabilityNotFound}
}

// NewUnresolvedCapabilityError reports a failed bind. The cause is kept so
// that errors.Is also matches the underlying lookup failure.
func NewUnresolvedCapabilityError(capability, requester string, cause error) *CapabilityError {
	err := ErrUnresolvedCapability
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrUnresolvedCapability, cause)
	}
	return &CapabilityError{Op: "bind", Capability: capability, Requester: requester, Err: err}
}

// NewNotYetStartedError reports a premature supplier call.
func NewNotYetStartedError(capability string) *CapabilityError {
	return &CapabilityError{Op: "get", Capability: capability, Err: ErrNotYetStarted}
}

// CycleError lists the names participating in a dependency cycle, in edge
// order, with the first name repeated at the end.
type CycleError struct {
	Names []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDependencyCycle, strings.Join(e.Names, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrDependencyCycle }
