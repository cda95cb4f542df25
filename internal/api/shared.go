package api

import (
	"time"
)

// Common enums and types shared by the kernel packages

// UnitState is the lifecycle state of a unit of work in a resolution context.
type UnitState string

const (
	StatePending   UnitState = "pending"
	StateResolving UnitState = "resolving"
	StateReady     UnitState = "ready"
	StateStarting  UnitState = "starting"
	StateActive    UnitState = "active"
	StateStopping  UnitState = "stopping"
	StateRemoved   UnitState = "removed"
)

var unitTransitions = map[UnitState][]UnitState{
	StatePending:   {StateResolving, StateRemoved},
	StateResolving: {StateReady, StateRemoved},
	StateReady:     {StateStarting, StateRemoved},
	StateStarting:  {StateActive, StateStopping, StateRemoved},
	StateActive:    {StateStopping},
	StateStopping:  {StateRemoved},
}

// CanTransition reports whether a unit may move from one state to another.
// Pre-active states may be discarded straight to removed when a build is aborted.
func (s UnitState) CanTransition(to UnitState) bool {
	for _, next := range unitTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s UnitState) Terminal() bool {
	return s == StateRemoved
}

// Transition is published for every unit state change.
type Transition struct {
	Unit      string    `json:"unit" yaml:"unit"`
	From      UnitState `json:"from" yaml:"from"`
	To        UnitState `json:"to" yaml:"to"`
	Error     error     `json:"-" yaml:"-"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// TransitionCallback observes unit state changes.
type TransitionCallback func(Transition)
