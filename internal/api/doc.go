// Package api holds the types shared by every kernel package: the error
// taxonomy and the unit lifecycle states.
//
// Errors are sentinels matched with errors.Is. The typed errors carry the
// offending parameter, capability or requester:
//
//	if errors.Is(err, api.ErrUnresolvedCapability) {
//	    var ce *api.CapabilityError
//	    if errors.As(err, &ce) {
//	        fmt.Printf("%s needs %s\n", ce.Requester, ce.Capability)
//	    }
//	}
//
// Units move through the states pending, resolving, ready, starting,
// active, stopping and removed. CanTransition encodes the allowed moves;
// removed is terminal.
package api
