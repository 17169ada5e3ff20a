// README: Dispatch error taxonomy; every operation fails with one of these.
package ride

import "errors"

var (
	ErrActiveRide         = errors.New("rider already has an active ride")
	ErrNoDriversAvailable = errors.New("no drivers available")
	ErrNotFound           = errors.New("ride not found")
	ErrUnauthorized       = errors.New("actor not allowed on this ride")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrAlreadyClaimed     = errors.New("ride already claimed")
	ErrDriverBusy         = errors.New("driver already has an active ride")
	ErrNotAssigned        = errors.New("driver is not assigned to this ride")
	ErrInvalidState       = errors.New("ride is not in the required state")
	ErrDriverNotEligible  = errors.New("driver is not eligible to accept rides")
	ErrBadRequest         = errors.New("bad request")

	// ErrStoreUnavailable marks transient storage failures; it is the only
	// error a caller may retry without re-fetching state first.
	ErrStoreUnavailable = errors.New("store unavailable")
)
