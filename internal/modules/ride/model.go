// README: Ride aggregate, status definitions and the driver transition table.
package ride

import (
	"time"

	"rideflow/internal/types"
)

type Status string

const (
	StatusNone      Status = "none"
	StatusRequested Status = "requested"
	StatusAccepted  Status = "accepted"
	StatusPickedUp  Status = "picked_up"
	StatusInTransit Status = "in_transit"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusRequested, StatusAccepted, StatusPickedUp, StatusInTransit, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// Terminal statuses admit no further mutation, not even by an admin override.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

func (s Status) Active() bool {
	switch s {
	case StatusRequested, StatusAccepted, StatusPickedUp, StatusInTransit:
		return true
	}
	return false
}

// ActiveStatuses is the set a rider or driver may hold at most one ride in.
var ActiveStatuses = []Status{StatusRequested, StatusAccepted, StatusPickedUp, StatusInTransit}

// DriverTransitions is the forward table for the assigned driver. The
// requested→accepted edge is the claim (Store.Claim) and the accepted→requested
// reject edge is Store.Release; neither goes through this table. Rider cancel
// of a requested ride is validated separately in the service.
var DriverTransitions = map[Status][]Status{
	StatusAccepted:  {StatusPickedUp, StatusCanceled},
	StatusPickedUp:  {StatusInTransit, StatusCanceled},
	StatusInTransit: {StatusCompleted, StatusCanceled},
}

func CanAdvance(from, to Status) bool {
	for _, s := range DriverTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
	RoleAdmin  Role = "admin"
)

// Actor is the verified identity attached to every dispatch operation.
// ID is the authenticated user id, not a driver profile id.
type Actor struct {
	Role Role
	ID   types.ID
}

type Place struct {
	Point   types.Point `json:"point"`
	Address string      `json:"address,omitempty"`
}

// Timestamps records the instant each status was first entered. Requested is
// always set; the rest are stamped exactly once by the corresponding
// transition. Accepted is cleared again when a driver rejects.
type Timestamps struct {
	Requested time.Time  `json:"requested"`
	Accepted  *time.Time `json:"accepted,omitempty"`
	PickedUp  *time.Time `json:"picked_up,omitempty"`
	InTransit *time.Time `json:"in_transit,omitempty"`
	Completed *time.Time `json:"completed,omitempty"`
	Canceled  *time.Time `json:"canceled,omitempty"`
}

type Ride struct {
	ID          types.ID   `json:"id"`
	RiderID     types.ID   `json:"rider_id"`
	DriverID    *types.ID  `json:"driver_id,omitempty"`
	Pickup      Place      `json:"pickup"`
	Destination Place      `json:"destination"`
	Status      Status     `json:"status"`
	Fare        int64      `json:"fare"`
	Timestamps  Timestamps `json:"timestamps"`
}

// Event is one row of the ride audit trail. Forced marks admin overrides that
// bypassed the driver transition table.
type Event struct {
	ID        int64
	RideID    types.ID
	From      Status
	To        Status
	ActorRole Role
	ActorID   *types.ID
	Forced    bool
	CreatedAt time.Time
}
