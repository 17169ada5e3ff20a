// README: Driver profile, vehicle metadata and claim eligibility.
package driver

import (
	"errors"

	"rideflow/internal/types"
)

var ErrNotFound = errors.New("driver not found")

type Vehicle struct {
	Model        string `json:"model"`
	LicensePlate string `json:"license_plate"`
}

// Driver is the service-provider profile. UserID is a non-owning back
// reference to the account issued by the identity provider. Earnings is an
// accumulator only settlement may increase.
type Driver struct {
	ID        types.ID `json:"id"`
	UserID    types.ID `json:"user_id"`
	Approved  bool     `json:"approved"`
	Suspended bool     `json:"suspended"`
	Available bool     `json:"available"`
	Vehicle   Vehicle  `json:"vehicle"`
	Earnings  int64    `json:"earnings"`
}

// Eligible reports whether the driver may claim a requested ride.
func (d *Driver) Eligible() bool {
	return d.Approved && !d.Suspended && d.Available
}
