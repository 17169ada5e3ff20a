// README: Shared value types used across modules.
package types

// ID is an opaque record identifier (32 hex chars for locally generated ids,
// Firebase UIDs for authenticated users).
type ID string

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Money is an integer amount in the smallest unit of Currency.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}
