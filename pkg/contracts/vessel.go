// Package contracts holds the data model shared by the vessel registry, the
// emission ledger and the notification log.
package contracts

import "time"

// Identity names a caller. The execution environment vouches for it; the
// ledgers only compare identities, they never authenticate them.
type Identity string

// String returns the identity as a plain string.
func (i Identity) String() string {
	return string(i)
}

// Vessel is the registry's record of a ship.
type Vessel struct {
	ID           string    `json:"id" yaml:"id"` // IMO number
	Owner        Identity  `json:"owner" yaml:"owner"`
	FlagState    string    `json:"flag_state" yaml:"flag_state"`
	RegisteredAt time.Time `json:"registered_at" yaml:"-"`
}
