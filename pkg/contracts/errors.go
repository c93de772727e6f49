package contracts

import (
	"errors"
	"fmt"
)

// Failure kinds. Every rejected call wraps exactly one of these.
var (
	ErrUnregisteredVessel = errors.New("unregistered vessel")
	ErrNotVesselOwner     = errors.New("caller is not the vessel owner")
	ErrNotAuthorizedFiler = errors.New("caller is not the authorized notice filer")
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotAdministrator   = errors.New("caller is not the administrator")
	ErrVesselNotFound     = errors.New("vessel not found")
	ErrChainBroken        = errors.New("hash chain is broken")
)

// LedgerError describes a rejected operation.
type LedgerError struct {
	Kind     error
	Op       string
	VesselID string
	Caller   Identity
	Detail   string
	Err      error
}

func (e *LedgerError) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.VesselID != "" {
		msg += fmt.Sprintf(" (vessel %s)", e.VesselID)
	}
	if e.Caller != "" {
		msg += fmt.Sprintf(" (caller %s)", e.Caller)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the failure kind, so errors.Is(err, ErrNotVesselOwner) works.
func (e *LedgerError) Is(target error) bool {
	return e.Kind == target
}

// Unwrap exposes the underlying cause, if any.
func (e *LedgerError) Unwrap() error {
	return e.Err
}

// Reject builds a LedgerError of the given kind.
func Reject(kind error, op, vesselID string, caller Identity, detail string) *LedgerError {
	return &LedgerError{Kind: kind, Op: op, VesselID: vesselID, Caller: caller, Detail: detail}
}

// KindOf returns the failure kind of err, or nil when err is not a ledger rejection.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrUnregisteredVessel,
		ErrNotVesselOwner,
		ErrNotAuthorizedFiler,
		ErrInvalidInput,
		ErrNotAdministrator,
		ErrVesselNotFound,
		ErrChainBroken,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
