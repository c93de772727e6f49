// Package registry is the source of truth for vessel identity, ownership and
// flag state.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/authz"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/store"
)

// Reader is the read surface the emission ledger depends on.
type Reader interface {
	IsRegistered(ctx context.Context, id string) (bool, error)
	// FlagState returns "" for unknown vessels.
	FlagState(ctx context.Context, id string) (string, error)
	// OwnerOf returns ErrVesselNotFound for unknown vessels.
	OwnerOf(ctx context.Context, id string) (contracts.Identity, error)
}

// Registry stores vessels and restricts writes to the administrator.
type Registry struct {
	store  store.Store
	guard  *authz.Guard
	clock  func() time.Time
	logger *slog.Logger
}

var _ Reader = (*Registry)(nil)

func New(st store.Store, guard *authz.Guard) *Registry {
	return &Registry{
		store:  st,
		guard:  guard,
		clock:  time.Now,
		logger: slog.Default().With("component", "registry"),
	}
}

// WithClock overrides the clock used for registration timestamps.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// Register creates or overwrites the vessel record for id. Re-registration
// replaces owner and flag state without keeping the previous values.
func (r *Registry) Register(ctx context.Context, caller contracts.Identity, id string, owner contracts.Identity, flagState string) (contracts.Vessel, error) {
	const op = "register"
	if err := contracts.CheckField("vessel_id", id, true); err != nil {
		return contracts.Vessel{}, contracts.Reject(contracts.ErrInvalidInput, op, id, caller, err.Error())
	}
	if err := contracts.CheckField("owner", string(owner), true); err != nil {
		return contracts.Vessel{}, contracts.Reject(contracts.ErrInvalidInput, op, id, caller, err.Error())
	}
	if err := contracts.CheckField("flag_state", flagState, true); err != nil {
		return contracts.Vessel{}, contracts.Reject(contracts.ErrInvalidInput, op, id, caller, err.Error())
	}

	v := contracts.Vessel{
		ID:           id,
		Owner:        owner,
		FlagState:    flagState,
		RegisteredAt: r.clock().UTC(),
	}
	err := r.store.Atomic(ctx, func(ctx context.Context) error {
		if err := r.guard.RequireAdmin(ctx, op, caller); err != nil {
			return err
		}
		return r.store.PutVessel(ctx, v)
	})
	if err != nil {
		return contracts.Vessel{}, err
	}

	r.logger.InfoContext(ctx, "vessel registered", "vessel_id", id, "owner", owner, "flag_state", flagState)
	return v, nil
}

// Get returns the vessel record, or ErrVesselNotFound.
func (r *Registry) Get(ctx context.Context, id string) (contracts.Vessel, error) {
	v, err := r.store.GetVessel(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return contracts.Vessel{}, contracts.Reject(contracts.ErrVesselNotFound, "get vessel", id, "", "")
		}
		return contracts.Vessel{}, fmt.Errorf("registry: get %s: %w", id, err)
	}
	return v, nil
}

// List returns all vessels ordered by ID.
func (r *Registry) List(ctx context.Context) ([]contracts.Vessel, error) {
	return r.store.ListVessels(ctx)
}

func (r *Registry) IsRegistered(ctx context.Context, id string) (bool, error) {
	_, err := r.store.GetVessel(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("registry: lookup %s: %w", id, err)
	}
	return true, nil
}

func (r *Registry) FlagState(ctx context.Context, id string) (string, error) {
	v, err := r.store.GetVessel(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("registry: lookup %s: %w", id, err)
	}
	return v.FlagState, nil
}

func (r *Registry) OwnerOf(ctx context.Context, id string) (contracts.Identity, error) {
	v, err := r.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return v.Owner, nil
}
