// Package authz binds the ledger administrator and checks administrative calls.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/store"
)

// SettingAdmin is the store setting holding the bound administrator.
const SettingAdmin = "authz.admin"

var (
	// ErrAdminMismatch is returned when a bootstrap names a different administrator
	// than the one already bound.
	ErrAdminMismatch = errors.New("authz: administrator already bound to a different identity")
	// ErrAdminUnbound is returned when no administrator has been bootstrapped.
	ErrAdminUnbound = errors.New("authz: administrator not bound")
)

// Guard resolves the administrator identity from the store.
type Guard struct {
	store store.Store
}

func NewGuard(st store.Store) *Guard {
	return &Guard{store: st}
}

// Bootstrap binds admin as the administrator. Repeating it with the same
// identity is a no-op; the binding never changes afterwards.
func (g *Guard) Bootstrap(ctx context.Context, admin contracts.Identity) error {
	if admin == "" {
		return contracts.Reject(contracts.ErrInvalidInput, "bootstrap", "", "", "administrator identity is empty")
	}
	return g.store.Atomic(ctx, func(ctx context.Context) error {
		current, ok, err := g.store.GetSetting(ctx, SettingAdmin)
		if err != nil {
			return fmt.Errorf("authz: read administrator: %w", err)
		}
		if ok {
			if contracts.Identity(current) != admin {
				return fmt.Errorf("%w: bound to %s", ErrAdminMismatch, current)
			}
			return nil
		}
		return g.store.PutSetting(ctx, SettingAdmin, string(admin))
	})
}

// Admin returns the bound administrator.
func (g *Guard) Admin(ctx context.Context) (contracts.Identity, error) {
	current, ok, err := g.store.GetSetting(ctx, SettingAdmin)
	if err != nil {
		return "", fmt.Errorf("authz: read administrator: %w", err)
	}
	if !ok {
		return "", ErrAdminUnbound
	}
	return contracts.Identity(current), nil
}

// RequireAdmin rejects any caller other than the bound administrator.
// An unbound administrator rejects everyone (fail-closed).
func (g *Guard) RequireAdmin(ctx context.Context, op string, caller contracts.Identity) error {
	admin, err := g.Admin(ctx)
	if err != nil {
		rej := contracts.Reject(contracts.ErrNotAdministrator, op, "", caller, "administrator unavailable (fail-closed)")
		rej.Err = err
		return rej
	}
	if caller == "" || caller != admin {
		return contracts.Reject(contracts.ErrNotAdministrator, op, "", caller, "")
	}
	return nil
}
