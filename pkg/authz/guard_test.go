package authz_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/authz"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/store"
)

func TestGuard_Bootstrap(t *testing.T) {
	ctx := context.Background()
	guard := authz.NewGuard(store.NewMemoryStore())

	_, err := guard.Admin(ctx)
	require.ErrorIs(t, err, authz.ErrAdminUnbound)

	require.NoError(t, guard.Bootstrap(ctx, "0xadmin"))
	require.NoError(t, guard.Bootstrap(ctx, "0xadmin"), "same admin is idempotent")

	err = guard.Bootstrap(ctx, "0xintruder")
	require.ErrorIs(t, err, authz.ErrAdminMismatch)

	admin, err := guard.Admin(ctx)
	require.NoError(t, err)
	assert.Equal(t, contracts.Identity("0xadmin"), admin)
}

func TestGuard_BootstrapRejectsEmpty(t *testing.T) {
	guard := authz.NewGuard(store.NewMemoryStore())
	err := guard.Bootstrap(context.Background(), "")
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)
}

func TestGuard_RequireAdmin(t *testing.T) {
	ctx := context.Background()
	guard := authz.NewGuard(store.NewMemoryStore())

	// Nobody is admin before bootstrap.
	err := guard.RequireAdmin(ctx, "register", "0xadmin")
	require.ErrorIs(t, err, contracts.ErrNotAdministrator)
	assert.ErrorIs(t, err, authz.ErrAdminUnbound)

	require.NoError(t, guard.Bootstrap(ctx, "0xadmin"))

	assert.NoError(t, guard.RequireAdmin(ctx, "register", "0xadmin"))
	assert.ErrorIs(t, guard.RequireAdmin(ctx, "register", "0xowner"), contracts.ErrNotAdministrator)
	assert.ErrorIs(t, guard.RequireAdmin(ctx, "register", ""), contracts.ErrNotAdministrator)
}
