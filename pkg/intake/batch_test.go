package intake

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/authz"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/emission"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/notice"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/registry"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/store"
)

func newLedger(t *testing.T) (*emission.Ledger, *notice.Log) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	guard := authz.NewGuard(st)
	require.NoError(t, guard.Bootstrap(ctx, "0xadmin"))
	reg := registry.New(st, guard)
	log := notice.New(st, guard)
	require.NoError(t, log.SetFiler(ctx, "0xadmin", "0xledger"))
	_, err := reg.Register(ctx, "0xadmin", "IMO1234567", "0xowner", "Panama")
	require.NoError(t, err)
	return emission.New(st, reg, log, "0xledger"), log
}

const batch = `
# morning readings
{"caller":"0xowner","vessel_id":"IMO1234567","sulfur_content":90,"position":"51.9N,4.1E","is_eca":true,"port_state":"Netherlands"}
{"caller":"0xowner","vessel_id":"IMO1234567","sulfur_content":170,"position":"51.9N,4.1E","is_eca":true,"port_state":"Netherlands"}
{"caller":"0xstranger","vessel_id":"IMO1234567","sulfur_content":50,"is_eca":true}
{"caller":"0xowner","vessel_id":"IMO_GHOST","sulfur_content":50,"is_eca":true}
{"caller":"0xowner","vessel_id":"IMO1234567","sulfur_content":-5,"is_eca":true}
{"caller":"0xowner","vessel_id":"IMO1234567","sulfur_content":50,"is_eca":true,"tonnage":9000}
not json
{"caller":"0xowner","vessel_id":"IMO1234567","sulfur_content":501,"is_eca":false,"port_state":"USA"}
`

func TestImporter_Import(t *testing.T) {
	ledger, log := newLedger(t)
	im, err := NewImporter(ledger, 0, 1)
	require.NoError(t, err)

	res, err := im.Import(context.Background(), strings.NewReader(batch))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Accepted)
	assert.Equal(t, 2, res.Violations)
	require.Len(t, res.Rejected, 5)

	assert.Equal(t, 5, res.Rejected[0].Line)
	assert.ErrorIs(t, res.Rejected[0], contracts.ErrNotVesselOwner)
	assert.ErrorIs(t, res.Rejected[1], contracts.ErrUnregisteredVessel)
	for _, rej := range res.Rejected[2:] {
		assert.ErrorIs(t, rej, contracts.ErrInvalidInput, rej.Error())
	}

	history, err := ledger.GetEmissionHistory(context.Background(), "IMO1234567")
	require.NoError(t, err)
	assert.Len(t, history, 3)

	notices, err := log.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, notices, 2)
	assert.Equal(t, "Netherlands", notices[0].PortState)
	assert.Equal(t, contracts.MessageNonECAViolation, notices[1].Message)
}

func TestImporter_Pacing(t *testing.T) {
	ledger, _ := newLedger(t)
	im, err := NewImporter(ledger, 20, 1)
	require.NoError(t, err)

	line := `{"caller":"0xowner","vessel_id":"IMO1234567","sulfur_content":10,"is_eca":true}` + "\n"
	start := time.Now()
	res, err := im.Import(context.Background(), strings.NewReader(strings.Repeat(line, 5)))
	require.NoError(t, err)
	assert.Equal(t, 5, res.Accepted)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestImporter_CancelledContext(t *testing.T) {
	ledger, _ := newLedger(t)
	im, err := NewImporter(ledger, 0.001, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	line := `{"caller":"0xowner","vessel_id":"IMO1234567","sulfur_content":10,"is_eca":true}` + "\n"
	res, err := im.Import(ctx, strings.NewReader(line+line))
	require.Error(t, err)
	assert.Equal(t, 1, res.Accepted)
}
