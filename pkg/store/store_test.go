package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
)

// runStoreSuite exercises behaviour every Store implementation must share.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("VesselUpsert", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetVessel(ctx, "IMO1234567")
		require.ErrorIs(t, err, ErrNotFound)

		v := testVessel("IMO1234567", "0xowner", "Panama")
		require.NoError(t, s.PutVessel(ctx, v))
		got, err := s.GetVessel(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, v, got)

		v.FlagState = "Liberia"
		require.NoError(t, s.PutVessel(ctx, v))
		got, err = s.GetVessel(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, "Liberia", got.FlagState)

		require.NoError(t, s.PutVessel(ctx, testVessel("IMO0000001", "0xother", "Malta")))
		list, err := s.ListVessels(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "IMO0000001", list[0].ID)
		assert.Equal(t, "IMO1234567", list[1].ID)
	})

	t.Run("RecordSequence", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, ok, err := s.LastRecord(ctx, "IMO1234567")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.AppendRecord(ctx, testRecord("IMO1234567", 1, 90)))
		require.NoError(t, s.AppendRecord(ctx, testRecord("IMO1234567", 2, 170)))
		require.NoError(t, s.AppendRecord(ctx, testRecord("IMO7654321", 1, 10)))

		err = s.AppendRecord(ctx, testRecord("IMO1234567", 2, 50))
		require.ErrorIs(t, err, ErrSequenceConflict)

		history, err := s.ListRecords(ctx, "IMO1234567")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, uint64(90), history[0].SulfurContent)
		assert.Equal(t, uint64(170), history[1].SulfurContent)
		assert.False(t, history[1].IsCompliant)

		last, ok, err := s.LastRecord(ctx, "IMO1234567")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, history[1], last)

		empty, err := s.ListRecords(ctx, "IMO_GHOST")
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)
	})

	t.Run("NoticeSequence", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.AppendNotice(ctx, testNotice(1)))
		require.ErrorIs(t, s.AppendNotice(ctx, testNotice(3)), ErrSequenceConflict)
		require.NoError(t, s.AppendNotice(ctx, testNotice(2)))

		notices, err := s.ListNotices(ctx)
		require.NoError(t, err)
		require.Len(t, notices, 2)
		assert.Equal(t, uint64(1), notices[0].Sequence)
		assert.Equal(t, contracts.Identity("0xledger"), notices[1].FiledBy)

		last, ok, err := s.LastNotice(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, notices[1], last)
	})

	t.Run("Settings", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, ok, err := s.GetSetting(ctx, "filer")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.PutSetting(ctx, "filer", "0xa"))
		require.NoError(t, s.PutSetting(ctx, "filer", "0xb"))
		v, ok, err := s.GetSetting(ctx, "filer")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "0xb", v)
	})

	t.Run("AtomicRollback", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		boom := errors.New("boom")

		hookRan := false
		err := s.Atomic(ctx, func(ctx context.Context) error {
			require.NoError(t, s.PutVessel(ctx, testVessel("IMO1234567", "0xowner", "Panama")))
			require.NoError(t, s.AppendRecord(ctx, testRecord("IMO1234567", 1, 170)))
			require.NoError(t, s.AppendNotice(ctx, testNotice(1)))
			AfterCommit(ctx, func(context.Context) { hookRan = true })

			// Writes are visible inside the transaction.
			_, ok, err := s.LastRecord(ctx, "IMO1234567")
			require.NoError(t, err)
			assert.True(t, ok)
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.False(t, hookRan)

		_, err = s.GetVessel(ctx, "IMO1234567")
		assert.ErrorIs(t, err, ErrNotFound)
		history, err := s.ListRecords(ctx, "IMO1234567")
		require.NoError(t, err)
		assert.Empty(t, history)
		notices, err := s.ListNotices(ctx)
		require.NoError(t, err)
		assert.Empty(t, notices)

		// The rolled-back slot is free again.
		require.NoError(t, s.AppendRecord(ctx, testRecord("IMO1234567", 1, 90)))
	})

	t.Run("AtomicCommitRunsHooksInOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var order []string
		err := s.Atomic(ctx, func(ctx context.Context) error {
			assert.True(t, InTransaction(ctx))
			AfterCommit(ctx, func(hookCtx context.Context) {
				assert.False(t, InTransaction(hookCtx), "hooks run outside the finished transaction")
				order = append(order, "first")
			})
			require.NoError(t, s.AppendNotice(ctx, testNotice(1)))

			// Nested calls join the outer transaction.
			return s.Atomic(ctx, func(ctx context.Context) error {
				AfterCommit(ctx, func(context.Context) { order = append(order, "second") })
				assert.Empty(t, order)
				return s.AppendNotice(ctx, testNotice(2))
			})
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second"}, order)

		notices, err := s.ListNotices(ctx)
		require.NoError(t, err)
		assert.Len(t, notices, 2)
	})

	t.Run("SnapshotIsReadOnly", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.PutVessel(ctx, testVessel("IMO1234567", "0xowner", "Panama")))
		require.NoError(t, s.AppendRecord(ctx, testRecord("IMO1234567", 1, 90)))

		err := s.Snapshot(ctx, func(ctx context.Context) error {
			history, err := s.ListRecords(ctx, "IMO1234567")
			require.NoError(t, err)
			assert.Len(t, history, 1)

			assert.ErrorIs(t, s.AppendRecord(ctx, testRecord("IMO1234567", 2, 170)), ErrReadOnly)
			assert.ErrorIs(t, s.AppendNotice(ctx, testNotice(1)), ErrReadOnly)
			assert.ErrorIs(t, s.PutVessel(ctx, testVessel("IMO0000001", "0xother", "Malta")), ErrReadOnly)
			assert.ErrorIs(t, s.PutSetting(ctx, "admin", "0xadmin"), ErrReadOnly)
			return nil
		})
		require.NoError(t, err)

		history, err := s.ListRecords(ctx, "IMO1234567")
		require.NoError(t, err)
		assert.Len(t, history, 1)
		vessels, err := s.ListVessels(ctx)
		require.NoError(t, err)
		assert.Len(t, vessels, 1)
	})

	t.Run("SnapshotJoinsTransaction", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		err := s.Atomic(ctx, func(ctx context.Context) error {
			require.NoError(t, s.AppendRecord(ctx, testRecord("IMO1234567", 1, 90)))
			return s.Snapshot(ctx, func(ctx context.Context) error {
				history, err := s.ListRecords(ctx, "IMO1234567")
				require.NoError(t, err)
				assert.Len(t, history, 1, "pending writes are visible to a joined snapshot")
				return nil
			})
		})
		require.NoError(t, err)
	})

	t.Run("NestedFailureRollsBackOuter", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		err := s.Atomic(ctx, func(ctx context.Context) error {
			require.NoError(t, s.AppendNotice(ctx, testNotice(1)))
			return s.Atomic(ctx, func(ctx context.Context) error {
				return s.AppendNotice(ctx, testNotice(5))
			})
		})
		require.ErrorIs(t, err, ErrSequenceConflict)

		notices, err := s.ListNotices(ctx)
		require.NoError(t, err)
		assert.Empty(t, notices)
	})
}

func TestAfterCommit_OutsideTransactionRunsImmediately(t *testing.T) {
	ran := false
	AfterCommit(context.Background(), func(context.Context) { ran = true })
	assert.True(t, ran)
	assert.False(t, InTransaction(context.Background()))
}

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testVessel(id, owner, flag string) contracts.Vessel {
	return contracts.Vessel{
		ID:           id,
		Owner:        contracts.Identity(owner),
		FlagState:    flag,
		RegisteredAt: testEpoch,
	}
}

func testRecord(vesselID string, seq, sulfur uint64) contracts.EmissionRecord {
	return contracts.EmissionRecord{
		ID:            fmt.Sprintf("%s-%d", vesselID, seq),
		Sequence:      seq,
		Timestamp:     testEpoch.Add(time.Duration(seq) * time.Minute),
		VesselID:      vesselID,
		SulfurContent: sulfur,
		Position:      "51.9N,4.1E",
		IsECA:         true,
		IsCompliant:   contracts.IsCompliant(true, sulfur),
		PortState:     "USA",
		PrevHash:      fmt.Sprintf("sha256:prev-%d", seq),
		Hash:          fmt.Sprintf("sha256:hash-%d", seq),
	}
}

func testNotice(seq uint64) contracts.ComplianceNotice {
	return contracts.ComplianceNotice{
		ID:        fmt.Sprintf("notice-%d", seq),
		Sequence:  seq,
		Timestamp: testEpoch.Add(time.Duration(seq) * time.Second),
		VesselID:  "IMO1234567",
		RecordID:  fmt.Sprintf("IMO1234567-%d", seq),
		Message:   contracts.MessageECAViolation,
		FlagState: "Panama",
		PortState: "USA",
		FiledBy:   "0xledger",
		PrevHash:  "genesis",
		Hash:      fmt.Sprintf("sha256:notice-%d", seq),
	}
}
