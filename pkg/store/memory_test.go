package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStore_ReadersSeeCommittedSnapshot(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.AppendRecord(ctx, testRecord("IMO1234567", 1, 90)))

	inside := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- s.Atomic(ctx, func(ctx context.Context) error {
			if err := s.AppendRecord(ctx, testRecord("IMO1234567", 2, 170)); err != nil {
				return err
			}
			close(inside)
			<-release
			return nil
		})
	}()

	<-inside
	// An outside reader is not blocked by the writer and does not see its pending append.
	history, err := s.ListRecords(ctx, "IMO1234567")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	close(release)
	require.NoError(t, <-done)

	history, err = s.ListRecords(ctx, "IMO1234567")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestMemoryStore_SnapshotDoesNotBlockWriters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.AppendRecord(ctx, testRecord("IMO1234567", 1, 90)))

	err := s.Snapshot(ctx, func(snap context.Context) error {
		// A writer commits while the snapshot is open.
		require.NoError(t, s.AppendRecord(ctx, testRecord("IMO1234567", 2, 170)))

		pinned, err := s.ListRecords(snap, "IMO1234567")
		require.NoError(t, err)
		assert.Len(t, pinned, 1)

		latest, err := s.ListRecords(ctx, "IMO1234567")
		require.NoError(t, err)
		assert.Len(t, latest, 2)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_ConcurrentAppendsAreSerialized(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Atomic(ctx, func(ctx context.Context) error {
				last, ok, err := s.LastNotice(ctx)
				if err != nil {
					return err
				}
				next := uint64(1)
				if ok {
					next = last.Sequence + 1
				}
				return s.AppendNotice(ctx, testNotice(next))
			})
		}()
	}
	wg.Wait()

	notices, err := s.ListNotices(ctx)
	require.NoError(t, err)
	require.Len(t, notices, 32)
	for i, n := range notices {
		assert.Equal(t, uint64(i+1), n.Sequence)
	}
}

func TestMemoryStore_ListReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.AppendRecord(ctx, testRecord("IMO1234567", 1, 90)))

	history, err := s.ListRecords(ctx, "IMO1234567")
	require.NoError(t, err)
	history[0].SulfurContent = 999

	again, err := s.ListRecords(ctx, "IMO1234567")
	require.NoError(t, err)
	assert.Equal(t, uint64(90), again[0].SulfurContent)
}
