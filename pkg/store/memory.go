package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
)

// memState is one committed version of the ledgers. Published states are
// never mutated; a transaction works on a shallow clone and only appends
// past the lengths that readers can see.
type memState struct {
	vessels  map[string]contracts.Vessel
	records  map[string][]contracts.EmissionRecord
	notices  []contracts.ComplianceNotice
	settings map[string]string
}

func newMemState() *memState {
	return &memState{
		vessels:  make(map[string]contracts.Vessel),
		records:  make(map[string][]contracts.EmissionRecord),
		notices:  make([]contracts.ComplianceNotice, 0),
		settings: make(map[string]string),
	}
}

func (m *memState) clone() *memState {
	c := &memState{
		vessels:  make(map[string]contracts.Vessel, len(m.vessels)),
		records:  make(map[string][]contracts.EmissionRecord, len(m.records)),
		notices:  m.notices,
		settings: make(map[string]string, len(m.settings)),
	}
	for k, v := range m.vessels {
		c.vessels[k] = v
	}
	for k, v := range m.records {
		c.records[k] = v
	}
	for k, v := range m.settings {
		c.settings[k] = v
	}
	return c
}

// MemoryStore is a thread-safe in-memory Store. Writers are serialized;
// readers load the last committed snapshot without taking the write lock.
type MemoryStore struct {
	writeMu sync.Mutex
	current atomic.Pointer[memState]
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.current.Store(newMemState())
	return s
}

func (s *MemoryStore) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if scopeFrom(ctx, s) != nil {
		return fn(ctx)
	}

	s.writeMu.Lock()
	committed := false
	defer func() {
		if !committed {
			s.writeMu.Unlock()
		}
	}()

	work := s.current.Load().clone()
	sc := &txScope{owner: s, state: work}
	if err := fn(withScope(ctx, sc)); err != nil {
		return err
	}

	s.current.Store(work)
	committed = true
	s.writeMu.Unlock()

	sc.runHooks(ctx)
	return nil
}

// Snapshot pins the last committed state; writers keep publishing new ones.
func (s *MemoryStore) Snapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	if scopeFrom(ctx, s) != nil {
		return fn(ctx)
	}
	return fn(withScope(ctx, &txScope{owner: s, state: s.current.Load(), readOnly: true}))
}

// view returns the transaction's working state or the committed snapshot.
func (s *MemoryStore) view(ctx context.Context) *memState {
	if sc := scopeFrom(ctx, s); sc != nil {
		return sc.state.(*memState)
	}
	return s.current.Load()
}

func (s *MemoryStore) write(ctx context.Context, fn func(st *memState) error) error {
	if sc := scopeFrom(ctx, s); sc != nil {
		if sc.readOnly {
			return ErrReadOnly
		}
		return fn(sc.state.(*memState))
	}
	return s.Atomic(ctx, func(ctx context.Context) error {
		return fn(scopeFrom(ctx, s).state.(*memState))
	})
}

func (s *MemoryStore) PutVessel(ctx context.Context, v contracts.Vessel) error {
	return s.write(ctx, func(st *memState) error {
		st.vessels[v.ID] = v
		return nil
	})
}

func (s *MemoryStore) GetVessel(ctx context.Context, id string) (contracts.Vessel, error) {
	v, ok := s.view(ctx).vessels[id]
	if !ok {
		return contracts.Vessel{}, ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) ListVessels(ctx context.Context) ([]contracts.Vessel, error) {
	st := s.view(ctx)
	list := make([]contracts.Vessel, 0, len(st.vessels))
	for _, v := range st.vessels {
		list = append(list, v)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (s *MemoryStore) AppendRecord(ctx context.Context, rec contracts.EmissionRecord) error {
	return s.write(ctx, func(st *memState) error {
		history := st.records[rec.VesselID]
		if rec.Sequence != uint64(len(history))+1 {
			return fmt.Errorf("%w: vessel %s at %d, got %d", ErrSequenceConflict, rec.VesselID, len(history), rec.Sequence)
		}
		st.records[rec.VesselID] = append(history, rec)
		return nil
	})
}

func (s *MemoryStore) LastRecord(ctx context.Context, vesselID string) (contracts.EmissionRecord, bool, error) {
	history := s.view(ctx).records[vesselID]
	if len(history) == 0 {
		return contracts.EmissionRecord{}, false, nil
	}
	return history[len(history)-1], true, nil
}

func (s *MemoryStore) ListRecords(ctx context.Context, vesselID string) ([]contracts.EmissionRecord, error) {
	history := s.view(ctx).records[vesselID]
	out := make([]contracts.EmissionRecord, len(history))
	copy(out, history)
	return out, nil
}

func (s *MemoryStore) AppendNotice(ctx context.Context, n contracts.ComplianceNotice) error {
	return s.write(ctx, func(st *memState) error {
		if n.Sequence != uint64(len(st.notices))+1 {
			return fmt.Errorf("%w: notices at %d, got %d", ErrSequenceConflict, len(st.notices), n.Sequence)
		}
		st.notices = append(st.notices, n)
		return nil
	})
}

func (s *MemoryStore) LastNotice(ctx context.Context) (contracts.ComplianceNotice, bool, error) {
	notices := s.view(ctx).notices
	if len(notices) == 0 {
		return contracts.ComplianceNotice{}, false, nil
	}
	return notices[len(notices)-1], true, nil
}

func (s *MemoryStore) ListNotices(ctx context.Context) ([]contracts.ComplianceNotice, error) {
	notices := s.view(ctx).notices
	out := make([]contracts.ComplianceNotice, len(notices))
	copy(out, notices)
	return out, nil
}

func (s *MemoryStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	v, ok := s.view(ctx).settings[key]
	return v, ok, nil
}

func (s *MemoryStore) PutSetting(ctx context.Context, key, value string) error {
	return s.write(ctx, func(st *memState) error {
		st.settings[key] = value
		return nil
	})
}

func (s *MemoryStore) Close() error {
	return nil
}
