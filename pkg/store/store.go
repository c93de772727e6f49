// Package store persists the three ledgers (vessels, emission histories and
// compliance notices) behind one transactional interface, so that a recording
// and the notice it triggers commit or roll back together.
package store

import (
	"context"
	"errors"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
)

var (
	// ErrNotFound is returned when a keyed lookup has no row.
	ErrNotFound = errors.New("store: not found")
	// ErrSequenceConflict is returned when an append does not extend the tail of its chain.
	ErrSequenceConflict = errors.New("store: append out of sequence")
	// ErrReadOnly is returned by writes made through a Snapshot context.
	ErrReadOnly = errors.New("store: write in read-only snapshot")
)

// Store is the durable interface shared by the ledgers.
//
// Every method accepts a context. When the context was handed out by Atomic,
// the call joins that transaction; otherwise reads see the latest committed
// state and each write commits on its own.
type Store interface {
	// Atomic runs fn in a transaction. A non-nil error from fn discards
	// every write fn made. Nested calls join the outer transaction.
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
	// Snapshot runs fn against one consistent committed view without
	// holding up writers. Writes through fn's context fail with
	// ErrReadOnly. Inside Atomic, fn joins the open transaction.
	Snapshot(ctx context.Context, fn func(ctx context.Context) error) error

	PutVessel(ctx context.Context, v contracts.Vessel) error
	GetVessel(ctx context.Context, id string) (contracts.Vessel, error)
	ListVessels(ctx context.Context) ([]contracts.Vessel, error)

	// AppendRecord adds rec to the tail of its vessel's history.
	// rec.Sequence must be exactly one past the current tail.
	AppendRecord(ctx context.Context, rec contracts.EmissionRecord) error
	LastRecord(ctx context.Context, vesselID string) (contracts.EmissionRecord, bool, error)
	ListRecords(ctx context.Context, vesselID string) ([]contracts.EmissionRecord, error)

	// AppendNotice adds n to the tail of the global notice sequence.
	AppendNotice(ctx context.Context, n contracts.ComplianceNotice) error
	LastNotice(ctx context.Context) (contracts.ComplianceNotice, bool, error)
	ListNotices(ctx context.Context) ([]contracts.ComplianceNotice, error)

	GetSetting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value string) error

	Close() error
}

type scopeKey struct{}

// txScope is the per-transaction state carried in the context.
type txScope struct {
	owner Store
	state    any // *memState or *sql.Tx
	readOnly bool
	hooks    []func(ctx context.Context)
}

func withScope(ctx context.Context, sc *txScope) context.Context {
	return context.WithValue(ctx, scopeKey{}, sc)
}

func scopeFrom(ctx context.Context, owner Store) *txScope {
	sc, ok := ctx.Value(scopeKey{}).(*txScope)
	if !ok || sc.owner != owner {
		return nil
	}
	return sc
}

// runHooks runs the commit hooks with the context Atomic was called with,
// so work they start never joins the finished transaction.
func (sc *txScope) runHooks(ctx context.Context) {
	for _, h := range sc.hooks {
		h(ctx)
	}
}

// AfterCommit defers fn until the transaction carried by ctx commits.
// Hooks of a rolled-back transaction never run. Outside a transaction fn
// runs immediately.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if sc, ok := ctx.Value(scopeKey{}).(*txScope); ok {
		sc.hooks = append(sc.hooks, fn)
		return
	}
	fn(ctx)
}

// InTransaction reports whether ctx carries an open transaction.
func InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(scopeKey{}).(*txScope)
	return ok
}
