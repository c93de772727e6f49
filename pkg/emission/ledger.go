// Package emission is the emission ledger: it accepts sulfur readings from
// vessel owners, judges each against the zone limit, keeps every vessel's
// hash-chained history and files a compliance notice for each violation.
//
// A recording and the notice it triggers are one store transaction; neither
// is visible without the other.
package emission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/registry"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/store"
)

// Recorder is the public surface of the ledger.
type Recorder interface {
	RecordEmission(ctx context.Context, caller contracts.Identity, r contracts.Reading) (contracts.EmissionRecord, error)
	GetEmissionHistory(ctx context.Context, vesselID string) ([]contracts.EmissionRecord, error)
}

// NoticeFiler files compliance notices. *notice.Log satisfies it.
type NoticeFiler interface {
	File(ctx context.Context, caller contracts.Identity, draft contracts.NoticeDraft) (contracts.ComplianceNotice, error)
}

// Subscriber receives an event for every committed recording.
type Subscriber func(ctx context.Context, ev contracts.EmissionRecorded) error

// Ledger implements Recorder.
type Ledger struct {
	store    store.Store
	registry registry.Reader
	notices  NoticeFiler
	identity contracts.Identity
	clock    func() time.Time
	logger   *slog.Logger

	subMu       sync.RWMutex
	subscribers []Subscriber
}

var _ Recorder = (*Ledger)(nil)

// New creates a ledger that files notices as identity. identity must be the
// notice log's authorized filer for violations to be recorded.
func New(st store.Store, reg registry.Reader, notices NoticeFiler, identity contracts.Identity) *Ledger {
	return &Ledger{
		store:    st,
		registry: reg,
		notices:  notices,
		identity: identity,
		clock:    time.Now,
		logger:   slog.Default().With("component", "emission"),
	}
}

// WithClock overrides the clock used for record timestamps.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// Identity returns the identity the ledger files notices under.
func (l *Ledger) Identity() contracts.Identity {
	return l.identity
}

// Subscribe registers fn for EmissionRecorded events. Subscribers run after
// the recording commits, on the caller's goroutine.
func (l *Ledger) Subscribe(fn Subscriber) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	l.subscribers = append(l.subscribers, fn)
}

// RecordEmission validates and records a reading submitted by caller.
//
// Rejections, in the order they are checked: ErrInvalidInput for a
// malformed vessel id, ErrUnregisteredVessel, ErrNotVesselOwner, then
// ErrInvalidInput for the remaining fields. Anyone but the owner, an empty
// caller included, is told only that they do not own the vessel. A
// violation that cannot be filed rolls the recording back and returns the
// filing error. Writers are serialized by the store, so ctx may carry a
// transaction opened by the caller.
func (l *Ledger) RecordEmission(ctx context.Context, caller contracts.Identity, r contracts.Reading) (contracts.EmissionRecord, error) {
	const op = "record emission"

	if err := contracts.CheckField("vessel_id", r.VesselID, true); err != nil {
		return contracts.EmissionRecord{}, l.reject(ctx, contracts.Reject(contracts.ErrInvalidInput, op, r.VesselID, caller, err.Error()))
	}

	var rec contracts.EmissionRecord
	var filed *contracts.ComplianceNotice

	err := l.store.Atomic(ctx, func(ctx context.Context) error {
		registered, err := l.registry.IsRegistered(ctx, r.VesselID)
		if err != nil {
			return fmt.Errorf("emission: registry lookup: %w", err)
		}
		if !registered {
			return contracts.Reject(contracts.ErrUnregisteredVessel, op, r.VesselID, caller, "")
		}

		owner, err := l.registry.OwnerOf(ctx, r.VesselID)
		if err != nil {
			rej := contracts.Reject(contracts.ErrNotVesselOwner, op, r.VesselID, caller, "ownership lookup failed")
			rej.Err = err
			return rej
		}
		if caller == "" || caller != owner {
			return contracts.Reject(contracts.ErrNotVesselOwner, op, r.VesselID, caller, "")
		}
		if err := contracts.CheckReading(r); err != nil {
			return contracts.Reject(contracts.ErrInvalidInput, op, r.VesselID, caller, err.Error())
		}

		rec, err = l.buildRecord(ctx, r)
		if err != nil {
			return err
		}
		if err := l.store.AppendRecord(ctx, rec); err != nil {
			return fmt.Errorf("emission: append: %w", err)
		}

		if !rec.IsCompliant {
			// Flag state is read only once registration is confirmed.
			flagState, err := l.registry.FlagState(ctx, r.VesselID)
			if err != nil {
				return fmt.Errorf("emission: flag state lookup: %w", err)
			}
			n, err := l.notices.File(ctx, l.identity, contracts.NoticeDraft{
				VesselID:  rec.VesselID,
				RecordID:  rec.ID,
				Message:   contracts.ViolationMessage(rec.IsECA),
				FlagState: flagState,
				PortState: rec.PortState,
			})
			if err != nil {
				return fmt.Errorf("emission: file notice: %w", err)
			}
			filed = &n
		}

		committed := rec
		store.AfterCommit(ctx, func(ctx context.Context) { l.publish(ctx, committed) })
		return nil
	})
	if err != nil {
		return contracts.EmissionRecord{}, l.reject(ctx, err)
	}

	attrs := []any{
		"vessel_id", rec.VesselID,
		"record_id", rec.ID,
		"sequence", rec.Sequence,
		"sulfur_content", rec.SulfurContent,
		"is_eca", rec.IsECA,
		"is_compliant", rec.IsCompliant,
	}
	if filed != nil {
		attrs = append(attrs, "notice_id", filed.ID)
	}
	l.logger.InfoContext(ctx, "emission recorded", attrs...)
	return rec, nil
}

func (l *Ledger) buildRecord(ctx context.Context, r contracts.Reading) (contracts.EmissionRecord, error) {
	last, ok, err := l.store.LastRecord(ctx, r.VesselID)
	if err != nil {
		return contracts.EmissionRecord{}, fmt.Errorf("emission: read history head: %w", err)
	}

	rec := contracts.EmissionRecord{
		ID:            uuid.New().String(),
		Sequence:      1,
		Timestamp:     l.clock().UTC(),
		VesselID:      r.VesselID,
		SulfurContent: r.SulfurContent,
		Position:      r.Position,
		IsECA:         r.IsECA,
		IsCompliant:   contracts.IsCompliant(r.IsECA, r.SulfurContent),
		PortState:     r.PortState,
		PrevHash:      contracts.GenesisHash,
	}
	if ok {
		rec.Sequence = last.Sequence + 1
		rec.PrevHash = last.Hash
	}
	if rec.Hash, err = Hash(rec); err != nil {
		return contracts.EmissionRecord{}, err
	}
	return rec, nil
}

func (l *Ledger) publish(ctx context.Context, rec contracts.EmissionRecord) {
	ev := contracts.RecordedEvent(rec)

	l.subMu.RLock()
	subs := l.subscribers
	l.subMu.RUnlock()

	for _, fn := range subs {
		if err := fn(ctx, ev); err != nil {
			l.logger.WarnContext(ctx, "emission subscriber failed",
				"vessel_id", ev.VesselID,
				"record_id", ev.RecordID,
				"error", err,
			)
		}
	}
}

func (l *Ledger) reject(ctx context.Context, err error) error {
	var rej *contracts.LedgerError
	if errors.As(err, &rej) {
		l.logger.WarnContext(ctx, "emission rejected",
			"kind", rej.Kind.Error(),
			"vessel_id", rej.VesselID,
			"caller", rej.Caller,
		)
	} else {
		l.logger.ErrorContext(ctx, "emission failed", "error", err)
	}
	return err
}

// GetEmissionHistory returns the vessel's records in recording order.
// Unknown vessels have an empty history.
func (l *Ledger) GetEmissionHistory(ctx context.Context, vesselID string) ([]contracts.EmissionRecord, error) {
	return l.store.ListRecords(ctx, vesselID)
}

// VerifyHistory recomputes the hash chain of a vessel's history.
func (l *Ledger) VerifyHistory(ctx context.Context, vesselID string) error {
	history, err := l.store.ListRecords(ctx, vesselID)
	if err != nil {
		return err
	}
	return VerifyChain(vesselID, history)
}
