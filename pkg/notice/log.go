// Package notice keeps the append-only, hash-chained log of compliance
// notices and enforces its single authorized filer.
package notice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/authz"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/store"
)

// SettingFiler is the store setting holding the authorized filer.
const SettingFiler = "notice.filer"

// Handler is called after a filed notice commits.
type Handler func(ctx context.Context, n contracts.ComplianceNotice)

// Log is the notification log.
type Log struct {
	store  store.Store
	guard  *authz.Guard
	clock  func() time.Time
	logger *slog.Logger

	mu       sync.RWMutex
	handlers []Handler
}

func New(st store.Store, guard *authz.Guard) *Log {
	return &Log{
		store:  st,
		guard:  guard,
		clock:  time.Now,
		logger: slog.Default().With("component", "notice"),
	}
}

// WithClock overrides the clock used for filing timestamps.
func (l *Log) WithClock(clock func() time.Time) *Log {
	l.clock = clock
	return l
}

// AddHandler registers a handler for filed notices.
func (l *Log) AddHandler(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, h)
}

// SetFiler designates the only identity allowed to file notices.
// Only the administrator may call it.
func (l *Log) SetFiler(ctx context.Context, caller, filer contracts.Identity) error {
	const op = "set filer"
	if err := contracts.CheckField("filer", string(filer), true); err != nil {
		return contracts.Reject(contracts.ErrInvalidInput, op, "", caller, err.Error())
	}
	err := l.store.Atomic(ctx, func(ctx context.Context) error {
		if err := l.guard.RequireAdmin(ctx, op, caller); err != nil {
			return err
		}
		return l.store.PutSetting(ctx, SettingFiler, string(filer))
	})
	if err != nil {
		return err
	}
	l.logger.InfoContext(ctx, "notice filer set", "filer", filer)
	return nil
}

// Filer returns the authorized filer, if one is set.
func (l *Log) Filer(ctx context.Context) (contracts.Identity, bool, error) {
	v, ok, err := l.store.GetSetting(ctx, SettingFiler)
	if err != nil {
		return "", false, fmt.Errorf("notice: read filer: %w", err)
	}
	return contracts.Identity(v), ok, nil
}

// File appends a notice to the log. When ctx carries a store transaction the
// notice commits or rolls back with it, and handlers run only after commit.
func (l *Log) File(ctx context.Context, caller contracts.Identity, draft contracts.NoticeDraft) (contracts.ComplianceNotice, error) {
	const op = "file notice"
	var filed contracts.ComplianceNotice

	err := l.store.Atomic(ctx, func(ctx context.Context) error {
		filer, ok, err := l.Filer(ctx)
		if err != nil {
			rej := contracts.Reject(contracts.ErrNotAuthorizedFiler, op, draft.VesselID, caller, "filer unavailable (fail-closed)")
			rej.Err = err
			return rej
		}
		if !ok || caller == "" || caller != filer {
			return contracts.Reject(contracts.ErrNotAuthorizedFiler, op, draft.VesselID, caller, "")
		}
		if err := checkDraft(draft); err != nil {
			return contracts.Reject(contracts.ErrInvalidInput, op, draft.VesselID, caller, err.Error())
		}

		last, ok, err := l.store.LastNotice(ctx)
		if err != nil {
			return fmt.Errorf("notice: read chain head: %w", err)
		}
		n := contracts.ComplianceNotice{
			ID:        uuid.New().String(),
			Sequence:  1,
			Timestamp: l.clock().UTC(),
			VesselID:  draft.VesselID,
			RecordID:  draft.RecordID,
			Message:   draft.Message,
			FlagState: draft.FlagState,
			PortState: draft.PortState,
			FiledBy:   caller,
			PrevHash:  contracts.GenesisHash,
		}
		if ok {
			n.Sequence = last.Sequence + 1
			n.PrevHash = last.Hash
		}
		if n.Hash, err = Hash(n); err != nil {
			return err
		}
		if err := l.store.AppendNotice(ctx, n); err != nil {
			return err
		}

		filed = n
		store.AfterCommit(ctx, func(ctx context.Context) { l.notify(ctx, n) })
		return nil
	})
	if err != nil {
		return contracts.ComplianceNotice{}, err
	}
	return filed, nil
}

func (l *Log) notify(ctx context.Context, n contracts.ComplianceNotice) {
	l.logger.InfoContext(ctx, "compliance notice filed",
		"notice_id", n.ID,
		"sequence", n.Sequence,
		"vessel_id", n.VesselID,
		"flag_state", n.FlagState,
		"port_state", n.PortState,
	)

	l.mu.RLock()
	handlers := l.handlers
	l.mu.RUnlock()
	for _, h := range handlers {
		h(ctx, n)
	}
}

// ListAll returns every notice in filing order.
func (l *Log) ListAll(ctx context.Context) ([]contracts.ComplianceNotice, error) {
	return l.store.ListNotices(ctx)
}

// Verify recomputes the notice chain.
func (l *Log) Verify(ctx context.Context) error {
	notices, err := l.store.ListNotices(ctx)
	if err != nil {
		return err
	}
	return VerifyChain(notices)
}

func checkDraft(d contracts.NoticeDraft) error {
	if err := contracts.CheckField("vessel_id", d.VesselID, true); err != nil {
		return err
	}
	if err := contracts.CheckField("message", d.Message, true); err != nil {
		return err
	}
	if err := contracts.CheckField("flag_state", d.FlagState, false); err != nil {
		return err
	}
	return contracts.CheckField("port_state", d.PortState, false)
}
