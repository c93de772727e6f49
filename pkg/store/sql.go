package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
)

// Dialect selects placeholder syntax and transaction options.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SQLStore implements Store using database/sql.
// It supports both Postgres and SQLite via standard drivers.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Timestamps are stored as RFC 3339 text so both dialects round-trip them exactly.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS vessels (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	flag_state TEXT NOT NULL,
	registered_at TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS emission_records (
	id TEXT PRIMARY KEY,
	vessel_id TEXT NOT NULL,
	sequence BIGINT NOT NULL,
	recorded_at TEXT NOT NULL,
	sulfur_content BIGINT NOT NULL,
	vessel_position TEXT NOT NULL,
	is_eca BOOLEAN NOT NULL,
	is_compliant BOOLEAN NOT NULL,
	port_state TEXT NOT NULL,
	prev_hash TEXT NOT NULL,
	hash TEXT NOT NULL,
	UNIQUE (vessel_id, sequence)
)`,
	`CREATE TABLE IF NOT EXISTS compliance_notices (
	id TEXT PRIMARY KEY,
	sequence BIGINT NOT NULL UNIQUE,
	filed_at TEXT NOT NULL,
	vessel_id TEXT NOT NULL,
	record_id TEXT NOT NULL,
	message TEXT NOT NULL,
	flag_state TEXT NOT NULL,
	port_state TEXT NOT NULL,
	filed_by TEXT NOT NULL,
	prev_hash TEXT NOT NULL,
	hash TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS ledger_settings (
	name TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`,
}

// Init creates the ledger tables if they do not exist.
func (s *SQLStore) Init(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) conn(ctx context.Context) querier {
	if sc := scopeFrom(ctx, s); sc != nil {
		return sc.state.(*sql.Tx)
	}
	return s.db
}

func (s *SQLStore) writable(ctx context.Context) error {
	if sc := scopeFrom(ctx, s); sc != nil && sc.readOnly {
		return ErrReadOnly
	}
	return nil
}

// rebind rewrites '?' placeholders into the dialect's form.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if scopeFrom(ctx, s) != nil {
		return fn(ctx)
	}

	var opts *sql.TxOptions
	if s.dialect == DialectPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // Safe to call even if committed (no-op)

	sc := &txScope{owner: s, state: tx}
	if err := fn(withScope(ctx, sc)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	sc.runHooks(ctx)
	return nil
}

// Snapshot runs fn in a read-only transaction. Postgres uses repeatable
// read so every query in fn sees the same snapshot.
func (s *SQLStore) Snapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	if scopeFrom(ctx, s) != nil {
		return fn(ctx)
	}

	opts := &sql.TxOptions{ReadOnly: true}
	if s.dialect == DialectPostgres {
		opts.Isolation = sql.LevelRepeatableRead
	}
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("store: begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(withScope(ctx, &txScope{owner: s, state: tx, readOnly: true})); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: end snapshot: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: corrupt timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func (s *SQLStore) PutVessel(ctx context.Context, v contracts.Vessel) error {
	if err := s.writable(ctx); err != nil {
		return err
	}
	query := s.rebind(`
		INSERT INTO vessels (id, owner, flag_state, registered_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET owner = excluded.owner, flag_state = excluded.flag_state, registered_at = excluded.registered_at
	`)
	_, err := s.conn(ctx).ExecContext(ctx, query, v.ID, string(v.Owner), v.FlagState, formatTime(v.RegisteredAt))
	if err != nil {
		return fmt.Errorf("store: put vessel %s: %w", v.ID, err)
	}
	return nil
}

const vesselColumns = `id, owner, flag_state, registered_at`

func scanVessel(scan func(dest ...any) error) (contracts.Vessel, error) {
	var v contracts.Vessel
	var owner, registeredAt string
	if err := scan(&v.ID, &owner, &v.FlagState, &registeredAt); err != nil {
		return contracts.Vessel{}, err
	}
	v.Owner = contracts.Identity(owner)
	t, err := parseTime(registeredAt)
	if err != nil {
		return contracts.Vessel{}, err
	}
	v.RegisteredAt = t
	return v, nil
}

func (s *SQLStore) GetVessel(ctx context.Context, id string) (contracts.Vessel, error) {
	query := s.rebind(`SELECT ` + vesselColumns + ` FROM vessels WHERE id = ?`)
	v, err := scanVessel(s.conn(ctx).QueryRowContext(ctx, query, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return contracts.Vessel{}, ErrNotFound
		}
		return contracts.Vessel{}, fmt.Errorf("store: get vessel %s: %w", id, err)
	}
	return v, nil
}

func (s *SQLStore) ListVessels(ctx context.Context) ([]contracts.Vessel, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `SELECT `+vesselColumns+` FROM vessels ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list vessels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]contracts.Vessel, 0)
	for rows.Next() {
		v, err := scanVessel(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const recordColumns = `id, vessel_id, sequence, recorded_at, sulfur_content, vessel_position, is_eca, is_compliant, port_state, prev_hash, hash`

func scanRecord(scan func(dest ...any) error) (contracts.EmissionRecord, error) {
	var r contracts.EmissionRecord
	var recordedAt string
	if err := scan(&r.ID, &r.VesselID, &r.Sequence, &recordedAt, &r.SulfurContent, &r.Position,
		&r.IsECA, &r.IsCompliant, &r.PortState, &r.PrevHash, &r.Hash); err != nil {
		return contracts.EmissionRecord{}, err
	}
	t, err := parseTime(recordedAt)
	if err != nil {
		return contracts.EmissionRecord{}, err
	}
	r.Timestamp = t
	return r, nil
}

func (s *SQLStore) AppendRecord(ctx context.Context, rec contracts.EmissionRecord) error {
	if err := s.writable(ctx); err != nil {
		return err
	}
	last, ok, err := s.LastRecord(ctx, rec.VesselID)
	if err != nil {
		return err
	}
	var tail uint64
	if ok {
		tail = last.Sequence
	}
	if rec.Sequence != tail+1 {
		return fmt.Errorf("%w: vessel %s at %d, got %d", ErrSequenceConflict, rec.VesselID, tail, rec.Sequence)
	}

	query := s.rebind(`
		INSERT INTO emission_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = s.conn(ctx).ExecContext(ctx, query,
		rec.ID, rec.VesselID, rec.Sequence, formatTime(rec.Timestamp), rec.SulfurContent, rec.Position,
		rec.IsECA, rec.IsCompliant, rec.PortState, rec.PrevHash, rec.Hash,
	)
	if err != nil {
		return fmt.Errorf("store: append record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLStore) LastRecord(ctx context.Context, vesselID string) (contracts.EmissionRecord, bool, error) {
	query := s.rebind(`SELECT ` + recordColumns + ` FROM emission_records WHERE vessel_id = ? ORDER BY sequence DESC LIMIT 1`)
	rec, err := scanRecord(s.conn(ctx).QueryRowContext(ctx, query, vesselID).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return contracts.EmissionRecord{}, false, nil
		}
		return contracts.EmissionRecord{}, false, fmt.Errorf("store: last record %s: %w", vesselID, err)
	}
	return rec, true, nil
}

func (s *SQLStore) ListRecords(ctx context.Context, vesselID string) ([]contracts.EmissionRecord, error) {
	query := s.rebind(`SELECT ` + recordColumns + ` FROM emission_records WHERE vessel_id = ? ORDER BY sequence ASC`)
	rows, err := s.conn(ctx).QueryContext(ctx, query, vesselID)
	if err != nil {
		return nil, fmt.Errorf("store: list records %s: %w", vesselID, err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]contracts.EmissionRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const noticeColumns = `id, sequence, filed_at, vessel_id, record_id, message, flag_state, port_state, filed_by, prev_hash, hash`

func scanNotice(scan func(dest ...any) error) (contracts.ComplianceNotice, error) {
	var n contracts.ComplianceNotice
	var filedAt, filedBy string
	if err := scan(&n.ID, &n.Sequence, &filedAt, &n.VesselID, &n.RecordID, &n.Message,
		&n.FlagState, &n.PortState, &filedBy, &n.PrevHash, &n.Hash); err != nil {
		return contracts.ComplianceNotice{}, err
	}
	t, err := parseTime(filedAt)
	if err != nil {
		return contracts.ComplianceNotice{}, err
	}
	n.Timestamp = t
	n.FiledBy = contracts.Identity(filedBy)
	return n, nil
}

func (s *SQLStore) AppendNotice(ctx context.Context, n contracts.ComplianceNotice) error {
	if err := s.writable(ctx); err != nil {
		return err
	}
	last, ok, err := s.LastNotice(ctx)
	if err != nil {
		return err
	}
	var tail uint64
	if ok {
		tail = last.Sequence
	}
	if n.Sequence != tail+1 {
		return fmt.Errorf("%w: notices at %d, got %d", ErrSequenceConflict, tail, n.Sequence)
	}

	query := s.rebind(`
		INSERT INTO compliance_notices (` + noticeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = s.conn(ctx).ExecContext(ctx, query,
		n.ID, n.Sequence, formatTime(n.Timestamp), n.VesselID, n.RecordID, n.Message,
		n.FlagState, n.PortState, string(n.FiledBy), n.PrevHash, n.Hash,
	)
	if err != nil {
		return fmt.Errorf("store: append notice %s: %w", n.ID, err)
	}
	return nil
}

func (s *SQLStore) LastNotice(ctx context.Context) (contracts.ComplianceNotice, bool, error) {
	query := `SELECT ` + noticeColumns + ` FROM compliance_notices ORDER BY sequence DESC LIMIT 1`
	n, err := scanNotice(s.conn(ctx).QueryRowContext(ctx, query).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return contracts.ComplianceNotice{}, false, nil
		}
		return contracts.ComplianceNotice{}, false, fmt.Errorf("store: last notice: %w", err)
	}
	return n, true, nil
}

func (s *SQLStore) ListNotices(ctx context.Context) ([]contracts.ComplianceNotice, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `SELECT `+noticeColumns+` FROM compliance_notices ORDER BY sequence ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list notices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]contracts.ComplianceNotice, 0)
	for rows.Next() {
		n, err := scanNotice(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SQLStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.conn(ctx).QueryRowContext(ctx, s.rebind(`SELECT value FROM ledger_settings WHERE name = ?`), key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("store: get setting %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLStore) PutSetting(ctx context.Context, key, value string) error {
	if err := s.writable(ctx); err != nil {
		return err
	}
	query := s.rebind(`
		INSERT INTO ledger_settings (name, value) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value
	`)
	if _, err := s.conn(ctx).ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("store: put setting %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
