package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // Postgres Driver
	_ "modernc.org/sqlite"
)

// Supported values for the store driver setting.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects the named driver and prepares its schema.
// The memory driver ignores dsn.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	logger := slog.Default().With("component", "store")

	switch driver {
	case DriverMemory, "":
		logger.Info("using in-memory store")
		return NewMemoryStore(), nil

	case DriverSQLite:
		if dsn == "" {
			dsn = ":memory:"
		}
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		// SQLite allows one writer; a single connection also keeps ":memory:" databases shared.
		db.SetMaxOpenConns(1)
		return initSQL(ctx, db, DialectSQLite, logger.With("driver", driver, "path", dsn))

	case DriverPostgres:
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to DB: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("DB ping failed: %w", err)
		}
		return initSQL(ctx, db, DialectPostgres, logger.With("driver", driver))

	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
}

func initSQL(ctx context.Context, db *sql.DB, dialect Dialect, logger *slog.Logger) (Store, error) {
	s := NewSQLStore(db, dialect)
	if err := s.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("store ready")
	return s, nil
}
