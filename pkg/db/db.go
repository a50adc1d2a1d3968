// Package db pkg/db/db.go persists production contexts, their history,
// downtime and andon events in sqlite or postgres.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/mfreeman451/lineradar/pkg/config"
	"go.uber.org/zap"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const (
	createTablesSQLite = `
	CREATE TABLE IF NOT EXISTS production_context (
		equipment_code TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		data TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS production_context_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		equipment_code TEXT NOT NULL,
		version INTEGER NOT NULL,
		reason TEXT NOT NULL,
		source TEXT NOT NULL,
		snapshot TEXT NOT NULL,
		recorded_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS downtime_events (
		id TEXT PRIMARY KEY,
		equipment_code TEXT NOT NULL,
		category TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP,
		data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS andon_events (
		id TEXT PRIMARY KEY,
		equipment_code TEXT NOT NULL,
		status TEXT NOT NULL,
		priority TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		data TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_context_history_equipment
		ON production_context_history(equipment_code, id);
	CREATE INDEX IF NOT EXISTS idx_downtime_equipment_open
		ON downtime_events(equipment_code, end_time);
	CREATE INDEX IF NOT EXISTS idx_andon_status
		ON andon_events(status);
	`

	createTablesPostgres = `
	CREATE TABLE IF NOT EXISTS production_context (
		equipment_code TEXT PRIMARY KEY,
		version BIGINT NOT NULL,
		data TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS production_context_history (
		id BIGSERIAL PRIMARY KEY,
		equipment_code TEXT NOT NULL,
		version BIGINT NOT NULL,
		reason TEXT NOT NULL,
		source TEXT NOT NULL,
		snapshot TEXT NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS downtime_events (
		id TEXT PRIMARY KEY,
		equipment_code TEXT NOT NULL,
		category TEXT NOT NULL,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
		data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS andon_events (
		id TEXT PRIMARY KEY,
		equipment_code TEXT NOT NULL,
		status TEXT NOT NULL,
		priority TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		data TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_context_history_equipment
		ON production_context_history(equipment_code, id);
	CREATE INDEX IF NOT EXISTS idx_downtime_equipment_open
		ON downtime_events(equipment_code, end_time);
	CREATE INDEX IF NOT EXISTS idx_andon_status
		ON andon_events(status);
	`
)

// DB represents the database connection and operations.
type DB struct {
	*sql.DB
	driver string
	logger *zap.Logger
}

// Open connects to the configured database and initializes the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	switch cfg.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}

	sqlDB, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedOpenDB, err)
	}

	if cfg.Driver == DriverSQLite {
		// sqlite has a single writer; one connection also keeps :memory: databases shared
		sqlDB.SetMaxOpenConns(1)

		if _, err := sqlDB.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("%w: %w", errFailedToEnableWAL, err)
		}
	}

	db := NewWithDB(sqlDB, cfg.Driver, logger)
	if err := db.initSchema(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: %w", errFailedToInit, err)
	}

	return db, nil
}

// NewWithDB wraps an open connection without touching the schema.
func NewWithDB(sqlDB *sql.DB, driver string, logger *zap.Logger) *DB {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DB{DB: sqlDB, driver: driver, logger: logger}
}

func (db *DB) initSchema(ctx context.Context) error {
	schema := createTablesSQLite
	if db.driver == DriverPostgres {
		schema = createTablesPostgres
	}

	_, err := db.ExecContext(ctx, schema)

	return err
}

// rebind rewrites ? placeholders as $n for postgres.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}

	var b strings.Builder

	b.Grow(len(query) + 8)

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

func (db *DB) rollbackOnError(tx *sql.Tx, err error) {
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Warn("error rolling back transaction", zap.Error(rbErr))
		}
	}
}
