package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	stateTableName      = "inboxledger_state"
	stateKey            = "default"
	sqlOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// sqlDialect holds the statements that differ between database engines.
type sqlDialect struct {
	driver string
	create string
	load   string
	upsert string
}

var postgresDialect = sqlDialect{
	driver: "postgres",
	create: `CREATE TABLE IF NOT EXISTS ` + stateTableName + ` (
		state_key TEXT PRIMARY KEY,
		snapshot TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	load: `SELECT snapshot FROM ` + stateTableName + ` WHERE state_key = $1`,
	upsert: `INSERT INTO ` + stateTableName + ` (state_key, snapshot, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (state_key)
		DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = NOW()`,
}

var sqliteDialect = sqlDialect{
	driver: "sqlite",
	create: `CREATE TABLE IF NOT EXISTS ` + stateTableName + ` (
		state_key TEXT PRIMARY KEY,
		snapshot TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	load: `SELECT snapshot FROM ` + stateTableName + ` WHERE state_key = ?`,
	upsert: `INSERT INTO ` + stateTableName + ` (state_key, snapshot, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT (state_key)
		DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
}

// SQLBackend stores the snapshot as a single JSON row in a SQL database.
// The table is created lazily on first use.
type SQLBackend struct {
	dsn     string
	dialect sqlDialect
	openDB  sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// NewPostgresBackend returns a backend for a postgres:// DSN.
func NewPostgresBackend(dsn string) (*SQLBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty postgres DSN", ErrInvalidDSN)
	}
	return &SQLBackend{dsn: dsn, dialect: postgresDialect, openDB: sql.Open}, nil
}

// NewSQLiteBackend returns a backend for an SQLite database file.
func NewSQLiteBackend(path string) *SQLBackend {
	return &SQLBackend{dsn: strings.TrimSpace(path), dialect: sqliteDialect, openDB: sql.Open}
}

func (b *SQLBackend) Load(ctx context.Context) (*Snapshot, error) {
	if err := b.ensureReady(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()

	var payload string
	err := b.db.QueryRowContext(ctx, b.dialect.load, stateKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state from %s: %w", b.dialect.driver, err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		return nil, fmt.Errorf("%w: %s row: %v", ErrCorrupt, b.dialect.driver, err)
	}
	return &snapshot, nil
}

func (b *SQLBackend) Save(ctx context.Context, snapshot *Snapshot) error {
	if snapshot == nil {
		return nil
	}
	if err := b.ensureReady(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()
	if _, err := b.db.ExecContext(ctx, b.dialect.upsert, stateKey, string(payload)); err != nil {
		return fmt.Errorf("failed to save state to %s: %w", b.dialect.driver, err)
	}
	return nil
}

func (b *SQLBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *SQLBackend) ensureReady(ctx context.Context) error {
	b.initOnce.Do(func() {
		db, err := b.openDB(b.dialect.driver, b.dsn)
		if err != nil {
			b.initErr = fmt.Errorf("failed to open %s state database: %w", b.dialect.driver, err)
			return
		}
		ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
		defer cancel()

		if _, err := db.ExecContext(ctx, b.dialect.create); err != nil {
			_ = db.Close()
			b.initErr = fmt.Errorf("failed to create state table: %w", err)
			return
		}
		b.db = db
	})
	return b.initErr
}
