package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq" // registers the "postgres" driver

	"github.com/fogbridge/fogbridge/domain/entities"
	sdkErrors "github.com/fogbridge/fogbridge/domain/errors"
	"github.com/fogbridge/fogbridge/domain/ports"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// PostgresStore inserts one row per record.
type PostgresStore struct {
	db         *sql.DB
	table      string
	insertStmt string
	ownsDB     bool
}

var _ ports.RecordStore = (*PostgresStore)(nil)

// NewPostgresStore wraps an open database. The table name is interpolated into
// SQL, so it must be a plain identifier.
func NewPostgresStore(db *sql.DB, table string) (*PostgresStore, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresStore{
		db:    db,
		table: table,
		insertStmt: "INSERT INTO " + table +
			" (device_id, published_at, raw, filtered, status) VALUES ($1, $2, $3, $4, $5)",
	}, nil
}

// OpenPostgres connects to dsn, verifies the connection, and creates the
// table if it does not exist.
func OpenPostgres(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, &sdkErrors.PersistError{Store: "postgres", Err: err}
	}
	s, err := NewPostgresStore(db, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &sdkErrors.PersistError{Store: "postgres", Err: err}
	}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the record table if needed.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS "+s.table+` (
	id BIGSERIAL PRIMARY KEY,
	device_id TEXT NOT NULL,
	published_at TIMESTAMPTZ NOT NULL,
	raw DOUBLE PRECISION NOT NULL,
	filtered DOUBLE PRECISION NOT NULL,
	status JSONB
)`)
	if err != nil {
		return &sdkErrors.PersistError{Store: "postgres", Err: fmt.Errorf("create table %s: %w", s.table, err)}
	}
	return nil
}

// Name implements ports.RecordStore.
func (s *PostgresStore) Name() string { return "postgres" }

// Append inserts rec. A record without status stores SQL NULL.
func (s *PostgresStore) Append(ctx context.Context, rec entities.OutboundRecord) error {
	var status any
	if len(rec.Status) > 0 && string(rec.Status) != "null" {
		status = string(rec.Status)
	}
	_, err := s.db.ExecContext(ctx, s.insertStmt,
		rec.DeviceID,
		time.Unix(rec.Timestamp, 0).UTC(),
		rec.Raw,
		rec.Filtered,
		status,
	)
	if err != nil {
		return &sdkErrors.PersistError{Store: "postgres", Err: err}
	}
	return nil
}

// Close closes the database if the store opened it.
func (s *PostgresStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
