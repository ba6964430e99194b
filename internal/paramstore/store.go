// Package paramstore provides the persistence interface for
// cryptocore.EncryptionParams and a modernc.org/sqlite-backed
// implementation keyed by principal id.
package paramstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/juju/loggo"
	_ "modernc.org/sqlite"
)

var logger = loggo.GetLogger("paramstore")

// Store is the persistence contract the encryption core depends on: one
// versioned envelope (see cryptocore.Serialize) per principal, written
// through an atomic batch.
type Store interface {
	Get(ctx context.Context, principalID string) (value []byte, ok bool, err error)
	NewBatch() Batch
}

// Batch accumulates Put/Clear operations to commit atomically.
type Batch interface {
	Put(principalID string, value []byte)
	Clear(principalID string)
	Commit(ctx context.Context) error
}

// SQLiteStore is the reference Store implementation.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS encryption_params (
	principal_id TEXT PRIMARY KEY,
	value        BLOB NOT NULL,
	updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Open opens or creates a SQLite database at path and ensures the schema
// exists. PRAGMAs are set in the DSN so every pooled connection picks them
// up, matching the single-writer, WAL-journaled profile SQLite needs under
// concurrent delivery workers.
func Open(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(8)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logger.Debugf("opened param store at %s", path)
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the stored envelope for principalID, if any.
func (s *SQLiteStore) Get(ctx context.Context, principalID string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM encryption_params WHERE principal_id = ?", principalID).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query encryption params: %w", err)
	}
	return value, true, nil
}

// NewBatch returns a Batch for accumulating writes against this store.
func (s *SQLiteStore) NewBatch() Batch {
	return &sqliteBatch{store: s}
}

type batchOp struct {
	principalID string
	clear       bool
	value       []byte
}

type sqliteBatch struct {
	store *SQLiteStore
	ops   []batchOp
}

func (b *sqliteBatch) Put(principalID string, value []byte) {
	b.ops = append(b.ops, batchOp{principalID: principalID, value: value})
}

func (b *sqliteBatch) Clear(principalID string) {
	b.ops = append(b.ops, batchOp{principalID: principalID, clear: true})
}

// Commit applies every accumulated operation inside a single transaction so
// a partially-applied batch is never observable.
func (b *sqliteBatch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}
	tx, err := b.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, op := range b.ops {
		if op.clear {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM encryption_params WHERE principal_id = ?", op.principalID); err != nil {
				return fmt.Errorf("failed to clear params for %s: %w", op.principalID, err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO encryption_params (principal_id, value, updated_at)
			 VALUES (?, ?, CURRENT_TIMESTAMP)
			 ON CONFLICT(principal_id) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			op.principalID, op.value); err != nil {
			return fmt.Errorf("failed to store params for %s: %w", op.principalID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	logger.Debugf("committed batch of %d operations", len(b.ops))
	return nil
}
