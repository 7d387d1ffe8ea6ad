// Package db opens the SQLCipher-encrypted SQLite database used by the
// encrypted key-value store backend.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// MaxOpenConns is the maximum open connections per store database.
	// SQLite is single-writer, so high connection counts are counterproductive.
	MaxOpenConns = 2

	// MaxIdleConns is the maximum idle connections per store database.
	MaxIdleConns = 1
)

// DB wraps an encrypted SQLite connection holding the kv table.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the encrypted database at path.
// keyHex is the 64-character hex encoding of the 32-byte database key.
func Open(path, keyHex string) (*DB, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if keyHex == "" {
		return nil, errors.New("database key is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// Format: file.db?_pragma_key=x'HEX_KEY'&_pragma_cipher_page_size=4096
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", path, keyHex)
	dsn = appendSQLiteParams(dsn, sqliteCommonParams())
	return open(dsn)
}

// OpenInMemory opens a private in-memory encrypted database for tests.
func OpenInMemory(name, keyHex string) (*DB, error) {
	if name == "" {
		name = "notekeep-test"
	}
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma_key=x'%s'&_pragma_cipher_page_size=4096", name, keyHex)
	return open(dsn)
}

func open(dsn string) (*DB, error) {
	sqlDB, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(MaxOpenConns)
	sqlDB.SetMaxIdleConns(MaxIdleConns)

	// A wrong key only surfaces on the first real query.
	var sqliteVersion string
	if err := sqlDB.QueryRow("SELECT sqlite_version()").Scan(&sqliteVersion); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}

	if _, err := sqlDB.Exec(KVSchema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db: sqlDB}, nil
}

// Get returns the value stored under key.
func (d *DB) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, true, nil
}

// Put inserts or replaces the value stored under key.
func (d *DB) Put(ctx context.Context, key, value string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, now_ms())
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (d *DB) Delete(ctx context.Context, key string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

// TotalSize returns the summed length of all keys and values.
func (d *DB) TotalSize(ctx context.Context) (int64, error) {
	var size sql.NullInt64
	err := d.db.QueryRowContext(ctx, `SELECT SUM(LENGTH(key) + LENGTH(value)) FROM kv`).Scan(&size)
	if err != nil {
		return 0, fmt.Errorf("failed to compute database size: %w", err)
	}
	return size.Int64, nil
}

// ValueSize returns the length of key plus its current value, or 0 if absent.
func (d *DB) ValueSize(ctx context.Context, key string) (int64, error) {
	var size sql.NullInt64
	err := d.db.QueryRowContext(ctx, `SELECT LENGTH(key) + LENGTH(value) FROM kv WHERE key = ?`, key).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to compute value size: %w", err)
	}
	return size.Int64, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func sqliteCommonParams() string {
	// WAL + NORMAL provides good throughput while preserving safety.
	return "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

func appendSQLiteParams(dsn, params string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}
