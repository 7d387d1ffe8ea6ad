package kv

import (
	"context"
	"fmt"
	"sync"

	"github.com/kuitang/notekeep/internal/crypto"
	"github.com/kuitang/notekeep/internal/db"
)

// SQLiteKeyVersion is the store-key version mixed into key derivation.
const SQLiteKeyVersion = 1

// SQLite is a Store kept in a SQLCipher-encrypted database file.
type SQLite struct {
	mu     sync.Mutex
	db     *db.DB
	quota  int64
	closed bool
}

// NewSQLite opens the encrypted store at path. The database key is derived
// from masterKey so the master key itself never reaches SQLCipher.
// quotaBytes <= 0 means unlimited.
func NewSQLite(path string, masterKey []byte, quotaBytes int64) (*SQLite, error) {
	keyHex := crypto.StoreKeyHex(masterKey, "kv", SQLiteKeyVersion)
	d, err := db.Open(path, keyHex)
	if err != nil {
		return nil, fmt.Errorf("kv: open sqlite store: %w", err)
	}
	return NewSQLiteFromDB(d, quotaBytes), nil
}

// NewSQLiteFromDB wraps an already opened database.
func NewSQLiteFromDB(d *db.DB, quotaBytes int64) *SQLite {
	return &SQLite{db: d, quota: quotaBytes}
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, ErrClosed
	}
	return s.db.Get(ctx, key)
}

// Set implements Store.
func (s *SQLite) Set(ctx context.Context, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.quota > 0 {
		total, err := s.db.TotalSize(ctx)
		if err != nil {
			return err
		}
		old, err := s.db.ValueSize(ctx, key)
		if err != nil {
			return err
		}
		next := total - old + int64(len(key)+len(value))
		if next > s.quota {
			return fmt.Errorf("%w: %d bytes needed, limit %d", ErrQuotaExceeded, next, s.quota)
		}
	}
	return s.db.Put(ctx, key, value)
}

// Remove implements Store.
func (s *SQLite) Remove(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.Delete(ctx, key)
}

// Close implements Store.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
