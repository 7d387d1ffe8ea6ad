// Package kv defines the persistent store adapter the note repository writes
// through, plus its backends. A Store is a flat string-to-string map with no
// transactions; callers own one key per logical document and always write the
// whole document.
package kv

import (
	"context"
	"errors"
)

var (
	// ErrQuotaExceeded is returned by Set when the write would push the store
	// past its size limit. Nothing is written in that case.
	ErrQuotaExceeded = errors.New("kv: quota exceeded")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("kv: store closed")

	// ErrInvalidKey is returned for empty keys.
	ErrInvalidKey = errors.New("kv: invalid key")
)

// Store is the persistent key-value primitive.
type Store interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}

// Watcher is implemented by stores that can report writes made by other
// processes. fn receives the changed key; writes made through the same Store
// value are not reported.
type Watcher interface {
	Watch(ctx context.Context, fn func(key string)) error
}

func checkKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}
