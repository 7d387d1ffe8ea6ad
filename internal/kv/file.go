package kv

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"

	"github.com/kuitang/notekeep/internal/obs"
)

const (
	// fileSuffix marks value files inside the store directory.
	fileSuffix = ".kv"

	// tempFilePrefix is the prefix used for temporary atomic write files.
	tempFilePrefix = "notekeep-tmp-"

	// watchDebounce coalesces the burst of events a single rename produces.
	watchDebounce = 50 * time.Millisecond
)

type fingerprint struct {
	present bool
	sum     uint64
}

func fingerprintOf(value string, present bool) fingerprint {
	if !present {
		return fingerprint{}
	}
	return fingerprint{present: true, sum: xxhash.Sum64String(value)}
}

// File stores each key in its own file under a directory. Writes go to a temp
// file that is renamed over the target, so readers never observe a torn value.
type File struct {
	dir    string
	perm   os.FileMode
	logger *slog.Logger

	mu     sync.Mutex
	known  map[string]fingerprint
	closed bool
}

// NewFile opens (creating if needed) a file-backed store rooted at dir.
func NewFile(dir string) (*File, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("kv: file store directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("kv: create store directory: %w", err)
	}
	return &File{
		dir:    dir,
		perm:   0o600,
		logger: obs.Pkg("kv"),
		known:  make(map[string]fingerprint),
	}, nil
}

// Dir returns the store directory.
func (f *File) Dir() string {
	return f.dir
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, url.PathEscape(key)+fileSuffix)
}

func keyFromPath(name string) (string, bool) {
	base := filepath.Base(name)
	if strings.HasPrefix(base, tempFilePrefix) || !strings.HasSuffix(base, fileSuffix) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimSuffix(base, fileSuffix))
	if err != nil || key == "" {
		return "", false
	}
	return key, true
}

// Get implements Store.
func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}
	if f.isClosed() {
		return "", false, ErrClosed
	}
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv: read %q: %w", key, err)
	}
	return string(data), true, nil
}

// Set implements Store.
func (f *File) Set(_ context.Context, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if f.isClosed() {
		return ErrClosed
	}
	f.remember(key, fingerprintOf(value, true))
	if err := writeFileAtomic(f.path(key), []byte(value), f.perm); err != nil {
		f.forget(key)
		return fmt.Errorf("kv: write %q: %w", key, err)
	}
	return nil
}

// Remove implements Store.
func (f *File) Remove(_ context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if f.isClosed() {
		return ErrClosed
	}
	f.remember(key, fingerprint{})
	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		f.forget(key)
		return fmt.Errorf("kv: remove %q: %w", key, err)
	}
	return nil
}

// Close implements Store.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *File) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *File) remember(key string, fp fingerprint) {
	f.mu.Lock()
	f.known[key] = fp
	f.mu.Unlock()
}

func (f *File) forget(key string) {
	f.mu.Lock()
	delete(f.known, key)
	f.mu.Unlock()
}

// changedExternally reports whether the on-disk value differs from the last
// value this store wrote or reported, and records the new state.
func (f *File) changedExternally(key string) bool {
	data, err := os.ReadFile(f.path(key))
	present := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		f.logger.Warn("watch: read changed file", "key", key, "error", err)
		return false
	}
	fp := fingerprintOf(string(data), present)

	f.mu.Lock()
	defer f.mu.Unlock()
	prev, seen := f.known[key]
	if seen && prev == fp {
		return false
	}
	f.known[key] = fp
	return true
}

// Watch reports keys changed on disk by other writers until ctx is done.
// It blocks; run it on its own goroutine.
func (f *File) Watch(ctx context.Context, fn func(key string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("kv: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(f.dir); err != nil {
		return fmt.Errorf("kv: watch %s: %w", f.dir, err)
	}

	var (
		timersMu sync.Mutex
		timers   = make(map[string]*time.Timer)
		stopped  bool
	)
	defer func() {
		timersMu.Lock()
		stopped = true
		for _, t := range timers {
			t.Stop()
		}
		timersMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			key, ok := keyFromPath(event.Name)
			if !ok {
				continue
			}

			timersMu.Lock()
			if t, exists := timers[key]; exists {
				t.Stop()
			}
			timers[key] = time.AfterFunc(watchDebounce, func() {
				timersMu.Lock()
				if stopped {
					timersMu.Unlock()
					return
				}
				delete(timers, key)
				timersMu.Unlock()

				if f.changedExternally(key) {
					fn(key)
				}
			})
			timersMu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Error("fsnotify error", "dir", f.dir, "error", err)
		}
	}
}

// writeFileAtomic writes data to a file atomically by writing to a temp file
// and then renaming it to the target filename.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)

	tmpFile, err := os.CreateTemp(dir, tempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name()) // no-op once renamed

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmpFile.Name(), perm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}

	if err := os.Rename(tmpFile.Name(), filename); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", filename, err)
	}

	return nil
}
