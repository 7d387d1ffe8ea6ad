// Package notes owns the canonical note collection: its model, its on-disk
// format and the repository that is the only writer of it.
package notes

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kuitang/notekeep/internal/errs"
	"github.com/kuitang/notekeep/internal/ids"
	"github.com/kuitang/notekeep/internal/kv"
	"github.com/kuitang/notekeep/internal/obs"
)

// corruptPreviewChars bounds how much of an unreadable value is logged.
const corruptPreviewChars = 64

// Repository is the sole writer of the persisted note collection. Every
// mutation builds the next collection, writes it to the store as one value,
// and only then replaces the in-memory copy, so a failed write changes
// nothing.
type Repository struct {
	base

	mu    sync.RWMutex
	notes []Note
	gen   uint64
	size  int64
}

// base holds what every repository in this package is built from.
type base struct {
	store  kv.Store
	key    string
	ids    *ids.Generator
	now    func() time.Time
	logger *slog.Logger
	quota  int64
}

func newBase(store kv.Store, key string, opts []Option) base {
	b := base{
		store:  store,
		key:    key,
		ids:    ids.Default(),
		now:    time.Now,
		logger: obs.Pkg("notes"),
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *base) timestamp() time.Time {
	return b.now().UTC()
}

// Option configures a Repository or FolderRepository.
type Option func(*base)

// WithKey overrides the store key (default NotesKey).
func WithKey(key string) Option {
	return func(r *base) {
		if key != "" {
			r.key = key
		}
	}
}

// WithIDs sets the identity generator (default ids.Default()).
func WithIDs(g *ids.Generator) Option {
	return func(r *base) {
		if g != nil {
			r.ids = g
		}
	}
}

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *base) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *base) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithQuota caps the size of each serialized collection, notes and folders
// alike. Writes that would grow one past quotaBytes fail with
// kv.ErrQuotaExceeded before reaching the store. Backends without their own
// quota rely on this.
func WithQuota(quotaBytes int64) Option {
	return func(r *base) {
		r.quota = quotaBytes
	}
}

// NewRepository creates a repository over store. Call LoadAll before use to
// pick up previously persisted notes.
func NewRepository(store kv.Store, opts ...Option) *Repository {
	return &Repository{
		base:  newBase(store, NotesKey, opts),
		notes: []Note{},
	}
}

// LoadAll rebuilds the in-memory collection from the store and returns it,
// without archived notes unless includeArchived is set. Malformed stored data
// is logged and treated as an empty collection; only a failing read is
// returned as an error.
func (r *Repository) LoadAll(ctx context.Context, includeArchived bool) ([]Note, error) {
	raw, ok, err := r.store.Get(ctx, r.key)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "failed to read notes", err)
	}

	loaded := []Note{}
	if ok {
		decoded, stats, err := DecodeNotes(raw, r.timestamp())
		switch {
		case err != nil:
			r.logger.Warn("stored notes are corrupt; starting with an empty collection",
				"key", r.key, "bytes", len(raw), "head", obs.TruncateForLog(raw, corruptPreviewChars),
				"error", errs.Wrap(errs.StoreCorrupt, "decode notes", err))
		default:
			loaded = decoded
			if stats.Skipped > 0 || stats.Dupes > 0 || stats.Repaired > 0 || stats.Version != CurrentVersion {
				r.logger.Info("migrated stored notes",
					"key", r.key, "from_version", stats.Version, "skipped", stats.Skipped,
					"duplicates", stats.Dupes, "repaired", stats.Repaired, "loaded", len(decoded))
			}
		}
	}

	r.mu.Lock()
	r.notes = loaded
	r.gen++
	r.size = int64(len(raw))
	r.mu.Unlock()

	return r.All(includeArchived), nil
}

// All returns a copy of the collection, without archived notes unless
// includeArchived is set. Order is the repository's insertion order, newest
// first.
func (r *Repository) All(includeArchived bool) []Note {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Note, 0, len(r.notes))
	for _, n := range r.notes {
		if n.IsArchived && !includeArchived {
			continue
		}
		out = append(out, n.Clone())
	}
	return out
}

// Get returns the note with id, archived or not.
func (r *Repository) Get(id string) (Note, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(id); i >= 0 {
		return r.notes[i].Clone(), true
	}
	return Note{}, false
}

// Usage reports the stored size of the collection against the configured
// quota.
func (r *Repository) Usage() StorageUsageInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return NewStorageUsageInfo(r.size, r.quota)
}

// Generation increases every time the in-memory collection changes. Callers
// use it to memoize derived views.
func (r *Repository) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gen
}

// StoredBytes is the size of the last value read from or written to the store.
func (r *Repository) StoredBytes() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

func (r *Repository) indexOf(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(r.notes, func(n Note) bool { return n.ID == id })
}

// commit persists next and swaps it in. Caller holds r.mu.
func (r *Repository) commit(ctx context.Context, op string, next []Note) error {
	payload, err := EncodeNotes(next)
	if err != nil {
		return errs.Wrap(errs.Internal, "failed to encode notes", err)
	}
	err = CheckStorageLimit(r.size, int64(len(payload)), r.quota)
	if err == nil {
		err = r.store.Set(ctx, r.key, payload)
	}
	if err != nil {
		msg := "failed to save notes"
		if errors.Is(err, kv.ErrQuotaExceeded) {
			msg = "storage is full; notes were not saved"
		}
		obs.From(ctx).Warn("note write failed", "pkg", "notes", "op", op, "key", r.key, "error", err)
		return errs.Wrap(errs.StoreWrite, msg, err)
	}
	r.notes = next
	r.gen++
	r.size = int64(len(payload))
	return nil
}

// modify applies fn to a copy of the note with id and persists the result.
// Unknown ids are a silent no-op. fn returns false to skip the write.
func (r *Repository) modify(ctx context.Context, op, id string, fn func(n *Note, now time.Time) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil
	}
	n := r.notes[i].Clone()
	if !fn(&n, r.timestamp()) {
		return nil
	}
	normalizeNote(&n)

	next := slices.Clone(r.notes)
	next[i] = n
	return r.commit(ctx, op, next)
}

func touch(n *Note, now time.Time) {
	if now.Before(n.CreatedAt) {
		now = n.CreatedAt
	}
	n.UpdatedAt = now
}

func (r *Repository) freshID() string {
	for {
		id := r.ids.Next()
		if r.indexOf(id) < 0 {
			return id
		}
	}
}

// Add creates a note from d, persists it and returns its id. Title and
// content are not validated; empty notes are allowed.
func (r *Repository) Add(ctx context.Context, d Draft) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.timestamp()
	n := Note{
		ID:         r.freshID(),
		Title:      d.Title,
		Content:    d.Content,
		Tags:       normalizeTags(d.Tags),
		FolderID:   d.FolderID,
		IsFavorite: d.IsFavorite,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	next := make([]Note, 0, len(r.notes)+1)
	next = append(next, n)
	next = append(next, r.notes...)
	if err := r.commit(ctx, "add", next); err != nil {
		return "", err
	}
	return n.ID, nil
}

// Update merges p into the note with id and bumps UpdatedAt. Unknown ids are
// a no-op.
func (r *Repository) Update(ctx context.Context, id string, p Patch) error {
	return r.modify(ctx, "update", id, func(n *Note, now time.Time) bool {
		if p.Title != nil {
			n.Title = *p.Title
		}
		if p.Content != nil {
			n.Content = *p.Content
		}
		if p.Tags != nil {
			n.Tags = normalizeTags(*p.Tags)
		}
		if p.FolderID != nil {
			n.FolderID = *p.FolderID
		}
		if p.IsFavorite != nil {
			n.IsFavorite = *p.IsFavorite
		}
		touch(n, now)
		return true
	})
}

// Delete is a soft delete: the note is archived and can be restored.
// Use PermanentlyDelete to remove it for good.
func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.Archive(ctx, id)
}

// Archive marks the note archived. Already archived notes are left alone.
func (r *Repository) Archive(ctx context.Context, id string) error {
	return r.modify(ctx, "archive", id, func(n *Note, now time.Time) bool {
		if n.IsArchived {
			return false
		}
		touch(n, now)
		at := n.UpdatedAt
		n.IsArchived = true
		n.ArchivedAt = &at
		return true
	})
}

// Restore brings an archived note back. Active notes are left alone.
func (r *Repository) Restore(ctx context.Context, id string) error {
	return r.modify(ctx, "restore", id, func(n *Note, now time.Time) bool {
		if !n.IsArchived {
			return false
		}
		n.IsArchived = false
		n.ArchivedAt = nil
		touch(n, now)
		return true
	})
}

// ToggleFavorite flips IsFavorite. UpdatedAt is not changed: starring a note
// is not an edit and must not reorder the most-recently-edited view.
func (r *Repository) ToggleFavorite(ctx context.Context, id string) error {
	return r.modify(ctx, "toggle_favorite", id, func(n *Note, _ time.Time) bool {
		n.IsFavorite = !n.IsFavorite
		return true
	})
}

// PermanentlyDelete removes the note from the collection. Irreversible.
func (r *Repository) PermanentlyDelete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil
	}
	next := slices.Delete(slices.Clone(r.notes), i, i+1)
	return r.commit(ctx, "permanently_delete", next)
}

// Purge permanently removes archived notes archived before now-olderThan and
// returns how many were removed.
func (r *Repository) Purge(ctx context.Context, olderThan time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.timestamp().Add(-olderThan)
	next := make([]Note, 0, len(r.notes))
	for _, n := range r.notes {
		if n.IsArchived && n.ArchivedAt != nil && n.ArchivedAt.Before(cutoff) {
			continue
		}
		next = append(next, n)
	}
	purged := len(r.notes) - len(next)
	if purged == 0 {
		return 0, nil
	}
	if err := r.commit(ctx, "purge", next); err != nil {
		return 0, err
	}
	return purged, nil
}

// rewriteAll applies fn to every note and persists once if any changed.
// Changed notes get their UpdatedAt bumped.
func (r *Repository) rewriteAll(ctx context.Context, op string, fn func(n *Note) bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.timestamp()
	next := slices.Clone(r.notes)
	changed := 0
	for i := range next {
		n := next[i].Clone()
		if !fn(&n) {
			continue
		}
		touch(&n, now)
		normalizeNote(&n)
		next[i] = n
		changed++
	}
	if changed == 0 {
		return 0, nil
	}
	if err := r.commit(ctx, op, next); err != nil {
		return 0, err
	}
	return changed, nil
}

// RenameTag replaces tag from with to on every note, archived ones included,
// and returns the number of notes changed. A note that already carries to
// keeps a single copy.
func (r *Repository) RenameTag(ctx context.Context, from, to string) (int, error) {
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" {
		return 0, errs.New(errs.InvalidArgument, "tag to rename is required")
	}
	if from == to {
		return 0, nil
	}
	return r.rewriteAll(ctx, "rename_tag", func(n *Note) bool {
		tags, changed := renameTag(n.Tags, from, to)
		n.Tags = tags
		return changed
	})
}

// RemoveTag strips tag from every note and returns the number changed.
func (r *Repository) RemoveTag(ctx context.Context, tag string) (int, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return 0, errs.New(errs.InvalidArgument, "tag to remove is required")
	}
	return r.rewriteAll(ctx, "remove_tag", func(n *Note) bool {
		tags, changed := renameTag(n.Tags, tag, "")
		n.Tags = tags
		return changed
	})
}

// ClearFolder detaches every note from folderID and returns the number changed.
func (r *Repository) ClearFolder(ctx context.Context, folderID string) (int, error) {
	if folderID == "" {
		return 0, nil
	}
	return r.rewriteAll(ctx, "clear_folder", func(n *Note) bool {
		if n.FolderID != folderID {
			return false
		}
		n.FolderID = ""
		return true
	})
}

// Import merges externally produced notes in front of the collection.
// Empty or colliding ids are replaced with fresh ones; every note is
// normalized to the usual invariants. Returns the ids assigned, in order.
func (r *Repository) Import(ctx context.Context, incoming []Note) ([]string, error) {
	if len(incoming) == 0 {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.timestamp()
	taken := make(map[string]struct{}, len(r.notes)+len(incoming))
	for _, n := range r.notes {
		taken[n.ID] = struct{}{}
	}

	added := make([]Note, 0, len(incoming))
	assigned := make([]string, 0, len(incoming))
	for _, in := range incoming {
		n := in.Clone()
		if _, clash := taken[n.ID]; n.ID == "" || clash {
			n.ID = r.freshID()
			for {
				if _, clash := taken[n.ID]; !clash {
					break
				}
				n.ID = r.ids.Next()
			}
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		if n.UpdatedAt.IsZero() {
			n.UpdatedAt = n.CreatedAt
		}
		n.CreatedAt = n.CreatedAt.UTC()
		n.UpdatedAt = n.UpdatedAt.UTC()
		normalizeNote(&n)
		taken[n.ID] = struct{}{}
		added = append(added, n)
		assigned = append(assigned, n.ID)
	}

	next := make([]Note, 0, len(r.notes)+len(added))
	next = append(next, added...)
	next = append(next, r.notes...)
	if err := r.commit(ctx, "import", next); err != nil {
		return nil, err
	}
	return assigned, nil
}
