// Package notebook is the consumer-facing facade over the note and folder
// repositories. It owns the active filter criteria, memoizes the derived
// views, fans change events out to subscribers and turns write failures into
// warnings for the user.
package notebook

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kuitang/notekeep/internal/autosave"
	"github.com/kuitang/notekeep/internal/errs"
	"github.com/kuitang/notekeep/internal/ids"
	"github.com/kuitang/notekeep/internal/kv"
	"github.com/kuitang/notekeep/internal/notes"
	"github.com/kuitang/notekeep/internal/obs"
	"github.com/kuitang/notekeep/internal/query"
)

// EventKind says what changed.
type EventKind int

const (
	NotesChanged EventKind = iota + 1
	FoldersChanged
	FiltersChanged
	DraftChanged
	Reloaded
)

func (k EventKind) String() string {
	switch k {
	case NotesChanged:
		return "notes_changed"
	case FoldersChanged:
		return "folders_changed"
	case FiltersChanged:
		return "filters_changed"
	case DraftChanged:
		return "draft_changed"
	case Reloaded:
		return "reloaded"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers after a change has been applied.
type Event struct {
	Kind EventKind
	// Op is the operation that caused the event, e.g. "add" or "rename_tag".
	Op     string
	NoteID string
	// DraftKey and Unsaved are set for DraftChanged.
	DraftKey string
	Unsaved  bool
}

// Notification is a user-facing message, typically shown as a toast.
type Notification struct {
	Level   slog.Level
	Message string
	Err     error
}

// Notifier receives user-facing notifications.
type Notifier func(Notification)

// Notebook is safe for concurrent use. Draft timers and the store watcher
// call into it from their own goroutines.
type Notebook struct {
	name     string
	store    kv.Store
	notes    *notes.Repository
	folders  *notes.FolderRepository
	clock    autosave.Clock
	interval time.Duration
	notify   Notifier
	logger   *slog.Logger
	repoOpts []notes.Option

	mu       sync.Mutex
	criteria query.Criteria
	order    query.Order
	active   viewCache
	archived viewCache
	tags     tagCache
	subs     map[int]func(Event)
	nextSub  int
	drafts   map[string]*Draft
	closed   bool
}

// Option configures a Notebook.
type Option func(*Notebook)

// WithName labels log lines from this notebook.
func WithName(name string) Option {
	return func(nb *Notebook) {
		nb.name = name
	}
}

// WithNotifier receives warnings about failed writes.
func WithNotifier(fn Notifier) Option {
	return func(nb *Notebook) {
		if fn != nil {
			nb.notify = fn
		}
	}
}

// WithLogger overrides the logger of the notebook and its repositories.
func WithLogger(l *slog.Logger) Option {
	return func(nb *Notebook) {
		if l != nil {
			nb.logger = l
			nb.repoOpts = append(nb.repoOpts, notes.WithLogger(l))
		}
	}
}

// WithClock sets the clock used for note timestamps and draft timers.
func WithClock(c autosave.Clock) Option {
	return func(nb *Notebook) {
		if c != nil {
			nb.clock = c
			nb.repoOpts = append(nb.repoOpts, notes.WithClock(c.Now))
		}
	}
}

// WithAutosaveInterval sets the debounce window for drafts.
func WithAutosaveInterval(d time.Duration) Option {
	return func(nb *Notebook) {
		if d > 0 {
			nb.interval = d
		}
	}
}

// WithIDs sets the identity generator for notes and folders.
func WithIDs(g *ids.Generator) Option {
	return func(nb *Notebook) {
		nb.repoOpts = append(nb.repoOpts, notes.WithIDs(g))
	}
}

// WithQuota caps the stored size of the notes collection and of the folder
// list.
func WithQuota(quotaBytes int64) Option {
	return func(nb *Notebook) {
		nb.repoOpts = append(nb.repoOpts, notes.WithQuota(quotaBytes))
	}
}

// New creates a notebook over store. Call Load before use.
func New(store kv.Store, opts ...Option) *Notebook {
	nb := &Notebook{
		name:     "default",
		store:    store,
		interval: autosave.DefaultInterval,
		notify:   func(Notification) {},
		logger:   obs.Pkg("notebook"),
		order:    query.DefaultOrder,
		subs:     make(map[int]func(Event)),
		drafts:   make(map[string]*Draft),
	}
	for _, opt := range opts {
		opt(nb)
	}
	nb.notes = notes.NewRepository(store, nb.repoOpts...)
	nb.folders = notes.NewFolderRepository(store, nb.repoOpts...)
	return nb
}

// Load reads notes and folders from the store. Corrupt data loads as empty;
// only failing reads are returned.
func (nb *Notebook) Load(ctx context.Context) error {
	ctx = nb.opContext(ctx, "load", "")
	if _, err := nb.notes.LoadAll(ctx, true); err != nil {
		return err
	}
	if _, err := nb.folders.Load(ctx); err != nil {
		return err
	}
	return nil
}

// Reload re-reads the store, picking up changes made by other processes.
func (nb *Notebook) Reload(ctx context.Context) error {
	if err := nb.Load(ctx); err != nil {
		nb.warn(ctx, "reload", "Could not reload notes", err)
		return err
	}
	nb.publish(Event{Kind: Reloaded, Op: "reload"})
	return nil
}

// Close stops every draft timer and closes the store. Unsaved drafts are
// dropped; flush them first to keep them.
func (nb *Notebook) Close() error {
	nb.mu.Lock()
	if nb.closed {
		nb.mu.Unlock()
		return nil
	}
	nb.closed = true
	drafts := make([]*Draft, 0, len(nb.drafts))
	for _, d := range nb.drafts {
		drafts = append(drafts, d)
	}
	nb.drafts = map[string]*Draft{}
	nb.subs = map[int]func(Event){}
	nb.mu.Unlock()

	for _, d := range drafts {
		d.Close()
	}
	return nb.store.Close()
}

// Subscribe registers fn for change events and returns a function that
// removes it. fn runs on the goroutine that made the change.
func (nb *Notebook) Subscribe(fn func(Event)) (unsubscribe func()) {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	id := nb.nextSub
	nb.nextSub++
	nb.subs[id] = fn
	return func() {
		nb.mu.Lock()
		defer nb.mu.Unlock()
		delete(nb.subs, id)
	}
}

func (nb *Notebook) publish(ev Event) {
	nb.mu.Lock()
	subs := make([]func(Event), 0, len(nb.subs))
	for _, fn := range nb.subs {
		subs = append(subs, fn)
	}
	nb.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (nb *Notebook) opContext(ctx context.Context, op, noteID string) context.Context {
	return obs.WithCorrelation(ctx, obs.Correlation{Notebook: nb.name, Operation: op, NoteID: noteID})
}

// warn reports a failed operation to the user as "<action>: <reason>".
// Repositories already log store failures, so only the notification is
// added here.
func (nb *Notebook) warn(ctx context.Context, op, action string, err error) {
	obs.From(ctx).Debug("notifying user", "op", op, "code", errs.CodeOf(err))
	nb.notify(Notification{
		Level:   slog.LevelWarn,
		Message: action + ": " + errs.MessageOf(err),
		Err:     err,
	})
}

// Usage reports the stored size of the notes collection against its quota.
func (nb *Notebook) Usage() notes.StorageUsageInfo {
	return nb.notes.Usage()
}
