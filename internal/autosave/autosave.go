// Package autosave debounces persistence of an in-progress edit. A
// Coordinator watches a draft, and once edits pause for the configured
// interval it writes the draft under its store key and hands it to a commit
// function.
package autosave

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/kuitang/notekeep/internal/errs"
	"github.com/kuitang/notekeep/internal/kv"
	"github.com/kuitang/notekeep/internal/obs"
)

// DefaultInterval is the debounce window used when none is configured.
const DefaultInterval = 2 * time.Second

// KeyPrefix namespaces draft keys in the store.
const KeyPrefix = "notekeep.draft."

// Key returns the store key for a draft context such as a note id.
func Key(context string) string {
	return KeyPrefix + context
}

// Draft is an uncommitted edit of a note.
type Draft struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// CommitFunc receives the draft once edits settle.
type CommitFunc func(ctx context.Context, d Draft) error

type state int

const (
	idle state = iota
	pending
)

// snapshot is a serialized draft with its fingerprint.
type snapshot struct {
	payload string
	sum     uint64
}

func snapshotOf(d Draft) (snapshot, error) {
	if d.Tags == nil {
		d.Tags = []string{}
	}
	data, err := json.Marshal(d)
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{payload: string(data), sum: xxhash.Sum64(data)}, nil
}

func (s snapshot) equal(o snapshot) bool {
	return s.sum == o.sum && s.payload == o.payload
}

// Coordinator is the debounce state machine for one draft context. It is safe
// for concurrent use; the timer fires on its own goroutine.
type Coordinator struct {
	store    kv.Store
	key      string
	interval time.Duration
	clock    Clock
	commit   CommitFunc
	onChange func(bool)
	onError  func(error)
	logger   *slog.Logger

	// saveMu orders saves and discards; it is taken before mu.
	saveMu sync.Mutex

	mu      sync.Mutex
	state   state
	timer   Timer
	gen     uint64
	current Draft
	curSnap snapshot
	saved   snapshot
	dirty   bool
	closed  bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithInterval sets the debounce window.
func WithInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(c *Coordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithCommit sets what happens to a settled draft after it is written to the
// store, typically updating the note it belongs to.
func WithCommit(fn CommitFunc) Option {
	return func(c *Coordinator) { c.commit = fn }
}

// WithOnChange registers a callback for flips of the unsaved-changes flag.
// It is called outside the coordinator's lock.
func WithOnChange(fn func(unsaved bool)) Option {
	return func(c *Coordinator) { c.onChange = fn }
}

// WithOnError registers a callback for failed saves.
func WithOnError(fn func(error)) Option {
	return func(c *Coordinator) { c.onError = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBaseline records d as already persisted, so editing starts clean.
func WithBaseline(d Draft) Option {
	return func(c *Coordinator) {
		snap, err := snapshotOf(d)
		if err != nil {
			return
		}
		c.current, c.curSnap, c.saved = cloneDraft(d), snap, snap
	}
}

// New creates an idle coordinator persisting drafts under key.
func New(store kv.Store, key string, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		key:      key,
		interval: DefaultInterval,
		clock:    realClock{},
		onChange: func(bool) {},
		onError:  func(error) {},
		logger:   obs.Pkg("autosave"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.curSnap == (snapshot{}) {
		empty, _ := snapshotOf(Draft{})
		c.curSnap, c.saved = empty, empty
	}
	return c
}

// Key returns the store key the draft is persisted under.
func (c *Coordinator) Key() string { return c.key }

// HasUnsavedChanges reports whether the latest draft differs from what was
// last saved successfully.
func (c *Coordinator) HasUnsavedChanges() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// Current returns the latest draft passed to Change.
func (c *Coordinator) Current() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneDraft(c.current)
}

// Change records a new draft value. A value different from the last saved
// one (re)starts the debounce timer; returning to the saved value cancels it.
func (c *Coordinator) Change(d Draft) {
	snap, err := snapshotOf(d)
	if err != nil {
		c.fail(fmt.Errorf("encode draft: %w", err))
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.current, c.curSnap = cloneDraft(d), snap

	if snap.equal(c.saved) {
		c.stopTimerLocked()
		c.state = idle
		flipped := c.setDirtyLocked(false)
		c.mu.Unlock()
		c.notify(flipped, false)
		return
	}

	c.state = pending
	c.restartTimerLocked()
	flipped := c.setDirtyLocked(true)
	c.mu.Unlock()
	c.notify(flipped, true)
}

// Flush cancels any pending timer and saves the current draft now. It
// returns the save error, which is also reported to the error callback.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.stopTimerLocked()
	c.state = idle
	c.mu.Unlock()
	return c.save(ctx)
}

// Clear discards the draft: the timer is cancelled, the stored draft is
// removed and the saved snapshot is reset to empty. A save already in
// progress finishes first.
func (c *Coordinator) Clear(ctx context.Context) error {
	empty, _ := snapshotOf(Draft{})

	c.saveMu.Lock()
	c.mu.Lock()
	c.stopTimerLocked()
	c.state = idle
	c.current, c.curSnap, c.saved = Draft{}, empty, empty
	flipped := c.setDirtyLocked(false)
	c.mu.Unlock()
	err := c.store.Remove(ctx, c.key)
	c.saveMu.Unlock()

	c.notify(flipped, false)
	if err != nil {
		return errs.Wrap(errs.StoreWrite, "failed to discard draft", err)
	}
	return nil
}

// Load returns a draft persisted by an earlier session under the same key.
// The coordinator's own state is not changed.
func (c *Coordinator) Load(ctx context.Context) (Draft, bool, error) {
	raw, ok, err := c.store.Get(ctx, c.key)
	if err != nil {
		return Draft{}, false, errs.Wrap(errs.Unavailable, "failed to read draft", err)
	}
	if !ok {
		return Draft{}, false, nil
	}
	var d Draft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		c.logger.Warn("stored draft is corrupt; ignoring", "key", c.key, "error", err)
		return Draft{}, false, nil
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}
	return d, true, nil
}

// Close stops the timer. Pending edits are not saved; call Flush first to
// keep them. Later calls to Change and Flush do nothing.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked()
	c.state = idle
	c.closed = true
}

func (c *Coordinator) restartTimerLocked() {
	c.stopTimerLocked()
	c.gen++
	gen := c.gen
	c.timer = c.clock.AfterFunc(c.interval, func() { c.fire(gen) })
}

func (c *Coordinator) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

// fire is the timer callback. A superseded timer finds a newer generation
// and does nothing.
func (c *Coordinator) fire(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.gen || c.state != pending {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.state = idle
	c.mu.Unlock()
	_ = c.save(context.Background())
}

// save is the Save step: skip if nothing changed since the last successful
// save, otherwise write the draft to the store and commit it. Saves run one
// at a time, so a timer save and a Flush never commit the same snapshot.
// The commit must not call back into the coordinator.
func (c *Coordinator) save(ctx context.Context) error {
	c.saveMu.Lock()
	flipped, saved, err := c.saveLocked(ctx)
	c.saveMu.Unlock()

	if err != nil {
		return c.fail(err)
	}
	c.notify(flipped, false)
	if saved > 0 {
		c.logger.Debug("draft saved", "key", c.key, "bytes", saved)
	}
	return nil
}

// saveLocked runs with saveMu held. It reports whether the unsaved flag
// flipped and how many bytes were written.
func (c *Coordinator) saveLocked(ctx context.Context) (bool, int, error) {
	c.mu.Lock()
	d, snap := cloneDraft(c.current), c.curSnap
	if snap.equal(c.saved) {
		flipped := c.state == idle && c.setDirtyLocked(false)
		c.mu.Unlock()
		return flipped, 0, nil
	}
	c.mu.Unlock()

	ctx = obs.WithCorrelation(ctx, obs.Correlation{DraftKey: c.key})
	if err := c.store.Set(ctx, c.key, snap.payload); err != nil {
		return false, 0, errs.Wrap(errs.StoreWrite, "failed to save draft", err)
	}
	if c.commit != nil {
		if err := c.commit(ctx, d); err != nil {
			return false, 0, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.saved = snap
	// edits that arrived while saving keep the flag set
	if c.state == idle && c.curSnap.equal(snap) {
		return c.setDirtyLocked(false), len(snap.payload), nil
	}
	return false, len(snap.payload), nil
}

// fail keeps the unsaved flag set and reports err. No retry is scheduled;
// the next edit or Flush is the retry.
func (c *Coordinator) fail(err error) error {
	c.logger.Warn("draft save failed", "key", c.key, "error", err)
	c.onError(err)
	return err
}

func (c *Coordinator) setDirtyLocked(v bool) bool {
	if c.dirty == v {
		return false
	}
	c.dirty = v
	return true
}

func (c *Coordinator) notify(flipped, value bool) {
	if flipped {
		c.onChange(value)
	}
}

func cloneDraft(d Draft) Draft {
	if d.Tags != nil {
		d.Tags = append([]string(nil), d.Tags...)
	}
	return d
}
