package notebook

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/kuitang/notekeep/internal/autosave"
	"github.com/kuitang/notekeep/internal/errs"
	"github.com/kuitang/notekeep/internal/notes"
	"github.com/kuitang/notekeep/internal/obs"
)

// Draft is an auto-saving editor session bound to one note. Edits go
// through Change; once they settle the draft is written to the store and
// committed into the note. A draft started without a note creates one on
// its first save.
type Draft struct {
	*autosave.Coordinator

	nb  *Notebook
	key string

	commitMu sync.Mutex
	mu       sync.Mutex
	noteID   string
}

// reportedError marks a commit failure the notebook already told the user
// about.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// NoteID returns the note the draft commits into. It is empty for a new-note
// draft that has not saved yet.
func (d *Draft) NoteID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.noteID
}

// Close stops the draft's timer and forgets it. Unsaved edits stay in the
// store for Recover.
func (d *Draft) Close() {
	d.Coordinator.Close()
	d.nb.mu.Lock()
	if d.nb.drafts[d.key] == d {
		delete(d.nb.drafts, d.key)
	}
	d.nb.mu.Unlock()
}

// Recover returns an edit persisted by an earlier session that never made
// it into the note, and whether there was one.
func (d *Draft) Recover(ctx context.Context) (autosave.Draft, bool, error) {
	saved, ok, err := d.Load(ctx)
	if err != nil || !ok {
		return autosave.Draft{}, false, err
	}
	if id := d.NoteID(); id != "" {
		if n, found := d.nb.notes.Get(id); found && sameContent(n, saved) {
			return autosave.Draft{}, false, nil
		}
	}
	return saved, true, nil
}

func (d *Draft) commit(ctx context.Context, v autosave.Draft) error {
	d.commitMu.Lock()
	defer d.commitMu.Unlock()

	tags := v.Tags
	if tags == nil {
		tags = []string{}
	}
	id := d.NoteID()
	if id == "" {
		newID, err := d.nb.AddNote(ctx, notes.Draft{Title: v.Title, Content: v.Content, Tags: tags})
		if err != nil {
			return reportedError{err}
		}
		d.mu.Lock()
		d.noteID = newID
		d.mu.Unlock()
		return nil
	}
	err := d.nb.UpdateNote(ctx, id, notes.Patch{
		Title:   &v.Title,
		Content: &v.Content,
		Tags:    &tags,
	})
	if err != nil {
		return reportedError{err}
	}
	return nil
}

// NewDraft starts an auto-save session. contextKey names the store slot the
// draft is kept under and defaults to noteID. An existing note seeds the
// draft so editing starts clean; an empty noteID starts a new note. Asking
// again for a live contextKey returns the same draft.
func (nb *Notebook) NewDraft(contextKey, noteID string) (*Draft, error) {
	contextKey = strings.TrimSpace(contextKey)
	if contextKey == "" {
		contextKey = noteID
	}
	if contextKey == "" {
		return nil, errs.New(errs.InvalidArgument, "a draft needs a context key or a note id")
	}

	var baseline autosave.Draft
	if noteID != "" {
		n, ok := nb.notes.Get(noteID)
		if !ok {
			return nil, errs.New(errs.NotFound, "note not found")
		}
		baseline = autosave.Draft{Title: n.Title, Content: n.Content, Tags: n.Tags}
	}

	key := autosave.Key(contextKey)

	nb.mu.Lock()
	defer nb.mu.Unlock()
	if nb.closed {
		return nil, errs.New(errs.Unavailable, "notebook is closed")
	}
	if d, ok := nb.drafts[key]; ok {
		return d, nil
	}

	d := &Draft{nb: nb, key: key, noteID: noteID}
	ctx := obs.WithCorrelation(context.Background(), obs.Correlation{Notebook: nb.name, DraftKey: key, NoteID: noteID})
	opts := []autosave.Option{
		autosave.WithInterval(nb.interval),
		autosave.WithCommit(d.commit),
		autosave.WithLogger(obs.From(ctx).With("pkg", "autosave")),
		autosave.WithOnChange(func(unsaved bool) {
			nb.publish(Event{Kind: DraftChanged, DraftKey: key, NoteID: d.NoteID(), Unsaved: unsaved})
		}),
		autosave.WithOnError(func(err error) {
			var reported reportedError
			if errors.As(err, &reported) {
				return
			}
			nb.warn(ctx, "autosave", "Could not save draft", err)
		}),
	}
	if nb.clock != nil {
		opts = append(opts, autosave.WithClock(nb.clock))
	}
	if noteID != "" {
		opts = append(opts, autosave.WithBaseline(baseline))
	}
	d.Coordinator = autosave.New(nb.store, key, opts...)
	nb.drafts[key] = d
	return d, nil
}

func sameContent(n notes.Note, d autosave.Draft) bool {
	if n.Title != d.Title || n.Content != d.Content || len(n.Tags) != len(d.Tags) {
		return false
	}
	for i := range n.Tags {
		if n.Tags[i] != d.Tags[i] {
			return false
		}
	}
	return true
}
