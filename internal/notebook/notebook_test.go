package notebook

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/notekeep/internal/autosave"
	"github.com/kuitang/notekeep/internal/errs"
	"github.com/kuitang/notekeep/internal/ids"
	"github.com/kuitang/notekeep/internal/kv"
	"github.com/kuitang/notekeep/internal/notes"
	"github.com/kuitang/notekeep/internal/query"
)

// =============================================================================
// Test Setup Helpers
// =============================================================================

type recorder struct {
	mu            sync.Mutex
	events        []Event
	notifications []Notification
}

func (r *recorder) event(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recorder) warnings() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notifications...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.notifications = nil
}

type fixture struct {
	nb    *Notebook
	store *kv.Memory
	clock *autosave.FakeClock
	rec   *recorder
}

// testingT is satisfied by both *testing.T and *rapid.T.
type testingT interface {
	require.TestingT
	Helper()
}

func newFixture(t testingT, store *kv.Memory, opts ...Option) *fixture {
	t.Helper()
	clock := autosave.NewFakeClock(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	rec := &recorder{}
	base := []Option{
		WithClock(clock),
		WithIDs(ids.New(ids.WithClock(clock.Now))),
		WithNotifier(rec.notify),
		WithAutosaveInterval(300 * time.Millisecond),
	}
	nb := New(store, append(base, opts...)...)
	require.NoError(t, nb.Load(context.Background()))
	nb.Subscribe(rec.event)
	return &fixture{nb: nb, store: store, clock: clock, rec: rec}
}

func titles(list []notes.Note) []string {
	out := make([]string, 0, len(list))
	for _, n := range list {
		out = append(out, n.Title)
	}
	return out
}

// =============================================================================
// Scenarios
// =============================================================================

func TestNotebook_TagFilterAndArchive(t *testing.T) {
	f := newFixture(t, kv.NewMemory(0))
	defer f.nb.Close()
	ctx := context.Background()

	idA, err := f.nb.AddNote(ctx, notes.Draft{Title: "A", Content: "x", Tags: []string{"work"}})
	require.NoError(t, err)
	f.clock.Advance(time.Millisecond)
	_, err = f.nb.AddNote(ctx, notes.Draft{Title: "B", Content: "y", Tags: []string{"home"}})
	require.NoError(t, err)

	require.ElementsMatch(t, []string{"A", "B"}, titles(f.nb.AllNotes()))

	f.nb.SetSelectedTag("work")
	require.Equal(t, []string{"A"}, titles(f.nb.Notes()))
	f.nb.ClearFilters()

	require.NoError(t, f.nb.ArchiveNote(ctx, idA))
	require.Equal(t, []string{"B"}, titles(f.nb.Notes()))
	require.Equal(t, []string{"A"}, titles(f.nb.ArchivedNotes()))

	n, ok := f.nb.GetNoteByID(idA)
	require.True(t, ok, "archived notes are still reachable by id")
	require.True(t, n.IsArchived)

	reopened := New(f.store)
	require.NoError(t, reopened.Load(ctx))
	require.Len(t, reopened.notes.All(true), 2)
}

func TestNotebook_CorruptStoreLoadsEmpty(t *testing.T) {
	store := kv.NewMemory(0)
	require.NoError(t, store.Set(context.Background(), notes.NotesKey, "{not json"))
	require.NoError(t, store.Set(context.Background(), notes.FoldersKey, "[[["))

	f := newFixture(t, store)
	defer f.nb.Close()
	require.Empty(t, f.nb.Notes())
	require.Empty(t, f.nb.Folders())
	require.Empty(t, f.rec.warnings(), "corruption is logged, not shown")
}

// =============================================================================
// Derived views
// =============================================================================

func TestNotes_MemoizedUntilSomethingChanges(t *testing.T) {
	f := newFixture(t, kv.NewMemory(0))
	defer f.nb.Close()
	ctx := context.Background()

	_, err := f.nb.AddNote(ctx, notes.Draft{Title: "one"})
	require.NoError(t, err)

	first := f.nb.Notes()
	second := f.nb.Notes()
	require.Len(t, first, 1)
	require.Same(t, &first[0], &second[0], "unchanged inputs reuse the cached view")

	f.nb.SetSearchQuery("one")
	third := f.nb.Notes()
	require.NotSame(t, &first[0], &third[0], "criteria change recomputes")

	_, err = f.nb.AddNote(ctx, notes.Draft{Title: "one more"})
	require.NoError(t, err)
	require.Len(t, f.nb.Notes(), 2, "collection change recomputes")

	f.nb.SetOrder(query.Order{Key: query.ByTitle})
	require.Equal(t, []string{"one", "one more"}, titles(f.nb.Notes()))
}

func TestTags_DerivedFromActiveNotes(t *testing.T) {
	f := newFixture(t, kv.NewMemory(0))
	defer f.nb.Close()
	ctx := context.Background()

	_, err := f.nb.AddNote(ctx, notes.Draft{Title: "a", Tags: []string{"work", "idea"}})
	require.NoError(t, err)
	id, err := f.nb.AddNote(ctx, notes.Draft{Title: "b", Tags: []string{"work"}})
	require.NoError(t, err)
	require.Equal(t, []notes.TagCount{{Name: "idea", Count: 1}, {Name: "work", Count: 2}}, f.nb.Tags())

	require.NoError(t, f.nb.DeleteNote(ctx, id))
	require.Equal(t, []notes.TagCount{{Name: "idea", Count: 1}, {Name: "work", Count: 1}}, f.nb.Tags())
}

func testNotes_MatchesQueryEngine(t *rapid.T) {
	f := newFixture(t, kv.NewMemory(0))
	defer f.nb.Close()
	ctx := context.Background()

	steps := rapid.IntRange(1, 25).Draw(t, "steps")
	for i := 0; i < steps; i++ {
		f.clock.Advance(time.Duration(rapid.IntRange(0, 5).Draw(t, "gap")) * time.Millisecond)
		switch rapid.IntRange(0, 5).Draw(t, "op") {
		case 0, 1:
			_, err := f.nb.AddNote(ctx, notes.Draft{
				Title:      rapid.SampledFrom([]string{"alpha", "beta", "Gamma"}).Draw(t, "title"),
				Tags:       rapid.SliceOfN(rapid.SampledFrom([]string{"work", "home"}), 0, 2).Draw(t, "tags"),
				IsFavorite: rapid.Bool().Draw(t, "fav"),
			})
			require.NoError(t, err)
		case 2:
			if all := f.nb.AllNotes(); len(all) > 0 {
				require.NoError(t, f.nb.ArchiveNote(ctx, rapid.SampledFrom(all).Draw(t, "archive").ID))
			}
		case 3:
			f.nb.SetSearchQuery(rapid.SampledFrom([]string{"", "a", "gam"}).Draw(t, "search"))
		case 4:
			f.nb.SetSelectedTag(rapid.SampledFrom([]string{"", "work"}).Draw(t, "tag"))
		case 5:
			f.nb.SetShowFavorites(rapid.Bool().Draw(t, "favorites"))
		}

		want := query.Apply(f.nb.notes.All(true), f.nb.Criteria(), f.nb.Order())
		require.Equal(t, want, f.nb.Notes())
	}
}

func TestNotes_MatchesQueryEngine(t *testing.T) {
	rapid.Check(t, testNotes_MatchesQueryEngine)
}

// =============================================================================
// Events and notifications
// =============================================================================

func TestSubscribe_OnlyRealChangesPublish(t *testing.T) {
	f := newFixture(t, kv.NewMemory(0))
	defer f.nb.Close()
	ctx := context.Background()

	id, err := f.nb.AddNote(ctx, notes.Draft{Title: "a"})
	require.NoError(t, err)
	require.NoError(t, f.nb.UpdateNote(ctx, "missing", notes.Patch{Title: notes.Ptr("x")}))
	require.NoError(t, f.nb.RestoreNote(ctx, id), "restoring an active note is a no-op")
	f.nb.SetSearchQuery("")
	f.nb.SetSearchQuery("a")
	f.nb.SetSearchQuery("a")

	require.Equal(t, []EventKind{NotesChanged, FiltersChanged}, f.rec.kinds())
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	f := newFixture(t, kv.NewMemory(0))
	defer f.nb.Close()

	var got int
	unsubscribe := f.nb.Subscribe(func(Event) { got++ })
	f.nb.SetShowFavorites(true)
	unsubscribe()
	f.nb.SetShowFavorites(false)
	require.Equal(t, 1, got)
}

func TestWriteFailure_WarnsAndKeepsCollection(t *testing.T) {
	store := kv.NewMemory(0)
	f := newFixture(t, store)
	defer f.nb.Close()
	ctx := context.Background()

	_, err := f.nb.AddNote(ctx, notes.Draft{Title: "kept"})
	require.NoError(t, err)
	f.rec.reset()

	store.FailSets(errors.New("disk unplugged"))
	_, err = f.nb.AddNote(ctx, notes.Draft{Title: "lost"})
	require.True(t, errs.Is(err, errs.StoreWrite))
	require.Equal(t, []string{"kept"}, titles(f.nb.Notes()))
	require.Empty(t, f.rec.kinds(), "failed writes publish nothing")

	warnings := f.rec.warnings()
	require.Len(t, warnings, 1)
	require.Equal(t, "Could not create note: failed to save notes", warnings[0].Message)
}

func TestQuota_StorageFullWarning(t *testing.T) {
	f := newFixture(t, kv.NewMemory(0), WithQuota(600))
	defer f.nb.Close()
	ctx := context.Background()

	_, err := f.nb.AddNote(ctx, notes.Draft{Title: "small"})
	require.NoError(t, err)

	_, err = f.nb.AddNote(ctx, notes.Draft{Title: "big", Content: strings.Repeat("x", 2000)})
	require.ErrorIs(t, err, kv.ErrQuotaExceeded)

	warnings := f.rec.warnings()
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "storage is full")
	require.Len(t, f.nb.AllNotes(), 1)

	usage := f.nb.Usage()
	require.Equal(t, int64(600), usage.LimitBytes)
	require.Positive(t, usage.UsedBytes)
}

// =============================================================================
// Folders and tags
// =============================================================================

func TestDeleteFolder_DetachOrKeep(t *testing.T) {
	f := newFixture(t, kv.NewMemory(0))
	defer f.nb.Close()
	ctx := context.Background()

	work, err := f.nb.CreateFolder(ctx, notes.FolderParams{Name: "Work"})
	require.NoError(t, err)
	home, err := f.nb.CreateFolder(ctx, notes.FolderParams{Name: "Home", Color: "#00ff00"})
	require.NoError(t, err)

	idW, err := f.nb.AddNote(ctx, notes.Draft{Title: "w", FolderID: work.ID})
	require.NoError(t, err)
	idH, err := f.nb.AddNote(ctx, notes.Draft{Title: "h", FolderID: home.ID})
	require.NoError(t, err)

	f.nb.SetSelectedFolder(work.ID)
	require.Equal(t, []string{"w"}, titles(f.nb.Notes()))

	require.NoError(t, f.nb.DeleteFolder(ctx, work.ID, true))
	n, _ := f.nb.GetNoteByID(idW)
	require.Empty(t, n.FolderID, "detach clears membership")
	require.Empty(t, f.nb.Criteria().FolderID, "deleted folder is deselected")

	require.NoError(t, f.nb.DeleteFolder(ctx, home.ID, false))
	n, _ = f.nb.GetNoteByID(idH)
	require.Equal(t, home.ID, n.FolderID, "without detach notes keep the dangling id")
	require.Empty(t, f.nb.Folders())
}

func TestFolders_RenameAndValidation(t *testing.T) {
	f := newFixture(t, kv.NewMemory(0))
	defer f.nb.Close()
	ctx := context.Background()

	folder, err := f.nb.CreateFolder(ctx, notes.FolderParams{Name: "Drafts"})
	require.NoError(t, err)
	require.NoError(t, f.nb.RenameFolder(ctx, folder.ID, "Ideas"))
	got, ok := f.nb.GetFolder(folder.ID)
	require.True(t, ok)
	require.Equal(t, "Ideas", got.Name)

	_, err = f.nb.CreateFolder(ctx, notes.FolderParams{Name: "ideas"})
	require.True(t, errs.Is(err, errs.InvalidArgument))
	require.Len(t, f.rec.warnings(), 1)

	err = f.nb.UpdateFolder(ctx, folder.ID, notes.FolderPatch{Color: notes.Ptr("red")})
	require.True(t, errs.Is(err, errs.InvalidArgument))
}

func TestRenameTag_SelectedFilterFollows(t *testing.T) {
	f := newFixture(t, kv.NewMemory(0))
	defer f.nb.Close()
	ctx := context.Background()

	_, err := f.nb.AddNote(ctx, notes.Draft{Title: "a", Tags: []string{"todo"}})
	require.NoError(t, err)
	f.nb.SetSelectedTag("todo")

	n, err := f.nb.RenameTag(ctx, "todo", "later")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "later", f.nb.Criteria().Tag)
	require.Equal(t, []string{"a"}, titles(f.nb.Notes()))

	n, err = f.nb.RemoveTag(ctx, "later")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Empty(t, f.nb.Criteria().Tag)
	require.Empty(t, f.nb.Tags())
}

func TestPurgeArchived(t *testing.T) {
	f := newFixture(t, kv.NewMemory(0))
	defer f.nb.Close()
	ctx := context.Background()

	old, err := f.nb.AddNote(ctx, notes.Draft{Title: "old"})
	require.NoError(t, err)
	require.NoError(t, f.nb.DeleteNote(ctx, old))
	f.clock.Advance(48 * time.Hour)

	recent, err := f.nb.AddNote(ctx, notes.Draft{Title: "recent"})
	require.NoError(t, err)
	require.NoError(t, f.nb.DeleteNote(ctx, recent))

	n, err := f.nb.PurgeArchived(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []string{"recent"}, titles(f.nb.ArchivedNotes()))
}

// =============================================================================
// Drafts
// =============================================================================

func TestDraft_CoalescesIntoOneUpdate(t *testing.T) {
	f := newFixture(t, kv.NewMemory(0))
	defer f.nb.Close()
	ctx := context.Background()

	id, err := f.nb.AddNote(ctx, notes.Draft{Title: "t", Content: ""})
	require.NoError(t, err)
	d, err := f.nb.NewDraft("", id)
	require.NoError(t, err)
	require.False(t, d.HasUnsavedChanges(), "an existing note seeds the draft")
	f.rec.reset()

	for i, content := range []string{"a", "ab", "abc"} {
		if i > 0 {
			f.clock.Advance(100 * time.Millisecond)
		}
		d.Change(autosave.Draft{Title: "t", Content: content})
	}
	f.clock.Advance(299 * time.Millisecond)
	n, _ := f.nb.GetNoteByID(id)
	require.Empty(t, n.Content, "nothing commits inside the window")

	f.clock.Advance(time.Millisecond)
	n, _ = f.nb.GetNoteByID(id)
	require.Equal(t, "abc", n.Content)
	require.False(t, d.HasUnsavedChanges())
	require.Equal(t, []EventKind{DraftChanged, NotesChanged, DraftChanged}, f.rec.kinds())
}

func TestDraft_NewNoteCreatedOnFirstSave(t *testing.T) {
	f := newFixture(t, kv.NewMemory(0))
	defer f.nb.Close()
	ctx := context.Background()

	d, err := f.nb.NewDraft("compose", "")
	require.NoError(t, err)
	require.Empty(t, d.NoteID())

	d.Change(autosave.Draft{Title: "fresh", Content: "<p>hi</p>"})
	require.NoError(t, d.Flush(ctx))
	id := d.NoteID()
	require.NotEmpty(t, id)

	d.Change(autosave.Draft{Title: "fresh", Content: "<p>hi there</p>", Tags: []string{"x"}})
	require.NoError(t, d.Flush(ctx))
	require.Equal(t, id, d.NoteID(), "later saves update the same note")
	require.Len(t, f.nb.AllNotes(), 1)

	n, _ := f.nb.GetNoteByID(id)
	require.Equal(t, "<p>hi there</p>", n.Content)
	require.Equal(t, []string{"x"}, n.Tags)
}

func TestNewDraft_Errors(t *testing.T) {
	f := newFixture(t, kv.NewMemory(0))
	defer f.nb.Close()

	_, err := f.nb.NewDraft("", "")
	require.True(t, errs.Is(err, errs.InvalidArgument))

	_, err = f.nb.NewDraft("", "missing")
	require.True(t, errs.Is(err, errs.NotFound))

	a, err := f.nb.NewDraft("scratch", "")
	require.NoError(t, err)
	b, err := f.nb.NewDraft("scratch", "")
	require.NoError(t, err)
	require.Same(t, a, b)

	a.Close()
	c, err := f.nb.NewDraft("scratch", "")
	require.NoError(t, err)
	require.NotSame(t, a, c, "a closed draft is replaced")
}

func TestDraft_NoteWriteFailureWarnsOnce(t *testing.T) {
	f := newFixture(t, kv.NewMemory(0), WithQuota(600))
	defer f.nb.Close()
	ctx := context.Background()

	id, err := f.nb.AddNote(ctx, notes.Draft{Title: "t"})
	require.NoError(t, err)
	d, err := f.nb.NewDraft("", id)
	require.NoError(t, err)

	d.Change(autosave.Draft{Title: "t", Content: strings.Repeat("y", 2000)})
	f.clock.Advance(300 * time.Millisecond)

	require.True(t, d.HasUnsavedChanges(), "a failed commit keeps the flag set")
	warnings := f.rec.warnings()
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "Could not save note")

	saved, ok, err := d.Recover(ctx)
	require.NoError(t, err)
	require.True(t, ok, "the draft itself was persisted and can be recovered")
	require.Len(t, saved.Content, 2000)
}

func TestDraft_StoreFailureWarns(t *testing.T) {
	store := kv.NewMemory(0)
	f := newFixture(t, store)
	defer f.nb.Close()
	ctx := context.Background()

	id, err := f.nb.AddNote(ctx, notes.Draft{Title: "t"})
	require.NoError(t, err)
	d, err := f.nb.NewDraft("", id)
	require.NoError(t, err)

	store.FailSets(errors.New("read-only"))
	d.Change(autosave.Draft{Title: "t2"})
	require.Error(t, d.Flush(ctx))
	require.True(t, d.HasUnsavedChanges())

	warnings := f.rec.warnings()
	require.Len(t, warnings, 1)
	require.Equal(t, "Could not save draft: failed to save draft", warnings[0].Message)
}

func TestDraft_RecoverSkipsCommittedDraft(t *testing.T) {
	f := newFixture(t, kv.NewMemory(0))
	defer f.nb.Close()
	ctx := context.Background()

	id, err := f.nb.AddNote(ctx, notes.Draft{Title: "t"})
	require.NoError(t, err)
	d, err := f.nb.NewDraft("", id)
	require.NoError(t, err)
	d.Change(autosave.Draft{Title: "t", Content: "done"})
	require.NoError(t, d.Flush(ctx))
	d.Close()

	again, err := f.nb.NewDraft("", id)
	require.NoError(t, err)
	_, ok, err := again.Recover(ctx)
	require.NoError(t, err)
	require.False(t, ok, "a draft already in the note is not offered")
}

func TestClose_StopsDrafts(t *testing.T) {
	f := newFixture(t, kv.NewMemory(0))
	ctx := context.Background()

	id, err := f.nb.AddNote(ctx, notes.Draft{Title: "t"})
	require.NoError(t, err)
	d, err := f.nb.NewDraft("", id)
	require.NoError(t, err)
	d.Change(autosave.Draft{Title: "changed"})

	require.NoError(t, f.nb.Close())
	f.clock.Advance(time.Second)
	require.Zero(t, f.clock.Pending())

	_, err = f.nb.NewDraft("", id)
	require.True(t, errs.Is(err, errs.Unavailable))
}
