package notebook

import (
	"context"
	"strings"
	"time"

	"github.com/kuitang/notekeep/internal/notes"
)

// AddNote creates a note and returns its id.
func (nb *Notebook) AddNote(ctx context.Context, d notes.Draft) (string, error) {
	ctx = nb.opContext(ctx, "add", "")
	id, err := nb.notes.Add(ctx, d)
	if err != nil {
		nb.warn(ctx, "add", "Could not create note", err)
		return "", err
	}
	nb.publish(Event{Kind: NotesChanged, Op: "add", NoteID: id})
	return id, nil
}

// UpdateNote merges p into the note. Unknown ids are a no-op.
func (nb *Notebook) UpdateNote(ctx context.Context, id string, p notes.Patch) error {
	return nb.mutate(ctx, "update", id, "Could not save note", func(ctx context.Context) error {
		return nb.notes.Update(ctx, id, p)
	})
}

// DeleteNote archives the note; it can be restored later.
func (nb *Notebook) DeleteNote(ctx context.Context, id string) error {
	return nb.mutate(ctx, "delete", id, "Could not delete note", func(ctx context.Context) error {
		return nb.notes.Delete(ctx, id)
	})
}

// ArchiveNote archives the note.
func (nb *Notebook) ArchiveNote(ctx context.Context, id string) error {
	return nb.mutate(ctx, "archive", id, "Could not archive note", func(ctx context.Context) error {
		return nb.notes.Archive(ctx, id)
	})
}

// RestoreNote brings an archived note back.
func (nb *Notebook) RestoreNote(ctx context.Context, id string) error {
	return nb.mutate(ctx, "restore", id, "Could not restore note", func(ctx context.Context) error {
		return nb.notes.Restore(ctx, id)
	})
}

// PermanentlyDeleteNote removes the note for good.
func (nb *Notebook) PermanentlyDeleteNote(ctx context.Context, id string) error {
	return nb.mutate(ctx, "permanently_delete", id, "Could not delete note", func(ctx context.Context) error {
		return nb.notes.PermanentlyDelete(ctx, id)
	})
}

// ToggleFavorite flips the favorite flag.
func (nb *Notebook) ToggleFavorite(ctx context.Context, id string) error {
	return nb.mutate(ctx, "toggle_favorite", id, "Could not update favorite", func(ctx context.Context) error {
		return nb.notes.ToggleFavorite(ctx, id)
	})
}

// GetNoteByID returns a copy of the note, archived or not.
func (nb *Notebook) GetNoteByID(id string) (notes.Note, bool) {
	return nb.notes.Get(id)
}

// PurgeArchived permanently deletes notes archived longer than olderThan.
func (nb *Notebook) PurgeArchived(ctx context.Context, olderThan time.Duration) (int, error) {
	ctx = nb.opContext(ctx, "purge", "")
	n, err := nb.notes.Purge(ctx, olderThan)
	if err != nil {
		nb.warn(ctx, "purge", "Could not empty the archive", err)
		return 0, err
	}
	if n > 0 {
		nb.publish(Event{Kind: NotesChanged, Op: "purge"})
	}
	return n, nil
}

// mutate runs a single-note repository call and publishes only when the
// collection actually changed.
func (nb *Notebook) mutate(ctx context.Context, op, id, action string, fn func(context.Context) error) error {
	ctx = nb.opContext(ctx, op, id)
	before := nb.notes.Generation()
	if err := fn(ctx); err != nil {
		nb.warn(ctx, op, action, err)
		return err
	}
	if nb.notes.Generation() != before {
		nb.publish(Event{Kind: NotesChanged, Op: op, NoteID: id})
	}
	return nil
}

// =============================================================================
// Folders
// =============================================================================

// CreateFolder adds a folder.
func (nb *Notebook) CreateFolder(ctx context.Context, p notes.FolderParams) (notes.Folder, error) {
	ctx = nb.opContext(ctx, "create_folder", "")
	f, err := nb.folders.Create(ctx, p)
	if err != nil {
		nb.warn(ctx, "create_folder", "Could not create folder", err)
		return notes.Folder{}, err
	}
	nb.publish(Event{Kind: FoldersChanged, Op: "create_folder"})
	return f, nil
}

// RenameFolder changes a folder's name.
func (nb *Notebook) RenameFolder(ctx context.Context, id, name string) error {
	return nb.UpdateFolder(ctx, id, notes.FolderPatch{Name: &name})
}

// UpdateFolder changes a folder's name or color. Unknown ids are a no-op.
func (nb *Notebook) UpdateFolder(ctx context.Context, id string, p notes.FolderPatch) error {
	ctx = nb.opContext(ctx, "update_folder", "")
	before := nb.folders.Generation()
	if err := nb.folders.Update(ctx, id, p); err != nil {
		nb.warn(ctx, "update_folder", "Could not update folder", err)
		return err
	}
	if nb.folders.Generation() != before {
		nb.publish(Event{Kind: FoldersChanged, Op: "update_folder"})
	}
	return nil
}

// DeleteFolder removes a folder. With detach, notes filed under it are
// moved out first; otherwise they keep the dangling folder id. A folder
// selected as filter is deselected.
func (nb *Notebook) DeleteFolder(ctx context.Context, id string, detach bool) error {
	ctx = nb.opContext(ctx, "delete_folder", "")
	if detach {
		n, err := nb.notes.ClearFolder(ctx, id)
		if err != nil {
			nb.warn(ctx, "delete_folder", "Could not delete folder", err)
			return err
		}
		if n > 0 {
			nb.publish(Event{Kind: NotesChanged, Op: "clear_folder"})
		}
	}
	before := nb.folders.Generation()
	if err := nb.folders.Delete(ctx, id); err != nil {
		nb.warn(ctx, "delete_folder", "Could not delete folder", err)
		return err
	}
	if nb.folders.Generation() != before {
		nb.publish(Event{Kind: FoldersChanged, Op: "delete_folder"})
	}

	nb.mu.Lock()
	deselect := nb.criteria.FolderID == id
	if deselect {
		nb.criteria.FolderID = ""
	}
	nb.mu.Unlock()
	if deselect {
		nb.publish(Event{Kind: FiltersChanged, Op: "delete_folder"})
	}
	return nil
}

// =============================================================================
// Tags
// =============================================================================

// RenameTag replaces tag from with to on every note, archived ones included,
// and returns how many notes changed. A selected tag filter follows the
// rename.
func (nb *Notebook) RenameTag(ctx context.Context, from, to string) (int, error) {
	ctx = nb.opContext(ctx, "rename_tag", "")
	n, err := nb.notes.RenameTag(ctx, from, to)
	if err != nil {
		nb.warn(ctx, "rename_tag", "Could not rename tag", err)
		return 0, err
	}
	nb.afterTagChange("rename_tag", n, strings.TrimSpace(from), strings.TrimSpace(to))
	return n, nil
}

// RemoveTag strips tag from every note and returns how many notes changed.
func (nb *Notebook) RemoveTag(ctx context.Context, tag string) (int, error) {
	ctx = nb.opContext(ctx, "remove_tag", "")
	n, err := nb.notes.RemoveTag(ctx, tag)
	if err != nil {
		nb.warn(ctx, "remove_tag", "Could not remove tag", err)
		return 0, err
	}
	nb.afterTagChange("remove_tag", n, strings.TrimSpace(tag), "")
	return n, nil
}

func (nb *Notebook) afterTagChange(op string, changed int, from, to string) {
	if changed > 0 {
		nb.publish(Event{Kind: NotesChanged, Op: op})
	}
	nb.mu.Lock()
	follow := nb.criteria.Tag != "" && nb.criteria.Tag == from
	if follow {
		nb.criteria.Tag = to
	}
	nb.mu.Unlock()
	if follow {
		nb.publish(Event{Kind: FiltersChanged, Op: op})
	}
}
