package notebook

import (
	"context"

	"github.com/kuitang/notekeep/internal/errs"
	"github.com/kuitang/notekeep/internal/kv"
	"github.com/kuitang/notekeep/internal/notes"
)

// Watch reloads the notebook whenever another process changes the notes or
// folders in the store. It blocks until ctx is done; run it on its own
// goroutine. Stores that cannot report changes return an unavailable error.
func (nb *Notebook) Watch(ctx context.Context) error {
	w, ok := nb.store.(kv.Watcher)
	if !ok {
		return errs.New(errs.Unavailable, "store does not report external changes")
	}
	ctx = nb.opContext(ctx, "watch", "")
	nb.logger.Info("watching store for external changes", "notebook", nb.name)
	return w.Watch(ctx, func(key string) {
		var err error
		switch key {
		case notes.NotesKey:
			_, err = nb.notes.LoadAll(ctx, true)
		case notes.FoldersKey:
			_, err = nb.folders.Load(ctx)
		default:
			return
		}
		if err != nil {
			nb.warn(ctx, "watch", "Could not reload notes", err)
			return
		}
		nb.logger.Info("reloaded after external change", "notebook", nb.name, "key", key)
		nb.publish(Event{Kind: Reloaded, Op: "watch"})
	})
}
