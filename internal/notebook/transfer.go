package notebook

import (
	"context"
	"io"

	"github.com/kuitang/notekeep/internal/errs"
	"github.com/kuitang/notekeep/internal/export"
)

// Format selects a single-note export format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatText     Format = "text"
)

// ExportJSON writes every note, archived ones included.
func (nb *Notebook) ExportJSON(w io.Writer) error {
	return export.JSON(w, nb.notes.All(true))
}

// ExportIndex writes a Markdown overview of the current filtered view.
func (nb *Notebook) ExportIndex(w io.Writer) error {
	return export.Index(w, nb.Notes(), nb.Criteria().Search)
}

// ExportNote writes one note in format f.
func (nb *Notebook) ExportNote(w io.Writer, id string, f Format) error {
	n, ok := nb.notes.Get(id)
	if !ok {
		return errs.New(errs.NotFound, "note not found")
	}
	switch f {
	case FormatMarkdown:
		return export.Markdown(w, n)
	case FormatHTML:
		return export.HTML(w, n)
	case FormatText:
		return export.Text(w, n)
	default:
		return errs.New(errs.InvalidArgument, "unknown export format: "+string(f))
	}
}

// ImportJSON adds the notes of a JSON export and returns their ids.
// Colliding ids are replaced, so importing the same file twice duplicates
// its notes.
func (nb *Notebook) ImportJSON(ctx context.Context, r io.Reader) ([]string, error) {
	ctx = nb.opContext(ctx, "import", "")
	incoming, err := export.ParseJSON(r)
	if err != nil {
		nb.warn(ctx, "import", "Could not import notes", err)
		return nil, err
	}
	added, err := nb.notes.Import(ctx, incoming)
	if err != nil {
		nb.warn(ctx, "import", "Could not import notes", err)
		return nil, err
	}
	if len(added) > 0 {
		nb.publish(Event{Kind: NotesChanged, Op: "import"})
	}
	return added, nil
}

// ImportMarkdown creates a note from a Markdown document with optional YAML
// front matter.
func (nb *Notebook) ImportMarkdown(ctx context.Context, r io.Reader) (string, error) {
	d, err := export.ParseMarkdown(r)
	if err != nil {
		nb.warn(nb.opContext(ctx, "import", ""), "import", "Could not import note", err)
		return "", err
	}
	return nb.AddNote(ctx, d)
}
