package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/kuitang/notekeep/internal/notes"
)

const (
	previewLines = 3
	matchContext = 2
)

// Index writes a Markdown overview of notes: one section per note with its
// tags, last edit and a short preview. When search is set, the preview is
// the numbered lines around the first match instead.
func Index(w io.Writer, list []notes.Note, search string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Notes (%d)\n", len(list))
	if search != "" {
		fmt.Fprintf(&b, "\nMatching %q\n", search)
	}

	for _, n := range list {
		title := strings.TrimSpace(n.Title)
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&b, "\n## %s\n\n", title)

		meta := []string{"edited " + n.UpdatedAt.UTC().Format("2006-01-02 15:04")}
		if n.IsFavorite {
			meta = append(meta, "favorite")
		}
		if n.IsArchived {
			meta = append(meta, "archived")
		}
		if len(n.Tags) > 0 {
			meta = append(meta, "tags: "+strings.Join(n.Tags, ", "))
		}
		fmt.Fprintf(&b, "_%s_\n", strings.Join(meta, " · "))

		text := PlainText(n.Content)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "\n```\n%s\n```\n", preview(text, search))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func preview(text, search string) string {
	if search != "" {
		if at := strings.Index(strings.ToLower(text), strings.ToLower(search)); at >= 0 {
			snippet, _, _ := SnippetAroundByteOffset(text, at, matchContext)
			return snippet
		}
	}
	return ContentPreview(text, previewLines)
}
