package export

import (
	"io"
	"strings"

	"github.com/kuitang/notekeep/internal/notes"
)

// Text writes note as plain text: the title, a blank line, then the content
// with all markup removed.
func Text(w io.Writer, note notes.Note) error {
	var b strings.Builder
	if title := strings.TrimSpace(note.Title); title != "" {
		b.WriteString(title)
		b.WriteString("\n\n")
	}
	if body := PlainText(note.Content); body != "" {
		b.WriteString(body)
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}
