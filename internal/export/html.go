package export

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/kuitang/notekeep/internal/notes"
)

const descriptionLimit = 160

var documentTemplate = template.Must(template.New("note").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <meta name="description" content="{{.Description}}">
    {{- if .Tags}}
    <meta name="keywords" content="{{.Keywords}}">
    {{- end}}
    <style>
        :root { --text: #1a1a1a; --bg: #ffffff; --muted: #666; --code-bg: #f5f5f5; --border: #e0e0e0; }
        @media (prefers-color-scheme: dark) {
            :root { --text: #e0e0e0; --bg: #1a1a1a; --muted: #999; --code-bg: #2d2d2d; --border: #404040; }
        }
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6;
               color: var(--text); background: var(--bg); max-width: 800px; margin: 0 auto; padding: 2rem 1rem; }
        header { border-bottom: 1px solid var(--border); margin-bottom: 1.5rem; }
        .meta { color: var(--muted); font-size: 0.9em; }
        .tag { display: inline-block; border: 1px solid var(--border); border-radius: 3px; padding: 0 0.4em; margin-right: 0.3em; }
        pre, code { background: var(--code-bg); border-radius: 3px; }
        pre { padding: 1rem; overflow-x: auto; }
        img { max-width: 100%; height: auto; }
    </style>
</head>
<body>
    <header>
        <h1>{{.Title}}</h1>
        <p class="meta">Created <time datetime="{{.CreatedISO}}">{{.Created}}</time>
        {{- if .Edited}} · edited <time datetime="{{.UpdatedISO}}">{{.Updated}}</time>{{end}}
        {{- if .Archived}} · archived{{end}}</p>
        {{- if .Tags}}
        <p class="meta">{{range .Tags}}<span class="tag">{{.}}</span>{{end}}</p>
        {{- end}}
    </header>
    <article>
        {{.Content}}
    </article>
</body>
</html>
`))

type documentData struct {
	Title       string
	Description string
	Keywords    string
	Tags        []string
	Created     string
	CreatedISO  string
	Updated     string
	UpdatedISO  string
	Edited      bool
	Archived    bool
	Content     template.HTML
}

// HTML writes note as a standalone HTML document. Content is sanitized
// before it is embedded; metadata is escaped by the template.
func HTML(w io.Writer, note notes.Note) error {
	title := note.Title
	if strings.TrimSpace(title) == "" {
		title = "Untitled"
	}
	data := documentData{
		Title:       title,
		Description: description(note.Content),
		Keywords:    strings.Join(note.Tags, ", "),
		Tags:        note.Tags,
		Created:     note.CreatedAt.Format("January 2, 2006"),
		CreatedISO:  note.CreatedAt.UTC().Format(time.RFC3339),
		Updated:     note.UpdatedAt.Format("January 2, 2006"),
		UpdatedISO:  note.UpdatedAt.UTC().Format(time.RFC3339),
		Edited:      !note.UpdatedAt.Equal(note.CreatedAt),
		Archived:    note.IsArchived,
		// sanitized above; template.HTML only marks it as such
		Content: template.HTML(SanitizeHTML(note.Content)),
	}
	if err := documentTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}

// description is the first line of the note's text, cut to a length that
// fits a meta description.
func description(content string) string {
	text := PlainText(content)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	runes := []rune(text)
	if len(runes) <= descriptionLimit {
		return text
	}
	return strings.TrimSpace(string(runes[:descriptionLimit-1])) + "…"
}
