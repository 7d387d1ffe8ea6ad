package export

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"gopkg.in/yaml.v3"

	"github.com/kuitang/notekeep/internal/errs"
	"github.com/kuitang/notekeep/internal/notes"
)

const fence = "---"

// frontMatter is the YAML header of an exported Markdown note.
type frontMatter struct {
	ID       string    `yaml:"id,omitempty"`
	Title    string    `yaml:"title"`
	Tags     []string  `yaml:"tags,omitempty"`
	Folder   string    `yaml:"folder,omitempty"`
	Favorite bool      `yaml:"favorite,omitempty"`
	Archived bool      `yaml:"archived,omitempty"`
	Created  time.Time `yaml:"created,omitempty"`
	Updated  time.Time `yaml:"updated,omitempty"`
}

// RenderMarkdown converts Markdown to sanitized HTML suitable for note
// content.
func RenderMarkdown(source string) string {
	// a parser cannot be reused across documents
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock)
	doc := p.Parse([]byte(source))

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank,
	})
	return SanitizeHTML(string(markdown.Render(doc, renderer)))
}

// Markdown writes note as a Markdown document: YAML front matter carrying
// the metadata, then the sanitized content. HTML is valid Markdown, so the
// body is written as is.
func Markdown(w io.Writer, note notes.Note) error {
	fm := frontMatter{
		ID:       note.ID,
		Title:    note.Title,
		Tags:     note.Tags,
		Folder:   note.FolderID,
		Favorite: note.IsFavorite,
		Archived: note.IsArchived,
		Created:  note.CreatedAt,
		Updated:  note.UpdatedAt,
	}

	var buf bytes.Buffer
	buf.WriteString(fence + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm); err != nil {
		return fmt.Errorf("encode front matter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode front matter: %w", err)
	}
	buf.WriteString(fence + "\n\n")
	if body := SanitizeHTML(note.Content); body != "" {
		buf.WriteString(body)
		buf.WriteByte('\n')
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// ParseMarkdown reads a Markdown document, with or without front matter, and
// returns a draft whose content is the rendered, sanitized HTML. Without a
// title in the front matter, the first heading line becomes the title.
func ParseMarkdown(r io.Reader) (notes.Draft, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return notes.Draft{}, fmt.Errorf("read markdown: %w", err)
	}
	doc := strings.TrimPrefix(string(data), "\ufeff")
	fm, body, err := splitFrontMatter(strings.ReplaceAll(doc, "\r\n", "\n"))
	if err != nil {
		return notes.Draft{}, errs.Wrap(errs.InvalidArgument, "invalid front matter", err)
	}

	title := strings.TrimSpace(fm.Title)
	if title == "" {
		title, body = headingTitle(body)
	}
	return notes.Draft{
		Title:      title,
		Content:    RenderMarkdown(body),
		Tags:       fm.Tags,
		FolderID:   fm.Folder,
		IsFavorite: fm.Favorite,
	}, nil
}

// splitFrontMatter separates a leading YAML block delimited by "---" lines.
// The closing fence must be on a line of its own. doc uses "\n" line endings.
func splitFrontMatter(doc string) (frontMatter, string, error) {
	var fm frontMatter
	if !strings.HasPrefix(doc, fence+"\n") {
		return fm, doc, nil
	}

	rest := doc[len(fence)+1:]
	var header string
	switch {
	case strings.HasPrefix(rest, fence+"\n") || rest == fence:
		rest = strings.TrimPrefix(strings.TrimPrefix(rest, fence), "\n")
	default:
		end := strings.Index(rest, "\n"+fence+"\n")
		if end < 0 {
			if !strings.HasSuffix(rest, "\n"+fence) {
				return fm, "", errors.New("front matter started but no closing delimiter found")
			}
			end = len(rest) - len(fence) - 1
		}
		header = rest[:end]
		rest = strings.TrimPrefix(rest[end+1+len(fence):], "\n")
	}

	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return fm, "", fmt.Errorf("parse front matter: %w", err)
	}
	return fm, strings.TrimLeft(rest, "\n"), nil
}

// headingTitle takes the first non-blank line as the title when it is an
// ATX heading, and removes it from the body.
func headingTitle(body string) (string, string) {
	sc := bufio.NewScanner(strings.NewReader(body))
	offset := 0
	for sc.Scan() {
		line := sc.Text()
		next := offset + len(line) + 1
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			offset = next
			continue
		}
		if !strings.HasPrefix(trimmed, "#") {
			return "", body
		}
		title := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		if next > len(body) {
			next = len(body)
		}
		return title, body[next:]
	}
	return "", body
}
