// Package export converts notes to and from portable formats: JSON, Markdown
// with YAML front matter, standalone HTML and plain text.
package export

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// bluemonday policies are safe for concurrent use once built.
var (
	ugcPolicy    = bluemonday.UGCPolicy()
	strictPolicy = bluemonday.StrictPolicy()
)

var (
	blockEnd   = regexp.MustCompile(`(?i)(</(p|div|h[1-6]|li|blockquote|pre|tr)>|<br\s*/?>)`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// SanitizeHTML strips scripts, event handlers and other unsafe markup from
// note content, keeping ordinary formatting.
func SanitizeHTML(content string) string {
	return ugcPolicy.Sanitize(content)
}

// PlainText reduces rich-text content to readable text. Block elements end
// lines; entities are decoded.
func PlainText(content string) string {
	if content == "" {
		return ""
	}
	withBreaks := blockEnd.ReplaceAllString(content, "$1\n")
	text := html.UnescapeString(strictPolicy.Sanitize(withBreaks))
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	text = blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text)
}
