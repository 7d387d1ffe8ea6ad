package export

import (
	"fmt"
	"strings"
)

// ContentPreview returns the first maxLines lines of content, followed by a
// "..." line when anything was cut. Content with maxLines or fewer lines is
// returned unchanged.
func ContentPreview(content string, maxLines int) string {
	if content == "" || maxLines <= 0 {
		return content
	}
	cut := 0
	for i := 0; i < maxLines; i++ {
		next := strings.IndexByte(content[cut:], '\n')
		if next < 0 {
			return content
		}
		cut += next + 1
	}
	return content[:cut-1] + "\n..."
}

// CountLines returns the number of lines in content. An empty string has none.
func CountLines(content string) int {
	if content == "" {
		return 0
	}
	return strings.Count(content, "\n") + 1
}

// SnippetAroundByteOffset returns the lines around the one containing
// byteOffset, numbered like FormatWithLineNumbers, together with the 1-based
// first and last line shown.
func SnippetAroundByteOffset(content string, byteOffset, contextLines int) (snippet string, startLine, endLine int) {
	if content == "" {
		return "", 0, 0
	}
	byteOffset = min(max(byteOffset, 0), len(content))
	target := strings.Count(content[:byteOffset], "\n") + 1

	startLine = max(target-contextLines, 1)
	endLine = min(target+contextLines, CountLines(content))
	snippet, _ = FormatWithLineNumbers(content, startLine, endLine)
	return snippet, startLine, endLine
}

// FormatWithLineNumbers prefixes each line with a right-aligned six-column
// number and a tab. start and end select a 1-based inclusive range; values
// <= 0 (or end == -1) mean the beginning and end of content. The total line
// count of content is returned alongside.
func FormatWithLineNumbers(content string, start, end int) (string, int) {
	if content == "" {
		return "", 0
	}
	lines := strings.Split(content, "\n")
	total := len(lines)

	first, last := 1, total
	if start > 0 {
		first = start
	}
	if end > 0 {
		last = min(end, total)
	}
	if first > last {
		return "", total
	}

	var b strings.Builder
	for i := first; i <= last; i++ {
		if i > first {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%6d\t%s", i, lines[i-1])
	}
	return b.String(), total
}
