// Package testutil provides shared generators for property-based tests.
// The string generators are deliberately hostile: markup, regex and SQL
// metacharacters, unusual Unicode and large payloads.
package testutil

import (
	"strings"
	"unicode"

	"pgregory.net/rapid"
)

// ArbitraryText generates note titles and content, including empty strings,
// control characters and embedded null bytes.
func ArbitraryText() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.String(),
		rapid.Just(""),
		rapid.Just("\x00"),
		rapid.Just("test\x00test"),
		rapid.StringMatching(`[a-zA-Z0-9 ]{0,100}`),
		rapid.StringMatching(`[\x00-\x1F]{1,10}`),
		arbitraryMarkup(),
		arbitraryMetacharacters(),
		arbitraryUnicode(),
		arbitraryWhitespace(),
	)
}

// ArbitraryStoreValue generates values every kv backend must return
// byte-for-byte: printable Unicode, whitespace, markup and payloads up to
// 1MB. Control characters other than whitespace are excluded.
func ArbitraryStoreValue() *rapid.Generator[string] {
	printable := rapid.RuneFrom(nil, unicode.Letter, unicode.Number, unicode.Punct,
		unicode.Symbol, unicode.Space, unicode.Mark)
	return rapid.OneOf(
		rapid.StringOf(printable),
		rapid.Just(""),
		rapid.Just("{}"),
		arbitraryMarkup(),
		arbitraryMetacharacters(),
		arbitraryUnicode(),
		arbitraryWhitespace(),
		arbitraryLongString(),
	)
}

// ArbitrarySearchQuery generates search strings, including ones that would
// break a search built on regular expressions or SQL.
func ArbitrarySearchQuery() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.String(),
		rapid.Just(""),
		rapid.Just("\x00"),
		rapid.StringMatching(`[a-zA-Z]{1,4}`),
		arbitraryMarkup(),
		arbitraryMetacharacters(),
		arbitraryUnicode(),
		arbitraryWhitespace(),
	)
}

// ArbitraryTag generates tag strings as a user might type them: mixed case,
// padded, duplicated words and Unicode.
func ArbitraryTag() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.StringMatching(`[a-z]{1,8}`),
		rapid.StringMatching(` {0,2}[A-Za-z]{1,8} {0,2}`),
		rapid.SampledFrom([]string{"", " ", "work", "Work", "to-do", "日本語", "🔥"}),
	)
}

// ValidContextKey generates draft context keys that are safe file names.
func ValidContextKey() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		prefix := rapid.StringMatching("[a-z]{1,10}").Draw(t, "prefix")
		suffix := rapid.StringMatching("[0-9]{1,5}").Draw(t, "suffix")
		return prefix + "-" + suffix
	})
}

// arbitraryMarkup generates HTML fragments, including hostile ones.
func arbitraryMarkup() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		`<p>hello</p>`,
		`<p>a &amp; b</p>`,
		`<script>alert('xss')</script>`,
		`<img src=x onerror=alert(1)>`,
		`<a href="javascript:alert(1)">x</a>`,
		`<p><strong>bold</strong> <em>it</em></p>`,
		`<ul><li>one</li><li>two</li></ul>`,
		`<p>unterminated`,
		`</p></div>`,
		`&lt;escaped&gt;`,
		`<!-- comment -->`,
	})
}

// arbitraryMetacharacters generates strings full of regex, SQL and JSON
// syntax.
func arbitraryMetacharacters() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		`' OR 1=1 --`,
		`'; DROP TABLE notes; --`,
		`" OR "1"="1`,
		`%27%20OR%20%271%27%3D%271`,
		`.*`,
		`(unclosed`,
		`[a-z`,
		`\`,
		`$^|?+{}`,
		`"`,
		`{"id":"x"}`,
		`]}`,
		`---`,
		"---\ntitle: x\n---",
	})
}

// arbitraryUnicode generates various Unicode edge cases
func arbitraryUnicode() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		"日本語",
		"中文测试",
		"العربية",
		"עברית",
		"🔥🎉💻🚀",
		"emoji🔥in🎉middle",
		"Ñoño",
		"Zürich",
		"ZÜRICH",
		"Москва",
		"Ελληνικά",
		"한국어",
		"\u200B",
		"\u200D",
		"\uFEFF",
		"a\u0300",
		"\u202E" + "reversed" + "\u202C",
		"👨‍👩‍👧‍👦",
		"\U0001F1FA\U0001F1F8",
		"test\u00A0space",
		"line\u2028separator",
		"math∑∏∫",
		"İstanbul",
		"straße",
	})
}

// arbitraryWhitespace generates various whitespace patterns
func arbitraryWhitespace() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		" ",
		"   ",
		"\t",
		"\n",
		"\r\n",
		" \t \n ",
		"\n\n\n",
		"  test  ",
		"line1\nline2",
		"line1\r\nline2",
		"\u00A0",
		"\u2003",
		"\u3000",
		"\v",
		"\f",
	})
}

// arbitraryLongString generates large values up to 1MB.
func arbitraryLongString() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		length := rapid.SampledFrom([]int{1000, 10000, 100000, 1000000}).Draw(t, "length")
		const base = "<p>abcdefghij</p>"
		return strings.Repeat(base, length/len(base)+1)[:length]
	})
}
