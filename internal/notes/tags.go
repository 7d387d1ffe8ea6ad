package notes

import (
	"sort"
	"strings"
)

// normalizeTags trims each tag, drops empty ones and removes duplicates,
// keeping the first occurrence. Case is left alone. The result is never nil.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// CollectTags derives the tag list from notes: every distinct tag with the
// number of notes carrying it, sorted by name.
func CollectTags(notes []Note) []TagCount {
	counts := make(map[string]int)
	for _, n := range notes {
		for _, tag := range n.Tags {
			counts[tag]++
		}
	}
	out := make([]TagCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, TagCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// renameTag replaces from with to in tags. It returns the new slice and
// whether anything changed. An empty to removes the tag.
func renameTag(tags []string, from, to string) ([]string, bool) {
	idx := -1
	for i, tag := range tags {
		if tag == from {
			idx = i
			break
		}
	}
	if idx < 0 {
		return tags, false
	}
	next := make([]string, 0, len(tags))
	for i, tag := range tags {
		if i == idx {
			if to != "" {
				next = append(next, to)
			}
			continue
		}
		next = append(next, tag)
	}
	return normalizeTags(next), true
}
