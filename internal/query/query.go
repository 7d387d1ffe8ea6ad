// Package query derives the visible note list from the canonical collection.
// Everything here is pure: inputs are never modified and the same inputs
// always give the same output.
package query

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/kuitang/notekeep/internal/notes"
)

// Criteria narrows the active notes. Zero fields do not filter; set fields
// combine with AND.
type Criteria struct {
	// Search matches case-insensitively anywhere in the title, the content or
	// any tag. It is used as given; whitespace counts.
	Search string
	// FolderID keeps notes in exactly this folder.
	FolderID string
	// Tag keeps notes carrying this tag.
	Tag string
	// FavoritesOnly keeps favorite notes.
	FavoritesOnly bool
}

// IsZero reports whether c filters nothing.
func (c Criteria) IsZero() bool {
	return c.Search == "" && c.FolderID == "" && c.Tag == "" && !c.FavoritesOnly
}

// SortKey names the field notes are ordered by.
type SortKey string

const (
	ByUpdatedAt SortKey = "updated_at"
	ByCreatedAt SortKey = "created_at"
	ByTitle     SortKey = "title"
	// ByArchivedAt only makes sense for the archive view.
	ByArchivedAt SortKey = "archived_at"
)

// ParseSortKey maps a name to a SortKey. Unknown names report false.
func ParseSortKey(name string) (SortKey, bool) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(name))); k {
	case ByUpdatedAt, ByCreatedAt, ByTitle, ByArchivedAt:
		return k, true
	default:
		return "", false
	}
}

// Order is a sort specification. The zero Order is most recently edited
// first.
type Order struct {
	Key  SortKey
	Desc bool
}

// DefaultOrder is what the zero Order means.
var DefaultOrder = Order{Key: ByUpdatedAt, Desc: true}

func (o Order) orDefault(def Order) Order {
	if o == (Order{}) {
		return def
	}
	if o.Key == "" {
		o.Key = def.Key
	}
	return o
}

// Apply returns the active notes matching c, sorted by o. Archived notes are
// always excluded.
func Apply(list []notes.Note, c Criteria, o Order) []notes.Note {
	m := newMatcher(c)
	out := make([]notes.Note, 0, len(list))
	for _, n := range list {
		if n.IsArchived || !m.match(n) {
			continue
		}
		out = append(out, n)
	}
	Sort(out, o.orDefault(DefaultOrder))
	return out
}

// Archived returns only archived notes, newest archive first unless o says
// otherwise.
func Archived(list []notes.Note, o Order) []notes.Note {
	out := make([]notes.Note, 0)
	for _, n := range list {
		if n.IsArchived {
			out = append(out, n)
		}
	}
	Sort(out, o.orDefault(Order{Key: ByArchivedAt, Desc: true}))
	return out
}

type matcher struct {
	search        string
	folderID      string
	tag           string
	favoritesOnly bool
}

func newMatcher(c Criteria) matcher {
	return matcher{
		search:        strings.ToLower(c.Search),
		folderID:      c.FolderID,
		tag:           c.Tag,
		favoritesOnly: c.FavoritesOnly,
	}
}

func (m matcher) match(n notes.Note) bool {
	if m.search != "" && !matchesSearch(n, m.search) {
		return false
	}
	if m.folderID != "" && n.FolderID != m.folderID {
		return false
	}
	if m.tag != "" && !n.HasTag(m.tag) {
		return false
	}
	if m.favoritesOnly && !n.IsFavorite {
		return false
	}
	return true
}

// matchesSearch expects needle already lower-cased.
func matchesSearch(n notes.Note, needle string) bool {
	if strings.Contains(strings.ToLower(n.Title), needle) ||
		strings.Contains(strings.ToLower(n.Content), needle) {
		return true
	}
	return slices.ContainsFunc(n.Tags, func(tag string) bool {
		return strings.Contains(strings.ToLower(tag), needle)
	})
}

// Sort orders list in place. Ties, and notes missing the sort field, fall
// back to id so the result is deterministic.
func Sort(list []notes.Note, o Order) {
	o = o.orDefault(DefaultOrder)
	slices.SortStableFunc(list, func(a, b notes.Note) int {
		c := compareBy(o.Key, a, b)
		if o.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func compareBy(key SortKey, a, b notes.Note) int {
	switch key {
	case ByCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	case ByTitle:
		return cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	case ByArchivedAt:
		return archivedAt(a).Compare(archivedAt(b))
	default:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	}
}

func archivedAt(n notes.Note) time.Time {
	if n.ArchivedAt == nil {
		return time.Time{}
	}
	return *n.ArchivedAt
}
