package notebook

import (
	"github.com/kuitang/notekeep/internal/notes"
	"github.com/kuitang/notekeep/internal/query"
)

type viewCache struct {
	valid    bool
	gen      uint64
	criteria query.Criteria
	order    query.Order
	notes    []notes.Note
}

func (v viewCache) hit(gen uint64, c query.Criteria, o query.Order) bool {
	return v.valid && v.gen == gen && v.criteria == c && v.order == o
}

type tagCache struct {
	valid bool
	gen   uint64
	tags  []notes.TagCount
}

// Notes returns the active notes matching the current criteria in the
// current order. The result is memoized until the collection, the criteria
// or the order change; callers must not modify it.
func (nb *Notebook) Notes() []notes.Note {
	gen := nb.notes.Generation()
	nb.mu.Lock()
	c, o := nb.criteria, nb.order
	if nb.active.hit(gen, c, o) {
		list := nb.active.notes
		nb.mu.Unlock()
		return list
	}
	nb.mu.Unlock()

	list := query.Apply(nb.notes.All(true), c, o)

	nb.mu.Lock()
	nb.active = viewCache{valid: true, gen: gen, criteria: c, order: o, notes: list}
	nb.mu.Unlock()
	return list
}

// AllNotes returns every active note, unfiltered, in the current order.
func (nb *Notebook) AllNotes() []notes.Note {
	return query.Apply(nb.notes.All(false), query.Criteria{}, nb.Order())
}

// ArchivedNotes returns archived notes, most recently archived first.
// Callers must not modify the result.
func (nb *Notebook) ArchivedNotes() []notes.Note {
	gen := nb.notes.Generation()
	nb.mu.Lock()
	if nb.archived.hit(gen, query.Criteria{}, query.Order{}) {
		list := nb.archived.notes
		nb.mu.Unlock()
		return list
	}
	nb.mu.Unlock()

	list := query.Archived(nb.notes.All(true), query.Order{})

	nb.mu.Lock()
	nb.archived = viewCache{valid: true, gen: gen, notes: list}
	nb.mu.Unlock()
	return list
}

// Tags returns the tags used by active notes with their counts, sorted by
// name. Callers must not modify the result.
func (nb *Notebook) Tags() []notes.TagCount {
	gen := nb.notes.Generation()
	nb.mu.Lock()
	if nb.tags.valid && nb.tags.gen == gen {
		tags := nb.tags.tags
		nb.mu.Unlock()
		return tags
	}
	nb.mu.Unlock()

	tags := notes.CollectTags(nb.notes.All(false))

	nb.mu.Lock()
	nb.tags = tagCache{valid: true, gen: gen, tags: tags}
	nb.mu.Unlock()
	return tags
}

// Folders returns all folders in creation order.
func (nb *Notebook) Folders() []notes.Folder {
	return nb.folders.All()
}

// GetFolder returns a folder by id.
func (nb *Notebook) GetFolder(id string) (notes.Folder, bool) {
	return nb.folders.Get(id)
}

// =============================================================================
// Filters
// =============================================================================

// Criteria returns the active filter criteria.
func (nb *Notebook) Criteria() query.Criteria {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return nb.criteria
}

// Order returns the active sort order.
func (nb *Notebook) Order() query.Order {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return nb.order
}

// SetSearchQuery filters by case-insensitive substring over title, content
// and tags. Empty clears the search.
func (nb *Notebook) SetSearchQuery(q string) {
	nb.setCriteria(func(c *query.Criteria) { c.Search = q })
}

// SetSelectedFolder filters by folder id. Empty clears the filter.
func (nb *Notebook) SetSelectedFolder(id string) {
	nb.setCriteria(func(c *query.Criteria) { c.FolderID = id })
}

// SetSelectedTag filters by exact tag. Empty clears the filter.
func (nb *Notebook) SetSelectedTag(tag string) {
	nb.setCriteria(func(c *query.Criteria) { c.Tag = tag })
}

// SetShowFavorites restricts the view to favorites.
func (nb *Notebook) SetShowFavorites(on bool) {
	nb.setCriteria(func(c *query.Criteria) { c.FavoritesOnly = on })
}

// ClearFilters resets every filter.
func (nb *Notebook) ClearFilters() {
	nb.setCriteria(func(c *query.Criteria) { *c = query.Criteria{} })
}

// SetOrder changes the sort order of Notes and AllNotes.
func (nb *Notebook) SetOrder(o query.Order) {
	nb.mu.Lock()
	if o.Key == "" {
		o = query.DefaultOrder
	}
	changed := nb.order != o
	nb.order = o
	nb.mu.Unlock()
	if changed {
		nb.publish(Event{Kind: FiltersChanged, Op: "set_order"})
	}
}

func (nb *Notebook) setCriteria(fn func(*query.Criteria)) {
	nb.mu.Lock()
	next := nb.criteria
	fn(&next)
	changed := next != nb.criteria
	nb.criteria = next
	nb.mu.Unlock()
	if changed {
		nb.publish(Event{Kind: FiltersChanged, Op: "set_filter"})
	}
}
