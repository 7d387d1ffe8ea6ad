package notes

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// CurrentVersion is the on-disk format written by this package.
//
// Version 1 is the legacy layout: a bare JSON array of note objects whose
// fields may be missing, null or inconsistent. Version 2 wraps the array in
// an envelope: {"version":2,"notes":[...]}. Both are read; only 2 is written.
const CurrentVersion = 2

// ErrCorrupt is returned by DecodeNotes when the stored value cannot be
// interpreted at all.
var ErrCorrupt = errors.New("notes: stored collection is corrupt")

type notesEnvelope struct {
	Version int               `json:"version"`
	Notes   []json.RawMessage `json:"notes"`
}

type notesEnvelopeOut struct {
	Version int          `json:"version"`
	Notes   []noteRecord `json:"notes"`
}

// noteRecord is the on-disk shape. Timestamps are ISO-8601 strings so that
// legacy values in other layouts can be parsed leniently.
type noteRecord struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags"`
	FolderID   *string  `json:"folderId,omitempty"`
	IsFavorite bool     `json:"isFavorite"`
	IsArchived bool     `json:"isArchived"`
	CreatedAt  string   `json:"createdAt"`
	UpdatedAt  string   `json:"updatedAt"`
	ArchivedAt *string  `json:"archivedAt,omitempty"`
}

// DecodeStats reports what DecodeNotes had to repair.
type DecodeStats struct {
	Version  int
	Skipped  int // records that were not JSON objects or had no id
	Dupes    int // records dropped because their id was already seen
	Repaired int // records whose timestamps or archive state were fixed up
}

// EncodeNotes serializes the collection in the current format.
func EncodeNotes(notes []Note) (string, error) {
	out := notesEnvelopeOut{Version: CurrentVersion, Notes: make([]noteRecord, 0, len(notes))}
	for _, n := range notes {
		out.Notes = append(out.Notes, toRecord(n))
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode notes: %w", err)
	}
	return string(data), nil
}

// DecodeNotes parses any supported format. now fills timestamps missing from
// legacy records. Individual unusable records are skipped; ErrCorrupt is
// returned only when the value as a whole is unreadable.
func DecodeNotes(raw string, now time.Time) ([]Note, DecodeStats, error) {
	var stats DecodeStats
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 {
		return []Note{}, stats, nil
	}

	var items []json.RawMessage
	switch trimmed[0] {
	case '[':
		stats.Version = 1
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, stats, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	case '{':
		var env notesEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, stats, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if env.Version < 1 || env.Version > CurrentVersion {
			return nil, stats, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, env.Version)
		}
		stats.Version = env.Version
		items = env.Notes
	default:
		return nil, stats, fmt.Errorf("%w: unexpected leading byte %q", ErrCorrupt, trimmed[0])
	}

	notes := make([]Note, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		var rec noteRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			stats.Skipped++
			continue
		}
		n, repaired, ok := fromRecord(rec, now)
		if !ok {
			stats.Skipped++
			continue
		}
		if _, dup := seen[n.ID]; dup {
			stats.Dupes++
			continue
		}
		seen[n.ID] = struct{}{}
		if repaired {
			stats.Repaired++
		}
		notes = append(notes, n)
	}
	return notes, stats, nil
}

func toRecord(n Note) noteRecord {
	rec := noteRecord{
		ID:         n.ID,
		Title:      n.Title,
		Content:    n.Content,
		Tags:       n.Tags,
		IsFavorite: n.IsFavorite,
		IsArchived: n.IsArchived,
		CreatedAt:  formatTime(n.CreatedAt),
		UpdatedAt:  formatTime(n.UpdatedAt),
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	if n.FolderID != "" {
		folder := n.FolderID
		rec.FolderID = &folder
	}
	if n.ArchivedAt != nil {
		at := formatTime(*n.ArchivedAt)
		rec.ArchivedAt = &at
	}
	return rec
}

func fromRecord(rec noteRecord, now time.Time) (Note, bool, bool) {
	id := strings.TrimSpace(rec.ID)
	if id == "" {
		return Note{}, false, false
	}
	n := Note{
		ID:         id,
		Title:      rec.Title,
		Content:    rec.Content,
		Tags:       rec.Tags,
		IsFavorite: rec.IsFavorite,
		IsArchived: rec.IsArchived,
	}
	if rec.FolderID != nil {
		n.FolderID = *rec.FolderID
	}

	repaired := false
	created, okCreated := parseTime(rec.CreatedAt)
	updated, okUpdated := parseTime(rec.UpdatedAt)
	switch {
	case okCreated && okUpdated:
	case okCreated:
		updated, repaired = created, true
	case okUpdated:
		created, repaired = updated, true
	default:
		created, updated, repaired = now, now, true
	}
	n.CreatedAt, n.UpdatedAt = created, updated

	var archivedAt *time.Time
	if rec.ArchivedAt != nil {
		if at, ok := parseTime(*rec.ArchivedAt); ok {
			archivedAt = &at
		}
	}
	n.ArchivedAt = archivedAt

	if normalizeNote(&n) {
		repaired = true
	}
	return n, repaired, true
}

// normalizeNote enforces the invariants every stored note must satisfy and
// reports whether anything changed: tags are unique and non-empty,
// UpdatedAt >= CreatedAt, and ArchivedAt is set iff IsArchived.
func normalizeNote(n *Note) bool {
	changed := false

	tags := normalizeTags(n.Tags)
	if !slices.Equal(tags, n.Tags) {
		changed = true
	}
	n.Tags = tags

	if n.UpdatedAt.Before(n.CreatedAt) {
		n.UpdatedAt = n.CreatedAt
		changed = true
	}

	switch {
	case n.IsArchived && n.ArchivedAt == nil:
		at := n.UpdatedAt
		n.ArchivedAt = &at
		changed = true
	case !n.IsArchived && n.ArchivedAt != nil:
		n.ArchivedAt = nil
		changed = true
	}
	return changed
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z0700", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
