package notes

import (
	"slices"
	"time"
)

const (
	// NotesKey is the store key holding the whole notes collection.
	NotesKey = "notekeep.notes"

	// FoldersKey is the store key holding the folder list.
	FoldersKey = "notekeep.folders"
)

// Note is a user's note. Content is an opaque rich-text (HTML) payload.
type Note struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	Tags       []string   `json:"tags"`
	FolderID   string     `json:"folderId,omitempty"`
	IsFavorite bool       `json:"isFavorite"`
	IsArchived bool       `json:"isArchived"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	ArchivedAt *time.Time `json:"archivedAt,omitempty"`
}

// Clone returns a deep copy, so callers can never alias the repository's
// canonical tags slice or archive timestamp.
func (n Note) Clone() Note {
	n.Tags = slices.Clone(n.Tags)
	if n.Tags == nil {
		n.Tags = []string{}
	}
	if n.ArchivedAt != nil {
		at := *n.ArchivedAt
		n.ArchivedAt = &at
	}
	return n
}

// HasTag reports whether the note carries tag exactly.
func (n Note) HasTag(tag string) bool {
	return slices.Contains(n.Tags, tag)
}

// Draft contains the fields for creating a note.
type Draft struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags,omitempty"`
	FolderID   string   `json:"folderId,omitempty"`
	IsFavorite bool     `json:"isFavorite,omitempty"`
}

// Patch contains the fields for updating a note. Nil fields are left alone;
// a non-nil pointer to the empty value clears the field. ID and CreatedAt are
// deliberately absent.
type Patch struct {
	Title      *string   `json:"title,omitempty"`
	Content    *string   `json:"content,omitempty"`
	Tags       *[]string `json:"tags,omitempty"`
	FolderID   *string   `json:"folderId,omitempty"`
	IsFavorite *bool     `json:"isFavorite,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil && p.Tags == nil && p.FolderID == nil && p.IsFavorite == nil
}

// Folder groups notes. Notes reference folders by id without integrity checks.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// FolderParams contains the fields for creating a folder.
type FolderParams struct {
	Name  string `json:"name" validate:"required,max=100"`
	Color string `json:"color,omitempty" validate:"omitempty,hexcolor"`
}

// FolderPatch contains the fields for updating a folder.
type FolderPatch struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

// TagCount is one entry of the derived tag list.
type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Ptr returns a pointer to v; handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}
