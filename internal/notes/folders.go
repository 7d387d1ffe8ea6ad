package notes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/kuitang/notekeep/internal/errs"
	"github.com/kuitang/notekeep/internal/kv"
	"github.com/kuitang/notekeep/internal/obs"
)

const foldersVersion = 1

var validate = validator.New(validator.WithRequiredStructEnabled())

type foldersEnvelope struct {
	Version int      `json:"version"`
	Folders []Folder `json:"folders"`
}

// FolderRepository owns the persisted folder list. Notes reference folders by
// id only; deleting a folder never touches notes.
type FolderRepository struct {
	base

	mu      sync.RWMutex
	folders []Folder
	gen     uint64
	size    int64
}

// NewFolderRepository creates a folder repository over store.
func NewFolderRepository(store kv.Store, opts ...Option) *FolderRepository {
	return &FolderRepository{
		base:    newBase(store, FoldersKey, opts),
		folders: []Folder{},
	}
}

// Load rebuilds the folder list from the store. Unreadable content is logged
// and treated as no folders.
func (r *FolderRepository) Load(ctx context.Context) ([]Folder, error) {
	raw, ok, err := r.store.Get(ctx, r.key)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "failed to read folders", err)
	}
	loaded := []Folder{}
	size := int64(0)
	if ok {
		size = int64(len(raw))
		decoded, err := decodeFolders(raw)
		if err != nil {
			r.logger.Warn("stored folders are corrupt; starting with none",
				"key", r.key, "head", obs.TruncateForLog(raw, corruptPreviewChars),
				"error", errs.Wrap(errs.StoreCorrupt, "decode folders", err))
		} else {
			loaded = decoded
		}
	}

	r.mu.Lock()
	r.folders = loaded
	r.size = size
	r.gen++
	r.mu.Unlock()
	return r.All(), nil
}

// All returns a copy of the folder list in creation order.
func (r *FolderRepository) All() []Folder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.folders)
}

// Get returns the folder with id.
func (r *FolderRepository) Get(id string) (Folder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(id); i >= 0 {
		return r.folders[i], true
	}
	return Folder{}, false
}

// Generation increases every time the folder list changes.
func (r *FolderRepository) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gen
}

func (r *FolderRepository) indexOf(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(r.folders, func(f Folder) bool { return f.ID == id })
}

// Create validates p and appends a new folder. Names must be unique ignoring
// case.
func (r *FolderRepository) Create(ctx context.Context, p FolderParams) (Folder, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := validateFolder(p); err != nil {
		return Folder{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkUniqueName("", p.Name); err != nil {
		return Folder{}, err
	}

	f := Folder{
		ID:        r.ids.Next(),
		Name:      p.Name,
		Color:     p.Color,
		CreatedAt: r.timestamp(),
	}
	next := append(slices.Clone(r.folders), f)
	if err := r.commit(ctx, "create_folder", next); err != nil {
		return Folder{}, err
	}
	return f, nil
}

// Update renames or recolors a folder. Unknown ids are a no-op.
func (r *FolderRepository) Update(ctx context.Context, id string, p FolderPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil
	}
	f := r.folders[i]
	merged := FolderParams{Name: f.Name, Color: f.Color}
	if p.Name != nil {
		merged.Name = strings.TrimSpace(*p.Name)
	}
	if p.Color != nil {
		merged.Color = *p.Color
	}
	if err := validateFolder(merged); err != nil {
		return err
	}
	if err := r.checkUniqueName(id, merged.Name); err != nil {
		return err
	}
	if merged.Name == f.Name && merged.Color == f.Color {
		return nil
	}
	f.Name, f.Color = merged.Name, merged.Color

	next := slices.Clone(r.folders)
	next[i] = f
	return r.commit(ctx, "update_folder", next)
}

// Delete removes a folder. Notes that referenced it keep the dangling id;
// callers wanting to detach them use Repository.ClearFolder.
func (r *FolderRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil
	}
	next := slices.Delete(slices.Clone(r.folders), i, i+1)
	return r.commit(ctx, "delete_folder", next)
}

func (r *FolderRepository) checkUniqueName(selfID, name string) error {
	for _, f := range r.folders {
		if f.ID != selfID && strings.EqualFold(f.Name, name) {
			return errs.New(errs.InvalidArgument, fmt.Sprintf("a folder named %q already exists", f.Name))
		}
	}
	return nil
}

// commit persists next and swaps it in. Caller holds r.mu.
func (r *FolderRepository) commit(ctx context.Context, op string, next []Folder) error {
	data, err := json.Marshal(foldersEnvelope{Version: foldersVersion, Folders: next})
	if err != nil {
		return errs.Wrap(errs.Internal, "failed to encode folders", err)
	}
	err = CheckStorageLimit(r.size, int64(len(data)), r.quota)
	if err == nil {
		err = r.store.Set(ctx, r.key, string(data))
	}
	if err != nil {
		msg := "failed to save folders"
		if errors.Is(err, kv.ErrQuotaExceeded) {
			msg = "storage is full; folders were not saved"
		}
		obs.From(ctx).Warn("folder write failed", "pkg", "notes", "op", op, "key", r.key, "error", err)
		return errs.Wrap(errs.StoreWrite, msg, err)
	}
	r.folders = next
	r.size = int64(len(data))
	r.gen++
	return nil
}

// decodeFolders reads the envelope or a legacy bare array. Folders without
// an id are dropped, as are repeated ids.
func decodeFolders(raw string) ([]Folder, error) {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 {
		return []Folder{}, nil
	}
	var list []Folder
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
	case '{':
		var env foldersEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, err
		}
		if env.Version != foldersVersion {
			return nil, fmt.Errorf("unsupported folders version %d", env.Version)
		}
		list = env.Folders
	default:
		return nil, errors.New("folders value is not JSON")
	}

	out := make([]Folder, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, f := range list {
		if f.ID == "" {
			continue
		}
		if _, dup := seen[f.ID]; dup {
			continue
		}
		seen[f.ID] = struct{}{}
		f.CreatedAt = f.CreatedAt.UTC()
		out = append(out, f)
	}
	return out, nil
}

func validateFolder(p FolderParams) error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return errs.Wrap(errs.InvalidArgument, folderFieldMessage(verrs[0]), err)
	}
	return errs.Wrap(errs.InvalidArgument, "invalid folder", err)
}

func folderFieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "hexcolor":
		return field + " must be a hex color such as #ff8800"
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}
