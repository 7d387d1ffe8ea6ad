package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/kuitang/notekeep/internal/errs"
	"github.com/kuitang/notekeep/internal/notes"
)

// JSON writes notes in the same versioned envelope the repository stores,
// indented for humans.
func JSON(w io.Writer, list []notes.Note) error {
	raw, err := notes.EncodeNotes(list)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(raw), "", "  "); err != nil {
		return fmt.Errorf("indent notes: %w", err)
	}
	buf.WriteByte('\n')
	_, err = w.Write(buf.Bytes())
	return err
}

// ParseJSON reads notes written by JSON, or a legacy bare array of notes.
// Records without an id are dropped and the rest are repaired the same way
// the repository repairs stored data.
func ParseJSON(r io.Reader) ([]notes.Note, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read notes: %w", err)
	}
	list, _, err := notes.DecodeNotes(string(data), time.Now())
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "not a notes export", err)
	}
	return list, nil
}
