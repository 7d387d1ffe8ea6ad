package kv_test

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/notekeep/internal/db"
	"github.com/kuitang/notekeep/internal/kv"
	"github.com/kuitang/notekeep/internal/kv/kvtest"
)

var sqliteCounter atomic.Int64

func newInMemorySQLite(t *testing.T, quota int64) *kv.SQLite {
	t.Helper()
	d, err := db.OpenInMemory(fmt.Sprintf("kvtest-%d", sqliteCounter.Add(1)), strings.Repeat("11", 32))
	require.NoError(t, err)
	return kv.NewSQLiteFromDB(d, quota)
}

func TestSQLite_Conformance(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Store { return newInMemorySQLite(t, 0) })
}

func TestSQLite_Quota(t *testing.T) {
	s := newInMemorySQLite(t, 20)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "0123456789"))
	require.NoError(t, s.Set(ctx, "k", "0123456789abcdefghi"), "overwrite is measured against the old value")
	require.ErrorIs(t, s.Set(ctx, "k2", "x"), kv.ErrQuotaExceeded)

	v, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "0123456789abcdefghi", v)
}

func TestSQLite_EncryptedFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.db")
	master := bytes.Repeat([]byte{42}, 32)
	ctx := context.Background()

	s, err := kv.NewSQLite(path, master, 0)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "notekeep.notes", `{"version":2,"notes":[]}`))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "double close is harmless")

	s, err = kv.NewSQLite(path, master, 0)
	require.NoError(t, err)
	defer s.Close()
	v, ok, err := s.Get(ctx, "notekeep.notes")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"version":2,"notes":[]}`, v)

	_, err = kv.NewSQLite(path, bytes.Repeat([]byte{1}, 32), 0)
	require.Error(t, err, "a different master key must not open the store")
}
