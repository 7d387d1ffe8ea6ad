// Package kvtest holds the behaviour every kv.Store backend must share.
package kvtest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/notekeep/internal/kv"
	"github.com/kuitang/notekeep/internal/testutil"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) kv.Store

// Run exercises the Store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("GetAbsent", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		v, ok, err := s.Get(context.Background(), "missing")
		require.NoError(t, err)
		require.False(t, ok)
		require.Empty(t, v)
	})

	t.Run("SetGetOverwrite", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "notekeep.notes", `[{"id":"a"}]`))
		v, ok, err := s.Get(ctx, "notekeep.notes")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, `[{"id":"a"}]`, v)

		require.NoError(t, s.Set(ctx, "notekeep.notes", `[]`))
		v, _, err = s.Get(ctx, "notekeep.notes")
		require.NoError(t, err)
		require.Equal(t, `[]`, v)
	})

	t.Run("EmptyValueIsPresent", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "empty", ""))
		v, ok, err := s.Get(ctx, "empty")
		require.NoError(t, err)
		require.True(t, ok)
		require.Empty(t, v)
	})

	t.Run("KeysAreIndependent", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "notekeep.draft.a", "one"))
		require.NoError(t, s.Set(ctx, "notekeep.draft.b", "two"))
		require.NoError(t, s.Remove(ctx, "notekeep.draft.a"))

		_, ok, err := s.Get(ctx, "notekeep.draft.a")
		require.NoError(t, err)
		require.False(t, ok)
		v, ok, err := s.Get(ctx, "notekeep.draft.b")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "two", v)
	})

	t.Run("RemoveAbsent", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		require.NoError(t, s.Remove(context.Background(), "never-set"))
	})

	t.Run("UnicodeAndLargeValues", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		value := strings.Repeat("<p>héllo 世界 🎉</p>\n", 2000)
		require.NoError(t, s.Set(ctx, "big", value))
		v, ok, err := s.Get(ctx, "big")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, value, v)
	})

	t.Run("ArbitraryValuesRoundTrip", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		rapid.Check(t, func(rt *rapid.T) {
			key := "notekeep.draft." + testutil.ValidContextKey().Draw(rt, "key")
			value := testutil.ArbitraryStoreValue().Draw(rt, "value")
			require.NoError(rt, s.Set(ctx, key, value))
			got, ok, err := s.Get(ctx, key)
			require.NoError(rt, err)
			require.True(rt, ok)
			require.Equal(rt, value, got)
		})
	})

	t.Run("EmptyKeyRejected", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		require.ErrorIs(t, s.Set(context.Background(), "", "v"), kv.ErrInvalidKey)
	})

	t.Run("ClosedStore", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Close())
		err := s.Set(context.Background(), "k", "v")
		require.Error(t, err)
		require.True(t, errors.Is(err, kv.ErrClosed), "got %v", err)
	})
}
