// Package storetest opens throwaway SQLite stores for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/rosterql/internal/store"
)

// New returns a migrated store backed by a SQLite file in t.TempDir. When
// seed is true the demo roster is inserted.
func New(t testing.TB, seed bool) *store.Store {
	t.Helper()
	ctx := context.Background()

	url := "sqlite://" + filepath.Join(t.TempDir(), "roster.db")
	s, err := store.Open(ctx, store.Config{URL: url, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(ctx))
	if seed {
		_, err := s.Seed(ctx)
		require.NoError(t, err)
	}
	return s
}
