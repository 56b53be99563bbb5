package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/rosterql/internal/store"
)

func TestRunRejectsUnknownCommands(t *testing.T) {
	require.Error(t, run(nil))
	require.ErrorContains(t, run([]string{"launch"}), `unknown command "launch"`)
	require.NoError(t, run([]string{"help"}))
	require.NoError(t, run([]string{"help", "serve"}))
	require.Error(t, run([]string{"help", "launch"}))
}

func TestPrintSchema(t *testing.T) {
	out := filepath.Join(t.TempDir(), "schema.graphql")
	require.NoError(t, run([]string{"print-schema", "-out", out}))

	sdl, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(sdl), "createMember")
	require.NotContains(t, string(sdl), "__schema")
}

func TestMigrateAndSeed(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	url := "sqlite://" + filepath.Join(dir, "roster.db")

	require.NoError(t, run([]string{"migrate", "-db.url", url, "-seed"}))
	// a second run is a no-op
	require.NoError(t, run([]string{"migrate", "-db.url", url, "-seed"}))

	st, err := store.Open(context.Background(), store.Config{URL: url})
	require.NoError(t, err)
	defer st.Close()
	teams, err := st.Teams(context.Background())
	require.NoError(t, err)
	require.Len(t, teams, 2)
}

func TestServeRequiresDatabaseURL(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "")
	require.ErrorContains(t, run([]string{"serve"}), "DATABASE_URL")
}

func TestEnvFileArg(t *testing.T) {
	require.Equal(t, "a.env", envFileArg([]string{"-seed", "-env", "a.env"}))
	require.Equal(t, "b.env", envFileArg([]string{"--env=b.env"}))
	require.Equal(t, "", envFileArg([]string{"-db.url", "x"}))
}
