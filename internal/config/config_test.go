package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "localhost:8080", cfg.Server.Addr)
	require.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
	require.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	require.Zero(t, cfg.Server.ExecTimeout)
	require.Equal(t, 30*time.Minute, cfg.DB.ConnMaxLifetime)
	require.Equal(t, 64, cfg.Pool.QueueDepth)
	require.True(t, cfg.GraphQL.Introspection)
	require.Equal(t, "rosterql", cfg.Otel.Service)
	require.Empty(t, cfg.Server.CORSOrigins)
	require.Equal(t, "http://localhost:8080/graphql", cfg.Server.EndpointURL())
}

func TestEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "sqlite://roster.db")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ROSTERQL_SERVER_ADDR", ":9090")
	t.Setenv("ROSTERQL_SERVER_EXEC_TIMEOUT", "3s")
	t.Setenv("ROSTERQL_DB_CONN_MAX_LIFETIME", "90s")
	t.Setenv("ROSTERQL_SERVER_RATE_LIMIT", "2.5")
	t.Setenv("ROSTERQL_SERVER_CORS_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("ROSTERQL_POOL_QUEUE_DEPTH", "0")
	t.Setenv("ROSTERQL_GRAPHQL_INTROSPECTION", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "sqlite://roster.db", cfg.DB.URL)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, 3*time.Second, cfg.Server.ExecTimeout)
	require.Equal(t, 90*time.Second, cfg.DB.ConnMaxLifetime)
	require.Equal(t, 2.5, cfg.Server.RateLimit)
	require.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Server.CORSOrigins)
	require.Zero(t, cfg.Pool.QueueDepth)
	require.False(t, cfg.GraphQL.Introspection)
	require.Equal(t, "http://localhost:9090/graphql", cfg.Server.EndpointURL())
}

func TestEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	env := "DATABASE_URL=postgres://u@db/roster\nROSTERQL_POOL_WORKERS=3\nROSTERQL_SERVER_PUBLIC_URL=https://roster.test/\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))
	// the environment wins over the file
	t.Setenv("ROSTERQL_POOL_WORKERS", "5")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "postgres://u@db/roster", cfg.DB.URL)
	require.Equal(t, 5, cfg.Pool.Workers)
	require.Equal(t, "https://roster.test/graphql", cfg.Server.EndpointURL())
}

func TestExplicitEnvFileMustExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := map[string]struct {
		key, value string
	}{
		"log level":      {"LOG_LEVEL", "loud"},
		"log format":     {"LOG_FORMAT", "xml"},
		"queue depth":    {"ROSTERQL_POOL_QUEUE_DEPTH", "-1"},
		"max body bytes": {"ROSTERQL_SERVER_MAX_BODY_BYTES", "0"},
		"exec timeout":   {"ROSTERQL_SERVER_EXEC_TIMEOUT", "-1s"},
		"conn lifetime":  {"ROSTERQL_DB_CONN_MAX_LIFETIME", "-5m"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load("")
			require.Error(t, err)
		})
	}
}

func TestEnvName(t *testing.T) {
	require.Equal(t, "DATABASE_URL", EnvName("db.url"))
	require.Equal(t, "ROSTERQL_SERVER_MAX_BODY_BYTES", EnvName("server.max-body-bytes"))
}
