// Package store is the relational persistence layer behind the GraphQL
// resolvers. It wraps a pooled *sql.DB opened with either the pgx (Postgres)
// or the modernc (SQLite) driver, chosen by the connection URL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Driver names registered with database/sql.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// Config holds connection settings.
type Config struct {
	// URL is a postgres:// or postgresql:// URL, or a sqlite:/file: path.
	URL string
	// MaxConns bounds open connections; zero keeps the driver default.
	MaxConns int
	// ConnMaxLifetime closes connections once they reach this age; zero
	// keeps them indefinitely.
	ConnMaxLifetime time.Duration
}

// Store is safe for concurrent use; each statement checks a connection out of
// the pool and returns it when done.
type Store struct {
	db     *sql.DB
	driver string
	dsn    string
}

// Open connects to the database described by cfg and verifies it with a ping.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver, dsn, err := parseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MaxConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}

	return &Store{db: db, driver: driver, dsn: dsn}, nil
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string { return s.driver }

// Close closes the pool.
func (s *Store) Close() error { return s.db.Close() }

// parseURL maps a database URL to a driver name and DSN.
func parseURL(raw string) (driver, dsn string, err error) {
	switch {
	case raw == "":
		return "", "", errors.New("database url is required")
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return DriverPostgres, raw, nil
	case strings.HasPrefix(raw, "sqlite://"):
		return DriverSQLite, sqliteDSN(strings.TrimPrefix(raw, "sqlite://")), nil
	case strings.HasPrefix(raw, "sqlite:"):
		return DriverSQLite, sqliteDSN(strings.TrimPrefix(raw, "sqlite:")), nil
	case strings.HasPrefix(raw, "file:"):
		return DriverSQLite, sqliteDSN(raw), nil
	default:
		return "", "", fmt.Errorf("unsupported database url scheme in %q", redact(raw))
	}
}

// sqliteDSN enables foreign keys and a busy timeout on every pooled
// connection unless the caller already set pragmas.
func sqliteDSN(path string) string {
	if strings.Contains(path, "_pragma=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// redact hides credentials in a URL for error messages.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
