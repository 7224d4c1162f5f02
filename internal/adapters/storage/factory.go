// Package storage builds the configured state store.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tjfontaine/bundle-gateway/internal/adapters/storage/memory"
	"github.com/tjfontaine/bundle-gateway/internal/adapters/storage/rules"
	"github.com/tjfontaine/bundle-gateway/internal/adapters/storage/sqlstate"
	"github.com/tjfontaine/bundle-gateway/internal/core/ports"
	"github.com/tjfontaine/bundle-gateway/internal/pkg/config"
)

// New opens the state store named by cfg.Driver.
func New(cfg config.StorageConfig) (ports.StateStore, error) {
	rs := rules.FromConfig(cfg.DispositionRules)

	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return memory.New(rs), nil
	case "sqlite", "sqlite3":
		if err := ensureDir(cfg.DSN); err != nil {
			return nil, err
		}
		return sqlstate.New(sqlstate.Config{Driver: cfg.Driver, DSN: cfg.DSN, Rules: rs})
	case "postgres", "postgresql", "pgx":
		return sqlstate.New(sqlstate.Config{Driver: cfg.Driver, DSN: cfg.DSN, Rules: rs})
	default:
		return nil, fmt.Errorf("unknown storage driver: %s (supported: memory, sqlite, postgres)", cfg.Driver)
	}
}

// ensureDir creates the parent directory of a file-backed SQLite DSN.
func ensureDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	return nil
}
