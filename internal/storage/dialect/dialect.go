// Package dialect hides the SQL differences between the supported state
// store databases.
package dialect

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Dialect describes how the state table is declared and queried on one
// database engine.
type Dialect interface {
	// Name is "sqlite" or "postgres".
	Name() string

	// DriverName is the database/sql driver to open.
	DriverName() string

	// Rebind rewrites ? placeholders into the engine's bind style.
	Rebind(query string) string

	// SequenceColumn declares the write-order key.
	SequenceColumn() string

	TimestampType() string

	// DocumentType is the column type for JSON documents. Documents are
	// kept as text so they come back byte for byte.
	DocumentType() string

	// SessionStatements run once after the pool opens.
	SessionStatements() []string
}

// FromDriverName resolves a configured storage driver.
func FromDriverName(driverName string) (Dialect, error) {
	switch strings.ToLower(driverName) {
	case "sqlite", "sqlite3":
		return sqlite{}, nil
	case "postgres", "postgresql", "pgx":
		return postgres{}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driverName)
	}
}

type sqlite struct{}

func (sqlite) Name() string               { return "sqlite" }
func (sqlite) DriverName() string         { return "sqlite" }
func (sqlite) Rebind(query string) string { return sqlx.Rebind(sqlx.QUESTION, query) }
func (sqlite) SequenceColumn() string     { return "seq INTEGER PRIMARY KEY AUTOINCREMENT" }
func (sqlite) TimestampType() string      { return "TIMESTAMP" }
func (sqlite) DocumentType() string       { return "TEXT" }

func (sqlite) SessionStatements() []string {
	return []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
}

type postgres struct{}

func (postgres) Name() string                { return "postgres" }
func (postgres) DriverName() string          { return "pgx" }
func (postgres) Rebind(query string) string  { return sqlx.Rebind(sqlx.DOLLAR, query) }
func (postgres) SequenceColumn() string      { return "seq BIGSERIAL PRIMARY KEY" }
func (postgres) TimestampType() string       { return "TIMESTAMP WITH TIME ZONE" }
func (postgres) DocumentType() string        { return "TEXT" }
func (postgres) SessionStatements() []string { return nil }
