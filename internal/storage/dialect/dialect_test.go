package dialect

import (
	"strings"
	"testing"
)

func TestFromDriverName(t *testing.T) {
	tests := []struct {
		driverName string
		wantName   string
		wantDriver string
		wantErr    bool
	}{
		{"sqlite", "sqlite", "sqlite", false},
		{"sqlite3", "sqlite", "sqlite", false},
		{"postgres", "postgres", "pgx", false},
		{"PGX", "postgres", "pgx", false},
		{"mysql", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.driverName, func(t *testing.T) {
			d, err := FromDriverName(tt.driverName)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromDriverName(%q) error = %v, wantErr %v", tt.driverName, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if d.Name() != tt.wantName || d.DriverName() != tt.wantDriver {
				t.Errorf("got %s/%s, want %s/%s", d.Name(), d.DriverName(), tt.wantName, tt.wantDriver)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		d     Dialect
		query string
		want  string
	}{
		{sqlite{}, "SELECT * FROM s WHERE a = ? AND b = ?", "SELECT * FROM s WHERE a = ? AND b = ?"},
		{postgres{}, "SELECT * FROM s WHERE a = ?", "SELECT * FROM s WHERE a = $1"},
		{postgres{}, "INSERT INTO s VALUES (?, ?, ?)", "INSERT INTO s VALUES ($1, $2, $3)"},
		{postgres{}, "SELECT 1", "SELECT 1"},
	}

	for _, tt := range tests {
		if got := tt.d.Rebind(tt.query); got != tt.want {
			t.Errorf("%s Rebind(%q) = %q, want %q", tt.d.Name(), tt.query, got, tt.want)
		}
	}
}

func TestSchemaFragments(t *testing.T) {
	if !strings.Contains(sqlite{}.SequenceColumn(), "AUTOINCREMENT") {
		t.Error("sqlite sequence column should autoincrement")
	}
	if !strings.Contains(postgres{}.SequenceColumn(), "BIGSERIAL") {
		t.Error("postgres sequence column should be BIGSERIAL")
	}
	for _, d := range []Dialect{sqlite{}, postgres{}} {
		if d.DocumentType() != "TEXT" {
			t.Errorf("%s documents must be stored as TEXT", d.Name())
		}
	}
	if len(sqlite{}.SessionStatements()) == 0 {
		t.Error("sqlite should set session pragmas")
	}
}
