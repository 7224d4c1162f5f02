// Package sqlstate persists the interaction state trail in SQLite or
// PostgreSQL.
package sqlstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/bundle-gateway/internal/adapters/storage/rules"
	"github.com/tjfontaine/bundle-gateway/internal/core/domain"
	"github.com/tjfontaine/bundle-gateway/internal/core/ports"
	"github.com/tjfontaine/bundle-gateway/internal/storage/dialect"
)

// Store is the SQL state sink.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
	rules   rules.Rules
}

var _ ports.StateStore = (*Store)(nil)

// Config holds database connection configuration.
type Config struct {
	Driver string // sqlite or postgres
	DSN    string
	Rules  rules.Rules
}

// New opens the database and creates the schema if needed.
func New(cfg Config) (*Store, error) {
	d, err := dialect.FromDriverName(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, stmt := range d.SessionStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db, dialect: d, rules: cfg.Rules}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSQLite opens a SQLite-backed store.
func NewSQLite(dsn string, rs rules.Rules) (*Store, error) {
	return New(Config{Driver: "sqlite", DSN: dsn, Rules: rs})
}

func (s *Store) initSchema() error {
	doc := s.dialect.DocumentType()
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS interaction_states (
	%s,
	id TEXT NOT NULL UNIQUE,
	interaction_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	group_interaction_id TEXT NOT NULL DEFAULT '',
	master_interaction_id TEXT NOT NULL DEFAULT '',
	source_type TEXT NOT NULL,
	bundle_id TEXT NOT NULL DEFAULT '',
	request_uri TEXT NOT NULL DEFAULT '',
	from_state TEXT NOT NULL,
	to_state TEXT NOT NULL,
	nature TEXT NOT NULL,
	nature_detail %s,
	payload %s,
	raw_payload INTEGER NOT NULL DEFAULT 0,
	provenance TEXT NOT NULL DEFAULT '',
	user_name TEXT NOT NULL DEFAULT '',
	user_id TEXT NOT NULL DEFAULT '',
	user_role TEXT NOT NULL DEFAULT '',
	user_session TEXT NOT NULL DEFAULT '',
	additional_details %s,
	elaboration %s,
	created_by TEXT NOT NULL DEFAULT '',
	created_at %s NOT NULL
)`, s.dialect.SequenceColumn(), doc, doc, doc, doc, s.dialect.TimestampType()),
		`CREATE INDEX IF NOT EXISTS idx_interaction_states_interaction ON interaction_states(interaction_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_interaction_states_tenant ON interaction_states(tenant_id, created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append inserts rec and returns the stored payload, enriched by the
// disposition rules for DISPOSITION records.
func (s *Store) Append(ctx context.Context, rec *domain.StateRecord) (json.RawMessage, error) {
	payload := s.rules.Enrich(rec)
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := s.dialect.Rebind(`INSERT INTO interaction_states (
	id, interaction_id, tenant_id, group_interaction_id, master_interaction_id, source_type, bundle_id,
	request_uri, from_state, to_state, nature, nature_detail, payload, raw_payload, provenance,
	user_name, user_id, user_role, user_session, additional_details, elaboration, created_by, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.InteractionID, rec.TenantID, rec.GroupInteractionID, rec.MasterInteractionID,
		string(rec.SourceType), rec.BundleID, rec.RequestURI,
		string(rec.FromState), string(rec.ToState), string(rec.Nature), nullDoc(rec.NatureDetail()),
		nullDoc(payload), boolInt(rec.RawPayload), rec.Provenance,
		rec.User.Name, rec.User.ID, rec.User.Role, rec.User.Session,
		nullDoc(rec.AdditionalDetails), nullDoc(rec.Elaboration), rec.CreatedBy, createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert state record: %w", err)
	}
	return payload, nil
}

type stateRow struct {
	ID                  string         `db:"id"`
	InteractionID       string         `db:"interaction_id"`
	TenantID            string         `db:"tenant_id"`
	GroupInteractionID  string         `db:"group_interaction_id"`
	MasterInteractionID string         `db:"master_interaction_id"`
	SourceType          string         `db:"source_type"`
	BundleID            string         `db:"bundle_id"`
	RequestURI          string         `db:"request_uri"`
	FromState           string         `db:"from_state"`
	ToState             string         `db:"to_state"`
	Nature              string         `db:"nature"`
	Payload             sql.NullString `db:"payload"`
	RawPayload          int            `db:"raw_payload"`
	Provenance          string         `db:"provenance"`
	UserName            string         `db:"user_name"`
	UserID              string         `db:"user_id"`
	UserRole            string         `db:"user_role"`
	UserSession         string         `db:"user_session"`
	AdditionalDetails   sql.NullString `db:"additional_details"`
	Elaboration         sql.NullString `db:"elaboration"`
	CreatedBy           string         `db:"created_by"`
	CreatedAt           time.Time      `db:"created_at"`
}

const selectColumns = `id, interaction_id, tenant_id, group_interaction_id, master_interaction_id, source_type,
	bundle_id, request_uri, from_state, to_state, nature, payload, raw_payload, provenance,
	user_name, user_id, user_role, user_session, additional_details, elaboration, created_by, created_at`

func (r *stateRow) record() *domain.StateRecord {
	return &domain.StateRecord{
		ID: r.ID,
		Interaction: domain.Interaction{
			InteractionID:       r.InteractionID,
			TenantID:            r.TenantID,
			GroupInteractionID:  r.GroupInteractionID,
			MasterInteractionID: r.MasterInteractionID,
			SourceType:          domain.SourceType(r.SourceType),
			BundleID:            r.BundleID,
		},
		RequestURI:        r.RequestURI,
		FromState:         domain.ProcessingState(r.FromState),
		ToState:           domain.ProcessingState(r.ToState),
		Nature:            domain.Nature(r.Nature),
		Payload:           rawDoc(r.Payload),
		RawPayload:        r.RawPayload != 0,
		Provenance:        r.Provenance,
		User:              domain.UserInfo{Name: r.UserName, ID: r.UserID, Role: r.UserRole, Session: r.UserSession},
		AdditionalDetails: rawDoc(r.AdditionalDetails),
		Elaboration:       rawDoc(r.Elaboration),
		CreatedBy:         r.CreatedBy,
		CreatedAt:         r.CreatedAt,
	}
}

// ListStates returns an interaction's records in write order.
func (s *Store) ListStates(ctx context.Context, interactionID string) ([]*domain.StateRecord, error) {
	var rows []stateRow
	query := s.dialect.Rebind(`SELECT ` + selectColumns + ` FROM interaction_states WHERE interaction_id = ? ORDER BY seq ASC`)
	if err := s.db.SelectContext(ctx, &rows, query, interactionID); err != nil {
		return nil, fmt.Errorf("list states for %s: %w", interactionID, err)
	}

	out := make([]*domain.StateRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].record())
	}
	return out, nil
}

// LastState returns the newest record with the given toState, or nil.
func (s *Store) LastState(ctx context.Context, interactionID string, toState domain.ProcessingState) (*domain.StateRecord, error) {
	var row stateRow
	query := s.dialect.Rebind(`SELECT ` + selectColumns + ` FROM interaction_states
	WHERE interaction_id = ? AND to_state = ? ORDER BY seq DESC LIMIT 1`)
	if err := s.db.GetContext(ctx, &row, query, interactionID, string(toState)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("last %s state for %s: %w", toState, interactionID, err)
	}
	return row.record(), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullDoc(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func rawDoc(s sql.NullString) json.RawMessage {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.RawMessage(s.String)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
