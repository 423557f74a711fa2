package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	// Registers the "pgx" database/sql driver used by OpenPostgres.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/petrijr/flux/pkg/api"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver. OpenPostgres opens
// one with the pgx stdlib driver; callers that manage their own pool can
// pass any *sql.DB instead.
type PostgresStore struct {
	db *sql.DB
}

var (
	_ Store       = (*PostgresStore)(nil)
	_ Initializer = (*PostgresStore)(nil)
)

// OpenPostgres opens a connection pool for dsn using the pgx driver and
// verifies connectivity.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

// NewPostgresStore initializes the required schema in the given
// database and returns a new PostgresStore.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.Init(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Init creates the schema if it does not exist.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS workflow_states (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			current_step INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			error TEXT NOT NULL DEFAULT '',
			payload BYTEA NOT NULL
		)`)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_workflow_states_name_status
		ON workflow_states (name, status, created_at)`)
	return err
}

func (s *PostgresStore) Save(ctx context.Context, state *api.WorkflowState) error {
	payload, err := EncodeState(state)
	if err != nil {
		return err
	}

	var completedAt sql.NullTime
	if state.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *state.CompletedAt, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_states (id, name, status, current_step, created_at, updated_at, completed_at, error, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			current_step = EXCLUDED.current_step,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at,
			error = EXCLUDED.error,
			payload = EXCLUDED.payload`,
		state.ID,
		state.Name,
		string(state.Status),
		state.CurrentStep,
		state.CreatedAt.UTC(),
		state.UpdatedAt.UTC(),
		completedAt,
		state.Error,
		payload,
	)
	return err
}

func (s *PostgresStore) Load(ctx context.Context, id string) (*api.WorkflowState, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM workflow_states WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStateNotFound
		}
		return nil, err
	}
	return DecodeState(payload)
}

func (s *PostgresStore) List(ctx context.Context, filter api.ListFilter) ([]*api.WorkflowState, error) {
	query := `SELECT payload FROM workflow_states`
	var args []any
	var clauses []string

	if filter.Name != "" {
		args = append(args, filter.Name)
		clauses = append(clauses, fmt.Sprintf("name = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := []*api.WorkflowState{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		state, err := DecodeState(payload)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return states, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM workflow_states WHERE id = $1`, id)
	return err
}
