package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/petrijr/flux/pkg/api"
)

// SQLiteStore is a Store backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
//
// The full snapshot is stored as a gob payload; the remaining columns exist
// for filtering and ordering.
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements Store.
var (
	_ Store       = (*SQLiteStore)(nil)
	_ Initializer = (*SQLiteStore)(nil)
)

// NewSQLiteStore initializes the required schema in the given
// database and returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.Init(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Init creates the schema if it does not exist.
func (s *SQLiteStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS workflow_states (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			current_step INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			completed_at INTEGER,
			error TEXT NOT NULL DEFAULT '',
			payload BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_workflow_states_name_status ON workflow_states(name, status);
		CREATE INDEX IF NOT EXISTS idx_workflow_states_created ON workflow_states(created_at, id);
	`)
	return err
}

func (s *SQLiteStore) Save(ctx context.Context, state *api.WorkflowState) error {
	payload, err := EncodeState(state)
	if err != nil {
		return err
	}

	var completedAt sql.NullInt64
	if state.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: state.CompletedAt.UnixNano(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_states (id, name, status, current_step, created_at, updated_at, completed_at, error, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			current_step = excluded.current_step,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at,
			error = excluded.error,
			payload = excluded.payload`,
		state.ID,
		state.Name,
		string(state.Status),
		state.CurrentStep,
		state.CreatedAt.UnixNano(),
		state.UpdatedAt.UnixNano(),
		completedAt,
		state.Error,
		payload,
	)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (*api.WorkflowState, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM workflow_states WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStateNotFound
		}
		return nil, err
	}
	return DecodeState(payload)
}

func (s *SQLiteStore) List(ctx context.Context, filter api.ListFilter) ([]*api.WorkflowState, error) {
	query := `SELECT payload FROM workflow_states`
	var args []any
	var clauses []string

	if filter.Name != "" {
		clauses = append(clauses, "name = ?")
		args = append(args, filter.Name)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"

	// SQLite only accepts OFFSET after a LIMIT; -1 means unbounded.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
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

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM workflow_states WHERE id = ?`, id)
	return err
}
