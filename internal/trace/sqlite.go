package trace

import (
	"context"
	"database/sql"
	"time"

	"github.com/petrijr/flux/pkg/api"
)

// SQLiteSink stores trace events in an append-only SQLite table.
type SQLiteSink struct {
	db *sql.DB
}

var _ api.TraceSink = (*SQLiteSink)(nil)

func NewSQLiteSink(db *sql.DB) (*SQLiteSink, error) {
	s := &SQLiteSink{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS trace_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			workflow_id TEXT NOT NULL,
			at INTEGER NOT NULL,
			type TEXT NOT NULL,
			workflow_name TEXT NOT NULL DEFAULT '',
			step TEXT NOT NULL DEFAULT '',
			step_index INTEGER NOT NULL DEFAULT -1,
			attempt INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_trace_events_workflow_id ON trace_events(workflow_id, id);
	`)
	return err
}

func (s *SQLiteSink) Emit(ctx context.Context, ev api.TraceEvent) error {
	at := ev.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trace_events (workflow_id, at, type, workflow_name, step, step_index, attempt, status, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.WorkflowID,
		at.UnixNano(),
		string(ev.Type),
		ev.WorkflowName,
		ev.Step,
		ev.StepIndex,
		ev.Attempt,
		ev.Status,
		ev.Error,
		ev.DurationMs,
	)
	return err
}

// List returns the events of one workflow in emission order.
func (s *SQLiteSink) List(ctx context.Context, workflowID string) ([]api.TraceEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT workflow_id, at, type, workflow_name, step, step_index, attempt, status, error, duration_ms
		FROM trace_events
		WHERE workflow_id = ?
		ORDER BY id ASC`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.TraceEvent
	for rows.Next() {
		var (
			ev  api.TraceEvent
			atN int64
			typ string
		)
		if err := rows.Scan(&ev.WorkflowID, &atN, &typ, &ev.WorkflowName, &ev.Step, &ev.StepIndex,
			&ev.Attempt, &ev.Status, &ev.Error, &ev.DurationMs); err != nil {
			return nil, err
		}
		ev.Timestamp = time.Unix(0, atN).UTC()
		ev.Type = api.EventType(typ)
		out = append(out, ev)
	}
	return out, rows.Err()
}
