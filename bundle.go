package flux

import (
	"database/sql"

	"github.com/petrijr/flux/internal/persistence"
	"github.com/petrijr/flux/internal/taskqueue"
	"github.com/petrijr/flux/pkg/worker"
)

// WorkerBundle wires together an Engine, a durable task queue, and a Worker
// that consumes tasks from that queue.
type WorkerBundle struct {
	Engine Engine
	Worker *worker.Worker

	queue taskqueue.Queue
}

// NewSQLiteBundle constructs a durable Engine + Queue + Worker combo sharing
// the same SQLite database. Workflow state and queued tasks are persisted
// in the provided *sql.DB.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:flux.db?_pragma=journal_mode(WAL)")
//	bundle, err := flux.NewSQLiteBundle(db, flux.WithWorkerConfig(worker.Config{MaxAttempts: 3}))
//	_ = bundle.Worker.Register(def)
//	_ = bundle.Worker.EnqueueExecute(ctx, def.Name, input)
//	go bundle.Worker.Run(ctx)
func NewSQLiteBundle(db *sql.DB, opts ...Option) (*WorkerBundle, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}

	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	eng := newEngine(store, o)
	return &WorkerBundle{
		Engine: eng,
		Worker: worker.NewWithConfig(eng, q, o.worker),
		queue:  q,
	}, nil
}

// Pending returns the number of queued tasks.
func (b *WorkerBundle) Pending() int {
	return b.queue.Len()
}
