package flux

import (
	"database/sql"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/flux/internal/taskqueue"
)

// Task queue types re-exported from internal/taskqueue.
type (
	Queue    = taskqueue.Queue
	Task     = taskqueue.Task
	TaskType = taskqueue.TaskType
)

// NewInMemoryQueue returns a channel-backed queue. Nothing survives the
// process.
func NewInMemoryQueue(capacity int) *taskqueue.InMemoryQueue {
	return taskqueue.NewInMemoryQueue(capacity)
}

// NewSQLiteQueue returns a durable queue stored in the queue_tasks table.
func NewSQLiteQueue(db *sql.DB) (*taskqueue.SQLiteQueue, error) {
	return taskqueue.NewSQLiteQueue(db)
}

// NewRedisQueue returns a durable queue stored in a Redis sorted set under
// prefix (default "flux:").
func NewRedisQueue(client *redis.Client, prefix string) *taskqueue.RedisQueue {
	return taskqueue.NewRedisQueue(client, prefix)
}
