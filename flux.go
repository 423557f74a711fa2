package flux

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/flux/internal/engine"
	"github.com/petrijr/flux/internal/persistence"
	"github.com/petrijr/flux/pkg/api"
	"github.com/petrijr/flux/pkg/worker"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	Store                = persistence.Store
	WorkflowDefinition   = api.WorkflowDefinition
	StepDefinition       = api.StepDefinition
	WorkflowContext      = api.WorkflowContext
	WorkflowState        = api.WorkflowState
	StepExecution        = api.StepExecution
	Result               = api.Result
	ListFilter           = api.ListFilter
	ResumeOptions        = api.ResumeOptions
	Status               = api.Status
	StepStatus           = api.StepStatus
	StepFunc             = api.StepFunc
	CompensateFunc       = api.CompensateFunc
	ConditionFunc        = api.ConditionFunc
	Observer             = api.Observer
	ObserverFuncs        = api.ObserverFuncs
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
	TraceEvent           = api.TraceEvent
	TraceSink            = api.TraceSink
	EventType            = api.EventType
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	FromStep             = api.FromStep
)

// Re-export status values for convenience.

const (
	StatusPending    = api.StatusPending
	StatusRunning    = api.StatusRunning
	StatusPaused     = api.StatusPaused
	StatusSuspended  = api.StatusSuspended
	StatusCompleted  = api.StatusCompleted
	StatusFailed     = api.StatusFailed
	StatusRolledBack = api.StatusRolledBack
)

const (
	EventWorkflowStart    = api.EventWorkflowStart
	EventWorkflowResume   = api.EventWorkflowResume
	EventWorkflowSuspend  = api.EventWorkflowSuspend
	EventWorkflowComplete = api.EventWorkflowComplete
	EventWorkflowError    = api.EventWorkflowError
	EventStepStart        = api.EventStepStart
	EventStepComplete     = api.EventStepComplete
	EventStepSkip         = api.EventStepSkip
	EventStepError        = api.EventStepError
	EventStepRetry        = api.EventStepRetry
	EventStepCompensate   = api.EventStepCompensate
)

// Option customizes an engine built by the constructors in this package.
type Option func(*options)

type options struct {
	cfg      Config
	logger   *slog.Logger
	observer Observer
	sink     TraceSink
	worker   worker.Config
}

func buildOptions(opts []Option) options {
	o := options{
		cfg: DefaultConfig(),
		worker: worker.Config{
			MaxAttempts: 3,
			Backoff:     50 * time.Millisecond,
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = o.cfg.Logger()
	}
	if o.worker.Logger == nil {
		o.worker.Logger = o.logger
	}
	return o
}

// WithConfig replaces DefaultConfig. The logger is derived from cfg unless
// WithLogger is also given.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithObserver sets the lifecycle observer. Use NewCompositeObserver to
// attach several.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithTraceSink sets the trace sink.
func WithTraceSink(sink TraceSink) Option {
	return func(o *options) { o.sink = sink }
}

// WithWorkerConfig sets the worker configuration used by LocalRunner and
// NewSQLiteBundle. It has no effect on a bare engine.
func WithWorkerConfig(cfg worker.Config) Option {
	return func(o *options) { o.worker = cfg }
}

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewEngine returns an Engine over the given store. A nil store means an
// in-memory store.
func NewEngine(store Store, opts ...Option) Engine {
	return newEngine(store, buildOptions(opts))
}

func newEngine(store Store, o options) Engine {
	return engine.NewEngineWithConfig(engine.Config{
		Store:     store,
		Executor:  o.cfg.executor(),
		Observer:  o.observer,
		TraceSink: o.sink,
		Logger:    o.logger,
	})
}

// NewInMemoryEngine returns an Engine backed entirely by in-memory state.
// Nothing survives the process.
func NewInMemoryEngine(opts ...Option) Engine {
	return NewEngine(persistence.NewInMemoryStore(), opts...)
}

// NewSQLiteEngine returns an Engine that persists workflow state in a
// SQLite database. The schema is created if missing.
func NewSQLiteEngine(db *sql.DB, opts ...Option) (Engine, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(store, opts...), nil
}

// NewPostgresEngine returns an Engine that persists workflow state in
// PostgreSQL. Use OpenPostgres to obtain a pool with the pgx driver.
func NewPostgresEngine(db *sql.DB, opts ...Option) (Engine, error) {
	store, err := persistence.NewPostgresStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(store, opts...), nil
}

// OpenPostgres opens and pings a PostgreSQL pool using the pgx driver.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	return persistence.OpenPostgres(ctx, dsn)
}

// NewRedisEngine returns an Engine that persists workflow state in Redis
// under the "flux:" key prefix. Call Init to verify connectivity.
func NewRedisEngine(client *redis.Client, opts ...Option) Engine {
	return NewEngine(persistence.NewRedisStore(client, ""), opts...)
}

// NewMongoEngine returns an Engine that persists workflow state in the
// flux.workflow_states collection. Call Init to create indexes.
func NewMongoEngine(client *mongo.Client, opts ...Option) Engine {
	return NewEngine(persistence.NewMongoStore(client, "", ""), opts...)
}

// ErrRecoveryUnsupported is returned by RecoverStuck for engines that do
// not implement recovery.
var ErrRecoveryUnsupported = errors.New("engine does not support stuck workflow recovery")

type stuckRecoverer interface {
	RecoverStuck(ctx context.Context) (int, error)
}

// RecoverStuck marks workflows persisted as running, typically left behind
// by a crash, as failed so they can be re-entered with Resume or
// RetryStep. Call it once at startup, before any worker runs. It returns
// the number of workflows updated.
func RecoverStuck(ctx context.Context, eng Engine) (int, error) {
	r, ok := eng.(stuckRecoverer)
	if !ok {
		return 0, ErrRecoveryUnsupported
	}
	return r.RecoverStuck(ctx)
}
