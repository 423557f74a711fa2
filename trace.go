package flux

import (
	"database/sql"

	"github.com/petrijr/flux/internal/trace"
	"github.com/petrijr/flux/pkg/api"
)

// Trace sinks re-exported from internal/trace.
type (
	FileTraceSink   = trace.FileSink
	SQLiteTraceSink = trace.SQLiteSink
	OTelTraceSink   = trace.OTelSink
	MemoryTraceSink = trace.Memory
)

// NewFileTraceSink writes one JSON object per event to path, truncating
// the file first.
func NewFileTraceSink(path string) (*FileTraceSink, error) {
	return trace.NewFileSink(path)
}

// ReadTraceFile reads events written by a FileTraceSink, optionally keeping
// only the given types.
func ReadTraceFile(path string, types ...api.EventType) ([]TraceEvent, error) {
	return trace.ReadFile(path, types...)
}

// NewSQLiteTraceSink appends events to the trace_events table of db.
func NewSQLiteTraceSink(db *sql.DB) (*SQLiteTraceSink, error) {
	return trace.NewSQLiteSink(db)
}

// NewOTelTraceSink maps events to spans using the global OpenTelemetry
// tracer provider.
func NewOTelTraceSink() *OTelTraceSink {
	return trace.NewOTelSink()
}

// NewMemoryTraceSink keeps events in memory. Intended for tests.
func NewMemoryTraceSink() *MemoryTraceSink {
	return trace.NewMemory()
}

// MultiTraceSink fans events out to every non-nil sink.
func MultiTraceSink(sinks ...TraceSink) TraceSink {
	return trace.NewMulti(sinks...)
}
