// Package telemetry implements the Progress & Telemetry Sink: a single
// typed event channel fed by the indexing and query components, observed
// by zero or more sinks (structured logs, a terminal renderer, tests).
package telemetry

// Kind identifies the variant of an Event.
type Kind string

const (
	KindStart    Kind = "start"
	KindFile     Kind = "file"
	KindBatch    Kind = "batch"
	KindRetry    Kind = "retry"
	KindFallback Kind = "fallback"
	KindProgress Kind = "progress"
	KindDone     Kind = "done"
	KindError    Kind = "error"
)

// Event is the tagged union flowing out of an index or query run.
// Only the fields relevant to Kind are populated; the rest are zero.
type Event struct {
	Kind Kind

	// RepositoryID identifies the repository the event pertains to.
	RepositoryID string

	// Path is set for KindFile events.
	Path string

	// BatchSize, Provider, ModelID are set for KindBatch/KindRetry/KindFallback.
	BatchSize int
	Provider  string
	ModelID   string

	// Attempt is the retry attempt number for KindRetry.
	Attempt int

	// FilesProcessed, ChunksWritten, BytesWritten, ElapsedMS, ETAMS are set
	// for KindProgress, mirroring the Index Writer's completion report.
	FilesProcessed int
	ChunksWritten  int
	BytesWritten   int64
	ElapsedMS      int64
	ETAMS          int64

	// SkippedFiles is the running count of per-file errors swallowed by C2.
	SkippedFiles int

	// Err carries the error for KindError events.
	Err error

	// Message is a free-form human-readable description, used sparingly.
	Message string
}

// Sink receives Events. A nil Sink is legal everywhere a Sink is accepted;
// callers should use Emit rather than invoking a Sink directly to get that
// nil-safety for free.
type Sink func(Event)

// Emit calls sink(e) if sink is non-nil. Every producer in the pipeline
// should route through Emit rather than calling a Sink directly.
func Emit(sink Sink, e Event) {
	if sink == nil {
		return
	}
	sink(e)
}

// Multi fans a single Event out to several sinks, skipping nil entries.
func Multi(sinks ...Sink) Sink {
	live := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return func(e Event) {
		for _, s := range live {
			s(e)
		}
	}
}
