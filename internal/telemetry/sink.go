package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/mattn/go-isatty"
)

// SlogSink returns a Sink that logs each Event as a structured slog record.
// Grounded on the project's ambient logging stack: one structured record per
// event, fields named after the Event's own fields so they survive JSON
// encoding unchanged.
func SlogSink(logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return func(e Event) {
		attrs := []any{
			slog.String("kind", string(e.Kind)),
			slog.String("repository_id", e.RepositoryID),
		}
		switch e.Kind {
		case KindFile:
			attrs = append(attrs, slog.String("path", e.Path))
		case KindBatch, KindRetry, KindFallback:
			attrs = append(attrs,
				slog.Int("batch_size", e.BatchSize),
				slog.String("provider", e.Provider),
				slog.String("model_id", e.ModelID),
				slog.Int("attempt", e.Attempt),
			)
		case KindProgress, KindDone:
			attrs = append(attrs,
				slog.Int("files_processed", e.FilesProcessed),
				slog.Int("chunks_written", e.ChunksWritten),
				slog.Int64("bytes_written", e.BytesWritten),
				slog.Int64("elapsed_ms", e.ElapsedMS),
				slog.Int64("eta_ms", e.ETAMS),
				slog.Int("skipped_files", e.SkippedFiles),
			)
		case KindError:
			if e.Err != nil {
				attrs = append(attrs, slog.String("error", e.Err.Error()))
			}
		}
		if e.Message != "" {
			attrs = append(attrs, slog.String("message", e.Message))
		}

		level := slog.LevelInfo
		switch e.Kind {
		case KindError:
			level = slog.LevelError
		case KindRetry, KindFallback:
			level = slog.LevelWarn
		}
		logger.Log(context.Background(), level, "index event", attrs...)
	}
}

// TerminalSink returns a Sink that renders a one-line progress update to w
// for KindProgress/KindDone events, and a line per KindFile in verbose mode.
// It degrades to plain, non-carriage-return output when w is not a TTY,
// following the isatty-gated rendering idiom used throughout the corpus.
func TerminalSink(w *os.File, verbose bool) Sink {
	interactive := w != nil && isatty.IsTerminal(w.Fd())
	return func(e Event) {
		switch e.Kind {
		case KindFile:
			if verbose {
				fmt.Fprintf(w, "  %s\n", e.Path)
			}
		case KindProgress:
			line := fmt.Sprintf("indexed %d files, %d chunks (%dms elapsed)",
				e.FilesProcessed, e.ChunksWritten, e.ElapsedMS)
			if interactive {
				fmt.Fprintf(w, "\r%s", line)
			} else {
				fmt.Fprintln(w, line)
			}
		case KindDone:
			if interactive {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "done: %d files, %d chunks, %d skipped (%dms)\n",
				e.FilesProcessed, e.ChunksWritten, e.SkippedFiles, e.ElapsedMS)
		case KindFallback:
			fmt.Fprintf(w, "falling back from provider failure to %s\n", e.Provider)
		case KindError:
			if e.Err != nil {
				fmt.Fprintf(w, "error: %v\n", e.Err)
			}
		}
	}
}

// defaultSink is a module-scoped thin default, constructed lazily on first
// use and replaceable via SetDefault for tests. This replaces the
// process-wide global handler pattern the source used: dependencies are
// still passed explicitly everywhere that matters, and this default exists
// purely as a convenience for call sites that don't care.
var (
	defaultSink   atomic.Pointer[Sink]
	defaultSinkMu sync.Mutex
)

// Default returns the module-scoped default Sink, constructing a no-op one
// on first use.
func Default() Sink {
	if p := defaultSink.Load(); p != nil {
		return *p
	}
	defaultSinkMu.Lock()
	defer defaultSinkMu.Unlock()
	if p := defaultSink.Load(); p != nil {
		return *p
	}
	var noop Sink = func(Event) {}
	defaultSink.Store(&noop)
	return noop
}

// SetDefault replaces the module-scoped default Sink. Intended for use in
// tests and in command-surface wiring at startup.
func SetDefault(s Sink) {
	defaultSink.Store(&s)
}
