package indexer

import (
	"context"
	"time"

	"github.com/aman-cerp/semindex/internal/chunk"
	"github.com/aman-cerp/semindex/internal/metadata"
	"github.com/aman-cerp/semindex/internal/pipeline"
	"github.com/aman-cerp/semindex/internal/scanner"
	"github.com/aman-cerp/semindex/internal/store"
	"github.com/aman-cerp/semindex/internal/telemetry"
)

// DefaultFeedBufferSize bounds the channel feeding chunked items into the
// Embedding Pipeline; it is unrelated to the pipeline's own internal
// stage capacities and exists only to let the feeding goroutine run
// ahead of a slow Dispatcher without blocking on every send.
const DefaultFeedBufferSize = 16

// RunConfig bundles the per-run parameters an index orchestration needs on
// top of the open repository Handle.
type RunConfig struct {
	ScanOptions        scanner.Options
	ChunkParams        chunk.Params
	Registry           *metadata.Registry // nil uses metadata.Default()
	Pipeline           *pipeline.Pipeline
	WriteBatchSize     int
	WriteFlushInterval time.Duration
	ProgressEvery      time.Duration // how often to emit KindProgress; 0 disables
	Sink               telemetry.Sink
}

// Summary is one index run's completion report.
type Summary struct {
	Report         Report
	ScanStats      scanner.Stats
	FilesProcessed int
	ChunksWritten  int
	BytesWritten   int64
	Duration       time.Duration
}

// Run executes one full index pass over rootPath: walk, classify against
// h's catalog, remove the owned chunks of every modified or deleted file,
// chunk and embed the added and modified files, and commit the results.
// It is the orchestrator the Change Detector (C4), Chunker (C3), Metadata
// Extractor Registry (C10), Embedding Pipeline (C6), and Index Writer (C8)
// are wired through; none of those packages call each other directly.
func Run(ctx context.Context, h *store.Handle, rootPath string, cfg RunConfig) (Summary, error) {
	start := time.Now()
	registry := cfg.Registry
	if registry == nil {
		registry = metadata.Default()
	}

	telemetry.Emit(cfg.Sink, telemetry.Event{Kind: telemetry.KindStart, RepositoryID: h.ID()})

	var scanStats scanner.Stats
	var entries []scanner.Entry
	for e := range scanner.Walk(ctx, rootPath, cfg.ScanOptions, &scanStats) {
		entries = append(entries, e)
	}
	entryByPath := make(map[string]scanner.Entry, len(entries))
	for _, e := range entries {
		entryByPath[e.RelativePath] = e
	}

	report, err := Classify(h, entries)
	if err != nil {
		return Summary{}, err
	}

	// Files confirmed unchanged only via the hash fallback have a stale
	// (size, mtime) in the catalog; refresh it now so the next run
	// converges back to the cheap quick-check instead of rehashing again.
	for _, r := range report.Unchanged {
		if !r.StaleRecord {
			continue
		}
		entry, ok := entryByPath[r.RelativePath]
		if !ok {
			continue
		}
		h.PutFileRecord(store.FileRecord{
			RelativePath:         r.RelativePath,
			SizeBytes:            entry.Size,
			LastModifiedUnixNano: entry.ModTime.UnixNano(),
			ContentHash:          r.ContentHash,
		})
	}

	for _, r := range report.Deleted {
		if err := h.Remove(h.ChunkIDsForPath(r.RelativePath)); err != nil {
			return Summary{}, err
		}
		h.DeleteFileRecord(r.RelativePath)
	}
	for _, r := range report.Modified {
		if err := h.Remove(h.ChunkIDsForPath(r.RelativePath)); err != nil {
			return Summary{}, err
		}
	}

	writer := NewWriter(h, cfg.Sink, cfg.WriteBatchSize, cfg.WriteFlushInterval)
	skippedFiles := len(report.Skipped)

	toIndex := make([]Result, 0, len(report.Added)+len(report.Modified))
	toIndex = append(toIndex, report.Added...)
	toIndex = append(toIndex, report.Modified...)

	if len(toIndex) == 0 {
		if err := finishRun(h, writer); err != nil {
			return Summary{}, err
		}
		telemetry.Emit(cfg.Sink, writer.Progress(h.ID(), time.Since(start), 0, skippedFiles))
		return Summary{Report: report, ScanStats: scanStats, Duration: time.Since(start)}, nil
	}

	items, remaining, err := buildItems(rootPath, toIndex, entryByPath, registry, cfg.ChunkParams, cfg.Sink)
	if err != nil {
		return Summary{}, err
	}

	// Files with zero chunks (empty or whitespace-only) never enter the
	// pipeline; finalize their catalog entry immediately.
	for path, n := range remaining {
		if n == 0 {
			finalizeFile(h, writer, path, toIndex, entryByPath)
			delete(remaining, path)
		}
	}

	in := make(chan pipeline.Item, DefaultFeedBufferSize)
	go func() {
		defer close(in)
		for _, it := range items {
			select {
			case in <- it:
			case <-ctx.Done():
				return
			}
		}
	}()

	out, errs := cfg.Pipeline.Run(ctx, in)

	var lastProgress time.Time
	for res := range out {
		if err := writer.WriteResult(res); err != nil {
			return Summary{}, err
		}
		var completedPaths []string
		for _, item := range res.Items {
			path := item.Chunk.RelativePath
			remaining[path]--
			if remaining[path] == 0 {
				completedPaths = append(completedPaths, path)
			}
		}
		if len(completedPaths) > 0 {
			// Flush before updating the catalog: a file's record must never
			// claim a hash whose chunks haven't actually reached the store,
			// or a crash here would silently lose that file's chunks on the
			// next run's quick-check.
			if err := writer.Flush(); err != nil {
				return Summary{}, err
			}
			for _, path := range completedPaths {
				finalizeFile(h, writer, path, toIndex, entryByPath)
			}
		}
		if cfg.ProgressEvery > 0 && time.Since(lastProgress) >= cfg.ProgressEvery {
			telemetry.Emit(cfg.Sink, writer.Progress(h.ID(), time.Since(start), 0, skippedFiles))
			lastProgress = time.Now()
		}
	}
	if err := drainPipelineErr(errs); err != nil {
		return Summary{}, err
	}

	if err := finishRun(h, writer); err != nil {
		return Summary{}, err
	}

	done := writer.Progress(h.ID(), time.Since(start), 0, skippedFiles)
	done.Kind = telemetry.KindDone
	telemetry.Emit(cfg.Sink, done)

	return Summary{
		Report:         report,
		ScanStats:      scanStats,
		FilesProcessed: done.FilesProcessed,
		ChunksWritten:  done.ChunksWritten,
		BytesWritten:   done.BytesWritten,
		Duration:       time.Since(start),
	}, nil
}

// buildItems reads and chunks every file in toIndex up front, so the
// per-file remaining-chunk-count bookkeeping the caller does while
// draining the pipeline's output needs no further synchronization: items
// and remaining are both fully built before the feeding goroutine starts.
func buildItems(rootPath string, toIndex []Result, entryByPath map[string]scanner.Entry, registry *metadata.Registry, params chunk.Params, sink telemetry.Sink) ([]pipeline.Item, map[string]int, error) {
	items := make([]pipeline.Item, 0, len(toIndex)*4)
	remaining := make(map[string]int, len(toIndex))

	for _, r := range toIndex {
		entry, ok := entryByPath[r.RelativePath]
		if !ok {
			continue // classified from a catalog record the walk no longer sees; treated as deleted elsewhere
		}
		text, err := scanner.Read(entry.AbsolutePath)
		if err != nil {
			telemetry.Emit(sink, telemetry.Event{Kind: telemetry.KindError, Path: r.RelativePath, Err: err})
			continue
		}

		chunks := chunk.Split(r.RelativePath, text, params)
		remaining[r.RelativePath] = len(chunks)

		for _, c := range chunks {
			md, err := registry.ExtractForPath(r.RelativePath, c.Text, c.LineStart)
			if err != nil {
				md = nil // extraction is best-effort; absence is never fatal
			}
			sc := store.Chunk{
				ChunkID:       c.ChunkID,
				RelativePath:  c.RelativePath,
				FileHash:      r.ContentHash,
				ByteStart:     c.ByteStart,
				ByteEnd:       c.ByteEnd,
				LineStart:     c.LineStart,
				LineEnd:       c.LineEnd,
				Text:          c.Text,
				TokenEstimate: c.TokenEstimate,
				Metadata:      md,
			}
			items = append(items, pipeline.Item{Chunk: sc, Text: c.Text})
		}
	}

	return items, remaining, nil
}

// finalizeFile upserts a file's catalog record once every chunk it
// produced has a committed vector, and bumps the writer's
// files-processed counter. Doing this only after every owned chunk lands
// keeps a crash mid-run from leaving the catalog pointing at a hash whose
// chunks were never fully written.
func finalizeFile(h *store.Handle, writer *Writer, path string, toIndex []Result, entryByPath map[string]scanner.Entry) {
	entry, ok := entryByPath[path]
	if !ok {
		return
	}
	var hash string
	for _, r := range toIndex {
		if r.RelativePath == path {
			hash = r.ContentHash
			break
		}
	}
	h.PutFileRecord(store.FileRecord{
		RelativePath:         path,
		SizeBytes:            entry.Size,
		LastModifiedUnixNano: entry.ModTime.UnixNano(),
		ContentHash:          hash,
	})
	writer.MarkFileProcessed()
}

func finishRun(h *store.Handle, writer *Writer) error {
	if err := writer.Flush(); err != nil {
		return err
	}
	h.MarkIndexed(time.Now())
	if err := h.SaveMetadata(); err != nil {
		return err
	}
	return h.FlushCatalog()
}

func drainPipelineErr(errs <-chan error) error {
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
