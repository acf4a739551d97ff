package indexer

import (
	"sync"
	"time"

	"github.com/aman-cerp/semindex/internal/pipeline"
	"github.com/aman-cerp/semindex/internal/store"
	"github.com/aman-cerp/semindex/internal/telemetry"
)

// DefaultWriteBatchSize and DefaultWriteFlushInterval are the Index
// Writer's buffering defaults: flush whichever comes first.
const (
	DefaultWriteBatchSize     = 200
	DefaultWriteFlushInterval = time.Second
)

// Writer implements the Index Writer (C8): it durably commits the
// Embedding Pipeline's (chunk, vector) results, buffering across several
// Results before each store.Handle.WriteBatch call so a fast embedding
// provider doesn't force one fsync per batch.
type Writer struct {
	h             *store.Handle
	sink          telemetry.Sink
	batchSize     int
	flushInterval time.Duration

	mu             sync.Mutex
	pendingChunks  []store.Chunk
	pendingVectors []store.VectorRecord
	lastFlush      time.Time

	filesProcessed int
	chunksWritten  int
	bytesWritten   int64
}

// NewWriter builds a Writer over an open writer Handle. A zero batchSize
// or flushInterval falls back to the documented defaults.
func NewWriter(h *store.Handle, sink telemetry.Sink, batchSize int, flushInterval time.Duration) *Writer {
	if batchSize <= 0 {
		batchSize = DefaultWriteBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = DefaultWriteFlushInterval
	}
	return &Writer{
		h:             h,
		sink:          sink,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		lastFlush:     time.Now(),
	}
}

// WriteResult stages one pipeline Result's chunks and vectors, stamping
// the repository's provider identity on the first call, and flushing to
// the store once the buffer reaches batchSize or flushInterval has
// elapsed since the last flush.
func (w *Writer) WriteResult(res pipeline.Result) error {
	if len(res.Items) == 0 {
		return nil
	}

	dimension := 0
	if len(res.Vectors) > 0 {
		dimension = len(res.Vectors[0])
	}
	if err := w.h.StampProviderIfUnset(res.ProviderID, res.ModelID, dimension); err != nil {
		return err
	}

	w.mu.Lock()
	for i, item := range res.Items {
		w.pendingChunks = append(w.pendingChunks, item.Chunk)
		w.pendingVectors = append(w.pendingVectors, store.VectorRecord{
			ChunkID:    item.Chunk.ChunkID,
			Dimension:  len(res.Vectors[i]),
			Values:     res.Vectors[i],
			ProviderID: res.ProviderID,
			ModelID:    res.ModelID,
		})
		w.bytesWritten += int64(len(item.Chunk.Text))
	}
	due := len(w.pendingChunks) >= w.batchSize || time.Since(w.lastFlush) >= w.flushInterval
	w.mu.Unlock()

	if due {
		return w.Flush()
	}
	return nil
}

// Flush commits any buffered chunks and vectors to the store, regardless
// of whether the batch or flush-interval threshold has been reached.
// Callers must call Flush once after the last WriteResult to commit a
// partial trailing batch.
func (w *Writer) Flush() error {
	w.mu.Lock()
	chunks := w.pendingChunks
	vectors := w.pendingVectors
	w.pendingChunks = nil
	w.pendingVectors = nil
	w.lastFlush = time.Now()
	w.mu.Unlock()

	if len(chunks) == 0 {
		return nil
	}
	if err := w.h.WriteBatch(chunks, vectors); err != nil {
		return err
	}

	w.mu.Lock()
	w.chunksWritten += len(chunks)
	w.mu.Unlock()
	return nil
}

// MarkFileProcessed increments the files-processed counter, called once a
// file's full chunk set has been committed and its catalog entry updated.
func (w *Writer) MarkFileProcessed() {
	w.mu.Lock()
	w.filesProcessed++
	w.mu.Unlock()
}

// Progress returns a KindProgress event snapshotting the writer's
// counters, for periodic emission by the orchestrator.
func (w *Writer) Progress(repositoryID string, elapsed time.Duration, etaMS int64, skippedFiles int) telemetry.Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	return telemetry.Event{
		Kind:           telemetry.KindProgress,
		RepositoryID:   repositoryID,
		FilesProcessed: w.filesProcessed,
		ChunksWritten:  w.chunksWritten,
		BytesWritten:   w.bytesWritten,
		ElapsedMS:      elapsed.Milliseconds(),
		ETAMS:          etaMS,
		SkippedFiles:   skippedFiles,
	}
}
