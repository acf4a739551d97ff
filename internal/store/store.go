package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	ierrors "github.com/aman-cerp/semindex/internal/errors"
)

// DefaultShardSizeBytes bounds a vector shard's raw value bytes before the
// writer rolls to a new shard file.
const DefaultShardSizeBytes = 64 * 1024 * 1024

// Handle is an open repository: one directory, one in-memory metadata and
// catalog snapshot, and (for writers) one held advisory lock.
type Handle struct {
	baseDir string
	id      string
	dir     string
	writer  bool
	lock    *writeLock

	mu         sync.Mutex
	meta       *Metadata
	catalog    *Catalog
	pathIndex  map[string][]string // relative_path -> owned chunk_ids
	tombstones map[string]struct{}

	shardSizeBytes      int64
	currentChunkShard    int
	currentVectorShard   int
}

func repoDir(baseDir, repositoryID string) string {
	return filepath.Join(baseDir, "repositories", repositoryID)
}

// Create derives a repository_id from rootPath, creates its on-disk layout,
// and returns an opened writer handle. Returns ErrCodeRepositoryExists if
// the directory already exists.
func Create(baseDir, rootPath string) (*Handle, error) {
	id, err := RepositoryID(rootPath)
	if err != nil {
		return nil, ierrors.Wrap(ierrors.ErrCodeInvalidPath, err)
	}
	dir := repoDir(baseDir, id)
	if _, err := os.Stat(dir); err == nil {
		return nil, ierrors.New(ierrors.ErrCodeRepositoryExists, fmt.Sprintf("repository %s already exists", id), nil)
	}

	for _, sub := range []string{"chunks", "vectors"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, ierrors.Wrap(ierrors.ErrCodeDiskFull, err)
		}
	}

	now := time.Now().UnixMilli()
	h := &Handle{
		baseDir: baseDir,
		id:      id,
		dir:     dir,
		writer:  true,
		meta: &Metadata{
			RepositoryID:  id,
			RootPath:      rootPath,
			CreatedAt:     now,
			SchemaVersion: SchemaVersion,
		},
		catalog:        newCatalog(),
		pathIndex:      make(map[string][]string),
		tombstones:     make(map[string]struct{}),
		shardSizeBytes: DefaultShardSizeBytes,
	}

	if err := h.acquireLock(); err != nil {
		return nil, err
	}
	if err := h.SaveMetadata(); err != nil {
		h.lock.Unlock()
		return nil, err
	}
	if err := h.saveCatalog(); err != nil {
		h.lock.Unlock()
		return nil, err
	}
	return h, nil
}

// Open opens an existing repository. Writers acquire the advisory lock;
// readers bypass it and must tolerate a concurrent writer appending.
func Open(baseDir, repositoryID string, writer bool) (*Handle, error) {
	dir := repoDir(baseDir, repositoryID)
	if _, err := os.Stat(dir); err != nil {
		return nil, ierrors.New(ierrors.ErrCodeRepositoryNotFound, fmt.Sprintf("repository %s not found", repositoryID), err)
	}

	h := &Handle{
		baseDir:        baseDir,
		id:             repositoryID,
		dir:            dir,
		writer:         writer,
		pathIndex:      make(map[string][]string),
		tombstones:     make(map[string]struct{}),
		shardSizeBytes: DefaultShardSizeBytes,
	}

	if writer {
		if err := h.acquireLock(); err != nil {
			return nil, err
		}
	}

	meta, err := h.loadMetadata()
	if err != nil {
		if writer {
			h.lock.Unlock()
		}
		return nil, err
	}
	h.meta = meta

	cat, err := h.loadCatalog()
	if err != nil {
		if writer {
			h.lock.Unlock()
		}
		return nil, err
	}
	h.catalog = cat

	if err := h.loadPathIndex(); err != nil {
		if writer {
			h.lock.Unlock()
		}
		return nil, err
	}
	if err := h.loadTombstones(); err != nil {
		if writer {
			h.lock.Unlock()
		}
		return nil, err
	}

	if writer {
		if err := h.reconcile(); err != nil {
			h.lock.Unlock()
			return nil, err
		}
	}

	h.currentChunkShard = h.latestShardIndex("chunks", ".jsonl")
	h.currentVectorShard = h.latestShardIndex("vectors", ".bin")

	return h, nil
}

func (h *Handle) acquireLock() error {
	h.lock = newWriteLock(h.dir)
	ok, err := h.lock.TryLock()
	if err != nil {
		return err
	}
	if !ok {
		return ierrors.LockHeldError(h.id, nil)
	}
	return nil
}

// Close releases the writer lock, if held. Readers are a no-op.
func (h *Handle) Close() error {
	if h.writer && h.lock != nil {
		return h.lock.Unlock()
	}
	return nil
}

// ID returns the repository_id.
func (h *Handle) ID() string { return h.id }

// Dir returns the repository's on-disk directory.
func (h *Handle) Dir() string { return h.dir }

// Metadata returns a copy of the current in-memory Repository Metadata.
func (h *Handle) Metadata() Metadata {
	h.mu.Lock()
	defer h.mu.Unlock()
	return *h.meta
}

// SaveMetadata atomically persists Repository Metadata via
// temp-file-then-rename.
func (h *Handle) SaveMetadata() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return atomicWriteJSON(filepath.Join(h.dir, "metadata.json"), h.meta)
}

func (h *Handle) loadMetadata() (*Metadata, error) {
	var m Metadata
	path := filepath.Join(h.dir, "metadata.json")
	if err := readJSON(path, &m); err != nil {
		return nil, ierrors.Wrap(ierrors.ErrCodeFileCorrupt, err)
	}
	return &m, nil
}

func (h *Handle) saveCatalog() error {
	return atomicWriteJSON(filepath.Join(h.dir, "file_hashes.json"), h.catalog)
}

func (h *Handle) loadCatalog() (*Catalog, error) {
	path := filepath.Join(h.dir, "file_hashes.json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return newCatalog(), nil
	}
	var c Catalog
	if err := readJSON(path, &c); err != nil {
		return nil, ierrors.Wrap(ierrors.ErrCodeFileCorrupt, err)
	}
	if c.Files == nil {
		c.Files = make(map[string]*FileRecord)
	}
	return &c, nil
}

// StampProviderIfUnset stamps provider_id/model_id/dimension on first write
// after repository creation. On subsequent calls it asserts equality and
// returns a fatal DimensionMismatch/config error on conflict, per the
// reject-and-require-explicit-reset policy.
func (h *Handle) StampProviderIfUnset(providerID, modelID string, dimension int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.meta.ProviderID == "" && h.meta.ModelID == "" && h.meta.Dimension == 0 {
		h.meta.ProviderID = providerID
		h.meta.ModelID = modelID
		h.meta.Dimension = dimension
		return nil
	}
	if h.meta.Dimension != dimension {
		return ierrors.DimensionMismatchError(h.id, h.meta.Dimension, dimension)
	}
	if h.meta.ProviderID != providerID || h.meta.ModelID != modelID {
		return ierrors.New(ierrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("repository is stamped for provider=%s model=%s, got provider=%s model=%s",
				h.meta.ProviderID, h.meta.ModelID, providerID, modelID), nil).
			WithSuggestion("reset the index or choose a new repository")
	}
	return nil
}

// MarkIndexed stamps last_indexed_at, called once an index run completes.
func (h *Handle) MarkIndexed(at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.meta.LastIndexedAt = at.UnixMilli()
}

// Dimension returns the repository's stamped embedding dimension, or 0 if
// unstamped.
func (h *Handle) Dimension() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.meta.Dimension
}

// GetFileRecord returns the stored FileRecord for a path, if any.
func (h *Handle) GetFileRecord(relativePath string) (*FileRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fr, ok := h.catalog.Files[relativePath]
	return fr, ok
}

// AllFileRecords returns a snapshot of every stored FileRecord, keyed by
// relative_path.
func (h *Handle) AllFileRecords() map[string]*FileRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]*FileRecord, len(h.catalog.Files))
	for k, v := range h.catalog.Files {
		cp := *v
		out[k] = &cp
	}
	return out
}

// PutFileRecord upserts a FileRecord in the in-memory catalog. Called by
// the orchestrator after successfully indexing or re-hashing a file; it
// writes nothing to disk, and FlushCatalog persists the catalog at the
// end of a run.
func (h *Handle) PutFileRecord(fr FileRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := fr
	h.catalog.Files[fr.RelativePath] = &cp
}

// DeleteFileRecord removes a FileRecord for a path that no longer exists on
// disk.
func (h *Handle) DeleteFileRecord(relativePath string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.catalog.Files, relativePath)
	delete(h.pathIndex, relativePath)
}

// FlushCatalog atomically persists the in-memory file-hash catalog. Called
// at the end of an index run; an intermediate crash loses only that run's
// hash updates, and re-running the indexer recovers correctness.
func (h *Handle) FlushCatalog() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.saveCatalog()
}

// ChunkIDsForPath returns the chunk_ids currently owned by a file, using the
// auxiliary path index the Index Writer maintains alongside the chunk
// shards.
func (h *Handle) ChunkIDsForPath(relativePath string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := h.pathIndex[relativePath]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

func atomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ierrors.Wrap(ierrors.ErrCodeInternal, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return ierrors.Wrap(ierrors.ErrCodeDiskFull, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return ierrors.Wrap(ierrors.ErrCodeDiskFull, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Delete recursively removes a repository's on-disk directory.
func Delete(baseDir, repositoryID string) error {
	dir := repoDir(baseDir, repositoryID)
	if err := os.RemoveAll(dir); err != nil {
		return ierrors.Wrap(ierrors.ErrCodeFilePermission, err)
	}
	return nil
}

// List returns the repository_ids present under baseDir.
func List(baseDir string) ([]string, error) {
	root := filepath.Join(baseDir, "repositories")
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, ierrors.Wrap(ierrors.ErrCodeFilePermission, err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}
