// Package store implements the Repository Store (C1): a per-repository,
// on-disk layout for file-hash catalogs, chunk metadata, and vector
// shards, isolated by repository_id and guarded by an advisory write lock.
package store

// SchemaVersion is the current on-disk schema major version, stamped into
// a repository's metadata when it is created. This package has no
// migration code and does not compare the stamped version on Open.
const SchemaVersion = 1

// FileRecord is the stored (hash, size, mtime) catalog entry for one file,
// keyed by RelativePath within a repository.
type FileRecord struct {
	RelativePath string `json:"relative_path"`
	SizeBytes    int64  `json:"size_bytes"`
	// LastModifiedUnixNano is the file's mtime, recorded with nanosecond
	// precision so the Change Detector's 1ms quick-check tolerance has
	// something finer than itself to compare against.
	LastModifiedUnixNano int64  `json:"last_modified_unix_nano"`
	ContentHash           string `json:"content_hash"`
}

// Chunk is a contiguous, size-bounded slice of a file's text, the unit of
// embedding and retrieval.
type Chunk struct {
	ChunkID      string `json:"chunk_id"`
	RelativePath string `json:"relative_path"`
	FileHash     string `json:"file_hash"`
	ByteStart    int    `json:"byte_start"`
	ByteEnd      int    `json:"byte_end"`
	LineStart    int    `json:"line_start"`
	LineEnd      int    `json:"line_end"`
	Text         string `json:"text"`
	TokenEstimate int   `json:"token_estimate"`

	// Metadata is populated by the Metadata Extractor Registry (C10). It is
	// non-owning and recomputed whenever Text changes; absence is not an
	// error.
	Metadata *ExtractedMetadata `json:"metadata,omitempty"`
}

// ExtractedMetadata is the opaque, per-chunk enrichment produced by a
// MetadataExtractor: imports, symbols, and a docstring, when the
// extractor for the chunk's language could determine them.
type ExtractedMetadata struct {
	Imports    []string `json:"imports,omitempty"`
	Symbols    []Symbol `json:"symbols,omitempty"`
	Docstring  string   `json:"docstring,omitempty"`
}

// Symbol is one named declaration an extractor found overlapping a chunk.
type Symbol struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	DocComment string `json:"doc_comment,omitempty"`
}

// VectorRecord is one chunk's dense embedding, alongside the provider and
// model identity that produced it.
type VectorRecord struct {
	ChunkID    string
	Dimension  int
	Values     []float32
	ProviderID string
	ModelID    string
}

// Metadata is the Repository Metadata record: process-independent facts
// about a repository, mutated only by the Index Writer and Change
// Detector.
type Metadata struct {
	RepositoryID   string `json:"repository_id"`
	RootPath       string `json:"root_path"`
	CreatedAt      int64  `json:"created_at"`
	LastIndexedAt  int64  `json:"last_indexed_at"`
	LastCleanupAt  int64  `json:"last_cleanup_at"`
	TotalChunks    int    `json:"total_chunks"`
	ProviderID     string `json:"provider_id"`
	ModelID        string `json:"model_id"`
	Dimension      int    `json:"dimension"`
	SchemaVersion  int    `json:"schema_version"`
	// CommittedChunkCount is the number of chunk records known to have a
	// matching vector-shard append completed, used to reconcile orphaned
	// vector appends left by a crash between the two writes.
	CommittedChunkCount int `json:"committed_chunk_count"`
}

// Catalog is the in-memory, atomically-persisted file-hash catalog:
// Map<relative_path, FileRecord>.
type Catalog struct {
	Version int                    `json:"version"`
	Files   map[string]*FileRecord `json:"files"`
}

func newCatalog() *Catalog {
	return &Catalog{Version: SchemaVersion, Files: make(map[string]*FileRecord)}
}
