package mcp

// IndexInput defines the input schema for the index tool.
type IndexInput struct {
	Path  string `json:"path,omitempty" jsonschema:"repository path to index; defaults to the server's project root"`
	Force bool   `json:"force,omitempty" jsonschema:"clear existing index data and rebuild from scratch"`
}

// IndexOutput defines the output schema for the index tool.
type IndexOutput struct {
	RepositoryID   string `json:"repository_id"`
	FilesAdded     int    `json:"files_added"`
	FilesModified  int    `json:"files_modified"`
	FilesDeleted   int    `json:"files_deleted"`
	FilesUnchanged int    `json:"files_unchanged"`
	FilesSkipped   int    `json:"files_skipped"`
	ChunksWritten  int    `json:"chunks_written"`
	BytesWritten   int64  `json:"bytes_written"`
	DurationMS     int64  `json:"duration_ms"`
}

// QueryInput defines the input schema for the query tool.
type QueryInput struct {
	Query string `json:"query" jsonschema:"the search text to embed and match against indexed chunks"`
	K     int    `json:"k,omitempty" jsonschema:"number of results to return, default 8"`
	Scope string `json:"scope,omitempty" jsonschema:"repo, all, or set:<name>; defaults to repo"`
}

// QueryOutput defines the output schema for the query tool.
type QueryOutput struct {
	ProviderID       string        `json:"provider_id"`
	RepositoriesUsed int           `json:"repositories_searched"`
	Results          []QueryResult `json:"results"`
}

// QueryResult is one ranked chunk returned by the query tool.
type QueryResult struct {
	RelativePath string  `json:"relative_path"`
	LineStart    int     `json:"line_start"`
	LineEnd      int     `json:"line_end"`
	Score        float64 `json:"score"`
	Text         string  `json:"text"`
}
