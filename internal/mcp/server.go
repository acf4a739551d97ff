package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aman-cerp/semindex/internal/config"
	ierrors "github.com/aman-cerp/semindex/internal/errors"
	"github.com/aman-cerp/semindex/internal/fallback"
	"github.com/aman-cerp/semindex/internal/indexer"
	"github.com/aman-cerp/semindex/internal/pipeline"
	"github.com/aman-cerp/semindex/internal/query"
	"github.com/aman-cerp/semindex/internal/store"
	"github.com/aman-cerp/semindex/internal/telemetry"
	"github.com/aman-cerp/semindex/pkg/version"
)

// Server is the MCP front-end: it wraps one project root and exposes
// index and query as MCP tools over the same core packages the CLI
// uses, for IDE/agent integrations that talk MCP instead of shelling
// out.
type Server struct {
	mcp     *mcp.Server
	rootDir string
	baseDir string
	logger  *slog.Logger
}

// NewServer creates an MCP server rooted at rootDir, storing indexes
// under baseDir (store.DefaultBaseDir() in normal operation).
func NewServer(rootDir, baseDir string) *Server {
	s := &Server{
		rootDir: rootDir,
		baseDir: baseDir,
		logger:  slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "semindex",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	return s
}

// registerTools wires the index and query tools into the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index",
		Description: "Index the repository for semantic search, scanning and embedding only the files that changed since the last run.",
	}, s.handleIndex)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "query",
		Description: "Search an indexed repository by semantic similarity and return the nearest code chunks.",
	}, s.handleQuery)

	s.logger.Debug("MCP tools registered", slog.Int("count", 2))
}

// handleIndex is the MCP SDK handler for the index tool.
func (s *Server) handleIndex(ctx context.Context, _ *mcp.CallToolRequest, input IndexInput) (
	*mcp.CallToolResult,
	IndexOutput,
	error,
) {
	root := input.Path
	if root == "" {
		root = s.rootDir
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, IndexOutput{}, MapError(err)
	}

	providers, err := cfg.BuildProviders()
	if err != nil {
		return nil, IndexOutput{}, MapError(err)
	}
	if len(providers) == 0 {
		return nil, IndexOutput{}, MapError(ierrors.ConfigError("no embedding providers configured", nil))
	}
	primary := providers[0]
	coordinator := fallback.New(providers)

	repoID, err := store.RepositoryID(root)
	if err != nil {
		return nil, IndexOutput{}, MapError(ierrors.ValidationError(err.Error(), err))
	}

	if input.Force {
		if err := store.Delete(s.baseDir, repoID); err != nil {
			return nil, IndexOutput{}, MapError(err)
		}
	}

	h, err := store.Open(s.baseDir, repoID, true)
	if err != nil {
		var ie *ierrors.IndexError
		if errors.As(err, &ie) && ie.Code == ierrors.ErrCodeRepositoryNotFound {
			h, err = store.Create(s.baseDir, root)
		}
		if err != nil {
			return nil, IndexOutput{}, MapError(err)
		}
	}
	defer h.Close()

	if err := h.StampProviderIfUnset(primary.ID(), primary.ModelID(), primary.Dimension()); err != nil {
		return nil, IndexOutput{}, MapError(err)
	}

	sink := telemetry.SlogSink(s.logger)
	pipe, err := pipeline.New(cfg.PipelineConfig(), primary, coordinator, sink)
	if err != nil {
		return nil, IndexOutput{}, MapError(ierrors.ConfigError(err.Error(), err))
	}

	summary, err := indexer.Run(ctx, h, root, indexer.RunConfig{
		ScanOptions:   cfg.ScanOptions(),
		ChunkParams:   cfg.ChunkParams(),
		Pipeline:      pipe,
		ProgressEvery: time.Second,
		Sink:          sink,
	})
	if err != nil {
		return nil, IndexOutput{}, MapError(err)
	}

	h.MarkIndexed(time.Now())
	if err := h.SaveMetadata(); err != nil {
		return nil, IndexOutput{}, MapError(err)
	}

	return nil, IndexOutput{
		RepositoryID:   h.ID(),
		FilesAdded:     len(summary.Report.Added),
		FilesModified:  len(summary.Report.Modified),
		FilesDeleted:   len(summary.Report.Deleted),
		FilesUnchanged: len(summary.Report.Unchanged),
		FilesSkipped:   len(summary.Report.Skipped),
		ChunksWritten:  summary.ChunksWritten,
		BytesWritten:   summary.BytesWritten,
		DurationMS:     summary.Duration.Milliseconds(),
	}, nil
}

// handleQuery is the MCP SDK handler for the query tool.
func (s *Server) handleQuery(ctx context.Context, _ *mcp.CallToolRequest, input QueryInput) (
	*mcp.CallToolResult,
	QueryOutput,
	error,
) {
	if input.Query == "" {
		return nil, QueryOutput{}, NewInvalidParamsError("query parameter is required")
	}

	cfg, err := config.Load(s.rootDir)
	if err != nil {
		return nil, QueryOutput{}, MapError(err)
	}

	providers, err := cfg.BuildProviders()
	if err != nil {
		return nil, QueryOutput{}, MapError(err)
	}
	if len(providers) == 0 {
		return nil, QueryOutput{}, MapError(ierrors.ConfigError("no embedding providers configured", nil))
	}
	coordinator := fallback.New(providers)

	vectors, providerID, _, err := coordinator.Embed(ctx, []string{input.Query})
	if err != nil {
		return nil, QueryOutput{}, MapError(err)
	}
	queryVector := vectors[0]

	scope := input.Scope
	if scope == "" {
		scope = "repo"
	}
	handles, err := resolveScope(s.baseDir, s.rootDir, scope)
	if err != nil {
		return nil, QueryOutput{}, MapError(err)
	}
	if len(handles) == 0 {
		return nil, QueryOutput{}, NewInvalidParamsError(fmt.Sprintf("scope %q resolved to no repositories", scope))
	}
	defer func() {
		for _, h := range handles {
			h.Close()
		}
	}()

	opts := query.Options{K: input.K}
	var results []query.Result
	if len(handles) == 1 {
		results, err = query.Search(handles[0], queryVector, opts)
	} else {
		results, err = query.SearchRepositories(handles, queryVector, opts, telemetry.SlogSink(s.logger))
	}
	if err != nil {
		return nil, QueryOutput{}, MapError(err)
	}

	out := QueryOutput{
		ProviderID:       providerID,
		RepositoriesUsed: len(handles),
		Results:          make([]QueryResult, 0, len(results)),
	}
	for _, r := range results {
		out.Results = append(out.Results, QueryResult{
			RelativePath: r.RelativePath,
			LineStart:    r.LineStart,
			LineEnd:      r.LineEnd,
			Score:        r.Score,
			Text:         r.Text,
		})
	}
	return nil, out, nil
}

// Serve starts the server over the given transport, blocking until ctx
// is cancelled. Only "stdio" is supported; semindex has no HTTP/SSE
// front-end to speak MCP over.
func (s *Server) Serve(ctx context.Context, transport string) error {
	if transport != "stdio" {
		return fmt.Errorf("unsupported MCP transport %q: only \"stdio\" is supported", transport)
	}

	s.logger.Info("starting MCP server", slog.String("transport", transport), slog.String("root", s.rootDir))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}
