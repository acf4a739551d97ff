package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/semindex/internal/config"
	ierrors "github.com/aman-cerp/semindex/internal/errors"
	"github.com/aman-cerp/semindex/internal/fallback"
	"github.com/aman-cerp/semindex/internal/indexer"
	"github.com/aman-cerp/semindex/internal/output"
	"github.com/aman-cerp/semindex/internal/pipeline"
	"github.com/aman-cerp/semindex/internal/store"
	"github.com/aman-cerp/semindex/internal/telemetry"
	"github.com/aman-cerp/semindex/internal/watch"
)

func newIndexCmd() *cobra.Command {
	var (
		concurrency int
		batchSize   int
		provider    string
		force       bool
		watchMode   bool
	)

	c := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a repository for semantic search",
		Long: `Index scans a repository, chunks and embeds the files that changed
since the last run, and commits the result to the repository's on-disk
store. Indexing is incremental: unchanged files are skipped entirely.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				return newUsageError("index accepts at most one path argument")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			return runIndex(ctx, cmd, path, indexOptions{
				concurrency: concurrency,
				batchSize:   batchSize,
				provider:    provider,
				force:       force,
				watch:       watchMode,
			})
		},
	}

	c.Flags().IntVar(&concurrency, "concurrency", 0, "Dispatcher concurrency (0 uses the configured default)")
	c.Flags().IntVar(&batchSize, "batch-size", 0, "Initial embedding batch size (0 uses the configured default)")
	c.Flags().StringVar(&provider, "provider", "", "Embedding provider to use as primary (overrides default_provider)")
	c.Flags().BoolVar(&force, "force", false, "Clear existing index data and rebuild from scratch")
	c.Flags().BoolVar(&watchMode, "watch", false, "Stay running and reindex incrementally as files change")

	return c
}

type indexOptions struct {
	concurrency int
	batchSize   int
	provider    string
	force       bool
	watch       bool
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, opts indexOptions) error {
	out := output.New(cmd.OutOrStdout())

	root, err := resolveIndexRoot(path)
	if err != nil {
		return newUsageError(err.Error())
	}

	cfg, err := config.Load(root)
	if err != nil {
		return err
	}
	if opts.provider != "" {
		cfg.DefaultProvider = opts.provider
	}

	providers, err := cfg.BuildProviders()
	if err != nil {
		return err
	}
	if len(providers) == 0 {
		return ierrors.ConfigError("no embedding providers configured; run 'semindex config provider' first", nil)
	}
	primary := providers[0]
	coordinator := fallback.New(providers)

	pcfg := cfg.PipelineConfig()
	if opts.concurrency > 0 {
		pcfg.Concurrency = opts.concurrency
	}
	if opts.batchSize > 0 {
		pcfg.InitialBatch = opts.batchSize
		if pcfg.MinBatchSize > pcfg.InitialBatch {
			pcfg.MinBatchSize = pcfg.InitialBatch
		}
	}
	baseDir := store.DefaultBaseDir()
	repoID, err := store.RepositoryID(root)
	if err != nil {
		return newUsageError(fmt.Sprintf("invalid repository path %q: %v", root, err))
	}

	if opts.force {
		if err := store.Delete(baseDir, repoID); err != nil {
			return err
		}
	}

	h, err := store.Open(baseDir, repoID, true)
	if err != nil {
		var ie *ierrors.IndexError
		if errors.As(err, &ie) && ie.Code == ierrors.ErrCodeRepositoryNotFound {
			h, err = store.Create(baseDir, root)
		}
		if err != nil {
			return err
		}
	}
	defer h.Close()

	if err := h.StampProviderIfUnset(primary.ID(), primary.ModelID(), primary.Dimension()); err != nil {
		return err
	}

	sink := telemetry.Multi(telemetry.SlogSink(nil), telemetry.TerminalSink(os.Stdout, false))
	pipe, err := pipeline.New(pcfg, primary, coordinator, sink)
	if err != nil {
		return ierrors.ConfigError(err.Error(), err)
	}
	runCfg := indexer.RunConfig{
		ScanOptions:   cfg.ScanOptions(),
		ChunkParams:   cfg.ChunkParams(),
		Pipeline:      pipe,
		ProgressEvery: time.Second,
		Sink:          sink,
	}

	if err := indexOnePass(ctx, out, h, root, runCfg); err != nil {
		return err
	}
	if !opts.watch {
		return nil
	}
	return watchAndReindex(ctx, out, h, root, runCfg)
}

// indexOnePass runs one indexer.Run pass and prints its summary.
func indexOnePass(ctx context.Context, out *output.Writer, h *store.Handle, root string, runCfg indexer.RunConfig) error {
	summary, err := indexer.Run(ctx, h, root, runCfg)
	if err != nil {
		return err
	}

	h.MarkIndexed(time.Now())
	if err := h.SaveMetadata(); err != nil {
		return err
	}

	out.Success(fmt.Sprintf("indexed %s", root))
	out.Statusf("repository_id: %s", h.ID())
	out.Statusf("files: %d added, %d modified, %d deleted, %d unchanged, %d skipped",
		len(summary.Report.Added), len(summary.Report.Modified), len(summary.Report.Deleted),
		len(summary.Report.Unchanged), len(summary.Report.Skipped))
	out.Statusf("scan: %d eligible, %d excluded, %d too large, %d binary",
		summary.ScanStats.FilesYielded, summary.ScanStats.FilesExcluded, summary.ScanStats.FilesTooLarge, summary.ScanStats.FilesBinary)
	out.Statusf("chunks written: %d (%d bytes) in %s", summary.ChunksWritten, summary.BytesWritten, summary.Duration.Round(time.Millisecond))
	return nil
}

// watchAndReindex watches root for changes and re-runs indexOnePass on
// each debounced signal, until ctx is cancelled.
func watchAndReindex(ctx context.Context, out *output.Writer, h *store.Handle, root string, runCfg indexer.RunConfig) error {
	w, err := watch.New(0)
	if err != nil {
		return ierrors.IOError(err.Error(), err)
	}
	defer w.Close()

	out.Dim(fmt.Sprintf("watching %s for changes (ctrl-c to stop)", root))

	go func() {
		if err := w.Start(ctx, root); err != nil && ctx.Err() == nil {
			out.Warning(fmt.Sprintf("watcher stopped: %v", err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-w.Errors():
			out.Warning(fmt.Sprintf("watch error: %v", err))
		case <-w.Events():
			if err := indexOnePass(ctx, out, h, root, runCfg); err != nil {
				out.Error(fmt.Sprintf("reindex failed: %v", err))
			}
		}
	}
}

// resolveIndexRoot resolves path to an absolute directory. Bare "." walks
// up to the enclosing project root (a .git directory or an existing
// project config file) so indexing from a subdirectory still covers the
// whole repository; an explicit path is used exactly as given.
func resolveIndexRoot(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("path %q does not exist: %w", path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path %q is not a directory", path)
	}
	if path == "." {
		if root, err := config.FindProjectRoot(abs); err == nil {
			return root, nil
		}
	}
	return abs, nil
}
