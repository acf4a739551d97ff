package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/semindex/internal/config"
	ierrors "github.com/aman-cerp/semindex/internal/errors"
	"github.com/aman-cerp/semindex/internal/fallback"
	"github.com/aman-cerp/semindex/internal/output"
	"github.com/aman-cerp/semindex/internal/query"
	"github.com/aman-cerp/semindex/internal/sources"
	"github.com/aman-cerp/semindex/internal/store"
	"github.com/aman-cerp/semindex/internal/telemetry"
)

func newQueryCmd() *cobra.Command {
	var (
		k          int
		scope      string
		jsonOutput bool
	)

	c := &cobra.Command{
		Use:   "query <text>",
		Short: "Search an indexed repository by semantic similarity",
		Long: `Query embeds the given text once and scans the stored vector shards of
the target repositories for the nearest chunks by cosine similarity.

--scope controls which repositories are searched:
  repo           the repository rooted at the current directory (default)
  all            every repository under the base directory
  set:<name>     the named set of repositories registered via 'sources add'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return newUsageError("query requires a search text argument")
			}
			text := strings.Join(args, " ")
			return runQuery(cmd.Context(), cmd, text, queryOptions{k: k, scope: scope, json: jsonOutput})
		},
	}

	c.Flags().IntVar(&k, "k", query.DefaultK, "Number of results to return")
	c.Flags().StringVar(&scope, "scope", "repo", "Search scope: repo, all, or set:<name>")
	c.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return c
}

type queryOptions struct {
	k     int
	scope string
	json  bool
}

func runQuery(ctx context.Context, cmd *cobra.Command, text string, opts queryOptions) error {
	out := output.New(cmd.OutOrStdout())
	baseDir := store.DefaultBaseDir()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	root, err := config.FindProjectRoot(cwd)
	if err != nil {
		root = cwd
	}

	cfg, err := config.Load(root)
	if err != nil {
		return err
	}

	providers, err := cfg.BuildProviders()
	if err != nil {
		return err
	}
	if len(providers) == 0 {
		return ierrors.ConfigError("no embedding providers configured; run 'semindex config provider' first", nil)
	}
	coordinator := fallback.New(providers)

	vectors, providerID, _, err := coordinator.Embed(ctx, []string{text})
	if err != nil {
		return err
	}
	queryVector := vectors[0]

	handles, err := resolveScope(baseDir, root, opts.scope)
	if err != nil {
		return err
	}
	if len(handles) == 0 {
		return newUsageError(fmt.Sprintf("scope %q resolved to no repositories", opts.scope))
	}
	defer func() {
		for _, h := range handles {
			h.Close()
		}
	}()

	sink := telemetry.SlogSink(nil)
	var results []query.Result
	if len(handles) == 1 {
		results, err = query.Search(handles[0], queryVector, query.Options{K: opts.k})
	} else {
		results, err = query.SearchRepositories(handles, queryVector, query.Options{K: opts.k}, sink)
	}
	if err != nil {
		return err
	}

	if opts.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	out.Dim(fmt.Sprintf("embedded query with %s, %d repositories searched", providerID, len(handles)))
	for _, r := range results {
		out.Statusf("%.4f  %s:%d-%d", r.Score, r.RelativePath, r.LineStart, r.LineEnd)
	}
	return nil
}

// resolveScope opens the repository handles named by scope, as readers.
func resolveScope(baseDir, root, scope string) ([]*store.Handle, error) {
	switch {
	case scope == "" || scope == "repo":
		repoID, err := store.RepositoryID(root)
		if err != nil {
			return nil, newUsageError(err.Error())
		}
		h, err := store.Open(baseDir, repoID, false)
		if err != nil {
			return nil, err
		}
		return []*store.Handle{h}, nil

	case scope == "all":
		ids, err := store.List(baseDir)
		if err != nil {
			return nil, err
		}
		handles := make([]*store.Handle, 0, len(ids))
		for _, id := range ids {
			h, err := store.Open(baseDir, id, false)
			if err != nil {
				continue // skip repositories that vanished or are mid-compaction
			}
			handles = append(handles, h)
		}
		return handles, nil

	case strings.HasPrefix(scope, "set:"):
		name := strings.TrimPrefix(scope, "set:")
		reg, err := sources.Load(baseDir)
		if err != nil {
			return nil, err
		}
		set, ok := reg[name]
		if !ok {
			return nil, newUsageError(fmt.Sprintf("no such source set %q", name))
		}
		handles := make([]*store.Handle, 0, len(set.Paths))
		for _, p := range set.Paths {
			repoID, err := store.RepositoryID(p)
			if err != nil {
				continue
			}
			h, err := store.Open(baseDir, repoID, false)
			if err != nil {
				continue
			}
			handles = append(handles, h)
		}
		return handles, nil

	default:
		return nil, newUsageError(fmt.Sprintf("invalid scope %q: use repo, all, or set:<name>", scope))
	}
}
