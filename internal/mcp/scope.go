package mcp

import (
	"fmt"
	"strings"

	ierrors "github.com/aman-cerp/semindex/internal/errors"
	"github.com/aman-cerp/semindex/internal/sources"
	"github.com/aman-cerp/semindex/internal/store"
)

// resolveScope opens the repository handles named by scope, as readers.
// Mirrors the CLI query command's scope resolution (repo/all/set:<name>),
// since both surfaces sit on the same store and sources registry.
func resolveScope(baseDir, root, scope string) ([]*store.Handle, error) {
	switch {
	case scope == "" || scope == "repo":
		repoID, err := store.RepositoryID(root)
		if err != nil {
			return nil, ierrors.ValidationError(err.Error(), err)
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
			return nil, ierrors.ValidationError(fmt.Sprintf("no such source set %q", name), nil)
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
		return nil, ierrors.ValidationError(fmt.Sprintf("invalid scope %q: use repo, all, or set:<name>", scope), nil)
	}
}
