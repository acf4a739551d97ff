package indexer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/semindex/internal/scanner"
	"github.com/aman-cerp/semindex/internal/store"
)

func newTestHandle(t *testing.T) (*store.Handle, string) {
	t.Helper()
	base := t.TempDir()
	root := t.TempDir()
	h, err := store.Create(base, root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h, root
}

func writeFile(t *testing.T, root, rel, content string) scanner.Entry {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)
	return scanner.Entry{AbsolutePath: path, RelativePath: rel, Size: info.Size(), ModTime: info.ModTime()}
}

func TestClassifyAddedForNewFile(t *testing.T) {
	h, root := newTestHandle(t)
	e := writeFile(t, root, "a.go", "package a\n")

	report, err := Classify(h, []scanner.Entry{e})
	require.NoError(t, err)
	require.Len(t, report.Added, 1)
	assert.Equal(t, "a.go", report.Added[0].RelativePath)
	assert.Equal(t, 1, report.Stats.Added)
}

func TestClassifyUnchangedViaQuickCheck(t *testing.T) {
	h, root := newTestHandle(t)
	e := writeFile(t, root, "a.go", "package a\n")
	h.PutFileRecord(store.FileRecord{
		RelativePath:         "a.go",
		SizeBytes:            e.Size,
		LastModifiedUnixNano: e.ModTime.UnixNano(),
		ContentHash:          "stale-but-unused-because-quickcheck-matches",
	})

	report, err := Classify(h, []scanner.Entry{e})
	require.NoError(t, err)
	require.Len(t, report.Unchanged, 1)
	assert.Equal(t, 1, report.Stats.Unchanged)
}

func TestClassifyModifiedWhenHashDiffers(t *testing.T) {
	h, root := newTestHandle(t)
	e := writeFile(t, root, "a.go", "package a\n")
	h.PutFileRecord(store.FileRecord{
		RelativePath:         "a.go",
		SizeBytes:            e.Size + 100,
		LastModifiedUnixNano: e.ModTime.Add(-time.Hour).UnixNano(),
		ContentHash:          "deadbeef",
	})

	report, err := Classify(h, []scanner.Entry{e})
	require.NoError(t, err)
	require.Len(t, report.Modified, 1)
}

func TestClassifyDeletedForMissingFile(t *testing.T) {
	h, _ := newTestHandle(t)
	h.PutFileRecord(store.FileRecord{RelativePath: "gone.go", SizeBytes: 10, ContentHash: "abc"})

	report, err := Classify(h, nil)
	require.NoError(t, err)
	require.Len(t, report.Deleted, 1)
	assert.Equal(t, "gone.go", report.Deleted[0].RelativePath)
}

func TestClassifySkippedOnUnreadableFile(t *testing.T) {
	h, root := newTestHandle(t)
	e := writeFile(t, root, "a.go", "package a\n")
	require.NoError(t, os.Remove(e.AbsolutePath))

	report, err := Classify(h, []scanner.Entry{e})
	require.NoError(t, err)
	require.Len(t, report.Skipped, 1)
	assert.Error(t, report.Skipped[0].Err)
}
