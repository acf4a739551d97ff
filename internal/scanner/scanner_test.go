package scanner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, root string, files map[string][]byte) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, content, 0o644))
	}
}

func collectPaths(t *testing.T, ctx context.Context, root string, opts Options, stats *Stats) []string {
	t.Helper()
	var paths []string
	for e := range Walk(ctx, root, opts, stats) {
		paths = append(paths, e.RelativePath)
	}
	return paths
}

func TestWalkYieldsEligibleFiles(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, map[string][]byte{
		"main.go":       []byte("package main\n"),
		"sub/helper.go": []byte("package sub\n"),
		"README.md":     []byte("# hello\n"),
	})

	paths := collectPaths(t, context.Background(), root, DefaultOptions(), nil)

	assert.Contains(t, paths, "main.go")
	assert.Contains(t, paths, "sub/helper.go")
	assert.Contains(t, paths, "README.md")
	assert.Len(t, paths, 3)
}

func TestWalkExcludesDefaultDirs(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, map[string][]byte{
		"main.go":                   []byte("package main\n"),
		"node_modules/pkg/index.js": []byte("module.exports = {}\n"),
		".git/HEAD":                 []byte("ref: refs/heads/main\n"),
		"vendor/lib/lib.go":         []byte("package lib\n"),
		"__pycache__/mod.pyc":       []byte("irrelevant\n"),
	})

	paths := collectPaths(t, context.Background(), root, DefaultOptions(), nil)

	assert.Contains(t, paths, "main.go")
	assert.NotContains(t, paths, "node_modules/pkg/index.js")
	assert.NotContains(t, paths, ".git/HEAD")
	assert.NotContains(t, paths, "vendor/lib/lib.go")
	assert.NotContains(t, paths, "__pycache__/mod.pyc")
}

func TestWalkExcludesDefaultFilePatterns(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, map[string][]byte{
		"main.go":           []byte("package main\n"),
		"bundle.min.js":     []byte("console.log(1)\n"),
		"package-lock.json": []byte("{}\n"),
		"style.min.css":     []byte("a{}\n"),
	})

	paths := collectPaths(t, context.Background(), root, DefaultOptions(), nil)

	assert.Contains(t, paths, "main.go")
	assert.NotContains(t, paths, "bundle.min.js")
	assert.NotContains(t, paths, "package-lock.json")
	assert.NotContains(t, paths, "style.min.css")
}

func TestWalkRespectsCustomExcludePatterns(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, map[string][]byte{
		"main.go":       []byte("package main\n"),
		"generated.go":  []byte("package main\n"),
		"fixtures/a.go": []byte("package fixtures\n"),
	})

	opts := DefaultOptions()
	opts.ExcludePatterns = []string{"generated.go", "**/fixtures/*"}
	paths := collectPaths(t, context.Background(), root, opts, nil)

	assert.Contains(t, paths, "main.go")
	assert.NotContains(t, paths, "generated.go")
	assert.NotContains(t, paths, "fixtures/a.go")
}

// TestWalkSkipsBinaryFiles exercises the Walk-level NUL-byte sniff: a binary
// file is excluded during the walk itself, including one with a misleading
// source-looking extension, so it never reaches the change-detection path.
func TestWalkSkipsBinaryFiles(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, map[string][]byte{
		"main.go":      []byte("package main\n"),
		"photo.png":    {0xFF, 0xD8, 0xFF, 0x00, 0x01, 0x02},
		"disguised.go": {'p', 'a', 'c', 'k', 'a', 'g', 'e', 0x00, 'm', 'a', 'i', 'n'},
	})

	var stats Stats
	paths := collectPaths(t, context.Background(), root, DefaultOptions(), &stats)

	assert.Equal(t, []string{"main.go"}, paths)
	assert.Equal(t, 1, stats.FilesYielded)
	assert.Equal(t, 1, stats.FilesBinary)
}

func TestWalkSkipsLargeFiles(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, map[string][]byte{
		"small.go": []byte("package main\n"),
	})
	big := make([]byte, 2048)
	writeFixture(t, root, map[string][]byte{"big.go": big})

	opts := DefaultOptions()
	opts.MaxFileSize = 1024
	var stats Stats
	paths := collectPaths(t, context.Background(), root, opts, &stats)

	assert.Equal(t, []string{"small.go"}, paths)
	assert.Equal(t, 1, stats.FilesTooLarge)
}

func TestWalkStatsCountExcludedFiles(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, map[string][]byte{
		"main.go":           []byte("package main\n"),
		"package-lock.json": []byte("{}\n"),
		"bundle.min.js":     []byte("x\n"),
	})

	var stats Stats
	paths := collectPaths(t, context.Background(), root, DefaultOptions(), &stats)

	assert.Equal(t, []string{"main.go"}, paths)
	assert.Equal(t, 1, stats.FilesYielded)
	assert.Equal(t, 2, stats.FilesExcluded)
}

func TestWalkNilStatsDoesNotPanic(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, map[string][]byte{"main.go": []byte("package main\n")})

	assert.NotPanics(t, func() {
		collectPaths(t, context.Background(), root, DefaultOptions(), nil)
	})
}

func TestWalkEmptyDirectory(t *testing.T) {
	root := t.TempDir()

	paths := collectPaths(t, context.Background(), root, DefaultOptions(), nil)

	assert.Empty(t, paths)
}

func TestWalkContextCancellationStopsEarly(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 200; i++ {
		writeFixture(t, root, map[string][]byte{
			filepath.Join("pkg", string(rune('a'+i%26))+string(rune('a'+i/26))+".go"): []byte("package pkg\n"),
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch := Walk(ctx, root, DefaultOptions(), nil)

	// Take one entry, then cancel; the goroutine must observe ctx.Done and
	// close the channel rather than block forever on an unread send. A
	// failure here hangs the test rather than failing an assertion.
	_, ok := <-ch
	require.True(t, ok)
	cancel()

	drained := 0
	for range ch {
		drained++
	}
	assert.Less(t, drained, 200, "cancellation should stop the walk well before all 200 entries are yielded")
}

func TestWalkGoroutineDoesNotLeakOnCancellation(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		writeFixture(t, root, map[string][]byte{
			filepath.Join("pkg", string(rune('a'+i%26))+".go"): []byte("package pkg\n"),
		})
	}

	before := runtime.NumGoroutine()

	ctx, cancel := context.WithCancel(context.Background())
	ch := Walk(ctx, root, DefaultOptions(), nil)
	<-ch
	cancel()
	for range ch {
	}

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+1
	}, time.Second, 10*time.Millisecond)
}

func TestReadRejectsBinaryContent(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "bin.dat")
	require.NoError(t, os.WriteFile(path, []byte{0x00, 0x01, 0x02}, 0o644))

	_, err := Read(path)

	assert.Error(t, err)
}

func TestReadRejectsInvalidUTF8(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "invalid.txt")
	require.NoError(t, os.WriteFile(path, []byte{0xFF, 0xFE, 0xFD}, 0o644))

	_, err := Read(path)

	assert.Error(t, err)
}

func TestReadReturnsContent(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "ok.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o644))

	content, err := Read(path)

	require.NoError(t, err)
	assert.Equal(t, "package main\n", content)
}

func TestIsBinaryDetectsNulByte(t *testing.T) {
	assert.True(t, IsBinary([]byte{'a', 'b', 0x00, 'c'}))
	assert.False(t, IsBinary([]byte("hello world")))
}

func TestSortEntriesOrdersByRelativePath(t *testing.T) {
	entries := []Entry{
		{RelativePath: "z.go"},
		{RelativePath: "a.go"},
		{RelativePath: "m.go"},
	}

	SortEntries(entries)

	assert.Equal(t, []string{"a.go", "m.go", "z.go"}, []string{
		entries[0].RelativePath, entries[1].RelativePath, entries[2].RelativePath,
	})
}
