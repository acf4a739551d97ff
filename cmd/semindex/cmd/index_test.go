package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexCmd_FailsOnNonExistentPath(t *testing.T) {
	// Given: a non-existent path
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "/nonexistent/path"})

	// When: running index
	err := cmd.Execute()

	// Then: it should fail as a usage error
	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestIndexCmd_FailsWithTooManyArgs(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "a", "b"})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestIndexCmd_FailsWithoutConfiguredProviders(t *testing.T) {
	// Given: a real directory but no embedding providers configured
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "main.go"), []byte("package main\n"), 0644))

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", tmpDir})

	// When: running index with no providers in config
	err := cmd.Execute()

	// Then: it should fail with a configuration error, not start indexing
	require.Error(t, err)
	assert.Equal(t, ExitConfig, ExitCode(err))
}

func TestIndexCmd_HasWatchFlag(t *testing.T) {
	// Given: the index command
	cmd := NewRootCmd()
	indexCmd, _, err := cmd.Find([]string{"index"})
	require.NoError(t, err)

	// Then: it exposes a --watch flag defaulting to off
	flag := indexCmd.Flags().Lookup("watch")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestIndexCmd_WatchFailsWithoutConfiguredProvidersBeforeWatching(t *testing.T) {
	// Given: a real directory, --watch requested, but no providers configured
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "main.go"), []byte("package main\n"), 0644))

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "--watch", tmpDir})

	// When: running index
	err := cmd.Execute()

	// Then: the first pass still fails fast on the missing provider, never
	// reaching the watch loop
	require.Error(t, err)
	assert.Equal(t, ExitConfig, ExitCode(err))
}

func TestResolveIndexRoot_AbsolutePathUsedAsGiven(t *testing.T) {
	// Given: an explicit directory
	dir := t.TempDir()

	// When: resolving it
	root, err := resolveIndexRoot(dir)

	// Then: it is returned unchanged (no project-root walk for explicit paths)
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestResolveIndexRoot_RejectsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	_, err := resolveIndexRoot(file)

	require.Error(t, err)
}

func TestResolveIndexRoot_DotWalksUpToGitRoot(t *testing.T) {
	// Given: a nested subdirectory under a .git-rooted project
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0755))
	sub := filepath.Join(root, "pkg", "nested")
	require.NoError(t, os.MkdirAll(sub, 0755))

	oldCwd, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(oldCwd) }()
	require.NoError(t, os.Chdir(sub))

	// When: resolving "."
	got, err := resolveIndexRoot(".")
	require.NoError(t, err)

	// Then: it resolves to the repository root, not the subdirectory
	wantRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	gotRoot, err := filepath.EvalSymlinks(got)
	require.NoError(t, err)
	assert.Equal(t, wantRoot, gotRoot)
}
