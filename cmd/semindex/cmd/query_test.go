package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/semindex/internal/store"
)

func TestQueryCmd_FailsWithoutText(t *testing.T) {
	// Given: a query command with no arguments
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"query"})

	// When: executing
	err := cmd.Execute()

	// Then: it should fail as a usage error
	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestQueryCmd_FailsWithoutConfiguredProviders(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"query", "how is auth handled"})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Equal(t, ExitConfig, ExitCode(err))
}

func TestResolveScope_InvalidScopeIsUsageError(t *testing.T) {
	baseDir := t.TempDir()

	_, err := resolveScope(baseDir, "/some/root", "bogus")

	require.Error(t, err)
	var ue *usageError
	assert.ErrorAs(t, err, &ue)
}

func TestResolveScope_SetNotFoundIsUsageError(t *testing.T) {
	baseDir := t.TempDir()

	_, err := resolveScope(baseDir, "/some/root", "set:missing")

	require.Error(t, err)
	var ue *usageError
	assert.ErrorAs(t, err, &ue)
}

func TestResolveScope_AllWithNoRepositoriesIsEmpty(t *testing.T) {
	baseDir := t.TempDir()

	handles, err := resolveScope(baseDir, "/some/root", "all")

	require.NoError(t, err)
	assert.Empty(t, handles)
}

func TestResolveScope_RepoOpensExistingRepository(t *testing.T) {
	baseDir := t.TempDir()
	root := t.TempDir()

	h, err := store.Create(baseDir, root)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	handles, err := resolveScope(baseDir, root, "repo")
	require.NoError(t, err)
	require.Len(t, handles, 1)
	handles[0].Close()
}
