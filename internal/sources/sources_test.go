package sources

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingRegistryIsEmpty(t *testing.T) {
	reg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, reg)
}

func TestAddSaveLoadRoundTrips(t *testing.T) {
	baseDir := t.TempDir()

	reg, err := Load(baseDir)
	require.NoError(t, err)
	reg.Add("backend", "/repo/a", "/repo/b")
	reg.Add("backend", "/repo/a") // duplicate, should not grow Paths
	require.NoError(t, reg.Save(baseDir))

	reloaded, err := Load(baseDir)
	require.NoError(t, err)
	require.Contains(t, reloaded, "backend")
	assert.Len(t, reloaded["backend"].Paths, 2)
}

func TestRemoveDeletesSet(t *testing.T) {
	baseDir := t.TempDir()
	reg, err := Load(baseDir)
	require.NoError(t, err)
	reg.Add("docs", "/repo/docs")
	require.NoError(t, reg.Save(baseDir))

	reg, err = Load(baseDir)
	require.NoError(t, err)
	reg.Remove("docs")
	require.NoError(t, reg.Save(baseDir))

	reloaded, err := Load(baseDir)
	require.NoError(t, err)
	assert.NotContains(t, reloaded, "docs")
}

func TestNamesSorted(t *testing.T) {
	reg := Registry{}
	reg.Add("zeta", "/z")
	reg.Add("alpha", "/a")
	assert.Equal(t, []string{"alpha", "zeta"}, reg.Names())
}

func TestAddResolvesRelativePaths(t *testing.T) {
	reg := Registry{}
	reg.Add("rel", ".")
	abs, err := filepath.Abs(".")
	require.NoError(t, err)
	assert.Equal(t, []string{abs}, reg["rel"].Paths)
}
