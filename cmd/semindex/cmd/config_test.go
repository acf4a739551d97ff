package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigCmd_HasSubcommands(t *testing.T) {
	// Given: root command
	cmd := NewRootCmd()

	// When: finding the config command
	configCmd, _, err := cmd.Find([]string{"config"})
	require.NoError(t, err)

	// Then: it should have get, set, provider, reset
	names := make(map[string]bool)
	for _, sc := range configCmd.Commands() {
		names[sc.Name()] = true
	}
	assert.True(t, names["get"])
	assert.True(t, names["set"])
	assert.True(t, names["provider"])
	assert.True(t, names["reset"])
}

func TestConfigGet_DefaultsAreJSON(t *testing.T) {
	// Given: a clean environment with no user config
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"config", "get"})

	// When: running config get with no key
	err := cmd.Execute()

	// Then: it should print the whole config as JSON
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "performance")
	assert.Contains(t, output, "indexing")
}

func TestConfigGet_DottedKey(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"config", "get", "performance.batch_size"})

	err := cmd.Execute()

	require.NoError(t, err)
	assert.Equal(t, "8\n", buf.String())
}

func TestConfigGet_UnknownKey(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"config", "get", "nope.nope"})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestConfigSet_PersistsToUserConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"config", "set", "performance.batch_size", "32"})

	err := cmd.Execute()
	require.NoError(t, err)

	getCmd := NewRootCmd()
	getBuf := new(bytes.Buffer)
	getCmd.SetOut(getBuf)
	getCmd.SetErr(getBuf)
	getCmd.SetArgs([]string{"config", "get", "performance.batch_size"})
	require.NoError(t, getCmd.Execute())
	assert.Equal(t, "32\n", getBuf.String())
}

func TestConfigProvider_SetListRemove(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))

	setCmd := NewRootCmd()
	setBuf := new(bytes.Buffer)
	setCmd.SetOut(setBuf)
	setCmd.SetErr(setBuf)
	setCmd.SetArgs([]string{
		"config", "provider", "set", "openai",
		"--type", "http", "--base-url", "https://api.openai.com/v1",
		"--model", "text-embedding-3-small", "--dimension", "1536", "--default",
	})
	require.NoError(t, setCmd.Execute())

	listCmd := NewRootCmd()
	listBuf := new(bytes.Buffer)
	listCmd.SetOut(listBuf)
	listCmd.SetErr(listBuf)
	listCmd.SetArgs([]string{"config", "provider", "list"})
	require.NoError(t, listCmd.Execute())
	assert.Contains(t, listBuf.String(), "openai")
	assert.Contains(t, listBuf.String(), "(default)")

	removeCmd := NewRootCmd()
	removeBuf := new(bytes.Buffer)
	removeCmd.SetOut(removeBuf)
	removeCmd.SetErr(removeBuf)
	removeCmd.SetArgs([]string{"config", "provider", "remove", "openai"})
	require.NoError(t, removeCmd.Execute())

	listCmd2 := NewRootCmd()
	listBuf2 := new(bytes.Buffer)
	listCmd2.SetOut(listBuf2)
	listCmd2.SetErr(listBuf2)
	listCmd2.SetArgs([]string{"config", "provider", "list"})
	require.NoError(t, listCmd2.Execute())
	assert.NotContains(t, listBuf2.String(), "openai")
}

func TestConfigReset_NoExistingFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"config", "reset"})

	err := cmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "wrote defaults")
}
