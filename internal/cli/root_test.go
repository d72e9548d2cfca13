package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "sourcing", cmd.Use)
	assert.Contains(t, cmd.Long, "lifecycle")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"serve"},
		{"migrate"},
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "status"},
		{"sweep"},
		{"deliver"},
	}

	for _, path := range commands {
		t.Run(filepath.Join(path...), func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "", configFlag.DefValue)

	levelFlag := cmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, levelFlag)

	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	migrateFlag := serveCmd.Flags().Lookup("migrate")
	require.NotNil(t, migrateFlag)
	assert.Equal(t, "false", migrateFlag.DefValue)
}

func TestCommandsRequireDatabase(t *testing.T) {
	t.Setenv("POSTGRES_CONN", "")
	t.Setenv("SOURCING_POSTGRES_CONN", "")

	for _, args := range [][]string{{"sweep"}, {"deliver"}, {"migrate", "status"}, {"serve"}} {
		t.Run(filepath.Join(args...), func(t *testing.T) {
			cmd := NewRootCommand()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetArgs(args)

			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "postgres.conn")
		})
	}
}

func TestLoadAppliesLogLevelFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("postgres:\n  conn: postgres://localhost/sourcing\n"), 0o600))

	opts := &RootOptions{ConfigPath: path, LogLevel: "debug"}
	cfg, log, err := opts.load()
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.Equal(t, "debug", cfg.App.LogLevel)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	opts := &RootOptions{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")}
	_, _, err := opts.load()
	require.Error(t, err)
}
