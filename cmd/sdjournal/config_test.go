package main

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbrock/sdjournal/internal/config"
)

func TestSaveConfig(t *testing.T) {
	log = slog.New(slog.DiscardHandler)
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)

	c := config.Default()
	c.DataThreshold = 1 << 20
	c.Matches = []string{"PRIORITY=3"}

	path, err := saveConfig(c, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "sdjournal", "config.yaml"), path)
	got, err := config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, c, got)

	loaded := filepath.Join(t.TempDir(), "mine.yaml")
	path, err = saveConfig(c, loaded)
	require.NoError(t, err)
	assert.Equal(t, loaded, path)
	assert.FileExists(t, loaded)
}
