package dirs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	assert.Equal(t, "/xdg/config/sdjournal", ConfigDir())

	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/ann")
	assert.Equal(t, filepath.Join("/home/ann", ".config", "sdjournal"), ConfigDir())
}

func TestStateDir(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/xdg/state")
	assert.Equal(t, "/xdg/state/sdjournal", StateDir())

	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", "/home/ann")
	assert.Equal(t, "/home/ann/.local/state/sdjournal", StateDir())
}
