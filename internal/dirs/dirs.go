// Package dirs resolves the XDG base directories sdjournal uses, with
// fallbacks for systems where XDG variables are unset.
package dirs

import (
	"os"
	"os/user"
	"path/filepath"
)

const app = "sdjournal"

// ConfigDir returns the directory holding config.yaml.
// Priority: $XDG_CONFIG_HOME/sdjournal > ~/.config/sdjournal
func ConfigDir() string {
	if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
		return filepath.Join(base, app)
	}
	return filepath.Join(home(), ".config", app)
}

// StateDir returns the directory for persistent state such as saved
// cursors.
// Priority: $XDG_STATE_HOME/sdjournal > ~/.local/state/sdjournal
func StateDir() string {
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, app)
	}
	return filepath.Join(home(), ".local", "state", app)
}

func home() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	if u, err := user.Current(); err == nil && u.HomeDir != "" {
		return u.HomeDir
	}
	return os.TempDir()
}
