package store

import (
	"os"
	"path/filepath"
)

// DefaultBaseDir returns the per-user base directory repositories are
// stored under, following the XDG Base Directory convention:
//   - $XDG_DATA_HOME/semindex, if set
//   - ~/.local/share/semindex otherwise
func DefaultBaseDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "semindex")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".local", "share", "semindex")
	}
	return filepath.Join(home, ".local", "share", "semindex")
}
