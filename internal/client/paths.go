package client

import (
	"os"
	"path/filepath"
)

// Paths holds the on-disk layout of one session.
type Paths struct {
	Root string
}

// DefaultRoot resolves the session directory, honoring CHATCUBE_HOME for
// side-by-side test sessions.
func DefaultRoot() (string, error) {
	if env := os.Getenv("CHATCUBE_HOME"); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".chatcube"), nil
}

func NewPaths(root string) (Paths, error) {
	p := Paths{Root: root}
	for _, dir := range []string{p.Root, p.CacheDir(), p.LogDir()} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return Paths{}, err
		}
	}
	return p, nil
}

// TokenFile is the stored auth token, one line.
func (p Paths) TokenFile() string { return filepath.Join(p.Root, "token") }

// CacheDir holds downloaded assets.
func (p Paths) CacheDir() string { return filepath.Join(p.Root, "cache") }

// LogDir holds the rotating JSON logs.
func (p Paths) LogDir() string { return filepath.Join(p.Root, "logs") }

// LockFile guards against concurrent sessions on the same root.
func (p Paths) LockFile() string { return filepath.Join(p.Root, "lock") }

// ConfigFile is the user-editable settings file.
func (p Paths) ConfigFile() string { return filepath.Join(p.Root, "config.toml") }
