// Package cachedl downloads remote assets into a flat on-disk cache, capping
// concurrency and collapsing duplicate requests for the same URL.
package cachedl

import (
	"os"
	"path/filepath"
	"strings"
)

// minValidSize guards against truncated writes and zero-byte error pages
// left behind by interrupted downloads.
const minValidSize = 10

// DiskCache maps asset URLs to files in a single cache directory.
type DiskCache struct {
	dir string
}

func NewDiskCache(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

func (d *DiskCache) Dir() string { return d.dir }

// Key derives the cache location for a URL: scheme stripped, then '/' and
// '.' transposed. The swap is its own inverse and keeps distinct URLs on
// distinct files, where a one-way flattening would collide a/b.c with a.b/c.
func Key(url string) string {
	s := url
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/':
			return '.'
		case '.':
			return '/'
		}
		return r
	}, s)
}

// Path returns the on-disk location for a URL, cached or not.
func (d *DiskCache) Path(url string) string {
	return filepath.Join(d.dir, Key(url))
}

// CachedPath returns the local path when the URL is already cached, with a
// hit defined as an existing file large enough to be a real asset.
func (d *DiskCache) CachedPath(url string) (string, bool) {
	p := d.Path(url)
	fi, err := os.Stat(p)
	if err != nil || fi.Size() <= minValidSize {
		return "", false
	}
	return p, true
}

// IsCached reports whether a valid copy of the asset is on disk.
func (d *DiskCache) IsCached(url string) bool {
	_, ok := d.CachedPath(url)
	return ok
}

// Store writes an asset body, going through a temp file so a crash mid-write
// never produces a file that CachedPath would accept. Keys with transposed
// dots nest into subdirectories, created on demand.
func (d *DiskCache) Store(url string, data []byte) (string, error) {
	p := d.Path(url)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".dl-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return p, nil
}

// Clear wipes the whole cache directory, used on logout.
func (d *DiskCache) Clear() error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(d.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
