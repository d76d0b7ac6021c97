package cachedl

import (
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ImageCache keeps recently used asset bodies in memory so avatar redraws do
// not hit the disk every time. Keyed by local cache path.
type ImageCache struct {
	lru *lru.Cache[string, []byte]
}

func NewImageCache(size int) (*ImageCache, error) {
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &ImageCache{lru: c}, nil
}

// Get returns the file body for a cache path, reading it from disk once and
// pinning it in the LRU afterwards.
func (c *ImageCache) Get(path string) ([]byte, error) {
	if data, ok := c.lru.Get(path); ok {
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c.lru.Add(path, data)
	return data, nil
}

// Forget drops one entry, used when an avatar is replaced in place.
func (c *ImageCache) Forget(path string) { c.lru.Remove(path) }

// Purge empties the cache on logout.
func (c *ImageCache) Purge() { c.lru.Purge() }
