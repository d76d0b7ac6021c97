package cachedl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/rochat/chatcube/internal/bus"
	"github.com/rochat/chatcube/internal/runloop"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestKeyDerivation(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"http://host/media/pics/a.png", "host.media.pics.a/png"},
		{"https://host/x", "host.x"},
		{"host/no/scheme", "host.no.scheme"},
		{"https://cdn.host.org/pic.png", "cdn/host/org.pic/png"},
	}
	for _, tc := range cases {
		if got := Key(tc.url); got != tc.want {
			t.Fatalf("Key(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}

	// The transposition keeps keys injective; flattening both separators to
	// one character would put these two URLs on the same file.
	if Key("http://host/a/b.c") == Key("http://host/a.b/c") {
		t.Fatal("distinct URLs collided on one cache key")
	}
}

func TestStoreNestsTransposedKeys(t *testing.T) {
	cache, err := NewDiskCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	url := "https://cdn.host.org/pic.png"
	p, err := cache.Store(url, make([]byte, 64))
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := cache.CachedPath(url); !ok || got != p {
		t.Fatalf("CachedPath = %q %v after nested store", got, ok)
	}
	if err := cache.Clear(); err != nil {
		t.Fatal(err)
	}
	if cache.IsCached(url) {
		t.Fatal("cleared cache reported a hit")
	}
}

func TestDiskCacheHitRules(t *testing.T) {
	cache, err := NewDiskCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	url := "http://host/a.png"
	if _, ok := cache.CachedPath(url); ok {
		t.Fatal("empty cache reported a hit")
	}

	// Files at or under the size floor read as misses.
	if err := os.MkdirAll(filepath.Dir(cache.Path(url)), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cache.Path(url), make([]byte, minValidSize), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := cache.CachedPath(url); ok {
		t.Fatal("undersized file reported a hit")
	}

	p, err := cache.Store(url, make([]byte, 100))
	if err != nil {
		t.Fatal(err)
	}
	got, ok := cache.CachedPath(url)
	if !ok || got != p {
		t.Fatalf("CachedPath = %q %v, want %q", got, ok, p)
	}
	if !cache.IsCached(url) {
		t.Fatal("IsCached = false after store")
	}

	if err := cache.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, ok := cache.CachedPath(url); ok {
		t.Fatal("cleared cache reported a hit")
	}
}

type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	live    atomic.Int32
	maxLive atomic.Int32
	block   chan struct{}
	fail    bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{calls: make(map[string]int)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	n := f.live.Add(1)
	defer f.live.Add(-1)
	for {
		max := f.maxLive.Load()
		if n <= max || f.maxLive.CompareAndSwap(max, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls[url]++
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail {
		return nil, errors.New("boom")
	}
	return make([]byte, 64), nil
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func newDownloader(t *testing.T, f Fetcher) (*Downloader, *runloop.Loop, *bus.Bus) {
	t.Helper()
	cache, err := NewDiskCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	loop := runloop.New()
	loop.Start(context.Background())
	t.Cleanup(loop.Stop)
	b := bus.New()
	d := NewDownloader(cache, f, loop, b, zaptest.NewLogger(t))
	t.Cleanup(d.Close)
	return d, loop, b
}

func TestDownloadDedupesConcurrentRequests(t *testing.T) {
	f := newFakeFetcher()
	f.block = make(chan struct{})
	d, loop, _ := newDownloader(t, f)

	const callers = 5
	results := make(chan string, callers)
	loop.Post(func() {
		for i := 0; i < callers; i++ {
			d.Download("http://host/a.png", func(p string) { results <- p })
		}
	})

	// Let the requests pile onto the single job, then release the fetch.
	time.Sleep(50 * time.Millisecond)
	close(f.block)

	var first string
	for i := 0; i < callers; i++ {
		select {
		case p := <-results:
			if p == "" {
				t.Fatal("callback got empty path")
			}
			if first == "" {
				first = p
			} else if p != first {
				t.Fatalf("paths differ: %q vs %q", p, first)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("callback %d never ran", i)
		}
	}
	if got := f.count("http://host/a.png"); got != 1 {
		t.Fatalf("fetched %d times, want 1", got)
	}
}

func TestDownloadConcurrencyCap(t *testing.T) {
	f := newFakeFetcher()
	f.block = make(chan struct{})
	d, loop, _ := newDownloader(t, f)

	const urls = 8
	results := make(chan string, urls)
	loop.Post(func() {
		for i := 0; i < urls; i++ {
			u := "http://host/pic" + string(rune('a'+i)) + ".png"
			d.Download(u, func(p string) { results <- p })
		}
	})

	time.Sleep(50 * time.Millisecond)
	close(f.block)

	for i := 0; i < urls; i++ {
		select {
		case p := <-results:
			if p == "" {
				t.Fatal("callback got empty path")
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("callback %d never ran", i)
		}
	}
	if got := f.maxLive.Load(); got > maxConcurrent {
		t.Fatalf("peak concurrency %d exceeds cap %d", got, maxConcurrent)
	}
}

func TestDownloadFailureDeliversEmptyPath(t *testing.T) {
	f := newFakeFetcher()
	f.fail = true
	d, loop, _ := newDownloader(t, f)

	result := make(chan string, 1)
	loop.Post(func() {
		d.Download("http://host/broken.png", func(p string) { result <- p })
	})

	select {
	case p := <-result:
		if p != "" {
			t.Fatalf("failed download delivered %q", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}
}

func TestDownloadCacheHitSkipsFetch(t *testing.T) {
	f := newFakeFetcher()
	d, loop, _ := newDownloader(t, f)

	url := "http://host/a.png"
	if _, err := d.Cache().Store(url, make([]byte, 50)); err != nil {
		t.Fatal(err)
	}

	result := make(chan string, 1)
	loop.Post(func() {
		d.Download(url, func(p string) { result <- p })
	})

	select {
	case p := <-result:
		if p == "" {
			t.Fatal("cache hit delivered empty path")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}
	if f.count(url) != 0 {
		t.Fatal("cache hit still fetched")
	}
}

func TestDownloadPublishesBusEvent(t *testing.T) {
	f := newFakeFetcher()
	d, loop, b := newDownloader(t, f)

	events, unsub := b.Subscribe("assets", 4)
	defer unsub()

	loop.Post(func() { d.Download("http://host/a.png", nil) })

	select {
	case ev := <-events:
		got, ok := ev.Payload.(Downloaded)
		if !ok || got.URL != "http://host/a.png" || got.Path == "" {
			t.Fatalf("payload = %#v", ev.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no bus event")
	}
}

func TestImageCache(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.png")
	if err := os.WriteFile(p, []byte("body"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := NewImageCache(2)
	if err != nil {
		t.Fatal(err)
	}
	data, err := c.Get(p)
	if err != nil || string(data) != "body" {
		t.Fatalf("Get = %q, %v", data, err)
	}

	// Served from memory after the first read.
	if err := os.Remove(p); err != nil {
		t.Fatal(err)
	}
	if data, err := c.Get(p); err != nil || string(data) != "body" {
		t.Fatalf("cached Get = %q, %v", data, err)
	}

	c.Forget(p)
	if _, err := c.Get(p); err == nil {
		t.Fatal("forgotten entry still served")
	}
}
