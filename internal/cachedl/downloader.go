package cachedl

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rochat/chatcube/internal/bus"
	"github.com/rochat/chatcube/internal/runloop"
)

// maxConcurrent caps parallel asset fetches. Everything past the cap queues
// in request order.
const maxConcurrent = 3

// Fetcher retrieves the body of an asset URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Callback receives the local cache path, or "" when the download failed.
type Callback func(path string)

// Downloaded is the bus payload published when an asset lands on disk.
type Downloaded struct {
	URL  string
	Path string
}

// Progress is the aggregate payload published while several assets are being
// fetched, so a frontend can show one combined indicator.
type Progress struct {
	Active int
	Queued int
}

type job struct {
	url     string
	waiters []Callback
}

// Downloader schedules asset downloads into a DiskCache. All methods must be
// called on the run loop; fetches run on their own goroutines and completion
// is posted back.
type Downloader struct {
	cache *DiskCache
	fetch Fetcher
	loop  *runloop.Loop
	bus   *bus.Bus
	log   *zap.Logger

	jobs   map[string]*job
	queue  []*job
	active int

	ctx    context.Context
	cancel context.CancelFunc
}

func NewDownloader(cache *DiskCache, fetch Fetcher, loop *runloop.Loop, b *bus.Bus, log *zap.Logger) *Downloader {
	ctx, cancel := context.WithCancel(context.Background())
	return &Downloader{
		cache:  cache,
		fetch:  fetch,
		loop:   loop,
		bus:    b,
		log:    log.Named("cachedl"),
		jobs:   make(map[string]*job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close aborts in-flight fetches. Queued callbacks still fire with "".
func (d *Downloader) Close() { d.cancel() }

// Cache exposes the backing disk cache for synchronous hit checks.
func (d *Downloader) Cache() *DiskCache { return d.cache }

// Download hands back the cached path immediately when the asset is already
// on disk; otherwise it joins or starts the download for that URL. One URL
// fetches once no matter how many callers ask, and every caller's callback
// fires with the same result.
func (d *Downloader) Download(url string, cb Callback) {
	if url == "" {
		if cb != nil {
			cb("")
		}
		return
	}
	if p, ok := d.cache.CachedPath(url); ok {
		if cb != nil {
			cb(p)
		}
		return
	}
	if j, ok := d.jobs[url]; ok {
		if cb != nil {
			j.waiters = append(j.waiters, cb)
		}
		return
	}
	j := &job{url: url}
	if cb != nil {
		j.waiters = append(j.waiters, cb)
	}
	d.jobs[url] = j
	d.queue = append(d.queue, j)
	d.schedule()
}

// InFlight reports how many fetches are currently running.
func (d *Downloader) InFlight() int { return d.active }

// Pending reports how many URLs are waiting or running.
func (d *Downloader) Pending() int { return len(d.jobs) }

func (d *Downloader) schedule() {
	for d.active < maxConcurrent && len(d.queue) > 0 {
		j := d.queue[0]
		d.queue = d.queue[1:]
		d.active++
		go d.run(j)
	}
	if d.active+len(d.queue) > 1 {
		d.bus.Publish(bus.Event{
			Kind:      "assets.progress",
			Timestamp: time.Now(),
			Payload:   Progress{Active: d.active, Queued: len(d.queue)},
		})
	}
}

func (d *Downloader) run(j *job) {
	start := time.Now()
	data, err := d.fetch.Fetch(d.ctx, j.url)

	path := ""
	if err == nil {
		path, err = d.cache.Store(j.url, data)
	}
	if err != nil {
		d.log.Warn("download failed", zap.String("url", j.url), zap.Error(err))
		path = ""
	} else {
		d.log.Debug("download done",
			zap.String("url", j.url),
			zap.Int("bytes", len(data)),
			zap.Duration("took", time.Since(start)))
	}

	d.loop.Post(func() { d.finish(j, path) })
}

func (d *Downloader) finish(j *job, path string) {
	d.active--
	delete(d.jobs, j.url)
	for _, cb := range j.waiters {
		cb(path)
	}
	if path != "" {
		d.bus.Publish(bus.Event{
			Kind:      "assets.downloaded",
			Timestamp: time.Now(),
			Payload:   Downloaded{URL: j.url, Path: path},
		})
	}
	d.schedule()
}
