// Package client is the operations layer: it owns the transport, the push
// stream and the replica, and exposes the calls a frontend makes against the
// session. All callbacks run on the run loop.
package client

import (
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/rochat/chatcube/internal/bus"
	"github.com/rochat/chatcube/internal/cachedl"
	"github.com/rochat/chatcube/internal/config"
	"github.com/rochat/chatcube/internal/replica"
	"github.com/rochat/chatcube/internal/runloop"
	"github.com/rochat/chatcube/internal/transport"
)

type Client struct {
	cfg   *config.Config
	log   *zap.Logger
	loop  *runloop.Loop
	bus   *bus.Bus
	paths Paths

	api    *transport.Client
	stream *transport.Stream
	rep    *replica.Replica
	dl     *cachedl.Downloader
	images *cachedl.ImageCache

	currentChat string

	// markSeen coalesces watermark advances per chat until the next idle
	// point, so scrolling through a burst of messages sends one request.
	markSeen      map[string]int64
	markScheduled bool

	memberLoads map[string]bool
}

func New(cfg *config.Config, paths Paths, loop *runloop.Loop, b *bus.Bus, log *zap.Logger) (*Client, error) {
	api := transport.NewClient(cfg.Server.BaseURL, cfg.Server.Lang, loop, log)

	cache, err := cachedl.NewDiskCache(paths.CacheDir())
	if err != nil {
		return nil, err
	}
	dl := cachedl.NewDownloader(cache, api, loop, b, log)

	images, err := cachedl.NewImageCache(cfg.Cache.ImageEntries)
	if err != nil {
		return nil, err
	}

	rep := replica.New(loop, b, dl, log)

	c := &Client{
		cfg:         cfg,
		log:         log.Named("client"),
		loop:        loop,
		bus:         b,
		paths:       paths,
		api:         api,
		rep:         rep,
		dl:          dl,
		images:      images,
		markSeen:    make(map[string]int64),
		memberLoads: make(map[string]bool),
	}
	rep.NeedMembers = c.loadMembers
	return c, nil
}

// Replica exposes the chat state for read access from frontends. All reads
// must happen on the run loop.
func (c *Client) Replica() *replica.Replica { return c.rep }

// Images exposes the in-memory image cache.
func (c *Client) Images() *cachedl.ImageCache { return c.images }

// Downloader exposes the asset downloader for frontends that fetch full-size
// media on demand.
func (c *Client) Downloader() *cachedl.Downloader { return c.dl }

// Connected reports whether the push stream received anything recently.
func (c *Client) Connected() bool {
	return c.stream != nil && c.stream.Connected()
}

// Start brings a stored session up: token, profile, push stream, chat list.
// Returns ErrNotAuthenticated synchronously when no token is stored; all
// later failures arrive through cb.
func (c *Client) Start(cb func(error)) error {
	tok := loadToken(c.paths.TokenFile())
	if tok == "" {
		return ErrNotAuthenticated
	}
	c.api.SetToken(tok)
	c.bootstrap(cb)
	return nil
}

// bootstrap fetches /initial/, which carries the profile and the push
// channel, then connects the stream and loads the chat list. The stream
// connects before the list load starts so frames arriving during the load
// buffer instead of vanishing.
func (c *Client) bootstrap(cb func(error)) {
	c.api.Get("/initial/", nil, func(res gjson.Result, err error) {
		if err != nil {
			if reqErr, ok := err.(*transport.RequestError); ok && reqErr.IsAuthError() {
				c.teardown()
				err = ErrNotAuthenticated
			}
			if cb != nil {
				cb(err)
			}
			return
		}
		c.rep.SetMe(res.Get("profile"))
		c.prefetchStickers(res.Get("stickers"))

		channel := c.rep.Me().PushChannel
		if c.stream != nil {
			c.stream.Stop()
		}
		c.stream = transport.NewStream(c.api.BaseURL(), channel, c.loop, c.log, c.rep.ApplyFrame)
		c.stream.SetCursor(res.Get("time").Int())
		c.stream.Start()

		c.LoadChatList(cb)
	})
}

// prefetchStickers warms the disk cache with the sticker set thumbnails so
// the picker opens without a network round trip.
func (c *Client) prefetchStickers(sets gjson.Result) {
	sets.ForEach(func(_, set gjson.Result) bool {
		set.Get("stickers").ForEach(func(_, st gjson.Result) bool {
			if url := st.Get("image").String(); url != "" {
				c.dl.Download(url, nil)
			}
			return true
		})
		return true
	})
}

// IsLoggedIn reports whether a token is held, stored or from this session.
func (c *Client) IsLoggedIn() bool {
	return c.api.Token() != "" || loadToken(c.paths.TokenFile()) != ""
}

// Stop tears the session down without touching stored credentials. In-flight
// requests are aborted and drained so nothing completes after the owner is
// gone.
func (c *Client) Stop() {
	if c.stream != nil {
		c.stream.Stop()
		c.stream = nil
	}
	c.dl.Close()
	c.api.Close()
}

// LoadChatList (re)fetches the full chat list into the replica.
func (c *Client) LoadChatList(cb func(error)) {
	c.rep.BeginChatsLoad()
	c.api.Get("/chats/", nil, func(res gjson.Result, err error) {
		if err != nil {
			if cb != nil {
				cb(err)
			}
			return
		}
		c.rep.LoadChats(res.Get("chats"))
		if cb != nil {
			cb(nil)
		}
	})
}
