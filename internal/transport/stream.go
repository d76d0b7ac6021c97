package transport

import (
	"bufio"
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/rochat/chatcube/internal/runloop"
)

// connectedWindow is how long after the last received frame the stream still
// counts as connected. The server heartbeats inside this window.
const connectedWindow = 30 * time.Second

// FrameHandler receives the envelope text of each stream frame on the run
// loop, in arrival order.
type FrameHandler func(text string)

// Stream is the server-sent event feed of one push channel. It reconnects
// with exponential backoff and resumes from the last frame's cursor so no
// event is skipped across drops.
type Stream struct {
	baseURL string
	channel string

	cursor      atomic.Int64
	lastReceive atomic.Int64

	hc      *http.Client
	loop    *runloop.Loop
	log     *zap.Logger
	handler FrameHandler

	cancel context.CancelFunc
	done   chan struct{}
}

func NewStream(baseURL, channel string, loop *runloop.Loop, log *zap.Logger, h FrameHandler) *Stream {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Stream{
		baseURL: baseURL,
		channel: channel,
		// No client-level timeout: the connection stays open indefinitely.
		hc:      &http.Client{},
		loop:    loop,
		log:     log.Named("stream"),
		handler: h,
	}
}

// SetCursor seeds the resume position before the first connect.
func (s *Stream) SetCursor(t int64) { s.cursor.Store(t) }

// Cursor returns the time of the last applied frame.
func (s *Stream) Cursor() int64 { return s.cursor.Load() }

// Connected reports whether a frame or heartbeat arrived recently.
func (s *Stream) Connected() bool {
	last := s.lastReceive.Load()
	return last != 0 && time.Since(time.Unix(0, last)) < connectedWindow
}

// Start launches the reader goroutine. It runs until Stop.
func (s *Stream) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
}

// Stop tears down the connection and waits for the reader to exit.
func (s *Stream) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

func (s *Stream) run(ctx context.Context) {
	defer close(s.done)

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0

	for {
		err := s.connect(ctx, bo)
		if ctx.Err() != nil {
			return
		}
		wait := bo.NextBackOff()
		s.log.Warn("stream dropped",
			zap.String("channel", s.channel),
			zap.Duration("retry_in", wait),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// connect opens one stream connection and reads frames until it breaks.
func (s *Stream) connect(ctx context.Context, bo *backoff.ExponentialBackOff) error {
	url := s.baseURL + "ev/m" + s.channel
	if t := s.cursor.Load(); t > 0 {
		url += "?time=" + strconv.FormatInt(t, 10)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &RequestError{HTTPStatus: resp.StatusCode}
	}

	s.log.Info("stream connected", zap.String("channel", s.channel), zap.Int64("cursor", s.cursor.Load()))
	bo.Reset()
	s.lastReceive.Store(time.Now().UnixNano())

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	for sc.Scan() {
		s.lastReceive.Store(time.Now().UnixNano())
		line := sc.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		frame := gjson.Parse(strings.TrimSpace(line[len("data:"):]))
		if !frame.IsObject() {
			continue
		}
		if t := frame.Get("time").Int(); t > s.cursor.Load() {
			s.cursor.Store(t)
		}
		text := frame.Get("text").String()
		if text == "" {
			continue
		}
		s.loop.Post(func() { s.handler(text) })
	}
	return sc.Err()
}
