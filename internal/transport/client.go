package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/rochat/chatcube/internal/runloop"
)

const requestTimeout = 30 * time.Second

// Callback receives the decoded response body, or the request's error, on the
// run loop.
type Callback func(res gjson.Result, err error)

// Upload is one file part of a multipart request.
type Upload struct {
	Field    string
	Filename string
	Data     []byte
}

// Request describes one API call. Form fields and uploads are mutually
// combined into a multipart body when uploads are present, and a urlencoded
// body otherwise.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Form    url.Values
	Uploads []Upload

	// URL overrides Path with a full absolute URL, used for server-embedded
	// pagination cursors that must be requested verbatim.
	URL string

	// Timeout overrides the default per-request deadline. Zero applies the
	// default; negative runs without a deadline, which uploads need since
	// their duration scales with the body.
	Timeout time.Duration

	// Progress, when set, receives upload progress on the run loop as the
	// body streams out.
	Progress func(sent, total int64)
}

// Client issues API requests off the run loop and posts their callbacks back
// onto it, so completion handlers run single-threaded with the replica.
type Client struct {
	baseURL string
	lang    string
	token   string

	hc   *http.Client
	loop *runloop.Loop
	log  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewClient(baseURL, lang string, loop *runloop.Loop, log *zap.Logger) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		baseURL: baseURL,
		lang:    lang,
		hc:      &http.Client{},
		loop:    loop,
		log:     log.Named("transport"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Close aborts in-flight requests and waits for their goroutines to finish,
// so nothing posts or logs after the owning component stopped.
func (c *Client) Close() {
	c.cancel()
	c.wg.Wait()
}

// SetToken installs the auth token sent with every subsequent request.
func (c *Client) SetToken(token string) { c.token = token }

func (c *Client) Token() string { return c.token }

// BaseURL returns the server base with its trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// apiURL builds {base}{lang}/api{path}.
func (c *Client) apiURL(path string) string {
	return c.baseURL + c.lang + "/api" + path
}

// Submit runs the request on its own goroutine and posts cb to the run loop
// when it completes. cb may be nil for fire-and-forget calls.
func (c *Client) Submit(req Request, cb Callback) {
	reqID := uuid.NewString()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res, err := c.do(reqID, req)
		if cb == nil {
			return
		}
		c.loop.Post(func() { cb(res, err) })
	}()
}

func (c *Client) do(reqID string, req Request) (gjson.Result, error) {
	var ctx context.Context
	var cancel context.CancelFunc
	switch {
	case req.Timeout < 0:
		ctx, cancel = context.WithCancel(c.ctx)
	case req.Timeout > 0:
		ctx, cancel = context.WithTimeout(c.ctx, req.Timeout)
	default:
		ctx, cancel = context.WithTimeout(c.ctx, requestTimeout)
	}
	defer cancel()

	u := req.URL
	if u == "" {
		u = c.apiURL(req.Path)
	}
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case len(req.Uploads) > 0:
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for k, vs := range req.Form {
			for _, v := range vs {
				if err := w.WriteField(k, v); err != nil {
					return gjson.Result{}, err
				}
			}
		}
		for _, up := range req.Uploads {
			part, err := w.CreateFormFile(up.Field, up.Filename)
			if err != nil {
				return gjson.Result{}, err
			}
			if _, err := part.Write(up.Data); err != nil {
				return gjson.Result{}, err
			}
		}
		if err := w.Close(); err != nil {
			return gjson.Result{}, err
		}
		body = &buf
		contentType = w.FormDataContentType()
	case len(req.Form) > 0:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	var bodyLen int64
	switch b := body.(type) {
	case *bytes.Buffer:
		bodyLen = int64(b.Len())
	case *strings.Reader:
		bodyLen = int64(b.Len())
	}
	if req.Progress != nil && body != nil {
		body = &progressReader{r: body, total: bodyLen, loop: c.loop, fn: req.Progress}
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return gjson.Result{}, err
	}
	if req.Progress != nil && body != nil {
		hreq.ContentLength = bodyLen
	}
	if contentType != "" {
		hreq.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		hreq.Header.Set("Authorization", "Token "+c.token)
	}

	label := req.Path
	if label == "" {
		label = u
	}

	start := time.Now()
	resp, err := c.hc.Do(hreq)
	if err != nil {
		c.log.Warn("request failed",
			zap.String("id", reqID),
			zap.String("method", req.Method),
			zap.String("path", label),
			zap.Error(err))
		return gjson.Result{}, fmt.Errorf("%s %s: %w", req.Method, label, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s %s: read body: %w", req.Method, label, err)
	}

	c.log.Debug("request done",
		zap.String("id", reqID),
		zap.String("method", req.Method),
		zap.String("path", label),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return gjson.Result{}, parseErrorBody(resp.StatusCode, data)
	}
	return gjson.ParseBytes(data), nil
}

// progressReader reports bytes handed to the HTTP transport, posting each
// increment to the run loop.
type progressReader struct {
	r     io.Reader
	sent  int64
	total int64
	loop  *runloop.Loop
	fn    func(sent, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		sent := p.sent
		p.loop.Post(func() { p.fn(sent, p.total) })
	}
	return n, err
}

// Get is shorthand for a query-only GET.
func (c *Client) Get(path string, query url.Values, cb Callback) {
	c.Submit(Request{Method: http.MethodGet, Path: path, Query: query}, cb)
}

// GetURL fetches a server-embedded absolute URL verbatim, with auth.
func (c *Client) GetURL(rawURL string, cb Callback) {
	c.Submit(Request{Method: http.MethodGet, URL: rawURL}, cb)
}

// PostForm is shorthand for a urlencoded POST.
func (c *Client) PostForm(path string, form url.Values, cb Callback) {
	c.Submit(Request{Method: http.MethodPost, Path: path, Form: form}, cb)
}

// Delete is shorthand for a body-less DELETE.
func (c *Client) Delete(path string, query url.Values, cb Callback) {
	c.Submit(Request{Method: http.MethodDelete, Path: path, Query: query}, cb)
}

// Patch is shorthand for a urlencoded PATCH.
func (c *Client) Patch(path string, form url.Values, cb Callback) {
	c.Submit(Request{Method: http.MethodPatch, Path: path, Form: form}, cb)
}

// Fetch retrieves an arbitrary absolute URL without the API prefix or auth
// header. The downloader uses it for asset bodies.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &RequestError{HTTPStatus: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, 64<<20))
}
