package client

import (
	"errors"
	"net/url"
	"os"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// ErrNotAuthenticated is returned by Start when no stored token exists.
var ErrNotAuthenticated = errors.New("not authenticated")

// loadToken reads the stored auth token, "" when absent. The file holds the
// token on its first line.
func loadToken(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	tok := string(data)
	if i := strings.IndexByte(tok, '\n'); i >= 0 {
		tok = tok[:i]
	}
	return strings.TrimSpace(tok)
}

func saveToken(path, token string) error {
	return os.WriteFile(path, []byte(token+"\n"), 0o600)
}

// Login exchanges credentials for a token, stores it and brings the session
// up. The callback runs on the loop with nil on success.
func (c *Client) Login(email, password string, cb func(error)) {
	form := url.Values{"email": {email}, "password": {password}}
	c.api.PostForm("/login/", form, func(res gjson.Result, err error) {
		if err != nil {
			cb(err)
			return
		}
		c.adoptToken(res.Get("token").String())
		c.bootstrap(cb)
	})
}

// Signup registers a new account and logs it in.
func (c *Client) Signup(email, password, firstName, lastName string, cb func(error)) {
	form := url.Values{
		"email":      {email},
		"password":   {password},
		"first_name": {firstName},
		"last_name":  {lastName},
	}
	c.api.PostForm("/signup/", form, func(res gjson.Result, err error) {
		if err != nil {
			cb(err)
			return
		}
		c.adoptToken(res.Get("token").String())
		c.bootstrap(cb)
	})
}

func (c *Client) adoptToken(token string) {
	c.api.SetToken(token)
	if err := saveToken(c.paths.TokenFile(), token); err != nil {
		c.log.Warn("token not persisted", zap.Error(err))
	}
}

// Logout invalidates the server session and wipes all local state: replica,
// token, caches and the push stream. The client ends up where a fresh start
// with no token would.
func (c *Client) Logout(cb func(error)) {
	c.api.PostForm("/logout/", nil, func(_ gjson.Result, err error) {
		// Local teardown happens even when the server call failed; the
		// token may already be invalid.
		c.teardown()
		if cb != nil {
			cb(err)
		}
	})
}

func (c *Client) teardown() {
	if c.stream != nil {
		c.stream.Stop()
		c.stream = nil
	}
	c.rep.Reset()
	c.api.SetToken("")
	c.currentChat = ""
	c.markSeen = make(map[string]int64)
	c.memberLoads = make(map[string]bool)
	c.images.Purge()
	if err := os.Remove(c.paths.TokenFile()); err != nil && !os.IsNotExist(err) {
		c.log.Warn("token file not removed", zap.Error(err))
	}
	if err := c.dl.Cache().Clear(); err != nil {
		c.log.Warn("cache not cleared", zap.Error(err))
	}
}
