package client

import (
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/rochat/chatcube/internal/model"
)

// loadMembers fetches member profiles by id, skipping ids already in flight.
// Wired as the replica's missing-author callback.
func (c *Client) loadMembers(ids []string) {
	var fetch []string
	for _, id := range ids {
		if c.memberLoads[id] {
			continue
		}
		c.memberLoads[id] = true
		fetch = append(fetch, id)
	}
	if len(fetch) == 0 {
		return
	}

	q := url.Values{"id": fetch}
	c.api.Get("/members/", q, func(res gjson.Result, err error) {
		for _, id := range fetch {
			delete(c.memberLoads, id)
		}
		if err != nil {
			c.rep.ForgetAuthorRequests(fetch)
			c.log.Warn("member load failed", zap.Int("count", len(fetch)), zap.Error(err))
			return
		}
		res.Get("members").ForEach(func(_, mj gjson.Result) bool {
			c.rep.UpsertMember(mj)
			return true
		})
	})
}

// LoadMember fetches one member profile into the replica.
func (c *Client) LoadMember(id string, cb func(*model.Member, error)) {
	c.api.Get("/members/"+id+"/", nil, func(res gjson.Result, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		cb(c.rep.UpsertMember(res), nil)
	})
}

// Contacts fetches the account's contact list for one messenger into the
// replica. messenger 0 fetches all networks.
func (c *Client) Contacts(messenger byte, cb func([]*model.Member, error)) {
	var q url.Values
	if messenger != 0 {
		q = url.Values{"messenger": {string([]byte{messenger})}}
	}
	c.api.Get("/contacts/", q, func(res gjson.Result, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		var out []*model.Member
		res.Get("contacts").ForEach(func(_, mj gjson.Result) bool {
			if m := c.rep.UpsertMember(mj); m != nil {
				out = append(out, m)
			}
			return true
		})
		cb(out, nil)
	})
}

// UpdateProfile patches the logged-in profile. Only the supplied fields
// change.
func (c *Client) UpdateProfile(fields map[string]string, cb func(error)) {
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	c.api.Patch("/profile/", form, func(res gjson.Result, err error) {
		if err == nil {
			c.rep.SetMe(res)
		}
		if cb != nil {
			cb(err)
		}
	})
}

// SetProfilePhoto uploads a new avatar for the logged-in user.
func (c *Client) SetProfilePhoto(filename string, data []byte, cb func(error)) {
	c.api.Submit(photoRequest("/profile/photo/", filename, data), func(res gjson.Result, err error) {
		if err == nil {
			c.rep.SetMe(res)
		}
		if cb != nil {
			cb(err)
		}
	})
}

// UpdateNotificationSettings pushes the notification profile server-side.
func (c *Client) UpdateNotificationSettings(ns model.NotificationSettings, cb func(error)) {
	form := url.Values{
		"popup":      {boolField(ns.Popup)},
		"taskbar":    {boolField(ns.Taskbar)},
		"sound":      {boolField(ns.Sound)},
		"unread_age": {strconv.Itoa(ns.UnreadAge)},
	}
	c.api.Patch("/profile/notifications/", form, func(res gjson.Result, err error) {
		if err == nil {
			c.rep.SetMe(res)
		}
		if cb != nil {
			cb(err)
		}
	})
}

// UnlinkTelegram disconnects the relayed account.
func (c *Client) UnlinkTelegram(cb func(error)) {
	c.api.Delete("/profile/telegram/", nil, func(_ gjson.Result, err error) {
		if err == nil && c.rep.Me() != nil {
			c.rep.Me().ClearTelegram()
		}
		if cb != nil {
			cb(err)
		}
	})
}

func boolField(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
