package client

import (
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/rochat/chatcube/internal/model"
)

// messagePageSize is the window size of one history fetch.
const messagePageSize = 50

// OpenChat makes a chat current, loading its history window on first open and
// advancing the seen watermark to the newest loaded message.
func (c *Client) OpenChat(chatID string, cb func(error)) {
	chat := c.rep.Chat(chatID)
	if chat == nil {
		if cb != nil {
			cb(errUnknownChat(chatID))
		}
		return
	}
	c.currentChat = chatID

	done := func(err error) {
		if err == nil {
			c.markChatSeen(chatID)
		}
		if cb != nil {
			cb(err)
		}
	}
	if chat.MessagesLoaded {
		done(nil)
		return
	}
	c.LoadMessages(chatID, done)
}

// CurrentChat returns the open chat id, "" when none.
func (c *Client) CurrentChat() string { return c.currentChat }

// CloseChat clears the current chat.
func (c *Client) CloseChat() { c.currentChat = "" }

// LoadMessages replaces a chat's window with the newest history page and
// stores the cursor URLs the server embeds alongside it.
func (c *Client) LoadMessages(chatID string, cb func(error)) {
	q := url.Values{
		"chat_id": {chatID},
		"limit":   {strconv.Itoa(messagePageSize)},
	}
	c.api.Get("/messages/", q, func(res gjson.Result, err error) {
		if err != nil {
			if cb != nil {
				cb(err)
			}
			return
		}
		chat := c.rep.Chat(chatID)
		if chat == nil {
			if cb != nil {
				cb(errUnknownChat(chatID))
			}
			return
		}
		chat.Messages = nil
		res.Get("messages").ForEach(func(_, mj gjson.Result) bool {
			c.rep.UpsertMessage(chatID, mj, false)
			return true
		})
		chat.SetOlderMessagesURL(res.Get("next").String())
		chat.SetNewerMessagesURL(res.Get("prev").String())
		chat.MessagesLoaded = true
		if cb != nil {
			cb(nil)
		}
	})
}

// LoadMoreMessages extends the window backwards by following the chat's
// older-messages cursor URL as the server handed it out.
func (c *Client) LoadMoreMessages(chatID string, cb func(error)) {
	chat := c.rep.Chat(chatID)
	if chat == nil {
		if cb != nil {
			cb(errUnknownChat(chatID))
		}
		return
	}
	if !chat.HasOlderMessages() {
		if cb != nil {
			cb(nil)
		}
		return
	}
	c.api.GetURL(chat.OlderMessagesURL(), func(res gjson.Result, err error) {
		if err != nil {
			if cb != nil {
				cb(err)
			}
			return
		}
		res.Get("messages").ForEach(func(_, mj gjson.Result) bool {
			c.rep.UpsertMessage(chatID, mj, false)
			return true
		})
		if ch := c.rep.Chat(chatID); ch != nil {
			ch.SetOlderMessagesURL(res.Get("next").String())
		}
		if cb != nil {
			cb(nil)
		}
	})
}

// LoadNewerMessages extends a detached window forwards by following the
// chat's newer-messages cursor URL, reattaching the window once the server
// stops embedding one.
func (c *Client) LoadNewerMessages(chatID string, cb func(error)) {
	chat := c.rep.Chat(chatID)
	if chat == nil {
		if cb != nil {
			cb(errUnknownChat(chatID))
		}
		return
	}
	if !chat.HasNewerMessages() {
		if cb != nil {
			cb(nil)
		}
		return
	}
	c.api.GetURL(chat.NewerMessagesURL(), func(res gjson.Result, err error) {
		if err != nil {
			if cb != nil {
				cb(err)
			}
			return
		}
		res.Get("messages").ForEach(func(_, mj gjson.Result) bool {
			c.rep.UpsertMessage(chatID, mj, false)
			return true
		})
		if ch := c.rep.Chat(chatID); ch != nil {
			ch.SetNewerMessagesURL(res.Get("prev").String())
		}
		if cb != nil {
			cb(nil)
		}
	})
}

// MarkSeen advances the seen watermark. Calls coalesce per chat until the
// loop goes idle; only the highest id of the batch reaches the server.
func (c *Client) MarkSeen(chatID string, messageID int64) {
	chat := c.rep.Chat(chatID)
	if chat == nil || messageID <= chat.IncomingSeenMessageID {
		return
	}
	if messageID <= c.markSeen[chatID] {
		return
	}
	c.markSeen[chatID] = messageID
	if !c.markScheduled {
		c.markScheduled = true
		c.loop.Defer(c.flushMarkSeen)
	}
}

// MarkSeenLast marks the newest loaded message of a chat seen.
func (c *Client) MarkSeenLast(chatID string) { c.markChatSeen(chatID) }

// markChatSeen marks the newest loaded message of a chat seen.
func (c *Client) markChatSeen(chatID string) {
	chat := c.rep.Chat(chatID)
	if chat == nil || len(chat.Messages) == 0 {
		return
	}
	newest := chat.Messages[len(chat.Messages)-1]
	if newest.ID > 0 {
		c.MarkSeen(chatID, newest.ID)
	}
}

func (c *Client) flushMarkSeen() {
	c.markScheduled = false
	batch := c.markSeen
	c.markSeen = make(map[string]int64)

	for chatID, id := range batch {
		form := url.Values{
			"chat_id":    {chatID},
			"message_id": {strconv.FormatInt(id, 10)},
		}
		chatID, id := chatID, id
		c.api.PostForm("/chats/seen/", form, func(_ gjson.Result, err error) {
			if err != nil {
				c.log.Warn("mark seen failed", zap.String("chat", chatID), zap.Error(err))
				return
			}
			if chat := c.rep.Chat(chatID); chat != nil && id > chat.IncomingSeenMessageID {
				chat.IncomingSeenMessageID = id
				chat.UnreadCount = 0
			}
		})
	}
}

// SendChatAction broadcasts a composing action, fire and forget.
func (c *Client) SendChatAction(chatID string, action int) {
	form := url.Values{
		"chat_id": {chatID},
		"action":  {strconv.Itoa(action)},
	}
	c.api.PostForm("/chats/action/", form, nil)
}

// CreatePrivateChat opens or returns the one-to-one chat with a member.
func (c *Client) CreatePrivateChat(memberID string, cb func(chatID string, err error)) {
	form := url.Values{"member_id": {memberID}}
	c.api.PostForm("/chats/", form, func(res gjson.Result, err error) {
		if err != nil {
			cb("", err)
			return
		}
		chat := c.rep.UpsertChat(res)
		if chat == nil {
			cb("", errBadResponse)
			return
		}
		cb(chat.ID, nil)
	})
}

// CreateGroupChat creates a titled group with initial members.
func (c *Client) CreateGroupChat(title string, memberIDs []string, cb func(chatID string, err error)) {
	form := url.Values{"title": {title}, "member_ids": memberIDs}
	c.api.PostForm("/chats/", form, func(res gjson.Result, err error) {
		if err != nil {
			cb("", err)
			return
		}
		chat := c.rep.UpsertChat(res)
		if chat == nil {
			cb("", errBadResponse)
			return
		}
		cb(chat.ID, nil)
	})
}

// AddChatMembers invites members into a group chat.
func (c *Client) AddChatMembers(chatID string, memberIDs []string, cb func(error)) {
	form := url.Values{"chat_id": {chatID}, "member_ids": memberIDs}
	c.api.PostForm("/chats/members/", form, func(res gjson.Result, err error) {
		if err == nil {
			c.rep.UpsertChat(res)
		}
		if cb != nil {
			cb(err)
		}
	})
}

// SetChatTitle renames a chat.
func (c *Client) SetChatTitle(chatID, title string, cb func(error)) {
	form := url.Values{"title": {title}}
	c.api.Patch("/chats/"+chatID+"/", form, func(res gjson.Result, err error) {
		if err == nil {
			c.rep.UpsertChat(res)
		}
		if cb != nil {
			cb(err)
		}
	})
}

// SetChatPhoto uploads a new chat avatar.
func (c *Client) SetChatPhoto(chatID, filename string, data []byte, cb func(error)) {
	c.api.Submit(photoRequest("/chats/"+chatID+"/photo/", filename, data), func(res gjson.Result, err error) {
		if err == nil {
			c.rep.UpsertChat(res)
		}
		if cb != nil {
			cb(err)
		}
	})
}

// LeaveChat removes the logged-in user from a chat.
func (c *Client) LeaveChat(chatID string, cb func(error)) {
	c.api.Delete("/chats/"+chatID+"/members/me/", nil, func(_ gjson.Result, err error) {
		if err == nil {
			c.rep.DeleteChat(chatID)
		}
		if cb != nil {
			cb(err)
		}
	})
}

// ClearChatHistory wipes a chat's messages for this account.
func (c *Client) ClearChatHistory(chatID string, cb func(error)) {
	c.api.Delete("/chats/"+chatID+"/messages/", nil, func(_ gjson.Result, err error) {
		if err == nil {
			c.rep.ClearChat(chatID)
		}
		if cb != nil {
			cb(err)
		}
	})
}

// ChatMembers fetches the full member list of a chat into the replica.
func (c *Client) ChatMembers(chatID string, cb func([]*model.Member, error)) {
	c.api.Get("/chats/"+chatID+"/members/", nil, func(res gjson.Result, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		chat := c.rep.Chat(chatID)
		var out []*model.Member
		res.Get("members").ForEach(func(_, mj gjson.Result) bool {
			if m := c.rep.UpsertMember(mj); m != nil {
				if chat != nil {
					chat.Members[m.ID] = m
				}
				out = append(out, m)
			}
			return true
		})
		if chat != nil {
			chat.MembersLoaded = true
		}
		cb(out, nil)
	})
}

// SearchPublicChats queries the public chat directory of one messenger.
// messenger 0 searches all networks.
func (c *Client) SearchPublicChats(messenger byte, query string, cb func([]gjson.Result, error)) {
	q := url.Values{"q": {query}}
	if messenger != 0 {
		q.Set("messenger", string([]byte{messenger}))
	}
	c.api.Get("/chats/search/", q, func(res gjson.Result, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		cb(res.Get("chats").Array(), nil)
	})
}
