package client

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/rochat/chatcube/internal/bus"
	"github.com/rochat/chatcube/internal/model"
	"github.com/rochat/chatcube/internal/transport"
)

var errBadResponse = errors.New("malformed server response")

func errUnknownChat(id string) error {
	return fmt.Errorf("unknown chat %q", id)
}

// SendText sends a text message. The message appears in the window
// immediately as a pending record and resolves when the server answers.
func (c *Client) SendText(chatID, text string, replyTo int64, cb func(error)) {
	pending := &model.Message{Type: model.MessageTypeText, Text: text}
	form := url.Values{
		"chat_id": {chatID},
		"type":    {strconv.Itoa(model.MessageTypeText)},
		"text":    {text},
	}
	if replyTo != 0 {
		form.Set("reply_to", strconv.FormatInt(replyTo, 10))
	}
	c.sendMessage(chatID, pending, transport.Request{
		Method: http.MethodPost,
		Path:   "/messages/",
		Form:   form,
	}, cb)
}

// SendSticker sends a sticker by its catalog URL.
func (c *Client) SendSticker(chatID, stickerURL string, cb func(error)) {
	pending := &model.Message{
		Type:  model.MessageTypeSticker,
		Image: &model.AttachmentImage{URL: stickerURL},
	}
	form := url.Values{
		"chat_id": {chatID},
		"type":    {strconv.Itoa(model.MessageTypeSticker)},
		"sticker": {stickerURL},
	}
	c.sendMessage(chatID, pending, transport.Request{
		Method: http.MethodPost,
		Path:   "/messages/",
		Form:   form,
	}, cb)
}

// SendPhoto uploads an image message with an optional caption.
func (c *Client) SendPhoto(chatID, filename string, data []byte, caption string, cb func(error)) {
	pending := &model.Message{
		Type:  model.MessageTypePhoto,
		Text:  caption,
		Image: &model.AttachmentImage{Size: int64(len(data))},
	}
	form := url.Values{
		"chat_id": {chatID},
		"type":    {strconv.Itoa(model.MessageTypePhoto)},
	}
	if caption != "" {
		form.Set("text", caption)
	}
	c.sendMessage(chatID, pending, transport.Request{
		Method:   http.MethodPost,
		Path:     "/messages/",
		Form:     form,
		Uploads:  []transport.Upload{{Field: "photo", Filename: filename, Data: data}},
		Timeout:  -1,
		Progress: c.uploadProgress(chatID),
	}, cb)
}

// SendFile uploads a file message.
func (c *Client) SendFile(chatID, filename string, data []byte, fileType int, cb func(error)) {
	pending := &model.Message{
		Type: model.MessageTypeFile,
		File: &model.AttachmentFile{Name: filename, Size: int64(len(data)), FileType: fileType},
	}
	form := url.Values{
		"chat_id":   {chatID},
		"type":      {strconv.Itoa(model.MessageTypeFile)},
		"file_type": {strconv.Itoa(fileType)},
	}
	c.sendMessage(chatID, pending, transport.Request{
		Method:   http.MethodPost,
		Path:     "/messages/",
		Form:     form,
		Uploads:  []transport.Upload{{Field: "file", Filename: filename, Data: data}},
		Timeout:  -1,
		Progress: c.uploadProgress(chatID),
	}, cb)
}

// sendMessage runs the shared optimistic send path: append the pending
// record, fire the request, then confirm or fail the record on the response.
func (c *Client) sendMessage(chatID string, pending *model.Message, req transport.Request, cb func(error)) {
	if c.rep.Chat(chatID) == nil {
		if cb != nil {
			cb(errUnknownChat(chatID))
		}
		return
	}
	c.rep.AddOptimistic(chatID, pending)

	c.api.Submit(req, func(res gjson.Result, err error) {
		if err != nil {
			c.rep.FailOptimistic(chatID, pending)
			if cb != nil {
				cb(err)
			}
			return
		}
		if pending.ID == 0 {
			auth := model.NewMessage(res, chatID)
			c.rep.ConfirmOptimistic(chatID, pending, auth)
		}
		if cb != nil {
			cb(nil)
		}
	})
}

// ResendMessage retries a failed record with its original text. The failure
// removed it from the window, so the retry re-appends it as a fresh
// provisional record.
func (c *Client) ResendMessage(chatID string, failed *model.Message, cb func(error)) {
	if failed.SendingState != model.SendingStateFailed {
		if cb != nil {
			cb(errors.New("message is not in a failed state"))
		}
		return
	}
	form := url.Values{
		"chat_id": {chatID},
		"type":    {strconv.Itoa(failed.Type)},
		"text":    {failed.Text},
	}
	c.sendMessage(chatID, failed, transport.Request{
		Method: http.MethodPost,
		Path:   "/messages/",
		Form:   form,
	}, cb)
}

// EditMessageText rewrites the text of an already sent message.
func (c *Client) EditMessageText(chatID string, messageID int64, text string, cb func(error)) {
	form := url.Values{"text": {text}}
	c.api.Patch("/messages/"+strconv.FormatInt(messageID, 10)+"/", form, func(res gjson.Result, err error) {
		if err == nil {
			c.rep.UpdateMessage(chatID, res, false)
		}
		if cb != nil {
			cb(err)
		}
	})
}

// DeleteMessages removes messages server-side and from the replica.
func (c *Client) DeleteMessages(chatID string, ids []int64, cb func(error)) {
	q := url.Values{"chat_id": {chatID}}
	for _, id := range ids {
		q.Add("id", strconv.FormatInt(id, 10))
	}
	c.api.Delete("/messages/", q, func(_ gjson.Result, err error) {
		if err == nil {
			c.rep.DeleteMessages(chatID, ids)
		}
		if cb != nil {
			cb(err)
		}
	})
}

// ForwardMessage reposts a message into another chat.
func (c *Client) ForwardMessage(toChatID, fromChatID string, messageID int64, cb func(error)) {
	form := url.Values{
		"chat_id":      {toChatID},
		"from_chat_id": {fromChatID},
		"message_id":   {strconv.FormatInt(messageID, 10)},
	}
	c.api.PostForm("/messages/forward/", form, func(res gjson.Result, err error) {
		if err == nil && res.IsObject() {
			c.rep.UpsertMessage(toChatID, res, false)
		}
		if cb != nil {
			cb(err)
		}
	})
}

// SearchInChat searches a chat's history server-side and folds in matches
// from the loaded window the server cannot know yet, such as provisional
// records still waiting on their send.
func (c *Client) SearchInChat(chatID, query string, filter int, cb func([]*model.Message, error)) {
	q := url.Values{"chat_id": {chatID}, "q": {query}}
	if filter != 0 {
		q.Set("filter", strconv.Itoa(filter))
	}
	c.api.Get("/messages/search/", q, func(res gjson.Result, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		var out []*model.Message
		seen := make(map[int64]bool)
		res.Get("messages").ForEach(func(_, mj gjson.Result) bool {
			m := model.NewMessage(mj, chatID)
			if m.MatchesFilterAndQuery(filter, query) {
				out = append(out, m)
				seen[m.ID] = true
			}
			return true
		})
		if chat := c.rep.Chat(chatID); chat != nil {
			for _, m := range chat.Messages {
				if m.ID != 0 && seen[m.ID] {
					continue
				}
				if m.MatchesFilterAndQuery(filter, query) {
					out = append(out, m)
				}
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Sendtime != out[j].Sendtime {
				return out[i].Sendtime < out[j].Sendtime
			}
			return out[i].ID < out[j].ID
		})
		cb(out, nil)
	})
}

// HistoryPage is one slice of an export download.
type HistoryPage struct {
	Messages []gjson.Result
	HasMore  bool
	NextID   int64
}

// DownloadHistory fetches one export page of a chat's history, oldest first.
// Callers loop with the returned NextID until HasMore is false.
func (c *Client) DownloadHistory(chatID string, afterID int64, cb func(HistoryPage, error)) {
	q := url.Values{
		"chat_id":  {chatID},
		"after_id": {strconv.FormatInt(afterID, 10)},
		"limit":    {strconv.Itoa(messagePageSize)},
	}
	c.api.Get("/messages/history/", q, func(res gjson.Result, err error) {
		if err != nil {
			cb(HistoryPage{}, err)
			return
		}
		msgs := res.Get("messages").Array()
		page := HistoryPage{Messages: msgs, HasMore: res.Get("has_more").Bool()}
		if n := len(msgs); n > 0 {
			page.NextID = msgs[n-1].Get("id").Int()
		}
		cb(page, nil)
	})
}

// photoRequest builds a one-file multipart upload request. Uploads run
// without the fixed request deadline since their duration scales with the
// body.
func photoRequest(path, filename string, data []byte) transport.Request {
	return transport.Request{
		Method:  http.MethodPost,
		Path:    path,
		Uploads: []transport.Upload{{Field: "photo", Filename: filename, Data: data}},
		Timeout: -1,
	}
}

// UploadProgress is the bus payload published while a message attachment
// streams to the server.
type UploadProgress struct {
	ChatID string
	Sent   int64
	Total  int64
}

func (c *Client) uploadProgress(chatID string) func(sent, total int64) {
	return func(sent, total int64) {
		c.bus.Publish(bus.Event{
			Kind:      "upload.progress",
			Timestamp: time.Now(),
			Payload:   UploadProgress{ChatID: chatID, Sent: sent, Total: total},
		})
	}
}
