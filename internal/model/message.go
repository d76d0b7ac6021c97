package model

import "github.com/tidwall/gjson"

// Message type discriminators as sent by the server.
const (
	MessageTypeText     = 1
	MessageTypeFile     = 2
	MessageTypePhoto    = 3
	MessageTypeSticker  = 4
	MessageTypeAudio    = 5
	MessageTypeVideo    = 6
	MessageTypeContact  = 7
	MessageTypeLocation = 8
	MessageTypeJoin     = 9
	MessageTypeLeave    = 10
	MessageTypeCall     = 11
	MessageTypePoll     = 12
	MessageTypeCustom   = 100
)

// Message flag bits.
const (
	MessageFlagOutgoing uint32 = 1 << iota
	MessageFlagSystem
	MessageFlagDeleted
	MessageFlagEditable
)

// Sending states. Optimistic records start out pending and either get swapped
// for the authoritative record or removed on send failure.
const (
	SendingStateOK = iota
	SendingStatePending
	SendingStateFailed
)

// Message search filters.
const (
	MessagesFilterAttachments = 1
	MessagesFilterLinks       = 2
	MessagesFilterEmails      = 3
)

// AttachmentFile describes a generic file attachment.
type AttachmentFile struct {
	URL         string
	Name        string
	ThumbURL    string
	ThumbCached string
	ThumbWidth  int
	ThumbHeight int
	Width       int
	Height      int
	FileType    int
	Duration    int
	Size        int64
}

func (a *AttachmentFile) UpdateFromJSON(j gjson.Result) {
	setString(j, "url", &a.URL)
	setString(j, "name", &a.Name)
	setInt64(j, "size", &a.Size)
	setInt(j, "duration", &a.Duration)
	setInt(j, "file_type", &a.FileType)
	setString(j, "thumb_url", &a.ThumbURL)
	setInt(j, "thumb_height", &a.ThumbHeight)
	setInt(j, "thumb_width", &a.ThumbWidth)
	setInt(j, "height", &a.Height)
	setInt(j, "width", &a.Width)
}

// AttachmentImage describes an inline photo or sticker image.
type AttachmentImage struct {
	URL         string
	ThumbURL    string
	ThumbCached string
	Size        int64
	ThumbWidth  int
	ThumbHeight int
	Width       int
	Height      int
}

func (a *AttachmentImage) UpdateFromJSON(j gjson.Result) {
	setString(j, "url", &a.URL)
	setString(j, "thumb_url", &a.ThumbURL)
	setInt64(j, "size", &a.Size)
	setInt(j, "thumb_height", &a.ThumbHeight)
	setInt(j, "thumb_width", &a.ThumbWidth)
	setInt(j, "height", &a.Height)
	setInt(j, "width", &a.Width)
}

// ReplyInfo is the quoted message summary carried on a reply.
type ReplyInfo struct {
	ID       int64
	Type     int
	Text     string
	AuthorID string
	Author   *Member
	File     *AttachmentFile
	Image    *AttachmentImage
}

func (r *ReplyInfo) UpdateFromJSON(j gjson.Result) {
	r.ID = j.Get("id").Int()
	setInt(j, "type", &r.Type)
	setString(j, "text", &r.Text)
	r.AuthorID = j.Get("author_id").String()

	if f := j.Get("attachment_file"); f.IsObject() {
		if r.File == nil {
			r.File = &AttachmentFile{}
		}
		r.File.UpdateFromJSON(f)
	} else {
		r.File = nil
	}
	if im := j.Get("attachment_image"); im.IsObject() {
		if r.Image == nil {
			r.Image = &AttachmentImage{}
		}
		r.Image.UpdateFromJSON(im)
	} else {
		r.Image = nil
	}
}

// ForwardInfo names the origin of a forwarded message.
type ForwardInfo struct {
	Title  string
	UserID string
	ChatID string
}

func (f *ForwardInfo) UpdateFromJSON(j gjson.Result) {
	f.Title = j.Get("title").String()
	setString(j, "user_id", &f.UserID)
	setString(j, "chat_id", &f.ChatID)
}

// Message is one entry of a chat's message sequence. ID 0 is the sentinel for
// an optimistic record the server has not yet confirmed.
type Message struct {
	ID           int64
	Type         int
	Flags        uint32
	SendingState int
	Text         string
	Sendtime     int64
	Changedtime  int64

	AuthorID string
	Author   *Member

	File    *AttachmentFile
	Image   *AttachmentImage
	Reply   *ReplyInfo
	Forward *ForwardInfo

	Entities []TextEntity

	// ChatID is the owning chat; resolve through the replica's chat map.
	ChatID string
}

// NewMessage builds a message owned by chatID from an authoritative payload.
func NewMessage(j gjson.Result, chatID string) *Message {
	m := &Message{ChatID: chatID}
	m.UpdateFromJSON(j)
	return m
}

func (m *Message) IsOutgoing() bool { return m.Flags&MessageFlagOutgoing != 0 }
func (m *Message) IsSystem() bool   { return m.Flags&MessageFlagSystem != 0 }
func (m *Message) IsDeleted() bool  { return m.Flags&MessageFlagDeleted != 0 }
func (m *Message) IsEditable() bool { return m.Flags&MessageFlagEditable != 0 }

func (m *Message) IsSendSuccess() bool { return m.SendingState == SendingStateOK }

func (m *Message) HasAttachment() bool {
	switch m.Type {
	case MessageTypeFile, MessageTypePhoto, MessageTypeSticker, MessageTypeAudio, MessageTypeVideo:
		return true
	}
	return false
}

func (m *Message) HasImage() bool { return m.Type == MessageTypePhoto }

// UpdateFromJSON merges fields present in the payload. The server sends
// "new_id" on edits that reassign ids; it wins over "id".
func (m *Message) UpdateFromJSON(j gjson.Result) {
	if v := j.Get("new_id"); v.Exists() {
		m.ID = v.Int()
	} else if v := j.Get("id"); v.Exists() {
		m.ID = v.Int()
	}
	setInt(j, "type", &m.Type)
	if v := j.Get("flags"); v.Exists() {
		m.Flags = uint32(v.Int())
	}
	setString(j, "text", &m.Text)
	setString(j, "author_id", &m.AuthorID)
	setInt64(j, "sendtime", &m.Sendtime)
	setInt64(j, "changedtime", &m.Changedtime)
	setInt(j, "sending_state", &m.SendingState)

	if im := j.Get("attachment_image"); im.IsObject() {
		if m.Image == nil {
			m.Image = &AttachmentImage{}
		}
		m.Image.UpdateFromJSON(im)
	}
	if f := j.Get("attachment_file"); f.IsObject() {
		if m.File == nil {
			m.File = &AttachmentFile{}
		}
		m.File.UpdateFromJSON(f)
	}
	if r := j.Get("reply_info"); r.IsObject() {
		if m.Reply == nil {
			m.Reply = &ReplyInfo{}
		}
		m.Reply.UpdateFromJSON(r)
	}
	if fw := j.Get("forward_info"); fw.IsObject() {
		if m.Forward == nil {
			m.Forward = &ForwardInfo{}
		}
		m.Forward.UpdateFromJSON(fw)
	}

	if ents := j.Get("entities"); ents.IsArray() {
		m.Entities = m.Entities[:0]
		ents.ForEach(func(_, e gjson.Result) bool {
			start := int(e.Get("s").Int())
			length := int(e.Get("l").Int())
			m.Entities = append(m.Entities, TextEntity{
				Type:  int(e.Get("t").Int()),
				Start: runeToByteOffset(m.Text, start),
				Len:   runeRangeByteLen(m.Text, start, length),
				Value: e.Get("v").String(),
			})
			return true
		})
	}
}

// UpdateFromMessage overwrites this record's content with the authoritative
// one while preserving its identity (slice position, author pointer). Used by
// the optimistic swap.
func (m *Message) UpdateFromMessage(src *Message) {
	m.ID = src.ID
	m.Type = src.Type
	m.Flags = src.Flags
	m.Text = src.Text
	m.Sendtime = src.Sendtime
	m.Changedtime = src.Changedtime
	m.SendingState = src.SendingState

	m.Image = nil
	if src.Image != nil {
		img := *src.Image
		m.Image = &img
	}
	m.File = nil
	if src.File != nil {
		f := *src.File
		m.File = &f
	}
	m.Reply = nil
	if src.Reply != nil {
		r := *src.Reply
		m.Reply = &r
	}
	m.Forward = nil
	if src.Forward != nil {
		fw := *src.Forward
		m.Forward = &fw
	}
	m.Entities = append([]TextEntity(nil), src.Entities...)
}

// EntityValue returns the entity's explicit value, or the covered slice of
// the message text when the entity carries none.
func (m *Message) EntityValue(e TextEntity) string {
	if e.Value != "" {
		return e.Value
	}
	if e.Start >= len(m.Text) {
		return ""
	}
	end := e.End()
	if end > len(m.Text) {
		end = len(m.Text)
	}
	return m.Text[e.Start:end]
}

// MatchesFilter reports whether the message passes a search filter.
func (m *Message) MatchesFilter(filter int) bool {
	switch filter {
	case MessagesFilterEmails:
		for _, e := range m.Entities {
			if e.Type == EntityEmail {
				return true
			}
		}
	case MessagesFilterLinks:
		for _, e := range m.Entities {
			if e.Type == EntityURL || e.Type == EntityTextURL {
				return true
			}
		}
	case MessagesFilterAttachments:
		return m.File != nil || m.Image != nil
	default:
		return true
	}
	return false
}

// MatchesFilterAndQuery additionally requires a case-insensitive substring
// match of query in the message text.
func (m *Message) MatchesFilterAndQuery(filter int, query string) bool {
	if !m.MatchesFilter(filter) {
		return false
	}
	if query == "" {
		return true
	}
	return containsFold(m.Text, query)
}
