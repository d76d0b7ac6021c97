package model

import (
	"sort"
	"time"

	"github.com/tidwall/gjson"
)

// Chat types.
const (
	ChatTypePrivate = 1
	ChatTypeSecret  = 2
	ChatTypeGroup   = 50
	ChatTypeChannel = 100
)

// Membership status of the logged-in user in a chat.
const (
	MyStatusNone = iota
	MyStatusMember
	MyStatusAdmin
	MyStatusOwner
	MyStatusLeft
	MyStatusBanned
)

// Chat actions broadcast while another member is composing.
const (
	ChatActionNone = iota
	ChatActionTyping
	ChatActionUploadingPhoto
	ChatActionUploadingFile
	ChatActionRecordingAudio
)

// ChatActionTimeout is how long a received action stays visible without a
// refresh.
const ChatActionTimeout = 6 * time.Second

// Chat is one conversation replica: its metadata, member map and the loaded
// window of its message sequence.
type Chat struct {
	ID       string
	Type     int
	Title    string
	Pic      string
	PicSmall string
	// PicSmallCached is the local cache path once the avatar download lands.
	PicSmallCached string
	PicCached      string

	MyStatus     int
	MembersCount int
	UnreadCount  int

	// Seen watermarks. Incoming ids at or below IncomingSeenMessageID do not
	// count toward UnreadCount.
	OutgoingSeenMessageID int64
	IncomingSeenMessageID int64

	LastMessage *Message

	Action         int
	ActionMemberID string
	ActionSetAt    time.Time

	Online     bool
	LastAction int64

	Created int64

	// Messages holds the loaded window sorted by (sendtime, id) ascending.
	Messages []*Message
	Members  map[string]*Member

	// Pagination cursors embedded in message page responses. A non-empty URL
	// means more history exists in that direction; while newer messages exist
	// beyond the window, appends from the event stream are skipped so the
	// window stays a contiguous range.
	olderMessagesURL string
	newerMessagesURL string

	MessagesLoaded bool
	MembersLoaded  bool
}

func NewChat(j gjson.Result) *Chat {
	c := &Chat{Members: make(map[string]*Member)}
	c.UpdateFromJSON(j)
	return c
}

func (c *Chat) IsPrivate() bool { return c.Type == ChatTypePrivate || c.Type == ChatTypeSecret }
func (c *Chat) IsGroup() bool   { return c.Type == ChatTypeGroup }
func (c *Chat) IsChannel() bool { return c.Type == ChatTypeChannel }

// Messenger reports which network the chat belongs to from its id prefix.
func (c *Chat) Messenger() byte {
	if c.ID == "" {
		return 0
	}
	return c.ID[0]
}

func (c *Chat) HasOlderMessages() bool { return c.olderMessagesURL != "" }
func (c *Chat) HasNewerMessages() bool { return c.newerMessagesURL != "" }

func (c *Chat) OlderMessagesURL() string { return c.olderMessagesURL }
func (c *Chat) NewerMessagesURL() string { return c.newerMessagesURL }

func (c *Chat) SetOlderMessagesURL(u string) { c.olderMessagesURL = u }
func (c *Chat) SetNewerMessagesURL(u string) { c.newerMessagesURL = u }

// UpdateFromJSON merges fields present in the payload and reports which facets
// changed. The last_message object is merged by the caller so it can route it
// through the shared message upsert path.
func (c *Chat) UpdateFromJSON(j gjson.Result) ChatChanges {
	var ch ChatChanges

	if v := j.Get("id"); v.Exists() && c.ID == "" {
		c.ID = v.String()
	}
	setInt(j, "type", &c.Type)
	setInt64(j, "created", &c.Created)

	if setString(j, "title", &c.Title) {
		ch |= ChatChangedTitle
	}
	setString(j, "pic", &c.Pic)
	if setString(j, "pic_small", &c.PicSmall) {
		c.PicSmallCached = ""
		ch |= ChatChangedPicSmall
	}
	if setInt(j, "my_status", &c.MyStatus) {
		ch |= ChatChangedMyStatus
	}
	if setInt(j, "members_count", &c.MembersCount) {
		ch |= ChatChangedMembersCount
	}
	if setInt(j, "unread_count", &c.UnreadCount) {
		ch |= ChatChangedUnreadCount
	}
	if setInt64(j, "outgoing_seen_message_id", &c.OutgoingSeenMessageID) {
		ch |= ChatChangedOutgoingSeen
	}
	if setInt64(j, "incoming_seen_message_id", &c.IncomingSeenMessageID) {
		ch |= ChatChangedIncomingSeen
	}
	if setBool(j, "online", &c.Online) {
		ch |= ChatChangedOnline
	}
	setInt64(j, "last_action", &c.LastAction)

	return ch
}

// SetAction records a composing action with its arrival time.
func (c *Chat) SetAction(action int, memberID string) ChatChanges {
	if c.Action == action && c.ActionMemberID == memberID {
		c.ActionSetAt = time.Now()
		return 0
	}
	c.Action = action
	c.ActionMemberID = memberID
	c.ActionSetAt = time.Now()
	return ChatChangedAction
}

// CurrentAction returns the live composing action, expiring stale ones.
func (c *Chat) CurrentAction() int {
	if c.Action == ChatActionNone {
		return ChatActionNone
	}
	if time.Since(c.ActionSetAt) > ChatActionTimeout {
		return ChatActionNone
	}
	return c.Action
}

// GetMessage finds a loaded message by id, nil when outside the window.
func (c *Chat) GetMessage(id int64) *Message {
	if i := c.MessageIndex(id); i >= 0 {
		return c.Messages[i]
	}
	return nil
}

// MessageIndex returns the position of id in the loaded window, or -1.
func (c *Chat) MessageIndex(id int64) int {
	for i, m := range c.Messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// SortMessages restores the (sendtime, id) ascending order after an insert or
// an id swap.
func (c *Chat) SortMessages() {
	sort.SliceStable(c.Messages, func(i, k int) bool {
		a, b := c.Messages[i], c.Messages[k]
		if a.Sendtime != b.Sendtime {
			return a.Sendtime < b.Sendtime
		}
		return a.ID < b.ID
	})
}

// RemoveMessage drops id from the window, reporting whether it was present.
func (c *Chat) RemoveMessage(id int64) bool {
	i := c.MessageIndex(id)
	if i < 0 {
		return false
	}
	c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
	return true
}

// ClearMessages empties the window, used when the history is wiped.
func (c *Chat) ClearMessages() {
	c.Messages = nil
	c.olderMessagesURL = ""
	c.newerMessagesURL = ""
	c.LastMessage = nil
}

// GetMember finds a chat member by id, nil when not loaded.
func (c *Chat) GetMember(id string) *Member {
	return c.Members[id]
}

// OtherMember returns the peer of a private chat given the own member id.
func (c *Chat) OtherMember(selfID string) *Member {
	if !c.IsPrivate() {
		return nil
	}
	for id, m := range c.Members {
		if id != selfID {
			return m
		}
	}
	return nil
}

// IsOnline reports live presence: the chat's own flag for private chats,
// refreshed against the peer's activity window.
func (c *Chat) IsOnline(selfID string) bool {
	if c.Online {
		return true
	}
	if m := c.OtherMember(selfID); m != nil {
		return m.IsOnlineNow()
	}
	return false
}

// IsMemberActive reports recent activity within the inactivity window.
func (c *Chat) IsMemberActive(selfID string) bool {
	if m := c.OtherMember(selfID); m != nil {
		return m.IsActiveNow()
	}
	return time.Now().Unix()-c.LastAction < MemberInactiveTimeout
}

// LastMessageText renders the chat list preview line for the last message.
func (c *Chat) LastMessageText() string {
	m := c.LastMessage
	if m == nil {
		return ""
	}
	switch m.Type {
	case MessageTypePhoto:
		return "Photo"
	case MessageTypeSticker:
		return "Sticker"
	case MessageTypeAudio:
		return "Audio"
	case MessageTypeVideo:
		return "Video"
	case MessageTypeFile:
		if m.File != nil && m.File.Name != "" {
			return m.File.Name
		}
		return "File"
	case MessageTypeContact:
		return "Contact"
	case MessageTypeLocation:
		return "Location"
	case MessageTypeCall:
		return "Call"
	case MessageTypePoll:
		return "Poll"
	}
	return m.Text
}
