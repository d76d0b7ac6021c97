package replica

import (
	"time"

	"github.com/rochat/chatcube/internal/bus"
	"github.com/rochat/chatcube/internal/model"
)

// Bus event kinds published by the replica. Subscribers filter by namespace
// prefix, so "chat" covers every chat-level kind.
const (
	KindChatsLoaded     = "chats.loaded"
	KindChatAdded       = "chat.added"
	KindChatChanged     = "chat.changed"
	KindChatRemoved     = "chat.removed"
	KindChatListReorder = "chats.reordered"
	KindMessageAdded    = "message.added"
	KindMessageChanged  = "message.changed"
	KindMessagesDeleted = "messages.deleted"
	KindChatCleared     = "chat.cleared"
	KindMemberChanged   = "member.changed"
	KindMeChanged       = "me.changed"
	KindAlert           = "alert"
)

// ChatEvent is the payload of chat.added, chat.changed and chat.removed.
type ChatEvent struct {
	ChatID  string
	Changes model.ChatChanges
}

// MessageEvent is the payload of message.added and message.changed.
type MessageEvent struct {
	ChatID    string
	MessageID int64
	// FromStream marks messages that arrived over the push channel rather
	// than from a history load or a local send.
	FromStream bool
}

// MessagesDeletedEvent is the payload of messages.deleted.
type MessagesDeletedEvent struct {
	ChatID     string
	MessageIDs []int64
}

// MemberEvent is the payload of member.changed.
type MemberEvent struct {
	MemberID string
	Changes  model.MemberChanges
}

// AlertEvent is the payload of alert, raised by server-pushed notices.
type AlertEvent struct {
	Title string
	Text  string
}

// publish raises a bus event unless the replica is replaying frames buffered
// during the chat list load. The load itself delivers the resulting state, so
// per-record events for the replay would be duplicates.
func (r *Replica) publish(kind string, payload any) {
	if r.suppressEvents {
		return
	}
	r.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
