package replica

import (
	"strings"
	"time"

	"github.com/rochat/chatcube/internal/model"
)

// AddOptimistic appends a locally composed message to the chat before the
// server confirms it. The record carries id 0 and the pending sending state
// until the confirming frame swaps the authoritative content in.
func (r *Replica) AddOptimistic(chatID string, m *model.Message) {
	c, ok := r.chats[chatID]
	if !ok {
		return
	}
	m.ChatID = chatID
	m.SendingState = model.SendingStatePending
	if m.Sendtime == 0 {
		m.Sendtime = time.Now().Unix()
	}
	if r.me != nil && m.AuthorID == "" {
		m.AuthorID = r.me.ID
		m.Author = &r.me.Member
	}
	m.Flags |= model.MessageFlagOutgoing

	c.Messages = append(c.Messages, m)
	r.refreshLastMessage(c, m)
	r.publish(KindMessageAdded, MessageEvent{ChatID: chatID, MessageID: 0})
}

// ConfirmOptimistic swaps the authoritative response body into the pending
// record. Used on the send call's own response; the stream frame for the same
// message then finds the id already present and merges instead of appending.
func (r *Replica) ConfirmOptimistic(chatID string, pending *model.Message, authoritative *model.Message) {
	c, ok := r.chats[chatID]
	if !ok {
		return
	}
	pending.UpdateFromMessage(authoritative)
	pending.SendingState = model.SendingStateOK
	c.SortMessages()
	r.refreshLastMessage(c, pending)
	r.publish(KindMessageChanged, MessageEvent{ChatID: chatID, MessageID: pending.ID})
}

// FailOptimistic removes the provisional record after the send errored and
// rolls the chat's last message back to what the window still holds. The
// record itself is only marked failed so a caller holding it can offer a
// resend.
func (r *Replica) FailOptimistic(chatID string, pending *model.Message) {
	c, ok := r.chats[chatID]
	if !ok {
		return
	}
	pending.SendingState = model.SendingStateFailed
	for i, m := range c.Messages {
		if m == pending {
			c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
			break
		}
	}
	if c.LastMessage == pending {
		c.LastMessage = nil
		if n := len(c.Messages); n > 0 && !c.HasNewerMessages() {
			c.LastMessage = c.Messages[n-1]
		}
		r.markOrderDirty()
		r.publish(KindChatChanged, ChatEvent{ChatID: chatID, Changes: model.ChatChangedLastMessage})
	}
	r.publish(KindMessagesDeleted, MessagesDeletedEvent{ChatID: chatID, MessageIDs: []int64{pending.ID}})
}

// matchOptimistic finds the pending record an incoming outgoing-message frame
// confirms, so optimistic sends never duplicate. First match in window order
// wins when several pending records qualify.
func (r *Replica) matchOptimistic(c *model.Chat, incoming *model.Message) *model.Message {
	for _, m := range c.Messages {
		if m.SendingState != model.SendingStatePending || m.ID != 0 {
			continue
		}
		if r.optimisticMatches(c, m, incoming) {
			return m
		}
	}
	return nil
}

// optimisticMatches decides whether a confirmed frame corresponds to a
// pending record. The predicate differs per messenger because relayed
// networks echo the message with rewritten content.
func (r *Replica) optimisticMatches(c *model.Chat, pending, incoming *model.Message) bool {
	if c.Messenger() == model.MessengerTelegram {
		// The relay echoes the send under the linked telegram identity, not
		// the ChatCube id the pending record carries.
		if pending.Type != incoming.Type {
			return false
		}
		if r.me == nil || r.me.Telegram.UserID == "" || incoming.AuthorID != r.me.Telegram.UserID {
			return false
		}
		return incoming.Image != nil || incoming.File != nil || pending.Text == incoming.Text
	}

	if pending.AuthorID != incoming.AuthorID || !incoming.IsOutgoing() {
		return false
	}
	if pending.Type != incoming.Type {
		return false
	}
	switch pending.Type {
	case model.MessageTypeSticker:
		return pending.Image != nil && incoming.Image != nil &&
			strings.Contains(incoming.Image.URL, pending.Image.URL)
	case model.MessageTypeFile:
		return pending.File != nil && incoming.File != nil &&
			pending.File.Size == incoming.File.Size &&
			pending.File.FileType == incoming.File.FileType
	case model.MessageTypePhoto:
		return pending.Image != nil && incoming.Image != nil &&
			pending.Image.Size == incoming.Image.Size
	default:
		return pending.Text == incoming.Text
	}
}
