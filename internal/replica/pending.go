package replica

import (
	"github.com/tidwall/gjson"

	"github.com/rochat/chatcube/internal/model"
)

// ApplyFrame ingests one raw stream frame body. List-level frames buffer
// while the chat list has not finished loading; transient frames like
// composing actions apply immediately because replaying them later would be
// stale anyway.
func (r *Replica) ApplyFrame(text string) {
	env, ok := model.ParseEnvelope(text)
	if !ok {
		r.log.Debug("undecodable frame dropped")
		return
	}
	if r.loadState != ChatsLoaded && buffered(env.Type) {
		r.pending = append(r.pending, env.Raw)
		return
	}
	r.dispatch(env)
}

// buffered reports whether a frame kind must wait for the chat list. These
// are the kinds whose effects the list load itself delivers, so applying them
// early would fabricate partial state.
func buffered(kind string) bool {
	switch kind {
	case model.EventMessageCreated, model.EventMessageUpdated,
		model.EventChatCreated, model.EventChatUpdated,
		model.EventChatUpdatedOutbox, model.EventChatDeleted,
		model.EventMemberUpdated:
		return true
	}
	return false
}

// drainPending replays frames buffered during the list load, in arrival
// order, with events suppressed.
func (r *Replica) drainPending() {
	frames := r.pending
	r.pending = nil
	if len(frames) == 0 {
		return
	}
	r.suppressEvents = true
	defer func() { r.suppressEvents = false }()
	for _, raw := range frames {
		if env, ok := model.ParseEnvelope(raw); ok {
			r.dispatch(env)
		}
	}
}

func (r *Replica) dispatch(env model.Envelope) {
	switch env.Type {
	case model.EventMessageCreated:
		r.UpsertMessage(messageChatID(env.Data), env.Data, true)

	case model.EventMessageUpdated:
		r.UpdateMessage(messageChatID(env.Data), env.Data, true)

	case model.EventChatCreated, model.EventChatUpdated:
		r.UpsertChat(env.Data)

	case model.EventChatUpdatedOutbox:
		r.UpdateChatOutbox(env.Data)

	case model.EventChatDeleted:
		r.DeleteChat(env.Data.Get("id").String())

	case model.EventChatCleared:
		r.ClearChat(env.Data.Get("id").String())

	case model.EventMessagesDeleted:
		chatID := env.Data.Get("chat_id").String()
		var ids []int64
		env.Data.Get("message_ids").ForEach(func(_, v gjson.Result) bool {
			ids = append(ids, v.Int())
			return true
		})
		r.DeleteMessages(chatID, ids)

	case model.EventMemberUpdated:
		r.UpsertMember(env.Data)

	case model.EventChatAction:
		r.applyChatAction(env.Data)

	case model.EventShowAlert:
		r.publish(KindAlert, AlertEvent{
			Title: env.Data.Get("title").String(),
			Text:  env.Data.Get("text").String(),
		})

	default:
		// Unknown kinds are forward compatibility, not errors.
		r.log.Debug("unhandled frame kind ignored")
	}
}

// messageChatID reads the owning chat id of a message frame, which some
// frame kinds carry as "chat" instead of "chat_id".
func messageChatID(j gjson.Result) string {
	if id := j.Get("chat_id").String(); id != "" {
		return id
	}
	return j.Get("chat").String()
}

func (r *Replica) applyChatAction(j gjson.Result) {
	c, ok := r.chats[j.Get("chat_id").String()]
	if !ok {
		return
	}
	action := int(j.Get("action").Int())
	memberID := j.Get("member_id").String()
	if ch := c.SetAction(action, memberID); !ch.Empty() {
		r.publish(KindChatChanged, ChatEvent{ChatID: c.ID, Changes: ch})
	}
}

// PendingFrames reports how many frames wait for the list load.
func (r *Replica) PendingFrames() int { return len(r.pending) }
