package replica

import (
	"github.com/tidwall/gjson"

	"github.com/rochat/chatcube/internal/model"
)

// LoadChats ingests the full chat list payload. Frames buffered while the
// load was in flight replay afterwards, so nothing pushed during the load is
// lost and nothing it already delivered applies twice with events.
func (r *Replica) LoadChats(list gjson.Result) {
	// The terminal chats.loaded event stands in for the per-record events of
	// the initial population.
	r.suppressEvents = true
	list.ForEach(func(_, cj gjson.Result) bool {
		r.UpsertChat(cj)
		return true
	})
	r.suppressEvents = false
	r.loadState = ChatsLoaded
	r.drainPending()
	r.orderDirty = true
	r.publish(KindChatsLoaded, nil)
}

// BeginChatsLoad marks the list load in flight so frames start buffering.
func (r *Replica) BeginChatsLoad() {
	if r.loadState == ChatsNotLoaded {
		r.loadState = ChatsLoading
	}
}

// SetMe installs or merges the logged-in profile.
func (r *Replica) SetMe(j gjson.Result) {
	if r.me == nil {
		r.me = model.NewMyMember(j)
	} else if ch := r.me.UpdateFromJSON(j); ch.Empty() {
		return
	}
	me := r.me
	r.fetchPic(me.PicSmall, &me.PicSmallCached, func() {
		r.publish(KindMeChanged, MemberEvent{MemberID: me.ID, Changes: model.MemberChangedPicSmall})
	})
	r.fetchPic(me.PicMedium, &me.PicMediumCached, func() {
		r.publish(KindMeChanged, MemberEvent{MemberID: me.ID, Changes: model.MemberChangedPicMedium})
	})
	r.publish(KindMeChanged, MemberEvent{MemberID: me.ID})
}

// UpsertChat creates or merges a chat from an authoritative payload and
// raises the matching events.
func (r *Replica) UpsertChat(j gjson.Result) *model.Chat {
	id := j.Get("id").String()
	if id == "" {
		return nil
	}

	c, known := r.chats[id]
	if !known {
		c = model.NewChat(j)
		r.chats[id] = c
		r.applyChatSubObjects(c, j)
		r.markOrderDirty()
		r.publish(KindChatAdded, ChatEvent{ChatID: id})
		r.fetchChatPic(c)
		return c
	}

	changes := c.UpdateFromJSON(j)
	changes |= r.applyChatSubObjects(c, j)

	if changes.Has(model.ChatChangedPicSmall) {
		// The event for the new avatar waits until the file is local, so
		// subscribers never render a half-downloaded picture.
		changes &^= model.ChatChangedPicSmall
		r.fetchChatPic(c)
	}
	if changes.Empty() {
		return c
	}
	const orderBits = model.ChatChangedTitle | model.ChatChangedLastMessage |
		model.ChatChangedOnline | model.ChatChangedUnreadCount
	if changes&orderBits != 0 {
		r.markOrderDirty()
	}
	r.publish(KindChatChanged, ChatEvent{ChatID: id, Changes: changes})
	return c
}

// applyChatSubObjects merges the nested members array and last_message
// object, which route through the shared upsert paths.
func (r *Replica) applyChatSubObjects(c *model.Chat, j gjson.Result) model.ChatChanges {
	var changes model.ChatChanges

	if members := j.Get("members"); members.IsArray() {
		members.ForEach(func(_, mj gjson.Result) bool {
			if m := r.UpsertMember(mj); m != nil {
				if m.ChatID == "" && c.IsPrivate() {
					m.ChatID = c.ID
				}
				c.Members[m.ID] = m
			}
			return true
		})
		c.MembersLoaded = true
	}

	if lm := j.Get("last_message"); lm.IsObject() {
		if r.applyLastMessage(c, lm) {
			changes |= model.ChatChangedLastMessage
		}
	}
	return changes
}

// applyLastMessage merges the embedded last-message record, reusing the
// loaded window's record when the id is inside it.
func (r *Replica) applyLastMessage(c *model.Chat, lm gjson.Result) bool {
	id := messageID(lm)
	if c.LastMessage != nil && c.LastMessage.ID == id && id != 0 {
		c.LastMessage.UpdateFromJSON(lm)
		return true
	}
	if m := c.GetMessage(id); m != nil {
		m.UpdateFromJSON(lm)
		c.LastMessage = m
		return true
	}
	m := model.NewMessage(lm, c.ID)
	r.resolveAuthor(m)
	c.LastMessage = m
	return true
}

// UpsertMember creates or merges a member record, raising member.changed and
// propagating the change into messages that reference the member.
func (r *Replica) UpsertMember(j gjson.Result) *model.Member {
	id := j.Get("id").String()
	if id == "" {
		return nil
	}

	m, known := r.members[id]
	if !known {
		m = model.NewMember(j)
		r.members[id] = m
		r.authors.resolved(m)
		r.fetchMemberPic(m)
		return m
	}

	changes := m.UpdateFromJSON(j)
	if changes.Has(model.MemberChangedPicSmall) {
		changes &^= model.MemberChangedPicSmall
		r.fetchMemberPic(m)
	}
	if changes.Empty() {
		return m
	}
	if changes.Has(model.MemberChangedOnline) {
		r.onMemberPresenceChanged(m)
	}
	r.publish(KindMemberChanged, MemberEvent{MemberID: id, Changes: changes})
	return m
}

// onMemberPresenceChanged refreshes the chats that surface this member's
// presence, which feeds both chat.changed and the online ordering.
func (r *Replica) onMemberPresenceChanged(m *model.Member) {
	if m.ChatID != "" {
		if c, ok := r.chats[m.ChatID]; ok {
			r.publish(KindChatChanged, ChatEvent{ChatID: c.ID, Changes: model.ChatChangedOnline})
		}
	}
	if r.ordering == OrderOnline {
		r.markOrderDirty()
	}
}

// UpsertMessage creates or merges one message of a chat. fromStream marks
// push origin: stream appends are skipped while the window has newer messages
// beyond it, and stream messages are what advance the unread count.
func (r *Replica) UpsertMessage(chatID string, j gjson.Result, fromStream bool) *model.Message {
	c, ok := r.chats[chatID]
	if !ok {
		r.log.Debug("message for unknown chat dropped")
		return nil
	}

	id := messageID(j)
	if m := r.mergeExistingMessage(c, id, j, fromStream); m != nil {
		return m
	}

	incoming := model.NewMessage(j, chatID)
	r.resolveAuthor(incoming)

	if fromStream && incoming.IsOutgoing() {
		if m := r.matchOptimistic(c, incoming); m != nil {
			m.UpdateFromMessage(incoming)
			c.SortMessages()
			r.refreshLastMessage(c, m)
			r.publish(KindMessageChanged, MessageEvent{ChatID: chatID, MessageID: m.ID, FromStream: true})
			return m
		}
	}

	appended := false
	if !fromStream || !c.HasNewerMessages() {
		c.Messages = append(c.Messages, incoming)
		c.SortMessages()
		appended = true
	}

	r.refreshLastMessage(c, incoming)

	if fromStream && !incoming.IsOutgoing() &&
		incoming.ID > c.IncomingSeenMessageID && c.Messenger() == model.MessengerChatCube {
		c.UnreadCount++
		r.markOrderDirty()
		r.publish(KindChatChanged, ChatEvent{ChatID: chatID, Changes: model.ChatChangedUnreadCount})
	}

	if appended {
		r.publish(KindMessageAdded, MessageEvent{ChatID: chatID, MessageID: incoming.ID, FromStream: fromStream})
	}
	return incoming
}

// UpdateMessage merges an update into a message the replica already holds.
// Unknown ids are dropped: an update frame must never fabricate a record the
// window or the list load never delivered.
func (r *Replica) UpdateMessage(chatID string, j gjson.Result, fromStream bool) *model.Message {
	c, ok := r.chats[chatID]
	if !ok {
		return nil
	}
	m := r.mergeExistingMessage(c, messageID(j), j, fromStream)
	if m == nil {
		r.log.Debug("update for unknown message dropped")
	}
	return m
}

// mergeExistingMessage merges the payload into the window record or the
// detached last-message record with the same id, nil when neither exists.
func (r *Replica) mergeExistingMessage(c *model.Chat, id int64, j gjson.Result, fromStream bool) *model.Message {
	if id == 0 {
		return nil
	}
	if m := c.GetMessage(id); m != nil {
		m.UpdateFromJSON(j)
		r.resolveAuthor(m)
		r.refreshLastMessage(c, m)
		r.publish(KindMessageChanged, MessageEvent{ChatID: c.ID, MessageID: m.ID, FromStream: fromStream})
		return m
	}
	if lm := c.LastMessage; lm != nil && lm.ID == id {
		lm.UpdateFromJSON(j)
		r.resolveAuthor(lm)
		r.markOrderDirty()
		r.publish(KindChatChanged, ChatEvent{ChatID: c.ID, Changes: model.ChatChangedLastMessage})
		return lm
	}
	return nil
}

// refreshLastMessage promotes m to the chat's last message when it is at
// least as new, keeping the preview and ordering in step.
func (r *Replica) refreshLastMessage(c *model.Chat, m *model.Message) {
	lm := c.LastMessage
	if lm != nil && lm.ID == m.ID {
		c.LastMessage = m
		r.markOrderDirty()
		r.publish(KindChatChanged, ChatEvent{ChatID: c.ID, Changes: model.ChatChangedLastMessage})
		return
	}
	if lm == nil || m.Sendtime > lm.Sendtime || (m.Sendtime == lm.Sendtime && m.ID >= lm.ID) {
		c.LastMessage = m
		r.markOrderDirty()
		r.publish(KindChatChanged, ChatEvent{ChatID: c.ID, Changes: model.ChatChangedLastMessage})
	}
}

// UpdateChatOutbox applies a seen-watermark frame.
func (r *Replica) UpdateChatOutbox(j gjson.Result) {
	c, ok := r.chats[j.Get("id").String()]
	if !ok {
		return
	}
	var changes model.ChatChanges
	if v := j.Get("outgoing_seen_message_id"); v.Exists() && v.Int() > c.OutgoingSeenMessageID {
		c.OutgoingSeenMessageID = v.Int()
		changes |= model.ChatChangedOutgoingSeen
	}
	if v := j.Get("incoming_seen_message_id"); v.Exists() && v.Int() > c.IncomingSeenMessageID {
		c.IncomingSeenMessageID = v.Int()
		changes |= model.ChatChangedIncomingSeen
	}
	if v := j.Get("unread_count"); v.Exists() && int(v.Int()) != c.UnreadCount {
		c.UnreadCount = int(v.Int())
		changes |= model.ChatChangedUnreadCount
		r.markOrderDirty()
	}
	if !changes.Empty() {
		r.publish(KindChatChanged, ChatEvent{ChatID: c.ID, Changes: changes})
	}
}

// DeleteChat removes a chat from the replica.
func (r *Replica) DeleteChat(id string) {
	if _, ok := r.chats[id]; !ok {
		return
	}
	delete(r.chats, id)
	r.markOrderDirty()
	r.publish(KindChatRemoved, ChatEvent{ChatID: id})
}

// DeleteMessages drops ids from a chat's window and fixes up the last
// message from what remains.
func (r *Replica) DeleteMessages(chatID string, ids []int64) {
	c, ok := r.chats[chatID]
	if !ok {
		return
	}
	var removed []int64
	lastDeleted := false
	for _, id := range ids {
		wasLast := c.LastMessage != nil && c.LastMessage.ID == id
		if wasLast {
			lastDeleted = true
		}
		if c.RemoveMessage(id) || wasLast {
			removed = append(removed, id)
		}
	}
	if lastDeleted {
		c.LastMessage = nil
		if n := len(c.Messages); n > 0 && !c.HasNewerMessages() {
			c.LastMessage = c.Messages[n-1]
		}
		r.markOrderDirty()
		r.publish(KindChatChanged, ChatEvent{ChatID: chatID, Changes: model.ChatChangedLastMessage})
	}
	if len(removed) > 0 {
		r.publish(KindMessagesDeleted, MessagesDeletedEvent{ChatID: chatID, MessageIDs: removed})
	}
}

// ClearChat wipes a chat's history.
func (r *Replica) ClearChat(chatID string) {
	c, ok := r.chats[chatID]
	if !ok {
		return
	}
	c.ClearMessages()
	if c.UnreadCount != 0 {
		c.UnreadCount = 0
	}
	r.markOrderDirty()
	r.publish(KindChatCleared, ChatEvent{ChatID: chatID})
}

// resolveAuthor binds the message's author pointer, or records the id as
// missing so the resolver can batch-fetch it.
func (r *Replica) resolveAuthor(m *model.Message) {
	if m.AuthorID == "" || m.Author != nil {
		return
	}
	if a, ok := r.members[m.AuthorID]; ok {
		m.Author = a
		return
	}
	r.authors.request(m.AuthorID)
}

// ForgetAuthorRequests clears the in-flight marks for member ids whose fetch
// failed, letting a later message reference retry the lookup.
func (r *Replica) ForgetAuthorRequests(ids []string) {
	r.authors.forgotten(ids)
}

func (r *Replica) fetchChatPic(c *model.Chat) {
	r.fetchPic(c.PicSmall, &c.PicSmallCached, func() {
		r.publish(KindChatChanged, ChatEvent{ChatID: c.ID, Changes: model.ChatChangedPicSmall})
	})
}

func (r *Replica) fetchMemberPic(m *model.Member) {
	r.fetchPic(m.PicSmall, &m.PicSmallCached, func() {
		r.publish(KindMemberChanged, MemberEvent{MemberID: m.ID, Changes: model.MemberChangedPicSmall})
	})
}

// fetchPic downloads an avatar and stores the local path, raising the change
// event only once the file exists.
func (r *Replica) fetchPic(url string, dst *string, changed func()) {
	if url == "" || *dst != "" || r.dl == nil {
		return
	}
	r.dl.Download(url, func(path string) {
		if path == "" {
			return
		}
		*dst = path
		changed()
	})
}

// messageID reads the record id, preferring the reassigned one.
func messageID(j gjson.Result) int64 {
	if v := j.Get("new_id"); v.Exists() {
		return v.Int()
	}
	return j.Get("id").Int()
}
