package replica

import (
	"sort"

	"github.com/rochat/chatcube/internal/model"
)

// authorResolver batches lookups of member ids referenced by messages before
// their profiles arrived. Requests accumulated during one apply batch flush
// as a single deduplicated fetch at the next idle point.
type authorResolver struct {
	r         *Replica
	missing   map[string]struct{}
	requested map[string]struct{}
	scheduled bool
}

func newAuthorResolver(r *Replica) *authorResolver {
	return &authorResolver{
		r:         r,
		missing:   make(map[string]struct{}),
		requested: make(map[string]struct{}),
	}
}

// request notes a missing member id and schedules the flush.
func (a *authorResolver) request(id string) {
	if _, ok := a.requested[id]; ok {
		return
	}
	if _, ok := a.missing[id]; ok {
		return
	}
	a.missing[id] = struct{}{}
	if !a.scheduled {
		a.scheduled = true
		a.r.loop.Defer(a.flush)
	}
}

func (a *authorResolver) flush() {
	a.scheduled = false
	if len(a.missing) == 0 {
		return
	}
	ids := make([]string, 0, len(a.missing))
	for id := range a.missing {
		ids = append(ids, id)
		a.requested[id] = struct{}{}
	}
	a.missing = make(map[string]struct{})
	sort.Strings(ids)

	if a.r.NeedMembers != nil {
		a.r.NeedMembers(ids)
	}
}

// forgotten drops the requested marks for ids whose fetch failed so the next
// message referencing them schedules a fresh lookup.
func (a *authorResolver) forgotten(ids []string) {
	for _, id := range ids {
		delete(a.requested, id)
	}
}

// resolved binds a freshly arrived member to every loaded message that was
// waiting for it and raises message.changed for each.
func (a *authorResolver) resolved(m *model.Member) {
	delete(a.requested, m.ID)
	delete(a.missing, m.ID)

	for _, c := range a.r.chats {
		for _, msg := range c.Messages {
			if msg.AuthorID == m.ID && msg.Author == nil {
				msg.Author = m
				a.r.publish(KindMessageChanged, MessageEvent{ChatID: c.ID, MessageID: msg.ID})
			}
		}
		if lm := c.LastMessage; lm != nil && lm.AuthorID == m.ID && lm.Author == nil {
			lm.Author = m
			a.r.publish(KindChatChanged, ChatEvent{ChatID: c.ID, Changes: model.ChatChangedLastMessage})
		}
	}
}
