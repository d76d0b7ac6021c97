// Package replica maintains the client-side copy of the chat state: chats,
// members, message windows and the logged-in profile. It reconciles three
// inputs into one consistent picture: full-state loads, push frames and
// locally initiated operations, all applied on the run loop.
package replica

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/rochat/chatcube/internal/bus"
	"github.com/rochat/chatcube/internal/cachedl"
	"github.com/rochat/chatcube/internal/model"
	"github.com/rochat/chatcube/internal/runloop"
)

// Chat list load states. Push frames that touch list-level state buffer
// until the list is loaded, so a frame can never fabricate a chat the load
// would have delivered anyway.
const (
	ChatsNotLoaded = iota
	ChatsLoading
	ChatsLoaded
)

// Chat list orderings.
const (
	OrderLastMessage = iota
	OrderOnline
	OrderUnread
)

// Replica is the in-memory chat state. Not safe for concurrent use; every
// method must run on the run loop goroutine.
type Replica struct {
	loop *runloop.Loop
	bus  *bus.Bus
	dl   *cachedl.Downloader
	log  *zap.Logger

	chats   map[string]*model.Chat
	members map[string]*model.Member
	me      *model.MyMember

	chatOrder  []string
	orderDirty bool
	ordering   int
	filter     string

	loadState int
	pending   []string

	suppressEvents bool

	authors *authorResolver

	// NeedMembers is invoked with deduplicated missing member ids at the
	// next idle point after messages referencing them were applied. The
	// client wires this to a member fetch.
	NeedMembers func(ids []string)
}

func New(loop *runloop.Loop, b *bus.Bus, dl *cachedl.Downloader, log *zap.Logger) *Replica {
	r := &Replica{
		loop:    loop,
		bus:     b,
		dl:      dl,
		log:     log.Named("replica"),
		chats:   make(map[string]*model.Chat),
		members: make(map[string]*model.Member),
	}
	r.authors = newAuthorResolver(r)
	return r
}

// Reset drops all replicated state, used on logout.
func (r *Replica) Reset() {
	r.chats = make(map[string]*model.Chat)
	r.members = make(map[string]*model.Member)
	r.me = nil
	r.chatOrder = nil
	r.orderDirty = false
	r.loadState = ChatsNotLoaded
	r.pending = nil
	r.authors = newAuthorResolver(r)
}

// Me returns the logged-in profile, nil before bootstrap.
func (r *Replica) Me() *model.MyMember { return r.me }

// Chat returns a chat by id, nil when unknown.
func (r *Replica) Chat(id string) *model.Chat { return r.chats[id] }

// Member returns a member by id, nil when unknown.
func (r *Replica) Member(id string) *model.Member { return r.members[id] }

// ChatsLoadState reports the chat list load progress.
func (r *Replica) ChatsLoadState() int { return r.loadState }

// ChatCount returns the number of replicated chats.
func (r *Replica) ChatCount() int { return len(r.chats) }

// SetOrdering switches the chat list comparator and forces a resort.
func (r *Replica) SetOrdering(mode int) {
	if r.ordering == mode {
		return
	}
	r.ordering = mode
	r.orderDirty = true
	r.publish(KindChatListReorder, nil)
}

// Ordering returns the active chat list comparator mode.
func (r *Replica) Ordering() int { return r.ordering }

// SetFilter narrows the chat list to titles containing the query,
// case-insensitive. Empty query shows everything.
func (r *Replica) SetFilter(query string) {
	query = strings.ToLower(query)
	if r.filter == query {
		return
	}
	r.filter = query
	r.orderDirty = true
	r.publish(KindChatListReorder, nil)
}

// markOrderDirty flags the cached ordering stale. The resort happens lazily
// on the next OrderedChats call, so a burst of frames sorts once.
func (r *Replica) markOrderDirty() {
	if !r.orderDirty {
		r.orderDirty = true
		r.publish(KindChatListReorder, nil)
	}
}

// OrderedChats returns the chat list in the active ordering and filter,
// resorting only when something order-relevant changed since the last call.
func (r *Replica) OrderedChats() []*model.Chat {
	if r.orderDirty || (r.filter == "" && len(r.chatOrder) != len(r.chats)) {
		r.rebuildOrder()
	}
	out := make([]*model.Chat, 0, len(r.chatOrder))
	for _, id := range r.chatOrder {
		out = append(out, r.chats[id])
	}
	return out
}

func (r *Replica) rebuildOrder() {
	ids := make([]string, 0, len(r.chats))
	for id, c := range r.chats {
		if r.filter != "" && !strings.Contains(strings.ToLower(c.Title), r.filter) {
			continue
		}
		ids = append(ids, id)
	}
	less := r.comparator()
	sort.SliceStable(ids, func(i, k int) bool {
		return less(r.chats[ids[i]], r.chats[ids[k]])
	})
	r.chatOrder = ids
	r.orderDirty = false
}

func (r *Replica) comparator() func(a, b *model.Chat) bool {
	selfID := ""
	if r.me != nil {
		selfID = r.me.ID
	}
	switch r.ordering {
	case OrderOnline:
		return func(a, b *model.Chat) bool {
			ao, bo := a.IsOnline(selfID), b.IsOnline(selfID)
			if ao != bo {
				return ao
			}
			aa, ba := a.IsMemberActive(selfID), b.IsMemberActive(selfID)
			if aa != ba {
				return aa
			}
			return lastMessageLess(a, b)
		}
	case OrderUnread:
		return func(a, b *model.Chat) bool {
			au, bu := a.UnreadCount > 0, b.UnreadCount > 0
			if au != bu {
				return au
			}
			return titleLess(a, b)
		}
	default:
		return lastMessageLess
	}
}

// lastMessageLess orders by newest activity first. Chats without any message
// sort after every chat that has one, and ties break on the case-folded title
// so the order is stable across reloads.
func lastMessageLess(a, b *model.Chat) bool {
	if (a.LastMessage == nil) != (b.LastMessage == nil) {
		return b.LastMessage == nil
	}
	if a.LastMessage != nil && a.LastMessage.Sendtime != b.LastMessage.Sendtime {
		return a.LastMessage.Sendtime > b.LastMessage.Sendtime
	}
	return titleLess(a, b)
}

func titleLess(a, b *model.Chat) bool {
	if (a.Title == "") != (b.Title == "") {
		return b.Title == ""
	}
	return strings.ToLower(a.Title) < strings.ToLower(b.Title)
}
