package replica

import "testing"

func orderedIDs(f *fixture, t *testing.T) []string {
	t.Helper()
	var ids []string
	f.onLoop(t, func() {
		for _, c := range f.r.OrderedChats() {
			ids = append(ids, c.ID)
		}
	})
	return ids
}

func assertOrder(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestOrderLastMessage(t *testing.T) {
	f := newFixture(t)
	f.loadChats(t, `[
		{"id": "C1", "type": 1, "title": "beta",
		 "last_message": {"id": 1, "type": 1, "text": "x", "sendtime": 100}},
		{"id": "C2", "type": 1, "title": "Alpha",
		 "last_message": {"id": 2, "type": 1, "text": "y", "sendtime": 300}},
		{"id": "C3", "type": 1, "title": "alpha",
		 "last_message": {"id": 3, "type": 1, "text": "z", "sendtime": 100}},
		{"id": "C4", "type": 1, "title": "",
		 "last_message": {"id": 4, "type": 1, "text": "w", "sendtime": 100}}
	]`)

	// Newest first; equal times break on case-folded title, titleless last.
	assertOrder(t, orderedIDs(f, t), []string{"C2", "C3", "C1", "C4"})
}

func TestOrderChatsWithoutMessagesSortLast(t *testing.T) {
	f := newFixture(t)
	// C2 was created after C1's last message; emptiness still outranks age.
	f.loadChats(t, `[
		{"id": "C1", "type": 1, "title": "beta",
		 "last_message": {"id": 1, "type": 1, "text": "x", "sendtime": 100}},
		{"id": "C2", "type": 1, "title": "alpha", "created": 500},
		{"id": "C3", "type": 1, "title": "zeta", "created": 900}
	]`)

	assertOrder(t, orderedIDs(f, t), []string{"C1", "C2", "C3"})
}

func TestOrderRecomputesLazilyOnNewMessage(t *testing.T) {
	f := newFixture(t)
	f.loadChats(t, `[
		{"id": "C1", "type": 1, "title": "a",
		 "last_message": {"id": 1, "type": 1, "text": "x", "sendtime": 200}},
		{"id": "C2", "type": 1, "title": "b",
		 "last_message": {"id": 2, "type": 1, "text": "y", "sendtime": 100}}
	]`)
	assertOrder(t, orderedIDs(f, t), []string{"C1", "C2"})

	f.onLoop(t, func() {
		f.r.ApplyFrame(`{"type": "MESSAGE_CREATED", "data": {
			"chat_id": "C2", "id": 9, "type": 1, "flags": 1, "text": "new", "sendtime": 500}}`)
	})
	assertOrder(t, orderedIDs(f, t), []string{"C2", "C1"})
}

func TestOrderUnread(t *testing.T) {
	f := newFixture(t)
	f.loadChats(t, `[
		{"id": "C1", "type": 1, "title": "zed", "unread_count": 2},
		{"id": "C2", "type": 1, "title": "mid"},
		{"id": "C3", "type": 1, "title": "ann", "unread_count": 1}
	]`)
	f.onLoop(t, func() { f.r.SetOrdering(OrderUnread) })

	// Unread chats first, each section alphabetical.
	assertOrder(t, orderedIDs(f, t), []string{"C3", "C1", "C2"})
}

func TestOrderOnline(t *testing.T) {
	f := newFixture(t)
	f.loadChats(t, `[
		{"id": "C1", "type": 1, "title": "offline",
		 "last_message": {"id": 1, "type": 1, "text": "x", "sendtime": 900}},
		{"id": "C2", "type": 1, "title": "online", "online": true,
		 "last_message": {"id": 2, "type": 1, "text": "y", "sendtime": 100}}
	]`)
	f.onLoop(t, func() { f.r.SetOrdering(OrderOnline) })

	assertOrder(t, orderedIDs(f, t), []string{"C2", "C1"})
}

func TestTitleFilter(t *testing.T) {
	f := newFixture(t)
	f.loadChats(t, `[
		{"id": "C1", "type": 1, "title": "Work crew"},
		{"id": "C2", "type": 1, "title": "Family"},
		{"id": "C3", "type": 1, "title": "Homework help"}
	]`)

	f.onLoop(t, func() { f.r.SetFilter("WORK") })
	assertOrder(t, orderedIDs(f, t), []string{"C3", "C1"})

	f.onLoop(t, func() { f.r.SetFilter("") })
	if got := orderedIDs(f, t); len(got) != 3 {
		t.Fatalf("cleared filter shows %d chats, want 3", len(got))
	}
}

func TestSetOrderingPublishesReorder(t *testing.T) {
	f := newFixture(t)
	f.loadChats(t, `[{"id": "C1", "type": 1}]`)

	events, unsub := f.bus.Subscribe(KindChatListReorder, 4)
	defer unsub()

	f.onLoop(t, func() { f.r.SetOrdering(OrderUnread) })
	select {
	case <-events:
	default:
		t.Fatal("no reorder event")
	}

	// Re-selecting the active ordering is a no-op.
	f.onLoop(t, func() { f.r.SetOrdering(OrderUnread) })
	select {
	case <-events:
		t.Fatal("no-op ordering change raised an event")
	default:
	}
}
