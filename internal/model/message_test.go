package model

import (
	"testing"

	"github.com/tidwall/gjson"
)

func TestMessageUpdateFromJSON(t *testing.T) {
	m := NewMessage(gjson.Parse(`{
		"id": 10,
		"type": 1,
		"flags": 1,
		"text": "hello",
		"author_id": "C5",
		"sendtime": 1000
	}`), "C1")

	if m.ID != 10 || m.Type != MessageTypeText || m.Text != "hello" {
		t.Fatalf("unexpected message: %+v", m)
	}
	if !m.IsOutgoing() {
		t.Fatal("expected outgoing flag")
	}
	if m.ChatID != "C1" {
		t.Fatalf("chat id = %q", m.ChatID)
	}

	// Partial update leaves untouched fields alone.
	m.UpdateFromJSON(gjson.Parse(`{"text": "edited", "changedtime": 2000}`))
	if m.Text != "edited" || m.ID != 10 || m.Sendtime != 1000 {
		t.Fatalf("merge broke fields: %+v", m)
	}
}

func TestMessageNewIDWinsOverID(t *testing.T) {
	m := NewMessage(gjson.Parse(`{"id": 0, "type": 1, "text": "x"}`), "C1")
	m.UpdateFromJSON(gjson.Parse(`{"id": 0, "new_id": 42}`))
	if m.ID != 42 {
		t.Fatalf("id = %d, want 42", m.ID)
	}
}

func TestMessageEntityOffsets(t *testing.T) {
	// Entity offsets arrive as rune offsets and must land on byte offsets.
	m := NewMessage(gjson.Parse(`{
		"id": 1,
		"type": 1,
		"text": "héllo world",
		"entities": [{"t": 2, "s": 6, "l": 5}]
	}`), "C1")

	if len(m.Entities) != 1 {
		t.Fatalf("entities = %d, want 1", len(m.Entities))
	}
	e := m.Entities[0]
	if got := m.EntityValue(e); got != "world" {
		t.Fatalf("entity covers %q, want %q", got, "world")
	}
	if e.Type != EntityBold {
		t.Fatalf("entity type = %d", e.Type)
	}
}

func TestMessageUpdateFromMessage(t *testing.T) {
	opt := NewMessage(gjson.Parse(`{"id": 0, "type": 1, "text": "draft"}`), "C1")
	opt.SendingState = SendingStatePending

	srv := NewMessage(gjson.Parse(`{
		"id": 77,
		"type": 1,
		"text": "draft",
		"sendtime": 5000,
		"attachment_image": {"url": "http://x/p.png", "size": 12}
	}`), "C1")

	opt.UpdateFromMessage(srv)
	if opt.ID != 77 || opt.Sendtime != 5000 {
		t.Fatalf("swap missed scalars: %+v", opt)
	}
	if opt.Image == nil || opt.Image.URL != "http://x/p.png" {
		t.Fatal("swap missed attachment")
	}
	// Deep copy: mutating the source must not reach the replica record.
	srv.Image.URL = "changed"
	if opt.Image.URL != "http://x/p.png" {
		t.Fatal("attachment aliased instead of copied")
	}
}

func TestMessageMatchesFilter(t *testing.T) {
	link := NewMessage(gjson.Parse(`{
		"id": 1, "type": 1, "text": "see https://a.example",
		"entities": [{"t": 10, "s": 4, "l": 17}]
	}`), "C1")
	file := NewMessage(gjson.Parse(`{
		"id": 2, "type": 2, "text": "",
		"attachment_file": {"url": "u", "name": "doc.pdf", "size": 9}
	}`), "C1")
	plain := NewMessage(gjson.Parse(`{"id": 3, "type": 1, "text": "hi"}`), "C1")

	cases := []struct {
		name   string
		m      *Message
		filter int
		want   bool
	}{
		{"link matches links", link, MessagesFilterLinks, true},
		{"plain misses links", plain, MessagesFilterLinks, false},
		{"file matches attachments", file, MessagesFilterAttachments, true},
		{"plain misses attachments", plain, MessagesFilterAttachments, false},
		{"plain misses emails", plain, MessagesFilterEmails, false},
		{"zero filter passes all", plain, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.m.MatchesFilter(tc.filter); got != tc.want {
				t.Fatalf("MatchesFilter(%d) = %v, want %v", tc.filter, got, tc.want)
			}
		})
	}

	if !plain.MatchesFilterAndQuery(0, "HI") {
		t.Fatal("query match should be case-insensitive")
	}
	if plain.MatchesFilterAndQuery(0, "bye") {
		t.Fatal("non-matching query passed")
	}
}
