package replica

import (
	"testing"

	"github.com/tidwall/gjson"

	"github.com/rochat/chatcube/internal/model"
)

func loadedFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	f.loadChats(t, `[{"id": "C1", "type": 1}, {"id": "T1", "type": 1}]`)
	f.onLoop(t, func() {
		f.r.SetMe(gjson.Parse(`{"id": "C9", "first_name": "Me",
			"telegram_account": {"phone": "+441234", "tg_user_id": 555}}`))
	})
	return f
}

func TestOptimisticTextSwap(t *testing.T) {
	f := loadedFixture(t)

	f.onLoop(t, func() {
		pending := &model.Message{Type: model.MessageTypeText, Text: "hello"}
		f.r.AddOptimistic("C1", pending)

		c := f.r.Chat("C1")
		if len(c.Messages) != 1 || c.Messages[0].SendingState != model.SendingStatePending {
			t.Fatalf("pending record missing: %+v", c.Messages)
		}

		f.r.ApplyFrame(`{"type": "MESSAGE_CREATED", "data": {
			"chat_id": "C1", "id": 80, "type": 1, "flags": 1,
			"text": "hello", "sendtime": 900, "author_id": "C9"}}`)

		if len(c.Messages) != 1 {
			t.Fatalf("confirmation duplicated the message: %d records", len(c.Messages))
		}
		m := c.Messages[0]
		if m != pending {
			t.Fatal("confirmation replaced the record instead of swapping in place")
		}
		if m.ID != 80 || m.SendingState != model.SendingStateOK {
			t.Fatalf("swap result: %+v", m)
		}
	})
}

func TestOptimisticMatchPredicates(t *testing.T) {
	cases := []struct {
		name    string
		chatID  string
		pending *model.Message
		frame   string
		match   bool
	}{
		{
			name:    "text equality",
			chatID:  "C1",
			pending: &model.Message{Type: model.MessageTypeText, Text: "yo"},
			frame:   `{"chat_id": "C1", "id": 80, "type": 1, "flags": 1, "text": "yo", "author_id": "C9"}`,
			match:   true,
		},
		{
			name:    "text mismatch",
			chatID:  "C1",
			pending: &model.Message{Type: model.MessageTypeText, Text: "yo"},
			frame:   `{"chat_id": "C1", "id": 80, "type": 1, "flags": 1, "text": "other", "author_id": "C9"}`,
			match:   false,
		},
		{
			name:    "type mismatch",
			chatID:  "C1",
			pending: &model.Message{Type: model.MessageTypeText, Text: "yo"},
			frame:   `{"chat_id": "C1", "id": 80, "type": 3, "flags": 1, "text": "yo", "author_id": "C9"}`,
			match:   false,
		},
		{
			name:   "sticker matches by url substring",
			chatID: "C1",
			pending: &model.Message{Type: model.MessageTypeSticker,
				Image: &model.AttachmentImage{URL: "stickers/cat42"}},
			frame: `{"chat_id": "C1", "id": 80, "type": 4, "flags": 1, "author_id": "C9",
				"attachment_image": {"url": "http://cdn/stickers/cat42.png"}}`,
			match: true,
		},
		{
			name:   "file matches by size and kind",
			chatID: "C1",
			pending: &model.Message{Type: model.MessageTypeFile,
				File: &model.AttachmentFile{Size: 512, FileType: 3}},
			frame: `{"chat_id": "C1", "id": 80, "type": 2, "flags": 1, "author_id": "C9",
				"attachment_file": {"url": "u", "size": 512, "file_type": 3}}`,
			match: true,
		},
		{
			name:   "file size mismatch",
			chatID: "C1",
			pending: &model.Message{Type: model.MessageTypeFile,
				File: &model.AttachmentFile{Size: 512, FileType: 3}},
			frame: `{"chat_id": "C1", "id": 80, "type": 2, "flags": 1, "author_id": "C9",
				"attachment_file": {"url": "u", "size": 600, "file_type": 3}}`,
			match: false,
		},
		{
			name:   "photo matches by size",
			chatID: "C1",
			pending: &model.Message{Type: model.MessageTypePhoto,
				Image: &model.AttachmentImage{Size: 2048}},
			frame: `{"chat_id": "C1", "id": 80, "type": 3, "flags": 1, "author_id": "C9",
				"attachment_image": {"url": "u", "size": 2048}}`,
			match: true,
		},
		{
			name:    "relayed echo matches under the telegram identity",
			chatID:  "T1",
			pending: &model.Message{Type: model.MessageTypeText, Text: "yo"},
			frame:   `{"chat_id": "T1", "id": 80, "type": 1, "flags": 1, "text": "yo", "author_id": "T555"}`,
			match:   true,
		},
		{
			name:    "relayed echo matches rewritten text with attachment",
			chatID:  "T1",
			pending: &model.Message{Type: model.MessageTypePhoto, Text: "caption"},
			frame: `{"chat_id": "T1", "id": 80, "type": 3, "flags": 1, "author_id": "T555",
				"attachment_image": {"url": "u", "size": 9}}`,
			match: true,
		},
		{
			name:    "relayed echo type mismatch",
			chatID:  "T1",
			pending: &model.Message{Type: model.MessageTypeText, Text: "yo"},
			frame: `{"chat_id": "T1", "id": 80, "type": 3, "flags": 1, "author_id": "T555",
				"attachment_image": {"url": "u", "size": 9}}`,
			match: false,
		},
		{
			name:    "relayed echo under a foreign author does not match",
			chatID:  "T1",
			pending: &model.Message{Type: model.MessageTypeText, Text: "yo"},
			frame:   `{"chat_id": "T1", "id": 80, "type": 1, "flags": 1, "text": "yo", "author_id": "T777"}`,
			match:   false,
		},
		{
			name:    "relayed echo with plain text must match exactly",
			chatID:  "T1",
			pending: &model.Message{Type: model.MessageTypeText, Text: "yo"},
			frame:   `{"chat_id": "T1", "id": 80, "type": 1, "flags": 1, "text": "different", "author_id": "T555"}`,
			match:   false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := loadedFixture(t)
			f.onLoop(t, func() {
				f.r.AddOptimistic(tc.chatID, tc.pending)
				f.r.ApplyFrame(`{"type": "MESSAGE_CREATED", "data": ` + tc.frame + `}`)

				c := f.r.Chat(tc.chatID)
				if tc.match {
					if len(c.Messages) != 1 || c.Messages[0].ID != 80 {
						t.Errorf("expected swap, window = %+v", c.Messages)
					}
				} else {
					if len(c.Messages) != 2 {
						t.Errorf("expected append beside pending, window size = %d", len(c.Messages))
					}
				}
			})
		})
	}
}

func TestOptimisticFirstMatchWins(t *testing.T) {
	f := loadedFixture(t)

	f.onLoop(t, func() {
		first := &model.Message{Type: model.MessageTypeText, Text: "same"}
		second := &model.Message{Type: model.MessageTypeText, Text: "same"}
		f.r.AddOptimistic("C1", first)
		f.r.AddOptimistic("C1", second)

		f.r.ApplyFrame(`{"type": "MESSAGE_CREATED", "data": {
			"chat_id": "C1", "id": 80, "type": 1, "flags": 1,
			"text": "same", "sendtime": 900, "author_id": "C9"}}`)

		if first.ID != 80 {
			t.Error("earliest pending record was not the one confirmed")
		}
		if second.ID != 0 || second.SendingState != model.SendingStatePending {
			t.Error("later pending record was touched")
		}
	})
}

func TestConfirmOptimisticFromResponse(t *testing.T) {
	f := loadedFixture(t)

	f.onLoop(t, func() {
		pending := &model.Message{Type: model.MessageTypeText, Text: "hi"}
		f.r.AddOptimistic("C1", pending)

		auth := model.NewMessage(gjson.Parse(`{"id": 81, "type": 1, "flags": 1, "text": "hi", "sendtime": 901}`), "C1")
		f.r.ConfirmOptimistic("C1", pending, auth)

		if pending.ID != 81 || pending.SendingState != model.SendingStateOK {
			t.Fatalf("confirm result: %+v", pending)
		}

		// The stream echo of the same id now merges instead of appending.
		f.r.ApplyFrame(`{"type": "MESSAGE_CREATED", "data": {
			"chat_id": "C1", "id": 81, "type": 1, "flags": 1, "text": "hi", "sendtime": 901}}`)
		if n := len(f.r.Chat("C1").Messages); n != 1 {
			t.Fatalf("echo duplicated: %d records", n)
		}
	})
}

func TestFailOptimisticRemovesRecord(t *testing.T) {
	f := loadedFixture(t)

	f.onLoop(t, func() {
		f.r.UpsertMessage("C1", gjson.Parse(`{"id": 50, "type": 1, "text": "old", "sendtime": 500}`), false)
		settled := f.r.Chat("C1").LastMessage

		pending := &model.Message{Type: model.MessageTypeText, Text: "hi"}
		f.r.AddOptimistic("C1", pending)
		if f.r.Chat("C1").LastMessage != pending {
			t.Fatal("pending record did not become the last message")
		}

		f.r.FailOptimistic("C1", pending)

		c := f.r.Chat("C1")
		if len(c.Messages) != 1 || c.Messages[0] != settled {
			t.Fatalf("window after failure: %+v", c.Messages)
		}
		if c.LastMessage != settled {
			t.Errorf("last message not rolled back: %+v", c.LastMessage)
		}
		if pending.SendingState != model.SendingStateFailed {
			t.Errorf("state = %d", pending.SendingState)
		}
		// The removed record never matches later confirmations.
		f.r.ApplyFrame(`{"type": "MESSAGE_CREATED", "data": {
			"chat_id": "C1", "id": 82, "type": 1, "flags": 1, "text": "hi", "author_id": "C9", "sendtime": 902}}`)
		if pending.ID != 0 {
			t.Error("failed record was confirmed")
		}
	})
}
