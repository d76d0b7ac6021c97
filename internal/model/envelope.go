package model

import "github.com/tidwall/gjson"

// Event kinds carried in stream envelopes.
const (
	EventMessageCreated    = "MESSAGE_CREATED"
	EventMessageUpdated    = "MESSAGE_UPDATED"
	EventMessagesDeleted   = "MESSAGES_DELETED"
	EventChatCreated       = "CHAT_CREATED"
	EventChatUpdated       = "CHAT_UPDATED"
	EventChatUpdatedOutbox = "CHAT_UPDATED_OUTBOX"
	EventChatDeleted       = "CHAT_DELETED"
	EventChatCleared       = "CHAT_CLEARED"
	EventChatAction        = "CHAT_ACTION"
	EventMemberUpdated     = "MEMBER_UPDATED"
	EventShowAlert         = "SHOW_ALERT"
)

// Envelope is one decoded stream event: a kind tag plus its payload object.
// Raw keeps the original JSON so undelivered envelopes can be queued and
// replayed later without holding parsed state.
type Envelope struct {
	Type string
	Data gjson.Result
	Raw  string
}

// ParseEnvelope decodes the {type, data} object carried in a stream frame.
func ParseEnvelope(raw string) (Envelope, bool) {
	j := gjson.Parse(raw)
	typ := j.Get("type").String()
	if typ == "" {
		return Envelope{}, false
	}
	return Envelope{Type: typ, Data: j.Get("data"), Raw: raw}, true
}
