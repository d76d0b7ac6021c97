package bus

import "time"

// Event is one replica change notification. Kind is a dotted path such as
// "chat.changed" or "message.added"; Payload carries the publisher's typed
// detail struct and is asserted back by the consumer.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
