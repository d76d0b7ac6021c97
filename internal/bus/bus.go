package bus

import (
	"strings"
	"sync"
)

// Bus fans replica change notifications out to in-process listeners. Kinds
// are dotted paths ("chat.changed", "message.added"); a listener names the
// prefix it wants and receives every event under it. Delivery never blocks
// the publisher, so a listener that stops draining its channel loses events
// rather than stalling the run loop.
type Bus struct {
	mu        sync.RWMutex
	listeners []*listener
	nextID    int
}

type listener struct {
	id     int
	prefix string
	ch     chan Event
}

func New() *Bus {
	return &Bus{}
}

// Publish delivers evt to every listener whose prefix matches evt.Kind.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, l := range b.listeners {
		if !strings.HasPrefix(evt.Kind, l.prefix) {
			continue
		}
		select {
		case l.ch <- evt:
		default:
			// Listener buffer full, event lost.
		}
	}
}

// Subscribe registers a listener for every kind under the given prefix. The
// empty prefix matches everything. The returned function removes the
// listener; the channel is never closed, so receivers select on it rather
// than range over it.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	l := &listener{prefix: prefix, ch: make(chan Event, bufSize)}

	b.mu.Lock()
	l.id = b.nextID
	b.nextID++
	b.listeners = append(b.listeners, l)
	b.mu.Unlock()

	return l.ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, cand := range b.listeners {
			if cand.id == l.id {
				b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}
