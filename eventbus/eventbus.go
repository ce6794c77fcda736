// Package eventbus is an in-process publish/subscribe registry keyed by event
// name. Payloads are typed through Topic. A Bus lives from New until Close;
// after Close, Publish drops events and Subscribe registers nothing.
package eventbus

import (
	"sync"
)

// A Topic names an event and fixes its payload type.
type Topic[T any] struct {
	Name string
}

// NewTopic returns the topic called name.
func NewTopic[T any](name string) Topic[T] {
	return Topic[T]{Name: name}
}

type handler struct {
	id uint64
	fn func(any)
}

// A Bus delivers published events to the handlers subscribed to their topic.
// Handlers run synchronously in the publisher's goroutine, in subscription
// order, and must not block.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]handler
	nextID   uint64
	closed   bool
}

// New returns an open Bus.
func New() *Bus {
	return &Bus{
		handlers: make(map[string][]handler),
	}
}

// Close removes every handler. It is safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[string][]handler)
}

// Len returns the number of handlers subscribed to name.
func (b *Bus) Len(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[name])
}

// Subscribe registers fn for topic and returns a function that removes it.
func Subscribe[T any](b *Bus, topic Topic[T], fn func(T)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}

	b.nextID++
	id := b.nextID
	b.handlers[topic.Name] = append(b.handlers[topic.Name], handler{
		id: id,
		fn: func(v any) { fn(v.(T)) },
	})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic.Name, id) })
	}
}

// Publish delivers payload to every handler of topic.
func Publish[T any](b *Bus, topic Topic[T], payload T) {
	b.mu.RLock()
	hs := b.handlers[topic.Name]
	b.mu.RUnlock()

	for _, h := range hs {
		h.fn(payload)
	}
}

func (b *Bus) remove(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	hs := b.handlers[name]
	for i, h := range hs {
		if h.id == id {
			// Copy so a Publish iterating the old slice is unaffected.
			next := make([]handler, 0, len(hs)-1)
			next = append(next, hs[:i]...)
			next = append(next, hs[i+1:]...)
			if len(next) == 0 {
				delete(b.handlers, name)
			} else {
				b.handlers[name] = next
			}
			return
		}
	}
}
