package events

import (
	"sync"

	"github.com/google/uuid"
)

// EventBus delivers events to subscribers. Publishing never blocks the
// publisher; delivery happens on a dedicated goroutine per bus.
type EventBus interface {
	PublishAsync(event Event)
	Subscribe(handler EventHandler, types ...EventType) string
	Unsubscribe(id string)
	Shutdown()
}

type subscription struct {
	id      string
	types   map[EventType]bool // empty means all types
	handler EventHandler
}

type bus struct {
	mu      sync.RWMutex
	subs    map[string]*subscription
	queue   chan Event
	done    chan struct{}
	closing sync.Once
}

// NewEventBus creates a started event bus with the given queue depth.
func NewEventBus(bufferSize int) EventBus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	b := &bus{
		subs:  make(map[string]*subscription),
		queue: make(chan Event, bufferSize),
		done:  make(chan struct{}),
	}
	go b.dispatch()
	return b
}

func (b *bus) PublishAsync(event Event) {
	select {
	case b.queue <- event:
	case <-b.done:
	default:
		// Queue full: drop rather than stall scanners or request handlers.
	}
}

func (b *bus) Subscribe(handler EventHandler, types ...EventType) string {
	sub := &subscription{
		id:      uuid.NewString(),
		types:   make(map[EventType]bool, len(types)),
		handler: handler,
	}
	for _, t := range types {
		sub.types[t] = true
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub.id
}

func (b *bus) Unsubscribe(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

func (b *bus) Shutdown() {
	b.closing.Do(func() {
		close(b.done)
	})
}

func (b *bus) dispatch() {
	for {
		select {
		case event := <-b.queue:
			b.deliver(event)
		case <-b.done:
			return
		}
	}
}

func (b *bus) deliver(event Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.subs))
	for _, sub := range b.subs {
		if len(sub.types) == 0 || sub.types[event.Type] {
			handlers = append(handlers, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
