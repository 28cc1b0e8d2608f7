package client

import "sync"

// Event names emitted by the client. Subscribers key on the name and
// optionally on the room id carried with it.
const (
	EventForceRefresh    = "room:forceRefresh"
	EventRestartListener = "room:restartListener"
	EventRevealAnimating = "room:revealAnimating"
)

// Event is one local signal.
type Event struct {
	Name   string
	RoomID string
}

// Bus is a process-local publish/subscribe channel keyed by event name.
// Any number of independent subscribers may listen; each Subscribe call
// owns its unsubscribe. No global state: create one per client context.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]func(Event)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]func(Event))}
}

// Subscribe registers fn for an event name and returns its unsubscribe.
// Calling the unsubscribe more than once is safe.
func (b *Bus) Subscribe(name string, fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[name] == nil {
		b.subs[name] = make(map[int]func(Event))
	}
	id := b.nextID
	b.nextID++
	b.subs[name][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if m, ok := b.subs[name]; ok {
			delete(m, id)
			if len(m) == 0 {
				delete(b.subs, name)
			}
		}
	}
}

// Publish delivers ev to every subscriber of its name, synchronously
// and in no particular order.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	fns := make([]func(Event), 0, len(b.subs[ev.Name]))
	for _, fn := range b.subs[ev.Name] {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
