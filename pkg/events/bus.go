package events

import (
	"sync"

	"implayer/api"
)

var allEventTypes = []api.EventType{
	api.EventPlaybackStateChanged,
	api.EventPositionUpdate,
	api.EventPlaylistChanged,
	api.EventDownloadJobUpdated,
	api.EventSongBroken,
}

// Bus distributes facade events to subscribers over channels.
type Bus struct {
	subscribers map[api.EventType][]chan api.Event
	mu          sync.RWMutex
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[api.EventType][]chan api.Event),
	}
}

// Subscribe returns a channel receiving events of the specified type.
func (b *Bus) Subscribe(eventType api.EventType) <-chan api.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan api.Event, 16)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	return ch
}

// SubscribeAll returns a channel receiving every event type.
func (b *Bus) SubscribeAll() <-chan api.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan api.Event, 32)
	for _, eventType := range allEventTypes {
		b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	}
	return ch
}

// Publish broadcasts an event to all subscribers of its type. A subscriber
// that cannot keep up is skipped rather than blocking the publisher.
func (b *Bus) Publish(event api.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Unsubscribe removes a subscriber channel from every event type.
func (b *Bus) Unsubscribe(ch <-chan api.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for i, sub := range subs {
			if sub == ch {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Close closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	closed := make(map[chan api.Event]bool)
	for _, subs := range b.subscribers {
		for _, ch := range subs {
			if !closed[ch] {
				close(ch)
				closed[ch] = true
			}
		}
	}
	b.subscribers = make(map[api.EventType][]chan api.Event)
}
