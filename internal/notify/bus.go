// Package notify carries sync intents from the progress
// interactor to whatever executes downloads.
package notify

import (
	"sync"

	"github.com/wesm/coursesync/internal/course"
)

// Name identifies a broadcast signal.
type Name string

const (
	// OfflineSyncTriggered carries the entries to sync.
	OfflineSyncTriggered Name = "OfflineSyncTriggered"
	// OfflineSyncCancelled has no payload.
	OfflineSyncCancelled Name = "OfflineSyncCancelled"
)

// Event is one posted notification.
type Event struct {
	Name    Name
	Entries []course.Entry
}

type observer struct {
	id int
	fn func(Event)
}

// Bus delivers events to observers registered for their name.
type Bus struct {
	mu        sync.Mutex
	nextID    int
	observers map[Name][]observer
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{observers: make(map[Name][]observer)}
}

// Observe registers fn for events named name. The returned
// function removes the registration and is safe to call more
// than once.
func (b *Bus) Observe(name Name, fn func(Event)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.observers[name] = append(b.observers[name], observer{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		obs := b.observers[name]
		for i, o := range obs {
			if o.id == id {
				b.observers[name] = append(obs[:i:i], obs[i+1:]...)
				return
			}
		}
	}
}

// Post calls every observer of ev.Name in registration order
// and returns after the last one does. Each observer gets its
// own copy of the entries.
func (b *Bus) Post(ev Event) {
	b.mu.Lock()
	obs := append([]observer(nil), b.observers[ev.Name]...)
	b.mu.Unlock()

	for _, o := range obs {
		o.fn(Event{Name: ev.Name, Entries: course.CloneEntries(ev.Entries)})
	}
}
