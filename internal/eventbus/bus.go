// Package eventbus is an in-process fanout of small lifecycle events.
//
// Publish never blocks: a subscriber whose buffer is full misses the event.
package eventbus

import (
	"sync"
	"time"
)

// Event types published by campbot components.
const (
	EntryCreated     = "countdown.created"
	EntryFired       = "countdown.fired"
	EntryCancelled   = "countdown.cancelled"
	EntryRecovered   = "countdown.recovered"
	DeliveryFailed   = "countdown.delivery_failed"
	SpaceCreated     = "countdown.space_created"
	SpaceArchived    = "countdown.space_archived"
	NotifierSent     = "notifier.sent"
	NotifierFailed   = "notifier.failed"
	NotifierDropped  = "notifier.dropped"
	NotifierDeduped  = "notifier.deduped"
	ConfigReloaded   = "config.reloaded"
	HousekeepingDone = "scheduler.job_done"
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

func New() Bus {
	return &memBus{subs: map[int]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	next int
	subs map[int]chan Event
}

// Publish holds the read lock while sending so an unsubscribe cannot close
// a channel mid-send. Sends are non-blocking so the lock is never held long.
func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(Event) {}

func (Nop) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}
