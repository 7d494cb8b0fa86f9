// Package eventstore keeps an append-only, in-memory log of bus events
// and replays it onto a bus.
package eventstore

import (
	"fmt"
	"sync"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/domain"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/eventbus"
)

// Publisher is the part of the bus replay needs.
type Publisher interface {
	Publish(event domain.Event) error
}

// Store is an ordered, append-only event log.
type Store struct {
	mu     sync.RWMutex
	events []domain.Event
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// Append adds event at the end of the log.
func (s *Store) Append(event domain.Event) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

// Restore appends previously recorded events, e.g. loaded from the journal.
func (s *Store) Restore(events []domain.Event) {
	s.mu.Lock()
	s.events = append(s.events, events...)
	s.mu.Unlock()
}

// All returns a copy of the log. Mutating it does not affect the store.
func (s *Store) All() []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of recorded events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Replay publishes every recorded event onto bus in original order.
// The store is not modified. Replay stops at the first handler error.
func (s *Store) Replay(bus Publisher) error {
	for i, event := range s.All() {
		if err := bus.Publish(event); err != nil {
			return fmt.Errorf("replay event %d (%s): %w", i, event.Kind(), err)
		}
	}
	return nil
}

// Attach subscribes the store to every event published on bus.
func (s *Store) Attach(bus *eventbus.Bus) error {
	return bus.Subscribe(domain.KindAny, func(event domain.Event) error {
		s.Append(event)
		return nil
	})
}
