// Package eventbus implements the synchronous in-process publish/subscribe router.
//
// Publish runs every matching handler on the caller's goroutine, in
// subscription order, before it returns. There are no queues. A handler
// error stops dispatch and is returned to the publisher.
//
// Handlers may publish while being dispatched. Each Publish works on a
// snapshot of the subscriber list taken when it starts, so a subscription
// added during dispatch is seen from the next Publish on.
package eventbus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/domain"
)

var (
	// ErrNilEvent is returned when publishing a nil event.
	ErrNilEvent = errors.New("eventbus: nil event")
	// ErrUnknownKind is returned when subscribing to a kind outside the event set.
	ErrUnknownKind = errors.New("eventbus: unknown event kind")
	// ErrNilHandler is returned when subscribing a nil handler.
	ErrNilHandler = errors.New("eventbus: nil handler")
)

// Handler reacts to one event.
type Handler func(event domain.Event) error

type subscription struct {
	kind    domain.EventKind
	handler Handler
}

func (s subscription) matches(event domain.Event) bool {
	return s.kind == domain.KindAny || s.kind == event.Kind()
}

// Bus routes events to subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs []subscription
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers h for events of the given kind.
// domain.KindAny receives every event.
func (b *Bus) Subscribe(kind domain.EventKind, h Handler) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if h == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	b.subs = append(b.subs, subscription{kind: kind, handler: h})
	b.mu.Unlock()
	return nil
}

// Publish delivers event to every matching subscriber.
func (b *Bus) Publish(event domain.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	matched := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.matches(event) {
			matched = append(matched, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range matched {
		if err := h(event); err != nil {
			return fmt.Errorf("handle %s: %w", event.Kind(), err)
		}
	}
	return nil
}

// Subscribers returns how many handlers would receive an event of kind.
func (b *Bus) Subscribers(kind domain.EventKind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, s := range b.subs {
		if s.kind == domain.KindAny || s.kind == kind {
			n++
		}
	}
	return n
}
