// Package events fans simulator events out to subscribers. Delivery is
// synchronous and in subscription order; handlers must not publish.
package events

import (
	"sync"

	"github.com/nathoo/cgmlsim/types"
)

// Event types published by the simulator.
const (
	ActionExecuted = "action_executed"
	StateChanged   = "state_changed"
	Transition     = "transition"
	PhaseAdvanced  = "phase_advanced"
	TurnEnded      = "turn_ended"
	GameOver       = "game_over"
)

// Handler receives one event.
type Handler func(types.Event)

// Bus is a list of subscribers. The zero value is ready to use.
type Bus struct {
	mu       sync.RWMutex
	handlers []entry
}

type entry struct {
	types   map[string]bool // nil means every type
	handler Handler
}

// Subscribe registers h for the given event types, or for every event when
// none are given.
func (b *Bus) Subscribe(h Handler, eventTypes ...string) {
	e := entry{handler: h}
	if len(eventTypes) > 0 {
		e.types = make(map[string]bool, len(eventTypes))
		for _, t := range eventTypes {
			e.types[t] = true
		}
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, e)
	b.mu.Unlock()
}

// Publish delivers ev to every matching subscriber. A nil bus drops it.
func (b *Bus) Publish(ev types.Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()
	for _, e := range handlers {
		if e.types != nil && !e.types[ev.Type] {
			continue
		}
		e.handler(ev)
	}
}

// Recorder collects events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []types.Event
}

// Record is a Handler.
func (r *Recorder) Record(ev types.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Event(nil), r.events...)
}

// Count returns how many recorded events have type typ.
func (r *Recorder) Count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}
