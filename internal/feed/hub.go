package feed

import (
	"context"
	"sync"
	"sync/atomic"
)

// Hub is an in-process Feed. It fans events out to every matching
// subscriber in the publisher's goroutine.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*hubSubscription
	nextID uint64
	closed bool
}

type hubSubscription struct {
	id       uint64
	filter   Filter
	onChange func()
	released atomic.Bool
	hub      *Hub
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*hubSubscription)}
}

// Publish notifies every subscriber whose filter matches ev.
func (h *Hub) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrClosed
	}
	matched := make([]*hubSubscription, 0, len(h.subs))
	for _, s := range h.subs {
		if s.filter.Matches(ev) {
			matched = append(matched, s)
		}
	}
	h.mu.RUnlock()

	// Callbacks run outside the lock so a callback may release itself.
	for _, s := range matched {
		if !s.released.Load() {
			s.onChange()
		}
	}
	return nil
}

// Subscribe registers onChange for events matching f.
func (h *Hub) Subscribe(ctx context.Context, f Filter, onChange func()) (Subscription, error) {
	if err := validate(f, onChange); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	h.nextID++
	s := &hubSubscription{id: h.nextID, filter: f, onChange: onChange, hub: h}
	h.subs[s.id] = s
	return s, nil
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close drops every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, s := range h.subs {
		s.released.Store(true)
		delete(h.subs, id)
	}
	h.closed = true
	return nil
}

func (s *hubSubscription) Release() {
	if s.released.Swap(true) {
		return
	}
	s.hub.mu.Lock()
	delete(s.hub.subs, s.id)
	s.hub.mu.Unlock()
}
