// Package feed delivers row change notifications to subscribers.
//
// A subscriber registers a Filter and a callback; the callback carries no
// payload, it only says "something matching your filter changed".
// Callbacks run on the feed's goroutine and must not block.
package feed

import (
	"context"
	"errors"

	"github.com/MrSnakeDoc/shelf/internal/domain"
)

// EventType is the kind of row change.
type EventType string

const (
	Insert EventType = "insert"
	Update EventType = "update"
	Delete EventType = "delete"
)

// Event describes one row change.
type Event struct {
	Table   string        `json:"table"`
	Type    EventType     `json:"type"`
	OwnerID domain.UserID `json:"owner_id"`
	ID      string        `json:"id"`
}

// Filter selects the events a subscriber cares about. Empty Types means
// every change type.
type Filter struct {
	Table   string
	OwnerID domain.UserID
	Types   []EventType
}

// Matches reports whether ev passes the filter.
func (f Filter) Matches(ev Event) bool {
	if ev.Table != f.Table || ev.OwnerID != f.OwnerID {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == ev.Type {
			return true
		}
	}
	return false
}

// Subscription is the handle returned by Subscribe.
type Subscription interface {
	// Release stops future callbacks. Safe to call more than once.
	Release()
}

// Feed is implemented by every change-notification transport.
type Feed interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, f Filter, onChange func()) (Subscription, error)
	Close() error
}

// ErrClosed is returned when using a feed after Close.
var ErrClosed = errors.New("feed closed")

func validate(f Filter, onChange func()) error {
	if f.Table == "" || f.OwnerID == "" {
		return errors.New("filter needs a table and an owner")
	}
	if onChange == nil {
		return errors.New("onChange callback is required")
	}
	return nil
}
