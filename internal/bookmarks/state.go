package bookmarks

import (
	"fmt"

	"github.com/MrSnakeDoc/shelf/internal/domain"
)

// Phase is the Syncer lifecycle.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseLoading
	PhaseReady
	PhaseErrored
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseErrored:
		return "errored"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText makes Phase render as its name in JSON.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	for c := PhaseUninitialized; c <= PhaseClosed; c++ {
		if c.String() == string(b) {
			*p = c
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}

// State is an immutable snapshot of a Syncer. Version increases with every
// change, so consumers can drop snapshots that arrive out of order.
type State struct {
	Items     []domain.Bookmark `json:"items"`
	Loading   bool              `json:"loading"`
	LastError string            `json:"last_error,omitempty"`
	Phase     Phase             `json:"phase"`
	Version   uint64            `json:"version"`
}

// Level is the severity of a Notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a transient, user-facing message (a toast).
type Notification struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

func Success(msg string) Notification { return Notification{Level: LevelSuccess, Message: msg} }
func Failure(msg string) Notification { return Notification{Level: LevelError, Message: msg} }

// Notifier receives notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// NopNotifier drops everything.
type NopNotifier struct{}

func (NopNotifier) Notify(Notification) {}
