package bookmarks

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/feed"
)

var errBackend = errors.New("backend unavailable")

type fakeIdentity struct {
	mu  sync.Mutex
	uid domain.UserID
	err error
}

func (f *fakeIdentity) CurrentUser(context.Context) (domain.UserID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", false, f.err
	}
	return f.uid, f.uid != "", nil
}

func (f *fakeIdentity) set(uid domain.UserID) {
	f.mu.Lock()
	f.uid = uid
	f.mu.Unlock()
}

// fakeStorage keeps rows for a single owner. Hooks, when set, replace the
// default behavior of a call.
type fakeStorage struct {
	mu     sync.Mutex
	rows   []domain.Bookmark
	seq    int
	lists  atomic.Int32
	writes atomic.Int32

	listHook   func(ctx context.Context) ([]domain.Bookmark, error)
	deleteHook func(ctx context.Context, id string) error
	insertErr  error
}

func (f *fakeStorage) List(ctx context.Context) ([]domain.Bookmark, error) {
	f.lists.Add(1)
	if f.listHook != nil {
		return f.listHook(ctx)
	}
	return f.rowsCopy(), nil
}

func (f *fakeStorage) rowsCopy() []domain.Bookmark {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Bookmark, len(f.rows))
	copy(out, f.rows)
	return out
}

func (f *fakeStorage) Insert(_ context.Context, rec domain.NewBookmark) (domain.Bookmark, error) {
	f.writes.Add(1)
	if f.insertErr != nil {
		return domain.Bookmark{}, f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	b := domain.Bookmark{
		ID:        "new-" + strconv.Itoa(f.seq),
		OwnerID:   rec.OwnerID,
		Title:     rec.Title,
		URL:       rec.URL,
		CreatedAt: time.Unix(int64(f.seq), 0).UTC(),
	}
	f.rows = append([]domain.Bookmark{b}, f.rows...)
	return b, nil
}

func (f *fakeStorage) DeleteByID(ctx context.Context, id string) error {
	f.writes.Add(1)
	if f.deleteHook != nil {
		return f.deleteHook(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, b := range f.rows {
		if b.ID == id {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			break
		}
	}
	return nil
}

type fakeSubscription struct {
	released atomic.Bool
}

func (s *fakeSubscription) Release() { s.released.Store(true) }

// fakeFeed records subscriptions and lets tests fire the callback.
type fakeFeed struct {
	mu       sync.Mutex
	filters  []feed.Filter
	callback func()
	sub      *fakeSubscription
	err      error
}

func (f *fakeFeed) Subscribe(_ context.Context, filter feed.Filter, onChange func()) (feed.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.filters = append(f.filters, filter)
	f.callback = onChange
	f.sub = &fakeSubscription{}
	return f.sub, nil
}

func (f *fakeFeed) fire() {
	f.mu.Lock()
	cb := f.callback
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []Notification
}

func (r *recordingNotifier) Notify(n Notification) {
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
}

func (r *recordingNotifier) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

func (r *recordingNotifier) last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return Notification{}, false
	}
	return r.items[len(r.items)-1], true
}

func bookmark(id string, sec int64) domain.Bookmark {
	return domain.Bookmark{
		ID:        id,
		OwnerID:   "alice",
		Title:     "title " + id,
		URL:       "https://" + id + ".example.com",
		CreatedAt: time.Unix(sec, 0).UTC(),
	}
}

func ids(items []domain.Bookmark) []string {
	out := make([]string, 0, len(items))
	for _, b := range items {
		out = append(out, b.ID)
	}
	return out
}
