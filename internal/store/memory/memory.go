package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/store"
)

// Store keeps bookmarks in process memory, partitioned by owner.
// It backs the "memory" storage mode and most tests.
type Store struct {
	mu     sync.RWMutex
	owners map[domain.UserID]map[string]domain.Bookmark // owner -> ID -> Bookmark
	now    func() time.Time
}

// NewStore creates an empty memory store.
func NewStore() *Store {
	return &Store{
		owners: make(map[domain.UserID]map[string]domain.Bookmark),
		now:    time.Now,
	}
}

// WithClock replaces the time source. Tests use it to control createdAt.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// List returns the owner's bookmarks, newest first.
func (s *Store) List(ctx context.Context, owner domain.UserID) ([]domain.Bookmark, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStorageError("list", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.owners[owner]
	bookmarks := make([]domain.Bookmark, 0, len(rows))
	for _, b := range rows {
		bookmarks = append(bookmarks, b)
	}
	domain.SortNewestFirst(bookmarks)
	return bookmarks, nil
}

// Insert adds a bookmark owned by caller.
func (s *Store) Insert(ctx context.Context, caller domain.UserID, rec domain.NewBookmark) (domain.Bookmark, error) {
	if err := ctx.Err(); err != nil {
		return domain.Bookmark{}, domain.NewStorageError("insert", err)
	}
	if err := store.Authorize(caller, rec); err != nil {
		return domain.Bookmark{}, domain.NewStorageError("insert", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := store.Materialize(rec, s.now())
	rows, ok := s.owners[caller]
	if !ok {
		rows = make(map[string]domain.Bookmark)
		s.owners[caller] = rows
	}
	rows[b.ID] = b
	return b, nil
}

// DeleteByID removes a bookmark if caller owns it.
func (s *Store) DeleteByID(ctx context.Context, caller domain.UserID, id string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, domain.NewStorageError("delete", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.owners[caller]
	if _, ok := rows[id]; !ok {
		return 0, nil
	}
	delete(rows, id)
	return 1, nil
}

// Count returns the total number of stored bookmarks across owners.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rows := range s.owners {
		n += len(rows)
	}
	return n
}

func (s *Store) Close() error { return nil }
