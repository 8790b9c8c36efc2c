package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/store"
)

// Store keeps bookmarks in Redis. Each bookmark is a JSON value; each owner
// has a sorted set of IDs scored by CreatedAt so listing is one range read.
type Store struct {
	client *redis.Client
	now    func() time.Time
}

// NewStore creates a new Redis bookmark store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
		now:    time.Now,
	}
}

// List retrieves the owner's bookmarks, newest first
func (s *Store) List(ctx context.Context, owner domain.UserID) ([]domain.Bookmark, error) {
	ids, err := s.client.ZRevRange(ctx, OwnerBookmarksKey(owner), 0, -1).Result()
	if err != nil {
		return nil, domain.NewStorageError("list", fmt.Errorf("failed to get bookmark IDs: %w", err))
	}
	if len(ids) == 0 {
		return []domain.Bookmark{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = BookmarkKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, domain.NewStorageError("list", fmt.Errorf("failed to get bookmarks: %w", err))
	}

	bookmarks := make([]domain.Bookmark, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry without a value: skip it, the next delete cleans up
			continue
		}
		var b domain.Bookmark
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			return nil, domain.NewStorageError("list", fmt.Errorf("failed to unmarshal bookmark %s: %w", ids[i], err))
		}
		if b.OwnerID != owner {
			continue
		}
		bookmarks = append(bookmarks, b)
	}

	domain.SortNewestFirst(bookmarks)
	return bookmarks, nil
}

// Insert stores a bookmark owned by caller
func (s *Store) Insert(ctx context.Context, caller domain.UserID, rec domain.NewBookmark) (domain.Bookmark, error) {
	if err := store.Authorize(caller, rec); err != nil {
		return domain.Bookmark{}, domain.NewStorageError("insert", err)
	}

	b := store.Materialize(rec, s.now())
	data, err := json.Marshal(b)
	if err != nil {
		return domain.Bookmark{}, domain.NewStorageError("insert", fmt.Errorf("failed to marshal bookmark: %w", err))
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, BookmarkKey(b.ID), data, 0)
		pipe.ZAdd(ctx, OwnerBookmarksKey(caller), redis.Z{
			Score:  float64(b.CreatedAt.UnixMicro()),
			Member: b.ID,
		})
		return nil
	})
	if err != nil {
		return domain.Bookmark{}, domain.NewStorageError("insert", fmt.Errorf("failed to save bookmark: %w", err))
	}

	return b, nil
}

// DeleteByID removes a bookmark if it sits in the caller's set
func (s *Store) DeleteByID(ctx context.Context, caller domain.UserID, id string) (int64, error) {
	ownerKey := OwnerBookmarksKey(caller)

	// Ownership check: only IDs in the caller's own set are deletable
	if err := s.client.ZScore(ctx, ownerKey, id).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, domain.NewStorageError("delete", fmt.Errorf("failed to check bookmark owner: %w", err))
	}

	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, ownerKey, id)
		pipe.Del(ctx, BookmarkKey(id))
		return nil
	})
	if err != nil {
		return 0, domain.NewStorageError("delete", fmt.Errorf("failed to delete bookmark: %w", err))
	}

	return removed.Val(), nil
}

// Close is a no-op: the client is owned by the app
func (s *Store) Close() error { return nil }
