// Package store holds the owner-scoped bookmark repositories.
//
// Every repository enforces row ownership itself: List only returns the
// owner's rows, Insert refuses a record whose OwnerID is not the caller, and
// DeleteByID only removes a row the caller owns. Callers above this layer
// never filter by owner.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/shelf/internal/domain"
)

// TableBookmarks is the logical table name used by the change feed.
const TableBookmarks = "bookmarks"

// Repository is implemented by every storage backend.
type Repository interface {
	// List returns the owner's bookmarks, newest first.
	List(ctx context.Context, owner domain.UserID) ([]domain.Bookmark, error)

	// Insert stores rec on behalf of caller and returns the stored row with
	// ID and CreatedAt assigned.
	Insert(ctx context.Context, caller domain.UserID, rec domain.NewBookmark) (domain.Bookmark, error)

	// DeleteByID removes the row if caller owns it and returns the number of
	// rows removed. Zero is not an error.
	DeleteByID(ctx context.Context, caller domain.UserID, id string) (int64, error)

	Close() error
}

// Backend names accepted by configuration.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Authorize is the insert policy shared by all backends.
func Authorize(caller domain.UserID, rec domain.NewBookmark) error {
	if caller == "" || rec.OwnerID != caller {
		return domain.ErrForbidden
	}
	return nil
}

// Materialize turns an authorized insert payload into a stored row.
func Materialize(rec domain.NewBookmark, now time.Time) domain.Bookmark {
	return domain.Bookmark{
		ID:        NewID(),
		OwnerID:   rec.OwnerID,
		Title:     rec.Title,
		URL:       rec.URL,
		CreatedAt: now.UTC().Truncate(time.Microsecond),
	}
}

// NewID returns a random bookmark identifier.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id looks like something NewID produced. Backends
// use it to short-circuit deletes of garbage ids as zero-row deletes.
func ValidID(id string) bool {
	if strings.TrimSpace(id) == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
