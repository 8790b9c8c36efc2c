package domain

import (
	"sort"
	"time"
)

// UserID identifies an authenticated user. The zero value means "nobody".
type UserID string

// Bookmark is one saved link belonging to exactly one user.
type Bookmark struct {
	// ─────────────────────────────
	// Identity (immutable, storage assigned)
	// ─────────────────────────────

	// ID is generated by the storage layer on creation.
	ID string `json:"id"`

	// OwnerID is the user who created the record.
	// Storage refuses any write where it differs from the caller.
	OwnerID UserID `json:"owner_id"`

	// ─────────────────────────────
	// User supplied
	// ─────────────────────────────

	// Title is the display string. Never empty.
	Title string `json:"title"`

	// URL is an absolute http(s) URL.
	URL string `json:"url"`

	// ─────────────────────────────
	// Metadata
	// ─────────────────────────────

	// CreatedAt is assigned at insertion and is the only sort key.
	CreatedAt time.Time `json:"created_at"`
}

// NewBookmark is the insert payload sent to storage.
type NewBookmark struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	OwnerID UserID `json:"owner_id"`
}

// SortNewestFirst orders bookmarks by CreatedAt descending. Equal timestamps
// fall back to ID so the order is stable across reads.
func SortNewestFirst(bookmarks []Bookmark) {
	sort.SliceStable(bookmarks, func(i, j int) bool {
		a, b := bookmarks[i], bookmarks[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}
