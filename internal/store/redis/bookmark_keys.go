package redis

import "github.com/MrSnakeDoc/shelf/internal/domain"

const (
	// KeyPrefixBookmark is the prefix for bookmark value keys
	KeyPrefixBookmark = "shelf:bookmark:"
	// KeyPrefixOwnerBookmarks is the prefix for the per-owner sorted set
	KeyPrefixOwnerBookmarks = "shelf:bookmarks:owner:"
)

// BookmarkKey returns the Redis key holding one bookmark's JSON
func BookmarkKey(id string) string {
	return KeyPrefixBookmark + id
}

// OwnerBookmarksKey returns the sorted set of an owner's bookmark IDs,
// scored by creation time in microseconds
func OwnerBookmarksKey(owner domain.UserID) string {
	return KeyPrefixOwnerBookmarks + string(owner)
}
