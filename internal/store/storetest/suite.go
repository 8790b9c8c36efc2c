package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/store"
)

const (
	alice domain.UserID = "user-alice"
	bob   domain.UserID = "user-bob"
)

// SuiteBase defines a re-usable set of repository tests that can be
// executed against any type that implements store.Repository.
type SuiteBase struct {
	repo store.Repository
}

// SetRepository configures the test-suite to run all tests against r.
func (s *SuiteBase) SetRepository(r store.Repository) {
	s.repo = r
}

func (s *SuiteBase) insert(t *testing.T, owner domain.UserID, title, url string) domain.Bookmark {
	t.Helper()
	b, err := s.repo.Insert(context.Background(), owner, domain.NewBookmark{Title: title, URL: url, OwnerID: owner})
	require.NoError(t, err)
	return b
}

// TestInsertAssignsIdentity verifies that storage assigns id and createdAt.
func (s *SuiteBase) TestInsertAssignsIdentity(t *testing.T) {
	before := time.Now().Add(-time.Second)
	b := s.insert(t, alice, "GitHub", "https://github.com")

	assert.NotEmpty(t, b.ID, "expected storage to assign an id")
	_, err := uuid.Parse(b.ID)
	assert.NoError(t, err, "expected a uuid id")
	assert.False(t, b.CreatedAt.IsZero(), "expected storage to assign createdAt")
	assert.True(t, b.CreatedAt.After(before), "createdAt should be the insertion time")
	assert.Equal(t, alice, b.OwnerID)
	assert.Equal(t, "GitHub", b.Title)
	assert.Equal(t, "https://github.com", b.URL)
}

// TestInsertForeignOwnerRejected verifies that a caller cannot create rows
// for someone else.
func (s *SuiteBase) TestInsertForeignOwnerRejected(t *testing.T) {
	_, err := s.repo.Insert(context.Background(), alice, domain.NewBookmark{
		Title:   "Sneaky",
		URL:     "https://example.com",
		OwnerID: bob,
	})
	require.Error(t, err)
	assert.True(t, domain.IsStorageError(err), "expected a StorageError, got %v", err)
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	list, err := s.repo.List(context.Background(), bob)
	require.NoError(t, err)
	assert.Empty(t, list, "rejected insert must not be stored")
}

// TestInsertWithoutCallerRejected verifies that anonymous inserts fail.
func (s *SuiteBase) TestInsertWithoutCallerRejected(t *testing.T) {
	_, err := s.repo.Insert(context.Background(), "", domain.NewBookmark{Title: "x", URL: "https://x.dev"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrForbidden))
}

// TestListIsOwnerScoped verifies that owners never see each other's rows.
func (s *SuiteBase) TestListIsOwnerScoped(t *testing.T) {
	a1 := s.insert(t, alice, "A1", "https://a1.example.com")
	a2 := s.insert(t, alice, "A2", "https://a2.example.com")
	b1 := s.insert(t, bob, "B1", "https://b1.example.com")

	aliceList, err := s.repo.List(context.Background(), alice)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a1.ID, a2.ID}, ids(aliceList))
	for _, b := range aliceList {
		assert.Equal(t, alice, b.OwnerID)
	}

	bobList, err := s.repo.List(context.Background(), bob)
	require.NoError(t, err)
	assert.Equal(t, []string{b1.ID}, ids(bobList))
}

// TestListOrdering verifies newest-first ordering.
func (s *SuiteBase) TestListOrdering(t *testing.T) {
	for i := 0; i < 5; i++ {
		s.insert(t, alice, "bookmark", "https://example.com")
		time.Sleep(2 * time.Millisecond)
	}

	list, err := s.repo.List(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, list, 5)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i-1].CreatedAt.Before(list[i].CreatedAt),
			"position %d is older than position %d", i-1, i)
	}
}

// TestListEmpty verifies that an unknown owner gets an empty, non-nil list.
func (s *SuiteBase) TestListEmpty(t *testing.T) {
	list, err := s.repo.List(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

// TestDeleteOwnRow verifies delete and idempotent re-delete.
func (s *SuiteBase) TestDeleteOwnRow(t *testing.T) {
	b := s.insert(t, alice, "GitHub", "https://github.com")

	n, err := s.repo.DeleteByID(context.Background(), alice, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.repo.DeleteByID(context.Background(), alice, b.ID)
	require.NoError(t, err, "second delete must be a no-op success")
	assert.Equal(t, int64(0), n)

	list, err := s.repo.List(context.Background(), alice)
	require.NoError(t, err)
	assert.Empty(t, list)
}

// TestDeleteForeignRowAffectsNothing verifies that a caller cannot delete
// another owner's row, and that doing so is not an error.
func (s *SuiteBase) TestDeleteForeignRowAffectsNothing(t *testing.T) {
	b := s.insert(t, bob, "Bob's", "https://bob.example.com")

	n, err := s.repo.DeleteByID(context.Background(), alice, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	list, err := s.repo.List(context.Background(), bob)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids(list))
}

// TestDeleteUnknownID verifies that unknown ids are zero-row deletes.
func (s *SuiteBase) TestDeleteUnknownID(t *testing.T) {
	n, err := s.repo.DeleteByID(context.Background(), alice, uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

// TestConcurrentInserts verifies that parallel writers do not lose rows.
func (s *SuiteBase) TestConcurrentInserts(t *testing.T) {
	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.repo.Insert(context.Background(), alice, domain.NewBookmark{
				Title: "concurrent", URL: "https://example.com", OwnerID: alice,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	list, err := s.repo.List(context.Background(), alice)
	require.NoError(t, err)
	assert.Len(t, list, workers)
}

func ids(bookmarks []domain.Bookmark) []string {
	out := make([]string, len(bookmarks))
	for i, b := range bookmarks {
		out[i] = b.ID
	}
	return out
}
