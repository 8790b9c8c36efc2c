package backend

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/MrSnakeDoc/shelf/internal/auth"
	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/feed"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/store"
	"github.com/MrSnakeDoc/shelf/internal/store/memory"
)

type fixture struct {
	platform *Platform
	hub      *feed.Hub
	repo     *memory.Store
	auth     *auth.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	authSvc := auth.NewService(auth.NewMemoryStore(), time.Hour, logger.Nop()).WithHashCost(bcrypt.MinCost)
	repo := memory.NewStore()
	hub := feed.NewHub()
	return &fixture{
		platform: New(authSvc, repo, hub, logger.Nop()),
		hub:      hub,
		repo:     repo,
		auth:     authSvc,
	}
}

func (f *fixture) login(t *testing.T, email string) (domain.UserID, *Client) {
	t.Helper()
	ctx := context.Background()
	uid, err := f.auth.Signup(ctx, email, "password123")
	require.NoError(t, err)
	sess, err := f.auth.Login(ctx, email, "password123")
	require.NoError(t, err)
	return uid, f.platform.Client(sess.Token)
}

func TestAnonymousClient(t *testing.T) {
	f := newFixture(t)
	c := f.platform.Client("")
	ctx := context.Background()

	uid, ok, err := c.CurrentUser(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, uid)

	_, err = c.List(ctx)
	assert.True(t, domain.IsStorageError(err))
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = c.Insert(ctx, domain.NewBookmark{Title: "x", URL: "https://x.dev"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	err = c.DeleteByID(ctx, "anything")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestInsertScopesAndPublishes(t *testing.T) {
	f := newFixture(t)
	alice, c := f.login(t, "alice@example.com")
	ctx := context.Background()

	var events atomic.Int32
	sub, err := c.Subscribe(ctx, feed.Filter{Table: store.TableBookmarks, OwnerID: alice}, func() { events.Add(1) })
	require.NoError(t, err)
	defer sub.Release()

	b, err := c.Insert(ctx, domain.NewBookmark{Title: "GitHub", URL: "https://github.com", OwnerID: alice})
	require.NoError(t, err)
	assert.Equal(t, alice, b.OwnerID)
	assert.Equal(t, int32(1), events.Load())

	list, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)
}

func TestInsertForeignOwnerFails(t *testing.T) {
	f := newFixture(t)
	_, c := f.login(t, "alice@example.com")
	bob, _ := f.login(t, "bob@example.com")

	_, err := c.Insert(context.Background(), domain.NewBookmark{Title: "x", URL: "https://x.dev", OwnerID: bob})
	assert.True(t, domain.IsStorageError(err))
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, 0, f.repo.Count())
}

func TestDeleteIsOwnerScoped(t *testing.T) {
	f := newFixture(t)
	alice, aliceClient := f.login(t, "alice@example.com")
	bob, bobClient := f.login(t, "bob@example.com")
	ctx := context.Background()

	bobsBookmark, err := bobClient.Insert(ctx, domain.NewBookmark{Title: "B", URL: "https://b.dev", OwnerID: bob})
	require.NoError(t, err)

	var aliceEvents, bobEvents atomic.Int32
	subA, err := aliceClient.Subscribe(ctx, feed.Filter{Table: store.TableBookmarks, OwnerID: alice}, func() { aliceEvents.Add(1) })
	require.NoError(t, err)
	defer subA.Release()
	subB, err := bobClient.Subscribe(ctx, feed.Filter{Table: store.TableBookmarks, OwnerID: bob}, func() { bobEvents.Add(1) })
	require.NoError(t, err)
	defer subB.Release()

	// Alice deleting Bob's row affects zero rows and is not an error.
	require.NoError(t, aliceClient.DeleteByID(ctx, bobsBookmark.ID))
	assert.Equal(t, 1, f.repo.Count())
	assert.Zero(t, aliceEvents.Load())
	assert.Zero(t, bobEvents.Load(), "no rows changed, so no event")

	require.NoError(t, bobClient.DeleteByID(ctx, bobsBookmark.ID))
	assert.Equal(t, 0, f.repo.Count())
	assert.Equal(t, int32(1), bobEvents.Load())
}

func TestSubscribeOtherOwnerRefused(t *testing.T) {
	f := newFixture(t)
	_, c := f.login(t, "alice@example.com")
	bob, _ := f.login(t, "bob@example.com")

	_, err := c.Subscribe(context.Background(), feed.Filter{Table: store.TableBookmarks, OwnerID: bob}, func() {})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, 0, f.hub.Subscribers())
}

func TestLoggedOutClientLosesAccess(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.login(t, "alice@example.com")
	ctx := context.Background()

	sess, err := f.auth.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)
	c := f.platform.Client(sess.Token)

	_, err = c.Insert(ctx, domain.NewBookmark{Title: "x", URL: "https://x.dev", OwnerID: alice})
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(ctx, sess.Token))

	_, err = c.List(ctx)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
