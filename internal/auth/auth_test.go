package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/MrSnakeDoc/shelf/internal/logger"
)

type storeFactory struct {
	name string
	new  func(t *testing.T) (Store, *miniredis.Miniredis)
}

var factories = []storeFactory{
	{
		name: "memory",
		new:  func(t *testing.T) (Store, *miniredis.Miniredis) { return NewMemoryStore(), nil },
	},
	{
		name: "redis",
		new: func(t *testing.T) (Store, *miniredis.Miniredis) {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return NewRedisStore(client), mr
		},
	},
}

func newService(t *testing.T, store Store, ttl time.Duration) *Service {
	t.Helper()
	return NewService(store, ttl, logger.Nop()).WithHashCost(bcrypt.MinCost)
}

func TestSignupLoginResolveLogout(t *testing.T) {
	for _, f := range factories {
		t.Run(f.name, func(t *testing.T) {
			store, _ := f.new(t)
			svc := newService(t, store, time.Hour)
			ctx := context.Background()

			uid, err := svc.Signup(ctx, "  Alice@Example.com ", "correct horse")
			require.NoError(t, err)
			require.NotEmpty(t, uid)

			sess, err := svc.Login(ctx, "alice@example.com", "correct horse")
			require.NoError(t, err)
			assert.Equal(t, uid, sess.UserID)
			assert.Len(t, sess.Token, 64)

			got, ok, err := svc.Resolve(ctx, sess.Token)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, uid, got)

			require.NoError(t, svc.Logout(ctx, sess.Token))

			_, ok, err = svc.Resolve(ctx, sess.Token)
			require.NoError(t, err)
			assert.False(t, ok, "session must be gone after logout")
		})
	}
}

func TestSignupRejectsDuplicatesAndBadInput(t *testing.T) {
	for _, f := range factories {
		t.Run(f.name, func(t *testing.T) {
			store, _ := f.new(t)
			svc := newService(t, store, time.Hour)
			ctx := context.Background()

			_, err := svc.Signup(ctx, "bob@example.com", "password1")
			require.NoError(t, err)

			_, err = svc.Signup(ctx, "BOB@example.com", "password2")
			assert.ErrorIs(t, err, ErrEmailTaken)

			_, err = svc.Signup(ctx, "not an email", "password1")
			assert.ErrorIs(t, err, ErrInvalidEmail)

			_, err = svc.Signup(ctx, "carol@example.com", "short")
			assert.ErrorIs(t, err, ErrWeakPassword)
		})
	}
}

func TestLoginFailures(t *testing.T) {
	for _, f := range factories {
		t.Run(f.name, func(t *testing.T) {
			store, _ := f.new(t)
			svc := newService(t, store, time.Hour)
			ctx := context.Background()

			_, err := svc.Signup(ctx, "dave@example.com", "hunter2hunter2")
			require.NoError(t, err)

			_, err = svc.Login(ctx, "dave@example.com", "wrong password")
			assert.ErrorIs(t, err, ErrInvalidCredentials)

			_, err = svc.Login(ctx, "nobody@example.com", "hunter2hunter2")
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestResolveUnknownTokenIsNotAnError(t *testing.T) {
	for _, f := range factories {
		t.Run(f.name, func(t *testing.T) {
			store, _ := f.new(t)
			svc := newService(t, store, time.Hour)

			uid, ok, err := svc.Resolve(context.Background(), "does-not-exist")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Empty(t, uid)

			_, ok, err = svc.Resolve(context.Background(), "")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestRedisSessionExpires(t *testing.T) {
	store, mr := factories[1].new(t)
	svc := newService(t, store, time.Minute)
	ctx := context.Background()

	_, err := svc.Signup(ctx, "erin@example.com", "longenough")
	require.NoError(t, err)
	sess, err := svc.Login(ctx, "erin@example.com", "longenough")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, ok, err := svc.Resolve(ctx, sess.Token)
	require.NoError(t, err)
	assert.False(t, ok, "expired session must resolve to nobody")
}

func TestMemorySessionExpires(t *testing.T) {
	store := NewMemoryStore()
	svc := newService(t, store, time.Minute)
	ctx := context.Background()

	_, err := svc.Signup(ctx, "frank@example.com", "longenough")
	require.NoError(t, err)
	sess, err := svc.Login(ctx, "frank@example.com", "longenough")
	require.NoError(t, err)

	store.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, ok, err := svc.Resolve(ctx, sess.Token)
	require.NoError(t, err)
	assert.False(t, ok)
}
