package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/shelf/internal/domain"
)

const (
	// KeyPrefixUser is the prefix for account keys, indexed by email
	KeyPrefixUser = "shelf:user:"
	// KeyPrefixSession is the prefix for session keys, indexed by token
	KeyPrefixSession = "shelf:session:"
)

// UserKey returns the Redis key for an account
func UserKey(email string) string { return KeyPrefixUser + email }

// SessionKey returns the Redis key for a session token
func SessionKey(token string) string { return KeyPrefixSession + token }

// RedisStore keeps accounts as JSON values and sessions as expiring keys.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) CreateUser(ctx context.Context, u User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	// SET NX makes the email unique without a separate lock.
	ok, err := r.client.SetNX(ctx, UserKey(u.Email), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	if !ok {
		return ErrEmailTaken
	}
	return nil
}

func (r *RedisStore) UserByEmail(ctx context.Context, email string) (User, error) {
	data, err := r.client.Get(ctx, UserKey(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("failed to get user: %w", err)
	}

	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return User{}, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return u, nil
}

func (r *RedisStore) SaveSession(ctx context.Context, s Session, ttl time.Duration) error {
	if err := r.client.Set(ctx, SessionKey(s.Token), string(s.UserID), ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *RedisStore) SessionUser(ctx context.Context, token string) (domain.UserID, bool, error) {
	id, err := r.client.Get(ctx, SessionKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to resolve session: %w", err)
	}
	return domain.UserID(id), true, nil
}

func (r *RedisStore) DeleteSession(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, SessionKey(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
