package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/logger"
)

// KeyPrefixChanges prefixes every change channel.
const KeyPrefixChanges = "shelf:changes:"

// ChannelName returns the pub/sub channel for one table and owner.
func ChannelName(table string, owner domain.UserID) string {
	return KeyPrefixChanges + table + ":" + string(owner)
}

// RedisFeed carries change events over Redis pub/sub, so every process
// sharing the Redis instance sees every write.
type RedisFeed struct {
	client *redis.Client
	logger logger.Logger
}

// NewRedisFeed creates a feed on top of an existing client.
func NewRedisFeed(client *redis.Client, log logger.Logger) *RedisFeed {
	return &RedisFeed{client: client, logger: log}
}

// Publish sends ev to the owner's channel.
func (f *RedisFeed) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}
	if err := f.client.Publish(ctx, ChannelName(ev.Table, ev.OwnerID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

// Subscribe opens a dedicated pub/sub connection for the filter. It returns
// once Redis has confirmed the subscription, so no event published after
// Subscribe returns is missed.
func (f *RedisFeed) Subscribe(ctx context.Context, flt Filter, onChange func()) (Subscription, error) {
	if err := validate(flt, onChange); err != nil {
		return nil, err
	}

	channel := ChannelName(flt.Table, flt.OwnerID)
	ps := f.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	sub := &redisSubscription{ps: ps, done: make(chan struct{})}
	msgs := ps.Channel()

	go func() {
		defer close(sub.done)
		for msg := range msgs {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				f.logger.Warn("dropping malformed change event",
					logger.String("channel", msg.Channel),
					logger.Error(err))
				continue
			}
			if flt.Matches(ev) {
				onChange()
			}
		}
	}()

	f.logger.Debug("change feed subscribed", logger.String("channel", channel))
	return sub, nil
}

// Close is a no-op: the client is owned by the app.
func (f *RedisFeed) Close() error { return nil }

type redisSubscription struct {
	ps   *redis.PubSub
	once sync.Once
	done chan struct{}
}

// Release closes the pub/sub connection and waits for the delivery
// goroutine to exit, so no callback fires after Release returns.
func (s *redisSubscription) Release() {
	s.once.Do(func() {
		_ = s.ps.Close()
		<-s.done
	})
}
