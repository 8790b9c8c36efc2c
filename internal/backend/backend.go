// Package backend binds the identity provider, the owner-scoped repository
// and the change feed behind one explicitly constructed client per session.
//
// The client is the only path from application code to storage. It resolves
// the caller from the session on every call, so storage scoping never
// depends on anything the caller passes in.
package backend

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/feed"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/store"
)

// Resolver maps a session token to a user. *auth.Service implements it.
type Resolver interface {
	Resolve(ctx context.Context, token string) (domain.UserID, bool, error)
}

// Platform is the process-wide backend. Build it once, hand out Clients.
type Platform struct {
	identity Resolver
	repo     store.Repository
	feed     feed.Feed
	logger   logger.Logger
}

// New wires a platform from its providers.
func New(identity Resolver, repo store.Repository, changes feed.Feed, log logger.Logger) *Platform {
	return &Platform{
		identity: identity,
		repo:     repo,
		feed:     changes,
		logger:   log,
	}
}

// Client returns a client bound to a session token. An empty token gives
// an anonymous client.
func (p *Platform) Client(token string) *Client {
	return &Client{platform: p, token: token}
}

// Client is a session-bound view of the platform.
type Client struct {
	platform *Platform
	token    string
}

// CurrentUser resolves the bound session. No session is ("", false, nil).
func (c *Client) CurrentUser(ctx context.Context) (domain.UserID, bool, error) {
	return c.platform.identity.Resolve(ctx, c.token)
}

// caller resolves the session for a storage call. Storage calls without a
// session are authorization failures, reported as StorageError.
func (c *Client) caller(ctx context.Context, op string) (domain.UserID, error) {
	uid, ok, err := c.CurrentUser(ctx)
	if err != nil {
		return "", domain.NewStorageError(op, fmt.Errorf("failed to resolve session: %w", err))
	}
	if !ok {
		return "", domain.NewStorageError(op, domain.ErrForbidden)
	}
	return uid, nil
}

// List returns the caller's bookmarks, newest first.
func (c *Client) List(ctx context.Context) ([]domain.Bookmark, error) {
	uid, err := c.caller(ctx, "list")
	if err != nil {
		return nil, err
	}
	bookmarks, err := c.platform.repo.List(ctx, uid)
	if err != nil {
		return nil, domain.NewStorageError("list", err)
	}
	return bookmarks, nil
}

// Insert stores rec. The repository rejects rec.OwnerID other than the
// caller; the client does not pre-check it.
func (c *Client) Insert(ctx context.Context, rec domain.NewBookmark) (domain.Bookmark, error) {
	uid, err := c.caller(ctx, "insert")
	if err != nil {
		return domain.Bookmark{}, err
	}
	b, err := c.platform.repo.Insert(ctx, uid, rec)
	if err != nil {
		return domain.Bookmark{}, domain.NewStorageError("insert", err)
	}
	c.publish(ctx, feed.Event{Table: store.TableBookmarks, Type: feed.Insert, OwnerID: b.OwnerID, ID: b.ID})
	return b, nil
}

// DeleteByID removes a bookmark the caller owns. Zero rows is success.
func (c *Client) DeleteByID(ctx context.Context, id string) error {
	uid, err := c.caller(ctx, "delete")
	if err != nil {
		return err
	}
	n, err := c.platform.repo.DeleteByID(ctx, uid, id)
	if err != nil {
		return domain.NewStorageError("delete", err)
	}
	if n > 0 {
		c.publish(ctx, feed.Event{Table: store.TableBookmarks, Type: feed.Delete, OwnerID: uid, ID: id})
	}
	return nil
}

// Subscribe registers onChange for the filter. Subscribing to another
// user's rows is refused.
func (c *Client) Subscribe(ctx context.Context, f feed.Filter, onChange func()) (feed.Subscription, error) {
	uid, ok, err := c.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	if !ok || f.OwnerID != uid {
		return nil, domain.ErrForbidden
	}
	return c.platform.feed.Subscribe(ctx, f, onChange)
}

// publish is best effort: the write already happened, a lost event only
// delays other sessions until their next refresh.
func (c *Client) publish(ctx context.Context, ev feed.Event) {
	if err := c.platform.feed.Publish(ctx, ev); err != nil {
		c.platform.logger.Warn("failed to publish change event",
			logger.String("table", ev.Table),
			logger.String("type", string(ev.Type)),
			logger.String("owner_id", string(ev.OwnerID)),
			logger.Error(err))
	}
}
