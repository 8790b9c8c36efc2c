// Package bookmarks keeps one session's view of its bookmarks in sync with
// storage.
//
// A Syncer holds the cached list, exposes add and delete, and refreshes the
// whole list whenever the change feed reports a change for the user. It
// never patches the list from event payloads: every change ends in a full
// read, so the cache always converges to what storage holds.
package bookmarks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/feed"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/store"
)

// Identity resolves the current user. No user is ("", false, nil).
type Identity interface {
	CurrentUser(ctx context.Context) (domain.UserID, bool, error)
}

// Storage is owner-scoped by the provider: the Syncer never passes or
// filters by owner for list and delete.
type Storage interface {
	List(ctx context.Context) ([]domain.Bookmark, error)
	Insert(ctx context.Context, rec domain.NewBookmark) (domain.Bookmark, error)
	DeleteByID(ctx context.Context, id string) error
}

// ChangeFeed registers change callbacks.
type ChangeFeed interface {
	Subscribe(ctx context.Context, f feed.Filter, onChange func()) (feed.Subscription, error)
}

// ErrClosed is returned by operations on a closed Syncer.
var ErrClosed = errors.New("bookmark syncer closed")

// DefaultRefreshTimeout bounds refreshes triggered by the change feed.
const DefaultRefreshTimeout = 10 * time.Second

// Syncer is the per-session bookmark cache.
type Syncer struct {
	identity Identity
	storage  Storage
	changes  ChangeFeed
	notifier Notifier
	logger   logger.Logger
	timeout  time.Duration

	mu        sync.Mutex
	items     []domain.Bookmark
	inflight  int
	lastError string
	phase     Phase
	version   uint64
	issued    uint64 // generation of the most recently issued refresh
	started   bool
	closed    bool
	sub       feed.Subscription
	observers map[int]func(State)
	nextObs   int

	trigger chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option customises a Syncer.
type Option func(*Syncer)

// WithNotifier routes success and failure notifications to n.
func WithNotifier(n Notifier) Option {
	return func(s *Syncer) { s.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Syncer) { s.logger = l }
}

// WithRefreshTimeout bounds feed-triggered refreshes.
func WithRefreshTimeout(d time.Duration) Option {
	return func(s *Syncer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New builds a Syncer in the Uninitialized phase. Call Start to mount it.
func New(identity Identity, storage Storage, changes ChangeFeed, opts ...Option) *Syncer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Syncer{
		identity:  identity,
		storage:   storage,
		changes:   changes,
		notifier:  NopNotifier{},
		logger:    logger.Nop(),
		timeout:   DefaultRefreshTimeout,
		items:     []domain.Bookmark{},
		phase:     PhaseUninitialized,
		observers: make(map[int]func(State)),
		trigger:   make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current state. Items is a copy.
func (s *Syncer) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Syncer) snapshotLocked() State {
	items := make([]domain.Bookmark, len(s.items))
	copy(items, s.items)
	return State{
		Items:     items,
		Loading:   s.inflight > 0,
		LastError: s.lastError,
		Phase:     s.phase,
		Version:   s.version,
	}
}

// OnChange registers fn to receive every new state. Observers run on the
// goroutine that changed the state and must not call Close. The returned
// func unregisters fn.
func (s *Syncer) OnChange(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// changedLocked bumps the version and returns what to publish once the
// lock is released.
func (s *Syncer) changedLocked() (State, []func(State)) {
	s.version++
	obs := make([]func(State), 0, len(s.observers))
	for _, fn := range s.observers {
		obs = append(obs, fn)
	}
	return s.snapshotLocked(), obs
}

func publish(st State, obs []func(State)) {
	for _, fn := range obs {
		fn(st)
	}
}

// Refresh re-reads the current user's bookmarks. With nobody signed in the
// list becomes empty and Refresh succeeds. On failure the list is kept,
// LastError is set and a failure notification is sent.
//
// Overlapping refreshes are sequenced: only the most recently issued one
// may write its result.
func (s *Syncer) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.issued++
	gen := s.issued
	s.inflight++
	s.phase = PhaseLoading
	st, obs := s.changedLocked()
	s.mu.Unlock()
	publish(st, obs)

	items, err := s.load(ctx)
	s.finish(gen, items, err)
	return err
}

func (s *Syncer) load(ctx context.Context) ([]domain.Bookmark, error) {
	_, ok, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve current user: %w", err)
	}
	if !ok {
		return []domain.Bookmark{}, nil
	}

	items, err := s.storage.List(ctx)
	if err != nil {
		return nil, domain.NewStorageError("list", err)
	}
	if items == nil {
		items = []domain.Bookmark{}
	}
	return items, nil
}

func (s *Syncer) finish(gen uint64, items []domain.Bookmark, err error) {
	s.mu.Lock()
	s.inflight--
	if s.closed {
		s.mu.Unlock()
		return
	}

	stale := gen != s.issued
	if !stale {
		if err == nil {
			s.items = items
			s.lastError = ""
			s.phase = PhaseReady
		} else {
			s.lastError = "Failed to load bookmarks: " + err.Error()
			s.phase = PhaseErrored
		}
	}
	st, obs := s.changedLocked()
	s.mu.Unlock()
	publish(st, obs)

	switch {
	case stale:
		s.logger.Debug("discarded superseded refresh", logger.Uint64("generation", gen))
	case err != nil:
		s.logger.Warn("bookmark refresh failed", logger.Error(err))
		s.notifier.Notify(Failure("Failed to load bookmarks"))
	default:
		s.logger.Debug("bookmarks refreshed", logger.Int("count", len(items)))
	}
}

// AddBookmark inserts a bookmark for the current user. The list is not
// touched: the insert comes back through the change feed as a refresh.
// Input is trusted to be validated by the caller.
func (s *Syncer) AddBookmark(ctx context.Context, title, url string) (domain.Bookmark, error) {
	if s.isClosed() {
		return domain.Bookmark{}, ErrClosed
	}

	uid, ok, err := s.identity.CurrentUser(ctx)
	if err != nil {
		err = fmt.Errorf("failed to resolve current user: %w", err)
		s.logger.Warn("add bookmark failed", logger.Error(err))
		s.notifier.Notify(Failure("Failed to add bookmark"))
		return domain.Bookmark{}, err
	}
	if !ok {
		s.notifier.Notify(Failure("You must be signed in to add bookmarks"))
		return domain.Bookmark{}, domain.ErrNotAuthenticated
	}

	b, err := s.storage.Insert(ctx, domain.NewBookmark{Title: title, URL: url, OwnerID: uid})
	if err != nil {
		err = domain.NewStorageError("insert", err)
		s.logger.Warn("add bookmark failed", logger.String("user_id", string(uid)), logger.Error(err))
		s.notifier.Notify(Failure("Failed to add bookmark"))
		return domain.Bookmark{}, err
	}

	s.logger.Info("bookmark added", logger.String("user_id", string(uid)), logger.String("id", b.ID))
	s.notifier.Notify(Success("Bookmark added"))
	return b, nil
}

// DeleteBookmark removes id from the list at once, then from storage. If
// storage fails the list is rebuilt with a full Refresh rather than by
// re-inserting the removed entry.
func (s *Syncer) DeleteBookmark(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	removed := s.removeLocked(id)
	var (
		st  State
		obs []func(State)
	)
	if removed {
		st, obs = s.changedLocked()
	}
	s.mu.Unlock()
	publish(st, obs)

	if err := s.storage.DeleteByID(ctx, id); err != nil {
		err = domain.NewStorageError("delete", err)
		s.logger.Warn("delete bookmark failed, reconciling", logger.String("id", id), logger.Error(err))
		s.notifier.Notify(Failure("Failed to delete bookmark"))
		if rerr := s.Refresh(ctx); rerr != nil && !errors.Is(rerr, ErrClosed) {
			s.logger.Warn("reconciling refresh failed", logger.Error(rerr))
		}
		return err
	}

	s.notifier.Notify(Success("Bookmark deleted"))
	return nil
}

func (s *Syncer) removeLocked(id string) bool {
	for i, b := range s.items {
		if b.ID == id {
			next := make([]domain.Bookmark, 0, len(s.items)-1)
			next = append(next, s.items[:i]...)
			next = append(next, s.items[i+1:]...)
			s.items = next
			return true
		}
	}
	return false
}

// Start mounts the Syncer: an initial Refresh, then, if someone is signed
// in, a subscription to that user's bookmark changes. A failed initial
// refresh is reported through state and notifications, not the returned
// error; Start only fails when the subscription cannot be set up.
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return errors.New("bookmark syncer already started")
	}
	s.started = true
	s.mu.Unlock()

	go s.worker()

	_ = s.Refresh(ctx)

	uid, ok, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve current user: %w", err)
	}
	if !ok {
		s.logger.Debug("no current user, live updates disabled")
		return nil
	}

	sub, err := s.changes.Subscribe(ctx, feed.Filter{Table: store.TableBookmarks, OwnerID: uid}, s.enqueueRefresh)
	if err != nil {
		return fmt.Errorf("failed to subscribe to bookmark changes: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Release()
		return ErrClosed
	}
	s.sub = sub
	s.mu.Unlock()

	s.logger.Debug("live updates enabled", logger.String("user_id", string(uid)))
	return nil
}

// enqueueRefresh is the change feed callback. It only signals the worker;
// a burst of events collapses into one pending refresh.
func (s *Syncer) enqueueRefresh() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Syncer) worker() {
	defer close(s.done)
	for {
		select {
		case <-s.trigger:
			ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
			_ = s.Refresh(ctx)
			cancel()
		case <-s.ctx.Done():
			return
		}
	}
}

// Close releases the subscription and stops the worker. Results of
// refreshes still in flight are dropped. Safe to call more than once.
func (s *Syncer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.phase = PhaseClosed
	sub := s.sub
	s.sub = nil
	started := s.started
	s.observers = make(map[int]func(State))
	s.mu.Unlock()

	if sub != nil {
		sub.Release()
	}
	s.cancel()
	if started {
		<-s.done
	}
}

func (s *Syncer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
