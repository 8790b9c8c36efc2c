package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrSnakeDoc/shelf/internal/bookmarks"
	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/mw"
	"github.com/MrSnakeDoc/shelf/internal/logger"
)

const (
	liveWriteTimeout  = 5 * time.Second
	liveMaxQueued     = 32
	liveReadLimit     = 16 << 10
	frameState        = "state"
	frameNotification = "notification"
	frameError        = "error"
)

// liveFrame is a server-to-client message.
type liveFrame struct {
	Type         string                  `json:"type"`
	State        *bookmarks.State        `json:"state,omitempty"`
	Notification *bookmarks.Notification `json:"notification,omitempty"`
	Error        string                  `json:"error,omitempty"`
	Field        string                  `json:"field,omitempty"`
}

// liveRequest is a client-to-server message.
type liveRequest struct {
	Op    string `json:"op"` // add | delete | refresh
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
	ID    string `json:"id,omitempty"`
}

// outbox decouples Syncer callbacks from the socket. States collapse to the
// newest version; other frames queue up to liveMaxQueued.
type outbox struct {
	mu     sync.Mutex
	state  *bookmarks.State
	sent   uint64
	frames []liveFrame
	wake   chan struct{}
	log    logger.Logger
}

func newOutbox(log logger.Logger) *outbox {
	return &outbox{wake: make(chan struct{}, 1), log: log}
}

func (o *outbox) pushState(st bookmarks.State) {
	o.mu.Lock()
	if st.Version > o.sent && (o.state == nil || st.Version > o.state.Version) {
		o.state = &st
	}
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) push(f liveFrame) {
	o.mu.Lock()
	if len(o.frames) >= liveMaxQueued {
		o.frames = o.frames[1:]
		o.log.Warn("live outbox full, dropping oldest frame")
	}
	o.frames = append(o.frames, f)
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *outbox) drain() []liveFrame {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]liveFrame, 0, len(o.frames)+1)
	if o.state != nil {
		out = append(out, liveFrame{Type: frameState, State: o.state})
		o.sent = o.state.Version
		o.state = nil
	}
	out = append(out, o.frames...)
	o.frames = nil
	return out
}

func (o *outbox) run(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.wake:
			for _, f := range o.drain() {
				wctx, cancel := context.WithTimeout(ctx, liveWriteTimeout)
				err := wsjson.Write(wctx, conn, f)
				cancel()
				if err != nil {
					return err
				}
			}
		}
	}
}

// Live serves one websocket per browser tab. Each connection mounts its own
// Syncer and tears it down when the socket closes.
func Live(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: d.OriginPatterns,
		})
		if err != nil {
			d.Logger.Warn("websocket upgrade failed", logger.Error(err))
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(liveReadLimit)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		log := d.Logger.With(logger.String("remote_ip", r.RemoteAddr))
		out := newOutbox(log)

		client := d.Platform.Client(mw.Token(r.Context()))
		s := bookmarks.New(client, client, client,
			bookmarks.WithLogger(log),
			bookmarks.WithRefreshTimeout(d.RefreshTimeout),
			bookmarks.WithNotifier(bookmarks.NotifierFunc(func(n bookmarks.Notification) {
				out.push(liveFrame{Type: frameNotification, Notification: &n})
			})),
		)
		stop := s.OnChange(out.pushState)

		writerDone := make(chan error, 1)
		go func() { writerDone <- out.run(ctx, conn) }()

		if err := s.Start(ctx); err != nil {
			log.Warn("live session started without updates", logger.Error(err))
			out.push(liveFrame{Type: frameError, Error: "live updates unavailable"})
		}
		log.Debug("live session opened")

		readErr := readLoop(ctx, conn, s, out, log)

		stop()
		s.Close()
		cancel()
		writeErr := <-writerDone

		switch {
		case websocket.CloseStatus(readErr) == websocket.StatusNormalClosure,
			websocket.CloseStatus(readErr) == websocket.StatusGoingAway:
			conn.Close(websocket.StatusNormalClosure, "")
		case writeErr != nil && !errors.Is(writeErr, context.Canceled):
			log.Debug("live writer stopped", logger.Error(writeErr))
		}
		log.Debug("live session closed")
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, s *bookmarks.Syncer, out *outbox, log logger.Logger) error {
	for {
		var req liveRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			return err
		}

		var err error
		switch req.Op {
		case "add":
			title, url, verr := domain.ValidateInput(req.Title, req.URL)
			if verr != nil {
				var ve *domain.ValidationError
				if errors.As(verr, &ve) {
					out.push(liveFrame{Type: frameError, Error: ve.Msg, Field: ve.Field})
				}
				continue
			}
			_, err = s.AddBookmark(ctx, title, url)
		case "delete":
			err = s.DeleteBookmark(ctx, req.ID)
		case "refresh":
			err = s.Refresh(ctx)
		default:
			out.push(liveFrame{Type: frameError, Error: "unknown op " + req.Op})
			continue
		}

		// Failures already reached the client as notifications.
		if err != nil {
			log.Debug("live op failed", logger.String("op", req.Op), logger.Error(err))
		}
	}
}
