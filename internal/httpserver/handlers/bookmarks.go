package handlers

import (
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/shelf/internal/bookmarks"
	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/mw"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/sources/homepage"
	"github.com/MrSnakeDoc/shelf/internal/store"
)

type bookmarkInput struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type listResponse struct {
	Items []domain.Bookmark `json:"items"`
}

type addResponse struct {
	Bookmark     domain.Bookmark         `json:"bookmark"`
	Notification *bookmarks.Notification `json:"notification,omitempty"`
}

// lastNotification keeps the most recent notification of a one-shot
// request so it can travel back in the response body.
type lastNotification struct {
	mu sync.Mutex
	n  *bookmarks.Notification
}

func (l *lastNotification) Notify(n bookmarks.Notification) {
	l.mu.Lock()
	l.n = &n
	l.mu.Unlock()
}

func (l *lastNotification) get() *bookmarks.Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

// requestSyncer builds a short-lived Syncer bound to the caller's session.
func requestSyncer(d deps.Deps, r *http.Request, opts ...bookmarks.Option) *bookmarks.Syncer {
	client := d.Platform.Client(mw.Token(r.Context()))
	log := d.Logger
	if uid, ok := mw.User(r.Context()); ok {
		log = log.With(logger.String("user_id", string(uid)))
	}
	opts = append([]bookmarks.Option{bookmarks.WithLogger(log)}, opts...)
	return bookmarks.New(client, client, client, opts...)
}

func ListBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := requestSyncer(d, r)
		defer s.Close()

		if err := s.Refresh(r.Context()); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse{Items: s.Snapshot().Items})
	}
}

func AddBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in bookmarkInput
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		// Input is validated here; the sync core trusts what it is given.
		title, url, err := domain.ValidateInput(in.Title, in.URL)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		notes := &lastNotification{}
		s := requestSyncer(d, r, bookmarks.WithNotifier(notes))
		defer s.Close()

		b, err := s.AddBookmark(r.Context(), title, url)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, addResponse{Bookmark: b, Notification: notes.get()})
	}
}

func DeleteBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !store.ValidID(id) {
			writeError(w, http.StatusBadRequest, "invalid bookmark id")
			return
		}

		s := requestSyncer(d, r)
		defer s.Close()

		if err := s.DeleteBookmark(r.Context(), id); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ImportBookmarks adds every valid link of an uploaded homepage document.
// ?kind=services accepts services.yaml; the default is bookmarks.yaml.
func ImportBookmarks(d deps.Deps) http.HandlerFunc {
	limit := d.ImportMaxBytes
	if limit <= 0 {
		limit = homepage.MaxDocumentSize
	}

	return func(w http.ResponseWriter, r *http.Request) {
		kind, ok := homepage.ParseKind(r.URL.Query().Get("kind"))
		if !ok {
			writeError(w, http.StatusBadRequest, "kind must be bookmarks or services")
			return
		}

		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "document too large")
				return
			}
			writeError(w, http.StatusBadRequest, "failed to read body")
			return
		}

		entries, err := homepage.Parse(kind, data)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		s := requestSyncer(d, r)
		defer s.Close()

		report, err := homepage.Import(r.Context(), s, entries, d.Logger)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}
