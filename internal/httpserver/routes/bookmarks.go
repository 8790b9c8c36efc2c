package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/mw"
)

func init() { Register(registerBookmarks) }

func registerBookmarks(r chi.Router, d deps.Deps) {
	r.Route("/api/bookmarks", func(r chi.Router) {
		r.Use(
			mw.EnforceHost(d.AllowedHosts, d.Logger),
			mw.RequireUser(d.Auth, d.Logger),
			middleware.Timeout(10*time.Second),
		)
		r.Get("/", handlers.ListBookmarks(d))
		r.Post("/", handlers.AddBookmark(d))
		r.Post("/import", handlers.ImportBookmarks(d))
		r.Delete("/{id}", handlers.DeleteBookmark(d))
	})
}
