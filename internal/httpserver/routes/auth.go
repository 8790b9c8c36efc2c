package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/mw"
)

func init() { Register(registerAuth) }

func registerAuth(r chi.Router, d deps.Deps) {
	perMin := 1
	if d.AuthRateRefill > 0 && d.AuthRateRefill < time.Minute {
		perMin = int(time.Minute / d.AuthRateRefill)
	}
	limit := mw.RateLimit(mw.RateLimitConfig{
		Burst:             d.AuthRateBurst,
		RefillPerIPPerMin: perMin,
		MaxEntries:        10000,
		TrustProxy:        d.TrustProxy,
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(mw.EnforceHost(d.AllowedHosts, d.Logger), middleware.Timeout(5*time.Second))
		r.With(limit).Post("/signup", handlers.Signup(d))
		r.With(limit).Post("/login", handlers.Login(d))
		r.Post("/logout", handlers.Logout(d))
	})
}
