package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
	"github.com/MrSnakeDoc/shelf/internal/logger"
)

const readyCheckTimeout = 2 * time.Second

var timeNow = time.Now

type componentStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type readyzResponse struct {
	Ready      bool                       `json:"ready"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// Readyz runs every readiness check concurrently and answers 503 if any
// fails.
func Readyz(d deps.Deps) http.HandlerFunc {
	names := make([]string, 0, len(d.ReadyChecks))
	for name := range d.ReadyChecks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()

		var (
			mu  sync.Mutex
			wg  sync.WaitGroup
			res = readyzResponse{Ready: true, Components: make(map[string]componentStatus, len(names))}
		)
		for _, name := range names {
			wg.Add(1)
			go func(name string, check deps.Check) {
				defer wg.Done()
				status := componentStatus{OK: true}
				if err := check(ctx); err != nil {
					d.Logger.Warn("readiness check failed", logger.String("component", name), logger.Error(err))
					status = componentStatus{OK: false, Error: err.Error()}
				}
				mu.Lock()
				res.Components[name] = status
				if !status.OK {
					res.Ready = false
				}
				mu.Unlock()
			}(name, d.ReadyChecks[name])
		}
		wg.Wait()

		code := http.StatusOK
		if !res.Ready {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, res)
	}
}
