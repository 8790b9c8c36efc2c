package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/auth"
	"github.com/MrSnakeDoc/shelf/internal/backend"
	"github.com/MrSnakeDoc/shelf/internal/logger"
)

// Check reports whether one dependency is usable. Used by /readyz.
type Check func(ctx context.Context) error

type Deps struct {
	Logger         logger.Logger
	StartTime      time.Time
	Version        string
	Commit         string
	BuildDate      string
	GoVersion      string
	TimeNow        func() time.Time  // for testing, defaults to time.Now
	AllowedHosts   []string          // Host headers allowed to access the server
	AllowedCIDRS   []string          // IPs allowed to access readyz
	TrustProxy     bool              // true if running behind a trusted reverse proxy (e.g., cloudflared)
	Auth           *auth.Service     // accounts and sessions
	Platform       *backend.Platform // hands out session-bound clients
	ReadyChecks    map[string]Check  // name => check, e.g. "redis", "storage"
	AuthRateBurst  int               // auth endpoint bucket size per client IP
	AuthRateRefill time.Duration     // one token back per interval
	OriginPatterns []string          // extra websocket origins
	RefreshTimeout time.Duration     // bound for feed-triggered refreshes in live sessions
	ImportMaxBytes int64             // max homepage document size
}
