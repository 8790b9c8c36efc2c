package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends selectable with SHELF_STORAGE.
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel      string // "debug" | "info" | "warn" | "error"
	PrettyLog     bool   // true => zap dev (color), false => zap prod (JSON)
	LogFile       string // optional, JSON copy of the log rotated by size
	LogMaxSizeMB  int
	LogMaxBackups int

	// Storage
	Storage     string // "memory" | "redis" | "sqlite" | "postgres"
	SQLitePath  string // ex: "/data/shelf.db"
	PostgresDSN string // ex: "postgres://shelf:secret@db:5432/shelf?sslmode=disable"

	// Sessions
	SessionTTL     time.Duration // lifetime of a login session (default: 7 days)
	RefreshTimeout time.Duration // bound for refreshes triggered by change events
	ImportMaxBytes int64         // max size of an uploaded homepage document

	// Redis (optional unless Storage is "redis"; empty addr => in-process feed and sessions)
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts

	AllowedHosts   []string // optional, restrict access to specific Host headers
	AllowedCIDRS   []string // optional, restrict /readyz to specific IPs (e.g. "1.2.3.4, 10.0.0.0/8")
	TrustProxy     bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
	AuthRateBurst  int      // auth endpoint bucket size per client IP
	AuthRateRefill time.Duration
	OriginPatterns []string // websocket origins accepted besides same-host
}

func Load() *Config {
	// A missing .env is fine: the process environment wins anyway.
	_ = godotenv.Load()

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("SHELF_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("SHELF_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:      getenv("SHELF_LOG_LEVEL", "info"),
		PrettyLog:     mustBool("SHELF_PRETTY_LOG", false),
		LogFile:       getenv("SHELF_LOG_FILE", ""),
		LogMaxSizeMB:  getenvInt("SHELF_LOG_MAX_SIZE_MB", 50),
		LogMaxBackups: getenvInt("SHELF_LOG_MAX_BACKUPS", 3),

		// Storage
		Storage:     strings.ToLower(getenv("SHELF_STORAGE", StorageSQLite)),
		SQLitePath:  getenv("SHELF_SQLITE_PATH", "/data/shelf.db"),
		PostgresDSN: getenv("SHELF_POSTGRES_DSN", ""),

		SessionTTL:     mustDuration("SHELF_SESSION_TTL", 7*24*time.Hour),
		RefreshTimeout: mustDuration("SHELF_REFRESH_TIMEOUT", 10*time.Second),
		ImportMaxBytes: int64(getenvInt("SHELF_IMPORT_MAX_BYTES", 1<<20)),

		// Redis settings
		RedisAddr:             getenv("SHELF_REDIS_ADDR", ""),
		RedisUser:             getenv("SHELF_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("SHELF_REDIS_PASSWORD_REQUIRED", true),
		RedisPassword:         getenv("SHELF_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("SHELF_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedHosts:   splitAndTrim(getenv("SHELF_ALLOWED_HOSTS", "")),
		AllowedCIDRS:   parseAllowedIPs(getenv("SHELF_ALLOWED_CIDRS", "")),
		TrustProxy:     mustBool("SHELF_TRUST_PROXY", false),
		AuthRateBurst:  getenvInt("SHELF_AUTH_RATE_BURST", 10),
		AuthRateRefill: mustDuration("SHELF_AUTH_RATE_REFILL", 6*time.Second),
		OriginPatterns: splitAndTrim(getenv("SHELF_WS_ORIGINS", "")),
	}

	if cfg.Storage == StoragePostgres {
		cfg.PostgresDSN = requireEnv("SHELF_POSTGRES_DSN")
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("❌ FATAL: %v", err))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		if cfg.PostgresDSN != "" {
			cfgCopy.PostgresDSN = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// RedisEnabled reports whether a redis server is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// Validate checks combinations of settings that single lookups cannot.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory, StorageSQLite:
	case StorageRedis:
		if !c.RedisEnabled() {
			return fmt.Errorf("SHELF_REDIS_ADDR is required when SHELF_STORAGE=%s", StorageRedis)
		}
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("SHELF_POSTGRES_DSN is required when SHELF_STORAGE=%s", StoragePostgres)
		}
	default:
		return fmt.Errorf("unknown SHELF_STORAGE %q (want memory, redis, sqlite or postgres)", c.Storage)
	}

	if c.Storage == StorageSQLite && c.SQLitePath == "" {
		return fmt.Errorf("SHELF_SQLITE_PATH must not be empty")
	}
	if c.RedisEnabled() && c.RedisPasswordRequired && c.RedisPassword == "" {
		return fmt.Errorf("SHELF_REDIS_PASSWORD is required when SHELF_REDIS_PASSWORD_REQUIRED=true")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SHELF_SESSION_TTL must be > 0, got %v", c.SessionTTL)
	}
	if c.AuthRateBurst <= 0 || c.AuthRateRefill <= 0 {
		return fmt.Errorf("SHELF_AUTH_RATE_BURST and SHELF_AUTH_RATE_REFILL must be > 0")
	}
	return nil
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
