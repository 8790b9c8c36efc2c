// Package sqlstore implements the bookmark repository over database/sql.
// The same queries serve SQLite (modernc.org/sqlite) and PostgreSQL
// (github.com/lib/pq); a Dialect only rewrites placeholders.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/store"
)

const currentSchemaVersion = 1

// Dialect captures the driver differences the queries care about.
type Dialect struct {
	Name   string
	Driver string
	// Rebind rewrites '?' placeholders into the driver's syntax.
	Rebind func(query string) string
}

var (
	SQLite = Dialect{
		Name:   store.BackendSQLite,
		Driver: "sqlite",
		Rebind: func(q string) string { return q },
	}
	Postgres = Dialect{
		Name:   store.BackendPostgres,
		Driver: "postgres",
		Rebind: dollarPlaceholders,
	}
)

// Store is a database/sql backed repository.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// OpenSQLite opens (and creates if needed) a SQLite database at path.
func OpenSQLite(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open(SQLite.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// SQLite serialises writers anyway; one connection keeps :memory: coherent.
	db.SetMaxOpenConns(1)

	return newStore(db, SQLite)
}

// OpenPostgres connects to PostgreSQL using a lib/pq DSN.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open(Postgres.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return newStore(db, Postgres)
}

func newStore(db *sql.DB, d Dialect) (*Store, error) {
	s := &Store{db: db, dialect: d, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// migrate brings the schema up to currentSchemaVersion.
func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		// Table missing or empty: fresh database.
		version = 0
	}
	if version >= currentSchemaVersion {
		return nil
	}

	// created_at holds Unix microseconds so both dialects sort and scan it
	// the same way.
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`,
		`CREATE TABLE IF NOT EXISTS bookmarks (
			id TEXT PRIMARY KEY NOT NULL,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL,
			url TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bookmarks_owner_created ON bookmarks(owner_id, created_at DESC)`,
		`DELETE FROM schema_version`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	for _, stmt := range ddl {
		if _, err := tx.Exec(stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration failed: %w", annotate(err))
		}
	}
	if _, err := tx.Exec(s.dialect.Rebind(`INSERT INTO schema_version (version) VALUES (?)`), currentSchemaVersion); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to record schema version: %w", annotate(err))
	}
	return tx.Commit()
}

const listQuery = `
	SELECT id, owner_id, title, url, created_at
	FROM bookmarks
	WHERE owner_id = ?
	ORDER BY created_at DESC, id DESC
`

// List returns the owner's bookmarks, newest first.
func (s *Store) List(ctx context.Context, owner domain.UserID) ([]domain.Bookmark, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(listQuery), string(owner))
	if err != nil {
		return nil, domain.NewStorageError("list", annotate(err))
	}
	defer func() { _ = rows.Close() }()

	bookmarks := make([]domain.Bookmark, 0)
	for rows.Next() {
		var (
			b       domain.Bookmark
			ownerID string
			micros  int64
		)
		if err := rows.Scan(&b.ID, &ownerID, &b.Title, &b.URL, &micros); err != nil {
			return nil, domain.NewStorageError("list", fmt.Errorf("failed to scan bookmark: %w", err))
		}
		b.OwnerID = domain.UserID(ownerID)
		b.CreatedAt = time.UnixMicro(micros).UTC()
		bookmarks = append(bookmarks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("list", annotate(err))
	}
	return bookmarks, nil
}

const insertQuery = `INSERT INTO bookmarks (id, owner_id, title, url, created_at) VALUES (?, ?, ?, ?, ?)`

// Insert stores a bookmark owned by caller.
func (s *Store) Insert(ctx context.Context, caller domain.UserID, rec domain.NewBookmark) (domain.Bookmark, error) {
	if err := store.Authorize(caller, rec); err != nil {
		return domain.Bookmark{}, domain.NewStorageError("insert", err)
	}

	b := store.Materialize(rec, s.now())
	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(insertQuery),
		b.ID, string(b.OwnerID), b.Title, b.URL, b.CreatedAt.UnixMicro())
	if err != nil {
		return domain.Bookmark{}, domain.NewStorageError("insert", annotate(err))
	}
	return b, nil
}

const deleteQuery = `DELETE FROM bookmarks WHERE id = ? AND owner_id = ?`

// DeleteByID removes the row if caller owns it.
func (s *Store) DeleteByID(ctx context.Context, caller domain.UserID, id string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(deleteQuery), id, string(caller))
	if err != nil {
		return 0, domain.NewStorageError("delete", annotate(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.NewStorageError("delete", fmt.Errorf("failed to read rows affected: %w", err))
	}
	return n, nil
}

// annotate prefixes Postgres errors with their condition name.
func annotate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%s: %w", pqErr.Code.Name(), err)
	}
	return err
}

// dollarPlaceholders turns "a = ? AND b = ?" into "a = $1 AND b = $2".
func dollarPlaceholders(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
