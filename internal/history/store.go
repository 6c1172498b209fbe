// Package history keeps an optional SQLite log of request outcomes.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iconidentify/grabbot/internal/domain"
)

// DefaultLimit caps Recent when no limit is given.
const DefaultLimit = 50

// Entry is one recorded request outcome.
type Entry struct {
	ID        string              `json:"id"`
	UserID    domain.UserID       `json:"user_id"`
	Kind      domain.RequestKind  `json:"kind"`
	URL       string              `json:"url"`
	Class     domain.MessageClass `json:"class"`
	MediaKind domain.MediaKind    `json:"media_kind,omitempty"`
	Title     string              `json:"title,omitempty"`
	Error     string              `json:"error,omitempty"`
	Duration  time.Duration       `json:"duration_ns"`
	CreatedAt time.Time           `json:"created_at"`
}

// Store persists entries in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; serialise through a single connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS requests (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			url TEXT NOT NULL,
			class TEXT NOT NULL,
			media_kind TEXT,
			title TEXT,
			error TEXT,
			duration_ns INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_requests_user ON requests(user_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_requests_created ON requests(created_at);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores one entry.
func (s *Store) Record(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO requests (id, user_id, kind, url, class, media_kind, title, error, duration_ns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.UserID), string(e.Kind), e.URL, string(e.Class),
		string(e.MediaKind), e.Title, e.Error, int64(e.Duration), e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// Recent returns the newest entries, newest first. An empty userID returns
// entries for all users.
func (s *Store) Recent(ctx context.Context, userID domain.UserID, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = DefaultLimit
	}

	query := `SELECT id, user_id, kind, url, class, media_kind, title, error, duration_ns, created_at
		FROM requests`
	var args []any
	if userID != "" {
		query += " WHERE user_id = ?"
		args = append(args, string(userID))
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e                             Entry
			user, kind, class             string
			mediaKind, title, errText     sql.NullString
			durationNS, createdAtUnixNano int64
		)
		if err := rows.Scan(&e.ID, &user, &kind, &e.URL, &class, &mediaKind, &title, &errText, &durationNS, &createdAtUnixNano); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		e.UserID = domain.UserID(user)
		e.Kind = domain.RequestKind(kind)
		e.Class = domain.MessageClass(class)
		e.MediaKind = domain.MediaKind(mediaKind.String)
		e.Title = title.String
		e.Error = errText.String
		e.Duration = time.Duration(durationNS)
		e.CreatedAt = time.Unix(0, createdAtUnixNano).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}

	return entries, nil
}

// Prune deletes entries created before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM requests WHERE created_at < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune requests: %w", err)
	}
	return result.RowsAffected()
}
