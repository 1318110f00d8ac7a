// Package recent keeps a bounded, persistent list of recently seen
// categories backing the /l listing. It is a collaborator of the resolution
// pipeline, never in its path: a store failure is logged and ignored.
package recent

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"anime1-proxy-go/pkg/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS categories (
	id        TEXT PRIMARY KEY,
	title     TEXT NOT NULL,
	last_seen INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS categories_last_seen ON categories(last_seen);
`

// Entry is one remembered category.
type Entry struct {
	ID       string
	Title    string
	LastSeen time.Time
}

// Store is a capacity-bounded recency store. Touching a category past
// capacity evicts the least recently seen ones.
type Store struct {
	db       *sql.DB
	capacity int
	log      *logging.Logger
}

// Open opens (and if needed creates) the store at path.
func Open(path string, capacity int, log *logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// modernc's driver serializes writes itself but a single connection
	// avoids SQLITE_BUSY under concurrent touches.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		db:       db,
		capacity: capacity,
		log:      log.WithComponent("recent"),
	}, nil
}

// Touch records that a category was just resolved.
func (s *Store) Touch(ctx context.Context, id, title string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (id, title, last_seen) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title = excluded.title, last_seen = excluded.last_seen`,
		id, title, time.Now().UnixNano())
	if err != nil {
		return err
	}
	return s.evict(ctx)
}

// evict trims the table down to capacity, oldest first.
func (s *Store) evict(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM categories WHERE id NOT IN (
			SELECT id FROM categories ORDER BY last_seen DESC, id DESC LIMIT ?
		 )`, s.capacity)
	return err
}

// List returns remembered categories, most recently seen first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, last_seen FROM categories ORDER BY last_seen DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var seen int64
		if err := rows.Scan(&e.ID, &e.Title, &seen); err != nil {
			return nil, err
		}
		e.LastSeen = time.Unix(0, seen)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
