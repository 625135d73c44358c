package qcarchive

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Cache memoizes fetched record payloads in a local SQLite database so
// repeated curation passes over the same dataset avoid refetching from
// the archive.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (or creates) a cache database at path.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("qcarchive: open cache %s: %w", path, err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			id      TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("qcarchive: init cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Get returns the cached payload for a record id; ok is false on a miss.
func (c *Cache) Get(id string) ([]byte, bool, error) {
	var payload []byte
	err := c.db.QueryRow(`SELECT payload FROM records WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("qcarchive: cache get %s: %w", id, err)
	}
	return payload, true, nil
}

// Put stores a payload, replacing any previous one for the id.
func (c *Cache) Put(id string, payload []byte) error {
	_, err := c.db.Exec(
		`INSERT INTO records (id, payload) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`,
		id, payload,
	)
	if err != nil {
		return fmt.Errorf("qcarchive: cache put %s: %w", id, err)
	}
	return nil
}

// Len counts cached records.
func (c *Cache) Len() (int, error) {
	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("qcarchive: cache len: %w", err)
	}
	return n, nil
}

// Close releases the database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}
