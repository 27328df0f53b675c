// Package store caches object files in SQLite, addressed by the SHA-256 of
// their contents.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("trompe.store")

// ErrNotFound indicates the requested object or name doesn't exist
var ErrNotFound = errors.New("object not found")

// Entry describes one named version of an object.
type Entry struct {
	Name    string
	Hash    string
	Size    int
	Created time.Time
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS objects (
		hash TEXT PRIMARY KEY,
		data BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS names (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		hash TEXT NOT NULL REFERENCES objects(hash),
		created INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS names_by_name ON names(name, seq)`,
}

// Store handles SQLite storage for object files
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Hash returns the content address of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Open opens or creates the cache at dbPath.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating tables: %w", err)
		}
	}

	log.Debugf("opened cache %s", dbPath)
	return &Store{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

// Put stores data and records it as the latest version of name. Storing
// identical contents again only adds a name record.
func (s *Store) Put(name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := Hash(data)
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("INSERT OR IGNORE INTO objects (hash, data) VALUES (?, ?)", hash, data); err != nil {
		return "", fmt.Errorf("saving object: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO names (name, hash, created) VALUES (?, ?, ?)",
		name, hash, time.Now().UnixNano()); err != nil {
		return "", fmt.Errorf("saving name: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing: %w", err)
	}

	log.Infof("cached %s as %s (%d bytes)", name, hash[:12], len(data))
	return hash, nil
}

// Get returns the object stored under hash.
func (s *Store) Get(hash string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM objects WHERE hash = ?", hash).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying object: %w", err)
	}
	return data, nil
}

// Latest returns the most recently stored object for name and its hash.
func (s *Store) Latest(name string) ([]byte, string, error) {
	var hash string
	err := s.db.QueryRow(
		"SELECT hash FROM names WHERE name = ? ORDER BY seq DESC LIMIT 1", name,
	).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("querying name: %w", err)
	}
	data, err := s.Get(hash)
	if err != nil {
		return nil, "", err
	}
	return data, hash, nil
}

// List returns the latest entry for every name, ordered by name.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query(`SELECT n.name, n.hash, length(o.data), n.created
		FROM names n JOIN objects o ON o.hash = n.hash
		WHERE n.seq = (SELECT max(seq) FROM names WHERE name = n.name)
		ORDER BY n.name`)
	if err != nil {
		return nil, fmt.Errorf("listing names: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.Name, &e.Hash, &e.Size, &created); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.Created = time.Unix(0, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
