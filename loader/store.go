package loader

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure Go driver, registered as "sqlite"
)

// ErrRecordNotFound indicates the store has no record for a hash or name.
var ErrRecordNotFound = errors.New("record not found")

// Store persists compiled source records in sqlite so a later process can
// warm its cache without reading source roots.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// OpenStore opens or creates the store at path. ":memory:" gives a private
// in-memory store.
func OpenStore(path string) (*Store, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS sources (
		hash TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		record BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS names (
		name TEXT PRIMARY KEY,
		hash TEXT NOT NULL REFERENCES sources(hash)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating name index: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put saves rec and points its name at it.
func (s *Store) Put(rec *Record) error {
	data, err := MarshalRecord(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("saving record: %w", err)
	}
	defer tx.Rollback()

	hash := rec.Hash.String()
	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO sources (hash, name, record) VALUES (?, ?, ?)",
		hash, rec.Name, data,
	); err != nil {
		return fmt.Errorf("saving record: %w", err)
	}
	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO names (name, hash) VALUES (?, ?)",
		rec.Name, hash,
	); err != nil {
		return fmt.Errorf("indexing record: %w", err)
	}
	return tx.Commit()
}

// Get returns the record stored under h.
func (s *Store) Get(h Hash) (*Record, error) {
	return s.queryRecord("SELECT record FROM sources WHERE hash = ?", h.String())
}

// ByName returns the latest record stored for a class name.
func (s *Store) ByName(name string) (*Record, error) {
	return s.queryRecord(
		"SELECT s.record FROM names n JOIN sources s ON s.hash = n.hash WHERE n.name = ?",
		name,
	)
}

func (s *Store) queryRecord(query string, arg any) (*Record, error) {
	var data []byte
	err := s.db.QueryRow(query, arg).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying record: %w", err)
	}
	return UnmarshalRecord(data)
}

// Names lists every indexed class name in sorted order.
func (s *Store) Names() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM names ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("listing names: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Forget removes the name index entry for name. The source record stays,
// so identical text still hashes to a stored record.
func (s *Store) Forget(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("DELETE FROM names WHERE name = ?", name); err != nil {
		return fmt.Errorf("forgetting %s: %w", name, err)
	}
	return nil
}
