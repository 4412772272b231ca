package session

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists the session registry in SQLite so sessions survive service
// restarts. Use ":memory:" for tests.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore opens (and if needed initializes) the registry database.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		dir TEXT NOT NULL,
		namespace TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_used INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_last_used ON sessions(last_used);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Insert records a new session.
func (s *Store) Insert(sc *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO sessions (id, dir, namespace, created_at, last_used) VALUES (?, ?, ?, ?, ?)",
		sc.ID, sc.Dir, sc.Namespace, sc.CreatedAt.Unix(), sc.LastUsed.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get returns a session row, or nil when the id is unknown.
func (s *Store) Get(id string) (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow("SELECT id, dir, namespace, created_at, last_used FROM sessions WHERE id = ?", id)
	sc, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sc, err
}

// List returns all registered sessions ordered by creation time.
func (s *Store) List() ([]*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT id, dir, namespace, created_at, last_used FROM sessions ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Context
	for rows.Next() {
		sc, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// Delete removes a session row.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Touch updates a session's last-used timestamp.
func (s *Store) Touch(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("UPDATE sessions SET last_used = ? WHERE id = ?", at.Unix(), id); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// IdleBefore returns ids of sessions whose last use predates the cutoff.
func (s *Store) IdleBefore(cutoff time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT id FROM sessions WHERE last_used < ?", cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("query idle sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (*Context, error) {
	var sc Context
	var created, lastUsed int64
	if err := r.Scan(&sc.ID, &sc.Dir, &sc.Namespace, &created, &lastUsed); err != nil {
		return nil, err
	}
	sc.CreatedAt = time.Unix(created, 0)
	sc.LastUsed = time.Unix(lastUsed, 0)
	return &sc, nil
}
