// Package store provides SQLite persistence for castwatch: an archive of
// observed casts and the history of emitted alerts. Channel rolling state
// is deliberately NOT persisted; a restart starts from a fresh window.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/abelbrown/castwatch/internal/cast"
)

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates a Store with the given database path, creating tables if
// they don't exist. Uses WAL mode for file-based databases.
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// Shared cache so all pooled connections see the same database.
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS casts (
		id TEXT PRIMARY KEY,
		channel TEXT NOT NULL,
		author_id TEXT NOT NULL,
		handle TEXT,
		text TEXT,
		posted_at DATETIME NOT NULL,
		likes INTEGER DEFAULT 0,
		reposts INTEGER DEFAULT 0,
		replies INTEGER DEFAULT 0,
		first_seen DATETIME NOT NULL,
		last_seen DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_casts_channel_posted ON casts(channel, posted_at DESC);
	CREATE INDEX IF NOT EXISTS idx_casts_author ON casts(author_id);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		channel TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		kinds TEXT NOT NULL,
		severity REAL NOT NULL,
		variance REAL,
		autocorr REAL,
		suppressed INTEGER DEFAULT 0,
		summary TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_channel_created ON alerts(channel, created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveCasts upserts a batch of casts for a channel, returning the number
// of rows written. Re-fetched casts keep their identity; only the
// monotonically rising engagement counters and last_seen move.
func (s *Store) SaveCasts(channel string, batch []cast.Cast) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO casts (id, channel, author_id, handle, text, posted_at, likes, reposts, replies, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			likes = MAX(likes, excluded.likes),
			reposts = MAX(reposts, excluded.reposts),
			replies = MAX(replies, excluded.replies),
			last_seen = excluded.last_seen
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now()
	saved := 0
	for _, c := range batch {
		res, err := stmt.Exec(c.ID, channel, c.AuthorID, c.Handle, c.Text,
			c.Timestamp, c.Likes, c.Reposts, c.Replies, now, now)
		if err != nil {
			return saved, fmt.Errorf("save cast %s: %w", c.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			saved++
		}
	}
	return saved, tx.Commit()
}

// CastCount returns the number of archived casts for a channel.
func (s *Store) CastCount(channel string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM casts WHERE channel = ?`, channel).Scan(&n)
	return n, err
}

// AlertRecord is one stored alert.
type AlertRecord struct {
	ID         string
	Channel    string
	CreatedAt  time.Time
	Kinds      []string
	Severity   float64
	Variance   float64
	Autocorr   float64
	Suppressed int
	Summary    string
}

// SaveAlert persists one emitted alert.
func (s *Store) SaveAlert(a AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO alerts (id, channel, created_at, kinds, severity, variance, autocorr, suppressed, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Channel, a.CreatedAt, strings.Join(a.Kinds, ","),
		a.Severity, a.Variance, a.Autocorr, a.Suppressed, a.Summary)
	if err != nil {
		return fmt.Errorf("save alert: %w", err)
	}
	return nil
}

// RecentAlerts returns the newest alerts across all channels, newest first.
func (s *Store) RecentAlerts(limit int) ([]AlertRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, channel, created_at, kinds, severity, variance, autocorr, suppressed, summary
		FROM alerts ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []AlertRecord
	for rows.Next() {
		var a AlertRecord
		var kinds string
		if err := rows.Scan(&a.ID, &a.Channel, &a.CreatedAt, &kinds,
			&a.Severity, &a.Variance, &a.Autocorr, &a.Suppressed, &a.Summary); err != nil {
			return nil, err
		}
		if kinds != "" {
			a.Kinds = strings.Split(kinds, ",")
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// AlertCountByChannel returns total stored alerts per channel.
func (s *Store) AlertCountByChannel() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT channel, COUNT(*) FROM alerts GROUP BY channel`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var ch string
		var n int
		if err := rows.Scan(&ch, &n); err != nil {
			return nil, err
		}
		counts[ch] = n
	}
	return counts, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
