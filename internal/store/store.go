// Package store is the durable local cache of topics, streak state, and
// queued offline actions.
//
// The cache is an embedded SQLite database (WAL mode) in the data
// directory. It is the single source of truth while disconnected: every
// mutation is applied here first, synchronously, before any network
// activity. Reconciliation replaces the topic set wholesale inside one
// transaction, so a crash can never leave a half-replaced cache.
//
// The pending-action table lives in the same database file (schema owned
// here, operations in the queue package) so that an optimistic mutation
// and its queued replay action commit together.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/retentionapp/retention/internal/dates"
	"github.com/retentionapp/retention/internal/schedule"
	"github.com/retentionapp/retention/internal/streak"
	"github.com/retentionapp/retention/internal/topic"
)

// Store wraps the local SQLite cache.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens (or creates) the cache database at path and initializes the
// schema. The caller must Close when done.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Single writer; the engine serializes mutations anyway.
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn, path: path}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=FULL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if err := s.initSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schemaSQL := `
	CREATE TABLE IF NOT EXISTS topics (
		id            TEXT PRIMARY KEY,
		title         TEXT NOT NULL,
		category      TEXT NOT NULL DEFAULT 'general',
		priority      TEXT NOT NULL DEFAULT 'medium',
		notes         TEXT NOT NULL DEFAULT '',
		created_at    TEXT NOT NULL,
		reviews       TEXT NOT NULL,
		current_stage INTEGER NOT NULL DEFAULT 0,
		completed     INTEGER NOT NULL DEFAULT 0,
		completed_at  TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_topics_created_at ON topics(created_at);
	CREATE INDEX IF NOT EXISTS idx_topics_completed ON topics(completed);

	CREATE TABLE IF NOT EXISTS streak (
		id            INTEGER PRIMARY KEY CHECK (id = 1),
		count         INTEGER NOT NULL DEFAULT 0,
		longest       INTEGER NOT NULL DEFAULT 0,
		last_activity TEXT
	);

	CREATE TABLE IF NOT EXISTS pending_actions (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		kind        TEXT NOT NULL,
		topic_id    TEXT NOT NULL DEFAULT '',
		payload     TEXT,
		enqueued_at TEXT NOT NULL
	);
	`
	if _, err := s.conn.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := s.conn.Exec(`INSERT OR IGNORE INTO streak (id, count, longest, last_activity) VALUES (1, 0, 0, NULL)`); err != nil {
		return fmt.Errorf("failed to seed streak row: %w", err)
	}
	return nil
}

// RawDB exposes the underlying connection for the queue package.
func (s *Store) RawDB() *sql.DB { return s.conn }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertTopic(ex execer, t topic.Topic) error {
	reviewsJSON, err := json.Marshal(t.Reviews)
	if err != nil {
		return fmt.Errorf("failed to encode reviews: %w", err)
	}
	var completedAt any
	if t.CompletedAt != nil {
		completedAt = t.CompletedAt.UTC().Format(time.RFC3339)
	}
	_, err = ex.Exec(`
		INSERT INTO topics (id, title, category, priority, notes, created_at, reviews, current_stage, completed, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Category, string(t.Priority), t.Notes, t.CreatedAt.String(),
		string(reviewsJSON), t.CurrentStage, boolToInt(t.Completed), completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert topic %s: %w", t.ID, err)
	}
	return nil
}

func updateTopicRow(ex execer, t topic.Topic) (int64, error) {
	reviewsJSON, err := json.Marshal(t.Reviews)
	if err != nil {
		return 0, fmt.Errorf("failed to encode reviews: %w", err)
	}
	var completedAt any
	if t.CompletedAt != nil {
		completedAt = t.CompletedAt.UTC().Format(time.RFC3339)
	}
	res, err := ex.Exec(`
		UPDATE topics
		SET title = ?, category = ?, priority = ?, notes = ?, created_at = ?,
		    reviews = ?, current_stage = ?, completed = ?, completed_at = ?
		WHERE id = ?`,
		t.Title, t.Category, string(t.Priority), t.Notes, t.CreatedAt.String(),
		string(reviewsJSON), t.CurrentStage, boolToInt(t.Completed), completedAt, t.ID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update topic %s: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

// Create validates and inserts a new topic.
func (s *Store) Create(t topic.Topic) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return insertTopic(s.conn, t)
}

// Get returns the topic with the given id, or a NotFoundError.
func (s *Store) Get(id string) (topic.Topic, error) {
	row := s.conn.QueryRow(`
		SELECT id, title, category, priority, notes, created_at, reviews, current_stage, completed, completed_at
		FROM topics WHERE id = ?`, id)
	t, err := scanTopic(row)
	if errors.Is(err, sql.ErrNoRows) {
		return topic.Topic{}, &topic.NotFoundError{ID: id}
	}
	if err != nil {
		return topic.Topic{}, fmt.Errorf("failed to load topic %s: %w", id, err)
	}
	return t, nil
}

// List returns all topics, newest first.
func (s *Store) List() ([]topic.Topic, error) {
	rows, err := s.conn.Query(`
		SELECT id, title, category, priority, notes, created_at, reviews, current_stage, completed, completed_at
		FROM topics ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	defer rows.Close()

	var topics []topic.Topic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate topics: %w", err)
	}
	return topics, nil
}

// Update applies a partial edit and returns the updated topic.
func (s *Store) Update(id string, u topic.Update) (topic.Topic, error) {
	t, err := s.Get(id)
	if err != nil {
		return topic.Topic{}, err
	}
	if err := t.Apply(u); err != nil {
		return topic.Topic{}, err
	}
	if _, err := updateTopicRow(s.conn, t); err != nil {
		return topic.Topic{}, err
	}
	return t, nil
}

// Delete removes a topic, or returns a NotFoundError.
func (s *Store) Delete(id string) error {
	res, err := s.conn.Exec(`DELETE FROM topics WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete topic %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return &topic.NotFoundError{ID: id}
	}
	return nil
}

// CompleteNextReview marks the topic's current review done as of today,
// advances the stage, and records streak activity — all in one
// transaction. Returns the updated topic and streak.
//
// An InvalidStageError (topic already fully reviewed) leaves both the
// topic and the streak untouched.
func (s *Store) CompleteNextReview(id string, today dates.Date, now time.Time) (topic.Topic, streak.State, error) {
	t, err := s.Get(id)
	if err != nil {
		return topic.Topic{}, streak.State{}, err
	}
	if err := t.AdvanceReview(now); err != nil {
		return topic.Topic{}, streak.State{}, err
	}

	st, err := s.Streak()
	if err != nil {
		return topic.Topic{}, streak.State{}, err
	}
	st = st.Record(today)

	tx, err := s.conn.Begin()
	if err != nil {
		return topic.Topic{}, streak.State{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := updateTopicRow(tx, t); err != nil {
		return topic.Topic{}, streak.State{}, err
	}
	if err := saveStreak(tx, st); err != nil {
		return topic.Topic{}, streak.State{}, err
	}
	if err := tx.Commit(); err != nil {
		return topic.Topic{}, streak.State{}, fmt.Errorf("failed to commit review completion: %w", err)
	}
	return t, st, nil
}

// Upsert validates and writes a topic, inserting or overwriting. Used to
// reconcile a single remotely-confirmed topic.
func (s *Store) Upsert(t topic.Topic) error {
	if err := t.Validate(); err != nil {
		return err
	}
	n, err := updateTopicRow(s.conn, t)
	if err != nil {
		return err
	}
	if n == 0 {
		return insertTopic(s.conn, t)
	}
	return nil
}

// Rekey atomically replaces the topic stored under oldID with t (which
// carries the canonical remote id). A missing old row is tolerated: the
// topic may have been deleted locally while its create was still queued.
func (s *Store) Rekey(oldID string, t topic.Topic) error {
	if err := t.Validate(); err != nil {
		return err
	}
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM topics WHERE id = ?`, oldID)
	if err != nil {
		return fmt.Errorf("failed to remove placeholder %s: %w", oldID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return tx.Commit()
	}
	if _, err := tx.Exec(`DELETE FROM topics WHERE id = ?`, t.ID); err != nil {
		return fmt.Errorf("failed to clear canonical id %s: %w", t.ID, err)
	}
	if err := insertTopic(tx, t); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rekey: %w", err)
	}
	return nil
}

// ReplaceAll swaps the entire topic set for the given one in a single
// transaction. Every incoming topic is validated first; on any failure
// the cache is left untouched.
func (s *Store) ReplaceAll(topics []topic.Topic) error {
	for _, t := range topics {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("refusing to replace cache: %w", err)
		}
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM topics`); err != nil {
		return fmt.Errorf("failed to clear topics: %w", err)
	}
	for _, t := range topics {
		if err := insertTopic(tx, t); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit replacement: %w", err)
	}
	return nil
}

// Restore replaces topics and streak together, atomically. Used by
// backup import.
func (s *Store) Restore(topics []topic.Topic, st streak.State) error {
	for _, t := range topics {
		if err := t.Validate(); err != nil {
			return err
		}
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM topics`); err != nil {
		return fmt.Errorf("failed to clear topics: %w", err)
	}
	for _, t := range topics {
		if err := insertTopic(tx, t); err != nil {
			return err
		}
	}
	if err := saveStreak(tx, st); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit restore: %w", err)
	}
	return nil
}

// Reset wipes topics, streak, and the pending-action queue.
func (s *Store) Reset() error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM topics`,
		`UPDATE streak SET count = 0, longest = 0, last_activity = NULL WHERE id = 1`,
		`DELETE FROM pending_actions`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to reset cache: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}
	return nil
}

// Streak returns the persisted streak state.
func (s *Store) Streak() (streak.State, error) {
	var st streak.State
	var last sql.NullString
	err := s.conn.QueryRow(`SELECT count, longest, last_activity FROM streak WHERE id = 1`).
		Scan(&st.Count, &st.Longest, &last)
	if err != nil {
		return streak.State{}, fmt.Errorf("failed to load streak: %w", err)
	}
	if last.Valid && last.String != "" {
		d, err := dates.Parse(last.String)
		if err != nil {
			return streak.State{}, fmt.Errorf("corrupt streak date: %w", err)
		}
		st.LastActivityDate = d
	}
	return st, nil
}

// SetStreak overwrites the persisted streak state.
func (s *Store) SetStreak(st streak.State) error {
	return saveStreak(s.conn, st)
}

func saveStreak(ex execer, st streak.State) error {
	var last any
	if !st.LastActivityDate.IsZero() {
		last = st.LastActivityDate.String()
	}
	if _, err := ex.Exec(`UPDATE streak SET count = ?, longest = ?, last_activity = ? WHERE id = 1`,
		st.Count, st.Longest, last); err != nil {
		return fmt.Errorf("failed to save streak: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTopic(row rowScanner) (topic.Topic, error) {
	var (
		t           topic.Topic
		priority    string
		createdAt   string
		reviewsJSON string
		completed   int
		completedAt sql.NullString
	)
	err := row.Scan(&t.ID, &t.Title, &t.Category, &priority, &t.Notes,
		&createdAt, &reviewsJSON, &t.CurrentStage, &completed, &completedAt)
	if err != nil {
		return topic.Topic{}, err
	}

	t.Priority = topic.Priority(priority)
	created, err := dates.Parse(createdAt)
	if err != nil {
		return topic.Topic{}, fmt.Errorf("corrupt created_at for %s: %w", t.ID, err)
	}
	t.CreatedAt = created

	var reviews []schedule.Review
	if err := json.Unmarshal([]byte(reviewsJSON), &reviews); err != nil {
		return topic.Topic{}, fmt.Errorf("corrupt reviews for %s: %w", t.ID, err)
	}
	t.Reviews = reviews
	t.Completed = completed != 0
	if completedAt.Valid && completedAt.String != "" {
		at, err := time.Parse(time.RFC3339, completedAt.String)
		if err != nil {
			return topic.Topic{}, fmt.Errorf("corrupt completed_at for %s: %w", t.ID, err)
		}
		t.CompletedAt = &at
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
