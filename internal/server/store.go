// Package server is the bundled reference implementation of the remote
// persistence service (`ret serve`).
//
// It is deliberately plain: users keyed by device id, topics with their
// three review rows, and a per-user streak counter — no business logic
// beyond advancing a review stage and the streak bookkeeping that goes
// with it. The engine treats any compatible record store the same way.
package server

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/retentionapp/retention/internal/dates"
	"github.com/retentionapp/retention/internal/schedule"
	"github.com/retentionapp/retention/internal/topic"
)

// ErrAllReviewsComplete is returned when a review completion hits a
// topic whose three reviews are already done. Handlers map it to 409.
var ErrAllReviewsComplete = errors.New("all reviews already completed")

// ErrNotFound is returned for missing users or topics. Handlers map it
// to 404.
var ErrNotFound = errors.New("not found")

// User is a registered installation.
type User struct {
	ID        string    `db:"id" json:"id"`
	DeviceID  string    `db:"device_id" json:"deviceId"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	LastLogin time.Time `db:"last_login" json:"lastLogin"`
}

type topicRow struct {
	ID           string         `db:"id"`
	UserID       string         `db:"user_id"`
	Title        string         `db:"title"`
	Category     string         `db:"category"`
	Priority     string         `db:"priority"`
	Notes        string         `db:"notes"`
	CreatedAt    string         `db:"created_at"`
	CurrentStage int            `db:"current_stage"`
	Completed    bool           `db:"completed"`
	CompletedAt  sql.NullString `db:"completed_at"`
}

type reviewRow struct {
	ID            int64          `db:"id"`
	TopicID       string         `db:"topic_id"`
	ReviewDay     int            `db:"review_day"`
	ScheduledDate string         `db:"scheduled_date"`
	Completed     bool           `db:"completed"`
	CompletedAt   sql.NullString `db:"completed_at"`
}

// Store is the server-side SQLite persistence layer.
type Store struct {
	db *sqlx.DB
}

// OpenStore opens (or creates) the server database at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create server data directory: %w", err)
	}
	db, err := sqlx.Connect("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open server database: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schemaSQL := `
	CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		device_id  TEXT NOT NULL UNIQUE,
		name       TEXT NOT NULL DEFAULT 'Learner',
		created_at TIMESTAMP NOT NULL,
		last_login TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS topics (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL REFERENCES users(id),
		title         TEXT NOT NULL,
		category      TEXT NOT NULL DEFAULT 'general',
		priority      TEXT NOT NULL DEFAULT 'medium',
		notes         TEXT NOT NULL DEFAULT '',
		created_at    TEXT NOT NULL,
		current_stage INTEGER NOT NULL DEFAULT 0,
		completed     INTEGER NOT NULL DEFAULT 0,
		completed_at  TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_topics_user ON topics(user_id);

	CREATE TABLE IF NOT EXISTS reviews (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		topic_id       TEXT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
		review_day     INTEGER NOT NULL,
		scheduled_date TEXT NOT NULL,
		completed      INTEGER NOT NULL DEFAULT 0,
		completed_at   TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_reviews_topic ON reviews(topic_id);

	CREATE TABLE IF NOT EXISTS streaks (
		user_id            TEXT PRIMARY KEY REFERENCES users(id),
		current_streak     INTEGER NOT NULL DEFAULT 0,
		longest_streak     INTEGER NOT NULL DEFAULT 0,
		last_activity_date TEXT
	);
	`
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize server schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// RegisterDevice returns the user for a device id, creating one on
// first contact. The second result reports whether the user is new.
func (s *Store) RegisterDevice(deviceID string, now time.Time) (User, bool, error) {
	var u User
	err := s.db.Get(&u, `SELECT * FROM users WHERE device_id = ?`, deviceID)
	if err == nil {
		if _, err := s.db.Exec(`UPDATE users SET last_login = ? WHERE id = ?`, now.UTC(), u.ID); err != nil {
			return User{}, false, fmt.Errorf("failed to stamp last login: %w", err)
		}
		u.LastLogin = now.UTC()
		return u, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, false, fmt.Errorf("failed to look up device: %w", err)
	}

	u = User{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		Name:      "Learner",
		CreatedAt: now.UTC(),
		LastLogin: now.UTC(),
	}
	if _, err := s.db.NamedExec(`
		INSERT INTO users (id, device_id, name, created_at, last_login)
		VALUES (:id, :device_id, :name, :created_at, :last_login)`, u); err != nil {
		return User{}, false, fmt.Errorf("failed to create user: %w", err)
	}
	return u, true, nil
}

// Topics returns every topic for a user, newest first, reviews attached
// in day order.
func (s *Store) Topics(userID string) ([]topic.Topic, error) {
	var rows []topicRow
	if err := s.db.Select(&rows, `SELECT * FROM topics WHERE user_id = ? ORDER BY created_at DESC, id`, userID); err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	topics := make([]topic.Topic, 0, len(rows))
	for _, row := range rows {
		t, err := s.assemble(row)
		if err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, nil
}

// GetTopic returns one topic with its reviews.
func (s *Store) GetTopic(id string) (topic.Topic, error) {
	var row topicRow
	err := s.db.Get(&row, `SELECT * FROM topics WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return topic.Topic{}, ErrNotFound
	}
	if err != nil {
		return topic.Topic{}, fmt.Errorf("failed to load topic %s: %w", id, err)
	}
	return s.assemble(row)
}

func (s *Store) assemble(row topicRow) (topic.Topic, error) {
	created, err := dates.Parse(row.CreatedAt)
	if err != nil {
		return topic.Topic{}, fmt.Errorf("corrupt created_at for %s: %w", row.ID, err)
	}
	t := topic.Topic{
		ID:           row.ID,
		Title:        row.Title,
		Category:     row.Category,
		Priority:     topic.Priority(row.Priority),
		Notes:        row.Notes,
		CreatedAt:    created,
		CurrentStage: row.CurrentStage,
		Completed:    row.Completed,
	}
	if row.CompletedAt.Valid {
		at, err := time.Parse(time.RFC3339, row.CompletedAt.String)
		if err != nil {
			return topic.Topic{}, fmt.Errorf("corrupt completed_at for %s: %w", row.ID, err)
		}
		t.CompletedAt = &at
	}

	var reviews []reviewRow
	if err := s.db.Select(&reviews, `SELECT * FROM reviews WHERE topic_id = ? ORDER BY review_day`, row.ID); err != nil {
		return topic.Topic{}, fmt.Errorf("failed to load reviews for %s: %w", row.ID, err)
	}
	for _, r := range reviews {
		scheduled, err := dates.Parse(r.ScheduledDate)
		if err != nil {
			return topic.Topic{}, fmt.Errorf("corrupt scheduled_date for %s: %w", row.ID, err)
		}
		entry := schedule.Review{
			ScheduledDate: scheduled,
			ReviewDay:     r.ReviewDay,
			Completed:     r.Completed,
		}
		if r.CompletedAt.Valid {
			at, err := time.Parse(time.RFC3339, r.CompletedAt.String)
			if err != nil {
				return topic.Topic{}, fmt.Errorf("corrupt review completed_at for %s: %w", row.ID, err)
			}
			entry.CompletedAt = &at
		}
		t.Reviews = append(t.Reviews, entry)
	}
	return t, nil
}

// CreateTopic persists a new topic with its 1-4-7 review rows.
func (s *Store) CreateTopic(userID string, f topic.Fields, today dates.Date) (topic.Topic, error) {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = today
	}
	t, err := topic.New(f)
	if err != nil {
		return topic.Topic{}, err
	}
	t.ID = uuid.NewString()

	tx, err := s.db.Beginx()
	if err != nil {
		return topic.Topic{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO topics (id, user_id, title, category, priority, notes, created_at, current_stage, completed)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0)`,
		t.ID, userID, t.Title, t.Category, string(t.Priority), t.Notes, t.CreatedAt.String()); err != nil {
		return topic.Topic{}, fmt.Errorf("failed to insert topic: %w", err)
	}
	for _, r := range t.Reviews {
		if _, err := tx.Exec(`
			INSERT INTO reviews (topic_id, review_day, scheduled_date, completed)
			VALUES (?, ?, ?, 0)`, t.ID, r.ReviewDay, r.ScheduledDate.String()); err != nil {
			return topic.Topic{}, fmt.Errorf("failed to insert review: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return topic.Topic{}, fmt.Errorf("failed to commit topic: %w", err)
	}
	return t, nil
}

// UpdateTopic applies a partial edit to a topic's non-schedule fields.
func (s *Store) UpdateTopic(id string, u topic.Update) (topic.Topic, error) {
	t, err := s.GetTopic(id)
	if err != nil {
		return topic.Topic{}, err
	}
	if err := t.Apply(u); err != nil {
		return topic.Topic{}, err
	}
	if _, err := s.db.Exec(`
		UPDATE topics SET title = ?, category = ?, priority = ?, notes = ? WHERE id = ?`,
		t.Title, t.Category, string(t.Priority), t.Notes, id); err != nil {
		return topic.Topic{}, fmt.Errorf("failed to update topic %s: %w", id, err)
	}
	return t, nil
}

// DeleteTopic removes a topic; its review rows cascade.
func (s *Store) DeleteTopic(id string) error {
	res, err := s.db.Exec(`DELETE FROM topics WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete topic %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteReview marks the topic's current review done, advances the
// stage, and updates the owner's streak. Returns the updated topic and
// the owner's new streak count.
func (s *Store) CompleteReview(id string, now time.Time) (topic.Topic, int, error) {
	var row topicRow
	err := s.db.Get(&row, `SELECT * FROM topics WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return topic.Topic{}, 0, ErrNotFound
	}
	if err != nil {
		return topic.Topic{}, 0, fmt.Errorf("failed to load topic %s: %w", id, err)
	}
	if row.CurrentStage >= topic.NumStages {
		return topic.Topic{}, 0, ErrAllReviewsComplete
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return topic.Topic{}, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	day := schedule.Intervals[row.CurrentStage]
	stamp := now.UTC().Format(time.RFC3339)
	if _, err := tx.Exec(`
		UPDATE reviews SET completed = 1, completed_at = ?
		WHERE topic_id = ? AND review_day = ?`, stamp, id, day); err != nil {
		return topic.Topic{}, 0, fmt.Errorf("failed to complete review: %w", err)
	}

	newStage := row.CurrentStage + 1
	done := newStage == topic.NumStages
	var completedAt any
	if done {
		completedAt = stamp
	}
	if _, err := tx.Exec(`
		UPDATE topics SET current_stage = ?, completed = ?, completed_at = ? WHERE id = ?`,
		newStage, boolToInt(done), completedAt, id); err != nil {
		return topic.Topic{}, 0, fmt.Errorf("failed to advance stage: %w", err)
	}

	streakCount, err := bumpStreak(tx, row.UserID, dates.FromTime(now))
	if err != nil {
		return topic.Topic{}, 0, err
	}
	if err := tx.Commit(); err != nil {
		return topic.Topic{}, 0, fmt.Errorf("failed to commit review: %w", err)
	}

	t, err := s.GetTopic(id)
	if err != nil {
		return topic.Topic{}, 0, err
	}
	return t, streakCount, nil
}

// Streak returns a user's current and longest streak counts.
func (s *Store) Streak(userID string) (current, longest int, err error) {
	err = s.db.QueryRow(`SELECT current_streak, longest_streak FROM streaks WHERE user_id = ?`, userID).
		Scan(&current, &longest)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load streak: %w", err)
	}
	return current, longest, nil
}

// bumpStreak applies the same-day / consecutive-day / gap rules to the
// user's streak row inside the caller's transaction.
func bumpStreak(tx *sqlx.Tx, userID string, today dates.Date) (int, error) {
	var (
		current, longest int
		last             sql.NullString
	)
	err := tx.QueryRow(`SELECT current_streak, longest_streak, last_activity_date FROM streaks WHERE user_id = ?`, userID).
		Scan(&current, &longest, &last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.Exec(`
			INSERT INTO streaks (user_id, current_streak, longest_streak, last_activity_date)
			VALUES (?, 1, 1, ?)`, userID, today.String()); err != nil {
			return 0, fmt.Errorf("failed to create streak: %w", err)
		}
		return 1, nil
	case err != nil:
		return 0, fmt.Errorf("failed to load streak: %w", err)
	}

	if last.Valid && last.String == today.String() {
		return current, nil
	}
	next := 1
	if last.Valid {
		if lastDate, err := dates.Parse(last.String); err == nil && today.Equal(lastDate.AddDays(1)) {
			next = current + 1
		}
	}
	if next > longest {
		longest = next
	}
	if _, err := tx.Exec(`
		UPDATE streaks SET current_streak = ?, longest_streak = ?, last_activity_date = ? WHERE user_id = ?`,
		next, longest, today.String(), userID); err != nil {
		return 0, fmt.Errorf("failed to update streak: %w", err)
	}
	return next, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
