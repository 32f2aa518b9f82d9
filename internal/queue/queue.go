// Package queue records mutations made while disconnected so they can be
// replayed against the remote store when connectivity returns.
//
// The queue is a table in the local cache database (schema owned by the
// store package). Actions replay strictly in enqueue order; a failed
// replay stops the drain and leaves the failed action and everything
// after it queued. That ordering is what keeps an update from replaying
// after the delete that followed it.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"
)

// Kind identifies the mutation an action replays.
type Kind string

const (
	KindCreate         Kind = "create"
	KindUpdate         Kind = "update"
	KindDelete         Kind = "delete"
	KindCompleteReview Kind = "completeReview"
)

// Action is one queued mutation. TopicID references a topic by id only:
// the topic may have been deleted locally by the time the action
// replays, and the remote side reporting "not found" is then a no-op.
type Action struct {
	Seq        int64           `json:"seq"`
	Kind       Kind            `json:"kind"`
	TopicID    string          `json:"topicId,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// ReplayFunc applies one action remotely. Returning an error stops the
// drain with the action still queued.
type ReplayFunc func(ctx context.Context, a Action) error

// DrainResult summarizes a drain attempt.
type DrainResult struct {
	Succeeded int
	Remaining int
}

// Queue is the FIFO pending-action queue.
type Queue struct {
	db     *sql.DB
	logger *log.Logger
}

// New wraps the pending_actions table of the given cache database.
// If logger is nil, a default logger writing to stderr is used.
func New(db *sql.DB, logger *log.Logger) *Queue {
	if logger == nil {
		logger = log.New(os.Stderr, "[queue] ", log.LstdFlags)
	}
	return &Queue{db: db, logger: logger}
}

// Enqueue appends an action. The sequence number and enqueue time are
// assigned here.
func (q *Queue) Enqueue(kind Kind, topicID string, payload any) error {
	var raw []byte
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode action payload: %w", err)
		}
	}
	_, err := q.db.Exec(`
		INSERT INTO pending_actions (kind, topic_id, payload, enqueued_at)
		VALUES (?, ?, ?, ?)`,
		string(kind), topicID, nullableString(raw), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to enqueue %s action: %w", kind, err)
	}
	q.logger.Printf("Enqueued %s for %s", kind, topicID)
	return nil
}

// PeekAll returns every queued action in replay order without removing
// anything.
func (q *Queue) PeekAll() ([]Action, error) {
	rows, err := q.db.Query(`
		SELECT seq, kind, topic_id, payload, enqueued_at
		FROM pending_actions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending actions: %w", err)
	}
	defer rows.Close()

	var actions []Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending actions: %w", err)
	}
	return actions, nil
}

type actionScanner interface {
	Scan(dest ...any) error
}

func scanAction(row actionScanner) (Action, error) {
	var (
		a        Action
		kind     string
		payload  sql.NullString
		enqueued string
	)
	if err := row.Scan(&a.Seq, &kind, &a.TopicID, &payload, &enqueued); err != nil {
		return Action{}, fmt.Errorf("failed to scan pending action: %w", err)
	}
	a.Kind = Kind(kind)
	if payload.Valid {
		a.Payload = json.RawMessage(payload.String)
	}
	at, err := time.Parse(time.RFC3339, enqueued)
	if err != nil {
		return Action{}, fmt.Errorf("corrupt enqueued_at on action %d: %w", a.Seq, err)
	}
	a.EnqueuedAt = at
	return a, nil
}

// peekFirst reads the head of the queue. ok is false when empty.
func (q *Queue) peekFirst() (a Action, ok bool, err error) {
	row := q.db.QueryRow(`
		SELECT seq, kind, topic_id, payload, enqueued_at
		FROM pending_actions ORDER BY seq LIMIT 1`)
	a, err = scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Action{}, false, nil
	}
	if err != nil {
		return Action{}, false, err
	}
	return a, true, nil
}

// Len returns the number of queued actions.
func (q *Queue) Len() (int, error) {
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM pending_actions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending actions: %w", err)
	}
	return n, nil
}

// Drain replays queued actions in FIFO order, removing each one as its
// replay succeeds. On the first failure the drain stops: the failed
// action and all later ones stay queued, in order, for the next attempt.
//
// The head is re-read from the table on every iteration so that a
// RewriteTopicID issued by an earlier replay is visible to the actions
// behind it.
func (q *Queue) Drain(ctx context.Context, replay ReplayFunc) (DrainResult, error) {
	var result DrainResult
	for {
		if err := ctx.Err(); err != nil {
			result.Remaining, _ = q.Len()
			return result, fmt.Errorf("drain cancelled: %w", err)
		}
		a, ok, err := q.peekFirst()
		if err != nil {
			result.Remaining, _ = q.Len()
			return result, err
		}
		if !ok {
			break
		}
		if err := replay(ctx, a); err != nil {
			result.Remaining, _ = q.Len()
			q.logger.Printf("Replay of %s (seq %d) failed, %d action(s) left queued: %v",
				a.Kind, a.Seq, result.Remaining, err)
			return result, fmt.Errorf("failed to replay %s action: %w", a.Kind, err)
		}
		if _, err := q.db.Exec(`DELETE FROM pending_actions WHERE seq = ?`, a.Seq); err != nil {
			result.Remaining, _ = q.Len()
			return result, fmt.Errorf("failed to dequeue action %d: %w", a.Seq, err)
		}
		result.Succeeded++
	}
	if result.Succeeded > 0 {
		q.logger.Printf("Drained %d action(s)", result.Succeeded)
	}
	return result, nil
}

// RewriteTopicID repoints queued actions from a local placeholder id to
// the canonical id assigned by the remote store. Called mid-drain, right
// after a queued create replays successfully, so that later actions for
// the same topic replay against the real id.
func (q *Queue) RewriteTopicID(oldID, newID string) error {
	if _, err := q.db.Exec(`UPDATE pending_actions SET topic_id = ? WHERE topic_id = ?`, newID, oldID); err != nil {
		return fmt.Errorf("failed to rewrite topic id %s -> %s: %w", oldID, newID, err)
	}
	return nil
}

// DropForTopic removes every queued action referencing the given topic
// id. Used when a topic that only ever existed locally is deleted before
// its create could replay.
func (q *Queue) DropForTopic(topicID string) error {
	if _, err := q.db.Exec(`DELETE FROM pending_actions WHERE topic_id = ?`, topicID); err != nil {
		return fmt.Errorf("failed to drop actions for %s: %w", topicID, err)
	}
	return nil
}

// Clear drops every queued action.
func (q *Queue) Clear() error {
	if _, err := q.db.Exec(`DELETE FROM pending_actions`); err != nil {
		return fmt.Errorf("failed to clear pending actions: %w", err)
	}
	return nil
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
