package engine

import (
	"context"

	"github.com/retentionapp/retention/internal/dates"
	"github.com/retentionapp/retention/internal/queue"
	"github.com/retentionapp/retention/internal/remote"
	"github.com/retentionapp/retention/internal/store"
	"github.com/retentionapp/retention/internal/streak"
	"github.com/retentionapp/retention/internal/topic"
)

// This file is the optimistic mutation path. Every mutation is applied
// to the local cache first and always succeeds or rejects synchronously;
// the remote call happens after, and a remote failure degrades to a
// queued action instead of surfacing to the caller.
//
// A mutation whose immediate remote call succeeded is NOT enqueued —
// the queue records only unconfirmed work, so a replay can never apply
// the same mutation twice.

// Store exposes the engine's local cache for read paths (views, CLI).
func (e *Engine) Store() *store.Store { return e.store }

// Queue exposes the pending-action queue (length display, tests).
func (e *Engine) Queue() *queue.Queue { return e.queue }

// Today returns the current calendar date by the remote-corrected clock.
func (e *Engine) Today() dates.Date { return e.remote.Today() }

// CreateTopic creates a topic locally under a placeholder id, then
// confirms it remotely. On remote success the placeholder row is
// replaced by the canonical topic; on failure the create is queued.
func (e *Engine) CreateTopic(ctx context.Context, f topic.Fields) (topic.Topic, error) {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = e.remote.Today()
	}
	t, err := topic.New(f)
	if err != nil {
		return topic.Topic{}, err
	}
	if err := e.store.Create(t); err != nil {
		return topic.Topic{}, err
	}

	if e.online() {
		rt, err := e.remote.CreateTopic(ctx, f)
		if err == nil {
			if err := e.store.Rekey(t.ID, rt); err != nil {
				return topic.Topic{}, err
			}
			return rt, nil
		}
		e.noteRemoteFailure(err)
	}

	if err := e.queue.Enqueue(queue.KindCreate, t.ID, f); err != nil {
		return topic.Topic{}, err
	}
	e.notify(NotifySyncPending, "saved locally, will sync")
	return t, nil
}

// UpdateTopic edits a topic's non-schedule fields. A missing local id is
// a NotFoundError; remote "not found" means the edit is already
// satisfied from the remote store's point of view and is not queued.
func (e *Engine) UpdateTopic(ctx context.Context, id string, u topic.Update) (topic.Topic, error) {
	t, err := e.store.Update(id, u)
	if err != nil {
		return topic.Topic{}, err
	}

	if e.online() && !topic.IsLocalID(id) {
		rt, err := e.remote.UpdateTopic(ctx, id, u)
		if err == nil {
			if err := e.store.Upsert(rt); err != nil {
				return topic.Topic{}, err
			}
			return rt, nil
		}
		if remote.IsNotFound(err) {
			return t, nil
		}
		e.noteRemoteFailure(err)
	}

	if err := e.queue.Enqueue(queue.KindUpdate, id, u); err != nil {
		return topic.Topic{}, err
	}
	e.notify(NotifySyncPending, "saved locally, will sync")
	return t, nil
}

// DeleteTopic removes a topic locally and remotely. Remote "not found"
// is already satisfied.
func (e *Engine) DeleteTopic(ctx context.Context, id string) error {
	if err := e.store.Delete(id); err != nil {
		return err
	}

	if topic.IsLocalID(id) {
		// Never confirmed remotely: the queued create (and any edits
		// behind it) would replay into an immediate orphan. Drop them
		// instead of queueing a delete for a topic the remote store
		// has never seen.
		return e.queue.DropForTopic(id)
	}

	if e.online() {
		err := e.remote.DeleteTopic(ctx, id)
		if err == nil || remote.IsNotFound(err) {
			return nil
		}
		e.noteRemoteFailure(err)
	}

	if err := e.queue.Enqueue(queue.KindDelete, id, nil); err != nil {
		return err
	}
	e.notify(NotifySyncPending, "deleted locally, will sync")
	return nil
}

// CompleteReview marks the topic's next review done, advancing the
// stage and the streak locally, then confirms remotely. An
// InvalidStageError (already fully reviewed) surfaces to the caller with
// no state change.
func (e *Engine) CompleteReview(ctx context.Context, id string) (topic.Topic, streak.State, error) {
	today := e.remote.Today()
	t, st, err := e.store.CompleteNextReview(id, today, e.remote.Now())
	if err != nil {
		return topic.Topic{}, streak.State{}, err
	}

	if e.online() && !topic.IsLocalID(id) {
		rt, remoteStreak, err := e.remote.CompleteReview(ctx, id)
		if err == nil {
			e.logger.Printf("Review confirmed remotely (remote streak %d, local %d)", remoteStreak, st.Count)
			if err := e.store.Upsert(rt); err != nil {
				return topic.Topic{}, streak.State{}, err
			}
			return rt, st, nil
		}
		if remote.IsNotFound(err) || remote.IsConflict(err) {
			return t, st, nil
		}
		e.noteRemoteFailure(err)
	}

	if err := e.queue.Enqueue(queue.KindCompleteReview, id, nil); err != nil {
		return topic.Topic{}, streak.State{}, err
	}
	e.notify(NotifySyncPending, "review recorded locally, will sync")
	return t, st, nil
}

// noteRemoteFailure downgrades the engine after a failed immediate call
// so later mutations queue directly instead of timing out one by one.
func (e *Engine) noteRemoteFailure(err error) {
	if remote.IsTransport(err) {
		e.setState(StateOffline)
	}
	e.logger.Printf("Remote call failed, queueing for replay: %v", err)
}
