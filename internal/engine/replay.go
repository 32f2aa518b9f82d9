package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/retentionapp/retention/internal/queue"
	"github.com/retentionapp/retention/internal/remote"
	"github.com/retentionapp/retention/internal/topic"
)

// replay applies one queued action against the remote store. It is the
// queue.Drain callback: returning an error stops the drain with this
// action (and everything after it) still queued.
//
// "Not found" on update/delete/completeReview means the remote record is
// already gone or done — the action's intent is satisfied, so it
// dequeues as a success.
func (e *Engine) replay(ctx context.Context, a queue.Action) error {
	switch a.Kind {
	case queue.KindCreate:
		return e.replayCreate(ctx, a)

	case queue.KindUpdate:
		var u topic.Update
		if err := json.Unmarshal(a.Payload, &u); err != nil {
			return fmt.Errorf("corrupt update payload (seq %d): %w", a.Seq, err)
		}
		rt, err := e.remote.UpdateTopic(ctx, a.TopicID, u)
		if remote.IsNotFound(err) {
			e.logger.Printf("Replayed update for %s: already gone remotely", a.TopicID)
			return nil
		}
		if err != nil {
			return err
		}
		return e.reconcileConfirmed(rt)

	case queue.KindDelete:
		err := e.remote.DeleteTopic(ctx, a.TopicID)
		if remote.IsNotFound(err) {
			e.logger.Printf("Replayed delete for %s: already gone remotely", a.TopicID)
			return nil
		}
		return err

	case queue.KindCompleteReview:
		rt, _, err := e.remote.CompleteReview(ctx, a.TopicID)
		if remote.IsNotFound(err) || remote.IsConflict(err) {
			e.logger.Printf("Replayed review for %s: already satisfied remotely", a.TopicID)
			return nil
		}
		if err != nil {
			return err
		}
		return e.reconcileConfirmed(rt)

	default:
		// An unknown kind would wedge the queue forever; log and drop.
		e.logger.Printf("Dropping unknown queued action kind %q (seq %d)", a.Kind, a.Seq)
		return nil
	}
}

// replayCreate pushes an offline-created topic to the remote store, then
// swaps the local placeholder id for the canonical one — in the cache
// and in any later queued actions that still reference the placeholder.
func (e *Engine) replayCreate(ctx context.Context, a queue.Action) error {
	var f topic.Fields
	if err := json.Unmarshal(a.Payload, &f); err != nil {
		return fmt.Errorf("corrupt create payload (seq %d): %w", a.Seq, err)
	}
	rt, err := e.remote.CreateTopic(ctx, f)
	if err != nil {
		return err
	}
	if err := e.store.Rekey(a.TopicID, rt); err != nil {
		return err
	}
	if err := e.queue.RewriteTopicID(a.TopicID, rt.ID); err != nil {
		return err
	}
	e.logger.Printf("Replayed create: %s -> %s", a.TopicID, rt.ID)
	return nil
}

// reconcileConfirmed writes a remotely-confirmed topic back into the
// cache. A topic deleted locally while the action was queued is left
// deleted: re-inserting it would resurrect a row whose queued delete is
// still waiting to replay.
func (e *Engine) reconcileConfirmed(t topic.Topic) error {
	if _, err := e.store.Get(t.ID); err != nil {
		var nf *topic.NotFoundError
		if errors.As(err, &nf) {
			return nil
		}
		return err
	}
	return e.store.Upsert(t)
}
