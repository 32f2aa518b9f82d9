package queue

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/retentionapp/retention/internal/store"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s.RawDB(), nil)
}

func TestEnqueuePeekOrder(t *testing.T) {
	q := openTestQueue(t)

	if err := q.Enqueue(KindCreate, "local-1", map[string]string{"title": "a"}); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(KindUpdate, "local-1", map[string]string{"notes": "b"}); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(KindDelete, "t-2", nil); err != nil {
		t.Fatal(err)
	}

	actions, err := q.PeekAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 3 {
		t.Fatalf("len = %d", len(actions))
	}
	wantKinds := []Kind{KindCreate, KindUpdate, KindDelete}
	for i, a := range actions {
		if a.Kind != wantKinds[i] {
			t.Errorf("action %d kind = %s, want %s", i, a.Kind, wantKinds[i])
		}
	}
	if actions[2].Payload != nil {
		t.Errorf("nil payload should stay nil, got %s", actions[2].Payload)
	}

	var payload map[string]string
	if err := json.Unmarshal(actions[0].Payload, &payload); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if payload["title"] != "a" {
		t.Errorf("payload = %v", payload)
	}
}

func TestDrain_FIFO(t *testing.T) {
	q := openTestQueue(t)
	for _, id := range []string{"t-1", "t-2", "t-3"} {
		if err := q.Enqueue(KindCompleteReview, id, nil); err != nil {
			t.Fatal(err)
		}
	}

	var replayed []string
	result, err := q.Drain(context.Background(), func(ctx context.Context, a Action) error {
		replayed = append(replayed, a.TopicID)
		return nil
	})
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if result.Succeeded != 3 || result.Remaining != 0 {
		t.Errorf("result = %+v", result)
	}
	want := []string{"t-1", "t-2", "t-3"}
	for i := range want {
		if replayed[i] != want[i] {
			t.Fatalf("replay order = %v, want %v", replayed, want)
		}
	}
	if n, _ := q.Len(); n != 0 {
		t.Errorf("queue not empty after full drain: %d", n)
	}
}

func TestDrain_StopsOnFirstFailure(t *testing.T) {
	q := openTestQueue(t)
	for _, id := range []string{"t-1", "t-2", "t-3"} {
		if err := q.Enqueue(KindUpdate, id, nil); err != nil {
			t.Fatal(err)
		}
	}

	boom := errors.New("network down")
	var calls int
	result, err := q.Drain(context.Background(), func(ctx context.Context, a Action) error {
		calls++
		if a.TopicID == "t-2" {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("drain error = %v, want wrapped %v", err, boom)
	}
	if calls != 2 {
		t.Errorf("replay called %d times, want 2 (stop at first failure)", calls)
	}
	if result.Succeeded != 1 || result.Remaining != 2 {
		t.Errorf("result = %+v, want 1 succeeded 2 remaining", result)
	}

	// Failed action stays at the head for the next attempt.
	actions, _ := q.PeekAll()
	if len(actions) != 2 || actions[0].TopicID != "t-2" {
		t.Errorf("queue after failure = %+v", actions)
	}
}

// A rewrite issued while draining (after a queued create is assigned
// its canonical id) must be visible to the actions behind it.
func TestDrain_SeesMidDrainRewrite(t *testing.T) {
	q := openTestQueue(t)
	if err := q.Enqueue(KindCreate, "local-abc", nil); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(KindUpdate, "local-abc", nil); err != nil {
		t.Fatal(err)
	}

	var seen []string
	_, err := q.Drain(context.Background(), func(ctx context.Context, a Action) error {
		seen = append(seen, a.TopicID)
		if a.Kind == KindCreate {
			return q.RewriteTopicID("local-abc", "canonical-1")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[1] != "canonical-1" {
		t.Errorf("replayed ids = %v, want second to use the canonical id", seen)
	}
}

func TestDrain_Cancelled(t *testing.T) {
	q := openTestQueue(t)
	if err := q.Enqueue(KindDelete, "t-1", nil); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := q.Drain(ctx, func(ctx context.Context, a Action) error {
		t.Fatal("replay must not run after cancellation")
		return nil
	})
	if err == nil {
		t.Fatal("cancelled drain should error")
	}
	if result.Remaining != 1 {
		t.Errorf("remaining = %d, want 1", result.Remaining)
	}
}

func TestDropForTopic(t *testing.T) {
	q := openTestQueue(t)
	q.Enqueue(KindCreate, "local-x", nil)
	q.Enqueue(KindUpdate, "local-x", nil)
	q.Enqueue(KindUpdate, "t-keep", nil)

	if err := q.DropForTopic("local-x"); err != nil {
		t.Fatal(err)
	}
	actions, _ := q.PeekAll()
	if len(actions) != 1 || actions[0].TopicID != "t-keep" {
		t.Errorf("queue after drop = %+v", actions)
	}
}

func TestClear(t *testing.T) {
	q := openTestQueue(t)
	q.Enqueue(KindCreate, "t-1", nil)
	if err := q.Clear(); err != nil {
		t.Fatal(err)
	}
	if n, _ := q.Len(); n != 0 {
		t.Errorf("len after clear = %d", n)
	}
}
