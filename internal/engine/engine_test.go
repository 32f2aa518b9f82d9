package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/retentionapp/retention/internal/dates"
	"github.com/retentionapp/retention/internal/queue"
	"github.com/retentionapp/retention/internal/remote"
	"github.com/retentionapp/retention/internal/store"
	"github.com/retentionapp/retention/internal/topic"
)

// fakeRemote is an in-memory remote store with a reachability switch.
type fakeRemote struct {
	mu          sync.Mutex
	unreachable bool
	failOps     map[string]bool
	topics      map[string]topic.Topic
	nextID      int
	streak      int

	calls []string // method call order
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		failOps: make(map[string]bool),
		topics:  make(map[string]topic.Topic),
	}
}

func (f *fakeRemote) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.unreachable || f.failOps[name] {
		return &remote.TransportError{Op: name, Err: errors.New("connection refused")}
	}
	return nil
}

func (f *fakeRemote) setUnreachable(v bool) {
	f.mu.Lock()
	f.unreachable = v
	f.mu.Unlock()
}

func (f *fakeRemote) failOn(name string) {
	f.mu.Lock()
	f.failOps[name] = true
	f.mu.Unlock()
}

func (f *fakeRemote) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeRemote) snapshotCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) Probe(ctx context.Context) error { return f.record("Probe") }

func (f *fakeRemote) Register(ctx context.Context) (remote.User, error) {
	if err := f.record("Register"); err != nil {
		return remote.User{}, err
	}
	return remote.User{ID: "user-1"}, nil
}

func (f *fakeRemote) ListTopics(ctx context.Context) ([]topic.Topic, error) {
	if err := f.record("ListTopics"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]topic.Topic, 0, len(f.topics))
	for _, t := range f.topics {
		out = append(out, t.Clone())
	}
	return out, nil
}

func (f *fakeRemote) CreateTopic(ctx context.Context, fl topic.Fields) (topic.Topic, error) {
	if err := f.record("CreateTopic"); err != nil {
		return topic.Topic{}, err
	}
	t, err := topic.New(fl)
	if err != nil {
		return topic.Topic{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t.ID = fmt.Sprintf("srv-%d", f.nextID)
	f.topics[t.ID] = t
	return t.Clone(), nil
}

func (f *fakeRemote) UpdateTopic(ctx context.Context, id string, u topic.Update) (topic.Topic, error) {
	if err := f.record("UpdateTopic"); err != nil {
		return topic.Topic{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.topics[id]
	if !ok {
		return topic.Topic{}, &remote.APIError{Op: "update", Status: 404, Message: "not found"}
	}
	if err := t.Apply(u); err != nil {
		return topic.Topic{}, err
	}
	f.topics[id] = t
	return t.Clone(), nil
}

func (f *fakeRemote) DeleteTopic(ctx context.Context, id string) error {
	if err := f.record("DeleteTopic"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.topics[id]; !ok {
		return &remote.APIError{Op: "delete", Status: 404, Message: "not found"}
	}
	delete(f.topics, id)
	return nil
}

func (f *fakeRemote) CompleteReview(ctx context.Context, id string) (topic.Topic, int, error) {
	if err := f.record("CompleteReview"); err != nil {
		return topic.Topic{}, 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.topics[id]
	if !ok {
		return topic.Topic{}, 0, &remote.APIError{Op: "review", Status: 404, Message: "not found"}
	}
	if err := t.AdvanceReview(f.Now()); err != nil {
		return topic.Topic{}, 0, &remote.APIError{Op: "review", Status: 409, Message: "all reviews completed"}
	}
	f.topics[id] = t
	f.streak++
	return t.Clone(), f.streak, nil
}

func (f *fakeRemote) Today() dates.Date { return dates.MustParse("2026-08-28") }

func (f *fakeRemote) Now() time.Time {
	return time.Date(2026, time.August, 28, 12, 0, 0, 0, time.UTC)
}

func newTestEngine(t *testing.T, rm Remote) *Engine {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	q := queue.New(s.RawDB(), nil)
	return New(s, q, rm, nil)
}

func TestEngine_StartsOffline(t *testing.T) {
	e := newTestEngine(t, newFakeRemote())
	if e.State() != StateOffline {
		t.Errorf("initial state = %s, want offline", e.State())
	}
}

func TestSyncNow_SuccessGoesOnline(t *testing.T) {
	e := newTestEngine(t, newFakeRemote())
	if err := e.SyncNow(context.Background()); err != nil {
		t.Fatalf("SyncNow: %v", err)
	}
	if e.State() != StateOnline {
		t.Errorf("state = %s, want online", e.State())
	}
}

func TestSyncNow_FailureFallsBackOffline(t *testing.T) {
	rm := newFakeRemote()
	rm.setUnreachable(true)

	var notified []NotifyKind
	s, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	cfg := DefaultConfig()
	cfg.Notifier = func(kind NotifyKind, msg string) { notified = append(notified, kind) }
	e := New(s, queue.New(s.RawDB(), nil), rm, cfg)

	if err := e.SyncNow(context.Background()); err == nil {
		t.Fatal("sync against unreachable remote should fail")
	}
	if e.State() != StateOffline {
		t.Errorf("state after failure = %s, want offline", e.State())
	}
	if len(notified) != 1 || notified[0] != NotifySyncFailed {
		t.Errorf("notifications = %v, want [sync_failed]", notified)
	}
}

func TestSetOnline(t *testing.T) {
	e := newTestEngine(t, newFakeRemote())
	if err := e.SetOnline(context.Background(), true); err != nil {
		t.Fatalf("SetOnline(true): %v", err)
	}
	if e.State() != StateOnline {
		t.Errorf("state = %s, want online", e.State())
	}
	if err := e.SetOnline(context.Background(), false); err != nil {
		t.Fatalf("SetOnline(false): %v", err)
	}
	if e.State() != StateOffline {
		t.Errorf("state = %s, want offline", e.State())
	}
}

// Scenario: add a topic while offline, reconnect, sync. The remote must
// see exactly one create, and the cache row must end up under the
// canonical remote id with no duplicate.
func TestOfflineCreateThenSync(t *testing.T) {
	rm := newFakeRemote()
	e := newTestEngine(t, rm)

	ctx := context.Background()
	created, err := e.CreateTopic(ctx, topic.Fields{Title: "offline topic"})
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	if !topic.IsLocalID(created.ID) {
		t.Errorf("offline create should get a placeholder id, got %q", created.ID)
	}
	if n, _ := e.Queue().Len(); n != 1 {
		t.Fatalf("queue len = %d, want 1", n)
	}
	if rm.callCount("CreateTopic") != 0 {
		t.Fatal("offline create must not touch the remote")
	}

	if err := e.SyncNow(ctx); err != nil {
		t.Fatalf("SyncNow: %v", err)
	}

	if got := rm.callCount("CreateTopic"); got != 1 {
		t.Errorf("remote saw %d creates, want exactly 1", got)
	}
	if n, _ := e.Queue().Len(); n != 0 {
		t.Errorf("queue len after sync = %d, want 0", n)
	}
	topics, err := e.Store().List()
	if err != nil {
		t.Fatal(err)
	}
	if len(topics) != 1 {
		t.Fatalf("cache rows = %d, want 1 (no duplicate)", len(topics))
	}
	if topic.IsLocalID(topics[0].ID) {
		t.Errorf("cache row still under placeholder id %q", topics[0].ID)
	}
	if topics[0].Title != "offline topic" {
		t.Errorf("title = %q", topics[0].Title)
	}
}

// An edit queued behind an offline create must replay against the
// canonical id the create was assigned mid-drain.
func TestOfflineCreateThenEditThenSync(t *testing.T) {
	rm := newFakeRemote()
	e := newTestEngine(t, rm)
	ctx := context.Background()

	created, err := e.CreateTopic(ctx, topic.Fields{Title: "draft"})
	if err != nil {
		t.Fatal(err)
	}
	title := "final title"
	if _, err := e.UpdateTopic(ctx, created.ID, topic.Update{Title: &title}); err != nil {
		t.Fatal(err)
	}

	if err := e.SyncNow(ctx); err != nil {
		t.Fatalf("SyncNow: %v", err)
	}

	if len(rm.topics) != 1 {
		t.Fatalf("remote topics = %d, want 1", len(rm.topics))
	}
	for _, rt := range rm.topics {
		if rt.Title != "final title" {
			t.Errorf("remote title = %q, want the queued edit applied", rt.Title)
		}
	}
}

func TestSyncNow_DrainsBeforeFetch(t *testing.T) {
	rm := newFakeRemote()
	e := newTestEngine(t, rm)
	ctx := context.Background()

	if _, err := e.CreateTopic(ctx, topic.Fields{Title: "queued"}); err != nil {
		t.Fatal(err)
	}
	if err := e.SyncNow(ctx); err != nil {
		t.Fatal(err)
	}

	createAt, listAt := -1, -1
	for i, c := range rm.calls {
		switch c {
		case "CreateTopic":
			if createAt < 0 {
				createAt = i
			}
		case "ListTopics":
			if listAt < 0 {
				listAt = i
			}
		}
	}
	if createAt < 0 || listAt < 0 || createAt > listAt {
		t.Errorf("call order %v: queued create must replay before the fetch", rm.calls)
	}
}

// A failed drain aborts the cycle before the fetch: queued work is never
// discarded by a wholesale replace.
func TestSyncNow_AbortsFetchWhenDrainFails(t *testing.T) {
	rm := newFakeRemote()
	e := newTestEngine(t, rm)
	ctx := context.Background()

	if _, err := e.CreateTopic(ctx, topic.Fields{Title: "stuck"}); err != nil {
		t.Fatal(err)
	}

	// Registration succeeds, then the queued create fails to replay.
	rm.mu.Lock()
	rm.calls = nil
	rm.mu.Unlock()
	rm.failOn("CreateTopic")

	if err := e.SyncNow(ctx); err == nil {
		t.Fatal("sync should fail while the queue cannot drain")
	}
	if rm.callCount("ListTopics") != 0 {
		t.Error("fetch ran despite a failed drain")
	}
	if n, _ := e.Queue().Len(); n != 1 {
		t.Errorf("queue len = %d, want the action preserved", n)
	}
	topics, _ := e.Store().List()
	if len(topics) != 1 {
		t.Errorf("cache rows = %d, local topic must survive the failed sync", len(topics))
	}
}

func TestOnlineCreateSkipsQueue(t *testing.T) {
	rm := newFakeRemote()
	e := newTestEngine(t, rm)
	ctx := context.Background()

	if err := e.SyncNow(ctx); err != nil {
		t.Fatal(err)
	}
	created, err := e.CreateTopic(ctx, topic.Fields{Title: "online"})
	if err != nil {
		t.Fatal(err)
	}
	if topic.IsLocalID(created.ID) {
		t.Errorf("online create should return the canonical id, got %q", created.ID)
	}
	if n, _ := e.Queue().Len(); n != 0 {
		t.Errorf("confirmed mutation must not be queued, len = %d", n)
	}
}

// A remote transport failure during an online mutation degrades to a
// queued action and flips the engine offline, without failing the call.
func TestOnlineMutation_TransportFailureDegrades(t *testing.T) {
	rm := newFakeRemote()
	e := newTestEngine(t, rm)
	ctx := context.Background()

	if err := e.SyncNow(ctx); err != nil {
		t.Fatal(err)
	}
	rm.setUnreachable(true)

	created, err := e.CreateTopic(ctx, topic.Fields{Title: "flaky"})
	if err != nil {
		t.Fatalf("mutation should succeed locally, got %v", err)
	}
	if !topic.IsLocalID(created.ID) {
		t.Errorf("unconfirmed create should keep the placeholder id")
	}
	if n, _ := e.Queue().Len(); n != 1 {
		t.Errorf("queue len = %d, want 1", n)
	}
	if e.State() != StateOffline {
		t.Errorf("state = %s, want offline after transport failure", e.State())
	}
}

func TestDeleteLocalTopicDropsQueuedActions(t *testing.T) {
	rm := newFakeRemote()
	e := newTestEngine(t, rm)
	ctx := context.Background()

	created, err := e.CreateTopic(ctx, topic.Fields{Title: "never synced"})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.DeleteTopic(ctx, created.ID); err != nil {
		t.Fatal(err)
	}

	if n, _ := e.Queue().Len(); n != 0 {
		t.Errorf("queue len = %d, want 0 (create+delete cancel out)", n)
	}
	if err := e.SyncNow(ctx); err != nil {
		t.Fatal(err)
	}
	if len(rm.topics) != 0 {
		t.Errorf("remote topics = %d, the never-synced topic must not appear", len(rm.topics))
	}
}

func TestCompleteReviewOffline(t *testing.T) {
	rm := newFakeRemote()
	e := newTestEngine(t, rm)
	ctx := context.Background()

	created, err := e.CreateTopic(ctx, topic.Fields{Title: "study"})
	if err != nil {
		t.Fatal(err)
	}
	updated, st, err := e.CompleteReview(ctx, created.ID)
	if err != nil {
		t.Fatalf("CompleteReview: %v", err)
	}
	if updated.CurrentStage != 1 {
		t.Errorf("stage = %d, want 1", updated.CurrentStage)
	}
	if st.Count != 1 {
		t.Errorf("streak = %d, want 1", st.Count)
	}
	// create + completeReview queued.
	if n, _ := e.Queue().Len(); n != 2 {
		t.Errorf("queue len = %d, want 2", n)
	}

	if err := e.SyncNow(ctx); err != nil {
		t.Fatalf("SyncNow: %v", err)
	}
	for _, rt := range rm.topics {
		if rt.CurrentStage != 1 {
			t.Errorf("remote stage = %d, want the replayed review applied", rt.CurrentStage)
		}
	}
}

// The fetched remote list replaces the cache wholesale: rows absent
// remotely disappear locally once the queue is empty.
func TestSync_WholesaleReplace(t *testing.T) {
	rm := newFakeRemote()
	e := newTestEngine(t, rm)
	ctx := context.Background()

	if _, err := rm.CreateTopic(ctx, topic.Fields{Title: "remote only", CreatedAt: rm.Today()}); err != nil {
		t.Fatal(err)
	}
	stale, err := topic.New(topic.Fields{Title: "stale local", CreatedAt: rm.Today()})
	if err != nil {
		t.Fatal(err)
	}
	stale.ID = "srv-gone"
	if err := e.Store().Create(stale); err != nil {
		t.Fatal(err)
	}

	rm.mu.Lock()
	rm.calls = nil
	rm.mu.Unlock()
	if err := e.SyncNow(ctx); err != nil {
		t.Fatal(err)
	}

	topics, _ := e.Store().List()
	if len(topics) != 1 || topics[0].Title != "remote only" {
		t.Errorf("cache after sync = %+v, want only the remote topic", topics)
	}
}

func TestSyncNow_Reentrant(t *testing.T) {
	e := newTestEngine(t, newFakeRemote())
	if !e.beginSync() {
		t.Fatal("could not claim sync guard")
	}
	if err := e.SyncNow(context.Background()); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("concurrent SyncNow = %v, want ErrSyncInProgress", err)
	}
	e.endSync()
}

func TestHandleCacheChange_ReplaysPendingActions(t *testing.T) {
	rm := newFakeRemote()
	e := newTestEngine(t, rm)
	ctx := context.Background()

	// Another process queued a create and wrote the cache file.
	if _, err := e.CreateTopic(ctx, topic.Fields{Title: "from second terminal"}); err != nil {
		t.Fatal(err)
	}
	if n, _ := e.Queue().Len(); n != 1 {
		t.Fatalf("queue len = %d, want 1 before the watch event", n)
	}

	e.HandleCacheChange(ctx)

	if n, _ := e.Queue().Len(); n != 0 {
		t.Errorf("queue len = %d, want drained after the watch event", n)
	}
	if got := rm.callCount("CreateTopic"); got != 1 {
		t.Errorf("remote creates = %d, want 1", got)
	}
	if e.State() != StateOnline {
		t.Errorf("state = %s, want %s", e.State(), StateOnline)
	}
}

func TestHandleCacheChange_EmptyQueueIsQuiet(t *testing.T) {
	rm := newFakeRemote()
	e := newTestEngine(t, rm)
	ctx := context.Background()

	// The engine's own ReplaceAll leaves an empty queue behind; the
	// resulting watch event must not start another cycle.
	if err := e.SyncNow(ctx); err != nil {
		t.Fatal(err)
	}
	before := len(rm.snapshotCalls())

	e.HandleCacheChange(ctx)

	if after := len(rm.snapshotCalls()); after != before {
		t.Errorf("remote calls after quiet watch event = %d, want %d", after, before)
	}
}
