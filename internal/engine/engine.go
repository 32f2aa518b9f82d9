// Package engine orchestrates offline-first synchronization between the
// local cache and the remote store.
//
// The engine runs a four-state machine (Offline, Syncing, Online,
// SyncFailed). A sync cycle always runs its steps in this order:
//
//  1. register the device (idempotent on the remote side)
//  2. drain the pending-action queue, FIFO
//  3. fetch the full remote topic list
//  4. replace the local cache wholesale
//
// Draining before fetching is the correctness property everything else
// leans on: the fetch reflects the replayed local edits, so the
// wholesale replacement cannot silently discard them. If any step fails
// the cycle aborts — in particular, nothing is fetched or replaced while
// actions are still queued.
//
// At most one cycle runs at a time; the periodic tick and explicit
// "sync now" requests share the same in-progress guard.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/retentionapp/retention/internal/dates"
	"github.com/retentionapp/retention/internal/queue"
	"github.com/retentionapp/retention/internal/remote"
	"github.com/retentionapp/retention/internal/store"
	"github.com/retentionapp/retention/internal/topic"
)

// State is the engine's connectivity/sync state.
type State int

const (
	// StateOffline means the remote store is unreachable; the local
	// cache is authoritative and mutations queue for replay.
	StateOffline State = iota
	// StateSyncing means a sync cycle is in progress.
	StateSyncing
	// StateOnline means the last sync cycle completed.
	StateOnline
	// StateSyncFailed means the last cycle failed; the engine falls
	// back to the local cache until the next retry.
	StateSyncFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateOffline:
		return "offline"
	case StateSyncing:
		return "syncing"
	case StateOnline:
		return "online"
	case StateSyncFailed:
		return "sync_failed"
	default:
		return "unknown"
	}
}

// Remote is the transport contract the engine drives. *remote.Gateway
// implements it; tests substitute a fake.
type Remote interface {
	Probe(ctx context.Context) error
	Register(ctx context.Context) (remote.User, error)
	ListTopics(ctx context.Context) ([]topic.Topic, error)
	CreateTopic(ctx context.Context, f topic.Fields) (topic.Topic, error)
	UpdateTopic(ctx context.Context, id string, u topic.Update) (topic.Topic, error)
	DeleteTopic(ctx context.Context, id string) error
	CompleteReview(ctx context.Context, id string) (topic.Topic, int, error)
	Today() dates.Date
	Now() time.Time
}

// NotifyKind classifies a best-effort user notification.
type NotifyKind string

const (
	NotifySyncPending NotifyKind = "sync_pending"
	NotifySynced      NotifyKind = "synced"
	NotifySyncFailed  NotifyKind = "sync_failed"
)

// Notifier receives best-effort notifications (toasts, log lines).
// Never invoked on a hot path decision; purely informational.
type Notifier func(kind NotifyKind, message string)

// ErrSyncInProgress is returned when a sync is requested while a cycle
// is already running.
var ErrSyncInProgress = errors.New("sync already in progress")

// Config customizes an Engine.
type Config struct {
	// ResyncInterval is the periodic tick: resync while online, retry
	// while offline or failed (default: 5 minutes).
	ResyncInterval time.Duration

	// SyncTimeout bounds one full sync cycle (default: 1 minute).
	SyncTimeout time.Duration

	// Logger for engine activity (default: stderr logger).
	Logger *log.Logger

	// Notifier for best-effort user notifications (default: none).
	Notifier Notifier
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ResyncInterval: 5 * time.Minute,
		SyncTimeout:    time.Minute,
		Logger:         log.New(os.Stderr, "[engine] ", log.LstdFlags),
	}
}

// Engine owns the sync loop and the optimistic mutation path.
type Engine struct {
	store  *store.Store
	queue  *queue.Queue
	remote Remote
	cfg    *Config
	logger *log.Logger

	sched *gocron.Scheduler

	mu      sync.Mutex
	state   State
	syncing bool
}

// New creates an Engine over the given cache, queue, and remote
// transport. The engine starts in StateOffline; connectivity is
// established by the first successful sync cycle.
func New(st *store.Store, q *queue.Queue, rm Remote, cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ResyncInterval <= 0 {
		cfg.ResyncInterval = 5 * time.Minute
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	return &Engine{
		store:  st,
		queue:  q,
		remote: rm,
		cfg:    cfg,
		logger: cfg.Logger,
		state:  StateOffline,
	}
}

// State returns the current engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	prev := e.state
	e.state = s
	e.mu.Unlock()
	if prev != s {
		e.logger.Printf("State %s -> %s", prev, s)
	}
}

// beginSync claims the in-progress guard.
func (e *Engine) beginSync() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.syncing {
		return false
	}
	e.syncing = true
	return true
}

func (e *Engine) endSync() {
	e.mu.Lock()
	e.syncing = false
	e.mu.Unlock()
}

func (e *Engine) notify(kind NotifyKind, message string) {
	if e.cfg.Notifier != nil {
		e.cfg.Notifier(kind, message)
	}
}

// Start schedules the periodic resync tick. Non-blocking; call Stop to
// cancel the schedule.
func (e *Engine) Start() error {
	if e.sched != nil {
		return errors.New("engine already started")
	}
	e.sched = gocron.NewScheduler(time.UTC)
	if _, err := e.sched.Every(e.cfg.ResyncInterval).Do(e.tick); err != nil {
		return fmt.Errorf("failed to schedule resync: %w", err)
	}
	e.sched.StartAsync()
	e.logger.Printf("Periodic resync every %s", e.cfg.ResyncInterval)
	return nil
}

// Stop cancels the periodic tick.
func (e *Engine) Stop() {
	if e.sched != nil {
		e.sched.Stop()
		e.sched = nil
	}
}

// tick is the periodic resync: probe first when disconnected, then run
// a full cycle.
func (e *Engine) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.SyncTimeout)
	defer cancel()

	if s := e.State(); s == StateOffline || s == StateSyncFailed {
		if err := e.remote.Probe(ctx); err != nil {
			e.setState(StateOffline)
			return
		}
	}
	if err := e.SyncNow(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
		e.logger.Printf("Periodic sync failed: %v", err)
	}
}

// HandleCacheChange replays queued work after another process writes
// the cache file. Only a non-empty queue triggers a cycle: the engine's
// own ReplaceAll writes land with an empty queue, so they do not feed
// back into another sync.
func (e *Engine) HandleCacheChange(ctx context.Context) {
	n, err := e.queue.Len()
	if err != nil {
		e.logger.Printf("Queue length check failed: %v", err)
		return
	}
	if n == 0 {
		return
	}
	e.logger.Printf("Cache changed with %d pending action(s), syncing", n)
	if err := e.SyncNow(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
		e.logger.Printf("Sync after cache change failed: %v", err)
	}
}

// SetOnline feeds the engine a platform connectivity event. Going
// offline is recorded immediately; regaining connectivity triggers an
// immediate sync cycle.
func (e *Engine) SetOnline(ctx context.Context, online bool) error {
	if !online {
		e.setState(StateOffline)
		return nil
	}
	err := e.SyncNow(ctx)
	if errors.Is(err, ErrSyncInProgress) {
		return nil
	}
	return err
}

// SyncNow runs one sync cycle: register, drain, fetch, replace. Returns
// ErrSyncInProgress if a cycle is already running.
func (e *Engine) SyncNow(ctx context.Context) error {
	if !e.beginSync() {
		return ErrSyncInProgress
	}
	defer e.endSync()

	e.setState(StateSyncing)
	if err := e.runCycle(ctx); err != nil {
		e.setState(StateSyncFailed)
		e.notify(NotifySyncFailed, "sync failed, working offline")
		e.setState(StateOffline)
		return err
	}
	e.setState(StateOnline)
	e.notify(NotifySynced, "all changes synced")
	return nil
}

func (e *Engine) runCycle(ctx context.Context) error {
	if _, err := e.remote.Register(ctx); err != nil {
		return fmt.Errorf("device registration failed: %w", err)
	}

	// Drain before fetch. The replacing fetch below must observe the
	// replayed writes, or queued local edits would be lost.
	result, err := e.queue.Drain(ctx, e.replay)
	if err != nil {
		return fmt.Errorf("queue drain failed (%d replayed, %d left): %w",
			result.Succeeded, result.Remaining, err)
	}

	topics, err := e.remote.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("remote fetch failed: %w", err)
	}
	if err := e.store.ReplaceAll(topics); err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}
	e.logger.Printf("Synced: %d action(s) replayed, %d topic(s) fetched", result.Succeeded, len(topics))
	return nil
}

// online reports whether mutations should attempt an immediate remote
// call rather than queueing straight away.
func (e *Engine) online() bool {
	return e.State() == StateOnline
}
