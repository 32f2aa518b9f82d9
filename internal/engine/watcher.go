package engine

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// CacheWatcher watches the data directory for writes made by other
// retention processes (a CLI invocation while the daemon runs) and
// triggers a debounced sync so their queued actions replay promptly.
type CacheWatcher struct {
	dir      string
	debounce time.Duration
	onChange func()
	logger   *log.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewCacheWatcher creates a watcher over the data directory. onChange is
// invoked at most once per debounce window. If logger is nil, a default
// logger writing to stderr is used.
func NewCacheWatcher(dir string, debounce time.Duration, onChange func(), logger *log.Logger) (*CacheWatcher, error) {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[watcher] ", log.LstdFlags)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &CacheWatcher{
		dir:      dir,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		watcher:  w,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; call Stop to shut down.
func (c *CacheWatcher) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("watcher already running")
	}
	if err := c.watcher.Add(c.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", c.dir, err)
	}
	c.running = true
	c.wg.Add(1)
	go c.loop()
	c.logger.Printf("Watching %s", c.dir)
	return nil
}

// Stop shuts the watcher down and waits for the event loop to exit.
func (c *CacheWatcher) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	close(c.done)
	_ = c.watcher.Close()
	c.wg.Wait()
}

func (c *CacheWatcher) loop() {
	defer c.wg.Done()

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-c.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if !c.relevant(event) {
				continue
			}
			// Batch rapid writes into one trigger.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(c.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Printf("Watch error: %v", err)
		case <-fire:
			c.logger.Printf("Cache changed externally, triggering sync")
			c.onChange()
		}
	}
}

// relevant filters the event stream down to database writes. Our own
// connection's WAL traffic also lands here; the debounce window keeps
// that from turning into a sync storm.
func (c *CacheWatcher) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
		return false
	}
	ext := filepath.Ext(event.Name)
	return ext == ".db" || ext == ".db-wal"
}
