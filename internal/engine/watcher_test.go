package engine

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestCacheWatcher_FiresOnDatabaseWrite(t *testing.T) {
	dir := t.TempDir()
	fired := make(chan struct{}, 8)

	w, err := NewCacheWatcher(dir, 50*time.Millisecond, func() {
		fired <- struct{}{}
	}, nil)
	if err != nil {
		t.Fatalf("NewCacheWatcher: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "retention.db"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("onChange never fired for a .db write")
	}
}

func TestCacheWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32

	w, err := NewCacheWatcher(dir, 50*time.Millisecond, func() {
		calls.Add(1)
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(300 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("onChange fired %d time(s) for an unrelated file", n)
	}
}

// Rapid writes inside one debounce window collapse into one trigger.
func TestCacheWatcher_Debounces(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32

	w, err := NewCacheWatcher(dir, 150*time.Millisecond, func() {
		calls.Add(1)
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "retention.db")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte{byte(i)}, 0644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(500 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("onChange fired %d time(s), want 1", n)
	}
}

func TestCacheWatcher_StartStop(t *testing.T) {
	w, err := NewCacheWatcher(t.TempDir(), 0, func() {}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err == nil {
		t.Error("second Start should fail")
	}
	w.Stop()
	w.Stop() // idempotent
}
