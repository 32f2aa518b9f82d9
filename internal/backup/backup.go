// Package backup serializes the full local state for user-initiated
// export and restores it on import.
//
// Import is all-or-nothing: the document is decoded and every topic
// validated before anything touches the store, and the store swap itself
// is one transaction. A malformed document is an ImportFormatError and
// leaves the cache exactly as it was.
package backup

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/retentionapp/retention/internal/store"
	"github.com/retentionapp/retention/internal/streak"
	"github.com/retentionapp/retention/internal/topic"
)

// Version is the current backup document version.
const Version = 1

// Snapshot is the backup document.
type Snapshot struct {
	Version    int           `json:"version"`
	ExportedAt time.Time     `json:"exportedAt"`
	Topics     []topic.Topic `json:"topics"`
	Streak     streak.State  `json:"streak"`
}

// ImportFormatError reports a backup document that could not be
// accepted. The store is untouched when this is returned.
type ImportFormatError struct {
	Reason string
	Err    error
}

func (e *ImportFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid backup: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid backup: %s", e.Reason)
}

func (e *ImportFormatError) Unwrap() error { return e.Err }

// Export captures the current topics and streak as a snapshot.
func Export(st *store.Store, now time.Time) (Snapshot, error) {
	topics, err := st.List()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read topics for export: %w", err)
	}
	streakState, err := st.Streak()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read streak for export: %w", err)
	}
	if topics == nil {
		topics = []topic.Topic{}
	}
	return Snapshot{
		Version:    Version,
		ExportedAt: now.UTC(),
		Topics:     topics,
		Streak:     streakState,
	}, nil
}

// Encode renders a snapshot as indented JSON.
func Encode(s Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode backup: %w", err)
	}
	return data, nil
}

// Decode parses and fully validates a backup document without touching
// any store.
func Decode(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, &ImportFormatError{Reason: "not valid JSON", Err: err}
	}
	if s.Version != Version {
		return Snapshot{}, &ImportFormatError{Reason: fmt.Sprintf("unsupported version %d (want %d)", s.Version, Version)}
	}
	seen := make(map[string]bool, len(s.Topics))
	for i, t := range s.Topics {
		if err := t.Validate(); err != nil {
			return Snapshot{}, &ImportFormatError{Reason: fmt.Sprintf("topic %d", i), Err: err}
		}
		if seen[t.ID] {
			return Snapshot{}, &ImportFormatError{Reason: fmt.Sprintf("duplicate topic id %s", t.ID)}
		}
		seen[t.ID] = true
	}
	if s.Streak.Count < 0 || s.Streak.Longest < s.Streak.Count {
		return Snapshot{}, &ImportFormatError{Reason: "streak counters are inconsistent"}
	}
	return s, nil
}

// Import validates the document and replaces the store's topics and
// streak wholesale.
func Import(st *store.Store, data []byte) error {
	s, err := Decode(data)
	if err != nil {
		return err
	}
	if err := st.Restore(s.Topics, s.Streak); err != nil {
		return fmt.Errorf("failed to restore backup: %w", err)
	}
	return nil
}
