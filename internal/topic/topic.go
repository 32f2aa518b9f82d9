// Package topic defines the learning-topic model and its invariants.
//
// A topic carries a fixed three-entry review plan derived from its
// creation date by the schedule package. Review progress is a single
// integer stage (0..3) that only ever moves forward, one step per
// completed review.
package topic

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/retentionapp/retention/internal/dates"
	"github.com/retentionapp/retention/internal/schedule"
)

// Priority is the subjective importance of a topic.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority validates a priority string. The empty string maps to
// PriorityMedium, matching the remote store's default.
func ParsePriority(s string) (Priority, error) {
	switch Priority(strings.ToLower(s)) {
	case "":
		return PriorityMedium, nil
	case PriorityLow:
		return PriorityLow, nil
	case PriorityMedium:
		return PriorityMedium, nil
	case PriorityHigh:
		return PriorityHigh, nil
	default:
		return "", &ValidationError{Field: "priority", Reason: fmt.Sprintf("must be low, medium, or high (got %q)", s)}
	}
}

// NumStages is the number of reviews in a plan; stage NumStages means
// every review is done.
const NumStages = len(schedule.Intervals)

// LocalIDPrefix marks ids assigned locally while offline. They are
// replaced by the canonical remote id during sync.
const LocalIDPrefix = "local-"

// NewLocalID returns a placeholder id for an offline-created topic.
func NewLocalID() string {
	return LocalIDPrefix + uuid.NewString()
}

// IsLocalID reports whether id is a placeholder awaiting a canonical id.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// Fields is the caller-supplied content of a new topic.
type Fields struct {
	Title     string     `json:"title"`
	Category  string     `json:"category"`
	Priority  Priority   `json:"priority"`
	Notes     string     `json:"notes"`
	CreatedAt dates.Date `json:"createdAt"`
}

// Topic is a unit of learning with its 1-4-7 review plan.
type Topic struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Category     string            `json:"category"`
	Priority     Priority          `json:"priority"`
	Notes        string            `json:"notes"`
	CreatedAt    dates.Date        `json:"createdAt"`
	Reviews      []schedule.Review `json:"reviews"`
	CurrentStage int               `json:"currentStage"`
	Completed    bool              `json:"completed"`
	CompletedAt  *time.Time        `json:"completedAt,omitempty"`
}

// New builds a topic from fields, assigning a local placeholder id and
// computing the review plan from the creation date. Returns a
// ValidationError for missing or malformed fields.
func New(f Fields) (Topic, error) {
	if strings.TrimSpace(f.Title) == "" {
		return Topic{}, &ValidationError{Field: "title", Reason: "is required"}
	}
	if f.CreatedAt.IsZero() {
		return Topic{}, &ValidationError{Field: "createdAt", Reason: "is required"}
	}
	priority, err := ParsePriority(string(f.Priority))
	if err != nil {
		return Topic{}, err
	}
	category := f.Category
	if category == "" {
		category = "general"
	}

	reviews := schedule.Reviews(f.CreatedAt)
	return Topic{
		ID:        NewLocalID(),
		Title:     strings.TrimSpace(f.Title),
		Category:  category,
		Priority:  priority,
		Notes:     f.Notes,
		CreatedAt: f.CreatedAt,
		Reviews:   reviews[:],
	}, nil
}

// Update is a partial edit of a topic's non-schedule fields.
// Nil pointers leave the field unchanged.
type Update struct {
	Title    *string   `json:"title,omitempty"`
	Category *string   `json:"category,omitempty"`
	Priority *Priority `json:"priority,omitempty"`
	Notes    *string   `json:"notes,omitempty"`
}

// Apply folds the update into the topic. The schedule, stage, and
// completion state are untouched.
func (t *Topic) Apply(u Update) error {
	if u.Title != nil {
		if strings.TrimSpace(*u.Title) == "" {
			return &ValidationError{Field: "title", Reason: "cannot be empty"}
		}
		t.Title = strings.TrimSpace(*u.Title)
	}
	if u.Category != nil {
		t.Category = *u.Category
	}
	if u.Priority != nil {
		priority, err := ParsePriority(string(*u.Priority))
		if err != nil {
			return err
		}
		t.Priority = priority
	}
	if u.Notes != nil {
		t.Notes = *u.Notes
	}
	return nil
}

// AdvanceReview marks the review at the current stage completed and
// moves the stage forward. Returns an InvalidStageError (leaving the
// topic unchanged) when every review is already done.
func (t *Topic) AdvanceReview(now time.Time) error {
	if t.CurrentStage >= NumStages {
		return &InvalidStageError{ID: t.ID, Stage: t.CurrentStage}
	}
	completedAt := now
	t.Reviews[t.CurrentStage].Completed = true
	t.Reviews[t.CurrentStage].CompletedAt = &completedAt
	t.CurrentStage++
	if t.CurrentStage == NumStages {
		t.Completed = true
		t.CompletedAt = &completedAt
	}
	return nil
}

// NextReview returns the review at the current stage, or false when the
// topic is fully reviewed.
func (t Topic) NextReview() (schedule.Review, bool) {
	if t.CurrentStage >= NumStages || t.CurrentStage >= len(t.Reviews) {
		return schedule.Review{}, false
	}
	return t.Reviews[t.CurrentStage], true
}

// Validate checks every topic invariant: required fields, a well-formed
// 1-4-7 plan anchored at CreatedAt, stage within range, stage consistent
// with per-review completion flags, and Completed iff stage == 3.
// Used on every remote or imported topic before it enters the store.
func (t Topic) Validate() error {
	if t.ID == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if strings.TrimSpace(t.Title) == "" {
		return &ValidationError{Field: "title", Reason: "is required"}
	}
	if t.CreatedAt.IsZero() {
		return &ValidationError{Field: "createdAt", Reason: "is required"}
	}
	if _, err := ParsePriority(string(t.Priority)); err != nil {
		return err
	}
	if err := schedule.Validate(t.CreatedAt, t.Reviews); err != nil {
		return &ValidationError{Field: "reviews", Reason: err.Error()}
	}
	if t.CurrentStage < 0 || t.CurrentStage > NumStages {
		return &ValidationError{Field: "currentStage", Reason: fmt.Sprintf("must be 0..%d (got %d)", NumStages, t.CurrentStage)}
	}
	for i, r := range t.Reviews {
		if done := i < t.CurrentStage; r.Completed != done {
			return &ValidationError{Field: "reviews", Reason: fmt.Sprintf("review %d completion disagrees with stage %d", i, t.CurrentStage)}
		}
	}
	if t.Completed != (t.CurrentStage == NumStages) {
		return &ValidationError{Field: "completed", Reason: fmt.Sprintf("must be true exactly when stage is %d", NumStages)}
	}
	return nil
}

// Clone returns a deep copy, so callers can hand out topics without
// sharing the reviews slice.
func (t Topic) Clone() Topic {
	out := t
	out.Reviews = make([]schedule.Review, len(t.Reviews))
	copy(out.Reviews, t.Reviews)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		out.CompletedAt = &at
	}
	for i, r := range t.Reviews {
		if r.CompletedAt != nil {
			at := *r.CompletedAt
			out.Reviews[i].CompletedAt = &at
		}
	}
	return out
}
