// Package schedule derives the 1-4-7 review plan for a topic.
//
// A topic learned on day D is reviewed on D+1, D+4, and D+7. The plan is
// computed once at creation time and never recomputed; the same function
// also serves to validate schedules arriving from the remote store or
// from an imported backup.
package schedule

import (
	"fmt"
	"time"

	"github.com/retentionapp/retention/internal/dates"
)

// Intervals are the review offsets, in calendar days after creation.
var Intervals = [3]int{1, 4, 7}

// Review is a single checkpoint in a topic's review plan.
type Review struct {
	ScheduledDate dates.Date `json:"scheduledDate"`
	ReviewDay     int        `json:"reviewDay"`
	Completed     bool       `json:"completed"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// Reviews computes the three review checkpoints for a topic created on
// start. Deterministic: equal inputs always produce equal output.
func Reviews(start dates.Date) [3]Review {
	var out [3]Review
	for i, days := range Intervals {
		out[i] = Review{
			ScheduledDate: start.AddDays(days),
			ReviewDay:     days,
		}
	}
	return out
}

// Validate checks that reviews is a well-formed 1-4-7 plan anchored at
// start: three entries, review days 1/4/7 in order, and each scheduled
// date exactly start+day.
func Validate(start dates.Date, reviews []Review) error {
	if len(reviews) != len(Intervals) {
		return fmt.Errorf("expected %d reviews, got %d", len(Intervals), len(reviews))
	}
	for i, days := range Intervals {
		r := reviews[i]
		if r.ReviewDay != days {
			return fmt.Errorf("review %d: expected day %d, got %d", i, days, r.ReviewDay)
		}
		if want := start.AddDays(days); !r.ScheduledDate.Equal(want) {
			return fmt.Errorf("review %d: expected scheduled date %s, got %s", i, want, r.ScheduledDate)
		}
	}
	return nil
}
