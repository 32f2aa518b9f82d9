// Package streak tracks consecutive days of review activity.
package streak

import "github.com/retentionapp/retention/internal/dates"

// State is the streak counter. Count is the current run of consecutive
// active days, Longest the historical maximum, LastActivityDate the most
// recent day with at least one completed review.
//
// Invariant: Longest >= Count whenever Count > 0.
type State struct {
	Count            int        `json:"count"`
	Longest          int        `json:"longest"`
	LastActivityDate dates.Date `json:"lastActivityDate"`
}

// Record returns the state after review activity on the given date.
// Pure function; the receiver is not modified.
//
// Same-day activity is idempotent: completing five reviews on one day
// counts that day once. Activity on the day after LastActivityDate
// extends the run; anything else (including first-ever activity) starts
// a new run at 1. Longest never decreases.
func (s State) Record(on dates.Date) State {
	if !s.LastActivityDate.IsZero() && on.Equal(s.LastActivityDate) {
		return s
	}

	next := s
	if !s.LastActivityDate.IsZero() && on.Equal(s.LastActivityDate.AddDays(1)) {
		next.Count = s.Count + 1
	} else {
		next.Count = 1
	}
	next.LastActivityDate = on
	if next.Count > next.Longest {
		next.Longest = next.Count
	}
	return next
}
