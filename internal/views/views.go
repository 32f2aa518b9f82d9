// Package views derives presentation aggregates from a topic snapshot.
//
// Everything here is a pure function over the current topic list plus a
// reference "today": nothing is cached, nothing is pushed. Callers pull
// a fresh derivation whenever they render.
package views

import (
	"github.com/retentionapp/retention/internal/dates"
	"github.com/retentionapp/retention/internal/streak"
	"github.com/retentionapp/retention/internal/topic"
)

// Column is one due-review lane on the kanban board, split into on-time
// and overdue entries.
type Column struct {
	Due     []topic.Topic
	Overdue []topic.Topic
}

// Len returns the total number of topics in the column.
func (c Column) Len() int { return len(c.Due) + len(c.Overdue) }

// Board is the kanban snapshot for one day. Every topic lands in at
// most one bucket: Mastered wins, then Today (created today, nothing
// reviewed yet), then the lane of its current due review. Topics whose
// next review is still in the future appear nowhere.
type Board struct {
	Today    []topic.Topic
	Day1     Column
	Day4     Column
	Day7     Column
	Mastered []topic.Topic
}

// Kanban buckets the topics for the given reference date.
func Kanban(topics []topic.Topic, today dates.Date) Board {
	var b Board
	for _, t := range topics {
		switch {
		case t.Completed:
			b.Mastered = append(b.Mastered, t)
		case t.CreatedAt.Equal(today) && t.CurrentStage == 0:
			b.Today = append(b.Today, t)
		default:
			next, ok := t.NextReview()
			if !ok || next.ScheduledDate.After(today) {
				continue
			}
			var col *Column
			switch next.ReviewDay {
			case 1:
				col = &b.Day1
			case 4:
				col = &b.Day4
			case 7:
				col = &b.Day7
			default:
				continue
			}
			if next.ScheduledDate.Before(today) {
				col.Overdue = append(col.Overdue, t)
			} else {
				col.Due = append(col.Due, t)
			}
		}
	}
	return b
}

// EventType distinguishes calendar entries.
type EventType string

const (
	// EventNew marks the day a topic was created.
	EventNew EventType = "new"
	// EventReview marks a scheduled review checkpoint.
	EventReview EventType = "review"
)

// Event is one calendar entry. A topic contributes a "new" event on its
// creation date and one "review" event per checkpoint.
type Event struct {
	TopicID   string     `json:"topicId"`
	Title     string     `json:"title"`
	Type      EventType  `json:"type"`
	Date      dates.Date `json:"date"`
	ReviewDay int        `json:"reviewDay,omitempty"`
	Completed bool       `json:"completed"`
}

// Calendar indexes every event by date.
func Calendar(topics []topic.Topic) map[dates.Date][]Event {
	index := make(map[dates.Date][]Event)
	for _, t := range topics {
		index[t.CreatedAt] = append(index[t.CreatedAt], Event{
			TopicID: t.ID,
			Title:   t.Title,
			Type:    EventNew,
			Date:    t.CreatedAt,
		})
		for _, r := range t.Reviews {
			index[r.ScheduledDate] = append(index[r.ScheduledDate], Event{
				TopicID:   t.ID,
				Title:     t.Title,
				Type:      EventReview,
				Date:      r.ScheduledDate,
				ReviewDay: r.ReviewDay,
				Completed: r.Completed,
			})
		}
	}
	return index
}

// ForDate returns the events on a single date, creation events first.
func ForDate(topics []topic.Topic, date dates.Date) []Event {
	var out []Event
	for _, t := range topics {
		if t.CreatedAt.Equal(date) {
			out = append(out, Event{TopicID: t.ID, Title: t.Title, Type: EventNew, Date: date})
		}
	}
	for _, t := range topics {
		for _, r := range t.Reviews {
			if r.ScheduledDate.Equal(date) {
				out = append(out, Event{
					TopicID:   t.ID,
					Title:     t.Title,
					Type:      EventReview,
					Date:      date,
					ReviewDay: r.ReviewDay,
					Completed: r.Completed,
				})
			}
		}
	}
	return out
}

// Stats is the dashboard summary. Pending counts topics whose current
// review is due today or earlier; Overdue is the strict subset due
// before today.
type Stats struct {
	Total         int `json:"total"`
	Pending       int `json:"pending"`
	Overdue       int `json:"overdue"`
	Mastered      int `json:"mastered"`
	Streak        int `json:"streak"`
	LongestStreak int `json:"longestStreak"`
}

// Dashboard computes the summary for the given reference date.
func Dashboard(topics []topic.Topic, st streak.State, today dates.Date) Stats {
	stats := Stats{
		Total:         len(topics),
		Streak:        st.Count,
		LongestStreak: st.Longest,
	}
	for _, t := range topics {
		if t.Completed {
			stats.Mastered++
			continue
		}
		next, ok := t.NextReview()
		if !ok {
			continue
		}
		if !next.ScheduledDate.After(today) {
			stats.Pending++
			if next.ScheduledDate.Before(today) {
				stats.Overdue++
			}
		}
	}
	return stats
}
