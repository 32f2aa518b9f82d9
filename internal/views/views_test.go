package views

import (
	"testing"
	"time"

	"github.com/retentionapp/retention/internal/dates"
	"github.com/retentionapp/retention/internal/streak"
	"github.com/retentionapp/retention/internal/topic"
)

func mkTopic(t *testing.T, title, created string, completedReviews int) topic.Topic {
	t.Helper()
	tp, err := topic.New(topic.Fields{Title: title, CreatedAt: dates.MustParse(created)})
	if err != nil {
		t.Fatalf("topic.New: %v", err)
	}
	now := time.Date(2026, time.September, 10, 9, 0, 0, 0, time.UTC)
	for i := 0; i < completedReviews; i++ {
		if err := tp.AdvanceReview(now); err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
	}
	return tp
}

func TestKanban_Buckets(t *testing.T) {
	today := dates.MustParse("2026-08-29")

	createdToday := mkTopic(t, "brand new", "2026-08-29", 0)
	day1Due := mkTopic(t, "due day 1", "2026-08-28", 0)       // review 1 on 08-29
	day1Overdue := mkTopic(t, "late day 1", "2026-08-25", 0)  // review 1 on 08-26
	day4Due := mkTopic(t, "due day 4", "2026-08-25", 1)       // review 4 on 08-29
	day7Due := mkTopic(t, "due day 7", "2026-08-22", 2)       // review 7 on 08-29
	future := mkTopic(t, "not yet", "2026-08-29", 1)          // next on 09-02
	mastered := mkTopic(t, "done", "2026-08-01", 3)

	board := Kanban([]topic.Topic{
		createdToday, day1Due, day1Overdue, day4Due, day7Due, future, mastered,
	}, today)

	if len(board.Today) != 1 || board.Today[0].Title != "brand new" {
		t.Errorf("Today = %+v", titles(board.Today))
	}
	if len(board.Day1.Due) != 1 || board.Day1.Due[0].Title != "due day 1" {
		t.Errorf("Day1.Due = %v", titles(board.Day1.Due))
	}
	if len(board.Day1.Overdue) != 1 || board.Day1.Overdue[0].Title != "late day 1" {
		t.Errorf("Day1.Overdue = %v", titles(board.Day1.Overdue))
	}
	if len(board.Day4.Due) != 1 || board.Day4.Due[0].Title != "due day 4" {
		t.Errorf("Day4 = %v", titles(board.Day4.Due))
	}
	if len(board.Day7.Due) != 1 || board.Day7.Due[0].Title != "due day 7" {
		t.Errorf("Day7 = %v", titles(board.Day7.Due))
	}
	if len(board.Mastered) != 1 || board.Mastered[0].Title != "done" {
		t.Errorf("Mastered = %v", titles(board.Mastered))
	}

	// "not yet" must appear nowhere.
	total := len(board.Today) + board.Day1.Len() + board.Day4.Len() + board.Day7.Len() + len(board.Mastered)
	if total != 6 {
		t.Errorf("board holds %d topics, want 6 (future review excluded)", total)
	}
}

func titles(ts []topic.Topic) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Title
	}
	return out
}

// Each topic lands in exactly one bucket; mastery wins over everything.
func TestKanban_BucketsAreExclusive(t *testing.T) {
	today := dates.MustParse("2026-08-29")
	masteredToday := mkTopic(t, "mastered fast", "2026-08-29", 3)

	board := Kanban([]topic.Topic{masteredToday}, today)
	if len(board.Mastered) != 1 {
		t.Fatalf("Mastered = %v", titles(board.Mastered))
	}
	if len(board.Today) != 0 {
		t.Errorf("mastered topic also appeared in Today")
	}
}

func TestCalendar(t *testing.T) {
	tp := mkTopic(t, "calendar topic", "2026-08-28", 1)
	index := Calendar([]topic.Topic{tp})

	newEvents := index[dates.MustParse("2026-08-28")]
	if len(newEvents) != 1 || newEvents[0].Type != EventNew {
		t.Errorf("creation day events = %+v", newEvents)
	}

	day1 := index[dates.MustParse("2026-08-29")]
	if len(day1) != 1 || day1[0].Type != EventReview || !day1[0].Completed {
		t.Errorf("day-1 events = %+v", day1)
	}

	day7 := index[dates.MustParse("2026-09-04")]
	if len(day7) != 1 || day7[0].Completed {
		t.Errorf("day-7 events = %+v", day7)
	}

	if len(index) != 4 {
		t.Errorf("calendar has %d dates, want 4 (created + 3 reviews)", len(index))
	}
}

func TestForDate_CreationFirst(t *testing.T) {
	a := mkTopic(t, "reviewed here", "2026-08-25", 0) // day-4 review on 08-29
	b := mkTopic(t, "created here", "2026-08-29", 0)

	events := ForDate([]topic.Topic{a, b}, dates.MustParse("2026-08-29"))
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2 (one creation, one review)", len(events))
	}
	if events[0].Type != EventNew || events[0].Title != "created here" {
		t.Errorf("first event = %+v, want the creation entry", events[0])
	}
}

func TestDashboard(t *testing.T) {
	today := dates.MustParse("2026-08-29")
	topics := []topic.Topic{
		mkTopic(t, "due", "2026-08-28", 0),     // pending
		mkTopic(t, "overdue", "2026-08-25", 0), // pending + overdue
		mkTopic(t, "future", "2026-08-29", 0),  // review tomorrow
		mkTopic(t, "mastered", "2026-08-01", 3),
	}
	st := streak.State{Count: 4, Longest: 9}

	stats := Dashboard(topics, st, today)
	want := Stats{Total: 4, Pending: 2, Overdue: 1, Mastered: 1, Streak: 4, LongestStreak: 9}
	if stats != want {
		t.Errorf("Dashboard = %+v, want %+v", stats, want)
	}
}

func TestDashboard_Empty(t *testing.T) {
	stats := Dashboard(nil, streak.State{}, dates.MustParse("2026-08-29"))
	if stats != (Stats{}) {
		t.Errorf("empty dashboard = %+v", stats)
	}
}
