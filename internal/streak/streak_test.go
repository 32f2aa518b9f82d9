package streak

import (
	"testing"

	"github.com/retentionapp/retention/internal/dates"
)

func day(s string) dates.Date { return dates.MustParse(s) }

func TestRecord_FirstActivity(t *testing.T) {
	st := State{}.Record(day("2026-08-28"))
	if st.Count != 1 || st.Longest != 1 {
		t.Errorf("first activity = %+v, want count 1 longest 1", st)
	}
	if !st.LastActivityDate.Equal(day("2026-08-28")) {
		t.Errorf("last activity = %v", st.LastActivityDate)
	}
}

func TestRecord_SameDayIsIdempotent(t *testing.T) {
	st := State{}.Record(day("2026-08-28"))
	again := st.Record(day("2026-08-28"))
	if again != st {
		t.Errorf("same-day record changed state: %+v -> %+v", st, again)
	}
}

func TestRecord_ConsecutiveDays(t *testing.T) {
	st := State{}
	for _, d := range []string{"2026-08-28", "2026-08-29", "2026-08-30"} {
		st = st.Record(day(d))
	}
	if st.Count != 3 || st.Longest != 3 {
		t.Errorf("three consecutive days = %+v", st)
	}
}

// A topic reviewed Monday and Tuesday then skipped until Friday starts
// over at 1, but the best run is remembered.
func TestRecord_GapResets(t *testing.T) {
	st := State{}
	st = st.Record(day("2026-08-24")) // Mon
	st = st.Record(day("2026-08-25")) // Tue
	st = st.Record(day("2026-08-28")) // Fri

	if st.Count != 1 {
		t.Errorf("count after gap = %d, want 1", st.Count)
	}
	if st.Longest != 2 {
		t.Errorf("longest after gap = %d, want 2", st.Longest)
	}
	if !st.LastActivityDate.Equal(day("2026-08-28")) {
		t.Errorf("last activity = %v", st.LastActivityDate)
	}
}

func TestRecord_CrossesMonthBoundary(t *testing.T) {
	st := State{}
	st = st.Record(day("2026-08-31"))
	st = st.Record(day("2026-09-01"))
	if st.Count != 2 {
		t.Errorf("streak should continue across month boundary, got %+v", st)
	}
}

func TestRecord_LongestSurvivesRebuild(t *testing.T) {
	st := State{Count: 5, Longest: 5, LastActivityDate: day("2026-08-20")}
	st = st.Record(day("2026-08-28")) // gap
	st = st.Record(day("2026-08-29"))
	if st.Count != 2 || st.Longest != 5 {
		t.Errorf("rebuild = %+v, want count 2 longest 5", st)
	}
}
