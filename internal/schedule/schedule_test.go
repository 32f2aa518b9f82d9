package schedule

import (
	"testing"

	"github.com/retentionapp/retention/internal/dates"
)

func TestReviews(t *testing.T) {
	tests := []struct {
		name  string
		start string
		want  [3]string
	}{
		{
			name:  "plain week",
			start: "2026-08-28",
			want:  [3]string{"2026-08-29", "2026-09-01", "2026-09-04"},
		},
		{
			name:  "spans month boundary",
			start: "2026-01-30",
			want:  [3]string{"2026-01-31", "2026-02-03", "2026-02-06"},
		},
		{
			name:  "spans year boundary",
			start: "2025-12-29",
			want:  [3]string{"2025-12-30", "2026-01-02", "2026-01-05"},
		},
		{
			name:  "leap february",
			start: "2024-02-27",
			want:  [3]string{"2024-02-28", "2024-03-02", "2024-03-05"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reviews(dates.MustParse(tt.start))
			for i, want := range tt.want {
				if got[i].ScheduledDate.String() != want {
					t.Errorf("review %d scheduled %s, want %s", i, got[i].ScheduledDate, want)
				}
				if got[i].ReviewDay != Intervals[i] {
					t.Errorf("review %d day = %d, want %d", i, got[i].ReviewDay, Intervals[i])
				}
				if got[i].Completed || got[i].CompletedAt != nil {
					t.Errorf("review %d should start incomplete", i)
				}
			}
		})
	}
}

// The plan is a pure function of the start date: same input, same
// output, and each checkpoint is exactly start+interval.
func TestReviews_Deterministic(t *testing.T) {
	start := dates.MustParse("2026-03-15")
	a := Reviews(start)
	b := Reviews(start)
	for i := range a {
		if !a[i].ScheduledDate.Equal(b[i].ScheduledDate) {
			t.Fatalf("plan not deterministic at %d: %v vs %v", i, a[i], b[i])
		}
		if got := start.DaysUntil(a[i].ScheduledDate); got != Intervals[i] {
			t.Errorf("review %d is %d days out, want %d", i, got, Intervals[i])
		}
	}
}

func TestValidate(t *testing.T) {
	start := dates.MustParse("2026-08-28")
	good := Reviews(start)

	if err := Validate(start, good[:]); err != nil {
		t.Fatalf("valid plan rejected: %v", err)
	}

	t.Run("wrong count", func(t *testing.T) {
		if err := Validate(start, good[:2]); err == nil {
			t.Error("two-review plan accepted")
		}
	})
	t.Run("wrong date", func(t *testing.T) {
		bad := good
		bad[1].ScheduledDate = start.AddDays(5)
		if err := Validate(start, bad[:]); err == nil {
			t.Error("shifted checkpoint accepted")
		}
	})
	t.Run("wrong day label", func(t *testing.T) {
		bad := good
		bad[2].ReviewDay = 6
		if err := Validate(start, bad[:]); err == nil {
			t.Error("mislabeled checkpoint accepted")
		}
	})
}
