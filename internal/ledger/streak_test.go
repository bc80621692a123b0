package ledger

import (
	"testing"
	"time"
)

func TestStreak(t *testing.T) {
	d := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)
	day := func(offset int, hour int) time.Time {
		return time.Date(2025, 3, 1+offset, hour, 0, 0, 0, time.UTC)
	}

	cases := []struct {
		name  string
		times []time.Time
		want  int
	}{
		{"empty", nil, 0},
		{"single", []time.Time{d}, 1},
		{"duplicates then gap", []time.Time{day(0, 20), day(0, 8), day(-1, 9), day(-3, 9)}, 2},
		{"three consecutive", []time.Time{day(0, 1), day(-1, 23), day(-2, 0)}, 3},
		{"out of order ends run", []time.Time{day(0, 1), day(1, 1), day(-1, 1)}, 1},
		{"month boundary", []time.Time{
			time.Date(2025, 3, 1, 1, 0, 0, 0, time.UTC),
			time.Date(2025, 2, 28, 1, 0, 0, 0, time.UTC),
		}, 2},
		{"year boundary", []time.Time{
			time.Date(2025, 1, 1, 1, 0, 0, 0, time.UTC),
			time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC),
		}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Streak(tc.times, time.UTC); got != tc.want {
				t.Errorf("Streak = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestStreakUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	// 20:00 and 10:00 UTC on the same UTC day fall on different local days.
	times := []time.Time{
		time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if got := Streak(times, time.UTC); got != 1 {
		t.Errorf("UTC streak = %d, want 1", got)
	}
	if got := Streak(times, loc); got != 2 {
		t.Errorf("UTC+10 streak = %d, want 2", got)
	}
}
