package ledger

import "time"

type civilDay struct {
	year  int
	month time.Month
	day   int
}

func dayOf(t time.Time, loc *time.Location) civilDay {
	y, m, d := t.In(loc).Date()
	return civilDay{y, m, d}
}

func (c civilDay) prev() civilDay {
	y, m, d := time.Date(c.year, c.month, c.day-1, 12, 0, 0, 0, time.UTC).Date()
	return civilDay{y, m, d}
}

// Streak counts the unbroken run of calendar days, in loc, ending at the
// day of the most recent timestamp. times must be ordered newest first.
// Several timestamps on one day count once; a gap or a day that is newer
// than its predecessor ends the run.
func Streak(times []time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.Local
	}
	streak := 0
	var last civilDay
	for i, ts := range times {
		d := dayOf(ts, loc)
		if i == 0 {
			last = d
			streak = 1
			continue
		}
		if d == last {
			continue
		}
		if d != last.prev() {
			break
		}
		last = d
		streak++
	}
	return streak
}
