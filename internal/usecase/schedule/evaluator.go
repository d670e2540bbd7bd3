package schedule

import "time"

// IsDue reports whether at least one instant described by the
// expression falls in the open-closed interval (lastRun, now]. It is a
// pure function of its inputs: calendar days between the two timestamps
// are walked in order, and for every day whose month, day-of-month and
// day-of-week all match, each hour/minute combination is tested as a
// candidate instant.
//
// The interval is open at lastRun, so a run at the exact last-run
// instant is never due again, and IsDue(e, t, t) is always false.
func (e *Expression) IsDue(lastRun, now time.Time) bool {
	if !now.After(lastRun) {
		return false
	}

	day := midnight(lastRun)
	end := midnight(now)
	for !day.After(end) {
		if e.matchesDay(day) {
			for _, h := range e.hours {
				for _, m := range e.minutes {
					candidate := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
					if candidate.After(lastRun) && !candidate.After(now) {
						return true
					}
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return false
}

// Next returns the first matching instant strictly after from, or the
// zero time when none exists within the search horizon. The horizon of
// four years covers every cron expression that can fire at all,
// including a Feb 29 schedule.
func (e *Expression) Next(from time.Time) time.Time {
	day := midnight(from)
	horizon := day.AddDate(4, 0, 0)
	for !day.After(horizon) {
		if e.matchesDay(day) {
			for _, h := range e.hours {
				for _, m := range e.minutes {
					candidate := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
					if candidate.After(from) {
						return candidate
					}
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}
}

func (e *Expression) matchesDay(day time.Time) bool {
	if !contains(e.months, int(day.Month())) {
		return false
	}
	if !contains(e.daysFor(day.Year(), day.Month()), day.Day()) {
		return false
	}
	return e.matchesWeekday(int(day.Weekday()))
}

// matchesWeekday applies the Sunday alias: a weekday of 0 matches an
// expression naming 7 and vice versa (time.Weekday is already 0-based
// on Sunday, so only the 7 spelling needs aliasing).
func (e *Expression) matchesWeekday(weekday int) bool {
	if contains(e.weekdays, weekday) {
		return true
	}
	return weekday == 0 && contains(e.weekdays, 7)
}

func contains(set []int, v int) bool {
	for _, member := range set {
		if member == v {
			return true
		}
	}
	return false
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
