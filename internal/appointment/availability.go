package appointment

import "time"

// MaxDurationMinutes bounds a single appointment. Nothing longer fits in one
// calendar day.
const MaxDurationMinutes = 24 * 60

// IsWithinAvailability reports whether [start, start+duration) fits inside a
// single working interval of the weekday start falls on. An interval's end is
// exclusive for the start and inclusive for the end of the appointment.
func IsWithinAvailability(rules RuleSet, start time.Time, durationMinutes int) bool {
	return CheckAvailability(rules, start, durationMinutes) == nil
}

// CheckAvailability is IsWithinAvailability with the reason for a rejection:
// ErrBlockedDate, ErrNotWorkingDay or ErrOutsideWorkingHours.
func CheckAvailability(rules RuleSet, start time.Time, durationMinutes int) error {
	if rules.IsBlocked(start) {
		return ErrBlockedDate
	}
	day := WeekdayOf(start)
	if !rules.WorksOn(day) {
		return ErrNotWorkingDay
	}
	if durationMinutes > MaxDurationMinutes {
		return ErrOutsideWorkingHours
	}

	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	if !sameDate(start, end) {
		return ErrOutsideWorkingHours
	}

	from, to := timeOfDay(start), timeOfDay(end)
	for _, iv := range rules.Intervals(day) {
		if iv.Start <= from && from < iv.End && to <= iv.End {
			return nil
		}
	}
	return ErrOutsideWorkingHours
}

func timeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DayBounds returns [midnight, next midnight) of the calendar date of t.
func DayBounds(t time.Time) (time.Time, time.Time) {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}
