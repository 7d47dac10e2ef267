package appointment

import "time"

// HasConflict reports whether [start, end) overlaps any non-cancelled
// appointment in existing. Callers pass the same-day slice for one physician.
func HasConflict(existing []Appointment, start, end time.Time) bool {
	_, found := FindConflict(existing, start, end)
	return found
}

// FindConflict returns the first active appointment overlapping [start, end).
// Touching windows do not overlap.
func FindConflict(existing []Appointment, start, end time.Time) (Appointment, bool) {
	for _, a := range existing {
		if !a.Active() {
			continue
		}
		if start.Before(a.End()) && a.Start.Before(end) {
			return a, true
		}
	}
	return Appointment{}, false
}
