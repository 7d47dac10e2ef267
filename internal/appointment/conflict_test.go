package appointment

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func appt(start string, minutes int, status AppointmentStatus) Appointment {
	return Appointment{
		ID:              uuid.New(),
		Start:           at(monday, start),
		DurationMinutes: minutes,
		Status:          status,
	}
}

func TestHasConflict(t *testing.T) {
	existing := []Appointment{appt("10:00", 30, StatusScheduled)}

	tests := []struct {
		name  string
		start string
		end   string
		want  bool
	}{
		{"ends where existing starts", "09:30", "10:00", false},
		{"starts where existing ends", "10:30", "11:00", false},
		{"overlaps the last minute", "10:29", "10:59", true},
		{"overlaps the first minute", "09:31", "10:01", true},
		{"identical window", "10:00", "10:30", true},
		{"contains existing", "09:00", "11:00", true},
		{"inside existing", "10:10", "10:20", true},
		{"far away", "14:00", "15:00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasConflict(existing, at(monday, tt.start), at(monday, tt.end)))
		})
	}
}

func TestHasConflict_Statuses(t *testing.T) {
	start, end := at(monday, "10:00"), at(monday, "10:30")

	assert.False(t, HasConflict(nil, start, end))
	assert.False(t, HasConflict([]Appointment{appt("10:00", 30, StatusCancelled)}, start, end))
	assert.True(t, HasConflict([]Appointment{appt("10:00", 30, StatusCompleted)}, start, end))
}

func TestFindConflict_ReturnsClashingAppointment(t *testing.T) {
	cancelled := appt("10:00", 60, StatusCancelled)
	clash := appt("10:15", 30, StatusScheduled)

	got, found := FindConflict([]Appointment{cancelled, appt("08:00", 30, StatusScheduled), clash},
		at(monday, "10:00"), at(monday, "10:30"))

	assert.True(t, found)
	assert.Equal(t, clash.ID, got.ID)
}
