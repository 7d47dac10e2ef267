package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// WallClockLayout is used for every appointment timestamp on the wire.
// Times carry no zone.
const WallClockLayout = "2006-01-02T15:04:05"

const DateLayout = "2006-01-02"

var acceptedStartLayouts = []string{
	WallClockLayout,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseWallClock accepts the wall-clock layouts used on the wire and drops any
// zone information the caller sends.
func ParseWallClock(s string) (time.Time, bool) {
	for _, layout := range acceptedStartLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC), true
	}
	return time.Time{}, false
}

type RegisterPatientRequest struct {
	Name          string `json:"name"`
	NationalID    string `json:"national_id"`
	Phone         string `json:"phone"`
	InsurancePlan string `json:"insurance_plan"`
}

type UpdateContactRequest struct {
	Phone         string `json:"phone"`
	InsurancePlan string `json:"insurance_plan"`
}

type RegisterPhysicianRequest struct {
	Name         string              `json:"name"`
	NationalID   string              `json:"national_id"`
	Phone        string              `json:"phone"`
	License      string              `json:"license"`
	Specialty    string              `json:"specialty"`
	Availability appointment.RuleSet `json:"availability"`
}

type BookAppointmentRequest struct {
	PatientID       string `json:"patient_id"`
	PhysicianID     string `json:"physician_id"`
	Start           string `json:"start"`
	DurationMinutes int    `json:"duration_minutes"`
}

type PatientResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	NationalID    string    `json:"national_id"`
	Phone         string    `json:"phone"`
	InsurancePlan string    `json:"insurance_plan"`
}

func newPatientResponse(p *appointment.Patient) PatientResponse {
	return PatientResponse{
		ID:            p.ID,
		Name:          p.Name,
		NationalID:    p.NationalID,
		Phone:         p.Phone,
		InsurancePlan: p.InsurancePlan,
	}
}

type PhysicianResponse struct {
	ID           uuid.UUID           `json:"id"`
	Name         string              `json:"name"`
	NationalID   string              `json:"national_id"`
	Phone        string              `json:"phone"`
	License      string              `json:"license"`
	Specialty    string              `json:"specialty"`
	Availability appointment.RuleSet `json:"availability"`
}

func newPhysicianResponse(p *appointment.Physician) PhysicianResponse {
	return PhysicianResponse{
		ID:           p.ID,
		Name:         p.Name,
		NationalID:   p.NationalID,
		Phone:        p.Phone,
		License:      p.License,
		Specialty:    p.Specialty,
		Availability: p.Availability,
	}
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	PhysicianID     uuid.UUID `json:"physician_id"`
	Start           string    `json:"start"`
	End             string    `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
}

func newAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		PhysicianID:     a.PhysicianID,
		Start:           a.Start.Format(WallClockLayout),
		End:             a.End().Format(WallClockLayout),
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
	}
}

func newAppointmentList(appts []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, newAppointmentResponse(&appts[i]))
	}
	return out
}

type MemberResponse struct {
	Kind        string    `json:"kind"`
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	NationalID  string    `json:"national_id"`
	Phone       string    `json:"phone"`
	Description string    `json:"description"`
}

func newMemberResponse(m appointment.Member) MemberResponse {
	resp := MemberResponse{
		Kind:        string(m.Kind()),
		Name:        m.Profile().Name,
		NationalID:  m.Profile().NationalID,
		Phone:       m.Profile().Phone,
		Description: m.Identify(),
	}
	switch v := m.(type) {
	case *appointment.Patient:
		resp.ID = v.ID
	case *appointment.Physician:
		resp.ID = v.ID
	}
	return resp
}

type EventResponse struct {
	ID        int64     `json:"id"`
	EventType string    `json:"event_type"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type FreeSlotsResponse struct {
	PhysicianID     uuid.UUID `json:"physician_id"`
	Date            string    `json:"date"`
	DurationMinutes int       `json:"duration_minutes"`
	Slots           []string  `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
