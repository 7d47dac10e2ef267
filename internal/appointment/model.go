package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

func (s AppointmentStatus) IsValid() bool {
	switch s {
	case StatusScheduled, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

type MemberKind string

const (
	KindPatient   MemberKind = "patient"
	KindPhysician MemberKind = "physician"
)

// Person holds the attributes shared by every clinic member.
type Person struct {
	Name       string
	NationalID string
	Phone      string
}

// Member is implemented only by *Patient and *Physician.
type Member interface {
	Profile() Person
	Kind() MemberKind
	Identify() string
	member()
}

type Patient struct {
	ID uuid.UUID
	Person
	InsurancePlan string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (p *Patient) Profile() Person  { return p.Person }
func (p *Patient) Kind() MemberKind { return KindPatient }
func (p *Patient) member()          {}

func (p *Patient) Identify() string {
	return fmt.Sprintf("Patient %s (national id %s, plan %s)", p.Name, p.NationalID, p.InsurancePlan)
}

type Physician struct {
	ID uuid.UUID
	Person
	License      string
	Specialty    string
	Availability RuleSet
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (p *Physician) Profile() Person  { return p.Person }
func (p *Physician) Kind() MemberKind { return KindPhysician }
func (p *Physician) member()          {}

func (p *Physician) Identify() string {
	return fmt.Sprintf("Dr. %s (license %s, %s)", p.Name, p.License, p.Specialty)
}

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	PhysicianID     uuid.UUID
	Start           time.Time
	DurationMinutes int
	Status          AppointmentStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// End is derived from Start and DurationMinutes.
func (a Appointment) End() time.Time {
	return a.Start.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

func (a Appointment) Active() bool {
	return a.Status != StatusCancelled
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID uuid.UUID
	Status        AppointmentStatus
	CreatedAt     time.Time
}

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
)

func eventForStatus(s AppointmentStatus) string {
	switch s {
	case StatusCancelled:
		return EventAppointmentCancelled
	case StatusCompleted:
		return EventAppointmentCompleted
	default:
		return EventAppointmentBooked
	}
}

// NewPatient is the input accepted by Service.RegisterPatient.
type NewPatient struct {
	Name          string
	NationalID    string
	Phone         string
	InsurancePlan string
}

// NewPhysician is the input accepted by Service.RegisterPhysician.
type NewPhysician struct {
	Name         string
	NationalID   string
	Phone        string
	License      string
	Specialty    string
	Availability RuleSet
}
