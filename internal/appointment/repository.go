package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all storage interactions needed by the service.
// Lookups return the matching ErrXNotFound sentinel when nothing matches.
// Identifiers are assigned by the repository on create.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetPhysicianByID(ctx context.Context, id uuid.UUID) (*Physician, error)
	ListPatients(ctx context.Context) ([]Patient, error)
	ListPhysicians(ctx context.Context) ([]Physician, error)

	// Uniqueness lookups
	FindPatientByNationalID(ctx context.Context, nationalID string) (*Patient, error)
	FindPhysicianByNationalID(ctx context.Context, nationalID string) (*Physician, error)
	FindPhysicianByLicense(ctx context.Context, license string) (*Physician, error)

	CreatePatient(ctx context.Context, p Patient) (*Patient, error)
	CreatePhysician(ctx context.Context, p Physician) (*Physician, error)
	UpdatePatientContact(ctx context.Context, id uuid.UUID, phone, insurancePlan string) (*Patient, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)
	// For conflict checks: every appointment of the physician starting on the
	// calendar date of day, whatever its status.
	ListAppointmentsForPhysicianOnDate(ctx context.Context, physicianID uuid.UUID, day time.Time) ([]Appointment, error)

	// Creation and status writes also append to the appointment's event history.
	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	// UpdateAppointmentStatus only applies when the stored status equals from;
	// otherwise it returns ErrAppointmentNotFound.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	// Completion worker
	FindElapsedScheduled(ctx context.Context, now time.Time) ([]Appointment, error)

	ListAppointmentEvents(ctx context.Context, appointmentID uuid.UUID) ([]EventLog, error)
}
