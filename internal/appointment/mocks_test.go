package appointment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// stubRepository records the calls it sees and forwards them to the embedded
// Repository unless a func field overrides the method. With a nil Repository
// any call that is not overridden panics.
type stubRepository struct {
	Repository

	GetPatientByIDFunc    func(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetPhysicianByIDFunc  func(ctx context.Context, id uuid.UUID) (*Physician, error)
	CreateAppointmentFunc func(ctx context.Context, a Appointment) (*Appointment, error)

	mu    sync.Mutex
	calls []string
}

func (s *stubRepository) record(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
}

func (s *stubRepository) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stubRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	s.record("GetPatientByID")
	if s.GetPatientByIDFunc != nil {
		return s.GetPatientByIDFunc(ctx, id)
	}
	return s.Repository.GetPatientByID(ctx, id)
}

func (s *stubRepository) GetPhysicianByID(ctx context.Context, id uuid.UUID) (*Physician, error) {
	s.record("GetPhysicianByID")
	if s.GetPhysicianByIDFunc != nil {
		return s.GetPhysicianByIDFunc(ctx, id)
	}
	return s.Repository.GetPhysicianByID(ctx, id)
}

func (s *stubRepository) ListAppointmentsForPhysicianOnDate(ctx context.Context, physicianID uuid.UUID, day time.Time) ([]Appointment, error) {
	s.record("ListAppointmentsForPhysicianOnDate")
	return s.Repository.ListAppointmentsForPhysicianOnDate(ctx, physicianID, day)
}

func (s *stubRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	s.record("CreateAppointment")
	if s.CreateAppointmentFunc != nil {
		return s.CreateAppointmentFunc(ctx, a)
	}
	return s.Repository.CreateAppointment(ctx, a)
}

// stubLocker runs fn directly unless Err is set.
type stubLocker struct {
	Err   error
	calls int
}

func (l *stubLocker) WithPhysicianLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	l.calls++
	if l.Err != nil {
		return l.Err
	}
	return fn(ctx)
}
