package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps everything in process memory. It backs STORE=memory
// and the service tests.
type MemoryRepository struct {
	mu           sync.RWMutex
	patients     map[uuid.UUID]Patient
	physicians   map[uuid.UUID]Physician
	appointments map[uuid.UUID]Appointment
	events       []EventLog
	now          func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients:     make(map[uuid.UUID]Patient),
		physicians:   make(map[uuid.UUID]Physician),
		appointments: make(map[uuid.UUID]Appointment),
		now:          time.Now,
	}
}

var _ Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetPhysicianByID(_ context.Context, id uuid.UUID) (*Physician, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.physicians[id]
	if !ok {
		return nil, ErrPhysicianNotFound
	}
	p.Availability = cloneRules(p.Availability)
	return &p, nil
}

func (r *MemoryRepository) ListPatients(_ context.Context) ([]Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Patient, 0, len(r.patients))
	for _, p := range r.patients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepository) ListPhysicians(_ context.Context) ([]Physician, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Physician, 0, len(r.physicians))
	for _, p := range r.physicians {
		p.Availability = cloneRules(p.Availability)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepository) FindPatientByNationalID(_ context.Context, nationalID string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.patients {
		if p.NationalID == nationalID {
			return &p, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (r *MemoryRepository) FindPhysicianByNationalID(_ context.Context, nationalID string) (*Physician, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.physicians {
		if p.NationalID == nationalID {
			p.Availability = cloneRules(p.Availability)
			return &p, nil
		}
	}
	return nil, ErrPhysicianNotFound
}

func (r *MemoryRepository) FindPhysicianByLicense(_ context.Context, license string) (*Physician, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.physicians {
		if p.License == license {
			p.Availability = cloneRules(p.Availability)
			return &p, nil
		}
	}
	return nil, ErrPhysicianNotFound
}

func (r *MemoryRepository) CreatePatient(_ context.Context, p Patient) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.patients {
		if existing.NationalID == p.NationalID {
			return nil, ErrNationalIDTaken
		}
	}
	now := r.now()
	p.ID = uuid.New()
	p.CreatedAt, p.UpdatedAt = now, now
	r.patients[p.ID] = p
	return &p, nil
}

func (r *MemoryRepository) CreatePhysician(_ context.Context, p Physician) (*Physician, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.physicians {
		if existing.NationalID == p.NationalID {
			return nil, ErrNationalIDTaken
		}
		if existing.License == p.License {
			return nil, ErrLicenseTaken
		}
	}
	now := r.now()
	p.ID = uuid.New()
	p.Availability = cloneRules(p.Availability)
	p.CreatedAt, p.UpdatedAt = now, now
	r.physicians[p.ID] = p
	return &p, nil
}

func (r *MemoryRepository) UpdatePatientContact(_ context.Context, id uuid.UUID, phone, insurancePlan string) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	p.Phone = phone
	p.InsurancePlan = insurancePlan
	p.UpdatedAt = r.now()
	r.patients[id] = p
	return &p, nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID) ([]Appointment, error) {
	return r.filterAppointments(func(a Appointment) bool {
		return a.PatientID == patientID
	}), nil
}

func (r *MemoryRepository) ListAppointmentsForPhysicianOnDate(_ context.Context, physicianID uuid.UUID, day time.Time) ([]Appointment, error) {
	from, to := DayBounds(day)
	return r.filterAppointments(func(a Appointment) bool {
		return a.PhysicianID == physicianID && !a.Start.Before(from) && a.Start.Before(to)
	}), nil
}

func (r *MemoryRepository) FindElapsedScheduled(_ context.Context, now time.Time) ([]Appointment, error) {
	return r.filterAppointments(func(a Appointment) bool {
		return a.Status == StatusScheduled && !a.End().After(now)
	}), nil
}

func (r *MemoryRepository) filterAppointments(keep func(Appointment) bool) []Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Appointment
	for _, a := range r.appointments {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func (r *MemoryRepository) CreateAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.patients[a.PatientID]; !ok {
		return nil, ErrPatientNotFound
	}
	if _, ok := r.physicians[a.PhysicianID]; !ok {
		return nil, ErrPhysicianNotFound
	}
	now := r.now()
	a.ID = uuid.New()
	a.CreatedAt, a.UpdatedAt = now, now
	r.appointments[a.ID] = a
	r.appendEvent(a, now)
	return &a, nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	now := r.now()
	a.Status = to
	a.UpdatedAt = now
	r.appointments[id] = a
	r.appendEvent(a, now)
	return &a, nil
}

func (r *MemoryRepository) appendEvent(a Appointment, at time.Time) {
	r.events = append(r.events, EventLog{
		ID:            int64(len(r.events) + 1),
		EventType:     eventForStatus(a.Status),
		AppointmentID: a.ID,
		Status:        a.Status,
		CreatedAt:     at,
	})
}

func (r *MemoryRepository) ListAppointmentEvents(_ context.Context, appointmentID uuid.UUID) ([]EventLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []EventLog
	for _, ev := range r.events {
		if ev.AppointmentID == appointmentID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func cloneRules(rs RuleSet) RuleSet {
	if rs == nil {
		return nil
	}
	out := make(RuleSet, len(rs))
	for day, intervals := range rs {
		out[day] = append([]string(nil), intervals...)
	}
	return out
}
