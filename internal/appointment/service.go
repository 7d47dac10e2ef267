package appointment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
}

func NewService(repo Repository, locker redisclient.Locker) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
	}
}

// Book reserves [start, start+durationMinutes) with a physician for a patient.
// Checks run in a fixed order and the first failure is returned: patient
// exists, physician exists, availability, conflicts. The conflict check and
// the insert run under the physician lock so concurrent bookings for the same
// physician cannot both pass.
func (s *Service) Book(ctx context.Context, patientID, physicianID uuid.UUID, start time.Time, durationMinutes int) (*Appointment, error) {
	var v validator
	v.check(patientID != uuid.Nil, "patient_id is required")
	v.check(physicianID != uuid.Nil, "physician_id is required")
	v.check(!start.IsZero(), "start is required")
	v.check(durationMinutes > 0, "duration_minutes must be positive")
	v.check(durationMinutes <= MaxDurationMinutes, fmt.Sprintf("duration_minutes must be at most %d", MaxDurationMinutes))
	if err := v.err(); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		return nil, lookupErr("load patient", err)
	}

	physician, err := s.repo.GetPhysicianByID(ctx, physicianID)
	if err != nil {
		return nil, lookupErr("load physician", err)
	}

	if err := CheckAvailability(physician.Availability, start, durationMinutes); err != nil {
		return nil, err
	}

	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	var created *Appointment

	err = s.withPhysicianLock(ctx, physicianID, func(lockCtx context.Context) error {
		existing, err := s.repo.ListAppointmentsForPhysicianOnDate(lockCtx, physicianID, start)
		if err != nil {
			return fmt.Errorf("list same-day appointments: %w", err)
		}
		if clash, found := FindConflict(existing, start, end); found {
			return fmt.Errorf("%w: appointment %s from %s to %s",
				ErrConflict, clash.ID, clash.Start.Format("15:04"), clash.End().Format("15:04"))
		}

		appt, err := s.repo.CreateAppointment(lockCtx, Appointment{
			PatientID:       patientID,
			PhysicianID:     physicianID,
			Start:           start,
			DurationMinutes: durationMinutes,
			Status:          StatusScheduled,
		})
		if err != nil {
			if errors.Is(err, ErrConflict) {
				return err
			}
			return fmt.Errorf("create appointment: %w", err)
		}
		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// Cancel moves a scheduled appointment to cancelled. Cancelling an already
// cancelled appointment re-applies the status without error.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCancelled)
}

// Complete moves a scheduled appointment to completed.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCompleted)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, lookupErr("load appointment", err)
	}

	var updated *Appointment
	err = s.withPhysicianLock(ctx, appt.PhysicianID, func(lockCtx context.Context) error {
		// re-read inside the critical section
		current, err := s.repo.GetAppointmentByID(lockCtx, id)
		if err != nil {
			return lookupErr("reload appointment", err)
		}
		if current.Status != StatusScheduled && current.Status != to {
			return fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, current.Status, to)
		}

		updated, err = s.repo.UpdateAppointmentStatus(lockCtx, id, current.Status, to)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return fmt.Errorf("%w: status changed concurrently", ErrInvalidStatusTransition)
			}
			return fmt.Errorf("update appointment status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// CompleteElapsed completes every scheduled appointment that ended at or
// before now. Failures are collected and the rest still run.
func (s *Service) CompleteElapsed(ctx context.Context, now time.Time) (int, error) {
	candidates, err := s.repo.FindElapsedScheduled(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("find elapsed appointments: %w", err)
	}

	var (
		done int
		errs []error
	)
	for _, appt := range candidates {
		_, err := s.Complete(ctx, appt.ID)
		switch {
		case err == nil:
			done++
		case errors.Is(err, ErrInvalidStatusTransition):
			// cancelled in the meantime
		default:
			errs = append(errs, fmt.Errorf("complete appointment %s: %w", appt.ID, err))
		}
	}

	return done, errors.Join(errs...)
}

// RegisterPatient stores a new patient after the uniqueness checks.
func (s *Service) RegisterPatient(ctx context.Context, in NewPatient) (*Patient, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.NationalID = strings.TrimSpace(in.NationalID)
	in.Phone = strings.TrimSpace(in.Phone)
	in.InsurancePlan = strings.TrimSpace(in.InsurancePlan)

	var v validator
	v.check(in.Name != "", "name is required")
	v.check(in.NationalID != "", "national_id is required")
	v.check(in.Phone != "", "phone is required")
	v.check(in.InsurancePlan != "", "insurance_plan is required")
	if err := v.err(); err != nil {
		return nil, err
	}

	if err := s.ensureNationalIDFree(ctx, in.NationalID); err != nil {
		return nil, err
	}

	p, err := s.repo.CreatePatient(ctx, Patient{
		Person:        Person{Name: in.Name, NationalID: in.NationalID, Phone: in.Phone},
		InsurancePlan: in.InsurancePlan,
	})
	if err != nil {
		return nil, storeErr("create patient", err)
	}
	return p, nil
}

// RegisterPhysician stores a new physician after validating the availability
// rules and the national id and license uniqueness.
func (s *Service) RegisterPhysician(ctx context.Context, in NewPhysician) (*Physician, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.NationalID = strings.TrimSpace(in.NationalID)
	in.Phone = strings.TrimSpace(in.Phone)
	in.License = strings.TrimSpace(in.License)
	in.Specialty = strings.TrimSpace(in.Specialty)

	var v validator
	v.check(in.Name != "", "name is required")
	v.check(in.NationalID != "", "national_id is required")
	v.check(in.Phone != "", "phone is required")
	v.check(in.License != "", "license is required")
	v.check(in.Specialty != "", "specialty is required")
	if err := in.Availability.Validate(); err != nil {
		v.check(false, err.Error())
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	if err := s.ensureNationalIDFree(ctx, in.NationalID); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindPhysicianByLicense(ctx, in.License); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrLicenseTaken, in.License)
	} else if !errors.Is(err, ErrPhysicianNotFound) {
		return nil, fmt.Errorf("check license: %w", err)
	}

	rules := in.Availability
	if rules == nil {
		rules = RuleSet{}
	}

	p, err := s.repo.CreatePhysician(ctx, Physician{
		Person:       Person{Name: in.Name, NationalID: in.NationalID, Phone: in.Phone},
		License:      in.License,
		Specialty:    in.Specialty,
		Availability: rules,
	})
	if err != nil {
		return nil, storeErr("create physician", err)
	}
	return p, nil
}

func (s *Service) ensureNationalIDFree(ctx context.Context, nationalID string) error {
	if _, err := s.repo.FindPatientByNationalID(ctx, nationalID); err == nil {
		return fmt.Errorf("%w: %s", ErrNationalIDTaken, nationalID)
	} else if !errors.Is(err, ErrPatientNotFound) {
		return fmt.Errorf("check patient national id: %w", err)
	}

	if _, err := s.repo.FindPhysicianByNationalID(ctx, nationalID); err == nil {
		return fmt.Errorf("%w: %s", ErrNationalIDTaken, nationalID)
	} else if !errors.Is(err, ErrPhysicianNotFound) {
		return fmt.Errorf("check physician national id: %w", err)
	}
	return nil
}

// UpdatePatientContact replaces a patient's phone and insurance plan.
func (s *Service) UpdatePatientContact(ctx context.Context, id uuid.UUID, phone, insurancePlan string) (*Patient, error) {
	phone = strings.TrimSpace(phone)
	insurancePlan = strings.TrimSpace(insurancePlan)

	var v validator
	v.check(phone != "", "phone is required")
	v.check(insurancePlan != "", "insurance_plan is required")
	if err := v.err(); err != nil {
		return nil, err
	}

	p, err := s.repo.UpdatePatientContact(ctx, id, phone, insurancePlan)
	if err != nil {
		return nil, lookupErr("update patient contact", err)
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetPatientByID(ctx, id)
	if err != nil {
		return nil, lookupErr("get patient", err)
	}
	return p, nil
}

func (s *Service) GetPhysician(ctx context.Context, id uuid.UUID) (*Physician, error) {
	p, err := s.repo.GetPhysicianByID(ctx, id)
	if err != nil {
		return nil, lookupErr("get physician", err)
	}
	return p, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, lookupErr("get appointment", err)
	}
	return a, nil
}

// AppointmentHistory returns the status events of an appointment, oldest first.
func (s *Service) AppointmentHistory(ctx context.Context, id uuid.UUID) ([]EventLog, error) {
	if _, err := s.GetAppointment(ctx, id); err != nil {
		return nil, err
	}
	events, err := s.repo.ListAppointmentEvents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list appointment events: %w", err)
	}
	return events, nil
}

func (s *Service) ListPatients(ctx context.Context) ([]Patient, error) {
	patients, err := s.repo.ListPatients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return patients, nil
}

func (s *Service) ListPhysicians(ctx context.Context) ([]Physician, error) {
	physicians, err := s.repo.ListPhysicians(ctx)
	if err != nil {
		return nil, fmt.Errorf("list physicians: %w", err)
	}
	return physicians, nil
}

// ListMembers returns every patient followed by every physician.
func (s *Service) ListMembers(ctx context.Context) ([]Member, error) {
	patients, err := s.ListPatients(ctx)
	if err != nil {
		return nil, err
	}
	physicians, err := s.ListPhysicians(ctx)
	if err != nil {
		return nil, err
	}

	members := make([]Member, 0, len(patients)+len(physicians))
	for i := range patients {
		members = append(members, &patients[i])
	}
	for i := range physicians {
		members = append(members, &physicians[i])
	}
	return members, nil
}

// ListAppointmentsByPatient retrieves appointments for a specific patient
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		return nil, lookupErr("load patient", err)
	}
	appts, err := s.repo.ListAppointmentsByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}

// ListAppointmentsByPhysicianOnDate retrieves a physician's agenda for the
// calendar date of day, cancelled entries included.
func (s *Service) ListAppointmentsByPhysicianOnDate(ctx context.Context, physicianID uuid.UUID, day time.Time) ([]Appointment, error) {
	if _, err := s.repo.GetPhysicianByID(ctx, physicianID); err != nil {
		return nil, lookupErr("load physician", err)
	}
	appts, err := s.repo.ListAppointmentsForPhysicianOnDate(ctx, physicianID, day)
	if err != nil {
		return nil, fmt.Errorf("list appointments by physician: %w", err)
	}
	return appts, nil
}

// FreeSlots lists the start times on day at which a booking of
// durationMinutes would currently succeed. Candidates step by the duration
// from the start of each working interval.
func (s *Service) FreeSlots(ctx context.Context, physicianID uuid.UUID, day time.Time, durationMinutes int) ([]time.Time, error) {
	if durationMinutes <= 0 || durationMinutes > MaxDurationMinutes {
		return nil, &ValidationError{Fields: []string{fmt.Sprintf("duration_minutes must be between 1 and %d", MaxDurationMinutes)}}
	}

	physician, err := s.repo.GetPhysicianByID(ctx, physicianID)
	if err != nil {
		return nil, lookupErr("load physician", err)
	}

	existing, err := s.repo.ListAppointmentsForPhysicianOnDate(ctx, physicianID, day)
	if err != nil {
		return nil, fmt.Errorf("list same-day appointments: %w", err)
	}

	midnight, _ := DayBounds(day)
	step := time.Duration(durationMinutes) * time.Minute
	seen := make(map[time.Time]struct{})
	var slots []time.Time

	for _, iv := range physician.Availability.Intervals(WeekdayOf(midnight)) {
		for offset := iv.Start; offset+step <= iv.End; offset += step {
			start := midnight.Add(offset)
			if _, dup := seen[start]; dup {
				continue
			}
			if !IsWithinAvailability(physician.Availability, start, durationMinutes) {
				continue
			}
			if HasConflict(existing, start, start.Add(step)) {
				continue
			}
			seen[start] = struct{}{}
			slots = append(slots, start)
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	return slots, nil
}

func (s *Service) withPhysicianLock(ctx context.Context, physicianID uuid.UUID, fn func(ctx context.Context) error) error {
	err := s.locker.WithPhysicianLock(ctx, physicianID, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrScheduleBusy
	}
	return err
}

// lookupErr passes not-found sentinels through untouched and wraps the rest.
func lookupErr(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func storeErr(op string, err error) error {
	if errors.Is(err, ErrDuplicateIdentifier) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
