package appointment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

type fixture struct {
	svc       *Service
	repo      *MemoryRepository
	patient   *Patient
	physician *Physician
	seq       int
}

// newFixture registers one patient and one physician working Monday
// 08:00-12:00.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{repo: NewMemoryRepository()}
	f.svc = NewService(f.repo, redisclient.NewLocalLocker())
	f.patient = f.addPatient(t)
	f.physician = f.addPhysician(t, RuleSet{Monday: {"08:00-12:00"}})
	return f
}

func (f *fixture) nextID() string {
	f.seq++
	return fmt.Sprintf("000.000.%03d-00", f.seq)
}

func (f *fixture) addPatient(t *testing.T) *Patient {
	t.Helper()
	p, err := f.svc.RegisterPatient(context.Background(), NewPatient{
		Name:          "Ana Souza",
		NationalID:    f.nextID(),
		Phone:         "+55 11 90000-0000",
		InsurancePlan: "Unimed Basic",
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) addPhysician(t *testing.T, rules RuleSet) *Physician {
	t.Helper()
	p, err := f.svc.RegisterPhysician(context.Background(), NewPhysician{
		Name:         "Carlos Lima",
		NationalID:   f.nextID(),
		Phone:        "+55 11 98888-0000",
		License:      "CRM-" + f.nextID(),
		Specialty:    "Cardiology",
		Availability: rules,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) book(clock string, minutes int) (*Appointment, error) {
	return f.svc.Book(context.Background(), f.patient.ID, f.physician.ID, at(monday, clock), minutes)
}

func TestBook_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.book("09:00", 30)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, first.Status)
	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.Equal(t, at(monday, "09:30"), first.End())

	_, err = f.book("09:15", 30)
	require.ErrorIs(t, err, ErrConflict)

	cancelled, err := f.svc.Cancel(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	second, err := f.book("09:15", 30)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, second.Status)

	agenda, err := f.svc.ListAppointmentsByPhysicianOnDate(ctx, f.physician.ID, monday)
	require.NoError(t, err)
	require.Len(t, agenda, 2, "cancelled entries stay on the agenda")
	assert.Equal(t, first.ID, agenda[0].ID)
	assert.Equal(t, StatusCancelled, agenda[0].Status)
	assert.Equal(t, second.ID, agenda[1].ID)
}

func TestBook_UnknownPatientIsReportedFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.book("09:00", 30)
	require.NoError(t, err)

	cases := []struct {
		name        string
		physicianID uuid.UUID
		start       time.Time
	}{
		{"valid physician and time", f.physician.ID, at(monday, "10:00")},
		{"unknown physician", uuid.New(), at(monday, "10:00")},
		{"day off", f.physician.ID, at(monday.AddDate(0, 0, 1), "10:00")},
		{"outside hours", f.physician.ID, at(monday, "18:00")},
		{"conflicting time", f.physician.ID, at(monday, "09:00")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Book(ctx, uuid.New(), tc.physicianID, tc.start, 30)
			assert.ErrorIs(t, err, ErrPatientNotFound)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestBook_CheckOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.book("09:00", 30)
	require.NoError(t, err)

	_, err = f.svc.Book(ctx, f.patient.ID, uuid.New(), at(monday.AddDate(0, 0, 1), "09:00"), 30)
	assert.ErrorIs(t, err, ErrPhysicianNotFound)

	_, err = f.svc.Book(ctx, f.patient.ID, f.physician.ID, at(monday.AddDate(0, 0, 1), "09:00"), 30)
	assert.ErrorIs(t, err, ErrNotWorkingDay)

	_, err = f.svc.Book(ctx, f.patient.ID, f.physician.ID, at(monday, "11:45"), 30)
	assert.ErrorIs(t, err, ErrOutsideWorkingHours)
	assert.ErrorIs(t, err, ErrRuleViolation)
	assert.NotErrorIs(t, err, ErrConflict)

	_, err = f.book("09:00", 30)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestBook_ValidationBeforeRepositoryAccess(t *testing.T) {
	repo := &stubRepository{}
	locker := &stubLocker{}
	svc := NewService(repo, locker)

	_, err := svc.Book(context.Background(), uuid.Nil, uuid.Nil, time.Time{}, 0)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 4)
	assert.Empty(t, repo.Calls())
	assert.Zero(t, locker.calls)

	_, err = svc.Book(context.Background(), uuid.New(), uuid.New(), at(monday, "09:00"), -5)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"duration_minutes must be positive"}, verr.Fields)
	assert.Empty(t, repo.Calls())
}

func TestBook_DurationIsBounded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.book("09:00", 30)
	require.NoError(t, err)

	// large enough that the span wraps around to a negative duration
	wrapping := int64(1<<53 - 30)
	for _, minutes := range []int{int(wrapping), math.MaxInt, MaxDurationMinutes + 1} {
		_, err := f.book("09:00", minutes)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "duration %d", minutes)

		_, err = f.svc.FreeSlots(ctx, f.physician.ID, monday, minutes)
		require.ErrorAs(t, err, &verr, "duration %d", minutes)
	}

	agenda, err := f.svc.ListAppointmentsByPhysicianOnDate(ctx, f.physician.ID, monday)
	require.NoError(t, err)
	require.Len(t, agenda, 1)
	assert.Equal(t, first.ID, agenda[0].ID)

	repo := &stubRepository{}
	svc := NewService(repo, &stubLocker{})
	_, err = svc.Book(ctx, uuid.New(), uuid.New(), at(monday, "09:00"), MaxDurationMinutes+1)
	require.Error(t, err)
	assert.Empty(t, repo.Calls())
}

func TestBook_BlockedDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.physician = f.addPhysician(t, RuleSet{
		Monday:       {"08:00-12:00"},
		BlockedDates: {"2024-06-03"},
	})

	_, err := f.book("09:00", 30)
	assert.ErrorIs(t, err, ErrBlockedDate)
	assert.ErrorIs(t, err, ErrRuleViolation)

	slots, err := f.svc.FreeSlots(ctx, f.physician.ID, monday, 30)
	require.NoError(t, err)
	assert.Empty(t, slots)

	nextMonday := monday.AddDate(0, 0, 7)
	_, err = f.svc.Book(ctx, f.patient.ID, f.physician.ID, at(nextMonday, "09:00"), 30)
	assert.NoError(t, err)
}

func TestBook_CallSequence(t *testing.T) {
	f := newFixture(t)
	repo := &stubRepository{Repository: f.repo}
	locker := &stubLocker{}
	svc := NewService(repo, locker)

	_, err := svc.Book(context.Background(), f.patient.ID, f.physician.ID, at(monday, "09:00"), 30)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"GetPatientByID",
		"GetPhysicianByID",
		"ListAppointmentsForPhysicianOnDate",
		"CreateAppointment",
	}, repo.Calls())
	assert.Equal(t, 1, locker.calls)
}

func TestBook_RuleViolationSkipsTheLock(t *testing.T) {
	f := newFixture(t)
	locker := &stubLocker{}
	svc := NewService(f.repo, locker)

	_, err := svc.Book(context.Background(), f.patient.ID, f.physician.ID, at(monday, "07:00"), 30)
	require.ErrorIs(t, err, ErrOutsideWorkingHours)
	assert.Zero(t, locker.calls)
}

func TestBook_InfrastructureErrorsAreWrapped(t *testing.T) {
	f := newFixture(t)
	dbDown := errors.New("connection refused")
	repo := &stubRepository{
		Repository: f.repo,
		GetPatientByIDFunc: func(context.Context, uuid.UUID) (*Patient, error) {
			return nil, dbDown
		},
	}
	svc := NewService(repo, &stubLocker{})

	_, err := svc.Book(context.Background(), f.patient.ID, f.physician.ID, at(monday, "09:00"), 30)
	require.ErrorIs(t, err, dbDown)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "load patient")
}

func TestBook_StoreLevelConflictSurfaces(t *testing.T) {
	f := newFixture(t)
	repo := &stubRepository{
		Repository: f.repo,
		CreateAppointmentFunc: func(context.Context, Appointment) (*Appointment, error) {
			return nil, ErrConflict
		},
	}
	svc := NewService(repo, &stubLocker{})

	_, err := svc.Book(context.Background(), f.patient.ID, f.physician.ID, at(monday, "09:00"), 30)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestBook_BusySchedule(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.repo, &stubLocker{Err: redisclient.ErrLockNotAcquired})

	_, err := svc.Book(context.Background(), f.patient.ID, f.physician.ID, at(monday, "09:00"), 30)
	assert.ErrorIs(t, err, ErrScheduleBusy)
}

func TestBook_TouchingAppointmentsAreAllowed(t *testing.T) {
	f := newFixture(t)

	for _, clock := range []string{"08:00", "08:30", "09:00", "09:30"} {
		_, err := f.book(clock, 30)
		require.NoError(t, err, clock)
	}
	_, err := f.book("09:59", 1)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = f.book("10:00", 120)
	assert.NoError(t, err)
}

func TestBook_CompletedAppointmentsStillBlock(t *testing.T) {
	f := newFixture(t)

	first, err := f.book("09:00", 30)
	require.NoError(t, err)
	_, err = f.svc.Complete(context.Background(), first.ID)
	require.NoError(t, err)

	_, err = f.book("09:00", 30)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestBook_ConcurrentRequestsForOneSlot(t *testing.T) {
	f := newFixture(t)

	const attempts = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		booked    int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.book("10:00", 15+i%3*15)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				booked++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, booked)
	assert.Equal(t, attempts-1, conflicts)
}

func TestBook_NoActiveOverlapAfterManyAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var created []*Appointment
	for minute := 0; minute < 4*60; minute += 10 {
		start := at(monday, "08:00").Add(time.Duration(minute) * time.Minute)
		for _, d := range []int{20, 35, 50} {
			a, err := f.svc.Book(ctx, f.patient.ID, f.physician.ID, start, d)
			if err == nil {
				created = append(created, a)
			}
		}
		if minute%60 == 0 && len(created) > 0 {
			_, err := f.svc.Cancel(ctx, created[len(created)-1].ID)
			require.NoError(t, err)
		}
	}

	agenda, err := f.svc.ListAppointmentsByPhysicianOnDate(ctx, f.physician.ID, monday)
	require.NoError(t, err)
	require.NotEmpty(t, agenda)

	for i, a := range agenda {
		for _, b := range agenda[i+1:] {
			if !a.Active() || !b.Active() {
				continue
			}
			overlap := a.Start.Before(b.End()) && b.Start.Before(a.End())
			assert.False(t, overlap, "%s-%s overlaps %s-%s", a.Start, a.End(), b.Start, b.End())
		}
	}
}

func TestCancel_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.book("09:00", 30)
	require.NoError(t, err)

	first, err := f.svc.Cancel(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, first.Status)

	second, err := f.svc.Cancel(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, second.Status)

	stored, err := f.svc.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)
}

func TestStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	completed, err := f.book("08:00", 30)
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, completed.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, completed.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	again, err := f.svc.Complete(ctx, completed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, again.Status)

	cancelled, err := f.book("10:00", 30)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, cancelled.ID)
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, cancelled.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	stored, err := f.svc.GetAppointment(ctx, cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)

	_, err = f.svc.Cancel(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	_, err = f.svc.Complete(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestAppointmentHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.book("09:00", 30)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, a.ID)
	require.NoError(t, err)

	events, err := f.svc.AppointmentHistory(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventAppointmentBooked, events[0].EventType)
	assert.Equal(t, StatusScheduled, events[0].Status)
	assert.Equal(t, EventAppointmentCancelled, events[1].EventType)
	assert.Equal(t, StatusCancelled, events[1].Status)

	_, err = f.svc.AppointmentHistory(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestCompleteElapsed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	early, err := f.book("08:00", 30)
	require.NoError(t, err)
	dropped, err := f.book("08:30", 30)
	require.NoError(t, err)
	late, err := f.book("11:00", 60)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, dropped.ID)
	require.NoError(t, err)

	n, err := f.svc.CompleteElapsed(ctx, at(monday, "10:00"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.GetAppointment(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	got, err = f.svc.GetAppointment(ctx, dropped.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	got, err = f.svc.GetAppointment(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, got.Status)

	// ends exactly at now
	n, err = f.svc.CompleteElapsed(ctx, at(monday, "12:00"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.CompleteElapsed(ctx, at(monday, "23:00"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRegisterPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.RegisterPatient(ctx, NewPatient{
		Name:          "  Beatriz Rocha ",
		NationalID:    "111.222.333-44",
		Phone:         "11 3333-4444",
		InsurancePlan: "Amil 400",
	})
	require.NoError(t, err)
	assert.Equal(t, "Beatriz Rocha", p.Name)
	assert.Equal(t, KindPatient, p.Kind())

	_, err = f.svc.RegisterPatient(ctx, NewPatient{
		Name:          "Someone Else",
		NationalID:    "111.222.333-44",
		Phone:         "11 0000-0000",
		InsurancePlan: "Private",
	})
	assert.ErrorIs(t, err, ErrNationalIDTaken)
	assert.ErrorIs(t, err, ErrDuplicateIdentifier)

	// national ids are unique across patients and physicians
	_, err = f.svc.RegisterPatient(ctx, NewPatient{
		Name:          "Doctor As Patient",
		NationalID:    f.physician.NationalID,
		Phone:         "11 0000-0000",
		InsurancePlan: "Private",
	})
	assert.ErrorIs(t, err, ErrNationalIDTaken)

	_, err = f.svc.RegisterPatient(ctx, NewPatient{Name: "No Plan", NationalID: "999", Phone: " "})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ElementsMatch(t, []string{"phone is required", "insurance_plan is required"}, verr.Fields)
}

func TestRegisterPhysician(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	valid := NewPhysician{
		Name:         "Helena Prado",
		NationalID:   "555.666.777-88",
		Phone:        "11 97777-1111",
		License:      "CRM-123456",
		Specialty:    "Dermatology",
		Availability: RuleSet{Tuesday: {"14:00-18:00"}},
	}
	p, err := f.svc.RegisterPhysician(ctx, valid)
	require.NoError(t, err)
	assert.Equal(t, RuleSet{Tuesday: {"14:00-18:00"}}, p.Availability)

	dupLicense := valid
	dupLicense.NationalID = "555.666.777-99"
	_, err = f.svc.RegisterPhysician(ctx, dupLicense)
	assert.ErrorIs(t, err, ErrLicenseTaken)

	dupNationalID := valid
	dupNationalID.License = "CRM-654321"
	dupNationalID.NationalID = f.patient.NationalID
	_, err = f.svc.RegisterPhysician(ctx, dupNationalID)
	assert.ErrorIs(t, err, ErrNationalIDTaken)

	badRules := valid
	badRules.NationalID = "1"
	badRules.License = "2"
	badRules.Availability = RuleSet{Monday: {"18:00-08:00"}}
	_, err = f.svc.RegisterPhysician(ctx, badRules)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Contains(t, verr.Fields[0], "18:00-08:00")
}

func TestRegisterPhysician_WithoutRulesIsNeverAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.RegisterPhysician(ctx, NewPhysician{
		Name:       "Idle Doctor",
		NationalID: "123",
		Phone:      "456",
		License:    "CRM-000001",
		Specialty:  "ENT",
	})
	require.NoError(t, err)
	assert.NotNil(t, p.Availability)

	for i := 0; i < 7; i++ {
		_, err := f.svc.Book(ctx, f.patient.ID, p.ID, at(monday.AddDate(0, 0, i), "10:00"), 30)
		assert.ErrorIs(t, err, ErrNotWorkingDay)
	}
}

func TestUpdatePatientContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.UpdatePatientContact(ctx, f.patient.ID, " 11 91234-5678 ", "SulAmerica")
	require.NoError(t, err)
	assert.Equal(t, "11 91234-5678", p.Phone)
	assert.Equal(t, "SulAmerica", p.InsurancePlan)
	assert.Equal(t, f.patient.NationalID, p.NationalID)

	_, err = f.svc.UpdatePatientContact(ctx, uuid.New(), "1", "2")
	assert.ErrorIs(t, err, ErrPatientNotFound)

	_, err = f.svc.UpdatePatientContact(ctx, f.patient.ID, "", "SulAmerica")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestListMembers(t *testing.T) {
	f := newFixture(t)

	members, err := f.svc.ListMembers(context.Background())
	require.NoError(t, err)
	require.Len(t, members, 2)

	assert.Equal(t, KindPatient, members[0].Kind())
	assert.Equal(t, "Patient Ana Souza (national id 000.000.001-00, plan Unimed Basic)", members[0].Identify())
	assert.Equal(t, KindPhysician, members[1].Kind())
	assert.Contains(t, members[1].Identify(), "Dr. Carlos Lima")
	assert.Equal(t, "Carlos Lima", members[1].Profile().Name)
}

func TestListAppointmentsByPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.book("10:00", 30)
	require.NoError(t, err)
	_, err = f.book("08:00", 30)
	require.NoError(t, err)

	appts, err := f.svc.ListAppointmentsByPatient(ctx, f.patient.ID)
	require.NoError(t, err)
	require.Len(t, appts, 2)
	assert.True(t, appts[0].Start.Before(appts[1].Start))

	_, err = f.svc.ListAppointmentsByPatient(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrPatientNotFound)

	_, err = f.svc.ListAppointmentsByPhysicianOnDate(ctx, uuid.New(), monday)
	assert.ErrorIs(t, err, ErrPhysicianNotFound)
}

func TestFreeSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	physician := f.addPhysician(t, RuleSet{Monday: {"08:00-10:00", "09:00-09:45"}})

	_, err := f.svc.Book(ctx, f.patient.ID, physician.ID, at(monday, "08:30"), 30)
	require.NoError(t, err)

	slots, err := f.svc.FreeSlots(ctx, physician.ID, monday, 30)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(monday, "08:00"), at(monday, "09:00"), at(monday, "09:30")}, slots)

	for _, s := range slots {
		_, err := f.svc.Book(ctx, f.patient.ID, physician.ID, s, 30)
		assert.NoError(t, err, s)
	}

	slots, err = f.svc.FreeSlots(ctx, physician.ID, monday, 30)
	require.NoError(t, err)
	assert.Empty(t, slots)

	slots, err = f.svc.FreeSlots(ctx, physician.ID, monday.AddDate(0, 0, 1), 30)
	require.NoError(t, err)
	assert.Empty(t, slots)

	_, err = f.svc.FreeSlots(ctx, physician.ID, monday, 0)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = f.svc.FreeSlots(ctx, uuid.New(), monday, 30)
	assert.ErrorIs(t, err, ErrPhysicianNotFound)
}
