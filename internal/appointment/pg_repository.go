package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgExclusionViolation  = "23P01"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

var _ Repository = (*PgRepository)(nil)

const (
	patientColumns     = `id, name, national_id, phone, insurance_plan, created_at, updated_at`
	physicianColumns   = `id, name, national_id, phone, license, specialty, availability, created_at, updated_at`
	appointmentColumns = `id, patient_id, physician_id, start_time, duration_minutes, status, created_at, updated_at`
)

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.NationalID,
		&p.Phone,
		&p.InsurancePlan,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanPhysician(row pgx.Row) (*Physician, error) {
	var p Physician
	var rules []byte

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.NationalID,
		&p.Phone,
		&p.License,
		&p.Specialty,
		&rules,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPhysicianNotFound
		}
		return nil, err
	}

	p.Availability = RuleSet{}
	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &p.Availability); err != nil {
			return nil, fmt.Errorf("physician %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.PhysicianID,
		&a.Start,
		&a.DurationMinutes,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	var result []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// translatePgError maps constraint violations onto the package sentinels.
func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgUniqueViolation:
		switch pgErr.ConstraintName {
		case "physicians_license_key":
			return ErrLicenseTaken
		default:
			return ErrNationalIDTaken
		}
	case pgExclusionViolation:
		return ErrConflict
	case pgForeignKeyViolation:
		switch pgErr.ConstraintName {
		case "appointments_patient_id_fkey":
			return ErrPatientNotFound
		case "appointments_physician_id_fkey":
			return ErrPhysicianNotFound
		}
	}
	return err
}

// Patients

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) FindPatientByNationalID(ctx context.Context, nationalID string) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE national_id = $1
	`, nationalID)
	return scanPatient(row)
}

func (r *PgRepository) ListPatients(ctx context.Context) ([]Patient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPatient)
}

func (r *PgRepository) CreatePatient(ctx context.Context, p Patient) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, name, national_id, phone, insurance_plan, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING `+patientColumns+`
	`, uuid.New(), p.Name, p.NationalID, p.Phone, p.InsurancePlan)

	created, err := scanPatient(row)
	if err != nil {
		return nil, translatePgError(err)
	}
	return created, nil
}

func (r *PgRepository) UpdatePatientContact(ctx context.Context, id uuid.UUID, phone, insurancePlan string) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE patients
		SET phone = $2,
		    insurance_plan = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+patientColumns+`
	`, id, phone, insurancePlan)
	return scanPatient(row)
}

// Physicians

func (r *PgRepository) GetPhysicianByID(ctx context.Context, id uuid.UUID) (*Physician, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+physicianColumns+`
		FROM physicians
		WHERE id = $1
	`, id)
	return scanPhysician(row)
}

func (r *PgRepository) FindPhysicianByNationalID(ctx context.Context, nationalID string) (*Physician, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+physicianColumns+`
		FROM physicians
		WHERE national_id = $1
	`, nationalID)
	return scanPhysician(row)
}

func (r *PgRepository) FindPhysicianByLicense(ctx context.Context, license string) (*Physician, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+physicianColumns+`
		FROM physicians
		WHERE license = $1
	`, license)
	return scanPhysician(row)
}

func (r *PgRepository) ListPhysicians(ctx context.Context) ([]Physician, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+physicianColumns+`
		FROM physicians
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPhysician)
}

func (r *PgRepository) CreatePhysician(ctx context.Context, p Physician) (*Physician, error) {
	rules, err := json.Marshal(p.Availability)
	if err != nil {
		return nil, fmt.Errorf("encode availability: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO physicians (id, name, national_id, phone, license, specialty, availability, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+physicianColumns+`
	`, uuid.New(), p.Name, p.NationalID, p.Phone, p.License, p.Specialty, rules)

	created, err := scanPhysician(row)
	if err != nil {
		return nil, translatePgError(err)
	}
	return created, nil
}

// Appointments

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY start_time
	`, patientID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAppointment)
}

func (r *PgRepository) ListAppointmentsForPhysicianOnDate(ctx context.Context, physicianID uuid.UUID, day time.Time) ([]Appointment, error) {
	from, to := DayBounds(day)
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE physician_id = $1
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time
	`, physicianID, from, to)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAppointment)
}

func (r *PgRepository) FindElapsedScheduled(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'scheduled'
		  AND end_time <= $1
		ORDER BY start_time
	`, now)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAppointment)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	var created *Appointment

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO appointments (id, patient_id, physician_id, start_time, duration_minutes, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			RETURNING `+appointmentColumns+`
		`, uuid.New(), a.PatientID, a.PhysicianID, a.Start, a.DurationMinutes, a.Status)

		appt, err := scanAppointment(row)
		if err != nil {
			return err
		}
		created = appt
		return insertEvent(ctx, tx, *appt)
	})
	if err != nil {
		return nil, translatePgError(err)
	}

	return created, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	var updated *Appointment

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = $2,
			    updated_at = now()
			WHERE id = $1
			  AND status = $3
			RETURNING `+appointmentColumns+`
		`, id, to, from)

		appt, err := scanAppointment(row)
		if err != nil {
			return err
		}
		updated = appt
		return insertEvent(ctx, tx, *appt)
	})
	if err != nil {
		return nil, translatePgError(err)
	}

	return updated, nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, a Appointment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointment_events (event_type, appointment_id, status, created_at)
		VALUES ($1, $2, $3, now())
	`, eventForStatus(a.Status), a.ID, a.Status)
	if err != nil {
		return fmt.Errorf("insert appointment event: %w", err)
	}
	return nil
}

func (r *PgRepository) ListAppointmentEvents(ctx context.Context, appointmentID uuid.UUID) ([]EventLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_type, appointment_id, status, created_at
		FROM appointment_events
		WHERE appointment_id = $1
		ORDER BY id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row pgx.Row) (*EventLog, error) {
		var ev EventLog
		if err := row.Scan(&ev.ID, &ev.EventType, &ev.AppointmentID, &ev.Status, &ev.CreatedAt); err != nil {
			return nil, err
		}
		return &ev, nil
	})
}
