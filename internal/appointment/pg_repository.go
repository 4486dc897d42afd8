package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/db"
)

const uniqueViolation = "23505"

const appointmentColumns = `id, patient_name, patient_email, patient_phone, patient_address, doctor_name,
		       appointment_time, reason, call_id, source, call_duration_seconds, call_duration_minutes,
		       created_at, updated_at`

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var source string

	err := row.Scan(
		&a.ID,
		&a.PatientName,
		&a.PatientEmail,
		&a.PatientPhone,
		&a.PatientAddress,
		&a.DoctorName,
		&a.AppointmentTime,
		&a.Reason,
		&a.CallID,
		&source,
		&a.CallDurationSeconds,
		&a.CallDurationMinutes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Source = ParseSource(source)
	a.AppointmentTime = a.AppointmentTime.UTC()
	return &a, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateAppointment
	}
	return err
}

// Interface methods

func (r *PgRepository) FindConflicting(ctx context.Context, patientName, doctorName string, at time.Time, excludeID *uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appointment_time = $3
		  AND (patient_name = $1 OR doctor_name = $2)
		  AND ($4::uuid IS NULL OR id <> $4)
		ORDER BY created_at
		LIMIT 1
	`, patientName, doctorName, at.UTC(), excludeID)
	return scanAppointment(row)
}

func (r *PgRepository) ExistsAt(ctx context.Context, at time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appointments WHERE appointment_time = $1)
	`, at.UTC()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slot: %w", err)
	}
	return exists, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) FindByCallID(ctx context.Context, callID string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE call_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, callID)
	return scanAppointment(row)
}

func (r *PgRepository) List(ctx context.Context, limit, offset int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		ORDER BY appointment_time DESC, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) Insert(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_name, patient_email, patient_phone, patient_address, doctor_name,
		                          appointment_time, reason, call_id, source, call_duration_seconds,
		                          call_duration_minutes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.PatientName, a.PatientEmail, a.PatientPhone, a.PatientAddress, a.DoctorName,
		a.AppointmentTime.UTC(), a.Reason, a.CallID, string(a.Source), a.CallDurationSeconds,
		a.CallDurationMinutes)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return created, nil
}

func (r *PgRepository) Update(ctx context.Context, a Appointment) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET patient_name = $2,
		    patient_email = $3,
		    patient_phone = $4,
		    patient_address = $5,
		    doctor_name = $6,
		    appointment_time = $7,
		    reason = $8,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		a.ID, a.PatientName, a.PatientEmail, a.PatientPhone, a.PatientAddress, a.DoctorName,
		a.AppointmentTime.UTC(), a.Reason)

	updated, err := scanAppointment(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return updated, nil
}

// SetCallDuration touches only the duration columns so a concurrent edit
// of the booking is never overwritten.
func (r *PgRepository) SetCallDuration(ctx context.Context, callID string, seconds, minutes float64) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET call_duration_seconds = $2,
		    call_duration_minutes = $3,
		    updated_at = now()
		WHERE call_id = $1
		RETURNING `+appointmentColumns,
		callID, seconds, minutes)
	return scanAppointment(row)
}

func (r *PgRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}
