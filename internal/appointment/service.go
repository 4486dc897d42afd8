package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/logging"
	redisclient "github.com/Talhasaeed420/Clinic-Ai-Agent/internal/redis"
)

var tracer = otel.Tracer("clinic.internal.appointment")

var (
	ErrSlotBeingBooked     = errors.New("this time is currently being booked, please retry")
	ErrInvalidAppointment  = errors.New("invalid appointment")
	errMissingPatientName  = fmt.Errorf("%w: patient_name is required", ErrInvalidAppointment)
	errMissingDoctorName   = fmt.Errorf("%w: doctor_name is required", ErrInvalidAppointment)
	errMissingAppointmentT = fmt.Errorf("%w: appointment_time is required", ErrInvalidAppointment)
)

// DuplicateError is returned when a booking collides with an existing one
// on (patient, time) or (doctor, time). Existing may be nil when the
// collision was only caught by the unique index.
type DuplicateError struct {
	Existing *Appointment
}

func (e *DuplicateError) Error() string { return ErrDuplicateAppointment.Error() }

func (e *DuplicateError) Unwrap() error { return ErrDuplicateAppointment }

type Service struct {
	repo   Repository
	locker redisclient.Locker
	logger *logging.Logger
}

// NewService wires the booking store. A nil locker runs the duplicate
// check without a distributed lock and relies on the unique indexes.
func NewService(repo Repository, locker redisclient.Locker, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:   repo,
		locker: locker,
		logger: logger,
	}
}

// LockKeys names the critical sections a booking at the given time needs.
func LockKeys(patientName, doctorName string, at time.Time) []string {
	ts := at.UTC().Format(time.RFC3339)
	return []string{
		"patient:" + patientName + ":" + ts,
		"doctor:" + doctorName + ":" + ts,
	}
}

// FindDuplicate returns the appointment that already holds the patient or
// the doctor at the given time, or nil.
func (s *Service) FindDuplicate(ctx context.Context, patientName, doctorName string, at time.Time) (*Appointment, error) {
	return s.findConflict(ctx, patientName, doctorName, at, nil)
}

func (s *Service) findConflict(ctx context.Context, patientName, doctorName string, at time.Time, excludeID *uuid.UUID) (*Appointment, error) {
	existing, err := s.repo.FindConflicting(ctx, patientName, doctorName, at.UTC().Truncate(time.Minute), excludeID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("check duplicate appointment: %w", err)
	}
	return existing, nil
}

// Create books a new appointment. The duplicate check and insert run
// inside a lock on both the patient and doctor keys; the unique indexes
// catch anything that slips past it.
func (s *Service) Create(ctx context.Context, a Appointment) (*Appointment, error) {
	a.PatientName = strings.TrimSpace(a.PatientName)
	a.DoctorName = strings.TrimSpace(a.DoctorName)
	switch {
	case a.PatientName == "":
		return nil, errMissingPatientName
	case a.DoctorName == "":
		return nil, errMissingDoctorName
	case a.AppointmentTime.IsZero():
		return nil, errMissingAppointmentT
	}
	a.AppointmentTime = a.AppointmentTime.UTC().Truncate(time.Minute)
	if a.Source == "" {
		a.Source = SourceUnknown
	}

	ctx, span := tracer.Start(ctx, "appointment.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("appointment.source", string(a.Source)),
		attribute.String("appointment.time", a.AppointmentTime.Format(time.RFC3339)),
	)

	var created *Appointment

	err := s.withLock(ctx, LockKeys(a.PatientName, a.DoctorName, a.AppointmentTime), func(lockCtx context.Context) error {
		// Inside the critical section re-check for an existing booking
		existing, err := s.FindDuplicate(lockCtx, a.PatientName, a.DoctorName, a.AppointmentTime)
		if err != nil {
			return err
		}
		if existing != nil {
			return &DuplicateError{Existing: existing}
		}

		appt, err := s.repo.Insert(lockCtx, a)
		if err != nil {
			if errors.Is(err, ErrDuplicateAppointment) {
				existing, _ := s.FindDuplicate(lockCtx, a.PatientName, a.DoctorName, a.AppointmentTime)
				return &DuplicateError{Existing: existing}
			}
			return fmt.Errorf("insert appointment: %w", err)
		}

		created = appt
		return nil
	})

	if err != nil {
		if !errors.Is(err, ErrDuplicateAppointment) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("appointment.id", created.ID.String()))
	s.logger.Info("appointment created",
		"appointment_id", created.ID.String(),
		"source", string(created.Source),
		"appointment_time", created.AppointmentTime.Format(time.RFC3339),
	)

	return created, nil
}

func (s *Service) withLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	err := s.locker.WithLock(ctx, keys, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSlotBeingBooked
	}
	return err
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// FindByCallID returns the booking made during callID.
func (s *Service) FindByCallID(ctx context.Context, callID string) (*Appointment, error) {
	appt, err := s.repo.FindByCallID(ctx, callID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("find appointment by call: %w", err)
	}
	return appt, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appointments, nil
}

// Update applies a partial change. Moving the patient, doctor or time
// re-runs the duplicate check against every other appointment.
func (s *Service) Update(ctx context.Context, id uuid.UUID, u Update) (*Appointment, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *current
	u.apply(&next)
	next.PatientName = strings.TrimSpace(next.PatientName)
	next.DoctorName = strings.TrimSpace(next.DoctorName)
	if next.PatientName == "" {
		return nil, errMissingPatientName
	}
	if next.DoctorName == "" {
		return nil, errMissingDoctorName
	}

	write := func(ctx context.Context) error {
		if u.touchesSlot() {
			existing, err := s.findConflict(ctx, next.PatientName, next.DoctorName, next.AppointmentTime, &id)
			if err != nil {
				return err
			}
			if existing != nil {
				return &DuplicateError{Existing: existing}
			}
		}
		updated, err := s.repo.Update(ctx, next)
		if err != nil {
			if errors.Is(err, ErrDuplicateAppointment) {
				return &DuplicateError{}
			}
			if errors.Is(err, ErrAppointmentNotFound) {
				return err
			}
			return fmt.Errorf("update appointment: %w", err)
		}
		next = *updated
		return nil
	}

	if u.touchesSlot() {
		err = s.withLock(ctx, LockKeys(next.PatientName, next.DoctorName, next.AppointmentTime), write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("appointment updated", "appointment_id", id.String())
	return &next, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("appointment deleted", "appointment_id", id.String())
	return nil
}

// AttachCallDuration records how long the booking call lasted. It returns
// ErrAppointmentNotFound when no appointment carries callID.
func (s *Service) AttachCallDuration(ctx context.Context, callID string, seconds float64) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.attach_call_duration")
	defer span.End()
	span.SetAttributes(
		attribute.String("call.id", callID),
		attribute.Float64("call.duration_seconds", seconds),
	)

	appt, err := s.repo.SetCallDuration(ctx, callID, seconds, DurationMinutes(seconds))
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("attach call duration: %w", err)
	}
	return appt, nil
}

// IsAvailable reports whether no appointment is booked at the instant.
func (s *Service) IsAvailable(ctx context.Context, at time.Time) (bool, error) {
	exists, err := s.repo.ExistsAt(ctx, at.UTC().Truncate(time.Minute))
	if err != nil {
		return false, err
	}
	return !exists, nil
}
