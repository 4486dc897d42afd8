package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrDuplicateAppointment = errors.New("appointment already exists for this time (same patient or same doctor)")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// For duplicate checks. excludeID skips the appointment being edited.
	FindConflicting(ctx context.Context, patientName, doctorName string, at time.Time, excludeID *uuid.UUID) (*Appointment, error)
	ExistsAt(ctx context.Context, at time.Time) (bool, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	FindByCallID(ctx context.Context, callID string) (*Appointment, error)
	List(ctx context.Context, limit, offset int) ([]Appointment, error)

	// Creation and updates
	Insert(ctx context.Context, a Appointment) (*Appointment, error)
	Update(ctx context.Context, a Appointment) (*Appointment, error)
	SetCallDuration(ctx context.Context, callID string, seconds, minutes float64) (*Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
