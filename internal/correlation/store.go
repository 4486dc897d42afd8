// Package correlation merges the facts different webhooks carry about the
// same call. Bookings and end-of-call reports may arrive in either order;
// both orders end in the same appointment state.
package correlation

import (
	"context"
	"errors"
	"fmt"

	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/appointment"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/logging"
)

// Bookings is the part of the booking store correlation writes through.
type Bookings interface {
	FindByCallID(ctx context.Context, callID string) (*appointment.Appointment, error)
	AttachCallDuration(ctx context.Context, callID string, seconds float64) (*appointment.Appointment, error)
}

type Store struct {
	repo     Repository
	bookings Bookings
	logger   *logging.Logger
}

func NewStore(repo Repository, bookings Bookings, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{repo: repo, bookings: bookings, logger: logger}
}

// RecordCallStart stores caller details once per call. Re-delivery is a
// no-op that reports false.
func (s *Store) RecordCallStart(ctx context.Context, callID, email, userName, userID string) (bool, error) {
	if callID == "" {
		return false, nil
	}
	inserted, err := s.repo.InsertCallStart(ctx, CallStart{
		CallID:   callID,
		Email:    email,
		UserName: userName,
		UserID:   userID,
	})
	if err != nil {
		return false, err
	}
	if !inserted {
		s.logger.WithCallID(callID).Debug("call start already recorded")
	}
	return inserted, nil
}

// RecordCallLog appends an end-of-call report. Logs are not deduplicated.
func (s *Store) RecordCallLog(ctx context.Context, callID string, encryptedBody []byte, durationSeconds float64, callerEmail *string) (*CallLog, error) {
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	created, err := s.repo.InsertCallLog(ctx, CallLog{
		CallID:          callID,
		Body:            encryptedBody,
		DurationSeconds: durationSeconds,
		DurationMinutes: appointment.DurationMinutes(durationSeconds),
		CallerEmail:     callerEmail,
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// AttachDurationToBooking writes the call duration onto the booking made
// during the call. It returns nil without error when the call produced no
// booking. A zero duration never overwrites a known one.
func (s *Store) AttachDurationToBooking(ctx context.Context, callID string, durationSeconds float64) (*appointment.Appointment, error) {
	var (
		appt *appointment.Appointment
		err  error
	)
	if durationSeconds > 0 {
		appt, err = s.bookings.AttachCallDuration(ctx, callID, durationSeconds)
	} else {
		appt, err = s.bookings.FindByCallID(ctx, callID)
	}
	if err != nil {
		if errors.Is(err, appointment.ErrAppointmentNotFound) {
			s.logger.WithCallID(callID).Info("end of call without booking", "error", ErrCorrelationMissing.Error())
			return nil, nil
		}
		return nil, fmt.Errorf("attach duration: %w", err)
	}
	return appt, nil
}

// LookupPriorLog returns the latest end-of-call report for the call, or nil.
func (s *Store) LookupPriorLog(ctx context.Context, callID string) (*CallLog, error) {
	if callID == "" {
		return nil, nil
	}
	l, err := s.repo.LatestCallLog(ctx, callID)
	if err != nil {
		if errors.Is(err, ErrCallLogNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup call log: %w", err)
	}
	return l, nil
}

// LookupPriorCallStart returns the call start for the call, or nil.
func (s *Store) LookupPriorCallStart(ctx context.Context, callID string) (*CallStart, error) {
	if callID == "" {
		return nil, nil
	}
	cs, err := s.repo.GetCallStart(ctx, callID)
	if err != nil {
		if errors.Is(err, ErrCallStartNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup call start: %w", err)
	}
	return cs, nil
}

func (s *Store) State(ctx context.Context, callID string) (State, error) {
	_, err := s.bookings.FindByCallID(ctx, callID)
	hasBooking := err == nil
	if err != nil && !errors.Is(err, appointment.ErrAppointmentNotFound) {
		return "", fmt.Errorf("lookup booking: %w", err)
	}

	prior, err := s.LookupPriorLog(ctx, callID)
	if err != nil {
		return "", err
	}

	return deriveState(hasBooking, prior != nil), nil
}

func (s *Store) GetCallLog(ctx context.Context, id int64) (*CallLog, error) {
	return s.repo.GetCallLog(ctx, id)
}

func (s *Store) ListCallLogs(ctx context.Context, limit, offset int) ([]CallLog, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListCallLogs(ctx, limit, offset)
}
