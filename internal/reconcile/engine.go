// Package reconcile applies classified webhook events to the booking and
// correlation stores and forwards the consolidated booking downstream.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/appointment"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/correlation"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/logging"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/metrics"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/timeparse"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/webhook"
)

var tracer = otel.Tracer("clinic.internal.reconcile")

const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusIgnored = "ignored"
)

const (
	msgDuplicate       = "Appointment already exists for this time (same patient or same doctor). Please choose another time."
	msgSlotBusy        = "This time is being booked by another request. Please try again."
	msgPastTime        = "Appointment time is in the past. Please choose a future time."
	msgUnparsedTime    = "Could not understand the appointment time. Please provide a date and time."
	msgMissingTime     = "Missing appointment_time"
	msgNotHandled      = "Webhook event not handled"
	msgProcessed       = "Webhook processed"
	msgCallStart       = "Call start recorded"
	msgSlotAvailable   = "The requested time is available"
	msgSlotUnavailable = "The requested time is already booked"
)

// Result is what the webhook caller receives. Business rejections are a
// Result with StatusError, not a Go error.
type Result struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	AppointmentID string `json:"appointment_id,omitempty"`
	Available     *bool  `json:"available,omitempty"`
}

type Bookings interface {
	Create(ctx context.Context, a appointment.Appointment) (*appointment.Appointment, error)
	AttachCallDuration(ctx context.Context, callID string, seconds float64) (*appointment.Appointment, error)
	IsAvailable(ctx context.Context, at time.Time) (bool, error)
}

type Correlator interface {
	RecordCallStart(ctx context.Context, callID, email, userName, userID string) (bool, error)
	RecordCallLog(ctx context.Context, callID string, encryptedBody []byte, durationSeconds float64, callerEmail *string) (*correlation.CallLog, error)
	AttachDurationToBooking(ctx context.Context, callID string, durationSeconds float64) (*appointment.Appointment, error)
	LookupPriorLog(ctx context.Context, callID string) (*correlation.CallLog, error)
	LookupPriorCallStart(ctx context.Context, callID string) (*correlation.CallStart, error)
}

type Cipher interface {
	Encrypt(value any) (string, error)
	SafeDecrypt(value any) any
	SealPayload(raw []byte) ([]byte, error)
}

// Dispatcher schedules downstream pushes without blocking.
type Dispatcher interface {
	Forward(rec Record) bool
	ForwardSMS(number string) bool
}

type EngineConfig struct {
	Normalizer  *timeparse.Normalizer
	Bookings    Bookings
	Correlation Correlator
	Cipher      Cipher
	Dispatcher  Dispatcher
	Logger      *logging.Logger
	Metrics     *metrics.Metrics
	// StoreTimeout bounds persistence done on behalf of one webhook.
	StoreTimeout time.Duration
	// ForwardPlaintextEmail decrypts the patient email before pushing it.
	ForwardPlaintextEmail bool
}

type Engine struct {
	cfg    EngineConfig
	logger *logging.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Normalizer == nil {
		cfg.Normalizer = timeparse.New()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 10 * time.Second
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = noopDispatcher{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{cfg: cfg, logger: logger}
}

type noopDispatcher struct{}

func (noopDispatcher) Forward(Record) bool    { return false }
func (noopDispatcher) ForwardSMS(string) bool { return false }

// Handle applies ev. Store work is detached from ctx's cancellation so a
// caller hanging up mid-request never aborts a write.
func (e *Engine) Handle(ctx context.Context, ev webhook.Event) (Result, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.StoreTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "reconcile.handle")
	defer span.End()
	span.SetAttributes(attribute.String("webhook.kind", string(ev.Kind())))

	var (
		res Result
		err error
	)
	switch ev := ev.(type) {
	case webhook.BookingEvent:
		res, err = e.handleBooking(ctx, ev)
	case webhook.AvailabilityEvent:
		res, err = e.handleAvailability(ctx, ev)
	case webhook.CallStartEvent:
		res, err = e.handleCallStart(ctx, ev)
	case webhook.EndOfCallEvent:
		res, err = e.handleEndOfCall(ctx, ev)
	case webhook.IgnoredEvent:
		e.logger.Debug("webhook ignored", "type", ev.Type, "reason", ev.Reason)
		res = Result{Status: StatusIgnored, Message: msgNotHandled}
	default:
		res = Result{Status: StatusIgnored, Message: msgNotHandled}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (e *Engine) handleBooking(ctx context.Context, ev webhook.BookingEvent) (Result, error) {
	sessionID := ev.Session.ID()
	log := e.logger.WithCallID(sessionID)

	at, rejected := e.resolveTime(ev.Args.AppointmentTime, true)
	if rejected != nil {
		e.cfg.Metrics.ObserveBooking("invalid")
		log.Info("booking rejected", "reason", rejected.Message)
		return *rejected, nil
	}

	email := ev.Args.PatientEmail
	if email == "" && sessionID != "" {
		cs, err := e.cfg.Correlation.LookupPriorCallStart(ctx, sessionID)
		if err != nil {
			return Result{}, err
		}
		if cs != nil {
			if s, ok := e.cfg.Cipher.SafeDecrypt(cs.Email).(string); ok {
				email = s
			}
		}
	}

	appt := appointment.Appointment{
		PatientName:     ev.Args.PatientName,
		PatientEmail:    email,
		PatientPhone:    optional(ev.Args.PatientPhone),
		PatientAddress:  optional(ev.Args.PatientAddress),
		DoctorName:      ev.Args.DoctorName,
		AppointmentTime: at,
		Reason:          optional(ev.Args.Reason),
		CallID:          optional(sessionID),
		Source:          ev.Session.Source,
	}

	isCall := ev.Session.Source == appointment.SourceCall && ev.Session.CallID != ""
	if isCall {
		if err := e.applyPriorDuration(ctx, &appt); err != nil {
			return Result{}, err
		}
	}

	if err := appt.SealContact(e.cfg.Cipher); err != nil {
		return Result{}, fmt.Errorf("seal contact fields: %w", err)
	}

	created, err := e.cfg.Bookings.Create(ctx, appt)
	if err != nil {
		return e.bookingFailure(ctx, err, appt, sessionID)
	}

	// An end-of-call report stored while this booking was being written
	// may have missed it; pick its duration up now.
	if isCall && created.CallDurationMinutes == nil {
		if merged, err := e.mergeLateDuration(ctx, created.CallID); err != nil {
			log.Warn("late duration merge failed", "error", err.Error())
		} else if merged != nil {
			created = merged
		}
	}

	e.cfg.Metrics.ObserveBooking("created")
	e.forward(created)
	if ev.Args.PatientPhone != "" {
		e.cfg.Dispatcher.ForwardSMS(ev.Args.PatientPhone)
	}

	return Result{
		Status:        StatusSuccess,
		Message:       fmt.Sprintf("Appointment booked for %s with %s", created.PatientName, created.DoctorName),
		AppointmentID: created.ID.String(),
	}, nil
}

func (e *Engine) applyPriorDuration(ctx context.Context, appt *appointment.Appointment) error {
	prior, err := e.cfg.Correlation.LookupPriorLog(ctx, *appt.CallID)
	if err != nil {
		return err
	}
	if prior != nil && prior.DurationSeconds > 0 {
		seconds, minutes := prior.DurationSeconds, prior.DurationMinutes
		appt.CallDurationSeconds = &seconds
		appt.CallDurationMinutes = &minutes
	}
	return nil
}

func (e *Engine) mergeLateDuration(ctx context.Context, callID *string) (*appointment.Appointment, error) {
	if callID == nil {
		return nil, nil
	}
	prior, err := e.cfg.Correlation.LookupPriorLog(ctx, *callID)
	if err != nil || prior == nil || prior.DurationSeconds <= 0 {
		return nil, err
	}
	return e.cfg.Bookings.AttachCallDuration(ctx, *callID, prior.DurationSeconds)
}

func (e *Engine) bookingFailure(ctx context.Context, err error, attempted appointment.Appointment, sessionID string) (Result, error) {
	var dup *appointment.DuplicateError
	switch {
	case errors.As(err, &dup):
		if dup.Existing != nil && dup.Existing.HasCallID(sessionID) {
			return e.replayBooking(ctx, dup.Existing, attempted)
		}
		e.cfg.Metrics.ObserveBooking("duplicate")
		return Result{Status: StatusError, Message: msgDuplicate}, nil
	case errors.Is(err, appointment.ErrDuplicateAppointment):
		e.cfg.Metrics.ObserveBooking("duplicate")
		return Result{Status: StatusError, Message: msgDuplicate}, nil
	case errors.Is(err, appointment.ErrSlotBeingBooked):
		e.cfg.Metrics.ObserveBooking("contended")
		return Result{Status: StatusError, Message: msgSlotBusy}, nil
	case errors.Is(err, appointment.ErrInvalidAppointment):
		e.cfg.Metrics.ObserveBooking("invalid")
		return Result{Status: StatusError, Message: err.Error()}, nil
	}
	e.cfg.Metrics.ObserveBooking("failed")
	return Result{}, fmt.Errorf("create appointment: %w", err)
}

// replayBooking answers a re-delivered booking for the same call with the
// original appointment. A duration learned since is merged and forwarded.
func (e *Engine) replayBooking(ctx context.Context, existing *appointment.Appointment, attempted appointment.Appointment) (Result, error) {
	e.cfg.Metrics.ObserveBooking("replay")
	e.logger.WithCallID(*existing.CallID).Info("booking re-delivered", "appointment_id", existing.ID.String())

	if existing.CallDurationMinutes == nil && attempted.CallDurationSeconds != nil {
		updated, err := e.cfg.Bookings.AttachCallDuration(ctx, *existing.CallID, *attempted.CallDurationSeconds)
		if err != nil {
			return Result{}, fmt.Errorf("merge replayed duration: %w", err)
		}
		existing = updated
		e.forward(existing)
	}

	return Result{
		Status:        StatusSuccess,
		Message:       fmt.Sprintf("Appointment booked for %s with %s", existing.PatientName, existing.DoctorName),
		AppointmentID: existing.ID.String(),
	}, nil
}

func (e *Engine) handleAvailability(ctx context.Context, ev webhook.AvailabilityEvent) (Result, error) {
	if ev.AppointmentTime == "" {
		return Result{Status: StatusError, Message: msgMissingTime}, nil
	}
	at, rejected := e.resolveTime(ev.AppointmentTime, false)
	if rejected != nil {
		return *rejected, nil
	}

	available, err := e.cfg.Bookings.IsAvailable(ctx, at)
	if err != nil {
		return Result{}, fmt.Errorf("check availability: %w", err)
	}

	msg := msgSlotAvailable
	if !available {
		msg = msgSlotUnavailable
	}
	return Result{Status: StatusSuccess, Message: msg, Available: &available}, nil
}

func (e *Engine) handleCallStart(ctx context.Context, ev webhook.CallStartEvent) (Result, error) {
	if ev.CallID == "" {
		return Result{Status: StatusIgnored, Message: msgNotHandled}, nil
	}

	var email string
	if ev.Email != "" {
		sealed, err := e.cfg.Cipher.Encrypt(ev.Email)
		if err != nil {
			return Result{}, fmt.Errorf("seal call start email: %w", err)
		}
		email = sealed
	}

	if _, err := e.cfg.Correlation.RecordCallStart(ctx, ev.CallID, email, ev.UserName, ev.UserID); err != nil {
		return Result{}, fmt.Errorf("record call start: %w", err)
	}
	return Result{Status: StatusSuccess, Message: msgCallStart}, nil
}

func (e *Engine) handleEndOfCall(ctx context.Context, ev webhook.EndOfCallEvent) (Result, error) {
	log := e.logger.WithCallID(ev.CallID)

	sealed, err := e.cfg.Cipher.SealPayload(ev.Raw)
	if err != nil {
		return Result{}, fmt.Errorf("seal call report: %w", err)
	}

	callerEmail, err := e.callerEmail(ctx, ev)
	if err != nil {
		return Result{}, err
	}

	if _, err := e.cfg.Correlation.RecordCallLog(ctx, ev.CallID, sealed, ev.DurationSeconds, callerEmail); err != nil {
		return Result{}, fmt.Errorf("record call log: %w", err)
	}

	if ev.CallID == "" {
		log.Info("end of call report without call id")
		return Result{Status: StatusSuccess, Message: msgProcessed}, nil
	}

	appt, err := e.cfg.Correlation.AttachDurationToBooking(ctx, ev.CallID, ev.DurationSeconds)
	if err != nil {
		return Result{}, err
	}
	if appt == nil {
		e.cfg.Metrics.ObserveCorrelation("missing")
		return Result{Status: StatusSuccess, Message: msgProcessed}, nil
	}

	e.cfg.Metrics.ObserveCorrelation("attached")
	log.Info("call duration attached", "appointment_id", appt.ID.String(), "duration_seconds", ev.DurationSeconds)
	e.forward(appt)

	return Result{Status: StatusSuccess, Message: msgProcessed, AppointmentID: appt.ID.String()}, nil
}

// callerEmail returns the sealed caller email from the report, falling
// back to the one captured at call start.
func (e *Engine) callerEmail(ctx context.Context, ev webhook.EndOfCallEvent) (*string, error) {
	if ev.CallerEmail != "" {
		sealed, err := e.cfg.Cipher.Encrypt(ev.CallerEmail)
		if err != nil {
			return nil, fmt.Errorf("seal caller email: %w", err)
		}
		return &sealed, nil
	}
	cs, err := e.cfg.Correlation.LookupPriorCallStart(ctx, ev.CallID)
	if err != nil {
		return nil, err
	}
	if cs == nil || cs.Email == "" {
		return nil, nil
	}
	return &cs.Email, nil
}

// resolveTime turns the raw argument into a booking time. An empty value
// means now when allowed. A non-nil Result is the rejection to return.
func (e *Engine) resolveTime(raw string, defaultNow bool) (time.Time, *Result) {
	if raw == "" && defaultNow {
		return e.cfg.Normalizer.Now(), nil
	}
	at, err := e.cfg.Normalizer.Parse(raw)
	switch {
	case err == nil:
		return at, nil
	case errors.Is(err, timeparse.ErrPastTime):
		return time.Time{}, &Result{Status: StatusError, Message: msgPastTime}
	default:
		return time.Time{}, &Result{Status: StatusError, Message: msgUnparsedTime}
	}
}

func (e *Engine) forward(appt *appointment.Appointment) {
	rec := Record{
		PatientEmail:    appt.PatientEmail,
		PatientName:     appt.PatientName,
		DoctorName:      appt.DoctorName,
		AppointmentTime: appt.AppointmentTime.UTC().Format(time.RFC3339),
		Source:          string(appt.Source),
	}
	if e.cfg.ForwardPlaintextEmail {
		if s, ok := e.cfg.Cipher.SafeDecrypt(appt.PatientEmail).(string); ok {
			rec.PatientEmail = s
		}
	}
	if appt.Source == appointment.SourceCall && appt.CallDurationMinutes != nil {
		minutes := *appt.CallDurationMinutes
		rec.CallDurationMinutes = &minutes
	}
	e.cfg.Dispatcher.Forward(rec)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
