package webhook

import (
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/appointment"
)

type Kind string

const (
	KindBooking      Kind = "booking"
	KindAvailability Kind = "availability"
	KindCallStart    Kind = "call_start"
	KindEndOfCall    Kind = "end_of_call"
	KindIgnored      Kind = "ignored"
)

// Event is one classified webhook delivery. The set of implementations is
// closed; switch on the concrete type.
type Event interface {
	Kind() Kind
	event()
}

// Session identifies the conversation an event belongs to.
type Session struct {
	CallID string
	ChatID string
	Source appointment.Source
}

// ID is the correlation key: the call id, or the chat id for chats.
func (s Session) ID() string {
	if s.CallID != "" {
		return s.CallID
	}
	return s.ChatID
}

type BookingArgs struct {
	PatientName     string `json:"patient_name" validate:"required"`
	DoctorName      string `json:"doctor_name" validate:"required"`
	AppointmentTime string `json:"appointment_time"`
	PatientEmail    string `json:"patient_email"`
	PatientPhone    string `json:"patient_phone"`
	PatientAddress  string `json:"patient_address"`
	Reason          string `json:"reason"`
	CallID          string `json:"call_id"`
	ChatID          string `json:"chat_id"`
}

type BookingEvent struct {
	ToolCallID string
	Session    Session
	Args       BookingArgs
}

type AvailabilityEvent struct {
	ToolCallID      string
	Session         Session
	AppointmentTime string
}

type CallStartEvent struct {
	CallID   string
	Email    string
	UserName string
	UserID   string
}

// EndOfCallEvent carries the report as received; Raw is sealed before it
// is stored.
type EndOfCallEvent struct {
	CallID          string
	DurationSeconds float64
	CallerEmail     string
	Raw             []byte
}

type IgnoredEvent struct {
	Type   string
	Reason string
}

func (BookingEvent) Kind() Kind      { return KindBooking }
func (AvailabilityEvent) Kind() Kind { return KindAvailability }
func (CallStartEvent) Kind() Kind    { return KindCallStart }
func (EndOfCallEvent) Kind() Kind    { return KindEndOfCall }
func (IgnoredEvent) Kind() Kind      { return KindIgnored }

func (BookingEvent) event()      {}
func (AvailabilityEvent) event() {}
func (CallStartEvent) event()    {}
func (EndOfCallEvent) event()    {}
func (IgnoredEvent) event()      {}
