package correlation

import (
	"encoding/json"
	"time"
)

// CallLog is one end-of-call report. Body holds the webhook payload with
// its sensitive fields already sealed.
type CallLog struct {
	ID              int64
	CallID          string
	Body            json.RawMessage
	ReceivedAt      time.Time
	DurationSeconds float64
	DurationMinutes float64
	CallerEmail     *string
}

// CallStart holds caller details captured when a call begins. Email is
// ciphertext.
type CallStart struct {
	CallID    string
	Email     string
	UserName  string
	UserID    string
	CreatedAt time.Time
}

// State is derived from which facts are known for a call; it is never
// stored.
type State string

const (
	StateNew         State = "NEW"
	StateBookingOnly State = "BOOKING_ONLY"
	StateLogOnly     State = "LOG_ONLY"
	StateReconciled  State = "RECONCILED"
)

func deriveState(hasBooking, hasLog bool) State {
	switch {
	case hasBooking && hasLog:
		return StateReconciled
	case hasBooking:
		return StateBookingOnly
	case hasLog:
		return StateLogOnly
	default:
		return StateNew
	}
}
