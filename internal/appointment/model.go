package appointment

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source tells where a booking came from. Call durations only exist for
// calls.
type Source string

const (
	SourceCall    Source = "call"
	SourceChat    Source = "chat"
	SourceUnknown Source = "unknown"
)

func ParseSource(s string) Source {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceCall:
		return SourceCall
	case SourceChat:
		return SourceChat
	default:
		return SourceUnknown
	}
}

// Appointment is a booked visit. PatientEmail, PatientPhone and
// PatientAddress hold ciphertext once persisted.
type Appointment struct {
	ID                  uuid.UUID
	PatientName         string
	PatientEmail        string
	PatientPhone        *string
	PatientAddress      *string
	DoctorName          string
	AppointmentTime     time.Time
	Reason              *string
	CallID              *string
	Source              Source
	CallDurationSeconds *float64
	CallDurationMinutes *float64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasCallID reports whether the appointment was booked during callID.
func (a *Appointment) HasCallID(callID string) bool {
	return callID != "" && a.CallID != nil && *a.CallID == callID
}

// Update is a partial change; nil fields are left alone.
type Update struct {
	PatientName     *string
	PatientEmail    *string
	PatientPhone    *string
	PatientAddress  *string
	DoctorName      *string
	AppointmentTime *time.Time
	Reason          *string
}

func (u Update) touchesSlot() bool {
	return u.PatientName != nil || u.DoctorName != nil || u.AppointmentTime != nil
}

func (u Update) apply(a *Appointment) {
	if u.PatientName != nil {
		a.PatientName = *u.PatientName
	}
	if u.PatientEmail != nil {
		a.PatientEmail = *u.PatientEmail
	}
	if u.PatientPhone != nil {
		a.PatientPhone = u.PatientPhone
	}
	if u.PatientAddress != nil {
		a.PatientAddress = u.PatientAddress
	}
	if u.DoctorName != nil {
		a.DoctorName = *u.DoctorName
	}
	if u.AppointmentTime != nil {
		a.AppointmentTime = u.AppointmentTime.UTC().Truncate(time.Minute)
	}
	if u.Reason != nil {
		a.Reason = u.Reason
	}
}

// Sealer encrypts a single field value.
type Sealer interface {
	Encrypt(value any) (string, error)
}

// Opener decrypts a field value, returning it unchanged when it is not
// ciphertext.
type Opener interface {
	SafeDecrypt(value any) any
}

// SealContact encrypts the patient contact fields in place.
func (a *Appointment) SealContact(s Sealer) error {
	if a.PatientEmail != "" {
		email, err := s.Encrypt(a.PatientEmail)
		if err != nil {
			return err
		}
		a.PatientEmail = email
	}

	for _, field := range []**string{&a.PatientPhone, &a.PatientAddress} {
		if *field == nil {
			continue
		}
		sealed, err := s.Encrypt(**field)
		if err != nil {
			return err
		}
		*field = &sealed
	}
	return nil
}

// OpenContact returns a copy with the contact fields decrypted.
func (a Appointment) OpenContact(o Opener) Appointment {
	if s, ok := o.SafeDecrypt(a.PatientEmail).(string); ok {
		a.PatientEmail = s
	}
	for _, field := range []**string{&a.PatientPhone, &a.PatientAddress} {
		if *field == nil {
			continue
		}
		if s, ok := o.SafeDecrypt(**field).(string); ok {
			*field = &s
		}
	}
	return a
}

// DurationMinutes converts call seconds to minutes rounded to two places.
func DurationMinutes(seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return math.Round(seconds/60*100) / 100
}
