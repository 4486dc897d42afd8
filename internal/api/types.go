package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/appointment"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/correlation"
)

type CreateAppointmentRequest struct {
	PatientName     string `json:"patient_name" validate:"required"`
	PatientEmail    string `json:"patient_email" validate:"omitempty,email"`
	PatientPhone    string `json:"patient_phone"`
	PatientAddress  string `json:"patient_address"`
	DoctorName      string `json:"doctor_name" validate:"required"`
	AppointmentTime string `json:"appointment_time" validate:"required"`
	Reason          string `json:"reason"`
	CallID          string `json:"call_id"`
	Source          string `json:"source" validate:"omitempty,oneof=call chat unknown"`
}

// UpdateAppointmentRequest is a partial update; absent fields are kept.
type UpdateAppointmentRequest struct {
	PatientName     *string `json:"patient_name" validate:"omitempty,min=1"`
	PatientEmail    *string `json:"patient_email" validate:"omitempty,email"`
	PatientPhone    *string `json:"patient_phone"`
	PatientAddress  *string `json:"patient_address"`
	DoctorName      *string `json:"doctor_name" validate:"omitempty,min=1"`
	AppointmentTime *string `json:"appointment_time"`
	Reason          *string `json:"reason"`
}

type AppointmentResponse struct {
	ID                  uuid.UUID `json:"id"`
	PatientName         string    `json:"patient_name"`
	PatientEmail        string    `json:"patient_email,omitempty"`
	PatientPhone        *string   `json:"patient_phone,omitempty"`
	PatientAddress      *string   `json:"patient_address,omitempty"`
	DoctorName          string    `json:"doctor_name"`
	AppointmentTime     time.Time `json:"appointment_time"`
	Reason              *string   `json:"reason,omitempty"`
	CallID              *string   `json:"call_id,omitempty"`
	Source              string    `json:"source"`
	CallDurationSeconds *float64  `json:"call_duration_seconds,omitempty"`
	CallDurationMinutes *float64  `json:"call_duration_minutes,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                  a.ID,
		PatientName:         a.PatientName,
		PatientEmail:        a.PatientEmail,
		PatientPhone:        a.PatientPhone,
		PatientAddress:      a.PatientAddress,
		DoctorName:          a.DoctorName,
		AppointmentTime:     a.AppointmentTime,
		Reason:              a.Reason,
		CallID:              a.CallID,
		Source:              string(a.Source),
		CallDurationSeconds: a.CallDurationSeconds,
		CallDurationMinutes: a.CallDurationMinutes,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type CallLogResponse struct {
	ID              int64     `json:"id"`
	CallID          string    `json:"call_id"`
	Body            any       `json:"body,omitempty"`
	ReceivedAt      time.Time `json:"received_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	DurationMinutes float64   `json:"duration_minutes"`
	CallerEmail     string    `json:"caller_email,omitempty"`
}

type CallStateResponse struct {
	CallID string            `json:"call_id"`
	State  correlation.State `json:"state"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
