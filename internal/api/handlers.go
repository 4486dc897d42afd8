package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/appointment"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/timeparse"
)

type AppointmentService interface {
	Create(ctx context.Context, a appointment.Appointment) (*appointment.Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	List(ctx context.Context, limit, offset int) ([]appointment.Appointment, error)
	Update(ctx context.Context, id uuid.UUID, u appointment.Update) (*appointment.Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// FieldCipher seals contact fields on write and opens them on the admin
// read path.
type FieldCipher interface {
	Encrypt(value any) (string, error)
	SafeDecrypt(value any) any
	OpenPayload(raw []byte) ([]byte, error)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationDetails(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+" failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}

func createAppointmentHandler(svc AppointmentService, cipher FieldCipher, times *timeparse.Normalizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", validationDetails(err))
			return
		}

		at, err := times.Parse(req.AppointmentTime)
		if err != nil {
			writeTimeError(w, err)
			return
		}

		appt := appointment.Appointment{
			PatientName:     req.PatientName,
			PatientEmail:    req.PatientEmail,
			PatientPhone:    optional(req.PatientPhone),
			PatientAddress:  optional(req.PatientAddress),
			DoctorName:      req.DoctorName,
			AppointmentTime: at,
			Reason:          optional(req.Reason),
			CallID:          optional(req.CallID),
			Source:          appointment.ParseSource(req.Source),
		}
		if err := appt.SealContact(cipher); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "could not encrypt contact fields")
			return
		}

		created, err := svc.Create(r.Context(), appt)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(*created))
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.GetByID(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func listAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pagination(r)

		appts, err := svc.List(r.Context(), limit, offset)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		items := make([]AppointmentResponse, 0, len(appts))
		for _, a := range appts {
			items = append(items, toAppointmentResponse(a))
		}
		writeJSON(w, http.StatusOK, ListResponse[AppointmentResponse]{Items: items, Limit: limit, Offset: offset})
	}
}

func updateAppointmentHandler(svc AppointmentService, cipher FieldCipher, times *timeparse.Normalizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req UpdateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", validationDetails(err))
			return
		}

		u := appointment.Update{
			PatientName: req.PatientName,
			DoctorName:  req.DoctorName,
			Reason:      req.Reason,
		}
		if req.AppointmentTime != nil {
			at, err := times.Parse(*req.AppointmentTime)
			if err != nil {
				writeTimeError(w, err)
				return
			}
			u.AppointmentTime = &at
		}

		var err error
		if u.PatientEmail, err = sealOptional(cipher, req.PatientEmail); err == nil {
			if u.PatientPhone, err = sealOptional(cipher, req.PatientPhone); err == nil {
				u.PatientAddress, err = sealOptional(cipher, req.PatientAddress)
			}
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "could not encrypt contact fields")
			return
		}

		updated, err := svc.Update(r.Context(), id, u)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*updated))
	}
}

func deleteAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), id); err != nil {
			handleAppointmentError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func handleAppointmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrDuplicateAppointment):
		writeError(w, http.StatusConflict, "duplicate_appointment", err.Error())
	case errors.Is(err, appointment.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", "time is currently being booked, please retry shortly")
	case errors.Is(err, appointment.ErrInvalidAppointment):
		writeError(w, http.StatusBadRequest, "invalid_appointment", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeTimeError(w http.ResponseWriter, err error) {
	if errors.Is(err, timeparse.ErrPastTime) {
		writeError(w, http.StatusBadRequest, "past_appointment_time", err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, "invalid_appointment_time", err.Error())
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// pagination reads limit and offset; the stores clamp them.
func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func sealOptional(cipher FieldCipher, value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	if *value == "" {
		return value, nil
	}
	sealed, err := cipher.Encrypt(*value)
	if err != nil {
		return nil, err
	}
	return &sealed, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
