package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/correlation"
)

type CorrelationReader interface {
	GetCallLog(ctx context.Context, id int64) (*correlation.CallLog, error)
	ListCallLogs(ctx context.Context, limit, offset int) ([]correlation.CallLog, error)
	State(ctx context.Context, callID string) (correlation.State, error)
}

// Admin routes return contact fields and call reports in plaintext. Values
// stored before encryption was enabled pass through unchanged.

func adminListAppointmentsHandler(svc AppointmentService, cipher FieldCipher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pagination(r)

		appts, err := svc.List(r.Context(), limit, offset)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		items := make([]AppointmentResponse, 0, len(appts))
		for _, a := range appts {
			items = append(items, toAppointmentResponse(a.OpenContact(cipher)))
		}
		writeJSON(w, http.StatusOK, ListResponse[AppointmentResponse]{Items: items, Limit: limit, Offset: offset})
	}
}

func adminGetAppointmentHandler(svc AppointmentService, cipher FieldCipher) http.HandlerFunc {
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

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt.OpenContact(cipher)))
	}
}

func adminListCallLogsHandler(store CorrelationReader, cipher FieldCipher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pagination(r)

		logs, err := store.ListCallLogs(r.Context(), limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		items := make([]CallLogResponse, 0, len(logs))
		for _, l := range logs {
			items = append(items, callLogResponse(l, cipher))
		}
		writeJSON(w, http.StatusOK, ListResponse[CallLogResponse]{Items: items, Limit: limit, Offset: offset})
	}
}

func adminGetCallLogHandler(store CorrelationReader, cipher FieldCipher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_call_log_id", "id must be an integer")
			return
		}

		l, err := store.GetCallLog(r.Context(), id)
		if err != nil {
			if errors.Is(err, correlation.ErrCallLogNotFound) {
				writeError(w, http.StatusNotFound, "call_log_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := callLogResponse(*l, cipher)
		opened, err := cipher.OpenPayload(l.Body)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "payload_unreadable", err.Error())
			return
		}
		resp.Body = json.RawMessage(opened)

		writeJSON(w, http.StatusOK, resp)
	}
}

func adminCallStateHandler(store CorrelationReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callID := chi.URLParam(r, "callID")

		state, err := store.State(r.Context(), callID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, CallStateResponse{CallID: callID, State: state})
	}
}

func callLogResponse(l correlation.CallLog, cipher FieldCipher) CallLogResponse {
	resp := CallLogResponse{
		ID:              l.ID,
		CallID:          l.CallID,
		ReceivedAt:      l.ReceivedAt,
		DurationSeconds: l.DurationSeconds,
		DurationMinutes: l.DurationMinutes,
	}
	if l.CallerEmail != nil {
		if s, ok := cipher.SafeDecrypt(*l.CallerEmail).(string); ok {
			resp.CallerEmail = s
		}
	}
	return resp
}
