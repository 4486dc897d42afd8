// Package memstore keeps appointments and call correlation rows in process
// memory. It enforces the same uniqueness as the Postgres indexes and backs
// the in-process simulator and the handler tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/appointment"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/correlation"
)

var (
	_ appointment.Repository = (*Appointments)(nil)
	_ correlation.Repository = (*CallLogs)(nil)
)

type Appointments struct {
	mu    sync.Mutex
	items map[uuid.UUID]appointment.Appointment
}

func NewAppointments() *Appointments {
	return &Appointments{items: make(map[uuid.UUID]appointment.Appointment)}
}

// Len reports how many appointments are stored.
func (r *Appointments) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func (r *Appointments) conflict(patientName, doctorName string, at time.Time, exclude *uuid.UUID) *appointment.Appointment {
	var found *appointment.Appointment
	for _, existing := range r.items {
		if exclude != nil && existing.ID == *exclude {
			continue
		}
		if !existing.AppointmentTime.Equal(at) {
			continue
		}
		if existing.PatientName != patientName && existing.DoctorName != doctorName {
			continue
		}
		if found == nil || existing.CreatedAt.Before(found.CreatedAt) {
			a := existing
			found = &a
		}
	}
	return found
}

func (r *Appointments) FindConflicting(_ context.Context, patientName, doctorName string, at time.Time, excludeID *uuid.UUID) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if found := r.conflict(patientName, doctorName, at, excludeID); found != nil {
		return found, nil
	}
	return nil, appointment.ErrAppointmentNotFound
}

func (r *Appointments) ExistsAt(_ context.Context, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.items {
		if a.AppointmentTime.Equal(at) {
			return true, nil
		}
	}
	return false, nil
}

func (r *Appointments) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *Appointments) FindByCallID(_ context.Context, callID string) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *appointment.Appointment
	for _, a := range r.items {
		if !a.HasCallID(callID) {
			continue
		}
		if found == nil || a.CreatedAt.After(found.CreatedAt) {
			a := a
			found = &a
		}
	}
	if found == nil {
		return nil, appointment.ErrAppointmentNotFound
	}
	return found, nil
}

func (r *Appointments) List(_ context.Context, limit, offset int) ([]appointment.Appointment, error) {
	r.mu.Lock()
	out := make([]appointment.Appointment, 0, len(r.items))
	for _, a := range r.items {
		out = append(out, a)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].AppointmentTime.Equal(out[j].AppointmentTime) {
			return out[i].AppointmentTime.After(out[j].AppointmentTime)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return page(out, limit, offset), nil
}

func (r *Appointments) Insert(_ context.Context, a appointment.Appointment) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflict(a.PatientName, a.DoctorName, a.AppointmentTime, nil) != nil {
		return nil, appointment.ErrDuplicateAppointment
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	r.items[a.ID] = a
	return &a, nil
}

func (r *Appointments) Update(_ context.Context, a appointment.Appointment) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.items[a.ID]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	if r.conflict(a.PatientName, a.DoctorName, a.AppointmentTime, &a.ID) != nil {
		return nil, appointment.ErrDuplicateAppointment
	}
	a.CreatedAt = current.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	r.items[a.ID] = a
	return &a, nil
}

func (r *Appointments) SetCallDuration(_ context.Context, callID string, seconds, minutes float64) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var updated *appointment.Appointment
	for id, a := range r.items {
		if !a.HasCallID(callID) {
			continue
		}
		s, m := seconds, minutes
		a.CallDurationSeconds = &s
		a.CallDurationMinutes = &m
		a.UpdatedAt = time.Now().UTC()
		r.items[id] = a
		if updated == nil || a.CreatedAt.After(updated.CreatedAt) {
			a := a
			updated = &a
		}
	}
	if updated == nil {
		return nil, appointment.ErrAppointmentNotFound
	}
	return updated, nil
}

func (r *Appointments) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return appointment.ErrAppointmentNotFound
	}
	delete(r.items, id)
	return nil
}

type CallLogs struct {
	mu     sync.Mutex
	nextID int64
	logs   []correlation.CallLog
	starts map[string]correlation.CallStart
}

func NewCallLogs() *CallLogs {
	return &CallLogs{starts: make(map[string]correlation.CallStart)}
}

// Len reports how many call logs are stored.
func (r *CallLogs) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.logs)
}

func (r *CallLogs) InsertCallStart(_ context.Context, cs correlation.CallStart) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.starts[cs.CallID]; ok {
		return false, nil
	}
	cs.CreatedAt = time.Now().UTC()
	r.starts[cs.CallID] = cs
	return true, nil
}

func (r *CallLogs) GetCallStart(_ context.Context, callID string) (*correlation.CallStart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.starts[callID]
	if !ok {
		return nil, correlation.ErrCallStartNotFound
	}
	return &cs, nil
}

func (r *CallLogs) InsertCallLog(_ context.Context, l correlation.CallLog) (*correlation.CallLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	l.ID = r.nextID
	l.ReceivedAt = time.Now().UTC()
	r.logs = append(r.logs, l)
	return &l, nil
}

// LatestCallLog returns the newest log; ties on receive time go to the
// later insert, as in the Postgres ordering.
func (r *CallLogs) LatestCallLog(_ context.Context, callID string) (*correlation.CallLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.logs) - 1; i >= 0; i-- {
		if r.logs[i].CallID == callID {
			l := r.logs[i]
			return &l, nil
		}
	}
	return nil, correlation.ErrCallLogNotFound
}

func (r *CallLogs) GetCallLog(_ context.Context, id int64) (*correlation.CallLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.logs {
		if l.ID == id {
			return &l, nil
		}
	}
	return nil, correlation.ErrCallLogNotFound
}

func (r *CallLogs) ListCallLogs(_ context.Context, limit, offset int) ([]correlation.CallLog, error) {
	r.mu.Lock()
	out := make([]correlation.CallLog, 0, len(r.logs))
	for i := len(r.logs) - 1; i >= 0; i-- {
		out = append(out, r.logs[i])
	}
	r.mu.Unlock()
	return page(out, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
