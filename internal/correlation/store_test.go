package correlation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/appointment"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/logging"
)

type memRepo struct {
	mu     sync.Mutex
	starts map[string]CallStart
	logs   []CallLog
}

func newMemRepo() *memRepo {
	return &memRepo{starts: make(map[string]CallStart)}
}

func (r *memRepo) InsertCallStart(_ context.Context, cs CallStart) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.starts[cs.CallID]; ok {
		return false, nil
	}
	r.starts[cs.CallID] = cs
	return true, nil
}

func (r *memRepo) GetCallStart(_ context.Context, callID string) (*CallStart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.starts[callID]
	if !ok {
		return nil, ErrCallStartNotFound
	}
	return &cs, nil
}

func (r *memRepo) InsertCallLog(_ context.Context, l CallLog) (*CallLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.ID = int64(len(r.logs) + 1)
	r.logs = append(r.logs, l)
	return &l, nil
}

func (r *memRepo) LatestCallLog(_ context.Context, callID string) (*CallLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.logs) - 1; i >= 0; i-- {
		if r.logs[i].CallID == callID {
			l := r.logs[i]
			return &l, nil
		}
	}
	return nil, ErrCallLogNotFound
}

func (r *memRepo) GetCallLog(_ context.Context, id int64) (*CallLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 1 || int(id) > len(r.logs) {
		return nil, ErrCallLogNotFound
	}
	l := r.logs[id-1]
	return &l, nil
}

func (r *memRepo) ListCallLogs(_ context.Context, limit, offset int) ([]CallLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CallLog(nil), r.logs...), nil
}

type fakeBookings struct {
	byCall map[string]*appointment.Appointment
	err    error
}

func (f *fakeBookings) FindByCallID(_ context.Context, callID string) (*appointment.Appointment, error) {
	if f.err != nil {
		return nil, f.err
	}
	a, ok := f.byCall[callID]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return a, nil
}

func (f *fakeBookings) AttachCallDuration(ctx context.Context, callID string, seconds float64) (*appointment.Appointment, error) {
	a, err := f.FindByCallID(ctx, callID)
	if err != nil {
		return nil, err
	}
	minutes := appointment.DurationMinutes(seconds)
	a.CallDurationSeconds = &seconds
	a.CallDurationMinutes = &minutes
	return a, nil
}

func newTestStore(bookings *fakeBookings) (*Store, *memRepo) {
	repo := newMemRepo()
	return NewStore(repo, bookings, logging.Discard()), repo
}

func TestRecordCallStartIsWriteOnce(t *testing.T) {
	store, _ := newTestStore(&fakeBookings{})
	ctx := context.Background()

	inserted, err := store.RecordCallStart(ctx, "abc", "enc-email", "Amna", "u1")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.RecordCallStart(ctx, "abc", "other", "Someone", "u2")
	require.NoError(t, err)
	assert.False(t, inserted)

	cs, err := store.LookupPriorCallStart(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "enc-email", cs.Email)
	assert.Equal(t, "Amna", cs.UserName)

	missing, err := store.LookupPriorCallStart(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRecordCallLogDerivesMinutes(t *testing.T) {
	store, _ := newTestStore(&fakeBookings{})
	ctx := context.Background()

	l, err := store.RecordCallLog(ctx, "abc", []byte(`{"message":{}}`), 125, nil)
	require.NoError(t, err)
	assert.Equal(t, 125.0, l.DurationSeconds)
	assert.Equal(t, 2.08, l.DurationMinutes)

	l, err = store.RecordCallLog(ctx, "abc", []byte(`{}`), 0, nil)
	require.NoError(t, err)
	assert.Zero(t, l.DurationMinutes)

	prior, err := store.LookupPriorLog(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, l.ID, prior.ID)
}

func TestAttachDurationUnknownCallIsNoop(t *testing.T) {
	store, _ := newTestStore(&fakeBookings{byCall: map[string]*appointment.Appointment{}})

	appt, err := store.AttachDurationToBooking(context.Background(), "ghost", 125)
	require.NoError(t, err)
	assert.Nil(t, appt)
}

func TestAttachDurationKeepsKnownDurationOnZero(t *testing.T) {
	seconds, minutes := 180.0, 3.0
	booking := &appointment.Appointment{CallDurationSeconds: &seconds, CallDurationMinutes: &minutes}
	store, _ := newTestStore(&fakeBookings{byCall: map[string]*appointment.Appointment{"abc": booking}})

	appt, err := store.AttachDurationToBooking(context.Background(), "abc", 0)
	require.NoError(t, err)
	assert.Equal(t, 3.0, *appt.CallDurationMinutes)

	appt, err = store.AttachDurationToBooking(context.Background(), "abc", 125)
	require.NoError(t, err)
	assert.Equal(t, 2.08, *appt.CallDurationMinutes)
}

func TestAttachDurationStoreFailure(t *testing.T) {
	store, _ := newTestStore(&fakeBookings{err: errors.New("pool closed")})

	_, err := store.AttachDurationToBooking(context.Background(), "abc", 10)
	assert.Error(t, err)
}

func TestStateTransitions(t *testing.T) {
	bookings := &fakeBookings{byCall: map[string]*appointment.Appointment{}}
	store, _ := newTestStore(bookings)
	ctx := context.Background()

	state, err := store.State(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, StateNew, state)

	_, err = store.RecordCallLog(ctx, "abc", []byte(`{}`), 60, nil)
	require.NoError(t, err)
	state, err = store.State(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, StateLogOnly, state)

	bookings.byCall["abc"] = &appointment.Appointment{}
	state, err = store.State(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, StateReconciled, state)

	bookings.byCall["xyz"] = &appointment.Appointment{}
	state, err = store.State(ctx, "xyz")
	require.NoError(t, err)
	assert.Equal(t, StateBookingOnly, state)
}
