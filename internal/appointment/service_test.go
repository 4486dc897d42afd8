package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/logging"
	redisclient "github.com/Talhasaeed420/Clinic-Ai-Agent/internal/redis"
)

// memRepo enforces the same uniqueness as the Postgres indexes.
type memRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]Appointment
	// hideConflicts makes FindConflicting miss, as if a concurrent insert
	// landed between the check and the write.
	hideConflicts bool
}

func newMemRepo() *memRepo {
	return &memRepo{items: make(map[uuid.UUID]Appointment)}
}

func (r *memRepo) conflict(a Appointment, exclude *uuid.UUID) *Appointment {
	for _, existing := range r.items {
		if exclude != nil && existing.ID == *exclude {
			continue
		}
		if !existing.AppointmentTime.Equal(a.AppointmentTime) {
			continue
		}
		if existing.PatientName == a.PatientName || existing.DoctorName == a.DoctorName {
			found := existing
			return &found
		}
	}
	return nil
}

func (r *memRepo) FindConflicting(_ context.Context, patientName, doctorName string, at time.Time, excludeID *uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hideConflicts {
		return nil, ErrAppointmentNotFound
	}
	if found := r.conflict(Appointment{PatientName: patientName, DoctorName: doctorName, AppointmentTime: at}, excludeID); found != nil {
		return found, nil
	}
	return nil, ErrAppointmentNotFound
}

func (r *memRepo) ExistsAt(_ context.Context, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.items {
		if a.AppointmentTime.Equal(at) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *memRepo) FindByCallID(_ context.Context, callID string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.items {
		if a.HasCallID(callID) {
			return &a, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *memRepo) List(_ context.Context, limit, offset int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Appointment, 0, len(r.items))
	for _, a := range r.items {
		out = append(out, a)
	}
	if offset > len(out) {
		return []Appointment{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) Insert(_ context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflict(a, nil) != nil {
		return nil, ErrDuplicateAppointment
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	r.items[a.ID] = a
	return &a, nil
}

func (r *memRepo) Update(_ context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[a.ID]; !ok {
		return nil, ErrAppointmentNotFound
	}
	if r.conflict(a, &a.ID) != nil {
		return nil, ErrDuplicateAppointment
	}
	r.items[a.ID] = a
	return &a, nil
}

func (r *memRepo) SetCallDuration(_ context.Context, callID string, seconds, minutes float64) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.items {
		if a.HasCallID(callID) {
			a.CallDurationSeconds = &seconds
			a.CallDurationMinutes = &minutes
			r.items[id] = a
			return &a, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *memRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(r.items, id)
	return nil
}

var slot = time.Date(2030, time.May, 15, 10, 0, 0, 0, time.UTC)

func booking(patient, doctor string, at time.Time) Appointment {
	return Appointment{PatientName: patient, DoctorName: doctor, AppointmentTime: at, Source: SourceCall}
}

func newTestService(repo Repository, locker redisclient.Locker) *Service {
	return NewService(repo, locker, logging.Discard())
}

func TestCreateRejectsDuplicates(t *testing.T) {
	svc := newTestService(newMemRepo(), nil)
	ctx := context.Background()

	first, err := svc.Create(ctx, booking("Amna", "Dr. Khan", slot))
	require.NoError(t, err)

	cases := map[string]Appointment{
		"same patient":      booking("Amna", "Dr. Ali", slot),
		"same doctor":       booking("Bilal", "Dr. Khan", slot),
		"seconds truncated": booking("Amna", "Dr. Khan", slot.Add(45*time.Second)),
	}
	for name, a := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, a)
			require.ErrorIs(t, err, ErrDuplicateAppointment)

			var dup *DuplicateError
			require.True(t, errors.As(err, &dup))
			require.NotNil(t, dup.Existing)
			assert.Equal(t, first.ID, dup.Existing.ID)
		})
	}

	_, err = svc.Create(ctx, booking("Amna", "Dr. Khan", slot.Add(time.Hour)))
	assert.NoError(t, err)
}

func TestCreateUniqueIndexBackstop(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, nil)

	_, err := svc.Create(context.Background(), booking("Amna", "Dr. Khan", slot))
	require.NoError(t, err)

	repo.hideConflicts = true
	_, err = svc.Create(context.Background(), booking("Bilal", "Dr. Khan", slot))
	assert.ErrorIs(t, err, ErrDuplicateAppointment)
}

func TestCreateConcurrentSameSlot(t *testing.T) {
	svc := newTestService(newMemRepo(), nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Create(context.Background(), booking("Amna", "Dr. Khan", slot)); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestCreateLockContention(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	keys := LockKeys("Amna", "Dr. Khan", slot)
	require.NoError(t, mr.Set("lock:booking:"+keys[0], "other-request"))

	svc := newTestService(newMemRepo(), redisclient.NewRedisLocker(client, time.Second))
	_, err := svc.Create(context.Background(), booking("Amna", "Dr. Khan", slot))
	assert.ErrorIs(t, err, ErrSlotBeingBooked)

	mr.Del("lock:booking:" + keys[0])
	created, err := svc.Create(context.Background(), booking("Amna", "Dr. Khan", slot))
	require.NoError(t, err)
	assert.Equal(t, "Amna", created.PatientName)
}

func TestCreateValidates(t *testing.T) {
	svc := newTestService(newMemRepo(), nil)
	for _, a := range []Appointment{
		booking(" ", "Dr. Khan", slot),
		booking("Amna", "", slot),
		booking("Amna", "Dr. Khan", time.Time{}),
	} {
		_, err := svc.Create(context.Background(), a)
		assert.ErrorIs(t, err, ErrInvalidAppointment)
	}
}

func TestAttachCallDuration(t *testing.T) {
	svc := newTestService(newMemRepo(), nil)
	ctx := context.Background()

	a := booking("Amna", "Dr. Khan", slot)
	a.CallID = ptr("abc")
	_, err := svc.Create(ctx, a)
	require.NoError(t, err)

	updated, err := svc.AttachCallDuration(ctx, "abc", 125)
	require.NoError(t, err)
	assert.Equal(t, 125.0, *updated.CallDurationSeconds)
	assert.Equal(t, 2.08, *updated.CallDurationMinutes)

	_, err = svc.AttachCallDuration(ctx, "unknown", 60)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestUpdateRechecksDuplicates(t *testing.T) {
	svc := newTestService(newMemRepo(), nil)
	ctx := context.Background()

	first, err := svc.Create(ctx, booking("Amna", "Dr. Khan", slot))
	require.NoError(t, err)
	second, err := svc.Create(ctx, booking("Bilal", "Dr. Ali", slot.Add(time.Hour)))
	require.NoError(t, err)

	_, err = svc.Update(ctx, second.ID, Update{AppointmentTime: &slot})
	assert.ErrorIs(t, err, ErrDuplicateAppointment)

	// rescheduling onto its own slot is not a conflict
	updated, err := svc.Update(ctx, first.ID, Update{AppointmentTime: &slot, Reason: ptr("follow-up")})
	require.NoError(t, err)
	assert.Equal(t, "follow-up", *updated.Reason)

	_, err = svc.Update(ctx, uuid.New(), Update{Reason: ptr("x")})
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestIsAvailableAndDelete(t *testing.T) {
	svc := newTestService(newMemRepo(), nil)
	ctx := context.Background()

	free, err := svc.IsAvailable(ctx, slot)
	require.NoError(t, err)
	assert.True(t, free)

	created, err := svc.Create(ctx, booking("Amna", "Dr. Khan", slot))
	require.NoError(t, err)

	free, err = svc.IsAvailable(ctx, slot.Add(30*time.Second))
	require.NoError(t, err)
	assert.False(t, free)

	require.NoError(t, svc.Delete(ctx, created.ID))
	assert.ErrorIs(t, svc.Delete(ctx, created.ID), ErrAppointmentNotFound)
}

func TestDurationMinutes(t *testing.T) {
	cases := map[float64]float64{0: 0, -5: 0, 125: 2.08, 180: 3, 59: 0.98, 90.5: 1.51}
	for in, want := range cases {
		assert.Equal(t, want, DurationMinutes(in), in)
	}
}

type upperSealer struct{}

func (upperSealer) Encrypt(v any) (string, error) { return "enc:" + v.(string), nil }

func (upperSealer) SafeDecrypt(v any) any {
	s, ok := v.(string)
	if !ok || len(s) < 4 || s[:4] != "enc:" {
		return v
	}
	return s[4:]
}

func TestSealAndOpenContact(t *testing.T) {
	a := booking("Amna", "Dr. Khan", slot)
	a.PatientEmail = "amna@example.com"
	a.PatientPhone = ptr("+923001234567")

	require.NoError(t, a.SealContact(upperSealer{}))
	assert.Equal(t, "enc:amna@example.com", a.PatientEmail)
	assert.Equal(t, "enc:+923001234567", *a.PatientPhone)
	assert.Nil(t, a.PatientAddress)

	opened := a.OpenContact(upperSealer{})
	assert.Equal(t, "amna@example.com", opened.PatientEmail)
	assert.Equal(t, "+923001234567", *opened.PatientPhone)
	assert.Equal(t, "enc:amna@example.com", a.PatientEmail)
}
