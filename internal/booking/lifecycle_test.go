package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/appointment-booking-engine/internal/booking"
)

func TestCanTransition(t *testing.T) {
	allowed := map[booking.AppointmentStatus][]booking.AppointmentStatus{
		booking.StatusScheduled:  {booking.StatusConfirmed, booking.StatusCancelled, booking.StatusRescheduled, booking.StatusNoShow},
		booking.StatusConfirmed:  {booking.StatusInProgress, booking.StatusCancelled, booking.StatusNoShow},
		booking.StatusInProgress: {booking.StatusCompleted},
	}
	all := []booking.AppointmentStatus{
		booking.StatusScheduled, booking.StatusConfirmed, booking.StatusInProgress, booking.StatusCompleted,
		booking.StatusCancelled, booking.StatusNoShow, booking.StatusRescheduled,
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			assert.Equal(t, want, booking.CanTransition(from, to), "%s -> %s", from, to)
		}
		assert.Equal(t, len(allowed[from]) == 0, from.Terminal(), "terminal %s", from)
	}
}

func TestCheckIn_Window(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	appt := h.book(t, uuid.New(), h.slot(t, uuid.New(), at(9, 0), 30, 1))

	_, err := h.svc.CheckIn(ctx, appt.ID)
	assert.ErrorIs(t, err, booking.ErrInvalidState, "too early")

	h.clock.Set(at(8, 30))
	got, err := h.svc.CheckIn(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, got.Status)
	require.NotNil(t, got.CheckedInAt)
	assert.Equal(t, at(8, 30), *got.CheckedInAt)

	_, err = h.svc.CheckIn(ctx, appt.ID)
	assert.ErrorIs(t, err, booking.ErrInvalidState, "already checked in")
}

func TestCheckIn_ClosesAfterStart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	appt := h.book(t, uuid.New(), h.slot(t, uuid.New(), at(9, 0), 30, 1))

	h.clock.Set(at(9, 15))
	_, err := h.svc.CheckIn(ctx, appt.ID)
	require.NoError(t, err, "closing instant is still inside the window")

	late := h.book(t, uuid.New(), h.slot(t, uuid.New(), at(9, 15), 30, 1))
	h.clock.Set(at(9, 30).Add(time.Second))
	_, err = h.svc.CheckIn(ctx, late.ID)
	assert.ErrorIs(t, err, booking.ErrInvalidState)
}

func TestLifecycle_HappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	patient := uuid.New()
	appt := h.book(t, patient, h.slot(t, uuid.New(), at(9, 0), 30, 1))

	_, err := h.svc.StartAppointment(ctx, appt.ID)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition, "scheduled cannot start")

	got, err := h.svc.ConfirmAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, got.Status)

	_, err = h.svc.ConfirmAppointment(ctx, appt.ID)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)

	h.clock.Set(at(9, 2))
	got, err = h.svc.StartAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusInProgress, got.Status)
	assert.Equal(t, at(9, 2), *got.ActualStartAt)

	h.clock.Set(at(9, 25))
	got, err = h.svc.CompleteAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCompleted, got.Status)
	assert.Equal(t, at(9, 25), *got.ActualEndAt)

	_, err = h.svc.CompleteAppointment(ctx, appt.ID)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)
	_, err = h.svc.CancelAppointment(ctx, appt.ID, uuid.Nil, "")
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)

	assert.Equal(t, []booking.EventType{
		booking.EventAppointmentCreated,
		booking.EventAppointmentConfirmed,
		booking.EventAppointmentStarted,
		booking.EventAppointmentCompleted,
	}, h.rec.EventTypes())

	// a completed visit still holds its interval
	_, err = h.svc.CreateAppointment(ctx, booking.CreateAppointmentRequest{
		PatientID: patient,
		SlotID:    h.slot(t, uuid.New(), at(9, 10), 30, 1).ID,
	})
	assert.ErrorIs(t, err, booking.ErrDoubleBooking)
}

func TestMarkNoShow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	absent := h.book(t, uuid.New(), h.slot(t, uuid.New(), at(9, 0), 30, 1))
	present := h.book(t, uuid.New(), h.slot(t, uuid.New(), at(9, 0), 30, 1))

	h.clock.Set(at(8, 45))
	_, err := h.svc.CheckIn(ctx, present.ID)
	require.NoError(t, err)

	h.clock.Set(at(9, 29))
	_, err = h.svc.MarkNoShow(ctx, absent.ID)
	assert.ErrorIs(t, err, booking.ErrInvalidState, "before the scheduled end")

	h.clock.Set(at(9, 30))
	got, err := h.svc.MarkNoShow(ctx, absent.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusNoShow, got.Status)

	_, err = h.svc.MarkNoShow(ctx, present.ID)
	assert.ErrorIs(t, err, booking.ErrInvalidState, "patient checked in")

	_, err = h.svc.MarkNoShow(ctx, absent.ID)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)
}
