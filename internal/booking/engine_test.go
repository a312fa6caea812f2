package booking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/appointment-booking-engine/internal/booking"
	"github.com/hackgods/appointment-booking-engine/internal/events/eventstest"
	redisclient "github.com/hackgods/appointment-booking-engine/internal/redis"
	"github.com/hackgods/appointment-booking-engine/internal/store/memstore"
)

func TestCreateAppointment_SecondBookingOnFullSlotConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sl := h.slot(t, uuid.New(), at(9, 0), 30, 1)

	appt := h.book(t, uuid.New(), sl)
	assert.Equal(t, booking.StatusScheduled, appt.Status)
	assert.Equal(t, sl.StartTime, appt.StartTime)
	assert.Equal(t, sl.EndTime, appt.EndTime)
	assert.Equal(t, sl.ProviderID, appt.ProviderID)

	got := h.getSlot(t, sl.ID)
	assert.Equal(t, booking.SlotBooked, got.Status)
	assert.Equal(t, 1, got.CurrentBookings)

	_, err := h.svc.CreateAppointment(ctx, booking.CreateAppointmentRequest{PatientID: uuid.New(), SlotID: sl.ID})
	require.ErrorIs(t, err, booking.ErrSlotFull)
	assert.Equal(t, booking.KindConflict, booking.KindOf(err))
	assert.Equal(t, 1, h.getSlot(t, sl.ID).CurrentBookings)
}

func TestCreateAppointment_PatientOverlapIsRejectedButTouchingIsNot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	provider := uuid.New()
	patient := uuid.New()
	s1 := h.slot(t, provider, at(9, 0), 30, 1)
	s2 := h.slot(t, uuid.New(), at(9, 15), 30, 1)
	s3 := h.slot(t, provider, at(9, 30), 30, 1)
	h.book(t, patient, s1)

	_, err := h.svc.CreateAppointment(ctx, booking.CreateAppointmentRequest{PatientID: patient, SlotID: s2.ID})
	require.ErrorIs(t, err, booking.ErrDoubleBooking)
	assert.Equal(t, booking.KindConflict, booking.KindOf(err))
	assert.Zero(t, h.getSlot(t, s2.ID).CurrentBookings, "failed booking leaves no reservation")

	appt := h.book(t, patient, s3)
	assert.Equal(t, s3.ID, appt.SlotID)
}

func TestCancelAppointment_ReleasesSeatAndOffersItToWaitlist(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	provider := uuid.New()
	s1 := h.slot(t, provider, at(9, 0), 30, 1)
	appt := h.book(t, uuid.New(), s1)

	low := h.join(t, uuid.New(), provider, 1)
	high := h.join(t, uuid.New(), provider, 5)

	actor := uuid.New()
	cancelled, err := h.svc.CancelAppointment(ctx, appt.ID, actor, "feeling better")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, actor, *cancelled.CancelledBy)
	assert.Equal(t, "feeling better", cancelled.CancellationReason)

	sl := h.getSlot(t, s1.ID)
	assert.Equal(t, booking.SlotAvailable, sl.Status)
	assert.Zero(t, sl.CurrentBookings)

	offered := h.entry(t, high.ID)
	assert.Equal(t, booking.WaitlistOffered, offered.Status)
	require.NotNil(t, offered.OfferedSlotID)
	assert.Equal(t, s1.ID, *offered.OfferedSlotID)
	assert.Equal(t, base.Add(2*time.Hour), *offered.OfferExpiresAt)
	assert.Equal(t, booking.WaitlistWaiting, h.entry(t, low.ID).Status)

	assert.Equal(t, []booking.EventType{
		booking.EventAppointmentCreated,
		booking.EventAppointmentCancelled,
		booking.EventWaitlistOffered,
	}, h.rec.EventTypes())
}

func TestCancelAppointment_PaidBookingQueuesRefund(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sl := h.slot(t, uuid.New(), at(9, 0), 30, 1)
	appt, err := h.svc.CreateAppointment(ctx, booking.CreateAppointmentRequest{PatientID: uuid.New(), SlotID: sl.ID, Paid: true})
	require.NoError(t, err)
	h.rec.Reset()

	_, err = h.svc.CancelAppointment(ctx, appt.ID, uuid.Nil, "")
	require.NoError(t, err)

	jobs := h.rec.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, booking.JobRefund, jobs[0].Kind)
	assert.Equal(t, appt.ID, *jobs[0].AppointmentID)

	_, err = h.svc.CancelAppointment(ctx, appt.ID, uuid.Nil, "")
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)
}

func TestCreateAppointment_Effects(t *testing.T) {
	h := newHarness(t)
	// starts more than a day out, so a reminder is scheduled
	sl := h.slot(t, uuid.New(), base.Add(48*time.Hour), 30, 1)
	appt := h.book(t, uuid.New(), sl)

	jobs := h.rec.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, booking.JobConfirmation, jobs[0].Kind)
	assert.Equal(t, booking.JobReminder, jobs[1].Kind)
	assert.Equal(t, appt.StartTime.Add(-24*time.Hour), jobs[1].RunAt)

	// too close to start for a reminder
	h.rec.Reset()
	soon := h.slot(t, uuid.New(), at(9, 0), 30, 1)
	h.book(t, uuid.New(), soon)
	jobs = h.rec.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, booking.JobConfirmation, jobs[0].Kind)
}

func TestCreateAppointment_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	provider := uuid.New()
	sl := h.slot(t, provider, at(9, 0), 30, 1, "consult")

	tests := []struct {
		name string
		req  booking.CreateAppointmentRequest
		want error
	}{
		{"missing patient", booking.CreateAppointmentRequest{SlotID: sl.ID}, booking.ErrValidation},
		{"missing slot", booking.CreateAppointmentRequest{PatientID: uuid.New()}, booking.ErrValidation},
		{"unknown slot", booking.CreateAppointmentRequest{PatientID: uuid.New(), SlotID: uuid.New()}, booking.ErrSlotNotFound},
		{"wrong provider", booking.CreateAppointmentRequest{PatientID: uuid.New(), SlotID: sl.ID, ProviderID: uuid.New()}, booking.ErrValidation},
		{"type not allowed", booking.CreateAppointmentRequest{PatientID: uuid.New(), SlotID: sl.ID, AppointmentTypeID: "surgery"}, booking.ErrTypeNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.CreateAppointment(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := h.svc.CreateAppointment(ctx, booking.CreateAppointmentRequest{
		PatientID: uuid.New(), SlotID: sl.ID, ProviderID: provider, AppointmentTypeID: "consult",
	})
	assert.NoError(t, err)
}

func TestCreateAppointment_ConcurrentRequestsForLastSeat(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sl := h.slot(t, uuid.New(), at(9, 0), 30, 1)

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.CreateAppointment(ctx, booking.CreateAppointmentRequest{PatientID: uuid.New(), SlotID: sl.ID})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, booking.KindConflict, booking.KindOf(err))
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, h.getSlot(t, sl.ID).CurrentBookings)

	appts, err := h.svc.ListAppointmentsBySlot(ctx, sl.ID)
	require.NoError(t, err)
	assert.Len(t, appts, 1)
}

func TestCreateAppointment_ConcurrentSamePatientOverlappingSlots(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	patient := uuid.New()
	a := h.slot(t, uuid.New(), at(9, 0), 30, 1)
	b := h.slot(t, uuid.New(), at(9, 10), 30, 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, sl := range []*booking.Slot{a, b} {
		wg.Add(1)
		go func(i int, sl *booking.Slot) {
			defer wg.Done()
			_, errs[i] = h.svc.CreateAppointment(ctx, booking.CreateAppointmentRequest{PatientID: patient, SlotID: sl.ID})
		}(i, sl)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			assert.ErrorIs(t, err, booking.ErrDoubleBooking)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestRescheduleAppointment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	provider := uuid.New()
	patient := uuid.New()
	oldSlot := h.slot(t, provider, at(9, 0), 30, 1)
	newSlot := h.slot(t, provider, at(11, 0), 30, 1)
	orig := h.book(t, patient, oldSlot)
	w := h.join(t, uuid.New(), provider, 0)

	next, err := h.svc.RescheduleAppointment(ctx, orig.ID, newSlot.ID, "clash at work")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusScheduled, next.Status)
	assert.Equal(t, newSlot.ID, next.SlotID)
	assert.Equal(t, newSlot.StartTime, next.StartTime)
	require.NotNil(t, next.PreviousAppointmentID)
	assert.Equal(t, orig.ID, *next.PreviousAppointmentID)

	old, err := h.svc.GetAppointment(ctx, orig.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusRescheduled, old.Status)
	require.NotNil(t, old.RescheduledTo)
	assert.Equal(t, next.ID, *old.RescheduledTo)
	assert.Equal(t, "clash at work", old.RescheduleReason)

	assert.Zero(t, h.getSlot(t, oldSlot.ID).CurrentBookings)
	assert.Equal(t, 1, h.getSlot(t, newSlot.ID).CurrentBookings)

	// the freed slot went to the waitlist
	assert.Equal(t, booking.WaitlistOffered, h.entry(t, w.ID).Status)

	chain, err := h.svc.RescheduleChain(ctx, next.ID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, orig.ID, chain[0].ID)
	assert.Equal(t, next.ID, chain[1].ID)

	later := h.slot(t, provider, at(13, 0), 30, 1)
	_, err = h.svc.RescheduleAppointment(ctx, orig.ID, later.ID, "")
	assert.ErrorIs(t, err, booking.ErrInvalidTransition, "a rescheduled appointment is terminal")
}

func TestRescheduleAppointment_FailureLeavesEverythingInPlace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	provider := uuid.New()
	patient := uuid.New()
	oldSlot := h.slot(t, provider, at(9, 0), 30, 1)
	fullSlot := h.slot(t, provider, at(10, 0), 30, 1)
	otherSlot := h.slot(t, uuid.New(), at(11, 0), 30, 1)
	clashSlot := h.slot(t, provider, at(11, 15), 30, 1)
	orig := h.book(t, patient, oldSlot)
	h.book(t, uuid.New(), fullSlot)
	h.book(t, patient, otherSlot)

	_, err := h.svc.RescheduleAppointment(ctx, orig.ID, fullSlot.ID, "")
	assert.ErrorIs(t, err, booking.ErrSlotFull)

	_, err = h.svc.RescheduleAppointment(ctx, orig.ID, clashSlot.ID, "")
	assert.ErrorIs(t, err, booking.ErrDoubleBooking)

	_, err = h.svc.RescheduleAppointment(ctx, orig.ID, oldSlot.ID, "")
	assert.ErrorIs(t, err, booking.ErrValidation)

	got, err := h.svc.GetAppointment(ctx, orig.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusScheduled, got.Status)
	assert.Equal(t, 1, h.getSlot(t, oldSlot.ID).CurrentBookings)
	assert.Equal(t, 1, h.getSlot(t, fullSlot.ID).CurrentBookings)
	assert.Zero(t, h.getSlot(t, clashSlot.ID).CurrentBookings)
}

func TestRescheduleAppointment_OverlapWithItselfIsAllowed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	provider := uuid.New()
	patient := uuid.New()
	s1 := h.slot(t, provider, at(9, 0), 30, 1)
	s2 := h.slot(t, uuid.New(), at(9, 15), 30, 1)
	orig := h.book(t, patient, s1)

	next, err := h.svc.RescheduleAppointment(ctx, orig.ID, s2.ID, "")
	require.NoError(t, err)
	assert.Equal(t, s2.ID, next.SlotID)
	assert.Equal(t, s2.ProviderID, next.ProviderID)
}

func TestRescheduleChain_ThreeHops(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	provider := uuid.New()
	a := h.book(t, uuid.New(), h.slot(t, provider, at(9, 0), 30, 1))
	b, err := h.svc.RescheduleAppointment(ctx, a.ID, h.slot(t, provider, at(10, 0), 30, 1).ID, "")
	require.NoError(t, err)
	c, err := h.svc.RescheduleAppointment(ctx, b.ID, h.slot(t, provider, at(11, 0), 30, 1).ID, "")
	require.NoError(t, err)

	for _, id := range []uuid.UUID{a.ID, b.ID, c.ID} {
		chain, err := h.svc.RescheduleChain(ctx, id)
		require.NoError(t, err)
		require.Len(t, chain, 3)
		assert.Equal(t, []uuid.UUID{a.ID, b.ID, c.ID}, []uuid.UUID{chain[0].ID, chain[1].ID, chain[2].ID})
	}
}

func TestListAppointmentsByPatient(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	patient := uuid.New()
	provider := uuid.New()
	for i := 0; i < 3; i++ {
		h.book(t, patient, h.slot(t, provider, at(9+i, 0), 30, 1))
	}
	h.book(t, uuid.New(), h.slot(t, provider, at(13, 0), 30, 1))

	list, err := h.svc.ListAppointmentsByPatient(ctx, patient, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, at(11, 0), list[0].StartTime, "newest first")

	list, err = h.svc.ListAppointmentsByPatient(ctx, patient, 1, 2)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, at(9, 0), list[0].StartTime)
}

func TestGetAppointment_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.GetAppointment(context.Background(), uuid.New())
	assert.ErrorIs(t, err, booking.ErrAppointmentNotFound)
	assert.Equal(t, booking.KindNotFound, booking.KindOf(err))
}

// busyLocker reports the slot lock as held for the next busy attempts, the
// way the Redis locker does while another request owns the key.
type busyLocker struct {
	redisclient.Locker
	mu       sync.Mutex
	busy     int
	attempts int
}

func (l *busyLocker) WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	l.attempts++
	held := l.busy > 0
	if held {
		l.busy--
	}
	l.mu.Unlock()
	if held {
		return redisclient.ErrLockNotAcquired
	}
	return l.Locker.WithSlotLock(ctx, slotID, fn)
}

func (l *busyLocker) hold(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.busy, l.attempts = n, 0
}

func TestCancelAppointment_WaitsOutHeldSlotLock(t *testing.T) {
	tests := []struct {
		name     string
		busy     int
		wantErr  error
		attempts int
	}{
		{"free", 0, nil, 1},
		{"held briefly", 2, nil, 3},
		{"held throughout", 10, booking.ErrSlotBeingBooked, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locker := &busyLocker{Locker: redisclient.NewLocalSlotLocker()}
			svc := booking.NewService(memstore.New(), locker, &eventstest.Recorder{}, booking.DefaultPolicy(), zerolog.Nop(),
				booking.WithClock(func() time.Time { return base }),
				booking.WithLockRetry(3, time.Millisecond))
			ctx := context.Background()

			sl, err := svc.CreateSlot(ctx, booking.NewSlot{ProviderID: uuid.New(), StartTime: at(9, 0), EndTime: at(9, 30), MaxBookings: 1})
			require.NoError(t, err)
			appt, err := svc.CreateAppointment(ctx, booking.CreateAppointmentRequest{PatientID: uuid.New(), SlotID: sl.ID})
			require.NoError(t, err)

			locker.hold(tt.busy)
			got, err := svc.CancelAppointment(ctx, appt.ID, uuid.Nil, "")
			assert.Equal(t, tt.attempts, locker.attempts)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, booking.StatusCancelled, got.Status)
		})
	}
}
