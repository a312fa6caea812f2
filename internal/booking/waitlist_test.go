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

func TestJoinWaitlist_OneActiveEntryPerProviderAndDate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	patient, provider := uuid.New(), uuid.New()
	first := h.join(t, patient, provider, 0)
	assert.Equal(t, booking.WaitlistWaiting, first.Status)
	assert.Equal(t, booking.DateOf(base), first.PreferredDate)

	_, err := h.svc.JoinWaitlist(ctx, booking.JoinWaitlistRequest{PatientID: patient, ProviderID: provider, PreferredDate: at(15, 0)})
	require.ErrorIs(t, err, booking.ErrDuplicateEntry)
	assert.Equal(t, booking.KindConflict, booking.KindOf(err))

	// other dates and providers are independent
	_, err = h.svc.JoinWaitlist(ctx, booking.JoinWaitlistRequest{PatientID: patient, ProviderID: provider, PreferredDate: base.AddDate(0, 0, 1)})
	require.NoError(t, err)
	h.join(t, patient, uuid.New(), 0)

	_, err = h.svc.CancelWaitlistEntry(ctx, first.ID)
	require.NoError(t, err)
	h.join(t, patient, provider, 0)
}

func TestJoinWaitlist_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  booking.JoinWaitlistRequest
	}{
		{"no patient", booking.JoinWaitlistRequest{ProviderID: uuid.New(), PreferredDate: base}},
		{"no provider", booking.JoinWaitlistRequest{PatientID: uuid.New(), PreferredDate: base}},
		{"no date", booking.JoinWaitlistRequest{PatientID: uuid.New(), ProviderID: uuid.New()}},
		{"bad window", booking.JoinWaitlistRequest{
			PatientID: uuid.New(), ProviderID: uuid.New(), PreferredDate: base,
			PreferredTimeSlots: []booking.TimeRange{{StartMinute: 600, EndMinute: 540}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.JoinWaitlist(ctx, tt.req)
			assert.ErrorIs(t, err, booking.ErrValidation)
		})
	}
}

func TestPromote_PriorityThenJoinOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	provider := uuid.New()
	sl := h.slot(t, provider, at(13, 0), 30, 3)

	a := h.join(t, uuid.New(), provider, 0)
	h.clock.Advance(time.Minute)
	b := h.join(t, uuid.New(), provider, 0)
	h.clock.Advance(time.Minute)
	urgent := h.join(t, uuid.New(), provider, 9)

	var order []uuid.UUID
	for i := 0; i < 3; i++ {
		w, err := h.svc.PromoteWaitlist(ctx, provider, sl.ID)
		require.NoError(t, err)
		require.NotNil(t, w)
		order = append(order, w.ID)
	}
	assert.Equal(t, []uuid.UUID{urgent.ID, a.ID, b.ID}, order)

	w, err := h.svc.PromoteWaitlist(ctx, provider, sl.ID)
	require.NoError(t, err)
	assert.Nil(t, w, "all seats are under offer")
}

func TestPromote_SameCreatedAtKeepsJoinOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	provider := uuid.New()
	sl := h.slot(t, provider, at(13, 0), 30, 1)

	first := h.join(t, uuid.New(), provider, 0)
	h.join(t, uuid.New(), provider, 0)

	w, err := h.svc.PromoteWaitlist(ctx, provider, sl.ID)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, first.ID, w.ID)
}

func TestPromote_SkipsEntriesThatDoNotFit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	provider := uuid.New()
	sl := h.slot(t, provider, at(9, 0), 30, 1, "consult")

	afternoon, err := h.svc.JoinWaitlist(ctx, booking.JoinWaitlistRequest{
		PatientID: uuid.New(), ProviderID: provider, PreferredDate: base, Priority: 9,
		PreferredTimeSlots: []booking.TimeRange{{StartMinute: 14 * 60, EndMinute: 16 * 60}},
	})
	require.NoError(t, err)
	wrongType, err := h.svc.JoinWaitlist(ctx, booking.JoinWaitlistRequest{
		PatientID: uuid.New(), ProviderID: provider, PreferredDate: base, Priority: 8, AppointmentTypeID: "surgery",
	})
	require.NoError(t, err)

	busyPatient := uuid.New()
	h.book(t, busyPatient, h.slot(t, uuid.New(), at(9, 15), 30, 1))
	busy := h.join(t, busyPatient, provider, 7)

	tomorrow, err := h.svc.JoinWaitlist(ctx, booking.JoinWaitlistRequest{
		PatientID: uuid.New(), ProviderID: provider, PreferredDate: base.AddDate(0, 0, 1), Priority: 6,
	})
	require.NoError(t, err)

	morning, err := h.svc.JoinWaitlist(ctx, booking.JoinWaitlistRequest{
		PatientID: uuid.New(), ProviderID: provider, PreferredDate: base, Priority: 1, AppointmentTypeID: "consult",
		PreferredTimeSlots: []booking.TimeRange{{StartMinute: 8 * 60, EndMinute: 10 * 60}},
	})
	require.NoError(t, err)

	w, err := h.svc.PromoteWaitlist(ctx, provider, sl.ID)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, morning.ID, w.ID)

	for _, id := range []uuid.UUID{afternoon.ID, wrongType.ID, busy.ID, tomorrow.ID} {
		assert.Equal(t, booking.WaitlistWaiting, h.entry(t, id).Status)
	}
}

func TestPromote_NoOpForStartedOrForeignSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	provider := uuid.New()
	sl := h.slot(t, provider, at(9, 0), 30, 1)
	h.join(t, uuid.New(), provider, 0)

	_, err := h.svc.PromoteWaitlist(ctx, uuid.New(), sl.ID)
	assert.ErrorIs(t, err, booking.ErrValidation)

	h.clock.Set(at(9, 0))
	w, err := h.svc.PromoteWaitlist(ctx, provider, sl.ID)
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestAcceptOffer_BooksTheSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	provider := uuid.New()
	sl := h.slot(t, provider, at(13, 0), 30, 1)
	joined := h.join(t, uuid.New(), provider, 0)
	_, err := h.svc.PromoteWaitlist(ctx, provider, sl.ID)
	require.NoError(t, err)

	h.clock.Advance(2 * time.Hour) // exactly at expiry is still in time
	entry, appt, err := h.svc.AcceptOffer(ctx, joined.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.WaitlistAccepted, entry.Status)
	require.NotNil(t, entry.AcceptedAppointmentID)
	assert.Equal(t, appt.ID, *entry.AcceptedAppointmentID)
	assert.Equal(t, joined.PatientID, appt.PatientID)
	assert.Equal(t, sl.ID, appt.SlotID)
	assert.Equal(t, booking.StatusScheduled, appt.Status)
	assert.Equal(t, booking.SlotBooked, h.getSlot(t, sl.ID).Status)

	assert.Equal(t, []booking.EventType{
		booking.EventWaitlistOffered,
		booking.EventAppointmentCreated,
		booking.EventWaitlistAccepted,
	}, h.rec.EventTypes())

	_, _, err = h.svc.AcceptOffer(ctx, joined.ID)
	assert.ErrorIs(t, err, booking.ErrInvalidState)
	_, err = h.svc.CancelWaitlistEntry(ctx, joined.ID)
	assert.ErrorIs(t, err, booking.ErrInvalidState)
}

func TestAcceptOffer_AfterWindowExpires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	provider := uuid.New()
	sl := h.slot(t, provider, at(13, 0), 30, 1)
	joined := h.join(t, uuid.New(), provider, 0)
	_, err := h.svc.PromoteWaitlist(ctx, provider, sl.ID)
	require.NoError(t, err)

	h.clock.Advance(2*time.Hour + time.Minute)
	_, _, err = h.svc.AcceptOffer(ctx, joined.ID)
	require.ErrorIs(t, err, booking.ErrOfferExpired)
	assert.Equal(t, booking.KindOfferExpired, booking.KindOf(err))

	assert.Equal(t, booking.WaitlistExpired, h.entry(t, joined.ID).Status)
	assert.Zero(t, h.getSlot(t, sl.ID).CurrentBookings)

	_, err = h.svc.DeclineOffer(ctx, joined.ID)
	assert.ErrorIs(t, err, booking.ErrInvalidState)
}

func TestExpiredOfferFreesSeatForNextInLine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	provider := uuid.New()
	sl := h.slot(t, provider, at(13, 0), 30, 1)
	first := h.join(t, uuid.New(), provider, 5)
	second := h.join(t, uuid.New(), provider, 0)

	w, err := h.svc.PromoteWaitlist(ctx, provider, sl.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, w.ID)

	w, err = h.svc.PromoteWaitlist(ctx, provider, sl.ID)
	require.NoError(t, err)
	assert.Nil(t, w)

	h.clock.Advance(2*time.Hour + time.Minute)
	w, err = h.svc.PromoteWaitlist(ctx, provider, sl.ID)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, second.ID, w.ID)
	assert.Equal(t, booking.WaitlistExpired, h.entry(t, first.ID).Status)
}

func TestDeclineOffer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	provider := uuid.New()
	sl := h.slot(t, provider, at(13, 0), 30, 1)
	joined := h.join(t, uuid.New(), provider, 0)

	_, err := h.svc.DeclineOffer(ctx, joined.ID)
	assert.ErrorIs(t, err, booking.ErrInvalidState, "nothing offered yet")

	_, err = h.svc.PromoteWaitlist(ctx, provider, sl.ID)
	require.NoError(t, err)

	got, err := h.svc.DeclineOffer(ctx, joined.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.WaitlistDeclined, got.Status)

	// declined entries can still be withdrawn
	got, err = h.svc.CancelWaitlistEntry(ctx, joined.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.WaitlistCancelled, got.Status)
	_, err = h.svc.CancelWaitlistEntry(ctx, joined.ID)
	assert.ErrorIs(t, err, booking.ErrInvalidState)
}

func TestDeclineOffer_Expired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	provider := uuid.New()
	sl := h.slot(t, provider, at(13, 0), 30, 1)
	joined := h.join(t, uuid.New(), provider, 0)
	_, err := h.svc.PromoteWaitlist(ctx, provider, sl.ID)
	require.NoError(t, err)

	h.clock.Advance(3 * time.Hour)
	_, err = h.svc.DeclineOffer(ctx, joined.ID)
	assert.ErrorIs(t, err, booking.ErrOfferExpired)
	assert.Equal(t, booking.WaitlistExpired, h.entry(t, joined.ID).Status)
}

func TestOfferSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	provider := uuid.New()
	sl := h.slot(t, provider, at(13, 0), 30, 1)
	full := h.slot(t, provider, at(14, 0), 30, 1)
	h.book(t, uuid.New(), full)
	a := h.join(t, uuid.New(), provider, 0)
	b := h.join(t, uuid.New(), provider, 0)

	_, err := h.svc.OfferSlot(ctx, a.ID, full.ID)
	assert.ErrorIs(t, err, booking.ErrSlotFull)

	got, err := h.svc.OfferSlot(ctx, b.ID, sl.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.WaitlistOffered, got.Status)
	assert.Equal(t, 1, got.OfferCount)

	_, err = h.svc.OfferSlot(ctx, a.ID, sl.ID)
	assert.ErrorIs(t, err, booking.ErrSlotFull, "the only seat is under offer")

	_, err = h.svc.OfferSlot(ctx, b.ID, sl.ID)
	assert.ErrorIs(t, err, booking.ErrInvalidState, "already offered")

	jobs := h.rec.Jobs()
	require.NotEmpty(t, jobs)
	assert.Equal(t, booking.JobOfferNotice, jobs[len(jobs)-1].Kind)
}

func TestExpireStaleOffers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	provider := uuid.New()
	sl := h.slot(t, provider, at(13, 0), 30, 2)
	a := h.join(t, uuid.New(), provider, 0)
	b := h.join(t, uuid.New(), provider, 0)
	_, err := h.svc.PromoteWaitlist(ctx, provider, sl.ID)
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	_, err = h.svc.PromoteWaitlist(ctx, provider, sl.ID)
	require.NoError(t, err)

	h.clock.Advance(90 * time.Minute)
	n, err := h.svc.ExpireStaleOffers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := h.svc.ListWaitlist(ctx, provider)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, booking.WaitlistExpired, list[0].Status)
	assert.Equal(t, b.ID, list[1].ID)
	assert.Equal(t, booking.WaitlistOffered, list[1].Status)
}

func TestGetWaitlistEntry_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.GetWaitlistEntry(context.Background(), uuid.New())
	assert.ErrorIs(t, err, booking.ErrWaitlistEntryNotFound)
}
