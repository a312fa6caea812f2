package booking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/appointment-booking-engine/internal/booking"
	"github.com/hackgods/appointment-booking-engine/internal/events/eventstest"
	redisclient "github.com/hackgods/appointment-booking-engine/internal/redis"
	"github.com/hackgods/appointment-booking-engine/internal/store/memstore"
)

// Monday 2030-03-04, 07:00 UTC.
var base = time.Date(2030, 3, 4, 7, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return time.Date(2030, 3, 4, hour, minute, 0, 0, time.UTC)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	svc   *booking.Service
	store *memstore.Store
	rec   *eventstest.Recorder
	clock *testClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &testClock{now: base}
	store := memstore.New()
	rec := &eventstest.Recorder{}
	svc := booking.NewService(store, redisclient.NewLocalSlotLocker(), rec, booking.DefaultPolicy(), zerolog.Nop(),
		booking.WithClock(clock.Now))
	return &harness{svc: svc, store: store, rec: rec, clock: clock}
}

func (h *harness) slot(t *testing.T, provider uuid.UUID, start time.Time, minutes, maxBookings int, types ...string) *booking.Slot {
	t.Helper()
	sl, err := h.svc.CreateSlot(context.Background(), booking.NewSlot{
		ProviderID:              provider,
		StartTime:               start,
		EndTime:                 start.Add(time.Duration(minutes) * time.Minute),
		MaxBookings:             maxBookings,
		AllowedAppointmentTypes: types,
	})
	require.NoError(t, err)
	return sl
}

func (h *harness) book(t *testing.T, patient uuid.UUID, slot *booking.Slot) *booking.Appointment {
	t.Helper()
	appt, err := h.svc.CreateAppointment(context.Background(), booking.CreateAppointmentRequest{
		PatientID: patient,
		SlotID:    slot.ID,
	})
	require.NoError(t, err)
	return appt
}

func (h *harness) getSlot(t *testing.T, id uuid.UUID) *booking.Slot {
	t.Helper()
	sl, err := h.svc.GetSlot(context.Background(), id)
	require.NoError(t, err)
	return sl
}

func (h *harness) join(t *testing.T, patient, provider uuid.UUID, priority int) *booking.WaitlistEntry {
	t.Helper()
	w, err := h.svc.JoinWaitlist(context.Background(), booking.JoinWaitlistRequest{
		PatientID:     patient,
		ProviderID:    provider,
		PreferredDate: base,
		Priority:      priority,
	})
	require.NoError(t, err)
	return w
}

func (h *harness) entry(t *testing.T, id uuid.UUID) *booking.WaitlistEntry {
	t.Helper()
	w, err := h.svc.GetWaitlistEntry(context.Background(), id)
	require.NoError(t, err)
	return w
}

// callLog wraps a store and records the slot calls made inside its
// transactions, in order.
type callLog struct {
	inner booking.Store
	mu    sync.Mutex
	calls []string
}

func (c *callLog) record(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
}

func (c *callLog) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *callLog) WithinTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	return c.inner.WithinTx(ctx, func(ctx context.Context, tx booking.Tx) error {
		return fn(ctx, loggedTx{Tx: tx, log: c})
	})
}

type loggedTx struct {
	booking.Tx
	log *callLog
}

func (t loggedTx) LockProvider(ctx context.Context, providerID uuid.UUID) error {
	t.log.record("lock_provider")
	return t.Tx.LockProvider(ctx, providerID)
}

func (t loggedTx) Slots() booking.SlotRepository {
	return loggedSlots{SlotRepository: t.Tx.Slots(), log: t.log}
}

type loggedSlots struct {
	booking.SlotRepository
	log *callLog
}

func (r loggedSlots) ListProviderSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]booking.Slot, error) {
	r.log.record("list_provider_slots")
	return r.SlotRepository.ListProviderSlots(ctx, providerID, from, to)
}

func (r loggedSlots) InsertSlots(ctx context.Context, slots []booking.Slot) error {
	r.log.record("insert_slots")
	return r.SlotRepository.InsertSlots(ctx, slots)
}
