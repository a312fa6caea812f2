// Package memstore is an in-process booking.Store. A transaction holds the
// store mutex from start to finish and journals every write so a failed
// unit of work can be undone.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/appointment-booking-engine/internal/booking"
)

type Store struct {
	mu sync.Mutex

	slots    map[uuid.UUID]booking.Slot
	appts    map[uuid.UUID]booking.Appointment
	entries  map[uuid.UUID]booking.WaitlistEntry
	entrySeq map[uuid.UUID]int64
	seq      int64
}

var _ booking.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		slots:    make(map[uuid.UUID]booking.Slot),
		appts:    make(map[uuid.UUID]booking.Appointment),
		entries:  make(map[uuid.UUID]booking.WaitlistEntry),
		entrySeq: make(map[uuid.UUID]int64),
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{s: s}
	if err := fn(ctx, t); err != nil {
		t.rollback()
		return err
	}
	return nil
}

type tx struct {
	s    *Store
	undo []func()
}

func (t *tx) Slots() booking.SlotRepository               { return slotRepo{t} }
func (t *tx) Appointments() booking.AppointmentRepository { return apptRepo{t} }
func (t *tx) Waitlist() booking.WaitlistRepository        { return waitlistRepo{t} }

// LockPatient and LockProvider are no-ops: the store mutex already
// serialises transactions.
func (t *tx) LockPatient(context.Context, uuid.UUID) error  { return nil }
func (t *tx) LockProvider(context.Context, uuid.UUID) error { return nil }

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// -- slots --

type slotRepo struct{ t *tx }

func (r slotRepo) GetSlot(_ context.Context, id uuid.UUID) (*booking.Slot, error) {
	sl, ok := r.t.s.slots[id]
	if !ok {
		return nil, booking.ErrSlotNotFound.Withf("slot %s not found", id)
	}
	out := sl.Clone()
	return &out, nil
}

func (r slotRepo) InsertSlots(_ context.Context, slots []booking.Slot) error {
	st := r.t.s
	for _, sl := range slots {
		id := sl.ID
		st.slots[id] = sl.Clone()
		r.t.undo = append(r.t.undo, func() { delete(st.slots, id) })
	}
	return nil
}

func (r slotRepo) UpdateSlot(_ context.Context, sl *booking.Slot) error {
	st := r.t.s
	prev, ok := st.slots[sl.ID]
	if !ok {
		return booking.ErrSlotNotFound.Withf("slot %s not found", sl.ID)
	}
	sl.Version = prev.Version + 1
	st.slots[sl.ID] = sl.Clone()
	r.t.undo = append(r.t.undo, func() { st.slots[prev.ID] = prev })
	return nil
}

func (r slotRepo) ListProviderSlots(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]booking.Slot, error) {
	var out []booking.Slot
	for _, sl := range r.t.s.slots {
		if sl.ProviderID != providerID || !booking.Overlaps(sl.StartTime, sl.EndTime, from, to) {
			continue
		}
		out = append(out, sl.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// -- appointments --

type apptRepo struct{ t *tx }

func (r apptRepo) GetAppointment(_ context.Context, id uuid.UUID) (*booking.Appointment, error) {
	a, ok := r.t.s.appts[id]
	if !ok {
		return nil, booking.ErrAppointmentNotFound.Withf("appointment %s not found", id)
	}
	out := a.Clone()
	return &out, nil
}

func (r apptRepo) InsertAppointment(_ context.Context, a *booking.Appointment) error {
	st := r.t.s
	id := a.ID
	st.appts[id] = a.Clone()
	r.t.undo = append(r.t.undo, func() { delete(st.appts, id) })
	return nil
}

func (r apptRepo) UpdateAppointment(_ context.Context, a *booking.Appointment) error {
	st := r.t.s
	prev, ok := st.appts[a.ID]
	if !ok {
		return booking.ErrAppointmentNotFound.Withf("appointment %s not found", a.ID)
	}
	st.appts[a.ID] = a.Clone()
	r.t.undo = append(r.t.undo, func() { st.appts[prev.ID] = prev })
	return nil
}

func (r apptRepo) ListPatientAppointmentsBetween(_ context.Context, patientID uuid.UUID, from, to time.Time, statuses []booking.AppointmentStatus) ([]booking.Appointment, error) {
	want := make(map[booking.AppointmentStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []booking.Appointment
	for _, a := range r.t.s.appts {
		if a.PatientID != patientID || !want[a.Status] {
			continue
		}
		if !booking.Overlaps(a.StartTime, a.EndTime, from, to) {
			continue
		}
		out = append(out, a.Clone())
	}
	sortAppointments(out, func(a, b booking.Appointment) bool { return a.StartTime.Before(b.StartTime) })
	return out, nil
}

func (r apptRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]booking.Appointment, error) {
	var all []booking.Appointment
	for _, a := range r.t.s.appts {
		if a.PatientID == patientID {
			all = append(all, a.Clone())
		}
	}
	sortAppointments(all, func(a, b booking.Appointment) bool { return a.StartTime.After(b.StartTime) })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r apptRepo) ListBySlot(_ context.Context, slotID uuid.UUID) ([]booking.Appointment, error) {
	var out []booking.Appointment
	for _, a := range r.t.s.appts {
		if a.SlotID == slotID {
			out = append(out, a.Clone())
		}
	}
	sortAppointments(out, func(a, b booking.Appointment) bool { return a.CreatedAt.Before(b.CreatedAt) })
	return out, nil
}

// sortAppointments orders by less, falling back to id so equal keys still
// produce a stable listing.
func sortAppointments(list []booking.Appointment, less func(a, b booking.Appointment) bool) {
	sort.Slice(list, func(i, j int) bool {
		if less(list[i], list[j]) {
			return true
		}
		if less(list[j], list[i]) {
			return false
		}
		return list[i].ID.String() < list[j].ID.String()
	})
}

// -- waitlist --

type waitlistRepo struct{ t *tx }

func (r waitlistRepo) GetEntry(_ context.Context, id uuid.UUID) (*booking.WaitlistEntry, error) {
	w, ok := r.t.s.entries[id]
	if !ok {
		return nil, booking.ErrWaitlistEntryNotFound.Withf("waitlist entry %s not found", id)
	}
	out := w.Clone()
	return &out, nil
}

// InsertEntry enforces one active entry per patient, provider and date.
func (r waitlistRepo) InsertEntry(ctx context.Context, w *booking.WaitlistEntry) error {
	if w.Status.Active() {
		if dup, err := r.FindActive(ctx, w.PatientID, w.ProviderID, w.PreferredDate); err == nil {
			return booking.ErrDuplicateEntry.Withf("patient %s already has active entry %s", w.PatientID, dup.ID)
		}
	}

	st := r.t.s
	id := w.ID
	st.seq++
	st.entries[id] = w.Clone()
	st.entrySeq[id] = st.seq
	r.t.undo = append(r.t.undo, func() {
		delete(st.entries, id)
		delete(st.entrySeq, id)
	})
	return nil
}

func (r waitlistRepo) UpdateEntry(_ context.Context, w *booking.WaitlistEntry) error {
	st := r.t.s
	prev, ok := st.entries[w.ID]
	if !ok {
		return booking.ErrWaitlistEntryNotFound.Withf("waitlist entry %s not found", w.ID)
	}
	st.entries[w.ID] = w.Clone()
	r.t.undo = append(r.t.undo, func() { st.entries[prev.ID] = prev })
	return nil
}

func (r waitlistRepo) FindActive(_ context.Context, patientID, providerID uuid.UUID, preferredDate time.Time) (*booking.WaitlistEntry, error) {
	date := booking.DateOf(preferredDate)
	for _, w := range r.entriesInOrder() {
		if w.PatientID == patientID && w.ProviderID == providerID &&
			w.PreferredDate.Equal(date) && w.Status.Active() {
			return &w, nil
		}
	}
	return nil, booking.ErrWaitlistEntryNotFound
}

func (r waitlistRepo) ListWaiting(_ context.Context, providerID uuid.UUID, onOrBefore time.Time) ([]booking.WaitlistEntry, error) {
	var out []booking.WaitlistEntry
	for _, w := range r.entriesInOrder() {
		if w.ProviderID != providerID || w.Status != booking.WaitlistWaiting {
			continue
		}
		if w.PreferredDate.After(onOrBefore) {
			continue
		}
		out = append(out, w)
	}
	// Stable keeps join order among equal priorities.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (r waitlistRepo) ListOfferedForSlot(_ context.Context, slotID uuid.UUID) ([]booking.WaitlistEntry, error) {
	var out []booking.WaitlistEntry
	for _, w := range r.entriesInOrder() {
		if w.Status == booking.WaitlistOffered && w.OfferedSlotID != nil && *w.OfferedSlotID == slotID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r waitlistRepo) ListByProvider(_ context.Context, providerID uuid.UUID) ([]booking.WaitlistEntry, error) {
	var out []booking.WaitlistEntry
	for _, w := range r.entriesInOrder() {
		if w.ProviderID == providerID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r waitlistRepo) ListExpiredOffers(_ context.Context, now time.Time) ([]booking.WaitlistEntry, error) {
	var out []booking.WaitlistEntry
	for _, w := range r.entriesInOrder() {
		if w.Status == booking.WaitlistOffered && w.OfferExpiresAt != nil && w.OfferExpiresAt.Before(now) {
			out = append(out, w)
		}
	}
	return out, nil
}

// entriesInOrder returns clones of all entries, oldest first.
func (r waitlistRepo) entriesInOrder() []booking.WaitlistEntry {
	st := r.t.s
	out := make([]booking.WaitlistEntry, 0, len(st.entries))
	for _, w := range st.entries {
		out = append(out, w.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return st.entrySeq[out[i].ID] < st.entrySeq[out[j].ID]
	})
	return out
}
