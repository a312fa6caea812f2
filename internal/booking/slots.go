package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/hackgods/appointment-booking-engine/internal/redis"
)

// SlotStore owns slot lifecycle and capacity counters. The exported methods
// run their own lock and transaction; the unexported ones are the
// primitives the engine composes inside its transactions.
type SlotStore struct {
	store  Store
	locker redisclient.Locker
	now    func() time.Time
}

func NewSlotStore(store Store, locker redisclient.Locker, now func() time.Time) *SlotStore {
	if now == nil {
		now = time.Now
	}
	return &SlotStore{store: store, locker: locker, now: now}
}

// Reserve takes one unit of capacity on the slot.
func (s *SlotStore) Reserve(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	var out *Slot
	err := s.withSlot(ctx, slotID, func(ctx context.Context, tx Tx) error {
		slot, err := s.reserve(ctx, tx, slotID)
		out = slot
		return err
	})
	return out, err
}

// Release gives one unit of capacity back.
func (s *SlotStore) Release(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	var out *Slot
	err := s.withSlot(ctx, slotID, func(ctx context.Context, tx Tx) error {
		slot, err := s.release(ctx, tx, slotID)
		out = slot
		return err
	})
	return out, err
}

func (s *SlotStore) withSlot(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context, tx Tx) error) error {
	err := s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		return s.store.WithinTx(lockCtx, fn)
	})
	return lockError(err)
}

func (s *SlotStore) reserve(ctx context.Context, tx Tx, slotID uuid.UUID) (*Slot, error) {
	slot, err := tx.Slots().GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if err := checkReservable(slot); err != nil {
		return nil, err
	}

	slot.CurrentBookings++
	if slot.CurrentBookings >= slot.MaxBookings {
		slot.Status = SlotBooked
	}
	slot.UpdatedAt = s.now()
	if err := tx.Slots().UpdateSlot(ctx, slot); err != nil {
		return nil, fmt.Errorf("reserve slot: %w", err)
	}
	return slot, nil
}

func checkReservable(slot *Slot) error {
	switch {
	case slot.Status == SlotCancelled || slot.Status == SlotBlocked:
		return ErrSlotUnavailable.Withf("slot %s is %s", slot.ID, slot.Status)
	case slot.Status != SlotAvailable && !slot.IsOverbook:
		return ErrSlotFull.Withf("slot %s is %s", slot.ID, slot.Status)
	case slot.CurrentBookings >= slot.MaxBookings:
		return ErrSlotFull.Withf("slot %s has %d/%d bookings", slot.ID, slot.CurrentBookings, slot.MaxBookings)
	}
	return nil
}

func (s *SlotStore) release(ctx context.Context, tx Tx, slotID uuid.UUID) (*Slot, error) {
	slot, err := tx.Slots().GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}

	if slot.CurrentBookings > 0 {
		slot.CurrentBookings--
	}
	if slot.Status == SlotBooked && slot.CurrentBookings < slot.MaxBookings {
		slot.Status = SlotAvailable
	}
	slot.UpdatedAt = s.now()
	if err := tx.Slots().UpdateSlot(ctx, slot); err != nil {
		return nil, fmt.Errorf("release slot: %w", err)
	}
	return slot, nil
}

// Block marks every available, unbooked slot of the provider that lies
// fully inside [from, to) as blocked. Slots holding bookings are skipped so
// their appointments survive.
func (s *SlotStore) Block(ctx context.Context, providerID uuid.UUID, from, to time.Time, reason string) ([]Slot, error) {
	if !from.Before(to) {
		return nil, invalidf("block interval must have from before to")
	}
	return s.transition(ctx, providerID, from, to, func(sl *Slot) bool {
		if sl.Status != SlotAvailable || sl.CurrentBookings > 0 {
			return false
		}
		sl.Status = SlotBlocked
		sl.BlockReason = reason
		return true
	})
}

// Unblock returns blocked slots fully inside [from, to) to available.
func (s *SlotStore) Unblock(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Slot, error) {
	if !from.Before(to) {
		return nil, invalidf("unblock interval must have from before to")
	}
	return s.transition(ctx, providerID, from, to, func(sl *Slot) bool {
		if sl.Status != SlotBlocked {
			return false
		}
		sl.Status = SlotAvailable
		sl.BlockReason = ""
		return true
	})
}

func (s *SlotStore) transition(ctx context.Context, providerID uuid.UUID, from, to time.Time, apply func(*Slot) bool) ([]Slot, error) {
	var changed []Slot
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		changed = nil
		candidates, err := tx.Slots().ListProviderSlots(ctx, providerID, from, to)
		if err != nil {
			return fmt.Errorf("list provider slots: %w", err)
		}
		now := s.now()
		for _, c := range candidates {
			if c.StartTime.Before(from) || c.EndTime.After(to) {
				continue
			}
			// Re-read under the row lock so a booking racing in between
			// the list and the update is seen.
			sl, err := tx.Slots().GetSlot(ctx, c.ID)
			if err != nil {
				return err
			}
			if !apply(sl) {
				continue
			}
			sl.UpdatedAt = now
			if err := tx.Slots().UpdateSlot(ctx, sl); err != nil {
				return fmt.Errorf("update slot %s: %w", sl.ID, err)
			}
			changed = append(changed, *sl)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

// Cancel retires a slot that has no bookings.
func (s *SlotStore) Cancel(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	var out *Slot
	err := s.withSlot(ctx, slotID, func(ctx context.Context, tx Tx) error {
		sl, err := tx.Slots().GetSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if sl.Status == SlotCancelled {
			return ErrInvalidState.Withf("slot %s is already cancelled", slotID)
		}
		if sl.CurrentBookings > 0 {
			return ErrInvalidState.Withf("slot %s still has %d bookings", slotID, sl.CurrentBookings)
		}
		sl.Status = SlotCancelled
		sl.UpdatedAt = s.now()
		if err := tx.Slots().UpdateSlot(ctx, sl); err != nil {
			return fmt.Errorf("cancel slot: %w", err)
		}
		out = sl
		return nil
	})
	return out, err
}

// Create adds a single slot, rejecting it if it overlaps another slot of
// the same provider.
func (s *SlotStore) Create(ctx context.Context, in NewSlot) (*Slot, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	slot := in.build(now)

	if err := s.insertAll(ctx, in.ProviderID, []Slot{slot}); err != nil {
		return nil, err
	}
	return &slot, nil
}

// CreateBulk generates slots from a weekly working-hours pattern and
// inserts them all or none.
func (s *SlotStore) CreateBulk(ctx context.Context, req BulkSlotRequest) ([]Slot, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	slots := GenerateSlots(req, s.now())
	if len(slots) == 0 {
		return nil, nil
	}
	if err := s.insertAll(ctx, req.ProviderID, slots); err != nil {
		return nil, err
	}
	return slots, nil
}

func (s *SlotStore) insertAll(ctx context.Context, providerID uuid.UUID, slots []Slot) error {
	from, to := slots[0].StartTime, slots[0].EndTime
	for _, sl := range slots {
		if sl.StartTime.Before(from) {
			from = sl.StartTime
		}
		if sl.EndTime.After(to) {
			to = sl.EndTime
		}
	}

	return s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockProvider(ctx, providerID); err != nil {
			return fmt.Errorf("lock provider: %w", err)
		}
		existing, err := tx.Slots().ListProviderSlots(ctx, providerID, from, to)
		if err != nil {
			return fmt.Errorf("list provider slots: %w", err)
		}
		for _, n := range slots {
			for _, e := range existing {
				if e.Status == SlotCancelled {
					continue
				}
				if Overlaps(e.StartTime, e.EndTime, n.StartTime, n.EndTime) {
					return ErrSlotOverlap.Withf("slot %s-%s overlaps existing slot %s",
						n.StartTime.Format(time.RFC3339), n.EndTime.Format(time.RFC3339), e.ID)
				}
			}
		}
		if err := tx.Slots().InsertSlots(ctx, slots); err != nil {
			return fmt.Errorf("insert slots: %w", err)
		}
		return nil
	})
}

func (s *SlotStore) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	var out *Slot
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		sl, err := tx.Slots().GetSlot(ctx, id)
		out = sl
		return err
	})
	return out, err
}

func (s *SlotStore) ListSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Slot, error) {
	if !from.Before(to) {
		return nil, invalidf("from must be before to")
	}
	var out []Slot
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.Slots().ListProviderSlots(ctx, providerID, from, to)
		return err
	})
	return out, err
}

func lockError(err error) error {
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSlotBeingBooked
	}
	return err
}
