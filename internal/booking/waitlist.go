package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Waitlist manages standing requests and the offer/accept protocol for
// freed slots. Offers expire lazily: an entry whose offer has run out is
// flipped to expired the next time anything reads or acts on it.
type Waitlist struct {
	engine *Engine
}

func NewWaitlist(engine *Engine) *Waitlist {
	return &Waitlist{engine: engine}
}

// Join adds a waiting entry. A patient may hold only one waiting or offered
// entry per provider and preferred date.
func (w *Waitlist) Join(ctx context.Context, req JoinWaitlistRequest) (*WaitlistEntry, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var out *WaitlistEntry
	err := w.engine.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		now := w.engine.now()
		date := DateOf(req.PreferredDate)

		existing, err := tx.Waitlist().FindActive(ctx, req.PatientID, req.ProviderID, date)
		switch {
		case errors.Is(err, ErrWaitlistEntryNotFound):
		case err != nil:
			return fmt.Errorf("find active entry: %w", err)
		default:
			expired, err := w.expireIfStale(ctx, tx, existing, now)
			if err != nil {
				return err
			}
			if !expired {
				return ErrDuplicateEntry.Withf("patient %s already has entry %s for %s",
					req.PatientID, existing.ID, date.Format(time.DateOnly))
			}
		}

		entry := &WaitlistEntry{
			ID:                 uuid.New(),
			PatientID:          req.PatientID,
			ProviderID:         req.ProviderID,
			AppointmentTypeID:  req.AppointmentTypeID,
			PreferredDate:      date,
			PreferredTimeSlots: append([]TimeRange(nil), req.PreferredTimeSlots...),
			Status:             WaitlistWaiting,
			Priority:           req.Priority,
			Notes:              req.Notes,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := tx.Waitlist().InsertEntry(ctx, entry); err != nil {
			return fmt.Errorf("insert waitlist entry: %w", err)
		}
		out = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TryPromote offers a freed slot to the best waiting entry: highest
// priority first, then the earliest to join. It returns nil when the slot
// cannot take anyone or nobody qualifies.
func (w *Waitlist) TryPromote(ctx context.Context, providerID, slotID uuid.UUID) (*WaitlistEntry, Effects, error) {
	var (
		out *WaitlistEntry
		fx  Effects
	)
	err := w.engine.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		out, fx = nil, Effects{}
		now := w.engine.now()

		slot, err := tx.Slots().GetSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if slot.ProviderID != providerID {
			return invalidf("slot %s does not belong to provider %s", slotID, providerID)
		}
		if !slot.StartTime.After(now) {
			return nil
		}
		open, err := w.openSeats(ctx, tx, slot, now)
		if err != nil || open <= 0 {
			return err
		}

		candidates, err := tx.Waitlist().ListWaiting(ctx, providerID, DateOf(slot.StartTime))
		if err != nil {
			return fmt.Errorf("list waiting entries: %w", err)
		}
		for i := range candidates {
			c := &candidates[i]
			if !slot.AcceptsType(c.AppointmentTypeID) || !c.WantsTime(slot.StartTime) {
				continue
			}
			busy, err := w.engine.conflicts.HasConflict(ctx, tx, c.PatientID, slot.StartTime, slot.EndTime, uuid.Nil)
			if err != nil {
				return err
			}
			if busy {
				continue
			}
			if err := w.offer(ctx, tx, c, slot, now, &fx); err != nil {
				return err
			}
			out = c
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, Effects{}, err
	}
	return out, fx, nil
}

// OfferSlot offers a specific slot to a specific waiting entry.
func (w *Waitlist) OfferSlot(ctx context.Context, entryID, slotID uuid.UUID) (*WaitlistEntry, Effects, error) {
	var (
		out *WaitlistEntry
		fx  Effects
	)
	err := w.engine.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		fx = Effects{}
		now := w.engine.now()

		entry, err := tx.Waitlist().GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if entry.Status != WaitlistWaiting {
			return ErrInvalidState.Withf("entry %s is %s, not waiting", entryID, entry.Status)
		}
		slot, err := tx.Slots().GetSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if slot.ProviderID != entry.ProviderID {
			return invalidf("slot %s does not belong to provider %s", slotID, entry.ProviderID)
		}
		if !slot.AcceptsType(entry.AppointmentTypeID) {
			return ErrTypeNotAllowed.Withf("slot %s does not accept appointment type %q", slotID, entry.AppointmentTypeID)
		}
		if !slot.StartTime.After(now) {
			return ErrInvalidState.Withf("slot %s has already started", slotID)
		}
		open, err := w.openSeats(ctx, tx, slot, now)
		if err != nil {
			return err
		}
		if open <= 0 {
			if err := checkReservable(slot); err != nil {
				return err
			}
			return ErrSlotFull.Withf("slot %s has no seat left that is not already offered", slotID)
		}
		if err := w.offer(ctx, tx, entry, slot, now, &fx); err != nil {
			return err
		}
		out = entry
		return nil
	})
	if err != nil {
		return nil, Effects{}, err
	}
	return out, fx, nil
}

// openSeats is the slot's free capacity minus offers still outstanding on
// it. Stale offers found on the way are expired.
func (w *Waitlist) openSeats(ctx context.Context, tx Tx, slot *Slot, now time.Time) (int, error) {
	if !slot.Bookable() {
		return 0, nil
	}
	offered, err := tx.Waitlist().ListOfferedForSlot(ctx, slot.ID)
	if err != nil {
		return 0, fmt.Errorf("list offers for slot: %w", err)
	}
	outstanding := 0
	for i := range offered {
		expired, err := w.expireIfStale(ctx, tx, &offered[i], now)
		if err != nil {
			return 0, err
		}
		if !expired {
			outstanding++
		}
	}
	return slot.FreeCapacity() - outstanding, nil
}

func (w *Waitlist) offer(ctx context.Context, tx Tx, entry *WaitlistEntry, slot *Slot, now time.Time, fx *Effects) error {
	entry.Status = WaitlistOffered
	entry.OfferedSlotID = ptr(slot.ID)
	entry.OfferedAt = ptr(now)
	entry.OfferExpiresAt = ptr(now.Add(w.engine.policy.OfferWindow))
	entry.OfferCount++
	entry.UpdatedAt = now
	if err := tx.Waitlist().UpdateEntry(ctx, entry); err != nil {
		return fmt.Errorf("update waitlist entry: %w", err)
	}

	ev := waitlistEvent(EventWaitlistOffered, entry, now)
	ev.Data = map[string]any{
		"offer_expires_at": *entry.OfferExpiresAt,
		"slot_start_time":  slot.StartTime,
	}
	fx.event(ev)
	fx.job(Job{
		Kind:            JobOfferNotice,
		WaitlistEntryID: ptr(entry.ID),
		PatientID:       entry.PatientID,
		RunAt:           now,
		Data: map[string]any{
			"slot_id":          slot.ID.String(),
			"offer_expires_at": *entry.OfferExpiresAt,
		},
	})
	return nil
}

// AcceptOffer books the offered slot for the entry's patient. If the offer
// has run out the entry is expired and ErrOfferExpired returned. A failed
// booking leaves the entry offered.
func (w *Waitlist) AcceptOffer(ctx context.Context, entryID uuid.UUID) (*WaitlistEntry, *Result, error) {
	current, err := w.Get(ctx, entryID)
	if err != nil {
		return nil, nil, err
	}
	if current.Status == WaitlistExpired {
		return nil, nil, ErrOfferExpired.Withf("offer for entry %s expired", entryID)
	}
	if current.Status != WaitlistOffered || current.OfferedSlotID == nil {
		return nil, nil, ErrInvalidState.Withf("entry %s is %s, not offered", entryID, current.Status)
	}
	slotID := *current.OfferedSlotID

	var (
		out     *WaitlistEntry
		res     *Result
		expired bool
	)
	err = w.engine.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		return w.engine.store.WithinTx(lockCtx, func(ctx context.Context, tx Tx) error {
			now := w.engine.now()
			entry, err := tx.Waitlist().GetEntry(ctx, entryID)
			if err != nil {
				return err
			}
			if expired, err = w.expireIfStale(ctx, tx, entry, now); err != nil || expired {
				return err
			}
			if entry.Status != WaitlistOffered || entry.OfferedSlotID == nil || *entry.OfferedSlotID != slotID {
				return ErrInvalidState.Withf("entry %s is %s, not offered", entryID, entry.Status)
			}

			appt, fx, err := w.engine.createInTx(ctx, tx, CreateAppointmentRequest{
				PatientID:         entry.PatientID,
				ProviderID:        entry.ProviderID,
				SlotID:            slotID,
				AppointmentTypeID: entry.AppointmentTypeID,
				Notes:             entry.Notes,
			}, now)
			if err != nil {
				return err
			}

			entry.Status = WaitlistAccepted
			entry.AcceptedAppointmentID = ptr(appt.ID)
			entry.UpdatedAt = now
			if err := tx.Waitlist().UpdateEntry(ctx, entry); err != nil {
				return fmt.Errorf("update waitlist entry: %w", err)
			}
			fx.event(waitlistEvent(EventWaitlistAccepted, entry, now))

			out = entry
			res = &Result{Appointment: appt, Effects: fx}
			return nil
		})
	})
	if err != nil {
		return nil, nil, lockError(err)
	}
	if expired {
		return nil, nil, ErrOfferExpired.Withf("offer for entry %s expired", entryID)
	}
	return out, res, nil
}

// DeclineOffer records the patient turning the offer down. The slot is not
// offered to anyone else here; callers decide whether to promote again.
func (w *Waitlist) DeclineOffer(ctx context.Context, entryID uuid.UUID) (*WaitlistEntry, error) {
	var (
		out     *WaitlistEntry
		expired bool
	)
	err := w.engine.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		now := w.engine.now()
		entry, err := tx.Waitlist().GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if expired, err = w.expireIfStale(ctx, tx, entry, now); err != nil || expired {
			return err
		}
		if entry.Status != WaitlistOffered {
			return ErrInvalidState.Withf("entry %s is %s, not offered", entryID, entry.Status)
		}
		entry.Status = WaitlistDeclined
		entry.UpdatedAt = now
		if err := tx.Waitlist().UpdateEntry(ctx, entry); err != nil {
			return fmt.Errorf("update waitlist entry: %w", err)
		}
		out = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, ErrOfferExpired.Withf("offer for entry %s expired", entryID)
	}
	return out, nil
}

// Cancel withdraws an entry. Accepted entries cannot be cancelled; declined
// and expired ones can.
func (w *Waitlist) Cancel(ctx context.Context, entryID uuid.UUID) (*WaitlistEntry, error) {
	var out *WaitlistEntry
	err := w.engine.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		now := w.engine.now()
		entry, err := tx.Waitlist().GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		switch entry.Status {
		case WaitlistAccepted:
			return ErrInvalidState.Withf("entry %s was accepted; cancel the appointment instead", entryID)
		case WaitlistCancelled:
			return ErrInvalidState.Withf("entry %s is already cancelled", entryID)
		}
		entry.Status = WaitlistCancelled
		entry.UpdatedAt = now
		if err := tx.Waitlist().UpdateEntry(ctx, entry); err != nil {
			return fmt.Errorf("update waitlist entry: %w", err)
		}
		out = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (w *Waitlist) Get(ctx context.Context, entryID uuid.UUID) (*WaitlistEntry, error) {
	var out *WaitlistEntry
	err := w.engine.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		entry, err := tx.Waitlist().GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if _, err := w.expireIfStale(ctx, tx, entry, w.engine.now()); err != nil {
			return err
		}
		out = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (w *Waitlist) ListProvider(ctx context.Context, providerID uuid.UUID) ([]WaitlistEntry, error) {
	var out []WaitlistEntry
	err := w.engine.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		entries, err := tx.Waitlist().ListByProvider(ctx, providerID)
		if err != nil {
			return fmt.Errorf("list waitlist entries: %w", err)
		}
		now := w.engine.now()
		for i := range entries {
			if _, err := w.expireIfStale(ctx, tx, &entries[i], now); err != nil {
				return err
			}
		}
		out = entries
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExpireStaleOffers flips every offered entry past its expiry to expired.
// The core never needs it; it backs the external sweeper.
func (w *Waitlist) ExpireStaleOffers(ctx context.Context) (int, error) {
	count := 0
	err := w.engine.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		count = 0
		now := w.engine.now()
		stale, err := tx.Waitlist().ListExpiredOffers(ctx, now)
		if err != nil {
			return fmt.Errorf("list expired offers: %w", err)
		}
		for i := range stale {
			expired, err := w.expireIfStale(ctx, tx, &stale[i], now)
			if err != nil {
				return err
			}
			if expired {
				count++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// expireIfStale flips an offered entry whose offer window has passed.
// Offers are still acceptable at exactly OfferExpiresAt.
func (w *Waitlist) expireIfStale(ctx context.Context, tx Tx, entry *WaitlistEntry, now time.Time) (bool, error) {
	if entry.Status != WaitlistOffered || entry.OfferExpiresAt == nil {
		return false, nil
	}
	if !now.After(*entry.OfferExpiresAt) {
		return false, nil
	}
	entry.Status = WaitlistExpired
	entry.UpdatedAt = now
	if err := tx.Waitlist().UpdateEntry(ctx, entry); err != nil {
		return false, fmt.Errorf("expire waitlist entry: %w", err)
	}
	return true, nil
}
