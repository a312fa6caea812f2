package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/hackgods/appointment-booking-engine/internal/redis"
)

// Policy holds the time rules of the engine.
type Policy struct {
	OfferWindow        time.Duration // how long a waitlist offer stays acceptable
	CheckInOpensBefore time.Duration // earliest check-in relative to start
	CheckInClosesAfter time.Duration // latest check-in relative to start
	ReminderLead       time.Duration // reminder job runs this long before start
}

func DefaultPolicy() Policy {
	return Policy{
		OfferWindow:        2 * time.Hour,
		CheckInOpensBefore: 30 * time.Minute,
		CheckInClosesAfter: 15 * time.Minute,
		ReminderLead:       24 * time.Hour,
	}
}

type Option func(*Engine)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLockRetry sets how often cancellation retries a slot lock held by
// another operation, and the base wait between attempts.
func WithLockRetry(attempts int, backoff time.Duration) Option {
	return func(e *Engine) {
		e.lockAttempts = attempts
		e.lockBackoff = backoff
	}
}

// Result is a committed appointment mutation and the follow-ups it asks
// for. Previous is set by reschedule only.
type Result struct {
	Appointment *Appointment
	Previous    *Appointment
	Effects     Effects
}

// Engine is the only writer of appointments. Every mutation that touches
// slot capacity holds the slot lock(s) and runs in one store transaction,
// so a slot reservation and its appointment row commit or vanish together.
type Engine struct {
	store     Store
	locker    redisclient.Locker
	slots     *SlotStore
	conflicts ConflictResolver
	policy    Policy
	now       func() time.Time

	lockAttempts int
	lockBackoff  time.Duration
}

func NewEngine(store Store, locker redisclient.Locker, policy Policy, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		locker: locker,
		policy: policy,
		now:    time.Now,

		lockAttempts: 5,
		lockBackoff:  50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.slots = NewSlotStore(store, locker, e.now)
	return e
}

func (e *Engine) Slots() *SlotStore { return e.slots }

func (e *Engine) Policy() Policy { return e.policy }

// CreateAppointment books the patient into the slot.
func (e *Engine) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var res Result
	err := e.locker.WithSlotLock(ctx, req.SlotID, func(lockCtx context.Context) error {
		return e.store.WithinTx(lockCtx, func(ctx context.Context, tx Tx) error {
			appt, fx, err := e.createInTx(ctx, tx, req, e.now())
			if err != nil {
				return err
			}
			res = Result{Appointment: appt, Effects: fx}
			return nil
		})
	})
	if err != nil {
		return nil, lockError(err)
	}
	return &res, nil
}

func (e *Engine) createInTx(ctx context.Context, tx Tx, req CreateAppointmentRequest, now time.Time) (*Appointment, Effects, error) {
	var fx Effects

	slot, err := tx.Slots().GetSlot(ctx, req.SlotID)
	if err != nil {
		return nil, fx, err
	}
	if req.ProviderID != uuid.Nil && req.ProviderID != slot.ProviderID {
		return nil, fx, invalidf("slot %s does not belong to provider %s", slot.ID, req.ProviderID)
	}
	if !slot.AcceptsType(req.AppointmentTypeID) {
		return nil, fx, ErrTypeNotAllowed.Withf("slot %s does not accept appointment type %q", slot.ID, req.AppointmentTypeID)
	}
	if err := checkReservable(slot); err != nil {
		return nil, fx, err
	}

	if err := tx.LockPatient(ctx, req.PatientID); err != nil {
		return nil, fx, fmt.Errorf("lock patient: %w", err)
	}
	busy, err := e.conflicts.HasConflict(ctx, tx, req.PatientID, slot.StartTime, slot.EndTime, uuid.Nil)
	if err != nil {
		return nil, fx, err
	}
	if busy {
		return nil, fx, ErrDoubleBooking.Withf("patient %s already booked between %s and %s",
			req.PatientID, slot.StartTime.Format(time.RFC3339), slot.EndTime.Format(time.RFC3339))
	}

	if _, err := e.slots.reserve(ctx, tx, slot.ID); err != nil {
		return nil, fx, err
	}

	appt := &Appointment{
		ID:                uuid.New(),
		PatientID:         req.PatientID,
		ProviderID:        slot.ProviderID,
		SlotID:            slot.ID,
		AppointmentTypeID: req.AppointmentTypeID,
		StartTime:         slot.StartTime,
		EndTime:           slot.EndTime,
		Status:            StatusScheduled,
		Reason:            req.Reason,
		Notes:             req.Notes,
		Paid:              req.Paid,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := tx.Appointments().InsertAppointment(ctx, appt); err != nil {
		return nil, fx, fmt.Errorf("insert appointment: %w", err)
	}

	fx.event(appointmentEvent(EventAppointmentCreated, appt, now))
	fx.job(Job{
		Kind:          JobConfirmation,
		AppointmentID: ptr(appt.ID),
		PatientID:     appt.PatientID,
		RunAt:         now,
	})
	e.scheduleReminder(&fx, appt, now)

	return appt, fx, nil
}

func (e *Engine) scheduleReminder(fx *Effects, appt *Appointment, now time.Time) {
	runAt := appt.StartTime.Add(-e.policy.ReminderLead)
	if !runAt.After(now) {
		return
	}
	fx.job(Job{
		Kind:          JobReminder,
		AppointmentID: ptr(appt.ID),
		PatientID:     appt.PatientID,
		RunAt:         runAt,
		Data:          map[string]any{"start_time": appt.StartTime},
	})
}

// CancelAppointment cancels a non-terminal appointment and gives its seat
// back. Promotion of a waitlisted patient into the seat is requested as an
// effect, so it can fail without undoing the cancellation. A slot lock held
// by a concurrent booking is waited out for a few attempts.
func (e *Engine) CancelAppointment(ctx context.Context, id, actorID uuid.UUID, reason string) (*Result, error) {
	current, err := e.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	var res Result
	err = e.retryLocked(ctx, func() error {
		return e.locker.WithSlotLock(ctx, current.SlotID, func(lockCtx context.Context) error {
			return e.store.WithinTx(lockCtx, func(ctx context.Context, tx Tx) error {
				now := e.now()
				appt, err := tx.Appointments().GetAppointment(ctx, id)
				if err != nil {
					return err
				}
				if !CanTransition(appt.Status, StatusCancelled) {
					return ErrInvalidTransition.Withf("cannot cancel %s appointment", appt.Status)
				}

				appt.Status = StatusCancelled
				appt.CancelledAt = ptr(now)
				if actorID != uuid.Nil {
					appt.CancelledBy = ptr(actorID)
				}
				appt.CancellationReason = reason
				appt.UpdatedAt = now
				if err := tx.Appointments().UpdateAppointment(ctx, appt); err != nil {
					return fmt.Errorf("update appointment: %w", err)
				}
				if _, err := e.slots.release(ctx, tx, appt.SlotID); err != nil {
					return err
				}

				var fx Effects
				ev := appointmentEvent(EventAppointmentCancelled, appt, now)
				ev.Data = map[string]any{"reason": reason}
				if actorID != uuid.Nil {
					ev.Data["cancelled_by"] = actorID.String()
				}
				fx.event(ev)
				fx.promote(Promotion{ProviderID: appt.ProviderID, SlotID: appt.SlotID})
				if appt.Paid {
					fx.job(Job{
						Kind:          JobRefund,
						AppointmentID: ptr(appt.ID),
						PatientID:     appt.PatientID,
						RunAt:         now,
						Data:          map[string]any{"reason": reason},
					})
				}
				res = Result{Appointment: appt, Effects: fx}
				return nil
			})
		})
	})
	if err != nil {
		return nil, lockError(err)
	}
	return &res, nil
}

// retryLocked runs fn until it stops failing on a held slot lock, giving up
// after lockAttempts tries with a linearly growing wait.
func (e *Engine) retryLocked(ctx context.Context, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if !errors.Is(err, redisclient.ErrLockNotAcquired) || attempt >= e.lockAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * e.lockBackoff):
		}
	}
}

// RescheduleAppointment moves a scheduled appointment to another slot. The
// old seat is released, the new one reserved, the replacement appointment
// inserted and the original marked rescheduled in a single transaction.
func (e *Engine) RescheduleAppointment(ctx context.Context, id, newSlotID uuid.UUID, reason string) (*Result, error) {
	if newSlotID == uuid.Nil {
		return nil, invalidf("new_slot_id is required")
	}
	current, err := e.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.SlotID == newSlotID {
		return nil, invalidf("appointment %s is already in slot %s", id, newSlotID)
	}

	var res Result
	err = e.locker.WithSlotLocks(ctx, []uuid.UUID{current.SlotID, newSlotID}, func(lockCtx context.Context) error {
		return e.store.WithinTx(lockCtx, func(ctx context.Context, tx Tx) error {
			now := e.now()
			old, err := tx.Appointments().GetAppointment(ctx, id)
			if err != nil {
				return err
			}
			if old.Status != StatusScheduled {
				return ErrInvalidTransition.Withf("only scheduled appointments can be rescheduled, got %s", old.Status)
			}

			newSlot, err := tx.Slots().GetSlot(ctx, newSlotID)
			if err != nil {
				return err
			}
			if !newSlot.AcceptsType(old.AppointmentTypeID) {
				return ErrTypeNotAllowed.Withf("slot %s does not accept appointment type %q", newSlot.ID, old.AppointmentTypeID)
			}
			if err := checkReservable(newSlot); err != nil {
				return err
			}

			if err := tx.LockPatient(ctx, old.PatientID); err != nil {
				return fmt.Errorf("lock patient: %w", err)
			}
			busy, err := e.conflicts.HasConflict(ctx, tx, old.PatientID, newSlot.StartTime, newSlot.EndTime, old.ID)
			if err != nil {
				return err
			}
			if busy {
				return ErrDoubleBooking.Withf("patient %s already booked between %s and %s",
					old.PatientID, newSlot.StartTime.Format(time.RFC3339), newSlot.EndTime.Format(time.RFC3339))
			}

			if _, err := e.slots.release(ctx, tx, old.SlotID); err != nil {
				return err
			}
			if _, err := e.slots.reserve(ctx, tx, newSlot.ID); err != nil {
				return err
			}

			next := &Appointment{
				ID:                    uuid.New(),
				PatientID:             old.PatientID,
				ProviderID:            newSlot.ProviderID,
				SlotID:                newSlot.ID,
				AppointmentTypeID:     old.AppointmentTypeID,
				StartTime:             newSlot.StartTime,
				EndTime:               newSlot.EndTime,
				Status:                StatusScheduled,
				Reason:                old.Reason,
				Notes:                 old.Notes,
				Paid:                  old.Paid,
				PreviousAppointmentID: ptr(old.ID),
				RescheduledFrom:       ptr(old.ID),
				CreatedAt:             now,
				UpdatedAt:             now,
			}
			if err := tx.Appointments().InsertAppointment(ctx, next); err != nil {
				return fmt.Errorf("insert rescheduled appointment: %w", err)
			}

			old.Status = StatusRescheduled
			old.RescheduledTo = ptr(next.ID)
			old.RescheduleReason = reason
			old.UpdatedAt = now
			if err := tx.Appointments().UpdateAppointment(ctx, old); err != nil {
				return fmt.Errorf("update original appointment: %w", err)
			}

			var fx Effects
			ev := appointmentEvent(EventAppointmentRescheduled, old, now)
			ev.Data = map[string]any{
				"new_appointment_id": next.ID.String(),
				"new_slot_id":        next.SlotID.String(),
				"new_start_time":     next.StartTime,
				"reason":             reason,
			}
			fx.event(ev)
			e.scheduleReminder(&fx, next, now)
			fx.promote(Promotion{ProviderID: old.ProviderID, SlotID: old.SlotID})

			res = Result{Appointment: next, Previous: old, Effects: fx}
			return nil
		})
	})
	if err != nil {
		return nil, lockError(err)
	}
	return &res, nil
}

func (e *Engine) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var out *Appointment
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.Appointments().GetAppointment(ctx, id)
		out = a
		return err
	})
	return out, err
}

// ListPatientAppointments pages through a patient's appointments, newest
// start first.
func (e *Engine) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	var out []Appointment
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.Appointments().ListByPatient(ctx, patientID, limit, offset)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return out, nil
}

func (e *Engine) ListSlotAppointments(ctx context.Context, slotID uuid.UUID) ([]Appointment, error) {
	var out []Appointment
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.Appointments().ListBySlot(ctx, slotID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list appointments by slot: %w", err)
	}
	return out, nil
}

// RescheduleChain returns every appointment linked to id by reschedules,
// oldest first.
func (e *Engine) RescheduleChain(ctx context.Context, id uuid.UUID) ([]Appointment, error) {
	var chain []Appointment
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		chain = nil
		repo := tx.Appointments()

		start, err := repo.GetAppointment(ctx, id)
		if err != nil {
			return err
		}

		seen := map[uuid.UUID]bool{start.ID: true}
		root := start
		for root.PreviousAppointmentID != nil && !seen[*root.PreviousAppointmentID] {
			prev, err := repo.GetAppointment(ctx, *root.PreviousAppointmentID)
			if errors.Is(err, ErrAppointmentNotFound) {
				break
			}
			if err != nil {
				return err
			}
			seen[prev.ID] = true
			root = prev
		}

		visited := map[uuid.UUID]bool{}
		for cur := root; cur != nil && !visited[cur.ID]; {
			visited[cur.ID] = true
			chain = append(chain, *cur)
			if cur.RescheduledTo == nil {
				break
			}
			next, err := repo.GetAppointment(ctx, *cur.RescheduledTo)
			if errors.Is(err, ErrAppointmentNotFound) {
				break
			}
			if err != nil {
				return err
			}
			cur = next
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chain, nil
}
