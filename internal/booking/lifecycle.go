package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled:  {StatusConfirmed, StatusCancelled, StatusRescheduled, StatusNoShow},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted},
}

// CanTransition reports whether the appointment state machine allows
// moving from one status to another.
func CanTransition(from, to AppointmentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s AppointmentStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Confirm moves a scheduled appointment to confirmed.
func (e *Engine) Confirm(ctx context.Context, id uuid.UUID) (*Result, error) {
	return e.mutate(ctx, id, func(a *Appointment, now time.Time) (EventType, error) {
		if !CanTransition(a.Status, StatusConfirmed) {
			return "", ErrInvalidTransition.Withf("cannot confirm %s appointment", a.Status)
		}
		a.Status = StatusConfirmed
		return EventAppointmentConfirmed, nil
	})
}

// CheckIn records the patient's arrival. It is accepted only inside the
// check-in window around the scheduled start; a scheduled appointment is
// confirmed by it.
func (e *Engine) CheckIn(ctx context.Context, id uuid.UUID) (*Result, error) {
	return e.mutate(ctx, id, func(a *Appointment, now time.Time) (EventType, error) {
		if a.Status != StatusScheduled && a.Status != StatusConfirmed {
			return "", ErrInvalidTransition.Withf("cannot check in %s appointment", a.Status)
		}
		if a.CheckedInAt != nil {
			return "", ErrInvalidState.Withf("appointment %s already checked in", a.ID)
		}
		opens := a.StartTime.Add(-e.policy.CheckInOpensBefore)
		closes := a.StartTime.Add(e.policy.CheckInClosesAfter)
		if now.Before(opens) {
			return "", ErrInvalidState.Withf("check-in opens at %s", opens.Format(time.RFC3339))
		}
		if now.After(closes) {
			return "", ErrInvalidState.Withf("check-in closed at %s", closes.Format(time.RFC3339))
		}
		a.CheckedInAt = ptr(now)
		if a.Status == StatusScheduled {
			a.Status = StatusConfirmed
		}
		return EventAppointmentCheckedIn, nil
	})
}

func (e *Engine) Start(ctx context.Context, id uuid.UUID) (*Result, error) {
	return e.mutate(ctx, id, func(a *Appointment, now time.Time) (EventType, error) {
		if !CanTransition(a.Status, StatusInProgress) {
			return "", ErrInvalidTransition.Withf("cannot start %s appointment", a.Status)
		}
		a.Status = StatusInProgress
		a.ActualStartAt = ptr(now)
		return EventAppointmentStarted, nil
	})
}

func (e *Engine) Complete(ctx context.Context, id uuid.UUID) (*Result, error) {
	return e.mutate(ctx, id, func(a *Appointment, now time.Time) (EventType, error) {
		if !CanTransition(a.Status, StatusCompleted) {
			return "", ErrInvalidTransition.Withf("cannot complete %s appointment", a.Status)
		}
		a.Status = StatusCompleted
		a.ActualEndAt = ptr(now)
		return EventAppointmentCompleted, nil
	})
}

// MarkNoShow is only possible once the scheduled end has passed and the
// patient never checked in.
func (e *Engine) MarkNoShow(ctx context.Context, id uuid.UUID) (*Result, error) {
	return e.mutate(ctx, id, func(a *Appointment, now time.Time) (EventType, error) {
		if !CanTransition(a.Status, StatusNoShow) {
			return "", ErrInvalidTransition.Withf("cannot mark %s appointment as no-show", a.Status)
		}
		if now.Before(a.EndTime) {
			return "", ErrInvalidState.Withf("appointment ends at %s", a.EndTime.Format(time.RFC3339))
		}
		if a.CheckedInAt != nil {
			return "", ErrInvalidState.Withf("patient checked in at %s", a.CheckedInAt.Format(time.RFC3339))
		}
		a.Status = StatusNoShow
		return EventAppointmentNoShow, nil
	})
}

// mutate applies a status change that does not touch slot capacity.
func (e *Engine) mutate(ctx context.Context, id uuid.UUID, apply func(a *Appointment, now time.Time) (EventType, error)) (*Result, error) {
	var res Result
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		now := e.now()
		appt, err := tx.Appointments().GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		evType, err := apply(appt, now)
		if err != nil {
			return err
		}
		appt.UpdatedAt = now
		if err := tx.Appointments().UpdateAppointment(ctx, appt); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}

		var fx Effects
		fx.event(appointmentEvent(evType, appt, now))
		res = Result{Appointment: appt, Effects: fx}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
