package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Overlaps is the half-open interval test used for both slot placement and
// patient double-booking. Intervals that only touch do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// timeHoldingStatuses are the appointment states that keep the patient's
// interval taken. A completed visit still occupied its interval, so it
// counts even though it is terminal.
var timeHoldingStatuses = []AppointmentStatus{StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted}

// ConflictResolver answers whether a patient is already busy in an interval.
type ConflictResolver struct{}

// HasConflict checks the patient's time-holding appointments inside tx. A zero
// exclude matches nothing.
func (ConflictResolver) HasConflict(ctx context.Context, tx Tx, patientID uuid.UUID, start, end time.Time, exclude uuid.UUID) (bool, error) {
	existing, err := tx.Appointments().ListPatientAppointmentsBetween(ctx, patientID, start, end, timeHoldingStatuses)
	if err != nil {
		return false, fmt.Errorf("list patient appointments: %w", err)
	}
	for _, a := range existing {
		if a.ID == exclude {
			continue
		}
		if !a.Status.holdsTime() {
			continue
		}
		if Overlaps(a.StartTime, a.EndTime, start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (s AppointmentStatus) holdsTime() bool {
	for _, st := range timeHoldingStatuses {
		if s == st {
			return true
		}
	}
	return false
}
