package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store runs units of work against the three record sets. Everything fn
// writes through tx becomes visible together when fn returns nil, and none
// of it does when fn returns an error.
//
// Implementations must not allow WithinTx to be nested on the same goroutine.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the view of the store inside one transaction.
type Tx interface {
	Slots() SlotRepository
	Appointments() AppointmentRepository
	Waitlist() WaitlistRepository

	// LockPatient serialises transactions that check and create bookings for
	// the same patient.
	LockPatient(ctx context.Context, patientID uuid.UUID) error

	// LockProvider serialises transactions that check and insert slots for
	// the same provider.
	LockProvider(ctx context.Context, providerID uuid.UUID) error
}

// SlotRepository holds slot rows. GetSlot locks the row for the rest of the
// transaction where the backend supports it.
type SlotRepository interface {
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	InsertSlots(ctx context.Context, slots []Slot) error
	UpdateSlot(ctx context.Context, s *Slot) error
	// ListProviderSlots returns slots of the provider overlapping [from, to),
	// ordered by start time.
	ListProviderSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Slot, error)
}

type AppointmentRepository interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	InsertAppointment(ctx context.Context, a *Appointment) error
	UpdateAppointment(ctx context.Context, a *Appointment) error

	// For conflict checks: appointments of the patient overlapping
	// [from, to) whose status is one of statuses.
	ListPatientAppointmentsBetween(ctx context.Context, patientID uuid.UUID, from, to time.Time, statuses []AppointmentStatus) ([]Appointment, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListBySlot(ctx context.Context, slotID uuid.UUID) ([]Appointment, error)
}

type WaitlistRepository interface {
	GetEntry(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error)
	InsertEntry(ctx context.Context, w *WaitlistEntry) error
	UpdateEntry(ctx context.Context, w *WaitlistEntry) error

	// FindActive returns the waiting or offered entry for the tuple, or
	// ErrWaitlistEntryNotFound.
	FindActive(ctx context.Context, patientID, providerID uuid.UUID, preferredDate time.Time) (*WaitlistEntry, error)

	// ListWaiting returns waiting entries of the provider with preferred
	// date on or before onOrBefore, ordered by priority desc then CreatedAt.
	ListWaiting(ctx context.Context, providerID uuid.UUID, onOrBefore time.Time) ([]WaitlistEntry, error)
	ListOfferedForSlot(ctx context.Context, slotID uuid.UUID) ([]WaitlistEntry, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID) ([]WaitlistEntry, error)

	// Expiry sweep
	ListExpiredOffers(ctx context.Context, now time.Time) ([]WaitlistEntry, error)
}
