package booking

import (
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
	SlotBlocked   SlotStatus = "blocked"
	SlotCancelled SlotStatus = "cancelled"
)

type AppointmentStatus string

const (
	StatusScheduled   AppointmentStatus = "scheduled"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusInProgress  AppointmentStatus = "in_progress"
	StatusCompleted   AppointmentStatus = "completed"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusNoShow      AppointmentStatus = "no_show"
	StatusRescheduled AppointmentStatus = "rescheduled"
)

type WaitlistStatus string

const (
	WaitlistWaiting   WaitlistStatus = "waiting"
	WaitlistOffered   WaitlistStatus = "offered"
	WaitlistAccepted  WaitlistStatus = "accepted"
	WaitlistDeclined  WaitlistStatus = "declined"
	WaitlistExpired   WaitlistStatus = "expired"
	WaitlistCancelled WaitlistStatus = "cancelled"
)

// Active reports whether the entry still occupies the patient's place in
// the queue for its provider and date.
func (s WaitlistStatus) Active() bool {
	return s == WaitlistWaiting || s == WaitlistOffered
}

// Slot is a bookable window owned by one provider. CurrentBookings is only
// changed through SlotStore.
type Slot struct {
	ID                      uuid.UUID
	ProviderID              uuid.UUID
	StartTime               time.Time
	EndTime                 time.Time
	Status                  SlotStatus
	MaxBookings             int
	CurrentBookings         int
	AllowedAppointmentTypes []string
	IsOverbook              bool
	LocationID              string
	RoomNumber              string
	BlockReason             string
	Version                 int64
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// FreeCapacity is the number of bookings the slot can still take.
func (s *Slot) FreeCapacity() int {
	if n := s.MaxBookings - s.CurrentBookings; n > 0 {
		return n
	}
	return 0
}

// Bookable reports whether Reserve would currently succeed.
func (s *Slot) Bookable() bool {
	if s.Status == SlotCancelled || s.Status == SlotBlocked {
		return false
	}
	if s.Status != SlotAvailable && !s.IsOverbook {
		return false
	}
	return s.CurrentBookings < s.MaxBookings
}

// AcceptsType reports whether the slot admits the given appointment type.
// An empty allow-list admits everything.
func (s *Slot) AcceptsType(appointmentTypeID string) bool {
	if len(s.AllowedAppointmentTypes) == 0 || appointmentTypeID == "" {
		return true
	}
	for _, t := range s.AllowedAppointmentTypes {
		if t == appointmentTypeID {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with s.
func (s Slot) Clone() Slot {
	if s.AllowedAppointmentTypes != nil {
		s.AllowedAppointmentTypes = append([]string(nil), s.AllowedAppointmentTypes...)
	}
	return s
}

// Appointment is one patient's claim on a slot. StartTime and EndTime are
// copied from the slot at creation and never follow later slot changes.
type Appointment struct {
	ID                    uuid.UUID
	PatientID             uuid.UUID
	ProviderID            uuid.UUID
	SlotID                uuid.UUID
	AppointmentTypeID     string
	StartTime             time.Time
	EndTime               time.Time
	Status                AppointmentStatus
	Reason                string
	Notes                 string
	Paid                  bool
	CheckedInAt           *time.Time
	ActualStartAt         *time.Time
	ActualEndAt           *time.Time
	CancelledAt           *time.Time
	CancelledBy           *uuid.UUID
	CancellationReason    string
	RescheduleReason      string
	PreviousAppointmentID *uuid.UUID
	RescheduledFrom       *uuid.UUID
	RescheduledTo         *uuid.UUID
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Clone returns a copy whose pointer fields are not shared with a.
func (a Appointment) Clone() Appointment {
	a.CheckedInAt = clonePtr(a.CheckedInAt)
	a.ActualStartAt = clonePtr(a.ActualStartAt)
	a.ActualEndAt = clonePtr(a.ActualEndAt)
	a.CancelledAt = clonePtr(a.CancelledAt)
	a.CancelledBy = clonePtr(a.CancelledBy)
	a.PreviousAppointmentID = clonePtr(a.PreviousAppointmentID)
	a.RescheduledFrom = clonePtr(a.RescheduledFrom)
	a.RescheduledTo = clonePtr(a.RescheduledTo)
	return a
}

// TimeRange is a time-of-day window such as 09:00-12:00, in minutes from
// midnight. End is exclusive.
type TimeRange struct {
	StartMinute int
	EndMinute   int
}

func (r TimeRange) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	return m >= r.StartMinute && m < r.EndMinute
}

// WaitlistEntry is a patient's standing request for a provider on a date.
type WaitlistEntry struct {
	ID                    uuid.UUID
	PatientID             uuid.UUID
	ProviderID            uuid.UUID
	AppointmentTypeID     string
	PreferredDate         time.Time
	PreferredTimeSlots    []TimeRange
	Status                WaitlistStatus
	Priority              int
	Notes                 string
	OfferedSlotID         *uuid.UUID
	OfferedAt             *time.Time
	OfferExpiresAt        *time.Time
	OfferCount            int
	AcceptedAppointmentID *uuid.UUID
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// WantsTime reports whether the slot start fits the entry's preferred
// time-of-day windows. No preference matches any time.
func (w *WaitlistEntry) WantsTime(start time.Time) bool {
	if len(w.PreferredTimeSlots) == 0 {
		return true
	}
	for _, r := range w.PreferredTimeSlots {
		if r.Contains(start) {
			return true
		}
	}
	return false
}

func (w WaitlistEntry) Clone() WaitlistEntry {
	if w.PreferredTimeSlots != nil {
		w.PreferredTimeSlots = append([]TimeRange(nil), w.PreferredTimeSlots...)
	}
	w.OfferedSlotID = clonePtr(w.OfferedSlotID)
	w.OfferedAt = clonePtr(w.OfferedAt)
	w.OfferExpiresAt = clonePtr(w.OfferExpiresAt)
	w.AcceptedAppointmentID = clonePtr(w.AcceptedAppointmentID)
	return w
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
