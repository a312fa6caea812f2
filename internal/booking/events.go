package booking

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventAppointmentCreated     EventType = "appointment.created"
	EventAppointmentConfirmed   EventType = "appointment.confirmed"
	EventAppointmentCancelled   EventType = "appointment.cancelled"
	EventAppointmentRescheduled EventType = "appointment.rescheduled"
	EventAppointmentCheckedIn   EventType = "appointment.checked_in"
	EventAppointmentStarted     EventType = "appointment.started"
	EventAppointmentCompleted   EventType = "appointment.completed"
	EventAppointmentNoShow      EventType = "appointment.no_show"
	EventWaitlistOffered        EventType = "waitlist.offered"
	EventWaitlistAccepted       EventType = "waitlist.accepted"
)

// Event is a domain event handed to audit and notification consumers once
// the mutation it describes has committed.
type Event struct {
	Type            EventType      `json:"type"`
	AppointmentID   *uuid.UUID     `json:"appointment_id,omitempty"`
	WaitlistEntryID *uuid.UUID     `json:"waitlist_entry_id,omitempty"`
	PatientID       uuid.UUID      `json:"patient_id"`
	ProviderID      uuid.UUID      `json:"provider_id"`
	SlotID          *uuid.UUID     `json:"slot_id,omitempty"`
	OccurredAt      time.Time      `json:"occurred_at"`
	EmittedAt       time.Time      `json:"emitted_at"`
	Data            map[string]any `json:"data,omitempty"`
}

type JobKind string

const (
	JobConfirmation JobKind = "booking.confirmation"
	JobReminder     JobKind = "booking.reminder"
	JobRefund       JobKind = "booking.refund"
	JobOfferNotice  JobKind = "waitlist.offer_notice"
)

// Job is deferred work for the notification or billing collaborators.
type Job struct {
	Kind            JobKind        `json:"kind"`
	AppointmentID   *uuid.UUID     `json:"appointment_id,omitempty"`
	WaitlistEntryID *uuid.UUID     `json:"waitlist_entry_id,omitempty"`
	PatientID       uuid.UUID      `json:"patient_id"`
	RunAt           time.Time      `json:"run_at"`
	Data            map[string]any `json:"data,omitempty"`
}

func appointmentEvent(t EventType, a *Appointment, at time.Time) Event {
	return Event{
		Type:          t,
		AppointmentID: ptr(a.ID),
		PatientID:     a.PatientID,
		ProviderID:    a.ProviderID,
		SlotID:        ptr(a.SlotID),
		OccurredAt:    at,
	}
}

func waitlistEvent(t EventType, w *WaitlistEntry, at time.Time) Event {
	ev := Event{
		Type:            t,
		WaitlistEntryID: ptr(w.ID),
		PatientID:       w.PatientID,
		ProviderID:      w.ProviderID,
		SlotID:          clonePtr(w.OfferedSlotID),
		OccurredAt:      at,
	}
	if w.AcceptedAppointmentID != nil {
		ev.AppointmentID = clonePtr(w.AcceptedAppointmentID)
	}
	return ev
}

// EmissionClock hands out strictly increasing timestamps, never behind the
// wall clock.
type EmissionClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewEmissionClock(now func() time.Time) *EmissionClock {
	if now == nil {
		now = time.Now
	}
	return &EmissionClock{now: now}
}

func (c *EmissionClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC()
	if !t.After(c.last) {
		t = c.last.Add(time.Nanosecond)
	}
	c.last = t
	return t
}
