package booking

import (
	"errors"
	"fmt"
)

// Kind groups errors by how callers should react to them.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindInvalidTransition Kind = "invalid_transition"
	KindInvalidState      Kind = "invalid_state"
	KindOfferExpired      Kind = "offer_expired"
	KindValidation        Kind = "validation"
)

// Error is a typed booking failure. Two errors match under errors.Is when
// their codes are equal, so sentinels can carry per-call detail.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Withf returns a copy of e with the message replaced.
func (e *Error) Withf(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrSlotNotFound          = newError(KindNotFound, "slot_not_found", "slot not found")
	ErrAppointmentNotFound   = newError(KindNotFound, "appointment_not_found", "appointment not found")
	ErrWaitlistEntryNotFound = newError(KindNotFound, "waitlist_entry_not_found", "waitlist entry not found")

	ErrSlotUnavailable = newError(KindConflict, "slot_unavailable", "slot is not available")
	ErrSlotFull        = newError(KindConflict, "slot_full", "slot is at capacity")
	ErrSlotBeingBooked = newError(KindConflict, "slot_being_booked", "slot is currently being booked, please retry")
	ErrSlotOverlap     = newError(KindConflict, "slot_overlap", "slot overlaps an existing slot")
	ErrDoubleBooking   = newError(KindConflict, "double_booking", "patient already has an appointment in this interval")
	ErrDuplicateEntry  = newError(KindConflict, "duplicate_entry", "patient already waiting for this provider and date")
	ErrTypeNotAllowed  = newError(KindConflict, "appointment_type_not_allowed", "slot does not accept this appointment type")

	ErrInvalidTransition = newError(KindInvalidTransition, "invalid_transition", "invalid status transition")
	ErrInvalidState      = newError(KindInvalidState, "invalid_state", "operation not allowed in current state")
	ErrOfferExpired      = newError(KindOfferExpired, "offer_expired", "waitlist offer has expired")

	ErrValidation = newError(KindValidation, "validation_failed", "invalid request")
)

// KindOf returns the kind of the first *Error in err's chain, or "" for
// infrastructure failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func invalidf(format string, args ...any) *Error {
	return ErrValidation.Withf(format, args...)
}
