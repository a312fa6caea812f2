package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/appointment-booking-engine/internal/booking"
)

// -- Slots --

type CreateSlotRequest struct {
	ProviderID              uuid.UUID `json:"provider_id"`
	StartTime               time.Time `json:"start_time"`
	EndTime                 time.Time `json:"end_time"`
	MaxBookings             int       `json:"max_bookings"`
	AllowedAppointmentTypes []string  `json:"allowed_appointment_types,omitempty"`
	IsOverbook              bool      `json:"is_overbook"`
	LocationID              string    `json:"location_id,omitempty"`
	RoomNumber              string    `json:"room_number,omitempty"`
}

func (r CreateSlotRequest) toDomain() booking.NewSlot {
	return booking.NewSlot{
		ProviderID:              r.ProviderID,
		StartTime:               r.StartTime,
		EndTime:                 r.EndTime,
		MaxBookings:             r.MaxBookings,
		AllowedAppointmentTypes: r.AllowedAppointmentTypes,
		IsOverbook:              r.IsOverbook,
		LocationID:              r.LocationID,
		RoomNumber:              r.RoomNumber,
	}
}

// WorkingDayRequest holds "HH:MM-HH:MM" windows.
type WorkingDayRequest struct {
	Morning   string `json:"morning,omitempty"`
	Afternoon string `json:"afternoon,omitempty"`
}

type BulkSlotsRequest struct {
	ProviderID              uuid.UUID                    `json:"provider_id"`
	FromDate                string                       `json:"from_date"`
	ToDate                  string                       `json:"to_date"`
	WorkingHours            map[string]WorkingDayRequest `json:"working_hours"`
	SlotDurationMinutes     int                          `json:"slot_duration_minutes"`
	BreakMinutes            int                          `json:"break_minutes"`
	ExcludedDates           []string                     `json:"excluded_dates,omitempty"`
	Timezone                string                       `json:"timezone,omitempty"`
	MaxBookings             int                          `json:"max_bookings"`
	AllowedAppointmentTypes []string                     `json:"allowed_appointment_types,omitempty"`
	LocationID              string                       `json:"location_id,omitempty"`
	RoomNumber              string                       `json:"room_number,omitempty"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func (r BulkSlotsRequest) toDomain() (booking.BulkSlotRequest, error) {
	loc := time.UTC
	if r.Timezone != "" {
		l, err := time.LoadLocation(r.Timezone)
		if err != nil {
			return booking.BulkSlotRequest{}, fmt.Errorf("timezone: %w", err)
		}
		loc = l
	}
	from, err := time.ParseInLocation(time.DateOnly, r.FromDate, loc)
	if err != nil {
		return booking.BulkSlotRequest{}, fmt.Errorf("from_date: %w", err)
	}
	to, err := time.ParseInLocation(time.DateOnly, r.ToDate, loc)
	if err != nil {
		return booking.BulkSlotRequest{}, fmt.Errorf("to_date: %w", err)
	}

	hours := make(map[time.Weekday]booking.WorkingDay, len(r.WorkingHours))
	for name, day := range r.WorkingHours {
		wd, ok := weekdays[strings.ToLower(name)]
		if !ok {
			return booking.BulkSlotRequest{}, fmt.Errorf("working_hours: unknown weekday %q", name)
		}
		var out booking.WorkingDay
		if out.Morning, err = parseWindow(day.Morning); err != nil {
			return booking.BulkSlotRequest{}, fmt.Errorf("working_hours.%s.morning: %w", name, err)
		}
		if out.Afternoon, err = parseWindow(day.Afternoon); err != nil {
			return booking.BulkSlotRequest{}, fmt.Errorf("working_hours.%s.afternoon: %w", name, err)
		}
		hours[wd] = out
	}

	excluded := make([]time.Time, 0, len(r.ExcludedDates))
	for _, s := range r.ExcludedDates {
		d, err := time.ParseInLocation(time.DateOnly, s, loc)
		if err != nil {
			return booking.BulkSlotRequest{}, fmt.Errorf("excluded_dates: %w", err)
		}
		excluded = append(excluded, d)
	}

	return booking.BulkSlotRequest{
		ProviderID:              r.ProviderID,
		FromDate:                from,
		ToDate:                  to,
		WorkingHours:            hours,
		SlotDuration:            time.Duration(r.SlotDurationMinutes) * time.Minute,
		BreakMinutes:            r.BreakMinutes,
		ExcludedDates:           excluded,
		Location:                loc,
		MaxBookings:             r.MaxBookings,
		AllowedAppointmentTypes: r.AllowedAppointmentTypes,
		LocationID:              r.LocationID,
		RoomNumber:              r.RoomNumber,
	}, nil
}

func parseWindow(s string) (*booking.TimeRange, error) {
	if s == "" {
		return nil, nil
	}
	r, err := booking.ParseTimeRange(s)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

type SlotRangeRequest struct {
	ProviderID uuid.UUID `json:"provider_id"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	Reason     string    `json:"reason,omitempty"`
}

type SlotResponse struct {
	ID                      uuid.UUID `json:"id"`
	ProviderID              uuid.UUID `json:"provider_id"`
	StartTime               time.Time `json:"start_time"`
	EndTime                 time.Time `json:"end_time"`
	Status                  string    `json:"status"`
	MaxBookings             int       `json:"max_bookings"`
	CurrentBookings         int       `json:"current_bookings"`
	AllowedAppointmentTypes []string  `json:"allowed_appointment_types,omitempty"`
	IsOverbook              bool      `json:"is_overbook"`
	LocationID              string    `json:"location_id,omitempty"`
	RoomNumber              string    `json:"room_number,omitempty"`
	BlockReason             string    `json:"block_reason,omitempty"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

func toSlotResponse(s *booking.Slot) SlotResponse {
	return SlotResponse{
		ID:                      s.ID,
		ProviderID:              s.ProviderID,
		StartTime:               s.StartTime,
		EndTime:                 s.EndTime,
		Status:                  string(s.Status),
		MaxBookings:             s.MaxBookings,
		CurrentBookings:         s.CurrentBookings,
		AllowedAppointmentTypes: s.AllowedAppointmentTypes,
		IsOverbook:              s.IsOverbook,
		LocationID:              s.LocationID,
		RoomNumber:              s.RoomNumber,
		BlockReason:             s.BlockReason,
		CreatedAt:               s.CreatedAt,
		UpdatedAt:               s.UpdatedAt,
	}
}

func toSlotResponses(slots []booking.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for i := range slots {
		out = append(out, toSlotResponse(&slots[i]))
	}
	return out
}

// -- Appointments --

type CreateAppointmentRequest struct {
	SlotID            string `json:"slot_id"`
	PatientID         string `json:"patient_id"`
	ProviderID        string `json:"provider_id,omitempty"`
	AppointmentTypeID string `json:"appointment_type_id,omitempty"`
	Reason            string `json:"reason,omitempty"`
	Notes             string `json:"notes,omitempty"`
	Paid              bool   `json:"paid"`
}

type CancelAppointmentRequest struct {
	CancelledBy uuid.UUID `json:"cancelled_by"`
	Reason      string    `json:"reason"`
}

type RescheduleAppointmentRequest struct {
	NewSlotID uuid.UUID `json:"new_slot_id"`
	Reason    string    `json:"reason"`
}

type AppointmentResponse struct {
	ID                    uuid.UUID  `json:"id"`
	PatientID             uuid.UUID  `json:"patient_id"`
	ProviderID            uuid.UUID  `json:"provider_id"`
	SlotID                uuid.UUID  `json:"slot_id"`
	AppointmentTypeID     string     `json:"appointment_type_id,omitempty"`
	StartTime             time.Time  `json:"start_time"`
	EndTime               time.Time  `json:"end_time"`
	Status                string     `json:"status"`
	Reason                string     `json:"reason,omitempty"`
	Notes                 string     `json:"notes,omitempty"`
	Paid                  bool       `json:"paid"`
	CheckedInAt           *time.Time `json:"checked_in_at,omitempty"`
	ActualStartAt         *time.Time `json:"actual_start_at,omitempty"`
	ActualEndAt           *time.Time `json:"actual_end_at,omitempty"`
	CancelledAt           *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy           *uuid.UUID `json:"cancelled_by,omitempty"`
	CancellationReason    string     `json:"cancellation_reason,omitempty"`
	RescheduleReason      string     `json:"reschedule_reason,omitempty"`
	PreviousAppointmentID *uuid.UUID `json:"previous_appointment_id,omitempty"`
	RescheduledFrom       *uuid.UUID `json:"rescheduled_from,omitempty"`
	RescheduledTo         *uuid.UUID `json:"rescheduled_to,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                    a.ID,
		PatientID:             a.PatientID,
		ProviderID:            a.ProviderID,
		SlotID:                a.SlotID,
		AppointmentTypeID:     a.AppointmentTypeID,
		StartTime:             a.StartTime,
		EndTime:               a.EndTime,
		Status:                string(a.Status),
		Reason:                a.Reason,
		Notes:                 a.Notes,
		Paid:                  a.Paid,
		CheckedInAt:           a.CheckedInAt,
		ActualStartAt:         a.ActualStartAt,
		ActualEndAt:           a.ActualEndAt,
		CancelledAt:           a.CancelledAt,
		CancelledBy:           a.CancelledBy,
		CancellationReason:    a.CancellationReason,
		RescheduleReason:      a.RescheduleReason,
		PreviousAppointmentID: a.PreviousAppointmentID,
		RescheduledFrom:       a.RescheduledFrom,
		RescheduledTo:         a.RescheduledTo,
		CreatedAt:             a.CreatedAt,
		UpdatedAt:             a.UpdatedAt,
	}
}

func toAppointmentResponses(appts []booking.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	return out
}

// -- Waitlist --

type JoinWaitlistRequest struct {
	PatientID          uuid.UUID `json:"patient_id"`
	ProviderID         uuid.UUID `json:"provider_id"`
	AppointmentTypeID  string    `json:"appointment_type_id,omitempty"`
	PreferredDate      string    `json:"preferred_date"`
	PreferredTimeSlots []string  `json:"preferred_time_slots,omitempty"`
	Priority           int       `json:"priority"`
	Notes              string    `json:"notes,omitempty"`
}

func (r JoinWaitlistRequest) toDomain() (booking.JoinWaitlistRequest, error) {
	date, err := time.Parse(time.DateOnly, r.PreferredDate)
	if err != nil {
		return booking.JoinWaitlistRequest{}, fmt.Errorf("preferred_date: %w", err)
	}
	var windows []booking.TimeRange
	for _, s := range r.PreferredTimeSlots {
		tr, err := booking.ParseTimeRange(s)
		if err != nil {
			return booking.JoinWaitlistRequest{}, fmt.Errorf("preferred_time_slots: %w", err)
		}
		windows = append(windows, tr)
	}
	return booking.JoinWaitlistRequest{
		PatientID:          r.PatientID,
		ProviderID:         r.ProviderID,
		AppointmentTypeID:  r.AppointmentTypeID,
		PreferredDate:      date,
		PreferredTimeSlots: windows,
		Priority:           r.Priority,
		Notes:              r.Notes,
	}, nil
}

type OfferSlotRequest struct {
	SlotID uuid.UUID `json:"slot_id"`
}

type PromoteRequest struct {
	ProviderID uuid.UUID `json:"provider_id"`
	SlotID     uuid.UUID `json:"slot_id"`
}

type WaitlistEntryResponse struct {
	ID                    uuid.UUID  `json:"id"`
	PatientID             uuid.UUID  `json:"patient_id"`
	ProviderID            uuid.UUID  `json:"provider_id"`
	AppointmentTypeID     string     `json:"appointment_type_id,omitempty"`
	PreferredDate         string     `json:"preferred_date"`
	PreferredTimeSlots    []string   `json:"preferred_time_slots,omitempty"`
	Status                string     `json:"status"`
	Priority              int        `json:"priority"`
	Notes                 string     `json:"notes,omitempty"`
	OfferedSlotID         *uuid.UUID `json:"offered_slot_id,omitempty"`
	OfferedAt             *time.Time `json:"offered_at,omitempty"`
	OfferExpiresAt        *time.Time `json:"offer_expires_at,omitempty"`
	OfferCount            int        `json:"offer_count"`
	AcceptedAppointmentID *uuid.UUID `json:"accepted_appointment_id,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func toWaitlistEntryResponse(w *booking.WaitlistEntry) WaitlistEntryResponse {
	var windows []string
	for _, tr := range w.PreferredTimeSlots {
		windows = append(windows, tr.String())
	}
	return WaitlistEntryResponse{
		ID:                    w.ID,
		PatientID:             w.PatientID,
		ProviderID:            w.ProviderID,
		AppointmentTypeID:     w.AppointmentTypeID,
		PreferredDate:         w.PreferredDate.Format(time.DateOnly),
		PreferredTimeSlots:    windows,
		Status:                string(w.Status),
		Priority:              w.Priority,
		Notes:                 w.Notes,
		OfferedSlotID:         w.OfferedSlotID,
		OfferedAt:             w.OfferedAt,
		OfferExpiresAt:        w.OfferExpiresAt,
		OfferCount:            w.OfferCount,
		AcceptedAppointmentID: w.AcceptedAppointmentID,
		CreatedAt:             w.CreatedAt,
		UpdatedAt:             w.UpdatedAt,
	}
}

type AcceptOfferResponse struct {
	Entry       WaitlistEntryResponse `json:"entry"`
	Appointment AppointmentResponse   `json:"appointment"`
}

// PromoteResponse carries a nil entry when nobody was offered the slot.
type PromoteResponse struct {
	Entry *WaitlistEntryResponse `json:"entry"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
