package booking

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewSlot is the input for creating a single slot.
type NewSlot struct {
	ProviderID              uuid.UUID
	StartTime               time.Time
	EndTime                 time.Time
	MaxBookings             int
	AllowedAppointmentTypes []string
	IsOverbook              bool
	LocationID              string
	RoomNumber              string
}

func (n NewSlot) Validate() error {
	if n.ProviderID == uuid.Nil {
		return invalidf("provider_id is required")
	}
	if n.StartTime.IsZero() || n.EndTime.IsZero() {
		return invalidf("start_time and end_time are required")
	}
	if !n.StartTime.Before(n.EndTime) {
		return invalidf("start_time must be before end_time")
	}
	if n.MaxBookings < 0 {
		return invalidf("max_bookings must be at least 1")
	}
	return nil
}

func (n NewSlot) build(now time.Time) Slot {
	maxBookings := n.MaxBookings
	if maxBookings == 0 {
		maxBookings = 1
	}
	return Slot{
		ID:                      uuid.New(),
		ProviderID:              n.ProviderID,
		StartTime:               n.StartTime.UTC(),
		EndTime:                 n.EndTime.UTC(),
		Status:                  SlotAvailable,
		MaxBookings:             maxBookings,
		AllowedAppointmentTypes: append([]string(nil), n.AllowedAppointmentTypes...),
		IsOverbook:              n.IsOverbook,
		LocationID:              n.LocationID,
		RoomNumber:              n.RoomNumber,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
}

// MaxBulkDays bounds the inclusive date range of one bulk request.
const MaxBulkDays = 366

func (r BulkSlotRequest) Validate() error {
	if r.ProviderID == uuid.Nil {
		return invalidf("provider_id is required")
	}
	if r.FromDate.IsZero() || r.ToDate.IsZero() {
		return invalidf("from_date and to_date are required")
	}
	if r.ToDate.Before(r.FromDate) {
		return invalidf("to_date must not be before from_date")
	}
	if r.ToDate.After(r.FromDate.AddDate(0, 0, MaxBulkDays-1)) {
		return invalidf("date range must not exceed %d days", MaxBulkDays)
	}
	if r.SlotDuration < time.Minute {
		return invalidf("slot_duration must be at least one minute")
	}
	if r.BreakMinutes < 0 {
		return invalidf("break_minutes must not be negative")
	}
	if r.MaxBookings < 0 {
		return invalidf("max_bookings must be at least 1")
	}
	if len(r.WorkingHours) == 0 {
		return invalidf("working_hours must name at least one weekday")
	}
	for wd, day := range r.WorkingHours {
		for _, w := range []*TimeRange{day.Morning, day.Afternoon} {
			if w == nil {
				continue
			}
			if err := w.Validate(); err != nil {
				return invalidf("%s: %v", wd, err)
			}
		}
		if day.Morning != nil && day.Afternoon != nil && day.Morning.EndMinute > day.Afternoon.StartMinute {
			return invalidf("%s: morning window must end before afternoon window starts", wd)
		}
	}
	return nil
}

// CreateAppointmentRequest is the input of Engine.CreateAppointment.
// ProviderID is optional; when set it must match the slot's provider.
type CreateAppointmentRequest struct {
	PatientID         uuid.UUID
	ProviderID        uuid.UUID
	SlotID            uuid.UUID
	AppointmentTypeID string
	Reason            string
	Notes             string
	Paid              bool
}

func (r CreateAppointmentRequest) Validate() error {
	if r.PatientID == uuid.Nil {
		return invalidf("patient_id is required")
	}
	if r.SlotID == uuid.Nil {
		return invalidf("slot_id is required")
	}
	return nil
}

// JoinWaitlistRequest is the input of Waitlist.Join.
type JoinWaitlistRequest struct {
	PatientID          uuid.UUID
	ProviderID         uuid.UUID
	AppointmentTypeID  string
	PreferredDate      time.Time
	PreferredTimeSlots []TimeRange
	Priority           int
	Notes              string
}

func (r JoinWaitlistRequest) Validate() error {
	if r.PatientID == uuid.Nil {
		return invalidf("patient_id is required")
	}
	if r.ProviderID == uuid.Nil {
		return invalidf("provider_id is required")
	}
	if r.PreferredDate.IsZero() {
		return invalidf("preferred_date is required")
	}
	for _, ts := range r.PreferredTimeSlots {
		if err := ts.Validate(); err != nil {
			return invalidf("preferred_time_slots: %v", err)
		}
	}
	return nil
}

func (r TimeRange) Validate() error {
	if r.StartMinute < 0 || r.EndMinute > 24*60 {
		return fmt.Errorf("time range %s out of day bounds", r)
	}
	if r.StartMinute >= r.EndMinute {
		return fmt.Errorf("time range %s must start before it ends", r)
	}
	return nil
}

func (r TimeRange) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", r.StartMinute/60, r.StartMinute%60, r.EndMinute/60, r.EndMinute%60)
}

// ParseTimeRange parses "HH:MM-HH:MM".
func ParseTimeRange(s string) (TimeRange, error) {
	from, to, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return TimeRange{}, fmt.Errorf("time range %q: want HH:MM-HH:MM", s)
	}
	start, err := parseClock(from)
	if err != nil {
		return TimeRange{}, fmt.Errorf("time range %q: %w", s, err)
	}
	end, err := parseClock(to)
	if err != nil {
		return TimeRange{}, fmt.Errorf("time range %q: %w", s, err)
	}
	r := TimeRange{StartMinute: start, EndMinute: end}
	return r, r.Validate()
}

func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("clock %q: bad hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q: bad minute", s)
	}
	if h == 24 && m != 0 {
		return 0, fmt.Errorf("clock %q: past end of day", s)
	}
	return h*60 + m, nil
}
