package booking

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// WorkingDay holds the bookable windows of one weekday. Either may be nil.
type WorkingDay struct {
	Morning   *TimeRange
	Afternoon *TimeRange
}

// BulkSlotRequest describes slots to generate from a weekly pattern. Dates
// are civil dates interpreted in Location.
type BulkSlotRequest struct {
	ProviderID              uuid.UUID
	FromDate                time.Time
	ToDate                  time.Time // inclusive
	WorkingHours            map[time.Weekday]WorkingDay
	SlotDuration            time.Duration
	BreakMinutes            int
	ExcludedDates           []time.Time
	Location                *time.Location
	MaxBookings             int
	AllowedAppointmentTypes []string
	LocationID              string
	RoomNumber              string
}

// GenerateSlots walks the date range day by day and cuts each working
// window into back-to-back slots separated by the break. A slot that would
// run past the end of its window is not generated. Window times are wall
// clock times in the request location, also on DST change days.
func GenerateSlots(req BulkSlotRequest, now time.Time) []Slot {
	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}

	excluded := make(map[string]struct{}, len(req.ExcludedDates))
	for _, d := range req.ExcludedDates {
		excluded[d.Format(time.DateOnly)] = struct{}{}
	}

	maxBookings := req.MaxBookings
	if maxBookings <= 0 {
		maxBookings = 1
	}
	step := req.SlotDuration + time.Duration(req.BreakMinutes)*time.Minute

	first := time.Date(req.FromDate.Year(), req.FromDate.Month(), req.FromDate.Day(), 0, 0, 0, 0, loc)
	last := time.Date(req.ToDate.Year(), req.ToDate.Month(), req.ToDate.Day(), 0, 0, 0, 0, loc)

	var slots []Slot
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if _, skip := excluded[day.Format(time.DateOnly)]; skip {
			continue
		}
		wd, ok := req.WorkingHours[day.Weekday()]
		if !ok {
			continue
		}
		for _, window := range []*TimeRange{wd.Morning, wd.Afternoon} {
			if window == nil {
				continue
			}
			windowStart := time.Duration(window.StartMinute) * time.Minute
			windowEnd := time.Duration(window.EndMinute) * time.Minute
			for off := windowStart; off+req.SlotDuration <= windowEnd; off += step {
				slots = append(slots, Slot{
					ID:                      uuid.New(),
					ProviderID:              req.ProviderID,
					StartTime:               wallClock(day, off, loc).UTC(),
					EndTime:                 wallClock(day, off+req.SlotDuration, loc).UTC(),
					Status:                  SlotAvailable,
					MaxBookings:             maxBookings,
					AllowedAppointmentTypes: append([]string(nil), req.AllowedAppointmentTypes...),
					LocationID:              req.LocationID,
					RoomNumber:              req.RoomNumber,
					CreatedAt:               now,
					UpdatedAt:               now,
				})
			}
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		return slots[i].StartTime.Before(slots[j].StartTime)
	})
	return slots
}

// wallClock is the instant at which the clock in loc reads midnight of day
// plus off.
func wallClock(day time.Time, off time.Duration, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, int(off), loc)
}
