package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventLog struct {
	ID              int64
	EventType       string
	AppointmentID   *uuid.UUID
	WaitlistEntryID *uuid.UUID
	Payload         []byte
	CreatedAt       time.Time
}

// InsertEvent appends to the event_logs audit table outside any booking
// transaction.
func (s *Store) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, waitlist_entry_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.WaitlistEntryID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}
