package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/appointment-booking-engine/internal/booking"
)

const slotColumns = `id, provider_id, start_time, end_time, status, max_bookings, current_bookings,
	allowed_appointment_types, is_overbook, location_id, room_number, block_reason, version,
	created_at, updated_at`

type slotRepo struct {
	tx pgx.Tx
}

func scanSlot(row pgx.Row) (*booking.Slot, error) {
	var s booking.Slot

	err := row.Scan(
		&s.ID,
		&s.ProviderID,
		&s.StartTime,
		&s.EndTime,
		&s.Status,
		&s.MaxBookings,
		&s.CurrentBookings,
		&s.AllowedAppointmentTypes,
		&s.IsOverbook,
		&s.LocationID,
		&s.RoomNumber,
		&s.BlockReason,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, booking.ErrSlotNotFound
		}
		return nil, err
	}

	s.StartTime = s.StartTime.UTC()
	s.EndTime = s.EndTime.UTC()
	if len(s.AllowedAppointmentTypes) == 0 {
		s.AllowedAppointmentTypes = nil
	}
	return &s, nil
}

func (r slotRepo) GetSlot(ctx context.Context, id uuid.UUID) (*booking.Slot, error) {
	row := r.tx.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
		FOR UPDATE
	`, id)
	s, err := scanSlot(row)
	if errors.Is(err, booking.ErrSlotNotFound) {
		return nil, booking.ErrSlotNotFound.Withf("slot %s not found", id)
	}
	return s, err
}

func (r slotRepo) InsertSlots(ctx context.Context, slots []booking.Slot) error {
	batch := &pgx.Batch{}
	for _, s := range slots {
		types := s.AllowedAppointmentTypes
		if types == nil {
			types = []string{}
		}
		batch.Queue(`
			INSERT INTO slots (id, provider_id, start_time, end_time, status, max_bookings, current_bookings,
				allowed_appointment_types, is_overbook, location_id, room_number, block_reason, version,
				created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, COALESCE($14, now()), COALESCE($15, now()))
		`, s.ID, s.ProviderID, s.StartTime, s.EndTime, s.Status, s.MaxBookings, s.CurrentBookings,
			types, s.IsOverbook, s.LocationID, s.RoomNumber, s.BlockReason, s.Version,
			nullableTime(s.CreatedAt), nullableTime(s.UpdatedAt))
	}

	if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert slots: %w", err)
	}
	return nil
}

func (r slotRepo) UpdateSlot(ctx context.Context, s *booking.Slot) error {
	types := s.AllowedAppointmentTypes
	if types == nil {
		types = []string{}
	}
	row := r.tx.QueryRow(ctx, `
		UPDATE slots
		SET status = $2,
		    max_bookings = $3,
		    current_bookings = $4,
		    allowed_appointment_types = $5,
		    is_overbook = $6,
		    location_id = $7,
		    room_number = $8,
		    block_reason = $9,
		    version = version + 1,
		    updated_at = $10
		WHERE id = $1
		RETURNING version
	`, s.ID, s.Status, s.MaxBookings, s.CurrentBookings, types, s.IsOverbook,
		s.LocationID, s.RoomNumber, s.BlockReason, s.UpdatedAt)

	if err := row.Scan(&s.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return booking.ErrSlotNotFound.Withf("slot %s not found", s.ID)
		}
		return err
	}
	return nil
}

func (r slotRepo) ListProviderSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]booking.Slot, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE provider_id = $1
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time, id
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanSlot)
}
