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

const waitlistColumns = `id, patient_id, provider_id, appointment_type_id, preferred_date, preferred_time_slots,
	status, priority, notes, offered_slot_id, offered_at, offer_expires_at, offer_count, accepted_appointment_id,
	created_at, updated_at`

type waitlistRepo struct {
	tx pgx.Tx
}

func scanEntry(row pgx.Row) (*booking.WaitlistEntry, error) {
	var w booking.WaitlistEntry
	var windows []string

	err := row.Scan(
		&w.ID,
		&w.PatientID,
		&w.ProviderID,
		&w.AppointmentTypeID,
		&w.PreferredDate,
		&windows,
		&w.Status,
		&w.Priority,
		&w.Notes,
		&w.OfferedSlotID,
		&w.OfferedAt,
		&w.OfferExpiresAt,
		&w.OfferCount,
		&w.AcceptedAppointmentID,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, booking.ErrWaitlistEntryNotFound
		}
		return nil, err
	}

	w.PreferredDate = booking.DateOf(w.PreferredDate)
	for _, s := range windows {
		r, err := booking.ParseTimeRange(s)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", w.ID, err)
		}
		w.PreferredTimeSlots = append(w.PreferredTimeSlots, r)
	}
	return &w, nil
}

func encodeWindows(ranges []booking.TimeRange) []string {
	out := make([]string, len(ranges))
	for i, r := range ranges {
		out[i] = r.String()
	}
	return out
}

func (r waitlistRepo) GetEntry(ctx context.Context, id uuid.UUID) (*booking.WaitlistEntry, error) {
	row := r.tx.QueryRow(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE id = $1
		FOR UPDATE
	`, id)
	w, err := scanEntry(row)
	if errors.Is(err, booking.ErrWaitlistEntryNotFound) {
		return nil, booking.ErrWaitlistEntryNotFound.Withf("waitlist entry %s not found", id)
	}
	return w, err
}

func (r waitlistRepo) InsertEntry(ctx context.Context, w *booking.WaitlistEntry) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO waitlist_entries (`+waitlistColumns+`)
		VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			COALESCE($15, now()), COALESCE($16, now()))
	`, w.ID, w.PatientID, w.ProviderID, w.AppointmentTypeID, w.PreferredDate, encodeWindows(w.PreferredTimeSlots),
		w.Status, w.Priority, w.Notes, w.OfferedSlotID, w.OfferedAt, w.OfferExpiresAt, w.OfferCount,
		w.AcceptedAppointmentID, nullableTime(w.CreatedAt), nullableTime(w.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return booking.ErrDuplicateEntry.Withf("patient %s already has an active entry for %s",
				w.PatientID, w.PreferredDate.Format(time.DateOnly))
		}
		return fmt.Errorf("insert waitlist entry: %w", err)
	}
	return nil
}

func (r waitlistRepo) UpdateEntry(ctx context.Context, w *booking.WaitlistEntry) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE waitlist_entries
		SET status = $2,
		    priority = $3,
		    notes = $4,
		    offered_slot_id = $5,
		    offered_at = $6,
		    offer_expires_at = $7,
		    offer_count = $8,
		    accepted_appointment_id = $9,
		    updated_at = $10
		WHERE id = $1
	`, w.ID, w.Status, w.Priority, w.Notes, w.OfferedSlotID, w.OfferedAt, w.OfferExpiresAt,
		w.OfferCount, w.AcceptedAppointmentID, w.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return booking.ErrDuplicateEntry.Withf("patient %s already has an active entry", w.PatientID)
		}
		return fmt.Errorf("update waitlist entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrWaitlistEntryNotFound.Withf("waitlist entry %s not found", w.ID)
	}
	return nil
}

func (r waitlistRepo) FindActive(ctx context.Context, patientID, providerID uuid.UUID, preferredDate time.Time) (*booking.WaitlistEntry, error) {
	row := r.tx.QueryRow(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE patient_id = $1
		  AND provider_id = $2
		  AND preferred_date = $3::date
		  AND status IN ('waiting', 'offered')
		FOR UPDATE
	`, patientID, providerID, booking.DateOf(preferredDate))
	return scanEntry(row)
}

func (r waitlistRepo) ListWaiting(ctx context.Context, providerID uuid.UUID, onOrBefore time.Time) ([]booking.WaitlistEntry, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE provider_id = $1
		  AND status = 'waiting'
		  AND preferred_date <= $2::date
		ORDER BY priority DESC, created_at, seq
		FOR UPDATE
	`, providerID, booking.DateOf(onOrBefore))
	if err != nil {
		return nil, err
	}
	return collect(rows, scanEntry)
}

func (r waitlistRepo) ListOfferedForSlot(ctx context.Context, slotID uuid.UUID) ([]booking.WaitlistEntry, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE offered_slot_id = $1
		  AND status = 'offered'
		ORDER BY created_at, seq
		FOR UPDATE
	`, slotID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanEntry)
}

func (r waitlistRepo) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]booking.WaitlistEntry, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE provider_id = $1
		ORDER BY created_at, seq
	`, providerID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanEntry)
}

func (r waitlistRepo) ListExpiredOffers(ctx context.Context, now time.Time) ([]booking.WaitlistEntry, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE status = 'offered'
		  AND offer_expires_at IS NOT NULL
		  AND offer_expires_at < $1
		ORDER BY offer_expires_at
		FOR UPDATE SKIP LOCKED
	`, now)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanEntry)
}
