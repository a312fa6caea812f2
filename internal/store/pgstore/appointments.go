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

const appointmentColumns = `id, patient_id, provider_id, slot_id, appointment_type_id, start_time, end_time,
	status, reason, notes, paid, checked_in_at, actual_start_at, actual_end_at, cancelled_at, cancelled_by,
	cancellation_reason, reschedule_reason, previous_appointment_id, rescheduled_from, rescheduled_to,
	created_at, updated_at`

type apptRepo struct {
	tx pgx.Tx
}

func scanAppointment(row pgx.Row) (*booking.Appointment, error) {
	var a booking.Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProviderID,
		&a.SlotID,
		&a.AppointmentTypeID,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.Reason,
		&a.Notes,
		&a.Paid,
		&a.CheckedInAt,
		&a.ActualStartAt,
		&a.ActualEndAt,
		&a.CancelledAt,
		&a.CancelledBy,
		&a.CancellationReason,
		&a.RescheduleReason,
		&a.PreviousAppointmentID,
		&a.RescheduledFrom,
		&a.RescheduledTo,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, booking.ErrAppointmentNotFound
		}
		return nil, err
	}

	a.StartTime = a.StartTime.UTC()
	a.EndTime = a.EndTime.UTC()
	return &a, nil
}

func (r apptRepo) GetAppointment(ctx context.Context, id uuid.UUID) (*booking.Appointment, error) {
	row := r.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	a, err := scanAppointment(row)
	if errors.Is(err, booking.ErrAppointmentNotFound) {
		return nil, booking.ErrAppointmentNotFound.Withf("appointment %s not found", id)
	}
	return a, err
}

func (r apptRepo) InsertAppointment(ctx context.Context, a *booking.Appointment) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21,
			COALESCE($22, now()), COALESCE($23, now()))
	`, a.ID, a.PatientID, a.ProviderID, a.SlotID, a.AppointmentTypeID, a.StartTime, a.EndTime,
		a.Status, a.Reason, a.Notes, a.Paid, a.CheckedInAt, a.ActualStartAt, a.ActualEndAt, a.CancelledAt, a.CancelledBy,
		a.CancellationReason, a.RescheduleReason, a.PreviousAppointmentID, a.RescheduledFrom, a.RescheduledTo,
		nullableTime(a.CreatedAt), nullableTime(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r apptRepo) UpdateAppointment(ctx context.Context, a *booking.Appointment) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
		    reason = $3,
		    notes = $4,
		    paid = $5,
		    checked_in_at = $6,
		    actual_start_at = $7,
		    actual_end_at = $8,
		    cancelled_at = $9,
		    cancelled_by = $10,
		    cancellation_reason = $11,
		    reschedule_reason = $12,
		    rescheduled_to = $13,
		    updated_at = $14
		WHERE id = $1
	`, a.ID, a.Status, a.Reason, a.Notes, a.Paid, a.CheckedInAt, a.ActualStartAt, a.ActualEndAt,
		a.CancelledAt, a.CancelledBy, a.CancellationReason, a.RescheduleReason, a.RescheduledTo, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrAppointmentNotFound.Withf("appointment %s not found", a.ID)
	}
	return nil
}

func (r apptRepo) ListPatientAppointmentsBetween(ctx context.Context, patientID uuid.UUID, from, to time.Time, statuses []booking.AppointmentStatus) ([]booking.Appointment, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	rows, err := r.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		  AND start_time < $3
		  AND end_time > $2
		  AND status = ANY($4)
		ORDER BY start_time, id
	`, patientID, from, to, names)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAppointment)
}

func (r apptRepo) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]booking.Appointment, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY start_time DESC, id
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAppointment)
}

func (r apptRepo) ListBySlot(ctx context.Context, slotID uuid.UUID) ([]booking.Appointment, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE slot_id = $1
		ORDER BY created_at, id
	`, slotID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAppointment)
}
