// Package events holds the booking.Publisher implementations: a log sink,
// the Postgres audit table, an AMQP exchange and a fan-out over several of
// them.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-booking-engine/internal/booking"
	"github.com/hackgods/appointment-booking-engine/internal/store/pgstore"
)

// LogPublisher writes every event and job to the logger.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "events").Logger()}
}

func (p *LogPublisher) PublishEvent(_ context.Context, ev booking.Event) error {
	e := p.logger.Info().
		Str("event", string(ev.Type)).
		Str("patient_id", ev.PatientID.String()).
		Str("provider_id", ev.ProviderID.String()).
		Time("emitted_at", ev.EmittedAt)
	if ev.AppointmentID != nil {
		e = e.Str("appointment_id", ev.AppointmentID.String())
	}
	if ev.WaitlistEntryID != nil {
		e = e.Str("waitlist_entry_id", ev.WaitlistEntryID.String())
	}
	if ev.SlotID != nil {
		e = e.Str("slot_id", ev.SlotID.String())
	}
	e.Msg("domain event")
	return nil
}

func (p *LogPublisher) PublishJob(_ context.Context, job booking.Job) error {
	p.logger.Info().
		Str("job", string(job.Kind)).
		Str("patient_id", job.PatientID.String()).
		Time("run_at", job.RunAt).
		Msg("job scheduled")
	return nil
}

// EventLogWriter is the audit table sink; *pgstore.Store implements it.
type EventLogWriter interface {
	InsertEvent(ctx context.Context, ev pgstore.EventLog) error
}

// EventLogPublisher records events in the event_logs table. Jobs are not
// audited.
type EventLogPublisher struct {
	writer EventLogWriter
}

func NewEventLogPublisher(writer EventLogWriter) *EventLogPublisher {
	return &EventLogPublisher{writer: writer}
}

func (p *EventLogPublisher) PublishEvent(ctx context.Context, ev booking.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	return p.writer.InsertEvent(ctx, pgstore.EventLog{
		EventType:       string(ev.Type),
		AppointmentID:   ev.AppointmentID,
		WaitlistEntryID: ev.WaitlistEntryID,
		Payload:         payload,
		CreatedAt:       ev.EmittedAt,
	})
}

func (p *EventLogPublisher) PublishJob(context.Context, booking.Job) error { return nil }

// Fanout delivers to every publisher and joins their errors.
type Fanout []booking.Publisher

func (f Fanout) PublishEvent(ctx context.Context, ev booking.Event) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) PublishJob(ctx context.Context, job booking.Job) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishJob(ctx, job); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
