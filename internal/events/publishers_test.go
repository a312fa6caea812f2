package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/appointment-booking-engine/internal/booking"
	"github.com/hackgods/appointment-booking-engine/internal/events/eventstest"
	"github.com/hackgods/appointment-booking-engine/internal/store/pgstore"
)

type failingPublisher struct{ err error }

func (f failingPublisher) PublishEvent(context.Context, booking.Event) error { return f.err }
func (f failingPublisher) PublishJob(context.Context, booking.Job) error     { return f.err }

type fakeLogWriter struct{ rows []pgstore.EventLog }

func (w *fakeLogWriter) InsertEvent(_ context.Context, ev pgstore.EventLog) error {
	w.rows = append(w.rows, ev)
	return nil
}

func TestFanout_DeliversToAllAndJoinsErrors(t *testing.T) {
	rec := &eventstest.Recorder{}
	boom := errors.New("broker down")
	fan := Fanout{failingPublisher{boom}, rec}

	ev := booking.Event{Type: booking.EventAppointmentCreated, PatientID: uuid.New()}
	err := fan.PublishEvent(context.Background(), ev)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []booking.EventType{booking.EventAppointmentCreated}, rec.EventTypes())

	err = fan.PublishJob(context.Background(), booking.Job{Kind: booking.JobReminder})
	require.ErrorIs(t, err, boom)
	require.Len(t, rec.Jobs(), 1)
}

func TestEventLogPublisher_WritesAuditRow(t *testing.T) {
	w := &fakeLogWriter{}
	pub := NewEventLogPublisher(w)

	apptID := uuid.New()
	emitted := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
	ev := booking.Event{
		Type:          booking.EventAppointmentCancelled,
		AppointmentID: &apptID,
		PatientID:     uuid.New(),
		EmittedAt:     emitted,
		Data:          map[string]any{"reason": "sick"},
	}
	require.NoError(t, pub.PublishEvent(context.Background(), ev))
	require.NoError(t, pub.PublishJob(context.Background(), booking.Job{Kind: booking.JobRefund}))

	require.Len(t, w.rows, 1)
	row := w.rows[0]
	assert.Equal(t, "appointment.cancelled", row.EventType)
	assert.Equal(t, &apptID, row.AppointmentID)
	assert.Equal(t, emitted, row.CreatedAt)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(row.Payload, &payload))
	assert.Equal(t, "sick", payload["data"].(map[string]any)["reason"])
}

func TestJobRoutingKey(t *testing.T) {
	assert.Equal(t, "job.booking.reminder", jobRoutingKey(booking.JobReminder))
	assert.Equal(t, "job.waitlist.offer_notice", jobRoutingKey(booking.JobOfferNotice))
}
