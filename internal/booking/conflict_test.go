package booking_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/appointment-booking-engine/internal/booking"
)

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b [2]int // minutes past 09:00
		want bool
	}{
		{"identical", [2]int{0, 30}, [2]int{0, 30}, true},
		{"partial", [2]int{0, 30}, [2]int{15, 45}, true},
		{"contained", [2]int{0, 60}, [2]int{15, 30}, true},
		{"touching end", [2]int{0, 30}, [2]int{30, 60}, false},
		{"touching start", [2]int{30, 60}, [2]int{0, 30}, false},
		{"disjoint", [2]int{0, 15}, [2]int{45, 60}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			as, ae := at(9, tt.a[0]), at(9, tt.a[1])
			bs, be := at(9, tt.b[0]), at(9, tt.b[1])
			assert.Equal(t, tt.want, booking.Overlaps(as, ae, bs, be))
			assert.Equal(t, tt.want, booking.Overlaps(bs, be, as, ae), "symmetric")
		})
	}
}

func TestCreateAppointment_ConflictStatuses(t *testing.T) {
	tests := []struct {
		name     string
		advance  func(t *testing.T, h *harness, id uuid.UUID)
		conflict bool
	}{
		{"scheduled", func(*testing.T, *harness, uuid.UUID) {}, true},
		{"completed early", func(t *testing.T, h *harness, id uuid.UUID) {
			ctx := context.Background()
			h.clock.Set(at(8, 50))
			_, err := h.svc.CheckIn(ctx, id)
			require.NoError(t, err)
			_, err = h.svc.StartAppointment(ctx, id)
			require.NoError(t, err)
			h.clock.Set(at(9, 10))
			_, err = h.svc.CompleteAppointment(ctx, id)
			require.NoError(t, err)
		}, true},
		{"cancelled", func(t *testing.T, h *harness, id uuid.UUID) {
			_, err := h.svc.CancelAppointment(context.Background(), id, uuid.Nil, "")
			require.NoError(t, err)
		}, false},
		{"no show", func(t *testing.T, h *harness, id uuid.UUID) {
			h.clock.Set(at(10, 0))
			_, err := h.svc.MarkNoShow(context.Background(), id)
			require.NoError(t, err)
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			patient := uuid.New()
			first := h.book(t, patient, h.slot(t, uuid.New(), at(9, 0), 60, 1))
			tt.advance(t, h, first.ID)

			_, err := h.svc.CreateAppointment(context.Background(), booking.CreateAppointmentRequest{
				PatientID: patient,
				SlotID:    h.slot(t, uuid.New(), at(9, 30), 30, 1).ID,
			})
			if tt.conflict {
				assert.ErrorIs(t, err, booking.ErrDoubleBooking)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
