package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-booking-engine/internal/app"
	"github.com/hackgods/appointment-booking-engine/internal/booking"
	"github.com/hackgods/appointment-booking-engine/internal/config"
	"github.com/hackgods/appointment-booking-engine/internal/logging"
)

var appointmentTypes = []string{
	"consultation",
	"follow-up",
	"vaccination",
	"lab-review",
	"telehealth",
}

var visitReasons = []string{
	"annual check-up",
	"persistent cough",
	"back pain",
	"medication review",
	"skin rash",
	"blood pressure follow-up",
}

type seedConfig struct {
	Providers   int
	Patients    int
	Days        int
	BookingRate float64
	Waitlisters int
}

func main() {
	cfg, err := config.Load()
	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "seed").Logger()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}
	if !cfg.UsesPostgres() {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	sc := seedConfig{
		Providers:   getInt("SEED_PROVIDERS", 20),
		Patients:    getInt("SEED_PATIENTS", 2000),
		Days:        getInt("SEED_DAYS", 14),
		BookingRate: 0.4,
		Waitlisters: getInt("SEED_WAITLISTERS", 200),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	gofakeit.Seed(0)

	patients := make([]uuid.UUID, sc.Patients)
	for i := range patients {
		patients[i] = uuid.New()
	}

	slots, err := seedSlots(ctx, a.Service, sc, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed slots")
	}
	if err := seedAppointments(ctx, a.Service, slots, patients, sc.BookingRate, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed appointments")
	}
	if err := seedWaitlist(ctx, a.Service, slots, patients, sc.Waitlisters, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed waitlist")
	}

	logger.Info().Msg("seed complete")
}

func seedSlots(ctx context.Context, svc *booking.Service, sc seedConfig, logger zerolog.Logger) ([]booking.Slot, error) {
	logger.Info().Int("providers", sc.Providers).Int("days", sc.Days).Msg("seeding slots")

	from := booking.DateOf(time.Now()).AddDate(0, 0, 1)
	to := from.AddDate(0, 0, sc.Days-1)

	var all []booking.Slot
	for i := 0; i < sc.Providers; i++ {
		morning := booking.TimeRange{StartMinute: gofakeit.Number(8, 9) * 60, EndMinute: 12 * 60}
		afternoon := booking.TimeRange{StartMinute: 13 * 60, EndMinute: gofakeit.Number(16, 18) * 60}
		hours := map[time.Weekday]booking.WorkingDay{}
		for wd := time.Monday; wd <= time.Friday; wd++ {
			hours[wd] = booking.WorkingDay{Morning: &morning, Afternoon: &afternoon}
		}
		if gofakeit.Bool() {
			hours[time.Saturday] = booking.WorkingDay{Morning: &morning}
		}

		var allowed []string
		if gofakeit.Number(0, 3) == 0 {
			allowed = []string{appointmentTypes[gofakeit.Number(0, len(appointmentTypes)-1)]}
		}

		slots, err := svc.CreateSlots(ctx, booking.BulkSlotRequest{
			ProviderID:              uuid.New(),
			FromDate:                from,
			ToDate:                  to,
			WorkingHours:            hours,
			SlotDuration:            time.Duration(gofakeit.RandomInt([]int{15, 20, 30})) * time.Minute,
			BreakMinutes:            gofakeit.RandomInt([]int{0, 5, 10}),
			MaxBookings:             gofakeit.Number(1, 2),
			AllowedAppointmentTypes: allowed,
			LocationID:              gofakeit.City(),
			RoomNumber:              gofakeit.Numerify("R-###"),
		})
		if err != nil {
			return nil, err
		}
		all = append(all, slots...)
	}

	logger.Info().Int("slots", len(all)).Msg("slots seeded")
	return all, nil
}

// seedAppointments books a share of the slots. Conflicts from random
// patient picks are expected and skipped.
func seedAppointments(ctx context.Context, svc *booking.Service, slots []booking.Slot, patients []uuid.UUID, rate float64, logger zerolog.Logger) error {
	booked, skipped := 0, 0
	for _, sl := range slots {
		if gofakeit.Float64Range(0, 1) >= rate {
			continue
		}
		apptType := ""
		if len(sl.AllowedAppointmentTypes) > 0 {
			apptType = sl.AllowedAppointmentTypes[0]
		}
		_, err := svc.CreateAppointment(ctx, booking.CreateAppointmentRequest{
			PatientID:         patients[gofakeit.Number(0, len(patients)-1)],
			SlotID:            sl.ID,
			AppointmentTypeID: apptType,
			Reason:            gofakeit.RandomString(visitReasons),
			Paid:              gofakeit.Bool(),
		})
		switch {
		case err == nil:
			booked++
		case booking.KindOf(err) == booking.KindConflict:
			skipped++
		default:
			return err
		}
		if booked > 0 && booked%500 == 0 {
			logger.Info().Int("booked", booked).Msg("appointments seeded")
		}
	}
	logger.Info().Int("booked", booked).Int("skipped", skipped).Msg("appointments seeded")
	return nil
}

func seedWaitlist(ctx context.Context, svc *booking.Service, slots []booking.Slot, patients []uuid.UUID, count int, logger zerolog.Logger) error {
	if len(slots) == 0 {
		return nil
	}
	joined := 0
	for i := 0; i < count; i++ {
		sl := slots[gofakeit.Number(0, len(slots)-1)]
		req := booking.JoinWaitlistRequest{
			PatientID:     patients[gofakeit.Number(0, len(patients)-1)],
			ProviderID:    sl.ProviderID,
			PreferredDate: sl.StartTime,
			Priority:      gofakeit.Number(0, 5),
			Notes:         gofakeit.Phrase(),
		}
		if gofakeit.Bool() {
			req.PreferredTimeSlots = []booking.TimeRange{{StartMinute: 8 * 60, EndMinute: 12 * 60}}
		}
		_, err := svc.JoinWaitlist(ctx, req)
		if errors.Is(err, booking.ErrDuplicateEntry) {
			continue
		}
		if err != nil {
			return err
		}
		joined++
	}
	logger.Info().Int("joined", joined).Msg("waitlist seeded")
	return nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
