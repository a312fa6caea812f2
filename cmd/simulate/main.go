package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-booking-engine/internal/logging"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	Providers     int
	Patients      int
	Days          int
	BookingRatio  float64
	CancelRatio   float64
	WaitlistRatio float64
	ReadRatio     float64
}

// DataPool is the simulator's view of what exists on the server.
type DataPool struct {
	Patients  []uuid.UUID
	Providers []uuid.UUID

	mu           sync.RWMutex
	slots        []slotRef
	appointments []uuid.UUID
	entries      []uuid.UUID
}

type slotRef struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	Start      time.Time
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) AddEntry(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.entries = append(dp.entries, id)
}

// pick returns a random element of *items, read under the pool lock.
func pick[T any](dp *DataPool, rng *rand.Rand, items *[]T) (T, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	var zero T
	if len(*items) == 0 {
		return zero, false
	}
	return (*items)[rng.Intn(len(*items))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case err == nil && (status == http.StatusConflict || status == http.StatusGone || status == http.StatusBadRequest):
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[len(latencies)*95/100]
	return avg, min, max, p50, p95
}

type Metrics struct {
	Booking  OperationMetrics
	Cancel   OperationMetrics
	Waitlist OperationMetrics
	Accept   OperationMetrics
	Read     OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  zerolog.Logger
}

func main() {
	logger := logging.New(getEnv("APP_ENV", "dev"), getEnv("LOG_LEVEL", "info")).With().Str("service", "simulate").Logger()

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("waitlist", cfg.WaitlistRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	sim := &Simulator{
		config: cfg,
		pool:   &DataPool{},
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sim.Setup(ctx); err != nil {
		logger.Fatal().Err(err).Msg("setup failed")
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		Providers:     getInt("SIM_PROVIDERS", 5),
		Patients:      getInt("SIM_PATIENTS", 500),
		Days:          getInt("SIM_DAYS", 5),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.4),
		CancelRatio:   getFloat("SIM_CANCEL_RATIO", 0.1),
		WaitlistRatio: getFloat("SIM_WAITLIST_RATIO", 0.2),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.3),
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.CancelRatio + cfg.WaitlistRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.WaitlistRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Providers <= 0 || cfg.Patients <= 0 || cfg.Days <= 0 {
		return fmt.Errorf("SIM_PROVIDERS, SIM_PATIENTS and SIM_DAYS must be > 0")
	}
	return nil
}

// Setup generates a working week for each provider through the bulk slot
// endpoint, starting tomorrow.
func (s *Simulator) Setup(ctx context.Context) error {
	for i := 0; i < s.config.Patients; i++ {
		s.pool.Patients = append(s.pool.Patients, uuid.New())
	}

	from := time.Now().UTC().AddDate(0, 0, 1)
	to := from.AddDate(0, 0, s.config.Days-1)
	hours := map[string]any{}
	for _, day := range []string{"monday", "tuesday", "wednesday", "thursday", "friday"} {
		hours[day] = map[string]string{"morning": "09:00-12:00", "afternoon": "13:00-17:00"}
	}

	for i := 0; i < s.config.Providers; i++ {
		provider := uuid.New()
		s.pool.Providers = append(s.pool.Providers, provider)

		var slots []struct {
			ID         uuid.UUID `json:"id"`
			ProviderID uuid.UUID `json:"provider_id"`
			StartTime  time.Time `json:"start_time"`
		}
		status, err := s.call(ctx, http.MethodPost, "/slots/bulk", map[string]any{
			"provider_id":           provider,
			"from_date":             from.Format(time.DateOnly),
			"to_date":               to.Format(time.DateOnly),
			"working_hours":         hours,
			"slot_duration_minutes": 30,
			"max_bookings":          1,
		}, &slots)
		if err != nil {
			return fmt.Errorf("create slots: %w", err)
		}
		if status != http.StatusCreated {
			return fmt.Errorf("create slots: unexpected status %d", status)
		}
		for _, sl := range slots {
			s.pool.slots = append(s.pool.slots, slotRef{ID: sl.ID, ProviderID: sl.ProviderID, Start: sl.StartTime})
		}
	}
	if len(s.pool.slots) == 0 {
		return fmt.Errorf("no slots generated; widen SIM_DAYS to cover a weekday")
	}

	s.logger.Info().Int("providers", len(s.pool.Providers)).Int("slots", len(s.pool.slots)).Msg("schedule generated")
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			case r < s.config.BookingRatio+s.config.CancelRatio+s.config.WaitlistRatio:
				if rng.Intn(2) == 0 {
					s.doJoinWaitlist(ctx, rng)
				} else {
					s.doAcceptOffer(ctx, rng)
				}
			default:
				s.doRead(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	slot, ok := pick(s.pool, rng, &s.pool.slots)
	if !ok {
		return
	}
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	var appt struct {
		ID uuid.UUID `json:"id"`
	}
	start := time.Now()
	status, err := s.call(ctx, http.MethodPost, "/appointments", map[string]string{
		"slot_id":    slot.ID.String(),
		"patient_id": patient.String(),
	}, &appt)
	s.metrics.Booking.Record(time.Since(start), status, err)
	if err == nil && status == http.StatusCreated && appt.ID != uuid.Nil {
		s.pool.AddAppointment(appt.ID)
	}
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	id, ok := pick(s.pool, rng, &s.pool.appointments)
	if !ok {
		return
	}
	start := time.Now()
	status, err := s.call(ctx, http.MethodPost, "/appointments/"+id.String()+"/cancel",
		map[string]string{"reason": "simulated cancellation"}, nil)
	s.metrics.Cancel.Record(time.Since(start), status, err)
}

func (s *Simulator) doJoinWaitlist(ctx context.Context, rng *rand.Rand) {
	slot, ok := pick(s.pool, rng, &s.pool.slots)
	if !ok {
		return
	}
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	var entry struct {
		ID uuid.UUID `json:"id"`
	}
	start := time.Now()
	status, err := s.call(ctx, http.MethodPost, "/waitlist", map[string]any{
		"patient_id":     patient,
		"provider_id":    slot.ProviderID,
		"preferred_date": slot.Start.Format(time.DateOnly),
		"priority":       rng.Intn(3),
	}, &entry)
	s.metrics.Waitlist.Record(time.Since(start), status, err)
	if err == nil && status == http.StatusCreated && entry.ID != uuid.Nil {
		s.pool.AddEntry(entry.ID)
	}
}

func (s *Simulator) doAcceptOffer(ctx context.Context, rng *rand.Rand) {
	id, ok := pick(s.pool, rng, &s.pool.entries)
	if !ok {
		return
	}
	var out struct {
		Appointment struct {
			ID uuid.UUID `json:"id"`
		} `json:"appointment"`
	}
	start := time.Now()
	status, err := s.call(ctx, http.MethodPost, "/waitlist/"+id.String()+"/accept", nil, &out)
	s.metrics.Accept.Record(time.Since(start), status, err)
	if err == nil && status == http.StatusCreated {
		s.pool.AddAppointment(out.Appointment.ID)
	}
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	var path string
	switch rng.Intn(3) {
	case 0:
		id, ok := pick(s.pool, rng, &s.pool.appointments)
		if !ok {
			return
		}
		path = "/appointments/" + id.String()
	case 1:
		patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
		path = fmt.Sprintf("/appointments?patient_id=%s&limit=20&offset=0", patient)
	default:
		provider := s.pool.Providers[rng.Intn(len(s.pool.Providers))]
		path = "/waitlist?provider_id=" + provider.String()
	}
	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, path, nil, nil)
	s.metrics.Read.Record(time.Since(start), status, err)
}

// call sends body as JSON and decodes a 2xx response into out when given.
func (s *Simulator) call(ctx context.Context, method, path string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, rd)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
		return resp.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Join waitlist", &s.metrics.Waitlist)
	printOperationReport("Accept offer", &s.metrics.Accept)
	printOperationReport("Reads", &s.metrics.Read)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
