package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logger"
)

type SimConfig struct {
	APIBaseURL     string
	Duration       time.Duration
	Workers        int
	BookingRatio   float64
	CancelRatio    float64
	ReadRatio      float64
	PatientLimit   int
	HorizonDays    int
	PostgresDSN    string
	VerifyOverlaps bool
}

type DataPool struct {
	Patients   []uuid.UUID
	Physicians []appointment.Physician

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(f *gofakeit.Faker) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[f.Number(0, len(dp.appointments)-1)], true
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	log     *zap.Logger
	metrics Metrics
	// first day bookings may land on
	firstDay time.Time
}

var durations = []int{15, 20, 30, 45, 60}

func main() {
	_ = godotenv.Load()

	log, err := logger.New(getEnv("LOG_LEVEL", "info"), getEnv("LOG_FORMAT", "console"))
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	log.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("cancel", cfg.CancelRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, appointment.NewPgRepository(pgPool), cfg)
	if err != nil {
		log.Fatal("load data pool", zap.Error(err))
	}

	log.Info("data pool loaded",
		zap.Int("patients", len(dataPool.Patients)),
		zap.Int("physicians", len(dataPool.Physicians)),
	)

	now := time.Now()
	sim := &Simulator{
		config:   cfg,
		pool:     dataPool,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
		firstDay: time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC),
	}

	sim.Run()

	overlaps := -1
	if cfg.VerifyOverlaps {
		verifyCtx, cancelVerify := context.WithTimeout(context.Background(), 30*time.Second)
		overlaps, err = countOverlaps(verifyCtx, pgPool)
		cancelVerify()
		if err != nil {
			log.Error("overlap check failed", zap.Error(err))
			overlaps = -1
		}
	}

	sim.PrintReport(overlaps)
	if overlaps > 0 {
		os.Exit(2)
	}
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:     getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:       getDuration("SIM_DURATION", 30*time.Second),
		Workers:        getInt("SIM_WORKERS", 10),
		BookingRatio:   getFloat("SIM_BOOKING_RATIO", 0.5),
		CancelRatio:    getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:      getFloat("SIM_READ_RATIO", 0.4),
		PatientLimit:   getInt("SIM_PATIENT_LIMIT", 4000),
		HorizonDays:    getInt("SIM_HORIZON_DAYS", 14),
		PostgresDSN:    os.Getenv("POSTGRES_DSN"),
		VerifyOverlaps: getEnv("SIM_VERIFY_OVERLAPS", "true") == "true",
	}

	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return errors.New("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return errors.New("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return errors.New("SIM_DURATION must be > 0")
	}
	if cfg.HorizonDays <= 0 {
		return errors.New("SIM_HORIZON_DAYS must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, repo *appointment.PgRepository, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	patients, err := repo.ListPatients(ctx)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for i, p := range patients {
		if i >= cfg.PatientLimit {
			break
		}
		dataPool.Patients = append(dataPool.Patients, p.ID)
	}

	physicians, err := repo.ListPhysicians(ctx)
	if err != nil {
		return nil, fmt.Errorf("load physicians: %w", err)
	}
	for _, p := range physicians {
		if len(p.Availability) > 0 {
			dataPool.Physicians = append(dataPool.Physicians, p)
		}
	}

	if len(dataPool.Patients) == 0 {
		return nil, errors.New("no patients loaded, run cmd/seed first")
	}
	if len(dataPool.Physicians) == 0 {
		return nil, errors.New("no physicians with working hours loaded, run cmd/seed first")
	}

	return dataPool, nil
}

// countOverlaps returns the number of overlapping pairs of active appointments
// sharing a physician. Anything but zero means a double booking got through.
func countOverlaps(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.physician_id = b.physician_id
		 AND a.id < b.id
		WHERE a.status <> 'cancelled'
		  AND b.status <> 'cancelled'
		  AND a.start_time < b.end_time
		  AND b.start_time < a.end_time
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count overlapping appointments: %w", err)
	}
	return n, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info("starting simulation", zap.Duration("duration", s.config.Duration), zap.Int("workers", s.config.Workers))

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	f := gofakeit.New(uint64(time.Now().UnixNano()) + uint64(workerID))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := f.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, f)
			case r < s.config.BookingRatio+s.config.CancelRatio:
				s.doCancel(ctx, f)
			default:
				switch f.Number(0, 3) {
				case 0:
					s.doReadByID(ctx, f)
				case 1:
					s.doListByPatient(ctx, f)
				case 2:
					s.doAgenda(ctx, f)
				case 3:
					s.doFreeSlots(ctx, f)
				}
			}
		}
	}
}

// pickStart draws a start on a working day of the physician inside one of its
// intervals, on a quarter hour. Long durations can still overrun the interval
// and come back as rule violations.
func (s *Simulator) pickStart(f *gofakeit.Faker, p appointment.Physician) (time.Time, bool) {
	for attempt := 0; attempt < s.config.HorizonDays; attempt++ {
		day := s.firstDay.AddDate(0, 0, f.Number(0, s.config.HorizonDays-1))
		intervals := p.Availability.Intervals(appointment.WeekdayOf(day))
		if len(intervals) == 0 {
			continue
		}
		iv := intervals[f.Number(0, len(intervals)-1)]
		quarters := int((iv.End - iv.Start) / (15 * time.Minute))
		if quarters == 0 {
			continue
		}
		offset := iv.Start + time.Duration(f.Number(0, quarters-1))*15*time.Minute
		return day.Add(offset), true
	}
	return time.Time{}, false
}

func (s *Simulator) randomPhysician(f *gofakeit.Faker) appointment.Physician {
	return s.pool.Physicians[f.Number(0, len(s.pool.Physicians)-1)]
}

func (s *Simulator) randomDay(f *gofakeit.Faker) string {
	return s.firstDay.AddDate(0, 0, f.Number(0, s.config.HorizonDays-1)).Format(api.DateLayout)
}

func (s *Simulator) doBooking(ctx context.Context, f *gofakeit.Faker) {
	physician := s.randomPhysician(f)
	start, ok := s.pickStart(f, physician)
	if !ok {
		return
	}
	patientID := s.pool.Patients[f.Number(0, len(s.pool.Patients)-1)]

	body, _ := json.Marshal(api.BookAppointmentRequest{
		PatientID:       patientID.String(),
		PhysicianID:     physician.ID.String(),
		Start:           start.Format(api.WallClockLayout),
		DurationMinutes: durations[f.Number(0, len(durations)-1)],
	})

	began := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(began)

	success, rejected := false, false
	if err == nil {
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var appt api.AppointmentResponse
			if data, err := io.ReadAll(resp.Body); err == nil && json.Unmarshal(data, &appt) == nil && appt.ID != uuid.Nil {
				s.pool.AddAppointment(appt.ID)
			}
		case http.StatusConflict, http.StatusUnprocessableEntity:
			rejected = true
		}
	} else if ctx.Err() != nil {
		return
	}

	s.metrics.Booking.Record(latency, success, rejected)
}

func (s *Simulator) doCancel(ctx context.Context, f *gofakeit.Faker) {
	apptID, ok := s.pool.RandomAppointment(f)
	if !ok {
		return
	}
	success, rejected, latency, done := s.send(ctx, http.MethodPost,
		fmt.Sprintf("%s/appointments/%s/cancel", s.config.APIBaseURL, apptID))
	if done {
		s.metrics.Cancel.Record(latency, success, rejected)
	}
}

func (s *Simulator) doReadByID(ctx context.Context, f *gofakeit.Faker) {
	apptID, ok := s.pool.RandomAppointment(f)
	if !ok {
		return
	}
	success, _, latency, done := s.send(ctx, http.MethodGet,
		fmt.Sprintf("%s/appointments/%s", s.config.APIBaseURL, apptID))
	if done {
		s.metrics.ReadByID.Record(latency, success, false)
	}
}

func (s *Simulator) doListByPatient(ctx context.Context, f *gofakeit.Faker) {
	patientID := s.pool.Patients[f.Number(0, len(s.pool.Patients)-1)]
	success, _, latency, done := s.send(ctx, http.MethodGet,
		fmt.Sprintf("%s/patients/%s/appointments", s.config.APIBaseURL, patientID))
	if done {
		s.metrics.ListByPatient.Record(latency, success, false)
	}
}

func (s *Simulator) doAgenda(ctx context.Context, f *gofakeit.Faker) {
	physician := s.randomPhysician(f)
	success, _, latency, done := s.send(ctx, http.MethodGet,
		fmt.Sprintf("%s/physicians/%s/appointments?date=%s", s.config.APIBaseURL, physician.ID, s.randomDay(f)))
	if done {
		s.metrics.Agenda.Record(latency, success, false)
	}
}

func (s *Simulator) doFreeSlots(ctx context.Context, f *gofakeit.Faker) {
	physician := s.randomPhysician(f)
	success, _, latency, done := s.send(ctx, http.MethodGet,
		fmt.Sprintf("%s/physicians/%s/free-slots?date=%s&duration=%d",
			s.config.APIBaseURL, physician.ID, s.randomDay(f), durations[f.Number(0, len(durations)-1)]))
	if done {
		s.metrics.FreeSlots.Record(latency, success, false)
	}
}

// send issues a bodiless request. done is false when the run ended mid-flight
// and the sample should be dropped.
func (s *Simulator) send(ctx context.Context, method, url string) (success, rejected bool, latency time.Duration, done bool) {
	began := time.Now()
	req, _ := http.NewRequestWithContext(ctx, method, url, nil)

	resp, err := s.client.Do(req)
	latency = time.Since(began)
	if err != nil {
		return false, false, latency, ctx.Err() == nil
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusConflict, latency, true
}

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
