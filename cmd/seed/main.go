package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logger"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

var insurancePlans = []string{
	"Unimed Basic",
	"Unimed Premium",
	"Bradesco Saude",
	"SulAmerica",
	"Amil 400",
	"Private",
}

// Working patterns physicians are drawn from.
var availabilityPatterns = []map[string][]string{
	{
		"monday": {"08:00-12:00", "14:00-18:00"}, "tuesday": {"08:00-12:00", "14:00-18:00"},
		"wednesday": {"08:00-12:00", "14:00-18:00"}, "thursday": {"08:00-12:00", "14:00-18:00"},
		"friday": {"08:00-12:00"},
	},
	{
		"monday": {"13:00-19:00"}, "wednesday": {"13:00-19:00"}, "friday": {"13:00-19:00"},
	},
	{
		"tuesday": {"07:30-11:30"}, "thursday": {"07:30-11:30"}, "saturday": {"08:00-12:00"},
	},
	{
		"monday": {"09:00-17:00"}, "tuesday": {"09:00-17:00"}, "wednesday": {"09:00-17:00"},
		"thursday": {"09:00-17:00"}, "friday": {"09:00-17:00"},
	},
}

func main() {
	_ = godotenv.Load()

	log, err := logger.New(getEnv("LOG_LEVEL", "info"), getEnv("LOG_FORMAT", "console"))
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{})
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal("apply schema", zap.Error(err))
	}

	svc := appointment.NewService(appointment.NewPgRepository(pool), redisclient.NewLocalLocker())
	faker := gofakeit.New(0)

	if err := seedPhysicians(ctx, log, svc, faker, getInt("SEED_PHYSICIANS", 40)); err != nil {
		log.Fatal("seed physicians", zap.Error(err))
	}
	if err := seedPatients(ctx, log, svc, faker, getInt("SEED_PATIENTS", 2000)); err != nil {
		log.Fatal("seed patients", zap.Error(err))
	}

	log.Info("seed complete")
}

func seedPhysicians(ctx context.Context, log *zap.Logger, svc *appointment.Service, faker *gofakeit.Faker, count int) error {
	log.Info("seeding physicians", zap.Int("count", count))

	created := 0
	for created < count {
		rules, err := appointment.NewRuleSet(availabilityPatterns[faker.Number(0, len(availabilityPatterns)-1)])
		if err != nil {
			return err
		}

		_, err = svc.RegisterPhysician(ctx, appointment.NewPhysician{
			Name:         faker.Name(),
			NationalID:   faker.Numerify("###.###.###-##"),
			Phone:        faker.Phone(),
			License:      faker.Numerify("CRM-######"),
			Specialty:    faker.RandomString(specialties),
			Availability: rules,
		})
		if errors.Is(err, appointment.ErrDuplicateIdentifier) {
			continue
		}
		if err != nil {
			return err
		}
		created++
	}

	log.Info("physicians seeded", zap.Int("count", created))
	return nil
}

func seedPatients(ctx context.Context, log *zap.Logger, svc *appointment.Service, faker *gofakeit.Faker, count int) error {
	log.Info("seeding patients", zap.Int("count", count))

	const reportEvery = 500

	created := 0
	for created < count {
		_, err := svc.RegisterPatient(ctx, appointment.NewPatient{
			Name:          faker.Name(),
			NationalID:    faker.Numerify("###.###.###-##"),
			Phone:         faker.Phone(),
			InsurancePlan: faker.RandomString(insurancePlans),
		})
		if errors.Is(err, appointment.ErrDuplicateIdentifier) {
			continue
		}
		if err != nil {
			return err
		}
		created++

		if created%reportEvery == 0 {
			log.Info("patients seeded", zap.Int("done", created), zap.Int("total", count))
		}
	}

	log.Info("patients seeded", zap.Int("count", created))
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}
