package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-availability/internal/app"
	"github.com/hackgods/doctor-availability/internal/appointment"
	"github.com/hackgods/doctor-availability/internal/config"
	"github.com/hackgods/doctor-availability/internal/doctor"
	"github.com/hackgods/doctor-availability/internal/logging"
)

const (
	doctorCount      = 100
	patientCount     = 9000
	appointmentCount = 2000
)

var specialities = []string{
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

var dayOffs = []doctor.DayOff{
	doctor.DayOffNone,
	doctor.Monday,
	doctor.Tuesday,
	doctor.Wednesday,
	doctor.Thursday,
	doctor.Friday,
	doctor.Saturday,
	doctor.Sunday,
}

var cancelReasons = []string{
	"patient requested a new date",
	"doctor called away",
	"patient feeling better",
	"duplicate booking",
}

var summaries = []string{
	"Routine check, no follow-up needed.",
	"Prescribed rest and fluids, review in two weeks.",
	"Referred for blood work.",
	"Adjusted medication dosage.",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("seed", "dev", "info")
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New("seed", cfg.Env, cfg.LogLevel)

	if cfg.StoreDriver != config.StorePostgres {
		logger.Fatal().Str("store", cfg.StoreDriver).Msg("seed needs the postgres store")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	doctorIDs, err := seedDoctors(ctx, a.PgPool, logger, doctorCount)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	patientIDs, err := seedPatients(ctx, a.PgPool, logger, patientCount)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	// derive today's availability before booking against it
	report, err := a.Reconciler.ReconcileNow(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("initial availability pass")
	}
	logger.Info().Int("turned_off", report.Stats.TurnedOff).Msg("initial availability pass done")

	seedAppointments(ctx, a.Appointments, logger, doctorIDs, patientIDs, appointmentCount)

	logger.Info().Msg("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger, count int) ([]uuid.UUID, error) {
	logger.Info().Int("count", count).Msg("seeding doctors")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialities[gofakeit.Number(0, len(specialities)-1)]
		dayOff := dayOffs[gofakeit.Number(0, len(dayOffs)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, email, speciality, day_off, available, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, true, now(), now())
		`, id, name, gofakeit.Email(), spec, string(dayOff))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	logger.Info().Msg("doctors seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger, count int) ([]uuid.UUID, error) {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, first_name, last_name, email, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, gofakeit.FirstName(), gofakeit.LastName(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		logger.Info().Int("seeded", end).Int("total", count).Msg("patients batch committed")
	}

	return ids, nil
}

// seedAppointments books through the ledger so slot locks and event logs
// are exercised, then completes or cancels a share of the bookings.
func seedAppointments(ctx context.Context, svc *appointment.Service, logger zerolog.Logger, doctorIDs, patientIDs []uuid.UUID, count int) {
	logger.Info().Int("count", count).Msg("seeding appointments")

	booked, rejected := 0, 0
	for i := 0; i < count; i++ {
		day := time.Now().AddDate(0, 0, gofakeit.Number(-14, 14))
		slot := appointment.Slot{
			Date: day.Format(appointment.SlotDateLayout),
			Time: fmt.Sprintf("%02d:%02d", gofakeit.Number(8, 17), 15*gofakeit.Number(0, 3)),
		}
		doctorID := doctorIDs[gofakeit.Number(0, len(doctorIDs)-1)]
		patientID := patientIDs[gofakeit.Number(0, len(patientIDs)-1)]

		appt, err := svc.Schedule(ctx, doctorID, patientID, slot)
		if err != nil {
			// unavailable doctors and taken slots are expected
			rejected++
			continue
		}
		booked++

		switch gofakeit.Number(0, 3) {
		case 0:
			if _, err := svc.Cancel(ctx, appt.ID, gofakeit.RandomString(cancelReasons)); err != nil {
				logger.Warn().Err(err).Msg("cancel seeded appointment")
			}
		case 1:
			if _, err := svc.Complete(ctx, appt.ID); err != nil {
				logger.Warn().Err(err).Msg("complete seeded appointment")
				continue
			}
			if _, err := svc.AttachSummary(ctx, appt.ID, gofakeit.RandomString(summaries)); err != nil {
				logger.Warn().Err(err).Msg("attach seeded summary")
			}
		}
	}

	logger.Info().Int("booked", booked).Int("rejected", rejected).Msg("appointments seeded")
}
