// Package app wires configuration, storage, Redis and the domain services
// into one value shared by the binaries under cmd/.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-availability/internal/appointment"
	"github.com/hackgods/doctor-availability/internal/archive"
	"github.com/hackgods/doctor-availability/internal/availability"
	"github.com/hackgods/doctor-availability/internal/config"
	"github.com/hackgods/doctor-availability/internal/db"
	"github.com/hackgods/doctor-availability/internal/doctor"
	"github.com/hackgods/doctor-availability/internal/memstore"
	"github.com/hackgods/doctor-availability/internal/patient"
	redisclient "github.com/hackgods/doctor-availability/internal/redis"
)

// Repositories are the storage ports behind the services.
type Repositories struct {
	Doctors      doctor.Repository
	Patients     patient.Repository
	Appointments appointment.Repository
}

type App struct {
	Config config.Config
	Logger zerolog.Logger

	// PgPool and Redis are nil when the matching backend is not configured.
	PgPool *pgxpool.Pool
	Redis  *redis.Client

	// Migrated is the number of migrations applied while connecting.
	Migrated int

	Repos        Repositories
	Doctors      *doctor.Service
	Patients     *patient.Service
	Appointments *appointment.Service
	Archive      *archive.Service
	Reconciler   *availability.Reconciler
	Scheduler    *availability.Scheduler
}

// New connects the configured backends and builds the services. The
// scheduler is returned stopped; callers that want the recurring pass call
// Scheduler.Start.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	switch cfg.StoreDriver {
	case config.StorePostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, applied, err := db.ConnectAndMigrate(pgCtx, cfg.PostgresDSN, logger)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.PgPool = pool
		a.Migrated = applied
		a.Repos = Repositories{
			Doctors:      doctor.NewPgRepository(pool, cfg.StoreTimeout),
			Patients:     patient.NewPgRepository(pool, cfg.StoreTimeout),
			Appointments: appointment.NewPgRepository(pool, cfg.StoreTimeout),
		}
		logger.Info().Int("migrations_applied", applied).Msg("connected to postgres")

	case config.StoreMemory:
		store := memstore.New()
		a.Repos = Repositories{
			Doctors:      store.Doctors,
			Patients:     store.Patients,
			Appointments: store.Appointments,
		}
		logger.Warn().Msg("using in-memory store, data is lost on exit")

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	var (
		locker   redisclient.Locker
		notifier availability.Notifier
	)
	if cfg.RedisEnabled() {
		rdb, err := redisclient.NewRedisClient(ctx, redisclient.ClientOptions{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.Redis = rdb
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL)
		notifier = redisclient.NewPublisher(rdb)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")
	} else {
		// single process only: locks do not span replicas
		locker = redisclient.NewLocalLocker()
		logger.Warn().Msg("redis disabled, using in-process locks")
	}

	a.Reconciler = availability.NewReconciler(a.Repos.Doctors, cfg.DayOffLocation, logger)
	a.Scheduler = availability.NewScheduler(a.Reconciler, locker, notifier, availability.SchedulerConfig{
		Interval:  cfg.ReconcileInterval,
		Timeout:   cfg.ReconcileTimeout,
		LockRetry: cfg.LockRetry,
	}, logger)

	a.Doctors = doctor.NewService(a.Repos.Doctors, a.Reconciler, logger)
	a.Patients = patient.NewService(a.Repos.Patients)
	a.Appointments = appointment.NewService(a.Repos.Appointments, a.Repos.Doctors, a.Repos.Patients, locker, logger)
	a.Archive = archive.NewService(a.Repos.Doctors, a.Repos.Patients, a.Repos.Appointments, logger)

	return a, nil
}

// Close releases the backends. It does not stop the scheduler.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("error closing redis")
		}
	}
	if a.PgPool != nil {
		a.PgPool.Close()
	}
}
