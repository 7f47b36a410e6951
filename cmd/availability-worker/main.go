package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/hackgods/doctor-availability/internal/app"
	"github.com/hackgods/doctor-availability/internal/config"
	"github.com/hackgods/doctor-availability/internal/logging"
)

// availability-worker runs only the recurring reconciliation pass. Several
// workers and api-servers can share a database; the Redis pass lock keeps
// their passes from overlapping.
func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("availability-worker", "dev", "info")
		boot.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New("availability-worker", cfg.Env, cfg.LogLevel)
	logger.Info().Dur("interval", cfg.ReconcileInterval).Msg("availability-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	// run once at startup, then on the interval
	if report, err := a.Scheduler.RunNow(rootCtx); err != nil {
		logger.Error().Err(err).Msg("initial availability pass failed")
	} else {
		logger.Info().Int("turned_on", report.Stats.TurnedOn).Int("turned_off", report.Stats.TurnedOff).Msg("initial availability pass done")
	}

	a.Scheduler.Start()
	<-rootCtx.Done()
	logger.Info().Msg("shutdown signal received, stopping availability worker")

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := a.Scheduler.Stop(stopCtx); err != nil {
		logger.Error().Err(err).Msg("scheduler stop error")
	}
}
