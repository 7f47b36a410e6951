package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

// ConnectPostgres opens the pool and checks connectivity before returning.
// Queries are traced through logger: every statement at debug level, only
// failures otherwise.
func ConnectPostgres(ctx context.Context, dsn string, logger zerolog.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute
	cfg.ConnConfig.Tracer = newQueryTracer(logger)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// ConnectAndMigrate opens the pool and applies pending migrations.
func ConnectAndMigrate(ctx context.Context, dsn string, logger zerolog.Logger) (*pgxpool.Pool, int, error) {
	pool, err := ConnectPostgres(ctx, dsn, logger)
	if err != nil {
		return nil, 0, err
	}

	applied, err := NewMigrator(pool).Up(ctx)
	if err != nil {
		pool.Close()
		return nil, 0, fmt.Errorf("migrate: %w", err)
	}
	return pool, applied, nil
}

func newQueryTracer(logger zerolog.Logger) *tracelog.TraceLog {
	logger = logger.With().Str("component", "postgres").Logger()

	level := tracelog.LogLevelError
	if logger.GetLevel() <= zerolog.DebugLevel {
		level = tracelog.LogLevelDebug
	}

	return &tracelog.TraceLog{
		Logger: tracelog.LoggerFunc(func(ctx context.Context, lvl tracelog.LogLevel, msg string, data map[string]any) {
			logger.WithLevel(zerologLevel(lvl)).Fields(data).Msg(msg)
		}),
		LogLevel: level,
	}
}

func zerologLevel(lvl tracelog.LogLevel) zerolog.Level {
	switch lvl {
	case tracelog.LogLevelTrace:
		return zerolog.TraceLevel
	case tracelog.LogLevelDebug:
		return zerolog.DebugLevel
	case tracelog.LogLevelInfo:
		return zerolog.InfoLevel
	case tracelog.LogLevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
