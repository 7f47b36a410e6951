package availability

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/hackgods/doctor-availability/internal/apperr"
	redisclient "github.com/hackgods/doctor-availability/internal/redis"
)

const (
	// PassLockKey serializes passes across replicas.
	PassLockKey = "availability:reconcile"

	// ReconciledChannel receives every successful Report as JSON.
	ReconciledChannel = "availability:reconciled"

	passKey = "reconcile"
)

var ErrSchedulerStopped = apperr.InvalidState("availability scheduler is stopped")

// Notifier publishes pass reports to observers.
type Notifier interface {
	Publish(ctx context.Context, channel string, v any) error
}

// PassRunner runs one reconciliation pass at the current time.
type PassRunner interface {
	ReconcileNow(ctx context.Context) (Report, error)
}

type SchedulerConfig struct {
	Interval  time.Duration
	Timeout   time.Duration
	LockRetry time.Duration
}

// Scheduler drives the reconciler on a fixed interval and on demand. At most
// one pass runs at a time: callers inside the process share the in-flight
// pass, and the pass itself holds a lock that other replicas wait on.
type Scheduler struct {
	runner   PassRunner
	locker   redisclient.Locker
	notifier Notifier
	logger   zerolog.Logger
	cfg      SchedulerConfig

	group singleflight.Group
	cron  *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	last    *Report
	started bool
	stopped bool
}

// NewScheduler wires a scheduler. notifier may be nil.
func NewScheduler(runner PassRunner, locker redisclient.Locker, notifier Notifier, cfg SchedulerConfig, logger zerolog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}

	logger = logger.With().Str("component", "availability_scheduler").Logger()
	cl := cronLogger{logger: logger}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner:   runner,
		locker:   locker,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins the recurring trigger. Calling it again is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true

	s.cron.Schedule(cron.Every(s.cfg.Interval), cron.FuncJob(s.scheduledRun))
	s.cron.Start()

	s.logger.Info().Dur("interval", s.cfg.Interval).Msg("availability scheduler started")
}

// Stop ends the recurring trigger and waits for an in-flight pass. When ctx
// expires first the pass is cancelled and Stop returns ctx's error once it
// has unwound. Safe to call more than once.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	if started {
		s.cron.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	s.cancel()
	<-done

	s.logger.Info().Msg("availability scheduler stopped")
	return err
}

// RunNow runs a pass for a user request and returns its report. A caller
// arriving while a pass is in flight gets that pass's result.
func (s *Scheduler) RunNow(ctx context.Context) (Report, error) {
	return s.run(ctx, TriggerManual)
}

// LastReport returns the latest successful pass, if any.
func (s *Scheduler) LastReport() (Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Report{}, false
	}
	return *s.last, true
}

func (s *Scheduler) scheduledRun() {
	report, err := s.run(s.ctx, TriggerScheduled)
	if err != nil {
		if errors.Is(err, ErrSchedulerStopped) {
			return
		}
		// retried on the next tick
		s.logger.Error().Err(err).Msg("scheduled availability pass failed")
		return
	}
	s.logger.Debug().Int("turned_on", report.Stats.TurnedOn).Int("turned_off", report.Stats.TurnedOff).Msg("scheduled availability pass done")
}

func (s *Scheduler) run(ctx context.Context, trigger Trigger) (Report, error) {
	ch := s.group.DoChan(passKey, func() (any, error) {
		return s.pass(trigger)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Report{}, res.Err
		}
		return res.Val.(Report), nil
	case <-ctx.Done():
		// the shared pass keeps running for the other callers
		return Report{}, apperr.Store("wait for availability pass", ctx.Err())
	}
}

// pass runs on the scheduler's own context so a caller that goes away does
// not abort a pass other callers are waiting on.
func (s *Scheduler) pass(trigger Trigger) (Report, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return Report{}, ErrSchedulerStopped
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.Timeout)
	defer cancel()

	started := time.Now()

	var report Report
	err := redisclient.WaitLock(ctx, s.locker, PassLockKey, s.cfg.LockRetry, func(lockCtx context.Context) error {
		r, err := s.runner.ReconcileNow(lockCtx)
		if err != nil {
			return err
		}
		report = r
		return nil
	})
	if err != nil {
		return Report{}, apperr.Store("availability pass", err)
	}

	report.Trigger = trigger

	s.mu.Lock()
	last := report
	s.last = &last
	s.mu.Unlock()

	s.publish(ctx, report)

	s.logger.Info().
		Str("trigger", string(trigger)).
		Str("current_day", string(report.CurrentDay)).
		Int("total", report.Stats.Total).
		Int("turned_on", report.Stats.TurnedOn).
		Int("turned_off", report.Stats.TurnedOff).
		Dur("duration", time.Since(started)).
		Msg("availability pass completed")

	return report, nil
}

func (s *Scheduler) publish(ctx context.Context, report Report) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, ReconciledChannel, report); err != nil {
		s.logger.Warn().Err(err).Msg("publish availability report failed")
	}
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
