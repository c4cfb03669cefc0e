// README: Batch scheduler; runs one lock-guarded matching cycle per interval.
package matching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ridepool/internal/lock"
	"ridepool/internal/observability"
)

var (
	ErrAlreadyRunning = errors.New("scheduler already running")
	ErrStopTimeout    = errors.New("scheduler stop timed out")
)

// Cycler runs one matching cycle and emits its results. *Matcher
// implements it.
type Cycler interface {
	RunCycle(ctx context.Context) (CycleResult, error)
	Publish(ctx context.Context, res CycleResult)
}

type SchedulerConfig struct {
	Interval    time.Duration
	LockName    string
	LockTTL     time.Duration
	StopTimeout time.Duration
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:    15 * time.Second,
		LockName:    "matching_engine",
		LockTTL:     60 * time.Second,
		StopTimeout: 30 * time.Second,
	}
}

type Scheduler struct {
	cycler Cycler
	locker lock.Locker
	cfg    SchedulerConfig
	log    zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewScheduler(cycler Cycler, locker lock.Locker, cfg SchedulerConfig, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cycler: cycler,
		locker: locker,
		cfg:    cfg,
		log:    log.With().Str("component", "scheduler").Logger(),
	}
}

// Start launches the loop in its own goroutine.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.loop(s.stopCh, s.doneCh)

	s.log.Info().
		Dur("interval", s.cfg.Interval).
		Dur("lock_ttl", s.cfg.LockTTL).
		Str("lock", s.cfg.LockName).
		Msg("matching scheduler started")
	return nil
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop signals the loop and waits for it to exit. An in-flight cycle is
// allowed to finish. The wait is bounded by ctx and StopTimeout.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	timeout := s.cfg.StopTimeout
	if timeout <= 0 {
		timeout = DefaultSchedulerConfig().StopTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		s.log.Info().Msg("matching scheduler stopped")
		return nil
	case <-timer.C:
		s.log.Warn().Dur("timeout", timeout).Msg("matching scheduler did not stop in time")
		return ErrStopTimeout
	case <-ctx.Done():
		s.log.Warn().Err(ctx.Err()).Msg("matching scheduler stop abandoned")
		return ctx.Err()
	}
}

func (s *Scheduler) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, _, _ = s.RunOnce(context.Background())

		timer.Reset(s.cfg.Interval)
		select {
		case <-stop:
			return
		case <-timer.C:
		}
	}
}

// RunOnce tries to take the lock and run a single cycle, then publishes the
// cycle's events. ran is false when another holder owns the lock. Errors and panics from the cycle are logged
// and returned; they never escape as panics.
func (s *Scheduler) RunOnce(parent context.Context) (res CycleResult, ran bool, err error) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.LockTTL)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("matching cycle panic: %v", p)
			ran = true
			observability.MatchingCycles.WithLabelValues("error").Inc()
			s.log.Error().Interface("panic", p).Msg("matching cycle panicked")
		}
	}()

	start := time.Now()
	ran, err = lock.WithLock(ctx, s.locker, s.cfg.LockName, s.cfg.LockTTL, func(ctx context.Context) error {
		var cerr error
		res, cerr = s.cycler.RunCycle(ctx)
		return cerr
	})

	switch {
	case err != nil && !ran:
		observability.MatchingCycles.WithLabelValues("error").Inc()
		s.log.Error().Err(err).Msg("acquire matching lock")
	case !ran:
		observability.MatchingCycles.WithLabelValues("skipped").Inc()
		s.log.Debug().Msg("matching lock held elsewhere, skipping cycle")
	case err != nil:
		observability.MatchingCycles.WithLabelValues("error").Inc()
		observability.MatchingCycleDuration.Observe(time.Since(start).Seconds())
		s.log.Error().Err(err).Msg("matching cycle failed")
	case res.Matched > 0:
		observability.MatchingCycles.WithLabelValues("matched").Inc()
		observability.MatchingCycleDuration.Observe(time.Since(start).Seconds())
		s.log.Info().
			Int("pending", res.Pending).
			Int("matched", res.Matched).
			Int("groups_created", res.GroupsCreated).
			Int("unmatched", res.Unmatched).
			Float64("surge", res.Surge).
			Dur("took", res.Duration).
			Msg("matching cycle")
	default:
		observability.MatchingCycles.WithLabelValues("idle").Inc()
		observability.MatchingCycleDuration.Observe(time.Since(start).Seconds())
		s.log.Debug().Int("pending", res.Pending).Msg("matching cycle matched nothing")
	}
	// Events go out after the lease is released so broker retries never
	// extend it.
	if ran && err == nil {
		s.cycler.Publish(parent, res)
	}
	return res, ran, err
}
