package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler drives the dispatcher on a fixed interval.
//
// Overlap handling: if a tick is still running when the next one fires,
// the new tick is skipped rather than queued, so a slow provider never
// stacks ticks. Misfires within the interval are absorbed the same way;
// entries stay due and the next successful tick picks them up.
type Scheduler struct {
	dispatcher *Dispatcher
	interval   time.Duration
	log        *slog.Logger

	cron   *cron.Cron
	cancel context.CancelFunc
}

func NewScheduler(d *Dispatcher, interval time.Duration, log *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		dispatcher: d,
		interval:   interval,
		log:        log.With("component", "scheduler"),
	}
}

// Start begins ticking in the background. It returns once the job is
// registered; ticks run on the cron goroutine.
func (s *Scheduler) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	clog := cronLogger{s.log}
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(clog),
		cron.Recover(clog),
	))

	spec := fmt.Sprintf("@every %s", s.interval)
	_, err := s.cron.AddFunc(spec, func() {
		if err := s.dispatcher.RunTick(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("dispatch tick failed", "error", err)
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("register dispatch job: %w", err)
	}

	s.cron.Start()
	s.log.Info("scheduler started", "interval", s.interval.String())
	return nil
}

// Stop cancels the running tick, stops the timer, and waits for in-flight
// jobs to drain or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	done := s.cron.Stop().Done()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler drain: %w", ctx.Err())
	}
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
