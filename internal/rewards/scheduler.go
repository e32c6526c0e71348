package rewards

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Tick calls emit with the countdown to the next snapshot immediately and
// then once per interval until ctx is done. The target is recomputed on
// every tick so the countdown rolls over to the next month by itself.
func Tick(ctx context.Context, clock Clock, interval time.Duration, emit func(Status)) {
	if clock == nil {
		clock = systemClock{}
	}
	if interval <= 0 {
		interval = time.Second
	}
	emit(StatusAt(clock.Now()))

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			emit(StatusAt(clock.Now()))
		}
	}
}

// Scheduler runs a job at every snapshot.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler registers onSnapshot to run at every snapshot. Call Start to
// begin and Stop to end.
func NewScheduler(logger *slog.Logger, onSnapshot func(at time.Time)) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.Recover(cronLogger{logger})))
	_, err := c.AddFunc(SnapshotSpec, func() {
		at := time.Now().UTC()
		logger.Info("reward snapshot reached", "at", at)
		onSnapshot(at)
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling snapshot: %w", err)
	}
	return &Scheduler{cron: c, logger: logger}, nil
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Next returns when the snapshot job fires next. It is zero before Start.
func (s *Scheduler) Next() time.Time {
	for _, e := range s.cron.Entries() {
		return e.Next
	}
	return time.Time{}
}

// Stop halts the scheduler and waits for a running job, or until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts slog to cron's logger interface.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
