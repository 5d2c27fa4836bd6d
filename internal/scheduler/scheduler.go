// Package scheduler runs periodic background jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"imagine-chat/internal/logger"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

// Scheduler wraps a gocron scheduler whose jobs receive a context that is
// cancelled on Stop
type Scheduler struct {
	s      gocron.Scheduler
	ctx    context.Context
	cancel context.CancelFunc
	log    *logrus.Entry
}

// New creates a stopped scheduler running jobs in UTC
func New() (*Scheduler, error) {
	log := logger.Component("scheduler")

	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(gocronLogger{log}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{s: s, ctx: ctx, cancel: cancel, log: log}, nil
}

// AddJob registers job under a cron expression. A run is skipped while the
// previous run of the same job is still going.
func (s *Scheduler) AddJob(name, cronExpr string, job func(ctx context.Context) error) error {
	_, err := s.s.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(func() {
			start := time.Now()
			if err := job(s.ctx); err != nil {
				s.log.WithError(err).WithField("job", name).Error("Job failed")
				return
			}
			s.log.WithFields(logrus.Fields{
				"job":         name,
				"duration_ms": time.Since(start).Milliseconds(),
			}).Debug("Job completed")
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to add job %s: %w", name, err)
	}

	s.log.WithFields(logrus.Fields{"job": name, "cron": cronExpr}).Info("Job scheduled")
	return nil
}

// Start begins running jobs
func (s *Scheduler) Start() {
	s.s.Start()
}

// Stop cancels running jobs and shuts the scheduler down
func (s *Scheduler) Stop() error {
	s.cancel()
	if err := s.s.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	return nil
}

// gocronLogger adapts logrus to gocron's key/value logger
type gocronLogger struct {
	entry *logrus.Entry
}

func (l gocronLogger) with(args []any) *logrus.Entry {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(args); i += 2 {
		fields[fmt.Sprint(args[i])] = args[i+1]
	}
	return l.entry.WithFields(fields)
}

func (l gocronLogger) Debug(msg string, args ...any) { l.with(args).Debug(msg) }
func (l gocronLogger) Info(msg string, args ...any)  { l.with(args).Info(msg) }
func (l gocronLogger) Warn(msg string, args ...any)  { l.with(args).Warn(msg) }
func (l gocronLogger) Error(msg string, args ...any) { l.with(args).Error(msg) }
