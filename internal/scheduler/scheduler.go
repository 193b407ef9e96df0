package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler triggers measurement runs on a cron schedule with seconds
// precision. A run that is still going when the next tick fires is skipped,
// so the log store only ever has one writer.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	running bool
}

func New() *Scheduler {
	return &Scheduler{cron: newCron()}
}

// parser accepts the same six-field specs as cron.WithSeconds.
var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate reports whether spec is a valid schedule.
func Validate(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return errors.Wrapf(err, "invalid schedule %q", spec)
	}
	return nil
}

func newCron() *cron.Cron {
	logger := cronLogger{}
	return cron.New(cron.WithParser(parser), cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
}

// Start schedules job and starts the cron loop. Calling Start again
// replaces the previous job.
func (s *Scheduler) Start(spec string, job func()) error {
	if err := Validate(spec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.cron.Stop()
	}
	s.cron = newCron()
	s.running = false

	id, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return errors.Wrapf(err, "invalid schedule %q", spec)
	}
	s.entry = id
	s.cron.Start()
	s.running = true
	log.Info().Str("schedule", spec).Time("next", s.cron.Entry(id).Next).Msg("scheduler started")
	return nil
}

// Next returns the time of the next run, or zero when stopped.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// Stop stops the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	done := s.cron.Stop()
	s.running = false
	s.mu.Unlock()

	<-done.Done()
	log.Info().Msg("scheduler stopped")
}

// Run schedules job until ctx is done. The job receives ctx so a shutdown
// interrupts the probe in flight. spec is checked before the immediate run.
func Run(ctx context.Context, spec string, immediate bool, job func(context.Context)) error {
	if err := Validate(spec); err != nil {
		return err
	}
	s := New()
	if immediate {
		job(ctx)
	}
	if err := s.Start(spec, func() { job(ctx) }); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(fields(keysAndValues)).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(fields(keysAndValues)).Msg("cron: " + msg)
}

func fields(kv []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return out
}
