package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// Refresher reloads the dataset.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler periodically refreshes the dataset cache.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	interval  time.Duration
	cronExpr  string
	timeout   time.Duration
}

// New creates a new Scheduler. A cron expression takes precedence over the
// interval; with neither set Start schedules nothing.
func New(refresher Refresher, interval time.Duration, cronExpr string) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		refresher: refresher,
		interval:  interval,
		cronExpr:  cronExpr,
		timeout:   5 * time.Minute,
	}
}

// Start schedules the refresh job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.refresher == nil {
		return errors.New("scheduler: no refresher configured")
	}

	var err error
	switch {
	case s.cronExpr != "":
		_, err = s.scheduler.Cron(s.cronExpr).Do(s.run)
		log.Printf("INFO: scheduler: refreshing dataset on cron %q", s.cronExpr)
	case s.interval > 0:
		minutes := int(s.interval.Minutes())
		if minutes <= 0 {
			minutes = 1
		}
		_, err = s.scheduler.Every(minutes).Minutes().WaitForSchedule().Do(s.run)
		log.Printf("INFO: scheduler: refreshing dataset every %d minute(s)", minutes)
	default:
		log.Println("INFO: scheduler: no refresh interval configured; nothing to schedule")
		return nil
	}
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// Jobs reports how many jobs are scheduled.
func (s *Scheduler) Jobs() int {
	return len(s.scheduler.Jobs())
}

func (s *Scheduler) run() {
	log.Println("INFO: scheduler: running dataset refresh job")

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.refresher.Refresh(ctx); err != nil {
		log.Printf("ERROR: scheduler: dataset refresh failed, keeping previous tables: %v", err)
		return
	}
	log.Println("INFO: scheduler: completed dataset refresh job")
}
