package scheduler

import (
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"weather-backend/internal/weather"
)

// Sweeper periodically deletes weather records older than the configured age.
type Sweeper struct {
	scheduler *gocron.Scheduler
	service   *weather.Service
	maxAge    time.Duration
	interval  time.Duration
}

// New creates a new Sweeper. A maxAge of zero disables sweeping.
func New(service *weather.Service, maxAge, interval time.Duration) *Sweeper {
	s := gocron.NewScheduler(time.UTC)
	return &Sweeper{
		scheduler: s,
		service:   service,
		maxAge:    maxAge,
		interval:  interval,
	}
}

// Start schedules the periodic sweep and starts the underlying scheduler.
func (s *Sweeper) Start() error {
	if s.maxAge <= 0 {
		log.Println("sweeper: retention disabled; nothing to schedule")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 60
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(func() {
		cutoff := time.Now().UTC().Add(-s.maxAge)
		removed, err := s.service.PruneWeatherRecords(cutoff)
		if err != nil {
			log.Printf("sweeper: prune failed: %v", err)
			return
		}
		if removed > 0 {
			log.Printf("sweeper: removed %d weather records older than %s", removed, s.maxAge)
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future sweeps.
func (s *Sweeper) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
