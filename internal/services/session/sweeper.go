package session

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Sweeper ends idle sessions on a cron schedule
type Sweeper struct {
	controller *Controller
	cron       *cron.Cron
	logger     arbor.ILogger
}

// NewSweeper creates a new session sweeper
func NewSweeper(controller *Controller, logger arbor.ILogger) *Sweeper {
	return &Sweeper{
		controller: controller,
		cron:       cron.New(cron.WithSeconds()),
		logger:     logger,
	}
}

// Start schedules the sweep. The schedule takes a seconds field.
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		// every five minutes
		schedule = "0 */5 * * * *"
	}

	if _, err := s.cron.AddFunc(schedule, s.RunOnce); err != nil {
		return err
	}
	s.cron.Start()

	s.logger.Info().Str("schedule", schedule).Msg("Session sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Session sweeper stopped")
}

// RunOnce performs one sweep
func (s *Sweeper) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ended, err := s.controller.SweepExpired(ctx, time.Now())
	if err != nil {
		s.logger.Error().Err(err).Msg("Session sweep failed")
		return
	}
	if ended > 0 {
		s.logger.Info().Int("ended", ended).Msg("Expired sessions ended")
	}
}
