package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/weather-history-etl/internal/weather"
)

// Runner is the part of weather.Service the scheduler drives.
type Runner interface {
	Run(ctx context.Context, req weather.RunRequest) (weather.RunResult, error)
}

// Scheduler runs the ingestion pipeline once a day.
type Scheduler struct {
	scheduler  *gocron.Scheduler
	runner     Runner
	request    weather.RunRequest
	at         string
	runTimeout time.Duration
	logger     *slog.Logger
}

// New creates a new Scheduler that runs req every day at the HH:MM time at.
func New(runner Runner, req weather.RunRequest, at string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := gocron.NewScheduler(time.UTC)
	// A slow run must not overlap the next one.
	s.SingletonModeAll()
	return &Scheduler{
		scheduler:  s,
		runner:     runner,
		request:    req,
		at:         at,
		runTimeout: 10 * time.Minute,
		logger:     logger,
	}
}

// Start schedules the daily job and starts the underlying scheduler. When
// runNow is set an extra run is triggered immediately.
func (s *Scheduler) Start(runNow bool) error {
	if _, err := s.scheduler.Every(1).Day().At(s.at).Do(s.runOnce); err != nil {
		return fmt.Errorf("failed to schedule daily ingestion at %s: %w", s.at, err)
	}
	if runNow {
		go s.runOnce()
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "at", s.at)
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) runOnce() {
	s.logger.Info("scheduler: running ingestion job")

	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	res, err := s.runner.Run(ctx, s.request)
	if err != nil {
		s.logger.Error("scheduler: ingestion failed", "error", err)
		return
	}
	s.logger.Info("scheduler: completed ingestion job", "run_id", res.RunID, "inserted", res.Inserted)
}
