package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Pipeline is the part of the watcher driven by schedules
type Pipeline interface {
	RequestReload()
	Offsets() map[string]int64
}

// OffsetStore persists source offsets
type OffsetStore interface {
	SaveOffsets(offsets map[string]int64) error
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	cron           *cron.Cron
	pipeline       Pipeline
	offsets        OffsetStore
	reloadSpec     string
	checkpointSpec string
	logger         *logrus.Logger
}

// NewScheduler creates a new scheduler. An empty spec disables its job.
func NewScheduler(pipeline Pipeline, offsets OffsetStore, reloadSpec, checkpointSpec string, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:           cron.New(),
		pipeline:       pipeline,
		offsets:        offsets,
		reloadSpec:     reloadSpec,
		checkpointSpec: checkpointSpec,
		logger:         logger,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler")

	// Rules edited through the CLI are picked up without a restart
	if s.reloadSpec != "" {
		if _, err := s.cron.AddFunc(s.reloadSpec, s.runReload); err != nil {
			return fmt.Errorf("failed to add rule reload job: %w", err)
		}
	}

	if s.checkpointSpec != "" && s.offsets != nil {
		if _, err := s.cron.AddFunc(s.checkpointSpec, s.RunCheckpoint); err != nil {
			return fmt.Errorf("failed to add offset checkpoint job: %w", err)
		}
	}

	s.cron.Start()
	s.logger.WithField("jobs", len(s.cron.Entries())).Info("Scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running job to finish
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	<-s.cron.Stop().Done()
}

// runReload posts a reload to the consumer queue
func (s *Scheduler) runReload() {
	s.logger.Debug("Requesting scheduled rule reload")
	s.pipeline.RequestReload()
}

// RunCheckpoint saves the processed offset of every source
func (s *Scheduler) RunCheckpoint() {
	offsets := s.pipeline.Offsets()
	if len(offsets) == 0 {
		return
	}
	if err := s.offsets.SaveOffsets(offsets); err != nil {
		s.logger.WithError(err).Warn("Offset checkpoint failed")
		return
	}
	s.logger.WithField("sources", len(offsets)).Debug("Offsets checkpointed")
}
