package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/gradehall/internal/leadership"
)

// LeaderAwareScheduler wraps the materializer and only runs it when this
// instance holds leadership, so multi-instance deployments materialize each
// calendar day exactly once.
type LeaderAwareScheduler struct {
	scheduler *Service
	election  *leadership.Election
	logger    zerolog.Logger

	ctx              context.Context
	cancelFunc       context.CancelFunc
	schedulerRunning bool
}

// NewLeaderAware creates a leader-aware materializer wrapper.
func NewLeaderAware(scheduler *Service, election *leadership.Election, logger zerolog.Logger) *LeaderAwareScheduler {
	return &LeaderAwareScheduler{
		scheduler:        scheduler,
		election:         election,
		logger:           logger.With().Str("component", "leader_aware_scheduler").Logger(),
		schedulerRunning: false,
	}
}

// Start begins monitoring leadership status and manages the materializer
// lifecycle.
func (las *LeaderAwareScheduler) Start(ctx context.Context) error {
	las.ctx = ctx

	las.logger.Info().Msg("starting leader-aware materializer")

	if err := las.election.Start(ctx); err != nil {
		return err
	}

	go las.monitorLeadership()

	return nil
}

// Stop stops the materializer and releases leadership.
func (las *LeaderAwareScheduler) Stop() error {
	las.logger.Info().Msg("stopping leader-aware materializer")

	if las.schedulerRunning && las.cancelFunc != nil {
		las.cancelFunc()
		las.schedulerRunning = false
	}

	return las.election.Stop()
}

// monitorLeadership watches for leadership changes and starts or stops the
// materializer accordingly.
func (las *LeaderAwareScheduler) monitorLeadership() {
	leaderCh := las.election.LeaderCh()

	if las.election.IsLeader() {
		las.startScheduler()
	}

	for {
		select {
		case <-las.ctx.Done():
			return
		case isLeader := <-leaderCh:
			if isLeader {
				las.logger.Info().Msg("became leader, starting materializer")
				las.startScheduler()
			} else {
				las.logger.Warn().Msg("lost leadership, stopping materializer")
				las.stopScheduler()
			}
		}
	}
}

func (las *LeaderAwareScheduler) startScheduler() {
	if las.schedulerRunning {
		las.logger.Warn().Msg("materializer already running")
		return
	}

	ctx, cancel := context.WithCancel(las.ctx)
	las.cancelFunc = cancel
	las.schedulerRunning = true

	go func() {
		las.logger.Info().Msg("materializer started")
		if err := las.scheduler.Run(ctx); err != nil && err != context.Canceled {
			las.logger.Error().Err(err).Msg("materializer error")
		}
		las.schedulerRunning = false
		las.logger.Info().Msg("materializer stopped")
	}()
}

func (las *LeaderAwareScheduler) stopScheduler() {
	if !las.schedulerRunning {
		return
	}

	if las.cancelFunc != nil {
		las.cancelFunc()
		las.cancelFunc = nil
	}

	// Wait briefly for the loop to observe cancellation.
	time.Sleep(100 * time.Millisecond)
	las.schedulerRunning = false
}

// IsLeader returns whether this instance is the leader.
func (las *LeaderAwareScheduler) IsLeader() bool {
	return las.election.IsLeader()
}
