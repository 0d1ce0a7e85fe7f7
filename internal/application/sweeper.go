package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wms-platform/warehouse-task-service/internal/domain"
	"github.com/wms-platform/warehouse-task-service/internal/spatial"
	"github.com/wms-platform/warehouse-task-service/pkg/logging"
)

// SweeperActor is recorded as the actor on every sweep requeue
const SweeperActor = "system:sweeper"

// SweeperConfig tunes the stale-assignment sweep
type SweeperConfig struct {
	// StaleTimeout is how long a task may sit assigned without being
	// started before the sweep reclaims it
	StaleTimeout time.Duration
	// SweepInterval is the time between sweep passes
	SweepInterval time.Duration
}

// DefaultSweeperConfig returns the sweep defaults
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		StaleTimeout:  15 * time.Minute,
		SweepInterval: time.Minute,
	}
}

// Sweeper periodically returns stale assigned tasks to the pending queue.
// It is the only background mutator in the service; everything else runs
// inside a request.
type Sweeper struct {
	repo      domain.TaskRepository
	registry  *spatial.Registry
	config    SweeperConfig
	logger    *logging.Logger
	onRequeue func(warehouseID string)

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSweeper creates a sweeper. The requeue callback is an optional
// metric hook.
func NewSweeper(repo domain.TaskRepository, registry *spatial.Registry, config SweeperConfig, logger *logging.Logger) *Sweeper {
	return &Sweeper{
		repo:     repo,
		registry: registry,
		config:   config,
		logger:   logger.WithComponent("stale-sweeper"),
		stopCh:   make(chan struct{}),
	}
}

// SetMetricHook installs a requeue observer
func (s *Sweeper) SetMetricHook(onRequeue func(string)) {
	s.onRequeue = onRequeue
}

// Start launches the background sweep loop
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.config.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.SweepAll(context.Background())
			case <-s.stopCh:
				return
			}
		}
	}()
	s.logger.Info("Stale sweeper started",
		"interval", s.config.SweepInterval.String(),
		"staleTimeout", s.config.StaleTimeout.String(),
	)
}

// Stop halts the loop and waits for an in-flight pass to finish
func (s *Sweeper) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Stale sweeper stopped")
}

// SweepAll runs one pass over every warehouse with an active map
func (s *Sweeper) SweepAll(ctx context.Context) {
	for _, warehouseID := range s.registry.WarehouseIDs() {
		if _, err := s.Sweep(ctx, warehouseID); err != nil {
			s.logger.Error("Sweep pass failed", "warehouseId", warehouseID, "error", err.Error())
		}
	}
}

// Sweep requeues every task in the warehouse that has sat assigned but
// unstarted for longer than the stale timeout. Returns how many tasks
// were returned to the queue.
func (s *Sweeper) Sweep(ctx context.Context, warehouseID string) (int, error) {
	start := time.Now()
	cutoff := start.Add(-s.config.StaleTimeout)

	stale, err := s.repo.FindStaleAssigned(ctx, warehouseID, cutoff)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, task := range stale {
		note := fmt.Sprintf("assignment expired after %s", s.config.StaleTimeout)
		_, err := s.repo.Transition(ctx, task.TaskID, func(t *domain.WorkTask) error {
			return t.Requeue(SweeperActor, note)
		})
		if err != nil {
			// The worker may have started or finished the task between the
			// query and the transition; skip and move on.
			s.logger.Debug("Stale task escaped the sweep",
				"taskId", task.TaskID,
				"warehouseId", warehouseID,
				"error", err.Error(),
			)
			continue
		}
		if s.onRequeue != nil {
			s.onRequeue(warehouseID)
		}
		requeued++
	}

	if requeued > 0 {
		s.logger.Sweep(ctx, warehouseID, requeued, time.Since(start))
	}
	return requeued, nil
}
