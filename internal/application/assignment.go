package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/wms-platform/warehouse-task-service/internal/domain"
	"github.com/wms-platform/warehouse-task-service/pkg/logging"
)

// AssignmentConfig tunes the claim loop
type AssignmentConfig struct {
	// ClaimAttempts bounds how many lost races a single request absorbs
	// before degrading to no-task-available
	ClaimAttempts int
	// AllowParallelTasks disables the one-task-per-worker rule
	AllowParallelTasks bool
}

// DefaultAssignmentConfig returns the engine defaults
func DefaultAssignmentConfig() AssignmentConfig {
	return AssignmentConfig{
		ClaimAttempts:      3,
		AllowParallelTasks: false,
	}
}

// AssignmentEngine matches pending tasks to requesting workers. All claims
// go through the store's atomic TryClaim; the engine never assumes a
// candidate it saw is still pending.
type AssignmentEngine struct {
	repo    domain.TaskRepository
	config  AssignmentConfig
	logger  *logging.Logger
	onClaim func(warehouseID string, workerType domain.WorkerType)
	onRace  func(warehouseID string)
}

// NewAssignmentEngine creates an engine. The claim and race callbacks are
// optional metric hooks.
func NewAssignmentEngine(repo domain.TaskRepository, config AssignmentConfig, logger *logging.Logger) *AssignmentEngine {
	if config.ClaimAttempts < 1 {
		config.ClaimAttempts = 1
	}
	return &AssignmentEngine{
		repo:   repo,
		config: config,
		logger: logger.WithComponent("assignment-engine"),
	}
}

// SetMetricHooks installs claim/race observers
func (e *AssignmentEngine) SetMetricHooks(onClaim func(string, domain.WorkerType), onRace func(string)) {
	e.onClaim = onClaim
	e.onRace = onRace
}

// RequestNextTask claims the best available task for the worker. A nil
// task with a nil error means the queue holds nothing for this worker;
// that is a result, not a failure.
func (e *AssignmentEngine) RequestNextTask(ctx context.Context, req NextTaskRequest) (*domain.WorkTask, error) {
	if !domain.ValidWorkerType(req.WorkerType) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidWorkerType, req.WorkerType)
	}

	if !e.config.AllowParallelTasks {
		active, err := e.repo.CountActiveForWorker(ctx, req.WarehouseID, req.WorkerID)
		if err != nil {
			return nil, err
		}
		if active > 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrWorkerBusy, req.WorkerID)
		}
	}

	candidates, err := e.repo.Query(ctx, domain.TaskFilter{
		WarehouseID: req.WarehouseID,
		Status:      domain.TaskStatusPending,
	})
	if err != nil {
		return nil, err
	}

	attempts := e.config.ClaimAttempts
	for _, candidate := range candidates {
		if !capableOf(req.Capabilities, candidate.Type) {
			continue
		}

		claimed, err := e.repo.TryClaim(ctx, candidate.TaskID, req.WorkerID, req.WorkerType)
		if err == nil {
			if e.onClaim != nil {
				e.onClaim(req.WarehouseID, req.WorkerType)
			}
			e.logger.Info("Task claimed",
				"taskId", claimed.TaskID,
				"warehouseId", req.WarehouseID,
				"workerId", req.WorkerID,
			)
			return claimed, nil
		}

		if errors.Is(err, domain.ErrClaimFailed) {
			// Lost the race: someone else got there first. Spend one
			// attempt and move to the next candidate.
			if e.onRace != nil {
				e.onRace(req.WarehouseID)
			}
			attempts--
			if attempts <= 0 {
				e.logger.Debug("Claim budget exhausted",
					"warehouseId", req.WarehouseID,
					"workerId", req.WorkerID,
				)
				return nil, nil
			}
			continue
		}

		return nil, err
	}

	return nil, nil
}

// AssignBatch claims each task independently for the worker. Failures are
// reported per task and never roll back earlier successes.
func (e *AssignmentEngine) AssignBatch(ctx context.Context, req AssignBatchRequest) ([]AssignResultDTO, error) {
	if !domain.ValidWorkerType(req.WorkerType) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidWorkerType, req.WorkerType)
	}

	results := make([]AssignResultDTO, 0, len(req.TaskIDs))
	for _, taskID := range req.TaskIDs {
		// A task's warehouse never changes, so membership can be checked
		// before the claim without racing it
		task, err := e.repo.FindByID(ctx, taskID)
		if err != nil {
			results = append(results, AssignResultDTO{TaskID: taskID, Assigned: false, Reason: err.Error()})
			continue
		}
		if task.WarehouseID != req.WarehouseID {
			results = append(results, AssignResultDTO{
				TaskID:   taskID,
				Assigned: false,
				Reason:   fmt.Sprintf("task belongs to warehouse %s", task.WarehouseID),
			})
			continue
		}

		_, err = e.repo.TryClaim(ctx, taskID, req.WorkerID, req.WorkerType)
		if err == nil {
			if e.onClaim != nil {
				e.onClaim(req.WarehouseID, req.WorkerType)
			}
			results = append(results, AssignResultDTO{TaskID: taskID, Assigned: true})
			continue
		}

		if errors.Is(err, domain.ErrClaimFailed) && e.onRace != nil {
			e.onRace(req.WarehouseID)
		}
		results = append(results, AssignResultDTO{
			TaskID:   taskID,
			Assigned: false,
			Reason:   err.Error(),
		})
	}
	return results, nil
}

// capableOf reports whether a worker with the given capabilities can take
// the task type. An empty capability list means unrestricted.
func capableOf(capabilities []domain.TaskType, taskType domain.TaskType) bool {
	if len(capabilities) == 0 {
		return true
	}
	for _, c := range capabilities {
		if c == taskType {
			return true
		}
	}
	return false
}
