package domain

import (
	"context"
	"time"
)

// TaskFilter narrows Query results. Zero values mean "no filter".
type TaskFilter struct {
	WarehouseID  string
	AssignedToID string
	Status       TaskStatus
	Type         TaskType
	Limit        int
}

// TaskRepository is the port all task stores implement. Implementations
// must make TryClaim and Transition atomic: under concurrent callers
// exactly one claim on a pending task succeeds.
type TaskRepository interface {
	// Insert stores a new task. ErrDuplicateTask if the id exists.
	Insert(ctx context.Context, task *WorkTask) error

	// FindByID returns a copy of the task. ErrTaskNotFound if absent.
	FindByID(ctx context.Context, taskID string) (*WorkTask, error)

	// TryClaim atomically moves a pending task to assigned for the worker.
	// On a lost race it returns the current task snapshot together with
	// ErrClaimFailed so callers can see who won.
	TryClaim(ctx context.Context, taskID, workerID string, workerType WorkerType) (*WorkTask, error)

	// Transition applies a lifecycle mutation atomically. The mutate
	// function runs against the current task state under the store's
	// concurrency control; a table violation inside mutate aborts the
	// swap and surfaces the domain error unchanged.
	Transition(ctx context.Context, taskID string, mutate func(*WorkTask) error) (*WorkTask, error)

	// Query lists tasks matching the filter in (priority asc, createdAt
	// asc, taskId asc) order.
	Query(ctx context.Context, filter TaskFilter) ([]*WorkTask, error)

	// FindBySourceRef returns the non-terminal task carrying the source
	// reference, or ErrTaskNotFound.
	FindBySourceRef(ctx context.Context, warehouseID, sourceRef string) (*WorkTask, error)

	// FindStaleAssigned returns assigned tasks whose assignment is older
	// than the cutoff and that have not been started.
	FindStaleAssigned(ctx context.Context, warehouseID string, olderThan time.Time) ([]*WorkTask, error)

	// CountActiveForWorker counts assigned or in_progress tasks held by
	// the worker in the warehouse.
	CountActiveForWorker(ctx context.Context, warehouseID, workerID string) (int, error)
}
