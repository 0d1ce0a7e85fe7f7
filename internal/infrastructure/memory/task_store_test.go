package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wms-platform/warehouse-task-service/internal/domain"
)

func newTask(t *testing.T, warehouseID string, priority int) *domain.WorkTask {
	t.Helper()
	task, err := domain.NewWorkTask(warehouseID, domain.TaskTypePick, "bin-1", "SKU-100", 5, priority)
	require.NoError(t, err)
	task.ClearDomainEvents()
	return task
}

func TestInsertAndFind(t *testing.T) {
	store := NewTaskStore()
	ctx := context.Background()

	task := newTask(t, "WH-001", 3)
	require.NoError(t, store.Insert(ctx, task))

	err := store.Insert(ctx, task)
	assert.ErrorIs(t, err, domain.ErrDuplicateTask)

	found, err := store.FindByID(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, task.TaskID, found.TaskID)

	// Returned aggregate is a copy
	found.Status = domain.TaskStatusCancelled
	again, err := store.FindByID(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, again.Status)

	_, err = store.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestInsertNormalizesNewTasks(t *testing.T) {
	store := NewTaskStore()
	ctx := context.Background()

	task := newTask(t, "WH-001", 3)
	task.TaskID = ""
	task.Status = domain.TaskStatusAssigned
	task.AssignedToID = "worker-1"
	now := time.Now().UTC()
	task.AssignedAt = &now

	require.NoError(t, store.Insert(ctx, task))
	require.NotEmpty(t, task.TaskID)

	// Whatever the caller set, a stored task enters the lifecycle pending
	// and unassigned
	stored, err := store.FindByID(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, stored.Status)
	assert.Empty(t, stored.AssignedToID)
	assert.Nil(t, stored.AssignedAt)
}

func TestTryClaimSingleWinner(t *testing.T) {
	store := NewTaskStore()
	ctx := context.Background()

	task := newTask(t, "WH-001", 3)
	require.NoError(t, store.Insert(ctx, task))

	const workers = 32
	var wg sync.WaitGroup
	winners := make(chan string, workers)
	losses := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			workerID := string(rune('A' + n%26))
			claimed, err := store.TryClaim(ctx, task.TaskID, workerID, domain.WorkerTypeHuman)
			if err != nil {
				losses <- err
				return
			}
			winners <- claimed.AssignedToID
		}(i)
	}
	wg.Wait()
	close(winners)
	close(losses)

	assert.Len(t, winners, 1, "exactly one claim must win")
	for err := range losses {
		assert.ErrorIs(t, err, domain.ErrClaimFailed)
	}

	final, err := store.FindByID(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusAssigned, final.Status)
}

func TestTryClaimReturnsSnapshotOnConflict(t *testing.T) {
	store := NewTaskStore()
	ctx := context.Background()

	task := newTask(t, "WH-001", 3)
	require.NoError(t, store.Insert(ctx, task))

	_, err := store.TryClaim(ctx, task.TaskID, "worker-1", domain.WorkerTypeHuman)
	require.NoError(t, err)

	snapshot, err := store.TryClaim(ctx, task.TaskID, "worker-2", domain.WorkerTypeHuman)
	assert.ErrorIs(t, err, domain.ErrClaimFailed)
	require.NotNil(t, snapshot)
	assert.Equal(t, "worker-1", snapshot.AssignedToID)
	assert.Equal(t, domain.TaskStatusAssigned, snapshot.Status)
}

func TestTransitionAbortsOnDomainError(t *testing.T) {
	store := NewTaskStore()
	ctx := context.Background()

	task := newTask(t, "WH-001", 3)
	require.NoError(t, store.Insert(ctx, task))

	// pending -> completed violates the table; the swap must not happen
	_, err := store.Transition(ctx, task.TaskID, func(wt *domain.WorkTask) error {
		return wt.Complete("worker-1", "")
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	unchanged, err := store.FindByID(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, unchanged.Status)
	assert.Equal(t, int64(1), unchanged.Version)
}

func TestTransitionCarriesDomainEvents(t *testing.T) {
	store := NewTaskStore()
	ctx := context.Background()

	task := newTask(t, "WH-001", 3)
	require.NoError(t, store.Insert(ctx, task))
	_, err := store.TryClaim(ctx, task.TaskID, "worker-1", domain.WorkerTypeHuman)
	require.NoError(t, err)

	updated, err := store.Transition(ctx, task.TaskID, func(wt *domain.WorkTask) error {
		return wt.Start("worker-1")
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusInProgress, updated.Status)

	events := updated.GetDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "wms.worktask.started", events[0].EventType())

	// Stored copy does not retain events
	stored, err := store.FindByID(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Empty(t, stored.GetDomainEvents())
}

func TestQueryTotalOrderAndLimit(t *testing.T) {
	store := NewTaskStore()
	ctx := context.Background()

	low := newTask(t, "WH-001", 7)
	urgent := newTask(t, "WH-001", 0)
	mid := newTask(t, "WH-001", 3)
	otherWarehouse := newTask(t, "WH-002", 0)

	for _, task := range []*domain.WorkTask{low, urgent, mid, otherWarehouse} {
		require.NoError(t, store.Insert(ctx, task))
	}

	tasks, err := store.Query(ctx, domain.TaskFilter{WarehouseID: "WH-001"})
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, urgent.TaskID, tasks[0].TaskID)
	assert.Equal(t, mid.TaskID, tasks[1].TaskID)
	assert.Equal(t, low.TaskID, tasks[2].TaskID)

	limited, err := store.Query(ctx, domain.TaskFilter{WarehouseID: "WH-001", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	pending, err := store.Query(ctx, domain.TaskFilter{
		WarehouseID: "WH-001",
		Status:      domain.TaskStatusPending,
		Type:        domain.TaskTypePick,
	})
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestQueryTieBreakByTaskID(t *testing.T) {
	store := NewTaskStore()
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := newTask(t, "WH-001", 3)
	b := newTask(t, "WH-001", 3)
	a.CreatedAt = created
	b.CreatedAt = created

	require.NoError(t, store.Insert(ctx, a))
	require.NoError(t, store.Insert(ctx, b))

	tasks, err := store.Query(ctx, domain.TaskFilter{WarehouseID: "WH-001"})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Less(t, tasks[0].TaskID, tasks[1].TaskID)
}

func TestFindBySourceRef(t *testing.T) {
	store := NewTaskStore()
	ctx := context.Background()

	task := newTask(t, "WH-001", 3)
	task.SourceRef = "ORD-12345678:1"
	require.NoError(t, store.Insert(ctx, task))

	found, err := store.FindBySourceRef(ctx, "WH-001", "ORD-12345678:1")
	require.NoError(t, err)
	assert.Equal(t, task.TaskID, found.TaskID)

	_, err = store.FindBySourceRef(ctx, "WH-001", "ORD-12345678:2")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)

	// Terminal tasks no longer match: the line may be re-planned
	_, err = store.Transition(ctx, task.TaskID, func(wt *domain.WorkTask) error {
		return wt.Cancel("dispatcher-1", "")
	})
	require.NoError(t, err)

	_, err = store.FindBySourceRef(ctx, "WH-001", "ORD-12345678:1")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestFindStaleAssigned(t *testing.T) {
	store := NewTaskStore()
	ctx := context.Background()

	stale := newTask(t, "WH-001", 3)
	require.NoError(t, store.Insert(ctx, stale))
	_, err := store.TryClaim(ctx, stale.TaskID, "worker-1", domain.WorkerTypeHuman)
	require.NoError(t, err)

	fresh := newTask(t, "WH-001", 3)
	require.NoError(t, store.Insert(ctx, fresh))

	started := newTask(t, "WH-001", 3)
	require.NoError(t, store.Insert(ctx, started))
	_, err = store.TryClaim(ctx, started.TaskID, "worker-2", domain.WorkerTypeHuman)
	require.NoError(t, err)
	_, err = store.Transition(ctx, started.TaskID, func(wt *domain.WorkTask) error {
		return wt.Start("worker-2")
	})
	require.NoError(t, err)

	cutoff := time.Now().UTC().Add(time.Minute)
	got, err := store.FindStaleAssigned(ctx, "WH-001", cutoff)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stale.TaskID, got[0].TaskID)

	// Nothing is stale against a cutoff in the past
	got, err = store.FindStaleAssigned(ctx, "WH-001", time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCountActiveForWorker(t *testing.T) {
	store := NewTaskStore()
	ctx := context.Background()

	first := newTask(t, "WH-001", 3)
	require.NoError(t, store.Insert(ctx, first))
	_, err := store.TryClaim(ctx, first.TaskID, "worker-1", domain.WorkerTypeHuman)
	require.NoError(t, err)

	count, err := store.CountActiveForWorker(ctx, "WH-001", "worker-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Completing the task frees the worker
	_, err = store.Transition(ctx, first.TaskID, func(wt *domain.WorkTask) error {
		return wt.Start("worker-1")
	})
	require.NoError(t, err)
	_, err = store.Transition(ctx, first.TaskID, func(wt *domain.WorkTask) error {
		return wt.Complete("worker-1", "")
	})
	require.NoError(t, err)

	count, err = store.CountActiveForWorker(ctx, "WH-001", "worker-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
