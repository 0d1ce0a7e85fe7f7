package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/warehouse-task-service/internal/domain"
	"github.com/wms-platform/warehouse-task-service/internal/infrastructure/mongodb"
	sharedtesting "github.com/wms-platform/warehouse-task-service/pkg/testing"
)

const warehouseID = "wh-east"

func createTestTask(t *testing.T, taskType domain.TaskType, priority int) *domain.WorkTask {
	t.Helper()
	task, err := domain.NewWorkTask(warehouseID, taskType, "bin-a1", "prod-widget", 5, priority)
	require.NoError(t, err)
	task.ClearDomainEvents()
	return task
}

func setupTestRepository(t *testing.T) (*mongodb.TaskRepository, func()) {
	ctx := context.Background()

	mongoContainer, err := sharedtesting.NewMongoDBContainer(ctx)
	require.NoError(t, err)

	client, err := mongoContainer.GetClient(ctx)
	require.NoError(t, err)

	db := client.Database("test_wms_tasks")
	repo := mongodb.NewTaskRepository(db)

	cleanup := func() {
		if err := client.Disconnect(ctx); err != nil {
			t.Logf("Failed to disconnect MongoDB client: %v", err)
		}
		if err := mongoContainer.Close(ctx); err != nil {
			t.Logf("Failed to close MongoDB container: %v", err)
		}
	}

	return repo, cleanup
}

func TestTaskRepository_InsertAndFind(t *testing.T) {
	repo, cleanup := setupTestRepository(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	t.Run("Insert and find task", func(t *testing.T) {
		task := createTestTask(t, domain.TaskTypePick, 5)

		err := repo.Insert(ctx, task)
		require.NoError(t, err)

		found, err := repo.FindByID(ctx, task.TaskID)
		require.NoError(t, err)
		assert.Equal(t, task.TaskID, found.TaskID)
		assert.Equal(t, domain.TaskStatusPending, found.Status)
		assert.Equal(t, int64(1), found.Version)
	})

	t.Run("Insert assigns id and resets status", func(t *testing.T) {
		task := createTestTask(t, domain.TaskTypePick, 5)
		task.TaskID = ""
		task.Status = domain.TaskStatusAssigned
		task.AssignedToID = "worker-1"

		require.NoError(t, repo.Insert(ctx, task))
		require.NotEmpty(t, task.TaskID)

		found, err := repo.FindByID(ctx, task.TaskID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusPending, found.Status)
		assert.Empty(t, found.AssignedToID)
	})

	t.Run("Duplicate task id rejected", func(t *testing.T) {
		task := createTestTask(t, domain.TaskTypePick, 5)

		require.NoError(t, repo.Insert(ctx, task))
		err := repo.Insert(ctx, task)
		assert.ErrorIs(t, err, domain.ErrDuplicateTask)
	})

	t.Run("Find non-existent task", func(t *testing.T) {
		_, err := repo.FindByID(ctx, "task-nope")
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	})
}

func TestTaskRepository_TryClaim(t *testing.T) {
	repo, cleanup := setupTestRepository(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	t.Run("Claim pending task", func(t *testing.T) {
		task := createTestTask(t, domain.TaskTypePick, 5)
		require.NoError(t, repo.Insert(ctx, task))

		claimed, err := repo.TryClaim(ctx, task.TaskID, "picker-1", domain.WorkerTypeHuman)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusAssigned, claimed.Status)
		assert.Equal(t, "picker-1", claimed.AssignedToID)
		assert.NotNil(t, claimed.AssignedAt)
		assert.Equal(t, int64(2), claimed.Version)
	})

	t.Run("Lost claim returns snapshot and conflict", func(t *testing.T) {
		task := createTestTask(t, domain.TaskTypePick, 5)
		require.NoError(t, repo.Insert(ctx, task))

		_, err := repo.TryClaim(ctx, task.TaskID, "picker-1", domain.WorkerTypeHuman)
		require.NoError(t, err)

		snapshot, err := repo.TryClaim(ctx, task.TaskID, "picker-2", domain.WorkerTypeHuman)
		assert.ErrorIs(t, err, domain.ErrClaimFailed)
		require.NotNil(t, snapshot)
		assert.Equal(t, "picker-1", snapshot.AssignedToID)
	})

	t.Run("Concurrent claimers produce one winner", func(t *testing.T) {
		task := createTestTask(t, domain.TaskTypePick, 5)
		require.NoError(t, repo.Insert(ctx, task))

		const claimers = 10
		var wg sync.WaitGroup
		errs := make([]error, claimers)

		for i := 0; i < claimers; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, errs[n] = repo.TryClaim(ctx, task.TaskID, "picker-"+string(rune('a'+n)), domain.WorkerTypeHuman)
			}(i)
		}
		wg.Wait()

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
			} else {
				assert.ErrorIs(t, err, domain.ErrClaimFailed)
			}
		}
		assert.Equal(t, 1, winners)
	})
}

func TestTaskRepository_Transition(t *testing.T) {
	repo, cleanup := setupTestRepository(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	t.Run("Full lifecycle", func(t *testing.T) {
		task := createTestTask(t, domain.TaskTypePick, 5)
		require.NoError(t, repo.Insert(ctx, task))

		_, err := repo.TryClaim(ctx, task.TaskID, "picker-1", domain.WorkerTypeHuman)
		require.NoError(t, err)

		started, err := repo.Transition(ctx, task.TaskID, func(t *domain.WorkTask) error {
			return t.Start("picker-1")
		})
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusInProgress, started.Status)

		completed, err := repo.Transition(ctx, task.TaskID, func(t *domain.WorkTask) error {
			return t.Complete("picker-1", "picked 5 units")
		})
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCompleted, completed.Status)
		assert.NotNil(t, completed.CompletedAt)
		assert.Contains(t, completed.Notes, "picked 5 units")
	})

	t.Run("Mutation error aborts without persisting", func(t *testing.T) {
		task := createTestTask(t, domain.TaskTypePick, 5)
		require.NoError(t, repo.Insert(ctx, task))

		_, err := repo.Transition(ctx, task.TaskID, func(t *domain.WorkTask) error {
			return t.Start("picker-1")
		})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		found, err := repo.FindByID(ctx, task.TaskID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusPending, found.Status)
		assert.Equal(t, int64(1), found.Version)
	})

	t.Run("Requeue clears assignment fields", func(t *testing.T) {
		task := createTestTask(t, domain.TaskTypePick, 5)
		require.NoError(t, repo.Insert(ctx, task))

		_, err := repo.TryClaim(ctx, task.TaskID, "picker-1", domain.WorkerTypeHuman)
		require.NoError(t, err)

		requeued, err := repo.Transition(ctx, task.TaskID, func(t *domain.WorkTask) error {
			return t.Requeue("picker-1", "end of shift")
		})
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusPending, requeued.Status)
		assert.Empty(t, requeued.AssignedToID)
		assert.Nil(t, requeued.AssignedAt)

		// The cleared fields must also be gone from the stored document so
		// a later claim can win it again.
		claimed, err := repo.TryClaim(ctx, task.TaskID, "picker-2", domain.WorkerTypeHuman)
		require.NoError(t, err)
		assert.Equal(t, "picker-2", claimed.AssignedToID)
	})
}

func TestTaskRepository_QueryOrdering(t *testing.T) {
	repo, cleanup := setupTestRepository(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	priorities := []int{7, 2, 5, 2, 9}
	for _, p := range priorities {
		require.NoError(t, repo.Insert(ctx, createTestTask(t, domain.TaskTypePick, p)))
	}

	t.Run("Sorted by priority then age then id", func(t *testing.T) {
		tasks, err := repo.Query(ctx, domain.TaskFilter{
			WarehouseID: warehouseID,
			Status:      domain.TaskStatusPending,
		})
		require.NoError(t, err)
		require.Len(t, tasks, len(priorities))

		for i := 1; i < len(tasks); i++ {
			prev, cur := tasks[i-1], tasks[i]
			assert.True(t, prev.Less(cur), "tasks out of order at index %d", i)
		}
		assert.Equal(t, 2, tasks[0].Priority)
		assert.Equal(t, 9, tasks[len(tasks)-1].Priority)
	})

	t.Run("Limit caps results", func(t *testing.T) {
		tasks, err := repo.Query(ctx, domain.TaskFilter{
			WarehouseID: warehouseID,
			Limit:       2,
		})
		require.NoError(t, err)
		assert.Len(t, tasks, 2)
	})

	t.Run("Filter by type", func(t *testing.T) {
		count := createTestTask(t, domain.TaskTypeCount, 5)
		count.Quantity = 0
		require.NoError(t, repo.Insert(ctx, count))

		tasks, err := repo.Query(ctx, domain.TaskFilter{
			WarehouseID: warehouseID,
			Type:        domain.TaskTypeCount,
		})
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, domain.TaskTypeCount, tasks[0].Type)
	})
}

func TestTaskRepository_FindBySourceRef(t *testing.T) {
	repo, cleanup := setupTestRepository(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	task := createTestTask(t, domain.TaskTypePick, 5)
	task.SourceRef = "order-1:line-1"
	require.NoError(t, repo.Insert(ctx, task))

	t.Run("Open task is found", func(t *testing.T) {
		found, err := repo.FindBySourceRef(ctx, warehouseID, "order-1:line-1")
		require.NoError(t, err)
		assert.Equal(t, task.TaskID, found.TaskID)
	})

	t.Run("Terminal task does not block the ref", func(t *testing.T) {
		_, err := repo.Transition(ctx, task.TaskID, func(t *domain.WorkTask) error {
			return t.Cancel("supervisor-1", "order amended")
		})
		require.NoError(t, err)

		_, err = repo.FindBySourceRef(ctx, warehouseID, "order-1:line-1")
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	})
}

func TestTaskRepository_FindStaleAssigned(t *testing.T) {
	repo, cleanup := setupTestRepository(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stale := createTestTask(t, domain.TaskTypePick, 5)
	fresh := createTestTask(t, domain.TaskTypePick, 5)
	started := createTestTask(t, domain.TaskTypePick, 5)

	for _, task := range []*domain.WorkTask{stale, fresh, started} {
		require.NoError(t, repo.Insert(ctx, task))
		_, err := repo.TryClaim(ctx, task.TaskID, "picker-1", domain.WorkerTypeHuman)
		require.NoError(t, err)
	}

	for _, taskID := range []string{stale.TaskID, started.TaskID} {
		_, err := repo.Transition(ctx, taskID, func(t *domain.WorkTask) error {
			past := time.Now().UTC().Add(-time.Hour)
			t.AssignedAt = &past
			return nil
		})
		require.NoError(t, err)
	}
	_, err := repo.Transition(ctx, started.TaskID, func(t *domain.WorkTask) error {
		return t.Start("picker-1")
	})
	require.NoError(t, err)

	found, err := repo.FindStaleAssigned(ctx, warehouseID, time.Now().UTC().Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, stale.TaskID, found[0].TaskID)
}

func TestTaskRepository_CountActiveForWorker(t *testing.T) {
	repo, cleanup := setupTestRepository(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	task := createTestTask(t, domain.TaskTypePick, 5)
	require.NoError(t, repo.Insert(ctx, task))

	count, err := repo.CountActiveForWorker(ctx, warehouseID, "picker-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = repo.TryClaim(ctx, task.TaskID, "picker-1", domain.WorkerTypeHuman)
	require.NoError(t, err)

	count, err = repo.CountActiveForWorker(ctx, warehouseID, "picker-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = repo.Transition(ctx, task.TaskID, func(t *domain.WorkTask) error {
		return t.Start("picker-1")
	})
	require.NoError(t, err)

	count, err = repo.CountActiveForWorker(ctx, warehouseID, "picker-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = repo.Transition(ctx, task.TaskID, func(t *domain.WorkTask) error {
		return t.Complete("picker-1", "done")
	})
	require.NoError(t, err)

	count, err = repo.CountActiveForWorker(ctx, warehouseID, "picker-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
