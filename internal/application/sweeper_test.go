package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wms-platform/warehouse-task-service/internal/domain"
	"github.com/wms-platform/warehouse-task-service/internal/infrastructure/memory"
)

func newTestSweeper(t *testing.T, config SweeperConfig) (*Sweeper, *memory.TaskStore) {
	t.Helper()
	store := memory.NewTaskStore()
	return NewSweeper(store, testRegistry(), config, testLogger()), store
}

func backdateAssignment(t *testing.T, store *memory.TaskStore, taskID string, age time.Duration) {
	t.Helper()
	_, err := store.Transition(context.Background(), taskID, func(task *domain.WorkTask) error {
		past := time.Now().Add(-age)
		task.AssignedAt = &past
		return nil
	})
	require.NoError(t, err)
}

func TestSweepRequeuesStaleAssignments(t *testing.T) {
	sweeper, store := newTestSweeper(t, SweeperConfig{
		StaleTimeout:  15 * time.Minute,
		SweepInterval: time.Minute,
	})

	stale := seedPendingTask(t, store, domain.TaskTypePick, 5)
	fresh := seedPendingTask(t, store, domain.TaskTypePick, 5)

	for _, task := range []*domain.WorkTask{stale, fresh} {
		_, err := store.TryClaim(context.Background(), task.TaskID, "picker-1", domain.WorkerTypeHuman)
		require.NoError(t, err)
	}
	backdateAssignment(t, store, stale.TaskID, 20*time.Minute)

	requeued, err := sweeper.Sweep(context.Background(), testWarehouseID)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)

	swept, err := store.FindByID(context.Background(), stale.TaskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, swept.Status)
	assert.Empty(t, swept.AssignedToID)
	assert.Nil(t, swept.AssignedAt)
	assert.Contains(t, swept.Notes, "assignment expired")

	kept, err := store.FindByID(context.Background(), fresh.TaskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusAssigned, kept.Status)
	assert.Equal(t, "picker-1", kept.AssignedToID)
}

func TestSweepSparesStartedTasks(t *testing.T) {
	sweeper, store := newTestSweeper(t, SweeperConfig{
		StaleTimeout:  15 * time.Minute,
		SweepInterval: time.Minute,
	})

	started := seedPendingTask(t, store, domain.TaskTypePick, 5)
	_, err := store.TryClaim(context.Background(), started.TaskID, "picker-1", domain.WorkerTypeHuman)
	require.NoError(t, err)
	backdateAssignment(t, store, started.TaskID, 20*time.Minute)

	_, err = store.Transition(context.Background(), started.TaskID, func(task *domain.WorkTask) error {
		return task.Start("picker-1")
	})
	require.NoError(t, err)

	requeued, err := sweeper.Sweep(context.Background(), testWarehouseID)
	require.NoError(t, err)
	assert.Equal(t, 0, requeued)

	task, err := store.FindByID(context.Background(), started.TaskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusInProgress, task.Status)
}

func TestSweepRecordsMetricHook(t *testing.T) {
	sweeper, store := newTestSweeper(t, SweeperConfig{
		StaleTimeout:  15 * time.Minute,
		SweepInterval: time.Minute,
	})

	hooked := 0
	sweeper.SetMetricHook(func(warehouseID string) {
		assert.Equal(t, testWarehouseID, warehouseID)
		hooked++
	})

	for i := 0; i < 3; i++ {
		task := seedPendingTask(t, store, domain.TaskTypePick, 5)
		_, err := store.TryClaim(context.Background(), task.TaskID, "picker-1", domain.WorkerTypeHuman)
		require.NoError(t, err)
		backdateAssignment(t, store, task.TaskID, time.Hour)
	}

	requeued, err := sweeper.Sweep(context.Background(), testWarehouseID)
	require.NoError(t, err)
	assert.Equal(t, 3, requeued)
	assert.Equal(t, 3, hooked)
}

func TestSweeperStartStop(t *testing.T) {
	sweeper, store := newTestSweeper(t, SweeperConfig{
		StaleTimeout:  time.Minute,
		SweepInterval: 10 * time.Millisecond,
	})

	task := seedPendingTask(t, store, domain.TaskTypePick, 5)
	_, err := store.TryClaim(context.Background(), task.TaskID, "picker-1", domain.WorkerTypeHuman)
	require.NoError(t, err)
	backdateAssignment(t, store, task.TaskID, time.Hour)

	sweeper.Start()
	defer sweeper.Stop()

	require.Eventually(t, func() bool {
		swept, err := store.FindByID(context.Background(), task.TaskID)
		return err == nil && swept.Status == domain.TaskStatusPending
	}, 2*time.Second, 10*time.Millisecond)
}
