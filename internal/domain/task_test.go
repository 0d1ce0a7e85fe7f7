package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTask(t *testing.T) *WorkTask {
	t.Helper()
	task, err := NewWorkTask("WH-001", TaskTypePick, "bin-1", "SKU-100", 5, 3)
	require.NoError(t, err)
	task.ClearDomainEvents()
	return task
}

func TestNewWorkTask(t *testing.T) {
	tests := []struct {
		name     string
		taskType TaskType
		quantity int
		priority int
		wantErr  error
		wantPrio int
	}{
		{name: "valid pick", taskType: TaskTypePick, quantity: 5, priority: 3, wantPrio: 3},
		{name: "count allows zero quantity", taskType: TaskTypeCount, quantity: 0, priority: 5, wantPrio: 5},
		{name: "priority clamped low", taskType: TaskTypePick, quantity: 1, priority: -4, wantPrio: 0},
		{name: "priority clamped high", taskType: TaskTypePutaway, quantity: 1, priority: 42, wantPrio: 9},
		{name: "unknown type", taskType: TaskType("teleport"), quantity: 1, priority: 3, wantErr: ErrInvalidTaskType},
		{name: "zero quantity pick", taskType: TaskTypePick, quantity: 0, priority: 3, wantErr: ErrInvalidQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := NewWorkTask("WH-001", tt.taskType, "bin-1", "SKU-100", tt.quantity, tt.priority)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, task.TaskID)
			assert.Equal(t, TaskStatusPending, task.Status)
			assert.Equal(t, tt.wantPrio, task.Priority)
			assert.Equal(t, int64(1), task.Version)

			events := task.GetDomainEvents()
			require.Len(t, events, 1)
			assert.Equal(t, "wms.worktask.planned", events[0].EventType())
		})
	}
}

func TestClaim(t *testing.T) {
	task := newTestTask(t)

	err := task.Claim("worker-1", WorkerTypeHuman)
	require.NoError(t, err)

	assert.Equal(t, TaskStatusAssigned, task.Status)
	assert.Equal(t, "worker-1", task.AssignedToID)
	assert.Equal(t, WorkerTypeHuman, task.AssignedToType)
	require.NotNil(t, task.AssignedAt)
	assert.Equal(t, int64(2), task.Version)

	events := task.GetDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "wms.worktask.claimed", events[0].EventType())

	// Claiming a non-pending task fails
	err = task.Claim("worker-2", WorkerTypeHuman)
	assert.ErrorIs(t, err, ErrClaimFailed)
	assert.Equal(t, "worker-1", task.AssignedToID)
}

func TestClaimRejectsInvalidWorkerType(t *testing.T) {
	task := newTestTask(t)
	err := task.Claim("worker-1", WorkerType("drone"))
	assert.ErrorIs(t, err, ErrInvalidWorkerType)
	assert.Equal(t, TaskStatusPending, task.Status)
}

func TestStartRequiresHolder(t *testing.T) {
	task := newTestTask(t)
	require.NoError(t, task.Claim("worker-1", WorkerTypeHuman))

	err := task.Start("worker-2")
	assert.ErrorIs(t, err, ErrNotTaskHolder)
	assert.Equal(t, TaskStatusAssigned, task.Status)

	require.NoError(t, task.Start("worker-1"))
	assert.Equal(t, TaskStatusInProgress, task.Status)
	require.NotNil(t, task.StartedAt)
}

func TestCompleteRequiresHolder(t *testing.T) {
	task := newTestTask(t)
	require.NoError(t, task.Claim("worker-1", WorkerTypeHuman))
	require.NoError(t, task.Start("worker-1"))

	err := task.Complete("worker-2", "")
	assert.ErrorIs(t, err, ErrNotTaskHolder)

	require.NoError(t, task.Complete("worker-1", "picked 5 of 5"))
	assert.Equal(t, TaskStatusCompleted, task.Status)
	require.NotNil(t, task.CompletedAt)
	assert.Contains(t, task.Notes, "picked 5 of 5")
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name  string
		from  TaskStatus
		to    TaskStatus
		valid bool
	}{
		{name: "pending to assigned", from: TaskStatusPending, to: TaskStatusAssigned, valid: true},
		{name: "pending to cancelled", from: TaskStatusPending, to: TaskStatusCancelled, valid: true},
		{name: "assigned to in_progress", from: TaskStatusAssigned, to: TaskStatusInProgress, valid: true},
		{name: "assigned to pending", from: TaskStatusAssigned, to: TaskStatusPending, valid: true},
		{name: "assigned to cancelled", from: TaskStatusAssigned, to: TaskStatusCancelled, valid: true},
		{name: "in_progress to completed", from: TaskStatusInProgress, to: TaskStatusCompleted, valid: true},
		{name: "in_progress to cancelled", from: TaskStatusInProgress, to: TaskStatusCancelled, valid: true},
		{name: "pending to in_progress skips claim", from: TaskStatusPending, to: TaskStatusInProgress, valid: false},
		{name: "pending to completed", from: TaskStatusPending, to: TaskStatusCompleted, valid: false},
		{name: "in_progress to pending", from: TaskStatusInProgress, to: TaskStatusPending, valid: false},
		{name: "completed is terminal", from: TaskStatusCompleted, to: TaskStatusPending, valid: false},
		{name: "cancelled is terminal", from: TaskStatusCancelled, to: TaskStatusAssigned, valid: false},
		{name: "no self transition pending", from: TaskStatusPending, to: TaskStatusPending, valid: false},
		{name: "no self transition assigned", from: TaskStatusAssigned, to: TaskStatusAssigned, valid: false},
		{name: "no self transition completed", from: TaskStatusCompleted, to: TaskStatusCompleted, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, CanTransition(tt.from, tt.to))
		})
	}
}

func TestCancelFromAnyNonTerminal(t *testing.T) {
	pending := newTestTask(t)
	require.NoError(t, pending.Cancel("dispatcher-1", "order cancelled"))
	assert.Equal(t, TaskStatusCancelled, pending.Status)
	assert.Contains(t, pending.Notes, "order cancelled")

	assigned := newTestTask(t)
	require.NoError(t, assigned.Claim("worker-1", WorkerTypeRobot))
	// Cancel is not restricted to the holder
	require.NoError(t, assigned.Cancel("dispatcher-1", ""))
	assert.Equal(t, TaskStatusCancelled, assigned.Status)

	done := newTestTask(t)
	require.NoError(t, done.Claim("worker-1", WorkerTypeHuman))
	require.NoError(t, done.Start("worker-1"))
	require.NoError(t, done.Complete("worker-1", ""))
	err := done.Cancel("dispatcher-1", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRequeueClearsAssignment(t *testing.T) {
	task := newTestTask(t)
	require.NoError(t, task.Claim("worker-1", WorkerTypeHuman))
	task.ClearDomainEvents()

	require.NoError(t, task.Requeue("system:sweeper", "assignment timed out"))

	assert.Equal(t, TaskStatusPending, task.Status)
	assert.Empty(t, task.AssignedToID)
	assert.Empty(t, string(task.AssignedToType))
	assert.Nil(t, task.AssignedAt)
	assert.Contains(t, task.Notes, "assignment timed out")

	events := task.GetDomainEvents()
	require.Len(t, events, 1)
	requeued, ok := events[0].(*TaskRequeuedEvent)
	require.True(t, ok)
	assert.Equal(t, "worker-1", requeued.PreviousWorker)

	// Requeue only applies to assigned tasks
	err := task.Requeue("system:sweeper", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestLessTotalOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mk := func(id string, priority int, created time.Time) *WorkTask {
		return &WorkTask{TaskID: id, Priority: priority, CreatedAt: created}
	}

	urgent := mk("c", 0, base.Add(time.Hour))
	older := mk("b", 3, base)
	newer := mk("a", 3, base.Add(time.Minute))
	tieA := mk("a", 3, base)
	tieB := mk("b", 3, base)

	assert.True(t, urgent.Less(older), "lower priority value wins")
	assert.True(t, older.Less(newer), "earlier createdAt wins within priority")
	assert.True(t, tieA.Less(tieB), "taskId breaks exact ties")
	assert.False(t, tieB.Less(tieA))
}

func TestCloneIsDeep(t *testing.T) {
	task := newTestTask(t)
	require.NoError(t, task.Claim("worker-1", WorkerTypeHuman))

	clone := task.Clone()
	require.NotNil(t, clone.AssignedAt)

	*clone.AssignedAt = clone.AssignedAt.Add(time.Hour)
	clone.Notes = "mutated"
	clone.AssignedToID = "worker-9"

	assert.NotEqual(t, task.AssignedAt, clone.AssignedAt)
	assert.Equal(t, "worker-1", task.AssignedToID)
	assert.Empty(t, clone.GetDomainEvents())
}
