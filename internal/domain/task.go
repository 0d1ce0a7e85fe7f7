package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskType classifies the work a task asks for
type TaskType string

const (
	TaskTypePick      TaskType = "pick"
	TaskTypePutaway   TaskType = "putaway"
	TaskTypeReplenish TaskType = "replenish"
	TaskTypeCount     TaskType = "count"
)

// ValidTaskType reports whether t is a known task type
func ValidTaskType(t TaskType) bool {
	switch t {
	case TaskTypePick, TaskTypePutaway, TaskTypeReplenish, TaskTypeCount:
		return true
	}
	return false
}

// TaskStatus is the lifecycle state of a work task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusAssigned   TaskStatus = "assigned"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// WorkerType distinguishes human associates from robotic units
type WorkerType string

const (
	WorkerTypeHuman WorkerType = "human"
	WorkerTypeRobot WorkerType = "robot"
)

// ValidWorkerType reports whether w is a known worker type
func ValidWorkerType(w WorkerType) bool {
	return w == WorkerTypeHuman || w == WorkerTypeRobot
}

// Priority bounds: 0 is most urgent, 9 least
const (
	PriorityUrgent = 0
	PriorityLowest = 9
)

// Domain errors
var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrDuplicateTask     = errors.New("task already exists")
	ErrClaimFailed       = errors.New("task claim failed: no longer pending")
	ErrInvalidTransition = errors.New("invalid task status transition")
	ErrNotTaskHolder     = errors.New("worker does not hold this task")
	ErrWorkerBusy        = errors.New("worker already holds an active task")
	ErrInvalidTaskType   = errors.New("invalid task type")
	ErrInvalidWorkerType = errors.New("invalid worker type")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// validTransitions is the complete lifecycle table. Any pair not listed is
// invalid, including a transition to the current status.
var validTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusAssigned, TaskStatusCancelled},
	TaskStatusAssigned:   {TaskStatusInProgress, TaskStatusPending, TaskStatusCancelled},
	TaskStatusInProgress: {TaskStatusCompleted, TaskStatusCancelled},
	TaskStatusCompleted:  {},
	TaskStatusCancelled:  {},
}

// CanTransition reports whether the lifecycle table allows from -> to
func CanTransition(from, to TaskStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// WorkTask is the aggregate root for a unit of warehouse work
type WorkTask struct {
	TaskID         string     `bson:"taskId" json:"taskId"`
	WarehouseID    string     `bson:"warehouseId" json:"warehouseId"`
	Type           TaskType   `bson:"type" json:"type"`
	Status         TaskStatus `bson:"status" json:"status"`
	Priority       int        `bson:"priority" json:"priority"`
	BinID          string     `bson:"binId" json:"binId"`
	ProductID      string     `bson:"productId,omitempty" json:"productId,omitempty"`
	Quantity       int        `bson:"quantity" json:"quantity"`
	AssignedToID   string     `bson:"assignedToId,omitempty" json:"assignedToId,omitempty"`
	AssignedToType WorkerType `bson:"assignedToType,omitempty" json:"assignedToType,omitempty"`
	SourceRef      string     `bson:"sourceRef,omitempty" json:"sourceRef,omitempty"`
	Notes          string     `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt      time.Time  `bson:"createdAt" json:"createdAt"`
	AssignedAt     *time.Time `bson:"assignedAt,omitempty" json:"assignedAt,omitempty"`
	StartedAt      *time.Time `bson:"startedAt,omitempty" json:"startedAt,omitempty"`
	CompletedAt    *time.Time `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	UpdatedAt      time.Time  `bson:"updatedAt" json:"updatedAt"`
	Version        int64      `bson:"version" json:"version"`

	domainEvents []DomainEvent `bson:"-" json:"-"`
}

// NewWorkTask creates a pending work task
func NewWorkTask(warehouseID string, taskType TaskType, binID, productID string, quantity, priority int) (*WorkTask, error) {
	if !ValidTaskType(taskType) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTaskType, taskType)
	}
	if quantity <= 0 && taskType != TaskTypeCount {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}
	if priority < PriorityUrgent {
		priority = PriorityUrgent
	}
	if priority > PriorityLowest {
		priority = PriorityLowest
	}

	now := time.Now().UTC()
	task := &WorkTask{
		TaskID:      uuid.New().String(),
		WarehouseID: warehouseID,
		Type:        taskType,
		Status:      TaskStatusPending,
		Priority:    priority,
		BinID:       binID,
		ProductID:   productID,
		Quantity:    quantity,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}

	task.AddDomainEvent(&TaskPlannedEvent{
		TaskID:      task.TaskID,
		WarehouseID: warehouseID,
		TaskType:    taskType,
		BinID:       binID,
		Priority:    priority,
		Timestamp:   now,
	})

	return task, nil
}

// NormalizeForInsert forces a task into its initial stored shape: an id is
// assigned when absent and the status is reset to pending with the
// assignment cleared, regardless of what the caller set. Repositories call
// this on Insert so a stored task always enters the lifecycle at pending.
func (t *WorkTask) NormalizeForInsert() {
	if t.TaskID == "" {
		t.TaskID = uuid.New().String()
	}
	t.Status = TaskStatusPending
	t.AssignedToID = ""
	t.AssignedToType = ""
	t.AssignedAt = nil
	t.StartedAt = nil
	t.CompletedAt = nil
	if t.CreatedAt.IsZero() {
		now := time.Now().UTC()
		t.CreatedAt = now
		t.UpdatedAt = now
	}
	if t.Version < 1 {
		t.Version = 1
	}
}

// transition applies a lifecycle move, enforcing the transition table
func (t *WorkTask) transition(to TaskStatus) error {
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}
	t.Status = to
	t.UpdatedAt = time.Now().UTC()
	t.Version++
	return nil
}

// Claim moves a pending task to assigned for the given worker
func (t *WorkTask) Claim(workerID string, workerType WorkerType) error {
	if !ValidWorkerType(workerType) {
		return fmt.Errorf("%w: %s", ErrInvalidWorkerType, workerType)
	}
	if t.Status != TaskStatusPending {
		return fmt.Errorf("%w: task %s is %s", ErrClaimFailed, t.TaskID, t.Status)
	}
	if err := t.transition(TaskStatusAssigned); err != nil {
		return err
	}

	now := t.UpdatedAt
	t.AssignedToID = workerID
	t.AssignedToType = workerType
	t.AssignedAt = &now

	t.AddDomainEvent(&TaskClaimedEvent{
		TaskID:      t.TaskID,
		WarehouseID: t.WarehouseID,
		WorkerID:    workerID,
		WorkerType:  workerType,
		Timestamp:   now,
	})
	return nil
}

// Start moves an assigned task to in_progress. Only the assigned worker
// may start the task.
func (t *WorkTask) Start(workerID string) error {
	if t.Status == TaskStatusAssigned && t.AssignedToID != workerID {
		return fmt.Errorf("%w: task %s is held by %s", ErrNotTaskHolder, t.TaskID, t.AssignedToID)
	}
	if err := t.transition(TaskStatusInProgress); err != nil {
		return err
	}

	now := t.UpdatedAt
	t.StartedAt = &now

	t.AddDomainEvent(&TaskStartedEvent{
		TaskID:      t.TaskID,
		WarehouseID: t.WarehouseID,
		WorkerID:    workerID,
		Timestamp:   now,
	})
	return nil
}

// Complete moves an in_progress task to completed. Only the assigned
// worker may complete the task.
func (t *WorkTask) Complete(workerID, outcome string) error {
	if t.Status == TaskStatusInProgress && t.AssignedToID != workerID {
		return fmt.Errorf("%w: task %s is held by %s", ErrNotTaskHolder, t.TaskID, t.AssignedToID)
	}
	if err := t.transition(TaskStatusCompleted); err != nil {
		return err
	}

	now := t.UpdatedAt
	t.CompletedAt = &now
	if outcome != "" {
		t.AppendNote(outcome)
	}

	t.AddDomainEvent(&TaskCompletedEvent{
		TaskID:      t.TaskID,
		WarehouseID: t.WarehouseID,
		WorkerID:    workerID,
		TaskType:    t.Type,
		Timestamp:   now,
	})
	return nil
}

// Cancel moves any non-terminal task to cancelled. Cancellation is open
// to any authorized actor, not only the task holder.
func (t *WorkTask) Cancel(actorID, reason string) error {
	if err := t.transition(TaskStatusCancelled); err != nil {
		return err
	}

	if reason != "" {
		t.AppendNote("cancelled: " + reason)
	}

	t.AddDomainEvent(&TaskCancelledEvent{
		TaskID:      t.TaskID,
		WarehouseID: t.WarehouseID,
		ActorID:     actorID,
		Reason:      reason,
		Timestamp:   t.UpdatedAt,
	})
	return nil
}

// Requeue returns an assigned task to the pending queue, clearing the
// assignment. Used by the stale sweep and by explicit unassign.
func (t *WorkTask) Requeue(actorID, note string) error {
	previousWorker := t.AssignedToID
	if err := t.transition(TaskStatusPending); err != nil {
		return err
	}

	t.AssignedToID = ""
	t.AssignedToType = ""
	t.AssignedAt = nil
	if note != "" {
		t.AppendNote(note)
	}

	t.AddDomainEvent(&TaskRequeuedEvent{
		TaskID:         t.TaskID,
		WarehouseID:    t.WarehouseID,
		PreviousWorker: previousWorker,
		ActorID:        actorID,
		Timestamp:      t.UpdatedAt,
	})
	return nil
}

// IsTerminal reports whether the task is in a terminal state
func (t *WorkTask) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusCancelled
}

// IsActive reports whether the task currently occupies a worker
func (t *WorkTask) IsActive() bool {
	return t.Status == TaskStatusAssigned || t.Status == TaskStatusInProgress
}

// AppendNote appends a line to the task notes
func (t *WorkTask) AppendNote(note string) {
	if t.Notes == "" {
		t.Notes = note
		return
	}
	t.Notes = t.Notes + "\n" + note
}

// Clone returns a deep copy of the task without its pending domain events
func (t *WorkTask) Clone() *WorkTask {
	copied := *t
	copied.domainEvents = nil
	if t.AssignedAt != nil {
		at := *t.AssignedAt
		copied.AssignedAt = &at
	}
	if t.StartedAt != nil {
		st := *t.StartedAt
		copied.StartedAt = &st
	}
	if t.CompletedAt != nil {
		ct := *t.CompletedAt
		copied.CompletedAt = &ct
	}
	return &copied
}

// AddDomainEvent records a domain event on the aggregate
func (t *WorkTask) AddDomainEvent(event DomainEvent) {
	t.domainEvents = append(t.domainEvents, event)
}

// GetDomainEvents returns the recorded domain events
func (t *WorkTask) GetDomainEvents() []DomainEvent {
	return t.domainEvents
}

// ClearDomainEvents removes all recorded domain events
func (t *WorkTask) ClearDomainEvents() {
	t.domainEvents = nil
}

// Less orders tasks by (priority asc, createdAt asc, taskId asc). This is
// the single total order used for queue listings and candidate selection.
func (t *WorkTask) Less(other *WorkTask) bool {
	if t.Priority != other.Priority {
		return t.Priority < other.Priority
	}
	if !t.CreatedAt.Equal(other.CreatedAt) {
		return t.CreatedAt.Before(other.CreatedAt)
	}
	return t.TaskID < other.TaskID
}
