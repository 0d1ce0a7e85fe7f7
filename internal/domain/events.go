package domain

import "time"

// DomainEvent is implemented by all work task lifecycle events
type DomainEvent interface {
	EventType() string
}

// TaskPlannedEvent is raised when the planner creates a task
type TaskPlannedEvent struct {
	TaskID      string    `json:"taskId"`
	WarehouseID string    `json:"warehouseId"`
	TaskType    TaskType  `json:"taskType"`
	BinID       string    `json:"binId"`
	Priority    int       `json:"priority"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e *TaskPlannedEvent) EventType() string { return "wms.worktask.planned" }

// TaskClaimedEvent is raised when a worker wins the claim on a task
type TaskClaimedEvent struct {
	TaskID      string     `json:"taskId"`
	WarehouseID string     `json:"warehouseId"`
	WorkerID    string     `json:"workerId"`
	WorkerType  WorkerType `json:"workerType"`
	Timestamp   time.Time  `json:"timestamp"`
}

func (e *TaskClaimedEvent) EventType() string { return "wms.worktask.claimed" }

// TaskStartedEvent is raised when the assigned worker begins execution
type TaskStartedEvent struct {
	TaskID      string    `json:"taskId"`
	WarehouseID string    `json:"warehouseId"`
	WorkerID    string    `json:"workerId"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e *TaskStartedEvent) EventType() string { return "wms.worktask.started" }

// TaskCompletedEvent is raised when a task finishes successfully
type TaskCompletedEvent struct {
	TaskID      string    `json:"taskId"`
	WarehouseID string    `json:"warehouseId"`
	WorkerID    string    `json:"workerId"`
	TaskType    TaskType  `json:"taskType"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e *TaskCompletedEvent) EventType() string { return "wms.worktask.completed" }

// TaskCancelledEvent is raised when a task is cancelled
type TaskCancelledEvent struct {
	TaskID      string    `json:"taskId"`
	WarehouseID string    `json:"warehouseId"`
	ActorID     string    `json:"actorId"`
	Reason      string    `json:"reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e *TaskCancelledEvent) EventType() string { return "wms.worktask.cancelled" }

// TaskRequeuedEvent is raised when an assignment is returned to the queue
type TaskRequeuedEvent struct {
	TaskID         string    `json:"taskId"`
	WarehouseID    string    `json:"warehouseId"`
	PreviousWorker string    `json:"previousWorker,omitempty"`
	ActorID        string    `json:"actorId"`
	Timestamp      time.Time `json:"timestamp"`
}

func (e *TaskRequeuedEvent) EventType() string { return "wms.worktask.requeued" }
