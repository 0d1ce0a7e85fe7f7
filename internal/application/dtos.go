package application

import (
	"time"
)

// TaskDTO is the API representation of a work task
type TaskDTO struct {
	TaskID         string     `json:"taskId"`
	WarehouseID    string     `json:"warehouseId"`
	Type           string     `json:"type"`
	Status         string     `json:"status"`
	Priority       int        `json:"priority"`
	BinID          string     `json:"binId"`
	ProductID      string     `json:"productId,omitempty"`
	Quantity       int        `json:"quantity"`
	AssignedToID   string     `json:"assignedToId,omitempty"`
	AssignedToType string     `json:"assignedToType,omitempty"`
	SourceRef      string     `json:"sourceRef,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	AssignedAt     *time.Time `json:"assignedAt,omitempty"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// PlanResultDTO reports planner output
type PlanResultDTO struct {
	Created []TaskDTO     `json:"created"`
	Skipped []SkippedLine `json:"skipped"`
}

// NextTaskDTO wraps the assignment result; Task is null when the queue
// has nothing for the worker
type NextTaskDTO struct {
	Task *TaskDTO `json:"task"`
}

// AssignResultDTO reports the outcome of one claim in a batch
type AssignResultDTO struct {
	TaskID   string `json:"taskId"`
	Assigned bool   `json:"assigned"`
	Reason   string `json:"reason,omitempty"`
}

// AssignBatchResultDTO reports a batch assignment
type AssignBatchResultDTO struct {
	Results []AssignResultDTO `json:"results"`
}
