package application

import (
	"time"

	"github.com/wms-platform/warehouse-task-service/internal/domain"
	"github.com/wms-platform/warehouse-task-service/internal/spatial"
)

// PlanLine is one order line to convert into a work task
type PlanLine struct {
	LineID    string          `json:"lineId" binding:"required"`
	Type      domain.TaskType `json:"type" binding:"required,task_type"`
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	// BinID names the target bin for count lines
	BinID string `json:"binId"`
}

// PlanRequest asks the planner to create tasks for an order
type PlanRequest struct {
	WarehouseID string     `json:"-"`
	OrderID     string     `json:"orderId" binding:"required,order_id"`
	Priority    int        `json:"priority" binding:"gte=0,lte=9"`
	DueAt       *time.Time `json:"dueAt"`
	Lines       []PlanLine `json:"lines" binding:"required,min=1,dive"`
}

// PlanResult reports what the planner created and what it skipped
type PlanResult struct {
	Created []*domain.WorkTask
	Skipped []SkippedLine
}

// SkippedLine explains why a line produced no new task
type SkippedLine struct {
	LineID         string `json:"lineId"`
	ExistingTaskID string `json:"existingTaskId"`
	Reason         string `json:"reason"`
}

// NextTaskRequest asks for the best available task for a worker
type NextTaskRequest struct {
	WarehouseID  string            `json:"-"`
	WorkerID     string            `json:"workerId" binding:"required"`
	WorkerType   domain.WorkerType `json:"workerType" binding:"required,worker_type"`
	Capabilities []domain.TaskType `json:"capabilities" binding:"omitempty,dive,task_type"`
}

// AssignBatchRequest claims a set of tasks for one worker
type AssignBatchRequest struct {
	WarehouseID string            `json:"-"`
	TaskIDs     []string          `json:"taskIds" binding:"required,min=1"`
	WorkerID    string            `json:"workerId" binding:"required"`
	WorkerType  domain.WorkerType `json:"workerType" binding:"required,worker_type"`
}

// TransitionRequest carries the actor for start/complete/cancel/unassign
type TransitionRequest struct {
	WorkerID string `json:"workerId" binding:"required"`
	Notes    string `json:"notes" binding:"omitempty,safe_string"`
}

// OptimizeRouteRequest asks for an optimized visiting order
type OptimizeRouteRequest struct {
	WarehouseID string              `json:"-"`
	Start       *spatial.Coordinate `json:"start"`
	Stops       []OptimizeStop      `json:"stops" binding:"required,dive"`
}

// OptimizeStop is one requested route stop
type OptimizeStop struct {
	BinID  string `json:"binId" binding:"required,bin_id"`
	TaskID string `json:"taskId"`
}

// InstallStockRequest replaces a warehouse stock snapshot
type InstallStockRequest struct {
	WarehouseID string       `json:"-"`
	Entries     []StockEntry `json:"entries" binding:"required,dive"`
}

// ListTasksQuery filters the task listing
type ListTasksQuery struct {
	WarehouseID string
	AssignedTo  string `form:"assignedTo"`
	Status      string `form:"status"`
	Type        string `form:"type"`
	Limit       int    `form:"limit,default=100" binding:"gte=0,lte=1000"`
}
