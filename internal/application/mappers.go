package application

import (
	"github.com/wms-platform/warehouse-task-service/internal/domain"
)

// ToTaskDTO maps a work task aggregate to its API representation
func ToTaskDTO(task *domain.WorkTask) TaskDTO {
	return TaskDTO{
		TaskID:         task.TaskID,
		WarehouseID:    task.WarehouseID,
		Type:           string(task.Type),
		Status:         string(task.Status),
		Priority:       task.Priority,
		BinID:          task.BinID,
		ProductID:      task.ProductID,
		Quantity:       task.Quantity,
		AssignedToID:   task.AssignedToID,
		AssignedToType: string(task.AssignedToType),
		SourceRef:      task.SourceRef,
		Notes:          task.Notes,
		CreatedAt:      task.CreatedAt,
		AssignedAt:     task.AssignedAt,
		StartedAt:      task.StartedAt,
		CompletedAt:    task.CompletedAt,
		UpdatedAt:      task.UpdatedAt,
	}
}

// ToTaskDTOs maps a slice of tasks
func ToTaskDTOs(tasks []*domain.WorkTask) []TaskDTO {
	dtos := make([]TaskDTO, 0, len(tasks))
	for _, task := range tasks {
		dtos = append(dtos, ToTaskDTO(task))
	}
	return dtos
}

// ToPlanResultDTO maps a planner result
func ToPlanResultDTO(result *PlanResult) PlanResultDTO {
	dto := PlanResultDTO{
		Created: ToTaskDTOs(result.Created),
		Skipped: result.Skipped,
	}
	if dto.Skipped == nil {
		dto.Skipped = []SkippedLine{}
	}
	return dto
}
