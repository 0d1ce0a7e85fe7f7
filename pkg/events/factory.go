package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wms-platform/warehouse-task-service/pkg/logging"
)

// EventFactory creates CloudEvents with consistent source and correlation data
type EventFactory struct {
	source string
}

// NewEventFactory creates a factory for the given event source
func NewEventFactory(serviceName string) *EventFactory {
	return &EventFactory{
		source: "wms/" + serviceName,
	}
}

// CreateEvent creates a new TaskCloudEvent, extracting the correlation ID
// from the context when present
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data interface{}) *TaskCloudEvent {
	event := &TaskCloudEvent{
		SpecVersion:     SpecVersion,
		Type:            eventType,
		Source:          f.source,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC(),
		Subject:         subject,
		DataContentType: "application/json",
		Data:            data,
	}

	if v := ctx.Value(logging.CorrelationIDKey); v != nil {
		if correlationID, ok := v.(string); ok {
			event.CorrelationID = correlationID
		}
	}

	return event
}

// CreateTaskEvent creates a task lifecycle event with task extensions set
func (f *EventFactory) CreateTaskEvent(ctx context.Context, eventType, warehouseID, taskID string, data interface{}) *TaskCloudEvent {
	event := f.CreateEvent(ctx, eventType, "work-task/"+taskID, data)
	event.WarehouseID = warehouseID
	event.TaskID = taskID
	return event
}

// CreateRouteEvent creates a route optimization event
func (f *EventFactory) CreateRouteEvent(ctx context.Context, warehouseID string, data interface{}) *TaskCloudEvent {
	event := f.CreateEvent(ctx, TypeRouteOptimized, "warehouse/"+warehouseID+"/route", data)
	event.WarehouseID = warehouseID
	return event
}
