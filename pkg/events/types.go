package events

import (
	"time"
)

// CloudEvents spec version used by all events
const SpecVersion = "1.0"

// Event type constants for work task lifecycle events
const (
	TypeTaskPlanned   = "wms.worktask.planned"
	TypeTaskClaimed   = "wms.worktask.claimed"
	TypeTaskStarted   = "wms.worktask.started"
	TypeTaskCompleted = "wms.worktask.completed"
	TypeTaskCancelled = "wms.worktask.cancelled"
	TypeTaskRequeued  = "wms.worktask.requeued"

	TypeRouteOptimized = "wms.routing.route-optimized"
	TypeMapInstalled   = "wms.facility.map-installed"
)

// TaskCloudEvent is a CloudEvents-compliant envelope with task extensions
type TaskCloudEvent struct {
	// Required CloudEvents attributes
	SpecVersion string    `json:"specversion"`
	Type        string    `json:"type"`
	Source      string    `json:"source"`
	ID          string    `json:"id"`
	Time        time.Time `json:"time"`

	// Optional CloudEvents attributes
	Subject         string `json:"subject,omitempty"`
	DataContentType string `json:"datacontenttype,omitempty"`

	// Extension attributes
	CorrelationID string `json:"wmscorrelationid,omitempty"`
	WarehouseID   string `json:"wmswarehouseid,omitempty"`
	TaskID        string `json:"wmstaskid,omitempty"`
	OrderID       string `json:"wmsorderid,omitempty"`

	// Event payload
	Data interface{} `json:"data,omitempty"`
}
