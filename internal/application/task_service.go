package application

import (
	"context"

	"github.com/wms-platform/warehouse-task-service/internal/domain"
	"github.com/wms-platform/warehouse-task-service/internal/spatial"
	"github.com/wms-platform/warehouse-task-service/pkg/events"
	"github.com/wms-platform/warehouse-task-service/pkg/kafka"
	"github.com/wms-platform/warehouse-task-service/pkg/logging"
	"github.com/wms-platform/warehouse-task-service/pkg/middleware"
)

// EventPublisher publishes CloudEvents to a topic. Satisfied by
// kafka.CircuitBreakerProducer.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event *events.TaskCloudEvent) error
}

// TaskService is the application facade. It coordinates the planner, the
// assignment engine, the route optimizer, and the spatial registry, and
// publishes lifecycle events after state changes commit. Event publishing
// is best effort: a broker outage never fails a request.
type TaskService struct {
	repo         domain.TaskRepository
	planner      *TaskPlanner
	engine       *AssignmentEngine
	optimizer    *RouteOptimizer
	registry     *spatial.Registry
	stock        *StockView
	publisher    EventPublisher
	eventFactory *events.EventFactory
	taskMetrics  *middleware.TaskMetrics
	logger       *logging.Logger
}

// TaskServiceDeps bundles the service dependencies. Publisher and
// TaskMetrics may be nil.
type TaskServiceDeps struct {
	Repo         domain.TaskRepository
	Planner      *TaskPlanner
	Engine       *AssignmentEngine
	Optimizer    *RouteOptimizer
	Registry     *spatial.Registry
	Stock        *StockView
	Publisher    EventPublisher
	EventFactory *events.EventFactory
	TaskMetrics  *middleware.TaskMetrics
	Logger       *logging.Logger
}

// NewTaskService creates the service facade
func NewTaskService(deps TaskServiceDeps) *TaskService {
	return &TaskService{
		repo:         deps.Repo,
		planner:      deps.Planner,
		engine:       deps.Engine,
		optimizer:    deps.Optimizer,
		registry:     deps.Registry,
		stock:        deps.Stock,
		publisher:    deps.Publisher,
		eventFactory: deps.EventFactory,
		taskMetrics:  deps.TaskMetrics,
		logger:       deps.Logger.WithComponent("task-service"),
	}
}

// ListTasks returns tasks matching the query in priority order
func (s *TaskService) ListTasks(ctx context.Context, query ListTasksQuery) ([]TaskDTO, error) {
	tasks, err := s.repo.Query(ctx, domain.TaskFilter{
		WarehouseID:  query.WarehouseID,
		AssignedToID: query.AssignedTo,
		Status:       domain.TaskStatus(query.Status),
		Type:         domain.TaskType(query.Type),
		Limit:        query.Limit,
	})
	if err != nil {
		return nil, err
	}
	return ToTaskDTOs(tasks), nil
}

// GetTask returns a single task by id
func (s *TaskService) GetTask(ctx context.Context, taskID string) (*TaskDTO, error) {
	task, err := s.repo.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	dto := ToTaskDTO(task)
	return &dto, nil
}

// Plan converts an order into work tasks
func (s *TaskService) Plan(ctx context.Context, req PlanRequest) (*PlanResultDTO, error) {
	result, err := s.planner.PlanFromOrder(ctx, req)
	if err != nil {
		return nil, err
	}

	for _, task := range result.Created {
		if s.taskMetrics != nil {
			s.taskMetrics.RecordTaskPlanned(task.WarehouseID, string(task.Type))
		}
		s.publishTaskEvents(ctx, task)
	}

	dto := ToPlanResultDTO(result)
	return &dto, nil
}

// NextTask claims the best available task for a worker. A nil Task in the
// result means the queue holds nothing for this worker.
func (s *TaskService) NextTask(ctx context.Context, req NextTaskRequest) (*NextTaskDTO, error) {
	claimed, err := s.engine.RequestNextTask(ctx, req)
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		return &NextTaskDTO{}, nil
	}

	s.publishTaskEvents(ctx, claimed)

	dto := ToTaskDTO(claimed)
	return &NextTaskDTO{Task: &dto}, nil
}

// AssignBatch claims a set of tasks for one worker, reporting each outcome
func (s *TaskService) AssignBatch(ctx context.Context, req AssignBatchRequest) (*AssignBatchResultDTO, error) {
	results, err := s.engine.AssignBatch(ctx, req)
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		if !r.Assigned {
			continue
		}
		if task, err := s.repo.FindByID(ctx, r.TaskID); err == nil {
			s.publishEvent(ctx, events.TypeTaskClaimed, task.WarehouseID, task.TaskID, map[string]any{
				"taskId":      task.TaskID,
				"warehouseId": task.WarehouseID,
				"workerId":    req.WorkerID,
				"workerType":  req.WorkerType,
			})
		}
	}
	return &AssignBatchResultDTO{Results: results}, nil
}

// StartTask marks an assigned task in progress; only the holder may start it
func (s *TaskService) StartTask(ctx context.Context, taskID string, req TransitionRequest) (*TaskDTO, error) {
	return s.transition(ctx, taskID, func(t *domain.WorkTask) error {
		return t.Start(req.WorkerID)
	})
}

// CompleteTask finishes an in-progress task; only the holder may complete it
func (s *TaskService) CompleteTask(ctx context.Context, taskID string, req TransitionRequest) (*TaskDTO, error) {
	dto, err := s.transition(ctx, taskID, func(t *domain.WorkTask) error {
		return t.Complete(req.WorkerID, req.Notes)
	})
	if err != nil {
		return nil, err
	}
	if s.taskMetrics != nil {
		s.taskMetrics.RecordTaskCompleted(dto.WarehouseID, dto.Type)
	}
	return dto, nil
}

// CancelTask cancels a task from any non-terminal state
func (s *TaskService) CancelTask(ctx context.Context, taskID string, req TransitionRequest) (*TaskDTO, error) {
	return s.transition(ctx, taskID, func(t *domain.WorkTask) error {
		return t.Cancel(req.WorkerID, req.Notes)
	})
}

// UnassignTask returns an assigned task to the pending queue
func (s *TaskService) UnassignTask(ctx context.Context, taskID string, req TransitionRequest) (*TaskDTO, error) {
	dto, err := s.transition(ctx, taskID, func(t *domain.WorkTask) error {
		return t.Requeue(req.WorkerID, req.Notes)
	})
	if err != nil {
		return nil, err
	}
	if s.taskMetrics != nil {
		s.taskMetrics.RecordTaskRequeued(dto.WarehouseID, "unassigned")
	}
	return dto, nil
}

func (s *TaskService) transition(ctx context.Context, taskID string, mutate func(*domain.WorkTask) error) (*TaskDTO, error) {
	task, err := s.repo.Transition(ctx, taskID, mutate)
	if err != nil {
		return nil, err
	}

	s.publishTaskEvents(ctx, task)

	dto := ToTaskDTO(task)
	return &dto, nil
}

// OptimizeRoute computes a deterministic visiting order for the stops
func (s *TaskService) OptimizeRoute(ctx context.Context, req OptimizeRouteRequest) (*Route, error) {
	graph, err := s.registry.Graph(req.WarehouseID)
	if err != nil {
		return nil, err
	}

	// A stop mapped in another warehouse is a cross-warehouse reference,
	// not an unknown bin
	stops := make([]RouteStop, 0, len(req.Stops))
	for _, stop := range req.Stops {
		if !graph.Contains(stop.BinID) {
			if _, err := s.registry.Locate(req.WarehouseID, stop.BinID); err != nil {
				return nil, err
			}
		}
		stops = append(stops, RouteStop{BinID: stop.BinID, TaskID: stop.TaskID})
	}

	route, err := s.optimizer.Optimize(graph, req.Start, stops)
	if err != nil {
		return nil, err
	}

	if s.taskMetrics != nil {
		s.taskMetrics.RecordRouteOptimized(req.WarehouseID, len(route.Legs), route.TotalDistance)
	}

	if s.publisher != nil && s.eventFactory != nil {
		event := s.eventFactory.CreateRouteEvent(ctx, req.WarehouseID, route)
		if err := s.publisher.PublishEvent(ctx, kafka.Topics.RoutingEvents, event); err != nil {
			s.logger.Warn("Route event publish failed",
				"warehouseId", req.WarehouseID,
				"error", err.Error(),
			)
		}
	}

	s.logger.Info("Route optimized",
		"warehouseId", req.WarehouseID,
		"stops", len(route.Legs),
		"totalDistance", route.TotalDistance,
	)
	return route, nil
}

// InstallMap validates a warehouse layout and atomically replaces the
// active graph for its warehouse
func (s *TaskService) InstallMap(ctx context.Context, m *spatial.WarehouseMap) error {
	graph, err := s.registry.Install(m)
	if err != nil {
		return err
	}

	if s.publisher != nil && s.eventFactory != nil {
		event := s.eventFactory.CreateEvent(ctx, events.TypeMapInstalled, "warehouse/"+m.WarehouseID+"/map", map[string]any{
			"warehouseId": m.WarehouseID,
			"name":        m.Name,
			"bins":        len(graph.BinIDs()),
		})
		event.WarehouseID = m.WarehouseID
		if err := s.publisher.PublishEvent(ctx, kafka.Topics.FacilityEvents, event); err != nil {
			s.logger.Warn("Map event publish failed",
				"warehouseId", m.WarehouseID,
				"error", err.Error(),
			)
		}
	}

	s.logger.Info("Warehouse map installed",
		"warehouseId", m.WarehouseID,
		"bins", len(graph.BinIDs()),
	)
	return nil
}

// InstallStock replaces the stock snapshot for a warehouse. Every bin in
// the snapshot must exist in the active map.
func (s *TaskService) InstallStock(ctx context.Context, req InstallStockRequest) error {
	graph, err := s.registry.Graph(req.WarehouseID)
	if err != nil {
		return err
	}
	for _, entry := range req.Entries {
		if !graph.Contains(entry.BinID) {
			if _, err := s.registry.Locate(req.WarehouseID, entry.BinID); err != nil {
				return err
			}
		}
	}

	s.stock.Install(req.WarehouseID, req.Entries)
	s.logger.Info("Stock snapshot installed",
		"warehouseId", req.WarehouseID,
		"entries", len(req.Entries),
	)
	return nil
}

// publishTaskEvents drains the aggregate's domain events and publishes
// them as CloudEvents. Failures are logged, never propagated.
func (s *TaskService) publishTaskEvents(ctx context.Context, task *domain.WorkTask) {
	if s.publisher == nil || s.eventFactory == nil {
		task.ClearDomainEvents()
		return
	}

	for _, domainEvent := range task.GetDomainEvents() {
		s.publishEvent(ctx, domainEvent.EventType(), task.WarehouseID, task.TaskID, domainEvent)
	}
	task.ClearDomainEvents()
}

func (s *TaskService) publishEvent(ctx context.Context, eventType, warehouseID, taskID string, data any) {
	if s.publisher == nil || s.eventFactory == nil {
		return
	}

	event := s.eventFactory.CreateTaskEvent(ctx, eventType, warehouseID, taskID, data)
	if err := s.publisher.PublishEvent(ctx, kafka.Topics.WorkTaskEvents, event); err != nil {
		s.logger.Warn("Task event publish failed",
			"taskId", taskID,
			"eventType", eventType,
			"error", err.Error(),
		)
	}
}
