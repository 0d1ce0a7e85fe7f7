package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/wms-platform/warehouse-task-service/internal/domain"
	"github.com/wms-platform/warehouse-task-service/internal/spatial"
	"github.com/wms-platform/warehouse-task-service/pkg/logging"
)

// PlannerConfig tunes priority computation
type PlannerConfig struct {
	// DuePressureHours raises urgency for orders due within the window
	DuePressureHours int
	// QueueReliefDepth relaxes urgency while the pending queue is shallow
	QueueReliefDepth int
}

// DefaultPlannerConfig returns the planner defaults
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		DuePressureHours: 4,
		QueueReliefDepth: 50,
	}
}

// TaskPlanner converts order lines into work tasks, resolving the best bin
// for each line from the warehouse graph and the current stock snapshot
type TaskPlanner struct {
	repo     domain.TaskRepository
	registry *spatial.Registry
	stock    *StockView
	config   PlannerConfig
	logger   *logging.Logger
}

// NewTaskPlanner creates a planner
func NewTaskPlanner(repo domain.TaskRepository, registry *spatial.Registry, stock *StockView, config PlannerConfig, logger *logging.Logger) *TaskPlanner {
	return &TaskPlanner{
		repo:     repo,
		registry: registry,
		stock:    stock,
		config:   config,
		logger:   logger.WithComponent("task-planner"),
	}
}

// PlanFromOrder creates one task per order line. Lines whose sourceRef
// already has a non-terminal task are skipped, never duplicated; lines that
// cannot be satisfied still produce a task at top priority so the backlog
// stays visible.
func (p *TaskPlanner) PlanFromOrder(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	graph, err := p.registry.Graph(req.WarehouseID)
	if err != nil {
		return nil, err
	}

	pendingDepth, err := p.pendingDepth(ctx, req.WarehouseID)
	if err != nil {
		return nil, err
	}

	result := &PlanResult{}

	for _, line := range req.Lines {
		sourceRef := fmt.Sprintf("%s:%s", req.OrderID, line.LineID)

		existing, err := p.repo.FindBySourceRef(ctx, req.WarehouseID, sourceRef)
		if err == nil {
			result.Skipped = append(result.Skipped, SkippedLine{
				LineID:         line.LineID,
				ExistingTaskID: existing.TaskID,
				Reason:         "line already has an open task",
			})
			continue
		}
		if !errors.Is(err, domain.ErrTaskNotFound) {
			// A failed lookup does not prove the line is unplanned;
			// creating a task here could duplicate one that exists
			return nil, fmt.Errorf("line %s: %w", line.LineID, err)
		}

		priority := p.priority(req.Priority, req.DueAt, pendingDepth)

		task, err := p.planLine(graph, req.WarehouseID, line, priority)
		if err != nil {
			return nil, fmt.Errorf("line %s: %w", line.LineID, err)
		}
		task.SourceRef = sourceRef

		if err := p.repo.Insert(ctx, task); err != nil {
			return nil, fmt.Errorf("line %s: %w", line.LineID, err)
		}

		p.logger.Info("Task planned",
			"taskId", task.TaskID,
			"warehouseId", task.WarehouseID,
			"type", task.Type,
			"binId", task.BinID,
			"priority", task.Priority,
			"sourceRef", task.SourceRef,
		)
		result.Created = append(result.Created, task)
	}

	return result, nil
}

func (p *TaskPlanner) pendingDepth(ctx context.Context, warehouseID string) (int, error) {
	pending, err := p.repo.Query(ctx, domain.TaskFilter{
		WarehouseID: warehouseID,
		Status:      domain.TaskStatusPending,
	})
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

// priority computes clamp(orderPriority + duePressure - queueRelief).
// Orders due inside the pressure window get one tier more urgent; a
// shallow pending queue relaxes urgency by one tier.
func (p *TaskPlanner) priority(orderPriority int, dueAt *time.Time, pendingDepth int) int {
	priority := orderPriority

	if dueAt != nil && time.Until(*dueAt) <= time.Duration(p.config.DuePressureHours)*time.Hour {
		priority--
	}
	if pendingDepth < p.config.QueueReliefDepth {
		priority++
	}

	if priority < domain.PriorityUrgent {
		priority = domain.PriorityUrgent
	}
	if priority > domain.PriorityLowest {
		priority = domain.PriorityLowest
	}
	return priority
}

func (p *TaskPlanner) planLine(graph *spatial.Graph, warehouseID string, line PlanLine, priority int) (*domain.WorkTask, error) {
	switch line.Type {
	case domain.TaskTypePick:
		return p.planPick(graph, warehouseID, line, priority)
	case domain.TaskTypePutaway, domain.TaskTypeReplenish:
		return p.planStow(graph, warehouseID, line, priority)
	case domain.TaskTypeCount:
		return p.planCount(graph, warehouseID, line, priority)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidTaskType, line.Type)
	}
}

// planPick picks the nearest bin holding sufficient stock, measured from
// the staging point. Insufficient stock anywhere becomes a flagged task at
// top priority rather than a dropped line.
func (p *TaskPlanner) planPick(graph *spatial.Graph, warehouseID string, line PlanLine, priority int) (*domain.WorkTask, error) {
	holdings := p.stock.BinsHolding(warehouseID, line.ProductID)

	binID, ok := nearestBin(graph, holdings, func(qty int) bool {
		return qty >= line.Quantity
	})
	if ok {
		return domain.NewWorkTask(warehouseID, domain.TaskTypePick, binID, line.ProductID, line.Quantity, priority)
	}

	// Stockout: keep the demand visible at top priority. Fall back to the
	// bin with the largest partial holding, or the nearest bin at all when
	// the product is absent from the snapshot.
	fallback, ok := richestBin(holdings)
	if !ok {
		ids := graph.BinIDs()
		if len(ids) == 0 {
			return nil, fmt.Errorf("%w: warehouse %s has no bins", spatial.ErrUnknownBin, warehouseID)
		}
		fallback = ids[0]
	}

	task, err := domain.NewWorkTask(warehouseID, domain.TaskTypePick, fallback, line.ProductID, line.Quantity, domain.PriorityUrgent)
	if err != nil {
		return nil, err
	}
	task.AppendNote(fmt.Sprintf("insufficient stock: need %d of %s, best available %d in %s",
		line.Quantity, line.ProductID, holdings[fallback], fallback))
	return task, nil
}

// planStow picks the nearest bin with enough free capacity
func (p *TaskPlanner) planStow(graph *spatial.Graph, warehouseID string, line PlanLine, priority int) (*domain.WorkTask, error) {
	free := make(map[string]int)
	for _, binID := range graph.BinIDs() {
		loc, err := graph.Locate(binID)
		if err != nil {
			return nil, err
		}
		if loc.Capacity <= 0 {
			continue
		}
		if avail := loc.Capacity - p.stock.UsedCapacity(warehouseID, binID); avail > 0 {
			free[binID] = avail
		}
	}

	binID, ok := nearestBin(graph, free, func(avail int) bool {
		return avail >= line.Quantity
	})
	if ok {
		return domain.NewWorkTask(warehouseID, line.Type, binID, line.ProductID, line.Quantity, priority)
	}

	fallback, ok := richestBin(free)
	if !ok {
		ids := graph.BinIDs()
		if len(ids) == 0 {
			return nil, fmt.Errorf("%w: warehouse %s has no bins", spatial.ErrUnknownBin, warehouseID)
		}
		fallback = ids[0]
	}

	task, err := domain.NewWorkTask(warehouseID, line.Type, fallback, line.ProductID, line.Quantity, domain.PriorityUrgent)
	if err != nil {
		return nil, err
	}
	task.AppendNote(fmt.Sprintf("no bin with free capacity for %d units, best available %d in %s",
		line.Quantity, free[fallback], fallback))
	return task, nil
}

// planCount targets the named bin
func (p *TaskPlanner) planCount(graph *spatial.Graph, warehouseID string, line PlanLine, priority int) (*domain.WorkTask, error) {
	if _, err := graph.Locate(line.BinID); err != nil {
		return nil, err
	}
	return domain.NewWorkTask(warehouseID, domain.TaskTypeCount, line.BinID, line.ProductID, line.Quantity, priority)
}

// nearestBin returns the candidate closest to the staging point among bins
// whose value satisfies the predicate. Distance ties resolve to the
// ascending bin id.
func nearestBin(graph *spatial.Graph, candidates map[string]int, satisfies func(int) bool) (string, bool) {
	ids := make([]string, 0, len(candidates))
	for binID, v := range candidates {
		if satisfies(v) {
			ids = append(ids, binID)
		}
	}
	sort.Strings(ids)

	best := ""
	bestDist := 0.0
	for _, binID := range ids {
		d, err := graph.DistanceFrom(graph.StagingPoint(), binID)
		if err != nil {
			continue
		}
		if best == "" || d < bestDist {
			best = binID
			bestDist = d
		}
	}
	return best, best != ""
}

// richestBin returns the bin with the largest value, ties by ascending id
func richestBin(candidates map[string]int) (string, bool) {
	ids := make([]string, 0, len(candidates))
	for binID := range candidates {
		ids = append(ids, binID)
	}
	sort.Strings(ids)

	best := ""
	bestQty := 0
	for _, binID := range ids {
		if qty := candidates[binID]; qty > bestQty {
			best = binID
			bestQty = qty
		}
	}
	return best, best != ""
}
