package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/wms-platform/warehouse-task-service/internal/domain"
)

const shardCount = 16

type shard struct {
	mu    sync.Mutex
	tasks map[string]*domain.WorkTask
}

// TaskStore is an in-process task repository. Tasks are partitioned into
// shards keyed by task id; every claim and transition happens under the
// owning shard's lock, which is the serialization point for the
// compare-and-swap. All returned aggregates are copies.
type TaskStore struct {
	shards [shardCount]*shard

	indexMu     sync.RWMutex
	byWarehouse map[string]map[string]struct{}
}

// NewTaskStore creates an empty TaskStore
func NewTaskStore() *TaskStore {
	s := &TaskStore{
		byWarehouse: make(map[string]map[string]struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &shard{tasks: make(map[string]*domain.WorkTask)}
	}
	return s
}

func (s *TaskStore) shardFor(taskID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(taskID))
	return s.shards[h.Sum32()%shardCount]
}

func (s *TaskStore) indexTask(warehouseID, taskID string) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	set, ok := s.byWarehouse[warehouseID]
	if !ok {
		set = make(map[string]struct{})
		s.byWarehouse[warehouseID] = set
	}
	set[taskID] = struct{}{}
}

func (s *TaskStore) warehouseTaskIDs(warehouseID string) []string {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()

	set := s.byWarehouse[warehouseID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// Insert stores a new task. The id is assigned when absent and the status
// is forced to pending.
func (s *TaskStore) Insert(ctx context.Context, task *domain.WorkTask) error {
	task.NormalizeForInsert()

	sh := s.shardFor(task.TaskID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, exists := sh.tasks[task.TaskID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateTask, task.TaskID)
	}

	sh.tasks[task.TaskID] = task.Clone()
	s.indexTask(task.WarehouseID, task.TaskID)
	return nil
}

// FindByID returns a copy of the task
func (s *TaskStore) FindByID(ctx context.Context, taskID string) (*domain.WorkTask, error) {
	sh := s.shardFor(taskID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	task, ok := sh.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
	}
	return task.Clone(), nil
}

// TryClaim atomically moves a pending task to assigned. Exactly one
// concurrent caller can win: the check and the swap both happen under
// the shard lock.
func (s *TaskStore) TryClaim(ctx context.Context, taskID, workerID string, workerType domain.WorkerType) (*domain.WorkTask, error) {
	sh := s.shardFor(taskID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	current, ok := sh.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
	}

	working := current.Clone()
	if err := working.Claim(workerID, workerType); err != nil {
		// Lost race or invalid worker: hand back the current snapshot
		return current.Clone(), err
	}

	sh.tasks[taskID] = working.Clone()
	return working, nil
}

// Transition applies a lifecycle mutation under the shard lock. The
// returned task carries the domain events the mutation recorded.
func (s *TaskStore) Transition(ctx context.Context, taskID string, mutate func(*domain.WorkTask) error) (*domain.WorkTask, error) {
	sh := s.shardFor(taskID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	current, ok := sh.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
	}

	working := current.Clone()
	if err := mutate(working); err != nil {
		return nil, err
	}

	sh.tasks[taskID] = working.Clone()
	return working, nil
}

// Query lists tasks matching the filter in (priority asc, createdAt asc,
// taskId asc) order
func (s *TaskStore) Query(ctx context.Context, filter domain.TaskFilter) ([]*domain.WorkTask, error) {
	var matched []*domain.WorkTask

	for _, taskID := range s.warehouseTaskIDs(filter.WarehouseID) {
		sh := s.shardFor(taskID)
		sh.mu.Lock()
		task, ok := sh.tasks[taskID]
		if ok && matchesFilter(task, filter) {
			matched = append(matched, task.Clone())
		}
		sh.mu.Unlock()
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Less(matched[j])
	})

	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func matchesFilter(task *domain.WorkTask, filter domain.TaskFilter) bool {
	if filter.WarehouseID != "" && task.WarehouseID != filter.WarehouseID {
		return false
	}
	if filter.AssignedToID != "" && task.AssignedToID != filter.AssignedToID {
		return false
	}
	if filter.Status != "" && task.Status != filter.Status {
		return false
	}
	if filter.Type != "" && task.Type != filter.Type {
		return false
	}
	return true
}

// FindBySourceRef returns the non-terminal task carrying the source ref
func (s *TaskStore) FindBySourceRef(ctx context.Context, warehouseID, sourceRef string) (*domain.WorkTask, error) {
	for _, taskID := range s.warehouseTaskIDs(warehouseID) {
		sh := s.shardFor(taskID)
		sh.mu.Lock()
		task, ok := sh.tasks[taskID]
		if ok && task.SourceRef == sourceRef && !task.IsTerminal() {
			clone := task.Clone()
			sh.mu.Unlock()
			return clone, nil
		}
		sh.mu.Unlock()
	}
	return nil, fmt.Errorf("%w: sourceRef %s", domain.ErrTaskNotFound, sourceRef)
}

// FindStaleAssigned returns assigned tasks whose assignment predates the
// cutoff and that were never started
func (s *TaskStore) FindStaleAssigned(ctx context.Context, warehouseID string, olderThan time.Time) ([]*domain.WorkTask, error) {
	var stale []*domain.WorkTask

	for _, taskID := range s.warehouseTaskIDs(warehouseID) {
		sh := s.shardFor(taskID)
		sh.mu.Lock()
		task, ok := sh.tasks[taskID]
		if ok && task.Status == domain.TaskStatusAssigned &&
			task.AssignedAt != nil && task.AssignedAt.Before(olderThan) &&
			task.StartedAt == nil {
			stale = append(stale, task.Clone())
		}
		sh.mu.Unlock()
	}

	sort.Slice(stale, func(i, j int) bool {
		return stale[i].Less(stale[j])
	})
	return stale, nil
}

// CountActiveForWorker counts assigned or in_progress tasks held by the worker
func (s *TaskStore) CountActiveForWorker(ctx context.Context, warehouseID, workerID string) (int, error) {
	count := 0
	for _, taskID := range s.warehouseTaskIDs(warehouseID) {
		sh := s.shardFor(taskID)
		sh.mu.Lock()
		task, ok := sh.tasks[taskID]
		if ok && task.AssignedToID == workerID && task.IsActive() {
			count++
		}
		sh.mu.Unlock()
	}
	return count, nil
}
