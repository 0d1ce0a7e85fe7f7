package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wms-platform/warehouse-task-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// transitionRetries bounds optimistic concurrency retries inside Transition
const transitionRetries = 3

// TaskRepository is the MongoDB-backed task store. Claims and transitions
// use filtered FindOneAndUpdate / ReplaceOne calls so the status check and
// the swap are a single atomic operation on the server.
type TaskRepository struct {
	collection *mongo.Collection
}

// NewTaskRepository creates the repository and ensures its indexes
func NewTaskRepository(db *mongo.Database) *TaskRepository {
	repo := &TaskRepository{
		collection: db.Collection("work_tasks"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	repo.ensureIndexes(ctx)

	return repo
}

func (r *TaskRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "taskId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{
			{Key: "warehouseId", Value: 1},
			{Key: "status", Value: 1},
			{Key: "priority", Value: 1},
			{Key: "createdAt", Value: 1},
		}},
		{Keys: bson.D{{Key: "warehouseId", Value: 1}, {Key: "sourceRef", Value: 1}}},
		{Keys: bson.D{{Key: "warehouseId", Value: 1}, {Key: "assignedToId", Value: 1}}},
	}
	r.collection.Indexes().CreateMany(ctx, indexes)
}

// Insert stores a new task. The id is assigned when absent and the status
// is forced to pending.
func (r *TaskRepository) Insert(ctx context.Context, task *domain.WorkTask) error {
	task.NormalizeForInsert()

	_, err := r.collection.InsertOne(ctx, task)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateTask, task.TaskID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// FindByID returns the task with the given id
func (r *TaskRepository) FindByID(ctx context.Context, taskID string) (*domain.WorkTask, error) {
	var task domain.WorkTask
	err := r.collection.FindOne(ctx, bson.M{"taskId": taskID}).Decode(&task)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return &task, nil
}

// TryClaim atomically moves a pending task to assigned. The pending-status
// filter makes the claim a server-side compare-and-swap: under concurrent
// claimers exactly one update matches.
func (r *TaskRepository) TryClaim(ctx context.Context, taskID, workerID string, workerType domain.WorkerType) (*domain.WorkTask, error) {
	if !domain.ValidWorkerType(workerType) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidWorkerType, workerType)
	}

	now := time.Now().UTC()
	filter := bson.M{
		"taskId": taskID,
		"status": domain.TaskStatusPending,
	}
	update := bson.M{
		"$set": bson.M{
			"status":         domain.TaskStatusAssigned,
			"assignedToId":   workerID,
			"assignedToType": workerType,
			"assignedAt":     now,
			"updatedAt":      now,
		},
		"$inc": bson.M{"version": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var claimed domain.WorkTask
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&claimed)
	if err == nil {
		claimed.AddDomainEvent(&domain.TaskClaimedEvent{
			TaskID:      claimed.TaskID,
			WarehouseID: claimed.WarehouseID,
			WorkerID:    workerID,
			WorkerType:  workerType,
			Timestamp:   now,
		})
		return &claimed, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}

	// No pending document matched: either the task is gone or someone
	// else holds it. Surface the current snapshot with the claim error.
	current, findErr := r.FindByID(ctx, taskID)
	if findErr != nil {
		return nil, findErr
	}
	return current, fmt.Errorf("%w: task %s is %s", domain.ErrClaimFailed, taskID, current.Status)
}

// Transition applies a lifecycle mutation with optimistic concurrency:
// the mutated document only replaces the stored one when the version has
// not moved underneath us.
func (r *TaskRepository) Transition(ctx context.Context, taskID string, mutate func(*domain.WorkTask) error) (*domain.WorkTask, error) {
	for attempt := 0; attempt < transitionRetries; attempt++ {
		task, err := r.FindByID(ctx, taskID)
		if err != nil {
			return nil, err
		}

		expectedVersion := task.Version
		if err := mutate(task); err != nil {
			return nil, err
		}

		result, err := r.collection.ReplaceOne(ctx, bson.M{
			"taskId":  taskID,
			"version": expectedVersion,
		}, task)
		if err != nil {
			return nil, fmt.Errorf("failed to update task: %w", err)
		}
		if result.MatchedCount == 1 {
			return task, nil
		}
		// Version moved, reload and retry
	}

	return nil, fmt.Errorf("%w: task %s: concurrent modification", domain.ErrInvalidTransition, taskID)
}

// Query lists tasks matching the filter in (priority asc, createdAt asc,
// taskId asc) order
func (r *TaskRepository) Query(ctx context.Context, filter domain.TaskFilter) ([]*domain.WorkTask, error) {
	query := bson.M{}
	if filter.WarehouseID != "" {
		query["warehouseId"] = filter.WarehouseID
	}
	if filter.AssignedToID != "" {
		query["assignedToId"] = filter.AssignedToID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Type != "" {
		query["type"] = filter.Type
	}

	opts := options.Find().SetSort(bson.D{
		{Key: "priority", Value: 1},
		{Key: "createdAt", Value: 1},
		{Key: "taskId", Value: 1},
	})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var tasks []*domain.WorkTask
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}
	return tasks, nil
}

// FindBySourceRef returns the non-terminal task carrying the source ref
func (r *TaskRepository) FindBySourceRef(ctx context.Context, warehouseID, sourceRef string) (*domain.WorkTask, error) {
	filter := bson.M{
		"warehouseId": warehouseID,
		"sourceRef":   sourceRef,
		"status": bson.M{"$nin": bson.A{
			domain.TaskStatusCompleted,
			domain.TaskStatusCancelled,
		}},
	}

	var task domain.WorkTask
	err := r.collection.FindOne(ctx, filter).Decode(&task)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: sourceRef %s", domain.ErrTaskNotFound, sourceRef)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task by sourceRef: %w", err)
	}
	return &task, nil
}

// FindStaleAssigned returns assigned tasks whose assignment predates the
// cutoff and that were never started
func (r *TaskRepository) FindStaleAssigned(ctx context.Context, warehouseID string, olderThan time.Time) ([]*domain.WorkTask, error) {
	filter := bson.M{
		"warehouseId": warehouseID,
		"status":      domain.TaskStatusAssigned,
		"assignedAt":  bson.M{"$lt": olderThan},
		"startedAt":   bson.M{"$exists": false},
	}

	opts := options.Find().SetSort(bson.D{
		{Key: "priority", Value: 1},
		{Key: "createdAt", Value: 1},
		{Key: "taskId", Value: 1},
	})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var tasks []*domain.WorkTask
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode stale tasks: %w", err)
	}
	return tasks, nil
}

// CountActiveForWorker counts assigned or in_progress tasks held by the worker
func (r *TaskRepository) CountActiveForWorker(ctx context.Context, warehouseID, workerID string) (int, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{
		"warehouseId":  warehouseID,
		"assignedToId": workerID,
		"status": bson.M{"$in": bson.A{
			domain.TaskStatusAssigned,
			domain.TaskStatusInProgress,
		}},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count active tasks: %w", err)
	}
	return int(count), nil
}
