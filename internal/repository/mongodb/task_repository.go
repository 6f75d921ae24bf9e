package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"blood-report-service/internal/entity"
	"blood-report-service/internal/repository"
)

// Collection is the collection tasks are stored in.
const Collection = "analysis_tasks"

// TaskRepository stores tasks with the task id as _id.
type TaskRepository struct {
	collection *mongo.Collection
}

func NewTaskRepository(collection *mongo.Collection) *TaskRepository {
	return &TaskRepository{collection: collection}
}

// Connect opens a client and pings the primary.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

func (r *TaskRepository) Create(ctx context.Context, id, fileName, query string) (*entity.Task, error) {
	now := time.Now().UTC()
	task := &entity.Task{
		ID:        id,
		FileName:  fileName,
		Query:     query,
		Status:    entity.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := r.collection.InsertOne(ctx, task); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, repository.ErrDuplicateID
		}
		return nil, fmt.Errorf("create task %s: %w", id, err)
	}
	return task, nil
}

func (r *TaskRepository) Get(ctx context.Context, id string) (*entity.Task, error) {
	var task entity.Task
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&task)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	if !task.Status.Valid() {
		return nil, fmt.Errorf("get task %s: unknown stored status %q", id, task.Status)
	}
	// Mongo keeps millisecond precision in UTC.
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	return &task, nil
}

func (r *TaskRepository) Update(ctx context.Context, id string, status entity.TaskStatus, result *string) error {
	if status.IsTerminal() && result == nil {
		return fmt.Errorf("%w: %s needs a result", repository.ErrInvalidTransition, status)
	}

	set := bson.M{
		"status":     string(status),
		"updated_at": time.Now().UTC(),
	}
	if result != nil {
		set["result"] = *result
	}

	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": repository.StatusStrings(status.Predecessors())},
	}
	res, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", repository.ErrInvalidTransition, current.Status, status)
}

func (r *TaskRepository) DeletePending(ctx context.Context, id string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "status": string(entity.StatusPending)})
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if res.DeletedCount > 0 {
		return nil
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: cannot delete %s task", repository.ErrInvalidTransition, current.Status)
}
