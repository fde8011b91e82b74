// Package tasks coordinates task reads and writes so every consumer observes
// one consistent collection: reads go through the shared query cache, and an
// acknowledged write invalidates the cached snapshot before returning.
package tasks

import (
	"context"

	log "github.com/sirupsen/logrus"

	"tasklens/cache"
	"tasklens/client"
	"tasklens/domain"
)

// Service is the remote write surface.
type Service interface {
	CreateTask(ctx context.Context, draft client.TaskDraft) (domain.Task, error)
	UpdateTask(ctx context.Context, id string, patch client.TaskPatch) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// Store is the task-facing view of the engine.
type Store struct {
	svc     Service
	queries *cache.Queries
	log     *log.Logger
}

// NewStore wires the store over the service and the shared query cache.
func NewStore(svc Service, queries *cache.Queries, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Store{svc: svc, queries: queries, log: logger}
}

// List returns the current task collection, served from cache when fresh.
func (s *Store) List(ctx context.Context) ([]domain.Task, error) {
	return s.queries.Tasks(ctx)
}

// View returns the collection narrowed and ordered by the criteria. The
// cached collection itself is never reordered or filtered in place.
func (s *Store) View(ctx context.Context, c domain.Criteria) ([]domain.Task, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return domain.FilterSort(all, c), nil
}

// Completed returns the completed tasks, newest first.
func (s *Store) Completed(ctx context.Context) ([]domain.Task, error) {
	return s.View(ctx, domain.Criteria{StatusFilter: domain.StatusCompleted})
}

// Summary computes the status percentage breakdown of the collection.
func (s *Store) Summary(ctx context.Context) (domain.StatusSummary, error) {
	all, err := s.List(ctx)
	if err != nil {
		return domain.StatusSummary{}, err
	}
	return domain.Summarize(all), nil
}

// Create adds a task. It returns once the service acknowledged the write, and
// only then drops the cached collection so no consumer sees pre-write data.
func (s *Store) Create(ctx context.Context, draft client.TaskDraft) (domain.Task, error) {
	task, err := s.svc.CreateTask(ctx, draft)
	if err != nil {
		return domain.Task{}, err
	}
	s.invalidate(ctx, "create", task.ID)
	return task, nil
}

// Update applies a partial update to an existing task.
func (s *Store) Update(ctx context.Context, id string, patch client.TaskPatch) (domain.Task, error) {
	task, err := s.svc.UpdateTask(ctx, id, patch)
	if err != nil {
		return domain.Task{}, err
	}
	s.invalidate(ctx, "update", id)
	return task, nil
}

// Delete removes a task.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.svc.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, "delete", id)
	return nil
}

func (s *Store) invalidate(ctx context.Context, op, id string) {
	s.queries.Invalidate(ctx, cache.KeyTasks)
	s.log.WithFields(log.Fields{"op": op, "task": id}).Debug("task cache invalidated")
}
