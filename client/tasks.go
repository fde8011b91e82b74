package client

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"tasklens/domain"
)

// TaskDraft is the payload for creating a task. The service assigns the id
// and creation timestamp.
type TaskDraft struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Status      string `json:"status,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
}

// TaskPatch is a partial update; nil fields are left unchanged.
type TaskPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	Status      *string `json:"status,omitempty"`
	DueDate     *string `json:"dueDate,omitempty"`
}

// ListTasks fetches the caller's task collection.
func (c *Client) ListTasks(ctx context.Context) ([]domain.Task, error) {
	tasks := []domain.Task{}
	if err := c.do(ctx, "tasks.list", http.MethodGet, "/api/v1/tasks", nil, &tasks, callOptions{}); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateTask creates a task and returns the service's view of it. The request
// carries an idempotency key so the immediate-retry policy cannot create
// duplicates.
func (c *Client) CreateTask(ctx context.Context, draft TaskDraft) (domain.Task, error) {
	var task domain.Task
	opts := callOptions{idempotencyKey: uuid.NewString()}
	if err := c.do(ctx, "tasks.create", http.MethodPost, "/api/v1/tasks", draft, &task, opts); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// UpdateTask applies a partial update and returns the updated task.
func (c *Client) UpdateTask(ctx context.Context, id string, patch TaskPatch) (domain.Task, error) {
	var task domain.Task
	if err := c.do(ctx, "tasks.update", http.MethodPut, "/api/v1/tasks/"+id, patch, &task, callOptions{}); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, "tasks.delete", http.MethodDelete, "/api/v1/tasks/"+id, nil, nil, callOptions{})
}
