package handlers

import (
	"context"

	"github.com/justmadeid/social-services/internal/tasks"
)

// TaskInput identifies a task by path.
type TaskInput struct {
	ID string `path:"id" doc:"Task ID"`
}

// TaskOutput wraps a task record.
type TaskOutput struct {
	Body *tasks.Task
}

// GetTask returns the task's status, progress and, once finished, its
// result or error.
func (h *Handler) GetTask(ctx context.Context, input *TaskInput) (*TaskOutput, error) {
	t, err := h.queue.Poll(ctx, input.ID)
	if err != nil {
		return nil, h.toHTTPError(ctx, err)
	}
	return &TaskOutput{Body: t}, nil
}

// CancelTask revokes a pending or running task.
func (h *Handler) CancelTask(ctx context.Context, input *TaskInput) (*TaskOutput, error) {
	t, err := h.queue.Cancel(ctx, input.ID)
	if err != nil {
		return nil, h.toHTTPError(ctx, err)
	}
	return &TaskOutput{Body: t}, nil
}
