package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/justmadeid/social-services/internal/models"
)

// Queue is the submission side of the task system.
type Queue struct {
	store  *SQLiteStore
	logger *slog.Logger
}

// NewQueue creates a queue over store.
func NewQueue(store *SQLiteStore, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{store: store, logger: logger.With("component", "queue")}
}

// Submit queues op with params and returns the new task id.
func (q *Queue) Submit(ctx context.Context, op models.Operation, params any) (string, error) {
	if !op.Valid() {
		return "", fmt.Errorf("unknown operation %q", op)
	}
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode params: %w", err)
	}

	t := &Task{Operation: op, Params: data, Message: "Task queued"}
	if err := q.store.Create(ctx, t); err != nil {
		return "", err
	}
	q.logger.Info("task submitted", "task_id", t.ID, "operation", op)
	return t.ID, nil
}

// Poll returns the current state of a task.
func (q *Queue) Poll(ctx context.Context, id string) (*Task, error) {
	return q.store.Get(ctx, id)
}

// Cancel revokes a task. Pending tasks never run; a processing task keeps
// running but its result is discarded.
func (q *Queue) Cancel(ctx context.Context, id string) (*Task, error) {
	t, err := q.store.Revoke(ctx, id)
	if err != nil {
		return nil, err
	}
	q.logger.Info("task revoked", "task_id", id)
	return t, nil
}
