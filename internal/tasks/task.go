// Package tasks queues scrape operations in SQLite and runs them on a pool
// of background workers.
package tasks

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/justmadeid/social-services/internal/models"
)

var (
	// ErrTaskNotFound is returned for unknown task ids.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskFinished is returned when cancelling a task that already ended.
	ErrTaskFinished = errors.New("task already finished")
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailure    Status = "FAILURE"
	StatusRevoked    Status = "REVOKED"
)

// Terminal reports whether the task can no longer change.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure || s == StatusRevoked
}

// Task is a queued scrape operation.
type Task struct {
	ID           string           `json:"task_id"`
	Operation    models.Operation `json:"operation"`
	Params       json.RawMessage  `json:"params"`
	Status       Status           `json:"status"`
	Progress     int              `json:"progress"`
	Message      string           `json:"message,omitempty"`
	Result       json.RawMessage  `json:"result,omitempty"`
	ErrorType    string           `json:"error_type,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

// ScrapeLog is the audit row written for every finished task.
type ScrapeLog struct {
	ID            string
	TaskID        string
	Operation     models.Operation
	Parameters    string
	Status        Status
	ResultSize    int
	ExecutionTime float64
	ErrorMessage  string
	CreatedAt     time.Time
}
