package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the status of an async task
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// PriceCheckTask represents an async price check of one item
type PriceCheckTask struct {
	ID          string       `json:"id"`
	ItemID      int64        `json:"item_id"`
	Status      TaskStatus   `json:"status"`
	Message     string       `json:"message"`
	Result      *CheckResult `json:"result,omitempty"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// NewPriceCheckTask creates a queued task for itemID
func NewPriceCheckTask(itemID int64) *PriceCheckTask {
	return &PriceCheckTask{
		ID:        "task_" + uuid.NewString(),
		ItemID:    itemID,
		Status:    TaskStatusQueued,
		Message:   "Task queued for processing",
		CreatedAt: time.Now(),
	}
}

// Start marks the task as processing
func (t *PriceCheckTask) Start() {
	t.Status = TaskStatusProcessing
	t.Message = "Checking price..."
	now := time.Now()
	t.StartedAt = &now
}

// Complete marks the task as completed with result
func (t *PriceCheckTask) Complete(result *CheckResult) {
	t.Status = TaskStatusCompleted
	t.Message = "Price check completed successfully"
	t.Result = result
	now := time.Now()
	t.CompletedAt = &now
}

// Fail marks the task as failed. A partial result may still be attached.
func (t *PriceCheckTask) Fail(result *CheckResult, errMsg string) {
	t.Status = TaskStatusFailed
	t.Message = "Price check failed"
	t.Result = result
	t.Error = errMsg
	now := time.Now()
	t.CompletedAt = &now
}

// IsCompleted returns true if the task is in a final state
func (t *PriceCheckTask) IsCompleted() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// IsActive returns true if the task is still running
func (t *PriceCheckTask) IsActive() bool {
	return t.Status == TaskStatusQueued || t.Status == TaskStatusProcessing
}

// Duration returns the duration of the task
func (t *PriceCheckTask) Duration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}

	endTime := time.Now()
	if t.CompletedAt != nil {
		endTime = *t.CompletedAt
	}

	return endTime.Sub(*t.StartedAt)
}
