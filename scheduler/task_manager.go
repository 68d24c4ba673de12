package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"pricewatch/models"
)

// ErrQueueFull is returned when no more async checks can be queued.
var ErrQueueFull = errors.New("task queue is full")

// CheckFunc checks a single item by id.
type CheckFunc func(ctx context.Context, itemID int64) (*models.CheckResult, error)

// TaskManagerOptions configures the async check workers.
type TaskManagerOptions struct {
	Workers      int
	QueueSize    int
	CheckTimeout time.Duration
	// Retention is how long finished tasks stay queryable.
	Retention time.Duration
}

// TaskManager runs single-item price checks requested over the API.
type TaskManager struct {
	tasks     map[string]*models.PriceCheckTask
	taskQueue chan *models.PriceCheckTask
	check     CheckFunc
	opts      TaskManagerOptions
	active    int
	mutex     sync.RWMutex
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	logger    *slog.Logger
}

// NewTaskManager starts the workers. They run until Stop is called.
func NewTaskManager(check CheckFunc, opts TaskManagerOptions, logger *slog.Logger) *TaskManager {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 2 * time.Minute
	}
	if opts.Retention <= 0 {
		opts.Retention = time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	tm := &TaskManager{
		tasks:     make(map[string]*models.PriceCheckTask),
		taskQueue: make(chan *models.PriceCheckTask, opts.QueueSize),
		check:     check,
		opts:      opts,
		cancel:    cancel,
		logger:    logger.With(slog.String("component", "task_manager")),
	}

	for range opts.Workers {
		tm.wg.Add(1)
		go tm.worker(ctx)
	}
	tm.wg.Add(1)
	go tm.cleanupLoop(ctx)

	tm.logger.Info("task manager started", slog.Int("workers", opts.Workers))
	return tm
}

// SubmitTask queues a check of itemID and returns a snapshot of the new task.
func (tm *TaskManager) SubmitTask(itemID int64) (models.PriceCheckTask, error) {
	task := models.NewPriceCheckTask(itemID)

	tm.mutex.Lock()
	tm.tasks[task.ID] = task
	tm.mutex.Unlock()

	select {
	case tm.taskQueue <- task:
		tm.logger.Debug("task submitted", slog.String("task_id", task.ID), slog.Int64("item_id", itemID))
	default:
		tm.mutex.Lock()
		task.Fail(nil, ErrQueueFull.Error())
		tm.mutex.Unlock()
		tm.logger.Warn("task rejected, queue full", slog.String("task_id", task.ID))
		return tm.snapshot(task), ErrQueueFull
	}
	return tm.snapshot(task), nil
}

// GetTask returns a snapshot of the task.
func (tm *TaskManager) GetTask(taskID string) (models.PriceCheckTask, bool) {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	task, ok := tm.tasks[taskID]
	if !ok {
		return models.PriceCheckTask{}, false
	}
	return *task, true
}

// CleanupOldTasks removes finished tasks created before maxAge ago.
func (tm *TaskManager) CleanupOldTasks(maxAge time.Duration) int {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for id, task := range tm.tasks {
		if task.IsCompleted() && task.CreatedAt.Before(cutoff) {
			delete(tm.tasks, id)
			removed++
		}
	}
	return removed
}

// TaskStats summarizes the manager state.
type TaskStats struct {
	TotalTasks    int            `json:"total_tasks"`
	ActiveTasks   int            `json:"active_tasks"`
	ActiveWorkers int            `json:"active_workers"`
	MaxWorkers    int            `json:"max_workers"`
	QueueSize     int            `json:"queue_size"`
	TasksByStatus map[string]int `json:"tasks_by_status"`
}

// GetStats returns task manager statistics.
func (tm *TaskManager) GetStats() TaskStats {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	stats := TaskStats{
		TotalTasks:    len(tm.tasks),
		ActiveWorkers: tm.active,
		MaxWorkers:    tm.opts.Workers,
		QueueSize:     len(tm.taskQueue),
		TasksByStatus: make(map[string]int),
	}
	for _, task := range tm.tasks {
		stats.TasksByStatus[string(task.Status)]++
		if task.IsActive() {
			stats.ActiveTasks++
		}
	}
	return stats
}

// Stop cancels in-flight checks and waits for the workers to exit.
func (tm *TaskManager) Stop() {
	tm.cancel()
	tm.wg.Wait()
	tm.logger.Info("task manager stopped")
}

func (tm *TaskManager) worker(ctx context.Context) {
	defer tm.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-tm.taskQueue:
			tm.process(ctx, task)
		}
	}
}

func (tm *TaskManager) process(ctx context.Context, task *models.PriceCheckTask) {
	tm.mutex.Lock()
	task.Start()
	tm.active++
	tm.mutex.Unlock()

	checkCtx, cancel := context.WithTimeout(ctx, tm.opts.CheckTimeout)
	result, err := tm.check(checkCtx, task.ItemID)
	cancel()

	tm.mutex.Lock()
	tm.active--
	switch {
	case err != nil:
		task.Fail(nil, err.Error())
	case !result.OK():
		task.Fail(result, result.Error)
	default:
		task.Complete(result)
	}
	status, elapsed := task.Status, task.Duration()
	tm.mutex.Unlock()

	tm.logger.Info("task finished",
		slog.String("task_id", task.ID),
		slog.Int64("item_id", task.ItemID),
		slog.String("status", string(status)),
		slog.Duration("duration", elapsed))
}

func (tm *TaskManager) cleanupLoop(ctx context.Context) {
	defer tm.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := tm.CleanupOldTasks(tm.opts.Retention); n > 0 {
				tm.logger.Debug("cleaned up finished tasks", slog.Int("removed", n))
			}
		}
	}
}

func (tm *TaskManager) snapshot(task *models.PriceCheckTask) models.PriceCheckTask {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()
	return *task
}
