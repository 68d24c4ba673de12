package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeChecker struct {
	items    []models.TrackedItem
	listErr  error
	inFlight atomic.Int32
	peak     atomic.Int32
	block    chan struct{}
}

func (f *fakeChecker) Items(context.Context) ([]models.TrackedItem, error) {
	return f.items, f.listErr
}

func (f *fakeChecker) CheckItem(ctx context.Context, item models.TrackedItem) models.CheckResult {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.block != nil {
		<-f.block
	}
	time.Sleep(5 * time.Millisecond)

	r := models.CheckResult{ItemID: item.ID, ItemName: item.Name}
	switch {
	case item.Name == "broken":
		r.Error = "no price found"
	case ctx.Err() != nil:
		r.Error = ctx.Err().Error()
	default:
		r.Price = decimal.NewNullDecimal(decimal.NewFromInt(item.ID * 100))
		r.Notified = item.NotifyOnAnyDrop
	}
	return r
}

type recordingArchiver struct {
	mu      sync.Mutex
	reports []*models.CycleReport
	err     error
}

func (a *recordingArchiver) Archive(_ context.Context, r *models.CycleReport) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reports = append(a.reports, r)
	return a.err
}

func trackedItems(names ...string) []models.TrackedItem {
	items := make([]models.TrackedItem, len(names))
	for i, name := range names {
		items[i] = models.TrackedItem{ID: int64(i + 1), Name: name}
	}
	return items
}

func TestRunCycleIsolatesFailures(t *testing.T) {
	checker := &fakeChecker{items: trackedItems("kettle", "broken", "lamp", "desk")}
	checker.items[2].NotifyOnAnyDrop = true
	archiver := &recordingArchiver{err: errors.New("bucket gone")}
	pc := NewPriceChecker(checker, archiver, PriceCheckerOptions{Spec: "@every 1h", Workers: 2}, discardLogger())

	report, err := pc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}
	if report.Succeeded != 3 || report.Failed != 1 || report.Notified != 1 {
		t.Errorf("counts = %d ok / %d failed / %d notified", report.Succeeded, report.Failed, report.Notified)
	}
	for i, r := range report.Results {
		if r.ItemID != int64(i+1) {
			t.Errorf("result %d is for item %d, want input order", i, r.ItemID)
		}
	}
	if report.ID == "" || report.FinishedAt.Before(report.StartedAt) {
		t.Errorf("report metadata = %+v", report)
	}
	if len(archiver.reports) != 1 {
		t.Errorf("archived %d reports, want 1 even when upload fails", len(archiver.reports))
	}
	if peak := checker.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestRunCycleListFailure(t *testing.T) {
	checker := &fakeChecker{listErr: errors.New("db down")}
	pc := NewPriceChecker(checker, nil, PriceCheckerOptions{Spec: "@every 1h"}, discardLogger())
	if _, err := pc.RunCycle(context.Background()); err == nil {
		t.Fatal("expected error when items cannot be listed")
	}
}

func TestRunCycleRejectsOverlap(t *testing.T) {
	checker := &fakeChecker{items: trackedItems("kettle"), block: make(chan struct{})}
	pc := NewPriceChecker(checker, nil, PriceCheckerOptions{Spec: "@every 1h"}, discardLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		pc.RunCycle(context.Background())
	}()
	for checker.inFlight.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	if _, err := pc.RunCycle(context.Background()); !errors.Is(err, ErrCycleInProgress) {
		t.Errorf("overlapping RunCycle error = %v, want ErrCycleInProgress", err)
	}
	close(checker.block)
	<-done

	if _, err := pc.RunCycle(context.Background()); err != nil {
		t.Errorf("RunCycle after completion: %v", err)
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	pc := NewPriceChecker(&fakeChecker{}, nil, PriceCheckerOptions{Spec: "every now and then"}, discardLogger())
	if err := pc.Start(context.Background()); err == nil {
		pc.Stop()
		t.Fatal("expected invalid cron spec to be rejected")
	}
}

func waitForTask(t *testing.T, tm *TaskManager, id string) models.PriceCheckTask {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, ok := tm.GetTask(id)
		if !ok {
			t.Fatalf("task %s not found", id)
		}
		if task.IsCompleted() {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s did not finish", id)
	return models.PriceCheckTask{}
}

func TestTaskManagerCompletesAndFails(t *testing.T) {
	check := func(_ context.Context, id int64) (*models.CheckResult, error) {
		switch id {
		case 1:
			return &models.CheckResult{ItemID: 1, Price: decimal.NewNullDecimal(decimal.NewFromInt(42))}, nil
		case 2:
			return &models.CheckResult{ItemID: 2, Error: "no price found"}, nil
		default:
			return nil, errors.New("item not found")
		}
	}
	tm := NewTaskManager(check, TaskManagerOptions{Workers: 2}, discardLogger())
	defer tm.Stop()

	want := map[int64]models.TaskStatus{
		1: models.TaskStatusCompleted,
		2: models.TaskStatusFailed,
		3: models.TaskStatusFailed,
	}
	for id, status := range want {
		submitted, err := tm.SubmitTask(id)
		if err != nil {
			t.Fatalf("SubmitTask(%d): %v", id, err)
		}
		task := waitForTask(t, tm, submitted.ID)
		if task.Status != status {
			t.Errorf("item %d: status = %s, want %s", id, task.Status, status)
		}
		if id == 1 && (task.Result == nil || !task.Result.Price.Decimal.Equal(decimal.NewFromInt(42))) {
			t.Errorf("item 1 result = %+v", task.Result)
		}
		if id == 3 && task.Error != "item not found" {
			t.Errorf("item 3 error = %q", task.Error)
		}
	}

	stats := tm.GetStats()
	if stats.TotalTasks != 3 || stats.TasksByStatus["failed"] != 2 || stats.ActiveTasks != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if n := tm.CleanupOldTasks(0); n != 3 {
		t.Errorf("CleanupOldTasks removed %d, want 3", n)
	}
	if _, ok := tm.GetTask("task_missing"); ok {
		t.Error("GetTask found a task that was never submitted")
	}
}

func TestTaskManagerQueueFull(t *testing.T) {
	release := make(chan struct{})
	check := func(ctx context.Context, id int64) (*models.CheckResult, error) {
		<-release
		return &models.CheckResult{ItemID: id, Price: decimal.NewNullDecimal(decimal.NewFromInt(1))}, nil
	}
	tm := NewTaskManager(check, TaskManagerOptions{Workers: 1, QueueSize: 1}, discardLogger())
	defer tm.Stop()
	defer close(release)

	var rejected int
	for i := int64(1); i <= 5; i++ {
		if task, err := tm.SubmitTask(i); errors.Is(err, ErrQueueFull) {
			rejected++
			if task.Status != models.TaskStatusFailed {
				t.Errorf("rejected task status = %s", task.Status)
			}
		}
	}
	if rejected == 0 {
		t.Error("expected some submissions to be rejected with a full queue")
	}
	if stats := tm.GetStats(); stats.ActiveTasks != 5-rejected {
		t.Errorf("active tasks = %d, want %d still queued or processing", stats.ActiveTasks, 5-rejected)
	}
}
