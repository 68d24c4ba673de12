package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"pricewatch/models"
)

// ErrCycleInProgress is returned when a cycle is requested while another one
// is still running.
var ErrCycleInProgress = errors.New("price check cycle already in progress")

// ItemChecker checks tracked items one at a time.
type ItemChecker interface {
	Items(ctx context.Context) ([]models.TrackedItem, error)
	CheckItem(ctx context.Context, item models.TrackedItem) models.CheckResult
}

// ReportArchiver stores finished cycle reports.
type ReportArchiver interface {
	Archive(ctx context.Context, report *models.CycleReport) error
}

// PriceCheckerOptions configures the cycle schedule.
type PriceCheckerOptions struct {
	// Spec is a cron expression or descriptor such as "@every 30m".
	Spec        string
	Workers     int
	RunOnStart  bool
	ItemTimeout time.Duration
}

// PriceChecker runs a price check over every tracked item on a schedule.
type PriceChecker struct {
	cron     *cron.Cron
	checker  ItemChecker
	archiver ReportArchiver
	opts     PriceCheckerOptions
	running  atomic.Bool
	logger   *slog.Logger
	now      func() time.Time
}

// NewPriceChecker creates a scheduler. archiver may be nil.
func NewPriceChecker(checker ItemChecker, archiver ReportArchiver, opts PriceCheckerOptions, logger *slog.Logger) *PriceChecker {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = 2 * time.Minute
	}
	return &PriceChecker{
		cron:     cron.New(),
		checker:  checker,
		archiver: archiver,
		opts:     opts,
		logger:   logger.With(slog.String("component", "scheduler")),
		now:      time.Now,
	}
}

// Start schedules cycles. ctx bounds every scheduled cycle.
func (pc *PriceChecker) Start(ctx context.Context) error {
	if _, err := pc.cron.AddFunc(pc.opts.Spec, func() { pc.runScheduled(ctx) }); err != nil {
		return fmt.Errorf("schedule price checks %q: %w", pc.opts.Spec, err)
	}

	if pc.opts.RunOnStart {
		go pc.runScheduled(ctx)
	}

	pc.cron.Start()
	pc.logger.Info("price checker scheduled",
		slog.String("spec", pc.opts.Spec),
		slog.Int("workers", pc.opts.Workers))
	return nil
}

// Stop stops scheduling and waits for a running scheduled cycle to return.
func (pc *PriceChecker) Stop() {
	<-pc.cron.Stop().Done()
}

func (pc *PriceChecker) runScheduled(ctx context.Context) {
	if _, err := pc.RunCycle(ctx); err != nil {
		if errors.Is(err, ErrCycleInProgress) {
			pc.logger.Warn("skipping cycle, previous one still running")
			return
		}
		pc.logger.Error("price check cycle failed", slog.String("error", err.Error()))
	}
}

// RunCycle checks every tracked item once with at most Workers checks in
// flight. A failing item never cancels the others; its failure is recorded in
// the report. The error covers only listing items and overlapping cycles.
func (pc *PriceChecker) RunCycle(ctx context.Context) (*models.CycleReport, error) {
	if !pc.running.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer pc.running.Store(false)

	report := &models.CycleReport{
		ID:        uuid.NewString(),
		StartedAt: pc.now(),
	}
	logger := pc.logger.With(slog.String("cycle_id", report.ID))

	items, err := pc.checker.Items(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tracked items: %w", err)
	}
	logger.Info("starting price check cycle", slog.Int("items", len(items)))

	results := make([]models.CheckResult, len(items))
	var g errgroup.Group
	g.SetLimit(pc.opts.Workers)
	for i, item := range items {
		g.Go(func() error {
			itemCtx, cancel := context.WithTimeout(ctx, pc.opts.ItemTimeout)
			defer cancel()
			results[i] = pc.checker.CheckItem(itemCtx, item)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.OK() {
			report.Succeeded++
		} else {
			report.Failed++
		}
		if r.Notified {
			report.Notified++
		}
	}
	report.Results = results
	report.FinishedAt = pc.now()

	logger.Info("price check cycle finished",
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", report.Failed),
		slog.Int("notified", report.Notified),
		slog.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))

	if pc.archiver != nil {
		if err := pc.archiver.Archive(ctx, report); err != nil {
			logger.Warn("failed to archive cycle report", slog.String("error", err.Error()))
		}
	}
	return report, nil
}
