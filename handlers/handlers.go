package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"pricewatch/models"
	"pricewatch/repository"
	"pricewatch/scheduler"
	"pricewatch/scraper"
	"pricewatch/services"
)

// ItemStore persists tracked items.
type ItemStore interface {
	Upsert(ctx context.Context, item *models.TrackedItem) error
	List(ctx context.Context) ([]models.TrackedItem, error)
	Get(ctx context.Context, id int64) (*models.TrackedItem, error)
	Delete(ctx context.Context, id int64) error
}

// HistoryStore reads past observations.
type HistoryStore interface {
	History(ctx context.Context, itemID int64, limit int) ([]models.PriceObservation, error)
}

// Checker runs a synchronous single-item check.
type Checker interface {
	CheckItemByID(ctx context.Context, id int64) (*models.CheckResult, error)
}

// Extractor extracts a price without persisting it.
type Extractor interface {
	Extract(ctx context.Context, rawURL string, render bool) (models.PriceObservation, scraper.ExtractorKind, error)
}

// CycleRunner runs a full pass over every item.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*models.CycleReport, error)
}

// TaskQueue runs single-item checks in the background.
type TaskQueue interface {
	SubmitTask(itemID int64) (models.PriceCheckTask, error)
	GetTask(taskID string) (models.PriceCheckTask, bool)
	GetStats() scheduler.TaskStats
}

// Deps are the collaborators the API serves from.
type Deps struct {
	Items     ItemStore
	History   HistoryStore
	Checker   Checker
	Extractor Extractor
	Cycles    CycleRunner
	Tasks     TaskQueue
}

type Handlers struct {
	deps    Deps
	started time.Time
	logger  *slog.Logger
}

func NewHandlers(deps Deps, logger *slog.Logger) *Handlers {
	return &Handlers{
		deps:    deps,
		started: time.Now(),
		logger:  logger.With(slog.String("component", "handlers")),
	}
}

// Register mounts every route on r.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/items", h.ListItems).Methods(http.MethodGet)
	api.HandleFunc("/items", h.UpsertItem).Methods(http.MethodPost)
	api.HandleFunc("/items/{id:[0-9]+}", h.GetItem).Methods(http.MethodGet)
	api.HandleFunc("/items/{id:[0-9]+}", h.DeleteItem).Methods(http.MethodDelete)
	api.HandleFunc("/items/{id:[0-9]+}/history", h.GetPriceHistory).Methods(http.MethodGet)
	api.HandleFunc("/items/{id:[0-9]+}/check", h.CheckPriceNow).Methods(http.MethodPost)
	api.HandleFunc("/items/{id:[0-9]+}/check-async", h.CheckPriceNowAsync).Methods(http.MethodPost)

	// stats before {taskId} so it is not taken for an id
	api.HandleFunc("/tasks/stats", h.GetTaskStats).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{taskId}", h.GetTaskStatus).Methods(http.MethodGet)

	api.HandleFunc("/extract", h.ExtractPrice).Methods(http.MethodPost)
	api.HandleFunc("/cycles", h.RunCycle).Methods(http.MethodPost)
}

// HealthCheck returns a simple health check response
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   "pricewatch",
		"timestamp": time.Now(),
		"uptime":    time.Since(h.started).Round(time.Second).String(),
	})
}

// ListItems returns all tracked items
func (h *Handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.deps.Items.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list items", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to list items")
		return
	}

	// Ensure we always return an array, even if empty
	if items == nil {
		items = []models.TrackedItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// UpsertItem adds an item or updates the one with the same URL
func (h *Handlers) UpsertItem(w http.ResponseWriter, r *http.Request) {
	var spec models.ItemSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	item, err := services.ItemFromSpec(spec)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.deps.Items.Upsert(r.Context(), &item); err != nil {
		h.logger.Error("failed to upsert item", slog.String("url", item.URL), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to save item")
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// GetItem returns a single item
func (h *Handlers) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	item, err := h.deps.Items.Get(r.Context(), id)
	if err != nil {
		h.storeError(w, "get item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// DeleteItem stops tracking an item and drops its history
func (h *Handlers) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	if err := h.deps.Items.Delete(r.Context(), id); err != nil {
		h.storeError(w, "delete item", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Item deleted successfully"})
}

// GetPriceHistory returns the newest observations for an item
func (h *Handlers) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	if _, err := h.deps.Items.Get(r.Context(), id); err != nil {
		h.storeError(w, "get item", err)
		return
	}
	history, err := h.deps.History.History(r.Context(), id, limit)
	if err != nil {
		h.storeError(w, "get price history", err)
		return
	}
	if history == nil {
		history = []models.PriceObservation{}
	}
	writeJSON(w, http.StatusOK, history)
}

// CheckPriceNow checks one item synchronously and returns the result
func (h *Handlers) CheckPriceNow(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	result, err := h.deps.Checker.CheckItemByID(r.Context(), id)
	if err != nil {
		h.storeError(w, "check item", err)
		return
	}

	status := http.StatusOK
	if !result.OK() {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, result)
}

// CheckPriceNowAsync queues a check and returns the task to poll
func (h *Handlers) CheckPriceNowAsync(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	item, err := h.deps.Items.Get(r.Context(), id)
	if err != nil {
		h.storeError(w, "get item", err)
		return
	}

	task, err := h.deps.Tasks.SubmitTask(id)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id":   task.ID,
		"status":    task.Status,
		"message":   task.Message,
		"item_id":   id,
		"item_name": item.DisplayName(),
	})
}

// GetTaskStatus returns the status of an async task
func (h *Handlers) GetTaskStatus(w http.ResponseWriter, r *http.Request) {
	task, exists := h.deps.Tasks.GetTask(mux.Vars(r)["taskId"])
	if !exists {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// GetTaskStats returns statistics about the task manager
func (h *Handlers) GetTaskStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":     h.deps.Tasks.GetStats(),
		"timestamp": time.Now(),
	})
}

// ExtractPrice classifies and extracts a URL without persisting anything.
func (h *Handlers) ExtractPrice(w http.ResponseWriter, r *http.Request) {
	var req models.ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	obs, kind, err := h.deps.Extractor.Extract(r.Context(), req.URL, req.Render)
	if err != nil {
		status := http.StatusUnprocessableEntity
		switch {
		case errors.Is(err, scraper.ErrInvalidURLShape):
			status = http.StatusBadRequest
		case errors.Is(err, scraper.ErrRequestFailed):
			status = http.StatusBadGateway
		}
		writeJSON(w, status, map[string]string{
			"error":      err.Error(),
			"error_kind": scraper.ErrorKind(err),
			"kind":       string(kind),
		})
		return
	}

	writeJSON(w, http.StatusOK, models.ExtractResponse{
		URL:        req.URL,
		Kind:       string(kind),
		Price:      obs.Price,
		ObservedAt: obs.ObservedAt,
	})
}

// RunCycle triggers a full price check cycle and returns its report.
func (h *Handlers) RunCycle(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.Cycles.RunCycle(r.Context())
	if err != nil {
		if errors.Is(err, scheduler.ErrCycleInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("manual cycle failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to run price check cycle")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handlers) storeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}
	h.logger.Error("failed to "+op, slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, "Failed to "+op)
}

func itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid item ID")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
