package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/locks"
	"pricewatch/models"
	"pricewatch/scraper"
)

// Extractor produces one observation for a URL.
type Extractor interface {
	Extract(ctx context.Context, rawURL string, render bool) (models.PriceObservation, scraper.ExtractorKind, error)
}

// ItemStore persists tracked items.
type ItemStore interface {
	Upsert(ctx context.Context, item *models.TrackedItem) error
	List(ctx context.Context) ([]models.TrackedItem, error)
	Get(ctx context.Context, id int64) (*models.TrackedItem, error)
}

// PriceStore persists price history. Only the latest observation is ever read
// back during a check.
type PriceStore interface {
	GetLastPrice(ctx context.Context, itemID int64) (decimal.NullDecimal, error)
	AddPrice(ctx context.Context, itemID int64, obs models.PriceObservation) (models.PriceObservation, error)
}

// Notifier delivers alert messages.
type Notifier interface {
	NotifyAll(ctx context.Context, title, message string) error
}

// Locker serializes checks of the same item, possibly across processes.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// TrackerOptions configures a Tracker.
type TrackerOptions struct {
	Currency string
	// LockTTL bounds how long one item check may hold its lock.
	LockTTL time.Duration
}

// Tracker runs the per-item check: extract, read the last price, record the
// new one, decide and alert.
type Tracker struct {
	extractor Extractor
	items     ItemStore
	prices    PriceStore
	notifier  Notifier
	locker    Locker
	currency  string
	lockTTL   time.Duration
	logger    *slog.Logger
}

// NewTracker creates a Tracker. notifier and locker may be nil.
func NewTracker(extractor Extractor, items ItemStore, prices PriceStore, notifier Notifier, locker Locker, opts TrackerOptions, logger *slog.Logger) *Tracker {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 2 * time.Minute
	}
	return &Tracker{
		extractor: extractor,
		items:     items,
		prices:    prices,
		notifier:  notifier,
		locker:    locker,
		currency:  opts.Currency,
		lockTTL:   opts.LockTTL,
		logger:    logger.With(slog.String("component", "tracker")),
	}
}

// Items returns every tracked item.
func (t *Tracker) Items(ctx context.Context) ([]models.TrackedItem, error) {
	return t.items.List(ctx)
}

// CheckItemByID loads the item and checks it. The error covers the lookup
// only; check failures are in the result.
func (t *Tracker) CheckItemByID(ctx context.Context, id int64) (*models.CheckResult, error) {
	item, err := t.items.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	result := t.CheckItem(ctx, *item)
	return &result, nil
}

// CheckItem checks one item once. Failures are reported in the result rather
// than returned so a caller iterating over items never stops early. Nothing is
// persisted and no decision is made when extraction fails.
func (t *Tracker) CheckItem(ctx context.Context, item models.TrackedItem) models.CheckResult {
	start := time.Now()
	result := models.CheckResult{
		ItemID:    item.ID,
		ItemName:  item.DisplayName(),
		URL:       item.URL,
		CheckedAt: start,
	}
	logger := t.logger.With(slog.Int64("item_id", item.ID), slog.String("item", item.DisplayName()))

	fail := func(err error) models.CheckResult {
		result.Error = err.Error()
		result.ErrorKind = scraper.ErrorKind(err)
		result.Duration = time.Since(start)
		logger.Error("price check failed",
			slog.String("error", result.Error),
			slog.String("error_kind", result.ErrorKind))
		return result
	}

	if t.locker != nil {
		unlock, err := t.locker.Acquire(ctx, lockKey(item.ID), t.lockTTL)
		if err != nil {
			if errors.Is(err, locks.ErrLockHeld) {
				return fail(fmt.Errorf("item %d is already being checked: %w", item.ID, err))
			}
			return fail(fmt.Errorf("acquire item lock: %w", err))
		}
		defer unlock()
	}

	obs, kind, err := t.extractor.Extract(ctx, item.URL, item.Render)
	result.Kind = string(kind)
	if err != nil {
		return fail(err)
	}

	last, err := t.prices.GetLastPrice(ctx, item.ID)
	if err != nil {
		return fail(fmt.Errorf("read last price: %w", err))
	}
	result.LastPrice = last

	if _, err := t.prices.AddPrice(ctx, item.ID, obs); err != nil {
		return fail(fmt.Errorf("record price: %w", err))
	}
	result.Price = decimal.NewNullDecimal(obs.Price)

	decision := Decide(obs.Price, last, item.TargetPrice, item.NotifyOnAnyDrop)
	result.Decision = &decision

	if decision.ShouldNotify {
		if err := t.notify(ctx, item, decision); err != nil {
			logger.Warn("alert delivery failed", slog.String("error", err.Error()))
		} else {
			result.Notified = true
		}
	}

	result.Duration = time.Since(start)
	logger.Info("price check ok",
		slog.String("price", scraper.FormatPrice(obs.Price)),
		slog.String("currency", t.currency),
		slog.String("kind", result.Kind),
		slog.Bool("notified", result.Notified),
		slog.Duration("duration", result.Duration))
	return result
}

func (t *Tracker) notify(ctx context.Context, item models.TrackedItem, d models.ChangeDecision) error {
	title, message := ComposeAlert(item, d, t.currency)
	if t.notifier == nil {
		t.logger.Info("alert not sent, no notifier configured", slog.String("message", message))
		return nil
	}
	return t.notifier.NotifyAll(ctx, title, message)
}

// ItemFromSpec validates spec and builds the item it describes. Game-market
// specs get the synthetic steam://market/<appid>/<name> URL.
func ItemFromSpec(spec models.ItemSpec) (models.TrackedItem, error) {
	item := models.TrackedItem{
		Name:            strings.TrimSpace(spec.Name),
		NotifyOnAnyDrop: spec.NotifyOnAnyDrop,
		Render:          spec.Render,
	}

	switch {
	case spec.SteamAppID != 0 || spec.SteamMarketHashName != "":
		if spec.SteamAppID <= 0 || strings.TrimSpace(spec.SteamMarketHashName) == "" {
			return item, fmt.Errorf("%w: game market items need steam_appid and steam_market_hash_name", scraper.ErrInvalidURLShape)
		}
		item.URL = scraper.GameMarketItem{AppID: spec.SteamAppID, HashName: spec.SteamMarketHashName}.URL()
	case strings.TrimSpace(spec.URL) != "":
		item.URL = strings.TrimSpace(spec.URL)
		if scraper.IsGameMarketURL(item.URL) {
			if _, err := scraper.ParseGameMarketURL(item.URL); err != nil {
				return item, err
			}
		} else if !strings.HasPrefix(item.URL, "http://") && !strings.HasPrefix(item.URL, "https://") {
			return item, fmt.Errorf("%w: %q must be an http(s) url", scraper.ErrInvalidURLShape, item.URL)
		}
	default:
		return item, fmt.Errorf("%w: item %q has neither url nor game market identity", scraper.ErrInvalidURLShape, spec.Name)
	}

	if spec.TargetPrice != nil {
		if !spec.TargetPrice.IsPositive() {
			return item, fmt.Errorf("item %q: target price must be positive", spec.Name)
		}
		item.TargetPrice = decimal.NewNullDecimal(*spec.TargetPrice)
	}
	if item.Name == "" {
		item.Name = item.URL
	}
	return item, nil
}

// SyncItems upserts every spec into the item store. Invalid specs are
// skipped and reported together.
func (t *Tracker) SyncItems(ctx context.Context, specs []models.ItemSpec) (int, error) {
	var (
		synced int
		errs   []error
	)
	for _, spec := range specs {
		item, err := ItemFromSpec(spec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := t.items.Upsert(ctx, &item); err != nil {
			errs = append(errs, fmt.Errorf("upsert %q: %w", item.Name, err))
			continue
		}
		synced++
	}
	if len(errs) > 0 {
		return synced, errors.Join(errs...)
	}
	t.logger.Info("items synchronized", slog.Int("count", synced))
	return synced, nil
}

func lockKey(itemID int64) string {
	return "pricewatch:item:" + strconv.FormatInt(itemID, 10)
}
