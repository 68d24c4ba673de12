package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TrackedItem is a product (or game-market listing) being monitored.
type TrackedItem struct {
	ID              int64               `json:"id" db:"id"`
	Name            string              `json:"name" db:"name"`
	URL             string              `json:"url" db:"url"`
	TargetPrice     decimal.NullDecimal `json:"target_price" db:"target_price"`
	NotifyOnAnyDrop bool                `json:"notify_on_any_drop" db:"notify_on_any_drop"`
	Render          bool                `json:"render" db:"render"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at" db:"updated_at"`
}

// HasTarget returns true if a target price is configured
func (t *TrackedItem) HasTarget() bool {
	return t.TargetPrice.Valid
}

// DisplayName falls back to the URL when no name was given
func (t *TrackedItem) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.URL
}

// PriceObservation is one extracted price. It is never modified after creation.
type PriceObservation struct {
	ID         int64           `json:"id,omitempty" db:"id"`
	ItemID     int64           `json:"item_id,omitempty" db:"item_id"`
	Price      decimal.Decimal `json:"price" db:"price"`
	ObservedAt time.Time       `json:"observed_at" db:"fetched_at"`
}

// Reasons a ChangeDecision can carry.
const (
	ReasonTargetReached = "target_reached"
	ReasonPriceDropped  = "price_dropped"
)

// ChangeDecision says whether a new observation warrants an alert.
type ChangeDecision struct {
	ShouldNotify bool                `json:"should_notify"`
	NewPrice     decimal.Decimal     `json:"new_price"`
	LastPrice    decimal.NullDecimal `json:"last_price"`
	Target       decimal.NullDecimal `json:"target"`
	Reasons      []string            `json:"reasons,omitempty"`
}

// CheckResult is the outcome of checking a single item once.
type CheckResult struct {
	ItemID    int64               `json:"item_id"`
	ItemName  string              `json:"item_name"`
	URL       string              `json:"url"`
	Kind      string              `json:"kind,omitempty"`
	Price     decimal.NullDecimal `json:"price"`
	LastPrice decimal.NullDecimal `json:"last_price"`
	Decision  *ChangeDecision     `json:"decision,omitempty"`
	Notified  bool                `json:"notified"`
	Error     string              `json:"error,omitempty"`
	ErrorKind string              `json:"error_kind,omitempty"`
	Duration  time.Duration       `json:"duration_ns"`
	CheckedAt time.Time           `json:"checked_at"`
}

// OK reports whether a price was extracted and persisted.
func (r *CheckResult) OK() bool {
	return r.Error == "" && r.Price.Valid
}

// CycleReport summarizes one scheduled pass over every tracked item.
type CycleReport struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Notified   int           `json:"notified"`
	Results    []CheckResult `json:"results"`
}

// ItemSpec describes an item to track, either by page URL or by game-market
// identity (app id plus market hash name).
type ItemSpec struct {
	Name                string           `json:"name" toml:"name"`
	URL                 string           `json:"url,omitempty" toml:"url"`
	SteamAppID          int              `json:"steam_appid,omitempty" toml:"steam_appid"`
	SteamMarketHashName string           `json:"steam_market_hash_name,omitempty" toml:"steam_market_hash_name"`
	TargetPrice         *decimal.Decimal `json:"target_price,omitempty" toml:"target_price"`
	NotifyOnAnyDrop     bool             `json:"notify_on_any_drop" toml:"notify_on_any_drop"`
	Render              bool             `json:"render,omitempty" toml:"render"`
}

// ExtractRequest asks the API to extract a URL without persisting anything.
type ExtractRequest struct {
	URL    string `json:"url"`
	Render bool   `json:"render"`
}

// ExtractResponse is the reply to ExtractRequest.
type ExtractResponse struct {
	URL        string          `json:"url"`
	Kind       string          `json:"kind"`
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
}
