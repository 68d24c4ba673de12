package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"pricewatch/models"
)

type PriceRepository struct {
	db *sql.DB
}

func NewPriceRepository(db *sql.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

// GetLastPrice returns the most recently recorded price, or an invalid
// NullDecimal when the item has no history yet.
func (r *PriceRepository) GetLastPrice(ctx context.Context, itemID int64) (decimal.NullDecimal, error) {
	query := `
		SELECT price
		FROM price_history
		WHERE item_id = $1
		ORDER BY id DESC
		LIMIT 1
	`

	var price decimal.Decimal
	err := r.db.QueryRowContext(ctx, query, itemID).Scan(&price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.NullDecimal{}, nil
		}
		return decimal.NullDecimal{}, fmt.Errorf("failed to get last price: %w", err)
	}
	return decimal.NewNullDecimal(price), nil
}

// AddPrice appends an observation to the item's history
func (r *PriceRepository) AddPrice(ctx context.Context, itemID int64, obs models.PriceObservation) (models.PriceObservation, error) {
	query := `
		INSERT INTO price_history (item_id, price, fetched_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	obs.ItemID = itemID
	if err := r.db.QueryRowContext(ctx, query, itemID, obs.Price, obs.ObservedAt).Scan(&obs.ID); err != nil {
		return obs, fmt.Errorf("failed to add price: %w", err)
	}
	return obs, nil
}

// History returns the newest observations first
func (r *PriceRepository) History(ctx context.Context, itemID int64, limit int) ([]models.PriceObservation, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}

	query := `
		SELECT id, item_id, price, fetched_at
		FROM price_history
		WHERE item_id = $1
		ORDER BY id DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, itemID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}
	defer rows.Close()

	history := []models.PriceObservation{}
	for rows.Next() {
		var obs models.PriceObservation
		if err := rows.Scan(&obs.ID, &obs.ItemID, &obs.Price, &obs.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price history: %w", err)
		}
		history = append(history, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}
	return history, nil
}
