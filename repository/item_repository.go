package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pricewatch/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const itemColumns = `id, name, url, target_price, notify_on_any_drop, render, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type ItemRepository struct {
	db *sql.DB
}

func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

func scanItem(row rowScanner) (*models.TrackedItem, error) {
	var item models.TrackedItem
	err := row.Scan(
		&item.ID, &item.Name, &item.URL, &item.TargetPrice,
		&item.NotifyOnAnyDrop, &item.Render, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Upsert inserts the item or, when its URL is already tracked, updates its
// settings. item is filled with the stored row.
func (r *ItemRepository) Upsert(ctx context.Context, item *models.TrackedItem) error {
	query := `
		INSERT INTO items (name, url, target_price, notify_on_any_drop, render)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (url) DO UPDATE
		SET name = EXCLUDED.name,
			target_price = EXCLUDED.target_price,
			notify_on_any_drop = EXCLUDED.notify_on_any_drop,
			render = EXCLUDED.render,
			updated_at = NOW()
		RETURNING ` + itemColumns

	stored, err := scanItem(r.db.QueryRowContext(ctx, query,
		item.Name, item.URL, item.TargetPrice, item.NotifyOnAnyDrop, item.Render,
	))
	if err != nil {
		return fmt.Errorf("failed to upsert item: %w", err)
	}
	*item = *stored
	return nil
}

// List returns all tracked items, oldest first
func (r *ItemRepository) List(ctx context.Context) ([]models.TrackedItem, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []models.TrackedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

// Get returns a tracked item by ID
func (r *ItemRepository) Get(ctx context.Context, id int64) (*models.TrackedItem, error) {
	item, err := scanItem(r.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// Delete removes an item and, through the foreign key, its price history
func (r *ItemRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return nil
}
