package resolver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SQLiteResolver resolves codes against the local items and skus tables.
// Inactive items and SKUs are ignored.
type SQLiteResolver struct {
	db *sql.DB
}

// NewSQLiteResolver creates a resolver over db.
func NewSQLiteResolver(db *sql.DB) *SQLiteResolver {
	return &SQLiteResolver{db: db}
}

// Resolve looks up q.Code by UPC. SKUs at q.LocationID sort first.
func (r *SQLiteResolver) Resolve(ctx context.Context, q Query) (Resolution, error) {
	q.Code = strings.TrimSpace(q.Code)
	if q.Code == "" {
		return Resolution{}, ErrEmptyCode
	}

	var (
		item        Item
		description sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, upc FROM items WHERE upc = ? AND is_active = 1`,
		q.Code,
	).Scan(&item.ID, &item.Name, &description, &item.UPC)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(q), nil
	}
	if err != nil {
		return Resolution{}, fmt.Errorf("querying item by upc: %w", err)
	}
	item.Description = description.String

	skus, err := r.skus(ctx, item.ID, q.LocationID)
	if err != nil {
		return Resolution{}, err
	}
	return found(q, item, skus), nil
}

func (r *SQLiteResolver) skus(ctx context.Context, itemID int64, locationID string) ([]SKU, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, item_id, location_id, quantity, unit
		FROM skus
		WHERE item_id = ? AND is_active = 1
		ORDER BY location_id = ? DESC, location_id, id`,
		itemID, locationID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying skus: %w", err)
	}
	defer rows.Close()

	var skus []SKU
	for rows.Next() {
		var (
			s    SKU
			unit sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.ItemID, &s.LocationID, &s.Quantity, &unit); err != nil {
			return nil, fmt.Errorf("scanning sku: %w", err)
		}
		s.Unit = unit.String
		skus = append(skus, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating skus: %w", err)
	}
	return skus, nil
}
