package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrItemNotFound indicates a missing item reference.
var ErrItemNotFound = errors.New("masterdata: item not found")

// ErrWarehouseNotFound indicates a missing warehouse reference.
var ErrWarehouseNotFound = errors.New("masterdata: warehouse not found")

// Repository reads reference data from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetItem fetches one item reference.
func (r *Repository) GetItem(ctx context.Context, id int64) (ItemRef, error) {
	const query = `
		SELECT id, code, name, unit, dropship_eligible, min_stock, max_stock
		FROM items
		WHERE id = $1
	`
	var item ItemRef
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&item.ID, &item.Code, &item.Name, &item.Unit,
		&item.DropshipEligible, &item.MinStock, &item.MaxStock,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ItemRef{}, ErrItemNotFound
		}
		return ItemRef{}, fmt.Errorf("masterdata: get item: %w", err)
	}
	return item, nil
}

// GetItems fetches several item references keyed by id. Missing ids are
// simply absent from the result, callers decide whether that is an error.
func (r *Repository) GetItems(ctx context.Context, ids []int64) (map[int64]ItemRef, error) {
	if len(ids) == 0 {
		return map[int64]ItemRef{}, nil
	}
	const query = `
		SELECT id, code, name, unit, dropship_eligible, min_stock, max_stock
		FROM items
		WHERE id = ANY($1)
	`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("masterdata: get items: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]ItemRef, len(ids))
	for rows.Next() {
		var item ItemRef
		if err := rows.Scan(&item.ID, &item.Code, &item.Name, &item.Unit,
			&item.DropshipEligible, &item.MinStock, &item.MaxStock); err != nil {
			return nil, fmt.Errorf("masterdata: scan item: %w", err)
		}
		result[item.ID] = item
	}
	return result, rows.Err()
}

// WarehouseExists reports whether the warehouse id is known.
func (r *Repository) WarehouseExists(ctx context.Context, id int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM warehouses WHERE id = $1)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("masterdata: warehouse exists: %w", err)
	}
	return exists, nil
}
