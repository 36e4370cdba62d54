package stock

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository serves read paths over stock data in PostgreSQL. Writes go
// through TxStore inside the posting unit of work only.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetBalance reads the live quantity, zero when the pair has no row.
func (r *Repository) GetBalance(ctx context.Context, itemID, warehouseID int64) (int64, error) {
	const query = `
		SELECT COALESCE(
			(SELECT quantity FROM stock_balances WHERE item_id = $1 AND warehouse_id = $2), 0
		)
	`
	var qty int64
	if err := r.pool.QueryRow(ctx, query, itemID, warehouseID).Scan(&qty); err != nil {
		return 0, fmt.Errorf("stock: get balance: %w", err)
	}
	return qty, nil
}

var movementSortColumns = map[string]string{
	"date":     "occurred_at",
	"quantity": "quantity",
	"balance":  "running_balance_after",
}

func (f MovementFilter) orderClause() string {
	column, ok := movementSortColumns[f.SortBy]
	if !ok {
		column = "occurred_at"
	}
	order := "ASC"
	if strings.EqualFold(f.SortOrder, "desc") {
		order = "DESC"
	}
	// id tiebreak keeps the sequence restartable across pages
	return fmt.Sprintf(" ORDER BY %s %s, id %s", column, order, order)
}

func (f MovementFilter) whereClause() (string, []interface{}) {
	where := ` WHERE item_id = $1`
	args := []interface{}{f.ItemID}
	if f.WarehouseID != 0 {
		args = append(args, f.WarehouseID)
		where += ` AND warehouse_id = $` + strconv.Itoa(len(args))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		where += ` AND occurred_at >= $` + strconv.Itoa(len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		where += ` AND occurred_at <= $` + strconv.Itoa(len(args))
	}
	if f.SourceKind != "" {
		args = append(args, f.SourceKind)
		where += ` AND source_tx_kind = $` + strconv.Itoa(len(args))
	}
	return where, args
}

// ListMovements returns one page of kartu stok entries plus the total count
// for the filter.
func (r *Repository) ListMovements(ctx context.Context, f MovementFilter) ([]LedgerEntry, int, error) {
	where, args := f.whereClause()

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_ledger`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("stock: count movements: %w", err)
	}

	query := `
		SELECT id, item_id, warehouse_id, direction, quantity, unit_value,
		       source_tx_id, source_tx_kind, source_doc, note,
		       running_balance_after, occurred_at, created_by
		FROM stock_ledger` + where + f.orderClause()
	perPage := f.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("stock: list movements: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.ItemID, &e.WarehouseID, &e.Direction, &e.Quantity,
			&e.UnitValue, &e.SourceID, &e.SourceKind, &e.SourceDoc, &e.Note,
			&e.RunningBalanceAfter, &e.OccurredAt, &e.CreatedBy); err != nil {
			return nil, 0, fmt.Errorf("stock: scan movement: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// MovementStats aggregates the whole filtered range regardless of paging.
// Opening balance is the signed fold of all entries strictly before the
// range start, zero when there are none.
func (r *Repository) MovementStats(ctx context.Context, f MovementFilter) (MovementStats, error) {
	where, args := f.whereClause()

	stats := MovementStats{
		TotalValueIn:    decimal.Zero,
		TotalValueOut:   decimal.Zero,
		AverageQuantity: decimal.Zero,
	}
	aggregate := `
		SELECT
			COALESCE(SUM(quantity) FILTER (WHERE direction = 'in'), 0),
			COALESCE(SUM(quantity) FILTER (WHERE direction = 'out'), 0),
			COALESCE(SUM(quantity * unit_value) FILTER (WHERE direction = 'in'), 0),
			COALESCE(SUM(quantity * unit_value) FILTER (WHERE direction = 'out'), 0),
			COUNT(*)
		FROM stock_ledger` + where
	err := r.pool.QueryRow(ctx, aggregate, args...).Scan(
		&stats.TotalIn, &stats.TotalOut,
		&stats.TotalValueIn, &stats.TotalValueOut,
		&stats.TransactionCount,
	)
	if err != nil {
		return MovementStats{}, fmt.Errorf("stock: movement stats: %w", err)
	}

	if !f.From.IsZero() {
		query, openArgs := openingBalanceQuery(f)
		if err := r.pool.QueryRow(ctx, query, openArgs...).Scan(&stats.OpeningBalance); err != nil {
			return MovementStats{}, fmt.Errorf("stock: opening balance: %w", err)
		}
	}
	stats.ClosingBalance = stats.OpeningBalance + stats.TotalIn - stats.TotalOut
	if stats.TransactionCount > 0 {
		totalQty := decimal.NewFromInt(stats.TotalIn + stats.TotalOut)
		stats.AverageQuantity = totalQty.Div(decimal.NewFromInt(int64(stats.TransactionCount))).Round(2)
	}
	return stats, nil
}

// openingBalanceQuery folds every entry strictly before the range start into
// a signed sum. running_balance_after is per (item, warehouse), so it cannot
// open a range that spans warehouses; the fold holds either way. The type
// filter is dropped here, the opening is a physical balance.
func openingBalanceQuery(f MovementFilter) (string, []interface{}) {
	opening := MovementFilter{ItemID: f.ItemID, WarehouseID: f.WarehouseID, To: f.From}
	where, args := opening.whereClause()
	// strictly before the range start
	where = strings.Replace(where, "occurred_at <=", "occurred_at <", 1)
	query := `
		SELECT COALESCE(SUM(CASE WHEN direction = 'in' THEN quantity ELSE -quantity END), 0)
		FROM stock_ledger` + where
	return query, args
}

// FindDivergences compares every balance row against the fold of its ledger
// entries. A healthy store returns an empty slice.
func (r *Repository) FindDivergences(ctx context.Context) ([]Divergence, error) {
	const query = `
		SELECT b.item_id, b.warehouse_id, b.quantity, COALESCE(l.folded, 0)
		FROM stock_balances b
		LEFT JOIN (
			SELECT item_id, warehouse_id,
			       SUM(CASE WHEN direction = 'in' THEN quantity ELSE -quantity END) AS folded
			FROM stock_ledger
			GROUP BY item_id, warehouse_id
		) l ON l.item_id = b.item_id AND l.warehouse_id = b.warehouse_id
		WHERE b.quantity <> COALESCE(l.folded, 0)
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("stock: find divergences: %w", err)
	}
	defer rows.Close()

	var out []Divergence
	for rows.Next() {
		var d Divergence
		if err := rows.Scan(&d.ItemID, &d.WarehouseID, &d.BalanceQty, &d.LedgerQty); err != nil {
			return nil, fmt.Errorf("stock: scan divergence: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
