package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// TxStore exposes the balance and ledger mutations available inside one
// posting unit of work. All stock mutation funnels through Apply; nothing
// else writes stock_balances or stock_ledger.
type TxStore interface {
	// BalanceForUpdate reads and row-locks the current quantity, zero when
	// the pair has never moved stock.
	BalanceForUpdate(ctx context.Context, itemID, warehouseID int64) (int64, error)
	// Apply mutates the balance and appends the matching ledger entry.
	// Fails with ErrInsufficientStock when the balance would go negative,
	// leaving the enclosing transaction to roll back.
	Apply(ctx context.Context, m Movement) (LedgerEntry, error)
}

// NewTxStore wraps a pgx transaction.
func NewTxStore(tx pgx.Tx) TxStore {
	return &txStore{tx: tx}
}

type txStore struct {
	tx pgx.Tx
}

func (s *txStore) BalanceForUpdate(ctx context.Context, itemID, warehouseID int64) (int64, error) {
	const query = `
		SELECT quantity FROM stock_balances
		WHERE item_id = $1 AND warehouse_id = $2
		FOR UPDATE
	`
	var qty int64
	err := s.tx.QueryRow(ctx, query, itemID, warehouseID).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("stock: balance for update: %w", err)
	}
	return qty, nil
}

func (s *txStore) Apply(ctx context.Context, m Movement) (LedgerEntry, error) {
	if m.ItemID == 0 || m.WarehouseID == 0 {
		return LedgerEntry{}, fmt.Errorf("%w: item and warehouse required", ErrInvalidMovement)
	}
	if m.Quantity <= 0 {
		return LedgerEntry{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidMovement)
	}
	if !m.Direction.IsValid() {
		return LedgerEntry{}, fmt.Errorf("%w: unknown direction %q", ErrInvalidMovement, m.Direction)
	}
	if m.UnitValue.IsNegative() {
		return LedgerEntry{}, fmt.Errorf("%w: unit value must be >= 0", ErrInvalidMovement)
	}

	current, err := s.BalanceForUpdate(ctx, m.ItemID, m.WarehouseID)
	if err != nil {
		return LedgerEntry{}, err
	}
	newQty := current + m.Signed()
	if newQty < 0 {
		return LedgerEntry{}, fmt.Errorf("%w: item %d warehouse %d has %d, need %d",
			ErrInsufficientStock, m.ItemID, m.WarehouseID, current, m.Quantity)
	}

	const upsert = `
		INSERT INTO stock_balances (item_id, warehouse_id, quantity, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (item_id, warehouse_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
	`
	now := m.OccurredAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if _, err := s.tx.Exec(ctx, upsert, m.ItemID, m.WarehouseID, newQty, now); err != nil {
		return LedgerEntry{}, fmt.Errorf("stock: upsert balance: %w", err)
	}

	entry := LedgerEntry{
		ItemID:              m.ItemID,
		WarehouseID:         m.WarehouseID,
		Direction:           m.Direction,
		Quantity:            m.Quantity,
		UnitValue:           m.UnitValue,
		SourceID:            m.SourceID,
		SourceKind:          m.SourceKind,
		SourceDoc:           m.SourceDoc,
		Note:                m.Note,
		RunningBalanceAfter: newQty,
		OccurredAt:          now,
		CreatedBy:           m.ActorID,
	}
	const insert = `
		INSERT INTO stock_ledger (
			item_id, warehouse_id, direction, quantity, unit_value,
			source_tx_id, source_tx_kind, source_doc, note,
			running_balance_after, occurred_at, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	err = s.tx.QueryRow(ctx, insert,
		entry.ItemID, entry.WarehouseID, string(entry.Direction), entry.Quantity,
		entry.UnitValue, entry.SourceID, entry.SourceKind, entry.SourceDoc,
		entry.Note, entry.RunningBalanceAfter, entry.OccurredAt, entry.CreatedBy,
	).Scan(&entry.ID)
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("stock: append ledger entry: %w", err)
	}
	return entry, nil
}
