package stock

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Direction marks which way a ledger entry moves stock.
type Direction string

const (
	// DirectionIn increases the balance at the entry's warehouse.
	DirectionIn Direction = "in"
	// DirectionOut decreases the balance at the entry's warehouse.
	DirectionOut Direction = "out"
)

// IsValid checks the direction value.
func (d Direction) IsValid() bool {
	return d == DirectionIn || d == DirectionOut
}

// Movement describes one prospective stock mutation. Applying a movement
// updates the balance and appends the matching ledger entry in the same
// database transaction.
type Movement struct {
	ItemID      int64
	WarehouseID int64
	Direction   Direction
	Quantity    int64
	UnitValue   decimal.Decimal
	SourceID    int64
	SourceKind  string
	SourceDoc   string
	Note        string
	OccurredAt  time.Time
	ActorID     int64
}

// Signed returns the quantity with the direction applied.
func (m Movement) Signed() int64 {
	if m.Direction == DirectionOut {
		return -m.Quantity
	}
	return m.Quantity
}

// LedgerEntry is one immutable row of the stock ledger. Entries are only
// ever appended; a correction is a new entry in the opposite direction.
type LedgerEntry struct {
	ID                  int64           `json:"id"`
	ItemID              int64           `json:"itemId"`
	WarehouseID         int64           `json:"warehouseId"`
	Direction           Direction       `json:"direction"`
	Quantity            int64           `json:"quantity"`
	UnitValue           decimal.Decimal `json:"unitValue"`
	SourceID            int64           `json:"sourceTransactionId"`
	SourceKind          string          `json:"sourceTransactionKind"`
	SourceDoc           string          `json:"sourceDocumentNumber"`
	Note                string          `json:"note,omitempty"`
	RunningBalanceAfter int64           `json:"runningBalanceAfter"`
	OccurredAt          time.Time       `json:"occurredAt"`
	CreatedBy           int64           `json:"createdBy,omitempty"`
}

// Balance summarises current stock of an item in a warehouse.
type Balance struct {
	ItemID      int64     `json:"itemId"`
	WarehouseID int64     `json:"warehouseId"`
	Quantity    int64     `json:"quantity"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// BalanceKey identifies one (item, warehouse) balance row.
type BalanceKey struct {
	ItemID      int64
	WarehouseID int64
}

// MovementFilter selects kartu stok entries.
type MovementFilter struct {
	ItemID      int64
	WarehouseID int64
	From        time.Time
	To          time.Time
	SourceKind  string
	SortBy      string
	SortOrder   string
	Page        int
	PerPage     int
}

// MovementStats aggregates the filtered range, independent of pagination.
type MovementStats struct {
	OpeningBalance   int64           `json:"openingBalance"`
	ClosingBalance   int64           `json:"closingBalance"`
	TotalIn          int64           `json:"totalIn"`
	TotalOut         int64           `json:"totalOut"`
	TotalValueIn     decimal.Decimal `json:"totalValueIn"`
	TotalValueOut    decimal.Decimal `json:"totalValueOut"`
	TransactionCount int             `json:"transactionCount"`
	AverageQuantity  decimal.Decimal `json:"averageQuantity"`
}

// Divergence reports a balance row that no longer matches its ledger fold.
type Divergence struct {
	ItemID      int64 `json:"itemId"`
	WarehouseID int64 `json:"warehouseId"`
	BalanceQty  int64 `json:"balanceQty"`
	LedgerQty   int64 `json:"ledgerQty"`
}

// ErrInsufficientStock triggered when a movement would drive a balance negative.
var ErrInsufficientStock = errors.New("stock: insufficient stock")

// ErrInvalidMovement indicates malformed movement data.
var ErrInvalidMovement = errors.New("stock: invalid movement")
