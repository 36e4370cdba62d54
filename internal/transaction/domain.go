package transaction

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind discriminates the five transaction shapes sharing one workflow.
type Kind string

const (
	// KindGoodsReceipt is incoming goods (barang masuk).
	KindGoodsReceipt Kind = "barang_masuk"
	// KindDeliveryNote is an outbound delivery note (surat jalan).
	KindDeliveryNote Kind = "surat_jalan"
	// KindTransfer moves stock between warehouses (delivery order).
	KindTransfer Kind = "delivery_order"
	// KindPurchaseReturn sends goods back to a supplier (retur beli).
	KindPurchaseReturn Kind = "retur_beli"
	// KindSalesReturn takes goods back from a customer (retur jual).
	KindSalesReturn Kind = "retur_jual"
)

// IsValid checks the kind value.
func (k Kind) IsValid() bool {
	switch k {
	case KindGoodsReceipt, KindDeliveryNote, KindTransfer, KindPurchaseReturn, KindSalesReturn:
		return true
	default:
		return false
	}
}

// Status is the lifecycle position of a transaction.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPosted    Status = "posted"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusApproved  Status = "approved"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// CanEdit reports whether lines may still change.
func (s Status) CanEdit() bool {
	return s == StatusDraft
}

// Action is a user-triggered workflow step.
type Action string

const (
	ActionPost     Action = "post"
	ActionDeliver  Action = "deliver"
	ActionApprove  Action = "approve"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
	// ActionFulfill posts previously-pending dropship lines of a partial
	// delivery; the document stays in_transit.
	ActionFulfill Action = "fulfill"
)

// DeliveryOption is the transaction-level shortfall policy of a delivery note.
type DeliveryOption string

const (
	// DeliveryComplete requires every line fulfillable before posting.
	DeliveryComplete DeliveryOption = "complete"
	// DeliveryPartial posts fulfillable lines and parks the rest as
	// pending dropship lines on the same document.
	DeliveryPartial DeliveryOption = "partial"
)

// LineCondition tags a sales-return line.
type LineCondition string

const (
	// ConditionResalable re-enters stock on approval.
	ConditionResalable LineCondition = "resalable"
	// ConditionTotalLoss never touches stock.
	ConditionTotalLoss LineCondition = "total_loss"
)

// DropshipStatus is the sub-state of a dropship-flagged delivery line. It
// progresses independently of the parent document status.
type DropshipStatus string

const (
	DropshipNone     DropshipStatus = ""
	DropshipPending  DropshipStatus = "pending"
	DropshipOrdered  DropshipStatus = "ordered"
	DropshipReceived DropshipStatus = "received"
)

// Transaction is the shared header of all five kinds.
type Transaction struct {
	ID              int64          `json:"id"`
	Kind            Kind           `json:"kind"`
	DocNumber       string         `json:"documentNumber"`
	Date            time.Time      `json:"date"`
	CounterpartyID  int64          `json:"counterpartyId,omitempty"`
	WarehouseID     int64          `json:"warehouseId"`
	DestWarehouseID int64          `json:"destWarehouseId,omitempty"`
	DeliveryOption  DeliveryOption `json:"deliveryOption,omitempty"`
	Status          Status         `json:"status"`
	Notes           string         `json:"notes,omitempty"`
	CreatedBy       int64          `json:"createdBy"`
	PostedAt        *time.Time     `json:"postedAt,omitempty"`
	PostedBy        *int64         `json:"postedBy,omitempty"`
	DeliveredAt     *time.Time     `json:"deliveredAt,omitempty"`
	CompletedAt     *time.Time     `json:"completedAt,omitempty"`
	CancelledAt     *time.Time     `json:"cancelledAt,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	Lines           []Line         `json:"lines,omitempty"`
}

// Line is one item position. Lines are owned by their transaction and are
// immutable once the transaction leaves draft.
type Line struct {
	ID             int64           `json:"id"`
	TransactionID  int64           `json:"transactionId"`
	ItemID         int64           `json:"itemId"`
	Quantity       int64           `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Reason         string          `json:"reason,omitempty"`
	Condition      LineCondition   `json:"condition,omitempty"`
	Dropship       bool            `json:"dropship"`
	DropshipStatus DropshipStatus  `json:"dropshipStatus,omitempty"`
	PostedAt       *time.Time      `json:"postedAt,omitempty"`
}

// StockPosted reports whether this line's stock effect already committed.
func (l Line) StockPosted() bool {
	return l.PostedAt != nil
}

// ListFilter selects transactions for listing.
type ListFilter struct {
	Kind     Kind
	Status   Status
	DateFrom time.Time
	DateTo   time.Time
	Search   string
	Page     int
	PerPage  int
}

// LineStockLevel carries the per-line resulting stock level returned from a
// posting so the UI does not need a follow-up read.
type LineStockLevel struct {
	LineID         int64          `json:"lineId"`
	ItemID         int64          `json:"itemId"`
	WarehouseID    int64          `json:"warehouseId"`
	Quantity       int64          `json:"stockAfter"`
	Posted         bool           `json:"posted"`
	Dropship       bool           `json:"dropship"`
	DropshipStatus DropshipStatus `json:"dropshipStatus,omitempty"`
}

// PostingResult is the authoritative post-action state.
type PostingResult struct {
	Transaction     Transaction      `json:"transaction"`
	Status          Status           `json:"status"`
	DropshipPending []Line           `json:"dropshipPending,omitempty"`
	LineStock       []LineStockLevel `json:"lineStock,omitempty"`
}
