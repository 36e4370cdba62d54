package transaction

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineRequest is one line of a create/update payload.
type LineRequest struct {
	ItemID    int64           `json:"itemId" validate:"required,gt=0"`
	Quantity  int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Reason    string          `json:"reason,omitempty" validate:"omitempty,max=500"`
	Condition LineCondition   `json:"condition,omitempty" validate:"omitempty,oneof=resalable total_loss"`
}

// CreateRequest creates a draft of any kind; per-kind rules live in
// validateDraft.
type CreateRequest struct {
	Date            time.Time      `json:"date" validate:"required"`
	CounterpartyID  int64          `json:"counterpartyId" validate:"gte=0"`
	WarehouseID     int64          `json:"warehouseId" validate:"required,gt=0"`
	DestWarehouseID int64          `json:"destWarehouseId" validate:"gte=0"`
	DeliveryOption  DeliveryOption `json:"deliveryOption,omitempty" validate:"omitempty,oneof=complete partial"`
	Notes           string         `json:"notes,omitempty"`
	Lines           []LineRequest  `json:"lines" validate:"required,min=1,dive"`
}

// UpdateRequest rewrites a draft. Same shape as create.
type UpdateRequest = CreateRequest

// DropshipAdvanceRequest moves a dropship line's sub-status forward.
type DropshipAdvanceRequest struct {
	Status DropshipStatus `json:"status" validate:"required,oneof=ordered received"`
}

// ListResponse is the paginated list payload.
type ListResponse struct {
	Transactions []Transaction `json:"transactions"`
	Total        int           `json:"total"`
	Page         int           `json:"page"`
	PerPage      int           `json:"perPage"`
}
