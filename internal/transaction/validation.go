package transaction

import (
	"context"
	"fmt"
)

// validateDraft applies the per-kind rules a validator tag cannot express and
// resolves master-data references.
func (s *Service) validateDraft(ctx context.Context, kind Kind, req CreateRequest) error {
	var details []string

	switch kind {
	case KindTransfer:
		if req.DestWarehouseID == 0 {
			details = append(details, "gudang tujuan wajib diisi")
		}
		if req.DestWarehouseID == req.WarehouseID {
			details = append(details, "gudang asal dan tujuan harus berbeda")
		}
	case KindDeliveryNote:
		if req.CounterpartyID == 0 {
			details = append(details, "customer wajib diisi")
		}
		if req.DeliveryOption == "" {
			details = append(details, "opsi pengiriman wajib diisi")
		}
	case KindGoodsReceipt, KindPurchaseReturn:
		if req.CounterpartyID == 0 {
			details = append(details, "supplier wajib diisi")
		}
	case KindSalesReturn:
		if req.CounterpartyID == 0 {
			details = append(details, "customer wajib diisi")
		}
		for i, line := range req.Lines {
			if line.Condition == "" {
				details = append(details, fmt.Sprintf("baris %d: kondisi barang wajib diisi", i+1))
			}
		}
	}

	for i, line := range req.Lines {
		if line.Quantity <= 0 {
			details = append(details, fmt.Sprintf("baris %d: jumlah harus lebih dari nol", i+1))
		}
		if line.UnitPrice.IsNegative() {
			details = append(details, fmt.Sprintf("baris %d: harga tidak boleh negatif", i+1))
		}
	}
	if len(details) > 0 {
		return NewValidationError("data transaksi tidak valid", details...)
	}

	exists, err := s.master.WarehouseExists(ctx, req.WarehouseID)
	if err != nil {
		return fmt.Errorf("transaction: check warehouse: %w", err)
	}
	if !exists {
		return NewValidationError("gudang tidak ditemukan")
	}
	if kind == KindTransfer {
		exists, err := s.master.WarehouseExists(ctx, req.DestWarehouseID)
		if err != nil {
			return fmt.Errorf("transaction: check warehouse: %w", err)
		}
		if !exists {
			return NewValidationError("gudang tujuan tidak ditemukan")
		}
	}

	itemIDs := make([]int64, 0, len(req.Lines))
	for _, line := range req.Lines {
		itemIDs = append(itemIDs, line.ItemID)
	}
	items, err := s.master.GetItems(ctx, itemIDs)
	if err != nil {
		return fmt.Errorf("transaction: load items: %w", err)
	}
	for i, line := range req.Lines {
		if _, ok := items[line.ItemID]; !ok {
			details = append(details, fmt.Sprintf("baris %d: barang %d tidak ditemukan", i+1, line.ItemID))
		}
	}
	if len(details) > 0 {
		return NewValidationError("data transaksi tidak valid", details...)
	}
	return nil
}
