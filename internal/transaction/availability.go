package transaction

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/radityprtama/stock-app/internal/masterdata"
)

// MasterDataPort reads item and warehouse reference data.
type MasterDataPort interface {
	GetItems(ctx context.Context, ids []int64) (map[int64]masterdata.ItemRef, error)
	WarehouseExists(ctx context.Context, id int64) (bool, error)
}

// BalanceReader reads current balances. The advisory checker tolerates
// stale reads; the posting path never uses this interface.
type BalanceReader interface {
	AdvisoryBalance(ctx context.Context, itemID, warehouseID int64) (int64, error)
}

// StockStatus classifies one line against current stock.
type StockStatus string

const (
	StockSufficient   StockStatus = "sufficient"
	StockInsufficient StockStatus = "insufficient"
)

// Recommendation tells the user what posting would do with the line.
type Recommendation string

const (
	RecommendShipNow          Recommendation = "ship-now"
	RecommendDropship         Recommendation = "dropship-required"
	RecommendNotEligible      Recommendation = "insufficient-and-not-dropship-eligible"
	RecommendAwaitingDropship Recommendation = "awaiting-dropship"
)

// LineAvailability is the per-line verdict of a dry run.
type LineAvailability struct {
	LineID         int64          `json:"lineId"`
	ItemID         int64          `json:"itemId"`
	ItemName       string         `json:"itemName"`
	Requested      int64          `json:"requested"`
	CurrentStock   int64          `json:"currentStock"`
	Status         StockStatus    `json:"stockStatus"`
	Dropship       bool           `json:"dropship"`
	DropshipStatus DropshipStatus `json:"dropshipStatus,omitempty"`
	Recommendation Recommendation `json:"recommendation"`
}

// AvailabilityReport is the dry-run result of a prospective posting.
type AvailabilityReport struct {
	TransactionID  int64              `json:"transactionId"`
	DeliveryOption DeliveryOption     `json:"deliveryOption,omitempty"`
	CanPost        bool               `json:"canPost"`
	Lines          []LineAvailability `json:"lines"`
	Shortages      []string           `json:"shortages,omitempty"`
	Warnings       []string           `json:"warnings,omitempty"`
}

// AvailabilityChecker simulates a posting without touching state. Reads are
// not serialized against concurrent postings; the result is advisory and the
// coordinator re-checks under row locks at commit time.
type AvailabilityChecker struct {
	master MasterDataPort
	stocks BalanceReader
}

// NewAvailabilityChecker builds the checker.
func NewAvailabilityChecker(master MasterDataPort, stocks BalanceReader) *AvailabilityChecker {
	return &AvailabilityChecker{master: master, stocks: stocks}
}

// Check produces the availability report for a draft delivery. Balances for
// all lines are fetched concurrently.
func (c *AvailabilityChecker) Check(ctx context.Context, trx Transaction) (AvailabilityReport, error) {
	report := AvailabilityReport{
		TransactionID:  trx.ID,
		DeliveryOption: trx.DeliveryOption,
		CanPost:        true,
	}
	if len(trx.Lines) == 0 {
		report.CanPost = false
		report.Shortages = append(report.Shortages, "transaksi tidak memiliki baris")
		return report, nil
	}

	itemIDs := make([]int64, 0, len(trx.Lines))
	for _, line := range trx.Lines {
		itemIDs = append(itemIDs, line.ItemID)
	}
	items, err := c.master.GetItems(ctx, itemIDs)
	if err != nil {
		return AvailabilityReport{}, fmt.Errorf("transaction: load items: %w", err)
	}

	unique := make([]int64, 0, len(trx.Lines))
	seen := make(map[int64]bool, len(trx.Lines))
	for _, line := range trx.Lines {
		if !seen[line.ItemID] {
			seen[line.ItemID] = true
			unique = append(unique, line.ItemID)
		}
	}

	balances := make(map[int64]int64, len(unique))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, itemID := range unique {
		itemID := itemID
		g.Go(func() error {
			qty, err := c.stocks.AdvisoryBalance(gctx, itemID, trx.WarehouseID)
			if err != nil {
				return err
			}
			mu.Lock()
			balances[itemID] = qty
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return AvailabilityReport{}, fmt.Errorf("transaction: read balances: %w", err)
	}

	for _, line := range trx.Lines {
		item := items[line.ItemID]
		current := balances[line.ItemID]
		la := LineAvailability{
			LineID:         line.ID,
			ItemID:         line.ItemID,
			ItemName:       item.Name,
			Requested:      line.Quantity,
			CurrentStock:   current,
			Dropship:       line.Dropship,
			DropshipStatus: line.DropshipStatus,
			Status:         StockSufficient,
		}

		resolution, resolveErr := ResolveLine(line, item, current)
		switch {
		case resolveErr != nil:
			la.Status = StockInsufficient
			la.Recommendation = RecommendNotEligible
			report.CanPost = false
			report.Shortages = append(report.Shortages,
				fmt.Sprintf("%s: stok %d dari %d yang diminta, tidak bisa dropship", item.Name, current, line.Quantity))
		case resolution.Fulfillment == FulfillDropship:
			la.Status = StockInsufficient
			la.Dropship = true
			la.DropshipStatus = resolution.DropshipStatus
			if resolution.DropshipStatus == DropshipPending && !line.Dropship {
				la.Recommendation = RecommendDropship
			} else {
				la.Recommendation = RecommendAwaitingDropship
			}
			if trx.DeliveryOption == DeliveryComplete {
				// complete delivery may only post once every dropship
				// line has been received
				report.CanPost = false
				report.Shortages = append(report.Shortages,
					fmt.Sprintf("%s: menunggu dropship (%s)", item.Name, la.DropshipStatus))
			}
		default:
			la.Recommendation = RecommendShipNow
			if remaining := current - line.Quantity; item.MinStock > 0 && remaining < item.MinStock {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("%s: sisa stok %d di bawah minimum %d", item.Name, remaining, item.MinStock))
			}
		}
		report.Lines = append(report.Lines, la)
	}
	return report, nil
}
