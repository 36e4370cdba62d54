package transaction

import (
	"fmt"

	"github.com/radityprtama/stock-app/internal/masterdata"
)

// LineFulfillment says where a delivery line ships from.
type LineFulfillment string

const (
	// FulfillNormal ships from owned stock now.
	FulfillNormal LineFulfillment = "normal"
	// FulfillDropship routes the line to a supplier.
	FulfillDropship LineFulfillment = "dropship"
)

// Resolution is the outcome of resolving one delivery line.
type Resolution struct {
	Fulfillment    LineFulfillment
	DropshipStatus DropshipStatus
}

// ResolveLine decides whether a delivery line ships from owned stock or has
// to be routed to a supplier. A line goes dropship only when the item is
// dropship eligible and owned stock cannot cover the requested quantity; a
// short line on a non-eligible item is an error for the caller to surface.
func ResolveLine(line Line, item masterdata.ItemRef, available int64) (Resolution, error) {
	if line.Dropship && line.DropshipStatus == DropshipReceived {
		// goods arrived from the supplier, ships like owned stock
		return Resolution{Fulfillment: FulfillNormal}, nil
	}
	if line.Dropship && line.DropshipStatus != DropshipNone {
		// still waiting on the supplier
		return Resolution{Fulfillment: FulfillDropship, DropshipStatus: line.DropshipStatus}, nil
	}
	if available >= line.Quantity {
		return Resolution{Fulfillment: FulfillNormal}, nil
	}
	if item.DropshipEligible {
		return Resolution{Fulfillment: FulfillDropship, DropshipStatus: DropshipPending}, nil
	}
	return Resolution{}, NewDropshipNotEligible([]string{
		fmt.Sprintf("%s: stok %d, diminta %d, item tidak bisa dropship", item.Name, available, line.Quantity),
	})
}

// NextDropshipStatus returns the next sub-status in the fixed progression
// pending -> ordered -> received.
func NextDropshipStatus(current DropshipStatus) (DropshipStatus, bool) {
	switch current {
	case DropshipPending:
		return DropshipOrdered, true
	case DropshipOrdered:
		return DropshipReceived, true
	default:
		return current, false
	}
}

// CanAdvanceDropship validates a requested sub-status move.
func CanAdvanceDropship(current, target DropshipStatus) bool {
	next, ok := NextDropshipStatus(current)
	return ok && next == target
}
