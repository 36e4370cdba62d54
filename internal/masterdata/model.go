// Package masterdata exposes read-only reference data owned by the master
// data screens. The posting core consults it but never mutates it.
package masterdata

// ItemRef carries the item attributes posting decisions depend on.
type ItemRef struct {
	ID               int64  `json:"id"`
	Code             string `json:"code"`
	Name             string `json:"name"`
	Unit             string `json:"unit"`
	DropshipEligible bool   `json:"dropshipEligible"`
	MinStock         int64  `json:"minStock"`
	MaxStock         int64  `json:"maxStock"`
}

// WarehouseRef identifies a warehouse.
type WarehouseRef struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}
