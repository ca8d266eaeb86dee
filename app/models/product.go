package models

import (
	"time"

	"gorm.io/gorm"
)

// Sync status values for Product.SyncStatus.
const (
	SyncStatusSynced    = "synced"
	SyncStatusPending   = "pending"
	SyncStatusOutOfSync = "out_of_sync"
)

// Product is a catalogue row owned by the point of sale. The stock field is
// only ever written by the stock service; sync-related fields are only ever
// written by the reconciliation engine.
type Product struct {
	gorm.Model
	SKU          string  `gorm:"size:100;uniqueIndex"   json:"sku"`
	Name         string  `gorm:"size:255;not null;index" json:"name"`
	Price        float64 `gorm:"not null;default:0"     json:"price"`
	CostPrice    float64 `gorm:"not null;default:0"     json:"cost_price"`
	Barcode      string  `gorm:"size:100;index"         json:"barcode"`
	CategoryName string  `gorm:"size:255"               json:"category_name"`
	SupplierName string  `gorm:"size:255"               json:"supplier_name"`

	Stock    int `gorm:"not null;default:0" json:"stock"`
	MinStock int `gorm:"not null;default:0" json:"min_stock"`

	// External inventory linkage. A product belongs to exactly one warehouse;
	// moving warehouses is modelled as deactivate + create, never an in-place
	// warehouse change on a stock-bearing row.
	WarehouseID   string     `gorm:"size:64;index"        json:"warehouse_id"`
	WarehouseName string     `gorm:"size:255"             json:"warehouse_name"`
	StockItemID   string     `gorm:"size:64;index"        json:"stock_item_id"`
	// SyncID is warehouseID:externalID for linked rows, empty for
	// local-only rows. Not a unique index so any number of local rows
	// can carry the empty value.
	SyncID        string     `gorm:"size:160;index"       json:"sync_id"`
	SyncStatus    string     `gorm:"size:20;not null;default:pending" json:"sync_status"`
	LastSyncAt    *time.Time `json:"last_sync_at"`

	IsActive bool `gorm:"not null;default:true" json:"is_active"`
}

// SyncKey derives the stable composite key linking a local product to an
// external inventory record within one warehouse.
func SyncKey(warehouseID, externalID string) string {
	return warehouseID + ":" + externalID
}

// BelowMinStock reports whether the product sits at or under its reorder
// threshold. A zero MinStock disables the check.
func (p *Product) BelowMinStock() bool {
	return p.MinStock > 0 && p.Stock <= p.MinStock
}
