package models

import "time"

// Ledger actions for StockTransaction.Action.
const (
	ActionSale           = "SALE"
	ActionReturn         = "RETURN"
	ActionStockSync      = "STOCK_SYNC"
	ActionProductCreated = "PRODUCT_CREATED"
	ActionPriceChange    = "PRICE_CHANGE"
	ActionDamage         = "DAMAGE"
	ActionTheft          = "THEFT"
	ActionCorrection     = "CORRECTION"
)

// StockTransaction is one immutable ledger entry for a stock quantity change.
// Invariant: QuantityAfter = QuantityBefore + ChangeAmount on every row, so
// replaying a product's entries in timestamp order from the earliest
// QuantityBefore reconstructs its current stock.
type StockTransaction struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID     uint      `gorm:"not null;index" json:"product_id"`
	Action        string    `gorm:"size:30;not null;index" json:"action"`
	ChangeAmount  int       `gorm:"not null" json:"change_amount"`
	QuantityBefore int      `gorm:"not null" json:"quantity_before"`
	QuantityAfter int       `gorm:"not null" json:"quantity_after"`
	WarehouseID   string    `gorm:"size:64;index" json:"warehouse_id"`
	ReferenceID   string    `gorm:"size:100" json:"reference_id"`
	ReferenceType string    `gorm:"size:50" json:"reference_type"`
	PerformedByID uint      `json:"performed_by_id"`
	Notes         string    `gorm:"size:500" json:"notes"`
	CreatedAt     time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
}

func (StockTransaction) TableName() string { return "stock_transactions" }
