package services

import (
	"github.com/shashiranjanraj/kirana/app/models"
	"github.com/shashiranjanraj/kirana/pkg/erp"
)

// NeedsUpdate is the idempotence gate of the reconciliation engine: a local
// product is only rewritten when the external record actually differs.
// Running the same sync twice with no upstream change must therefore produce
// zero writes on the second run.
//
// Kept as a pure predicate over the two snapshots so it can be tested
// without a database.
func NeedsUpdate(local *models.Product, ext erp.Product) bool {
	if local.Stock != ext.WarehouseStock {
		return true
	}
	if local.Price != ext.Price {
		return true
	}
	if local.Name != ext.Name {
		return true
	}
	return false
}

// mirrorExternal copies the mirrored (non-stock) fields of the external
// record onto the local product. Stock is excluded: stock deltas go through
// the stock service so the ledger stays complete.
func mirrorExternal(local *models.Product, ext erp.Product, warehouseID, warehouseName string) {
	local.Name = ext.Name
	local.Price = ext.Price
	local.CostPrice = ext.CostPrice
	local.Barcode = ext.Barcode
	local.CategoryName = ext.CategoryName
	local.SupplierName = ext.SupplierName
	local.MinStock = ext.MinStock
	local.WarehouseID = warehouseID
	local.WarehouseName = warehouseName
	local.StockItemID = ext.ExternalID
	local.SyncID = models.SyncKey(warehouseID, ext.ExternalID)
}
