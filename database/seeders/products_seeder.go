package seeders

import (
	"github.com/shashiranjanraj/kirana/app/models"
	"gorm.io/gorm"
)

func init() {
	Register("products", SeedProducts)
}

// SeedProducts inserts a small local-only catalog for development. These
// rows have no sync linkage, so warehouse syncs leave them untouched.
func SeedProducts(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Product{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	products := []models.Product{
		{SKU: "LOC-001", Name: "House Blend Coffee 250g", Price: 8.50, CostPrice: 4.10, Stock: 40, MinStock: 10, WarehouseID: "local", IsActive: true, SyncStatus: models.SyncStatusPending},
		{SKU: "LOC-002", Name: "Paper Bags (100)", Price: 3.20, CostPrice: 1.40, Stock: 200, MinStock: 50, WarehouseID: "local", IsActive: true, SyncStatus: models.SyncStatusPending},
		{SKU: "LOC-003", Name: "Gift Card", Price: 25.00, CostPrice: 0.50, Stock: 500, MinStock: 0, WarehouseID: "local", IsActive: true, SyncStatus: models.SyncStatusPending},
	}
	return db.Create(&products).Error
}
