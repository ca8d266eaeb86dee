package repositories

import (
	"errors"
	"fmt"

	"github.com/shashiranjanraj/kirana/app/models"
	"gorm.io/gorm"
)

// ProductRepository handles database access for Product rows. It is built
// around an explicit *gorm.DB so callers control the persistence context;
// nothing here reads ambient globals.
type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// FindByID returns a non-deleted product by primary key, or nil when absent.
func (r *ProductRepository) FindByID(id uint) (*models.Product, error) {
	var p models.Product
	err := r.db.First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("product by id %d: %w", id, err)
	}
	return &p, nil
}

// FindBySyncID looks a product up by its warehouse-scoped sync key.
func (r *ProductRepository) FindBySyncID(syncID string) (*models.Product, error) {
	var p models.Product
	err := r.db.Where("sync_id = ?", syncID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("product by sync id %s: %w", syncID, err)
	}
	return &p, nil
}

// FindByStockItem is the legacy fallback lookup: rows linked before sync IDs
// existed carry only the external stock item ID plus their warehouse.
func (r *ProductRepository) FindByStockItem(stockItemID, warehouseID string) (*models.Product, error) {
	var p models.Product
	err := r.db.
		Where("stock_item_id = ? AND warehouse_id = ?", stockItemID, warehouseID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("product by stock item %s/%s: %w", stockItemID, warehouseID, err)
	}
	return &p, nil
}

// Create persists a new product row.
func (r *ProductRepository) Create(p *models.Product) error {
	if err := r.db.Create(p).Error; err != nil {
		return fmt.Errorf("create product %s: %w", p.SKU, err)
	}
	return nil
}

// Save persists changes to an existing product. Stock is deliberately not a
// valid field here: stock changes go through the stock service.
func (r *ProductRepository) Save(p *models.Product) error {
	if err := r.db.Omit("stock").Save(p).Error; err != nil {
		return fmt.Errorf("save product %d: %w", p.ID, err)
	}
	return nil
}

// DeactivateMissing marks every active product of the warehouse whose sync ID
// is absent from seen as inactive and out of sync. This is how products
// removed upstream disappear from the point of sale without a hard delete.
// Returns the number of rows deactivated.
func (r *ProductRepository) DeactivateMissing(warehouseID string, seen []string) (int64, error) {
	q := r.db.Model(&models.Product{}).
		Where("warehouse_id = ? AND is_active = ? AND sync_id <> ''", warehouseID, true)
	if len(seen) > 0 {
		q = q.Where("sync_id NOT IN ?", seen)
	}

	res := q.Updates(map[string]interface{}{
		"is_active":   false,
		"sync_status": models.SyncStatusOutOfSync,
	})
	if res.Error != nil {
		return 0, fmt.Errorf("deactivate missing in warehouse %s: %w", warehouseID, res.Error)
	}
	return res.RowsAffected, nil
}

// ActiveByWarehouse lists the warehouse's active products.
func (r *ProductRepository) ActiveByWarehouse(warehouseID string) ([]models.Product, error) {
	var out []models.Product
	err := r.db.
		Where("warehouse_id = ? AND is_active = ?", warehouseID, true).
		Order("id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("active products for warehouse %s: %w", warehouseID, err)
	}
	return out, nil
}

// LowStock lists active products at or under their minimum stock threshold.
func (r *ProductRepository) LowStock(limit int) ([]models.Product, error) {
	var out []models.Product
	err := r.db.
		Where("is_active = ? AND min_stock > 0 AND stock <= min_stock", true).
		Order("stock").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("low stock products: %w", err)
	}
	return out, nil
}
