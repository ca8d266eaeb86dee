package repositories

import (
	"fmt"

	"github.com/shashiranjanraj/kirana/app/models"
	"gorm.io/gorm"
)

// TransactionLogRepository reads the append-only stock ledger. Writes happen
// inside the stock service's transaction, never through this type, so the
// ledger cannot be appended to without a matching stock mutation.
type TransactionLogRepository struct {
	db *gorm.DB
}

func NewTransactionLogRepository(db *gorm.DB) *TransactionLogRepository {
	return &TransactionLogRepository{db: db}
}

// HistoryFilter narrows ledger listings. Zero values match all.
type HistoryFilter struct {
	ProductID   uint
	Action      string
	WarehouseID string
}

// History returns a page of ledger entries, newest first.
func (r *TransactionLogRepository) History(f HistoryFilter, page, limit int) ([]models.StockTransaction, Pagination, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	q := r.db.Model(&models.StockTransaction{})
	if f.ProductID != 0 {
		q = q.Where("product_id = ?", f.ProductID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.WarehouseID != "" {
		q = q.Where("warehouse_id = ?", f.WarehouseID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, Pagination{}, fmt.Errorf("count stock transactions: %w", err)
	}

	var out []models.StockTransaction
	err := q.Order("created_at DESC, id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("list stock transactions: %w", err)
	}

	pages := int((total + int64(limit) - 1) / int64(limit))
	return out, Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}, nil
}

// ForProduct returns every entry for one product in append order.
func (r *TransactionLogRepository) ForProduct(productID uint) ([]models.StockTransaction, error) {
	var out []models.StockTransaction
	err := r.db.
		Where("product_id = ?", productID).
		Order("created_at, id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("stock transactions for product %d: %w", productID, err)
	}
	return out, nil
}

// Replay folds a product's ledger from the earliest quantity_before and
// returns the reconstructed stock. Audit tooling compares this against the
// product row; a mismatch means the ledger invariant was broken.
func (r *TransactionLogRepository) Replay(productID uint) (int, error) {
	entries, err := r.ForProduct(productID)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	stock := entries[0].QuantityBefore
	for _, e := range entries {
		stock += e.ChangeAmount
	}
	return stock, nil
}
