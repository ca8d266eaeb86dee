package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shashiranjanraj/kirana/app/models"
	"github.com/shashiranjanraj/kirana/app/repositories"
	"github.com/shashiranjanraj/kirana/pkg/erp"
	"github.com/shashiranjanraj/kirana/pkg/logger"
	"gorm.io/gorm"
)

// SaleItemInput is one line of a new sale.
type SaleItemInput struct {
	ProductID uint `json:"product_id" validate:"required"`
	Quantity  int  `json:"quantity" validate:"required,gt=0"`
}

// SaleInput is the request shape for completing a sale.
type SaleInput struct {
	Items         []SaleItemInput `json:"items" validate:"required,min=1,dive"`
	PerformedByID uint            `json:"performed_by_id"`
}

// LowStockAlert is raised when a sale takes a product to or below its
// minimum stock level.
type LowStockAlert struct {
	ProductID uint   `json:"product_id"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
	MinStock  int    `json:"min_stock"`
}

// SaleResult is the committed sale plus the alerts it triggered.
type SaleResult struct {
	Sale   *models.Sale    `json:"sale"`
	Alerts []LowStockAlert `json:"alerts,omitempty"`
}

// SaleService completes and returns sales. All stock movement goes through
// the stock service inside the sale's transaction, so a sale either commits
// with every decrement and ledger entry or not at all.
type SaleService struct {
	db       *gorm.DB
	products *repositories.ProductRepository
	stock    *StockService
	outbound *OutboundService
	settings *SettingsService
	notify   Notifier
}

func NewSaleService(
	db *gorm.DB,
	products *repositories.ProductRepository,
	stock *StockService,
	outbound *OutboundService,
	settings *SettingsService,
	notify Notifier,
) *SaleService {
	return &SaleService{
		db:       db,
		products: products,
		stock:    stock,
		outbound: outbound,
		settings: settings,
		notify:   notify,
	}
}

// CreateSale commits a sale. Oversell on any line aborts the whole sale with
// ErrInsufficientStock. After commit, the stock deltas are queued for
// outbound push when the auto-update setting is on.
func (s *SaleService) CreateSale(ctx context.Context, in SaleInput) (*SaleResult, error) {
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: a sale needs at least one item", ErrValidation)
	}
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item quantity must be positive", ErrValidation)
		}
	}

	sale := &models.Sale{
		Number:        fmt.Sprintf("S-%d", time.Now().UnixNano()),
		Status:        models.SaleCompleted,
		PerformedByID: in.PerformedByID,
	}

	var (
		alerts  []LowStockAlert
		updates []erp.StockUpdate
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sale).Error; err != nil {
			return fmt.Errorf("create sale: %w", err)
		}

		for _, item := range in.Items {
			var p models.Product
			if err := tx.First(&p, item.ProductID).Error; err != nil {
				return fmt.Errorf("product %d: %w", item.ProductID, ErrEntityNotFound)
			}

			change, err := s.stock.ApplyStockChangeTx(tx, StockChangeInput{
				ProductID:     p.ID,
				ChangeAmount:  -item.Quantity,
				Action:        models.ActionSale,
				ReferenceType: "sale",
				ReferenceID:   sale.Number,
				PerformedByID: in.PerformedByID,
			})
			if err != nil {
				return err
			}

			line := models.SaleItem{
				SaleID:    sale.ID,
				ProductID: p.ID,
				Quantity:  item.Quantity,
				UnitPrice: p.Price,
			}
			if err := tx.Create(&line).Error; err != nil {
				return fmt.Errorf("create sale item: %w", err)
			}
			sale.Items = append(sale.Items, line)
			sale.Total += p.Price * float64(item.Quantity)

			// A zero MinStock disables the threshold, mirroring
			// Product.BelowMinStock.
			if p.MinStock > 0 && change.QuantityAfter <= p.MinStock {
				alerts = append(alerts, LowStockAlert{
					ProductID: p.ID,
					Name:      p.Name,
					Stock:     change.QuantityAfter,
					MinStock:  p.MinStock,
				})
			}
			if p.StockItemID != "" {
				updates = append(updates, erp.StockUpdate{
					ExternalID: p.StockItemID,
					Delta:      -item.Quantity,
					Reason:     "sale " + sale.Number,
				})
			}
		}

		return tx.Model(sale).Update("total", sale.Total).Error
	})
	if err != nil {
		return nil, err
	}

	s.raiseAlerts(alerts)
	s.pushDeltas(ctx, sale.ID, updates)
	return &SaleResult{Sale: sale, Alerts: alerts}, nil
}

// ReturnSale reverses a completed sale: every line's quantity goes back into
// stock with a RETURN ledger entry, and the reversal is pushed outbound the
// same way the sale was.
func (s *SaleService) ReturnSale(ctx context.Context, saleID uint, performedByID uint) (*models.Sale, error) {
	var sale models.Sale
	var updates []erp.StockUpdate

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").First(&sale, saleID).Error; err != nil {
			return fmt.Errorf("sale %d: %w", saleID, ErrEntityNotFound)
		}
		if sale.Status == models.SaleReturned {
			return fmt.Errorf("%w: sale %s already returned", ErrValidation, sale.Number)
		}

		for _, item := range sale.Items {
			if _, err := s.stock.ApplyStockChangeTx(tx, StockChangeInput{
				ProductID:     item.ProductID,
				ChangeAmount:  item.Quantity,
				Action:        models.ActionReturn,
				ReferenceType: "sale",
				ReferenceID:   sale.Number,
				PerformedByID: performedByID,
			}); err != nil {
				return err
			}

			var p models.Product
			if err := tx.First(&p, item.ProductID).Error; err == nil && p.StockItemID != "" {
				updates = append(updates, erp.StockUpdate{
					ExternalID: p.StockItemID,
					Delta:      item.Quantity,
					Reason:     "return " + sale.Number,
				})
			}
		}

		return tx.Model(&sale).Update("status", models.SaleReturned).Error
	})
	if err != nil {
		return nil, err
	}

	s.pushDeltas(ctx, sale.ID, updates)
	return &sale, nil
}

func (s *SaleService) raiseAlerts(alerts []LowStockAlert) {
	for _, a := range alerts {
		logger.Warn("sale: product at or below minimum stock",
			"product_id", a.ProductID, "name", a.Name, "stock", a.Stock, "min_stock", a.MinStock)
	}
	if s.notify == nil || len(alerts) == 0 {
		return
	}
	msg, err := json.Marshal(map[string]interface{}{"event": "stock.low", "data": alerts})
	if err != nil {
		return
	}
	s.notify.Publish(msg)
}

// pushDeltas hands the sale's stock deltas to the outbound service after the
// sale has committed. A push failure never unwinds the sale; it lives on as
// a failed sync record instead.
func (s *SaleService) pushDeltas(ctx context.Context, saleID uint, updates []erp.StockUpdate) {
	if s.outbound == nil || len(updates) == 0 {
		return
	}
	if s.settings != nil && !s.settings.AutoUpdateOnSale() {
		return
	}
	if _, err := s.outbound.QueuePush(ctx, saleID, updates); err != nil {
		logger.Warn("sale: could not queue outbound push", "sale_id", strconv.FormatUint(uint64(saleID), 10), "error", err)
	}
}
