package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shashiranjanraj/kirana/app/models"
	"github.com/shashiranjanraj/kirana/pkg/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockChange is the before/after pair returned by every stock mutation.
// Callers use it to detect threshold crossings; the stock service itself
// never cascades beyond the product row and its ledger entry.
type StockChange struct {
	ProductID      uint `json:"product_id"`
	QuantityBefore int  `json:"quantity_before"`
	QuantityAfter  int  `json:"quantity_after"`
}

// StockChangeInput describes one stock mutation.
type StockChangeInput struct {
	ProductID     uint
	ChangeAmount  int    // signed, never zero
	Action        string // ledger action, e.g. models.ActionSale
	ReferenceID   string
	ReferenceType string
	PerformedByID uint
	Notes         string
}

// StockService is the single code path allowed to change a product's stock.
// It holds the non-negative stock invariant: every mutation locks the row,
// checks the bound, and appends exactly one ledger entry in the same
// transaction.
type StockService struct {
	db *gorm.DB
}

func NewStockService(db *gorm.DB) *StockService {
	return &StockService{db: db}
}

// ApplyStockChange runs one stock mutation in its own transaction.
func (s *StockService) ApplyStockChange(ctx context.Context, in StockChangeInput) (StockChange, error) {
	var out StockChange
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		out, txErr = s.ApplyStockChangeTx(tx, in)
		return txErr
	})
	return out, err
}

// ApplyStockChangeTx is the mutator core, running inside the caller's
// transaction. The reconciliation engine uses it so a product's mirrored
// fields, its stock delta and its ledger entry commit or roll back together.
//
// The row is locked exclusively for the duration of the transaction, which
// serialises a sale and a sync racing on the same product. Callers must not
// hold the transaction open across network calls.
func (s *StockService) ApplyStockChangeTx(tx *gorm.DB, in StockChangeInput) (StockChange, error) {
	if in.ChangeAmount == 0 {
		// Zero deltas are rejected uniformly rather than treated as a
		// silent no-op, so callers cannot mask bookkeeping bugs.
		return StockChange{}, fmt.Errorf("%w: change amount must be non-zero", ErrValidation)
	}
	if in.Action == "" {
		return StockChange{}, fmt.Errorf("%w: ledger action is required", ErrValidation)
	}

	var p models.Product
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, in.ProductID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return StockChange{}, fmt.Errorf("product %d: %w", in.ProductID, ErrEntityNotFound)
	}
	if err != nil {
		return StockChange{}, fmt.Errorf("lock product %d: %w", in.ProductID, err)
	}

	before := p.Stock
	after := before + in.ChangeAmount
	if after < 0 {
		metrics.StockMutations.WithLabelValues(in.Action, "rejected").Inc()
		return StockChange{}, fmt.Errorf(
			"product %d has %d in stock, cannot remove %d: %w",
			p.ID, before, -in.ChangeAmount, ErrInsufficientStock,
		)
	}

	if err := tx.Model(&p).Update("stock", after).Error; err != nil {
		return StockChange{}, fmt.Errorf("update stock for product %d: %w", p.ID, err)
	}

	entry := models.StockTransaction{
		ProductID:      p.ID,
		Action:         in.Action,
		ChangeAmount:   in.ChangeAmount,
		QuantityBefore: before,
		QuantityAfter:  after,
		WarehouseID:    p.WarehouseID,
		ReferenceID:    in.ReferenceID,
		ReferenceType:  in.ReferenceType,
		PerformedByID:  in.PerformedByID,
		Notes:          in.Notes,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return StockChange{}, fmt.Errorf("append ledger entry for product %d: %w", p.ID, err)
	}

	metrics.StockMutations.WithLabelValues(in.Action, "applied").Inc()
	return StockChange{ProductID: p.ID, QuantityBefore: before, QuantityAfter: after}, nil
}

// ApplyAdjustment applies a manual adjustment through the closed reason set.
// quantity must be positive except for AdjCorrection, which takes a signed
// quantity as-is.
func (s *StockService) ApplyAdjustment(ctx context.Context, productID uint, reason AdjustmentReason, quantity int, performedByID uint, notes string) (StockChange, error) {
	if reason != AdjCorrection && quantity <= 0 {
		return StockChange{}, fmt.Errorf("%w: adjustment quantity must be positive", ErrValidation)
	}

	change, action := reason.Apply(quantity)
	return s.ApplyStockChange(ctx, StockChangeInput{
		ProductID:     productID,
		ChangeAmount:  change,
		Action:        action,
		ReferenceType: "adjustment",
		ReferenceID:   reason.String(),
		PerformedByID: performedByID,
		Notes:         notes,
	})
}
