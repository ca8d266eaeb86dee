// Package erp talks to the external warehouse inventory system. The point of
// sale consumes warehouse stock from it and pushes sale-driven decrements
// back out. Internals of the external system are out of scope; everything
// here is written against its connect/query/disconnect contract.
package erp

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the external source cannot be reached.
// Callers treat it as non-fatal: the sync record is failed and retried later.
var ErrUnavailable = errors.New("erp: external inventory source unavailable")

// ConnectionStatus is the result of a connectivity probe.
type ConnectionStatus struct {
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
}

// WarehouseInfo is the descriptive metadata for one warehouse.
type WarehouseInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Product is one external inventory record for a warehouse.
type Product struct {
	ExternalID     string  `json:"external_id"`
	Name           string  `json:"name"`
	Price          float64 `json:"price"`
	CostPrice      float64 `json:"cost_price"`
	WarehouseStock int     `json:"warehouse_stock"`
	MinStock       int     `json:"min_stock"`
	CategoryName   string  `json:"category_name"`
	SupplierName   string  `json:"supplier_name"`
	Barcode        string  `json:"barcode"`
	ItemType       string  `json:"item_type"`
	IsActive       bool    `json:"is_active"`
}

// StockUpdate is one outbound stock mutation for BulkUpdateStock.
type StockUpdate struct {
	ExternalID string `json:"external_id"`
	Delta      int    `json:"delta"`
	Reason     string `json:"reason"`
}

// UpdateResult is the per-item outcome of a bulk stock push.
type UpdateResult struct {
	ExternalID    string `json:"external_id"`
	Success       bool   `json:"success"`
	PreviousStock *int   `json:"previous_stock,omitempty"`
	NewStock      *int   `json:"new_stock,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Client is the contract the reconciliation engine and outbound pusher are
// written against. Connect/Disconnect bound an explicit session; the other
// calls require a live session.
type Client interface {
	CheckConnection(ctx context.Context) (ConnectionStatus, error)
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	GetWarehouseByID(ctx context.Context, id string) (*WarehouseInfo, error)
	GetProductsByWarehouse(ctx context.Context, id string) ([]Product, error)
	BulkUpdateStock(ctx context.Context, updates []StockUpdate, actorID string) ([]UpdateResult, error)
}
