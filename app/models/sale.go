package models

import "gorm.io/gorm"

// Sale statuses.
const (
	SaleCompleted = "completed"
	SaleReturned  = "returned"
)

// Sale is a completed point-of-sale transaction. Stock decrements for its
// items go through the stock service inside the same database transaction.
type Sale struct {
	gorm.Model
	Number        string     `gorm:"size:50;uniqueIndex" json:"number"`
	Total         float64    `gorm:"not null;default:0" json:"total"`
	Status        string     `gorm:"size:20;not null;default:completed" json:"status"`
	PerformedByID uint       `json:"performed_by_id"`
	Items         []SaleItem `json:"items"`
}

type SaleItem struct {
	gorm.Model
	SaleID    uint    `gorm:"not null;index" json:"sale_id"`
	ProductID uint    `gorm:"not null;index" json:"product_id"`
	Quantity  int     `gorm:"not null" json:"quantity"`
	UnitPrice float64 `gorm:"not null" json:"unit_price"`
}
