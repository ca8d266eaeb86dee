package models

import (
	"time"

	"gorm.io/gorm"
)

// Entity types a sync record can describe.
const (
	EntityProduct      = "Product"
	EntityProductBatch = "ProductBatch"
	EntitySale         = "Sale"
)

// Sync directions.
const (
	DirectionInbound  = "inbound"  // external inventory → point of sale
	DirectionOutbound = "outbound" // point of sale → external inventory
)

// Sync record statuses. pending → success is terminal; pending → failed may
// be retried, flipping back to pending with a new next_retry_at.
const (
	SyncPending = "pending"
	SyncSuccess = "success"
	SyncFailed  = "failed"
)

// SyncRecord is the durable bookkeeping row for one attempted sync action:
// one master record per warehouse batch run, one child record per product
// within it, one record per outbound stock push.
type SyncRecord struct {
	gorm.Model
	EntityType   string     `gorm:"size:30;not null;index:idx_sync_records_entity" json:"entity_type"`
	EntityID     string     `gorm:"size:160;not null;index:idx_sync_records_entity" json:"entity_id"`
	Direction    string     `gorm:"size:10;not null;index" json:"direction"`
	Status       string     `gorm:"size:10;not null;index" json:"status"`
	Payload      string     `gorm:"type:text" json:"payload"`
	ErrorMessage string     `gorm:"size:500" json:"error_message"`
	RetryCount   int        `gorm:"not null;default:0" json:"retry_count"`
	NextRetryAt  *time.Time `gorm:"index" json:"next_retry_at"`
	StartedAt    time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
}

// Terminal reports whether the record has reached its success terminal state.
// Failed records are not terminal: they stay eligible for retry.
func (r *SyncRecord) Terminal() bool {
	return r.Status == SyncSuccess
}
