package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/shashiranjanraj/kirana/app/models"
	"github.com/shashiranjanraj/kirana/app/repositories"
	"github.com/shashiranjanraj/kirana/pkg/erp"
	"github.com/shashiranjanraj/kirana/pkg/logger"
	"github.com/shashiranjanraj/kirana/pkg/metrics"
	"github.com/shashiranjanraj/kirana/pkg/workerpool"
	"gorm.io/gorm"
)

// warehouseLockTTL bounds how long a crashed sync can keep its warehouse
// locked before another run may start.
const warehouseLockTTL = 10 * time.Minute

// syncConcurrency bounds how many products reconcile at once within a run.
const syncConcurrency = 4

// WarehouseLocker serialises reconciliations per warehouse across processes.
// pkg/cache provides the Redis implementation; a nil locker disables locking
// (single-process deployments and tests).
type WarehouseLocker interface {
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// Notifier receives sync progress events for live operator feeds.
type Notifier interface {
	Publish(data []byte)
}

// SyncOptions tunes one reconciliation run.
type SyncOptions struct {
	// FullSync rewrites every matched product even when the comparison
	// predicate sees no difference.
	FullSync bool `json:"full_sync"`
}

// SyncSummary is the per-warehouse reconciliation result. Skipped counts
// both unchanged products and per-item failures; failures additionally
// appear in Errors.
type SyncSummary struct {
	WarehouseID string   `json:"warehouse_id"`
	Created     int      `json:"created"`
	Updated     int      `json:"updated"`
	Skipped     int      `json:"skipped"`
	Deactivated int      `json:"deactivated"`
	Errors      []string `json:"errors,omitempty"`
}

// SyncService is the warehouse reconciliation engine: it pulls the external
// inventory's product list for one warehouse, diffs it against local state
// and applies the minimal set of local changes to match it.
type SyncService struct {
	db       *gorm.DB
	products *repositories.ProductRepository
	records  *repositories.SyncRecordRepository
	stock    *StockService
	source   erp.Client
	settings *SettingsService
	locker   WarehouseLocker
	notify   Notifier
}

func NewSyncService(
	db *gorm.DB,
	products *repositories.ProductRepository,
	records *repositories.SyncRecordRepository,
	stock *StockService,
	source erp.Client,
	settings *SettingsService,
	locker WarehouseLocker,
	notify Notifier,
) *SyncService {
	return &SyncService{
		db:       db,
		products: products,
		records:  records,
		stock:    stock,
		source:   source,
		settings: settings,
		locker:   locker,
		notify:   notify,
	}
}

type batchPayload struct {
	WarehouseID string `json:"warehouse_id"`
	FullSync    bool   `json:"full_sync"`
}

// SyncWarehouse reconciles one warehouse. It is never run globally: local
// products are partitioned by warehouse and a partial failure must not be
// able to touch unrelated warehouses.
//
// Connection-level failures abort the whole batch and fail the master sync
// record; per-product failures are recorded against their own child record
// and never abort sibling items.
func (s *SyncService) SyncWarehouse(ctx context.Context, warehouseID string, opts SyncOptions) (*SyncSummary, error) {
	if warehouseID == "" {
		return nil, fmt.Errorf("%w: warehouse id is required", ErrValidation)
	}

	release, err := s.lockWarehouse(ctx, warehouseID)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	payload, _ := json.Marshal(batchPayload{WarehouseID: warehouseID, FullSync: opts.FullSync})
	master, err := s.records.Start(models.EntityProductBatch, warehouseID, models.DirectionInbound, string(payload))
	if err != nil {
		return nil, err
	}

	summary := &SyncSummary{WarehouseID: warehouseID}
	s.publish("sync.started", map[string]interface{}{"warehouse_id": warehouseID})

	status, err := s.source.CheckConnection(ctx)
	if err != nil || !status.Connected {
		reason := status.Message
		if err != nil {
			reason = err.Error()
		}
		cause := fmt.Errorf("%w: %s", ErrConnectionUnavailable, reason)
		s.finishFailed(master.ID, cause, summary, start)
		return summary, cause
	}

	if err := s.source.Connect(ctx); err != nil {
		cause := fmt.Errorf("%w: %v", ErrConnectionUnavailable, err)
		s.finishFailed(master.ID, cause, summary, start)
		return summary, cause
	}
	defer func() {
		if err := s.source.Disconnect(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("sync: disconnect failed", "warehouse_id", warehouseID, "error", err)
		}
	}()

	warehouse, err := s.source.GetWarehouseByID(ctx, warehouseID)
	if err != nil {
		cause := fmt.Errorf("%w: %v", ErrConnectionUnavailable, err)
		s.finishFailed(master.ID, cause, summary, start)
		return summary, cause
	}
	if warehouse == nil {
		cause := fmt.Errorf("warehouse %s: %w", warehouseID, ErrEntityNotFound)
		s.finishFailed(master.ID, cause, summary, start)
		return summary, cause
	}

	external, err := s.source.GetProductsByWarehouse(ctx, warehouseID)
	if err != nil {
		cause := fmt.Errorf("%w: %v", ErrConnectionUnavailable, err)
		s.finishFailed(master.ID, cause, summary, start)
		return summary, cause
	}

	// Items are independent (each runs in its own transaction), so they
	// fan out over a bounded pool. The summary is the only shared state.
	pool := workerpool.New(syncConcurrency)
	var mu sync.Mutex

	seen := make([]string, 0, len(external))
	for _, ext := range external {
		if !ext.IsActive {
			// Inactive upstream records are treated as absent; the
			// deactivation pass below retires their local rows.
			continue
		}
		ext := ext
		seen = append(seen, models.SyncKey(warehouseID, ext.ExternalID))

		if err := pool.SubmitWait(func() {
			outcome, itemErr := s.syncOne(ctx, warehouseID, warehouse.Name, ext, opts.FullSync)

			mu.Lock()
			defer mu.Unlock()
			if itemErr != nil {
				summary.Skipped++
				summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", ext.ExternalID, itemErr))
				metrics.SyncProducts.WithLabelValues("failed").Inc()
				return
			}
			switch outcome {
			case outcomeCreated:
				summary.Created++
				metrics.SyncProducts.WithLabelValues("created").Inc()
			case outcomeUpdated:
				summary.Updated++
				metrics.SyncProducts.WithLabelValues("updated").Inc()
			case outcomeUnchanged:
				summary.Skipped++
				metrics.SyncProducts.WithLabelValues("unchanged").Inc()
			}
		}); err != nil {
			break
		}
	}
	// Shutdown doubles as the completion barrier for in-flight items.
	pool.Shutdown()

	deactivated, err := s.products.DeactivateMissing(warehouseID, seen)
	if err != nil {
		s.finishFailed(master.ID, err, summary, start)
		return summary, err
	}
	summary.Deactivated = int(deactivated)
	metrics.SyncProducts.WithLabelValues("deactivated").Add(float64(deactivated))

	// Partial success is a valid terminal state at the batch level: the
	// master record closes success even when individual products failed.
	result, _ := json.Marshal(summary)
	if err := s.records.MarkSuccess(master.ID, string(result)); err != nil {
		return summary, err
	}
	s.stampLastSync()

	metrics.SyncRuns.WithLabelValues("success").Inc()
	metrics.SyncDuration.Observe(time.Since(start).Seconds())
	s.publish("sync.completed", summary)
	logger.Info("sync: warehouse reconciled",
		"warehouse_id", warehouseID,
		"created", summary.Created,
		"updated", summary.Updated,
		"skipped", summary.Skipped,
		"deactivated", summary.Deactivated,
		"item_errors", len(summary.Errors),
	)
	return summary, nil
}

type itemOutcome int

const (
	outcomeCreated itemOutcome = iota
	outcomeUpdated
	outcomeUnchanged
)

type itemPayload struct {
	WarehouseID string `json:"warehouse_id"`
	ExternalID  string `json:"external_id"`
}

// syncOne reconciles a single external record against local state inside its
// own transaction and its own child sync record, so one product's failure
// cannot abort the batch. Panics from deep inside a driver are converted to
// item errors for the same reason.
func (s *SyncService) syncOne(ctx context.Context, warehouseID, warehouseName string, ext erp.Product, fullSync bool) (outcome itemOutcome, err error) {
	syncID := models.SyncKey(warehouseID, ext.ExternalID)
	payload, _ := json.Marshal(itemPayload{WarehouseID: warehouseID, ExternalID: ext.ExternalID})

	child, err := s.records.Start(models.EntityProduct, syncID, models.DirectionInbound, string(payload))
	if err != nil {
		return 0, err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync item panicked: %v", r)
		}
		if err != nil {
			if recErr := s.records.MarkFailure(child.ID, err); recErr != nil {
				logger.Error("sync: failed to record item failure", "record_id", child.ID, "error", recErr)
			}
		}
	}()

	local, err := s.products.FindBySyncID(syncID)
	if err != nil {
		return 0, err
	}
	if local == nil {
		// Legacy-linked rows predate sync IDs and carry only the external
		// stock item reference.
		local, err = s.products.FindByStockItem(ext.ExternalID, warehouseID)
		if err != nil {
			return 0, err
		}
	}

	now := time.Now()

	if local == nil {
		if err = s.createFromExternal(ctx, warehouseID, warehouseName, ext, now); err != nil {
			return 0, err
		}
		err = s.records.MarkSuccess(child.ID, "created")
		return outcomeCreated, err
	}

	if !fullSync && !NeedsUpdate(local, ext) {
		// Do not touch the row at all, so updated_at stays put and a
		// repeat run writes nothing.
		err = s.records.MarkSuccess(child.ID, "no changes needed")
		return outcomeUnchanged, err
	}

	if err = s.updateFromExternal(ctx, local, warehouseID, warehouseName, ext, now); err != nil {
		return 0, err
	}
	err = s.records.MarkSuccess(child.ID, "updated")
	return outcomeUpdated, err
}

func (s *SyncService) createFromExternal(ctx context.Context, warehouseID, warehouseName string, ext erp.Product, now time.Time) error {
	p := models.Product{
		SKU:        skuFor(ext, warehouseID),
		Stock:      0,
		SyncStatus: models.SyncStatusSynced,
		LastSyncAt: &now,
		IsActive:   true,
	}
	mirrorExternal(&p, ext, warehouseID, warehouseName)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&p).Error; err != nil {
			return fmt.Errorf("create product %s: %w", p.SyncID, err)
		}
		if ext.WarehouseStock == 0 {
			// Nothing to seed; the ledger starts with the first real change.
			return nil
		}
		_, err := s.stock.ApplyStockChangeTx(tx, StockChangeInput{
			ProductID:     p.ID,
			ChangeAmount:  ext.WarehouseStock,
			Action:        models.ActionProductCreated,
			ReferenceType: "sync",
			ReferenceID:   p.SyncID,
			Notes:         "seeded from external inventory",
		})
		return err
	})
}

func (s *SyncService) updateFromExternal(ctx context.Context, local *models.Product, warehouseID, warehouseName string, ext erp.Product, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		delta := ext.WarehouseStock - local.Stock

		mirrorExternal(local, ext, warehouseID, warehouseName)
		local.SyncStatus = models.SyncStatusSynced
		local.LastSyncAt = &now
		local.IsActive = true

		if err := tx.Omit("stock").Save(local).Error; err != nil {
			return fmt.Errorf("save product %d: %w", local.ID, err)
		}

		if delta == 0 {
			return nil
		}
		change, err := s.stock.ApplyStockChangeTx(tx, StockChangeInput{
			ProductID:     local.ID,
			ChangeAmount:  delta,
			Action:        models.ActionStockSync,
			ReferenceType: "sync",
			ReferenceID:   local.SyncID,
			Notes:         "reconciled with external warehouse stock",
		})
		if err != nil {
			return err
		}
		local.Stock = change.QuantityAfter
		return nil
	})
}

// skuFor derives a SKU for products created from an external record: the
// barcode when present, otherwise the sync key.
func skuFor(ext erp.Product, warehouseID string) string {
	if ext.Barcode != "" {
		return ext.Barcode
	}
	return models.SyncKey(warehouseID, ext.ExternalID)
}

func (s *SyncService) lockWarehouse(ctx context.Context, warehouseID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}

	key := "kirana:sync:warehouse:" + warehouseID
	token := strconv.FormatInt(time.Now().UnixNano(), 10)

	ok, err := s.locker.AcquireLock(ctx, key, token, warehouseLockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire warehouse lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("sync already in progress for warehouse %s", warehouseID)
	}

	return func() {
		if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil {
			logger.Warn("sync: release warehouse lock failed", "warehouse_id", warehouseID, "error", err)
		}
	}, nil
}

func (s *SyncService) finishFailed(masterID uint, cause error, summary *SyncSummary, start time.Time) {
	if err := s.records.MarkFailure(masterID, cause); err != nil {
		logger.Error("sync: failed to record batch failure", "record_id", masterID, "error", err)
	}
	metrics.SyncRuns.WithLabelValues("failed").Inc()
	metrics.SyncDuration.Observe(time.Since(start).Seconds())
	s.publish("sync.failed", map[string]interface{}{
		"warehouse_id": summary.WarehouseID,
		"error":        cause.Error(),
	})
	logger.Error("sync: warehouse batch failed", "warehouse_id", summary.WarehouseID, "error", cause)
}

func (s *SyncService) stampLastSync() {
	if s.settings == nil {
		return
	}
	if err := s.settings.stampLastSync(time.Now()); err != nil {
		logger.Warn("sync: could not stamp last_sync", "error", err)
	}
}

func (s *SyncService) publish(event string, data interface{}) {
	if s.notify == nil {
		return
	}
	msg, err := json.Marshal(map[string]interface{}{"event": event, "data": data})
	if err != nil {
		return
	}
	s.notify.Publish(msg)
}

// errIsConnection reports whether err is a connection-level failure, used by
// the retry service to distinguish transient from permanent outcomes.
func errIsConnection(err error) bool {
	return errors.Is(err, ErrConnectionUnavailable) || errors.Is(err, erp.ErrUnavailable)
}
