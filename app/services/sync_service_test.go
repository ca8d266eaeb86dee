package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/kirana/app/models"
	"github.com/shashiranjanraj/kirana/pkg/erp"
)

func extProduct(id string, stock int) erp.Product {
	return erp.Product{
		ExternalID:     id,
		Name:           "Item " + id,
		Price:          9.5,
		CostPrice:      6.0,
		WarehouseStock: stock,
		MinStock:       2,
		Barcode:        "BC-" + id,
		IsActive:       true,
	}
}

func seedWarehouse(env *testEnv, id string, products ...erp.Product) {
	env.source.Warehouses[id] = erp.WarehouseInfo{ID: id, Name: "Main Warehouse"}
	env.source.Products[id] = products
}

func TestSyncWarehouseCreatesProducts(t *testing.T) {
	env := newTestEnv(t)
	seedWarehouse(env, "w1", extProduct("e1", 12), extProduct("e2", 0))

	summary, err := env.sync.SyncWarehouse(context.Background(), "w1", SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Created)
	assert.Equal(t, 0, summary.Updated)
	assert.Empty(t, summary.Errors)

	p, err := env.products.FindBySyncID("w1:e1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "BC-e1", p.SKU)
	assert.Equal(t, "Item e1", p.Name)
	assert.Equal(t, 12, p.Stock)
	assert.Equal(t, "e1", p.StockItemID)
	assert.Equal(t, "Main Warehouse", p.WarehouseName)
	assert.Equal(t, models.SyncStatusSynced, p.SyncStatus)
	assert.True(t, p.IsActive)

	// The seeded stock arrives through the ledger like any other change.
	entries, err := env.ledger.ForProduct(p.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionProductCreated, entries[0].Action)
	assert.Equal(t, 0, entries[0].QuantityBefore)
	assert.Equal(t, 12, entries[0].QuantityAfter)

	// A zero-stock external record seeds nothing.
	p2, err := env.products.FindBySyncID("w1:e2")
	require.NoError(t, err)
	require.NotNil(t, p2)
	assert.Equal(t, 0, p2.Stock)
	entries2, err := env.ledger.ForProduct(p2.ID)
	require.NoError(t, err)
	assert.Empty(t, entries2)

	master := env.lastRecord(t, models.EntityProductBatch, models.DirectionInbound)
	assert.Equal(t, models.SyncSuccess, master.Status)
	assert.Equal(t, "w1", master.EntityID)
}

func TestSyncWarehouseSecondRunWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	seedWarehouse(env, "w1", extProduct("e1", 12), extProduct("e2", 3))

	_, err := env.sync.SyncWarehouse(context.Background(), "w1", SyncOptions{})
	require.NoError(t, err)
	before, err := env.products.FindBySyncID("w1:e1")
	require.NoError(t, err)

	summary, err := env.sync.SyncWarehouse(context.Background(), "w1", SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Created)
	assert.Equal(t, 0, summary.Updated)
	assert.Equal(t, 2, summary.Skipped)

	after, err := env.products.FindBySyncID("w1:e1")
	require.NoError(t, err)
	assert.True(t, after.UpdatedAt.Equal(before.UpdatedAt), "unchanged product row was rewritten")

	entries, err := env.ledger.ForProduct(after.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSyncWarehouseUpdatesChangedProducts(t *testing.T) {
	env := newTestEnv(t)
	seedWarehouse(env, "w1", extProduct("e1", 12))

	_, err := env.sync.SyncWarehouse(context.Background(), "w1", SyncOptions{})
	require.NoError(t, err)

	changed := extProduct("e1", 7)
	changed.Price = 11.0
	changed.Name = "Item e1 (new pack)"
	env.source.Products["w1"] = []erp.Product{changed}

	summary, err := env.sync.SyncWarehouse(context.Background(), "w1", SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)

	p, err := env.products.FindBySyncID("w1:e1")
	require.NoError(t, err)
	assert.Equal(t, 7, p.Stock)
	assert.Equal(t, 11.0, p.Price)
	assert.Equal(t, "Item e1 (new pack)", p.Name)

	entries, err := env.ledger.ForProduct(p.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.ActionStockSync, entries[1].Action)
	assert.Equal(t, -5, entries[1].ChangeAmount)
	assert.Equal(t, 12, entries[1].QuantityBefore)
	assert.Equal(t, 7, entries[1].QuantityAfter)
}

func TestSyncWarehouseFullSyncRewritesUnchanged(t *testing.T) {
	env := newTestEnv(t)
	seedWarehouse(env, "w1", extProduct("e1", 12))

	_, err := env.sync.SyncWarehouse(context.Background(), "w1", SyncOptions{})
	require.NoError(t, err)

	summary, err := env.sync.SyncWarehouse(context.Background(), "w1", SyncOptions{FullSync: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)

	// Rewriting mirrored fields must not invent a stock delta.
	p, err := env.products.FindBySyncID("w1:e1")
	require.NoError(t, err)
	entries, err := env.ledger.ForProduct(p.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSyncWarehouseDeactivatesMissing(t *testing.T) {
	env := newTestEnv(t)
	seedWarehouse(env, "w1", extProduct("e1", 5), extProduct("e2", 5))
	localOnly := env.createProduct(t, models.Product{SKU: "LOCAL-1", Name: "Loose sugar", WarehouseID: "w1", IsActive: true})

	_, err := env.sync.SyncWarehouse(context.Background(), "w1", SyncOptions{})
	require.NoError(t, err)

	env.source.Products["w1"] = []erp.Product{extProduct("e1", 5)}

	summary, err := env.sync.SyncWarehouse(context.Background(), "w1", SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Deactivated)

	gone, err := env.products.FindBySyncID("w1:e2")
	require.NoError(t, err)
	assert.False(t, gone.IsActive)
	assert.Equal(t, models.SyncStatusOutOfSync, gone.SyncStatus)

	kept, err := env.products.FindBySyncID("w1:e1")
	require.NoError(t, err)
	assert.True(t, kept.IsActive)

	// Rows that were never linked to the external source are not the sync's
	// to retire.
	assert.True(t, env.reload(t, localOnly.ID).IsActive)
}

func TestSyncWarehouseTreatsInactiveUpstreamAsAbsent(t *testing.T) {
	env := newTestEnv(t)
	seedWarehouse(env, "w1", extProduct("e1", 5))

	_, err := env.sync.SyncWarehouse(context.Background(), "w1", SyncOptions{})
	require.NoError(t, err)

	retired := extProduct("e1", 5)
	retired.IsActive = false
	env.source.Products["w1"] = []erp.Product{retired}

	summary, err := env.sync.SyncWarehouse(context.Background(), "w1", SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Created)
	assert.Equal(t, 1, summary.Deactivated)

	p, err := env.products.FindBySyncID("w1:e1")
	require.NoError(t, err)
	assert.False(t, p.IsActive)
}

func TestSyncWarehouseConnectionFailureFailsMaster(t *testing.T) {
	env := newTestEnv(t)
	seedWarehouse(env, "w1", extProduct("e1", 5))
	env.source.SetAvailable(false)

	summary, err := env.sync.SyncWarehouse(context.Background(), "w1", SyncOptions{})
	require.ErrorIs(t, err, ErrConnectionUnavailable)
	assert.Equal(t, 0, summary.Created)

	master := env.lastRecord(t, models.EntityProductBatch, models.DirectionInbound)
	assert.Equal(t, models.SyncFailed, master.Status)
	assert.Equal(t, 1, master.RetryCount)
	require.NotNil(t, master.NextRetryAt)
	assert.True(t, master.NextRetryAt.After(time.Now()))
}

func TestSyncWarehouseUnknownWarehouse(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.sync.SyncWarehouse(context.Background(), "nowhere", SyncOptions{})
	require.ErrorIs(t, err, ErrEntityNotFound)

	master := env.lastRecord(t, models.EntityProductBatch, models.DirectionInbound)
	assert.Equal(t, models.SyncFailed, master.Status)
}

func TestSyncWarehouseRequiresID(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.sync.SyncWarehouse(context.Background(), "", SyncOptions{})
	require.ErrorIs(t, err, ErrValidation)
}

func TestSyncWarehouseItemFailureIsolated(t *testing.T) {
	env := newTestEnv(t)
	seedWarehouse(env, "w1", extProduct("e1", 5), extProduct("e2", 5))

	// Occupy e2's SKU so its creation hits the unique index and fails.
	env.createProduct(t, models.Product{SKU: "BC-e2", Name: "Conflicting row"})

	summary, err := env.sync.SyncWarehouse(context.Background(), "w1", SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.Skipped)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "e2")

	ok, err := env.products.FindBySyncID("w1:e1")
	require.NoError(t, err)
	assert.NotNil(t, ok)

	// The failed item keeps its own failed child record; the batch still
	// closes success.
	var child models.SyncRecord
	require.NoError(t, env.db.Where("entity_type = ? AND entity_id = ?", models.EntityProduct, "w1:e2").First(&child).Error)
	assert.Equal(t, models.SyncFailed, child.Status)

	master := env.lastRecord(t, models.EntityProductBatch, models.DirectionInbound)
	assert.Equal(t, models.SyncSuccess, master.Status)
}

func TestSyncWarehouseLegacyStockItemFallback(t *testing.T) {
	env := newTestEnv(t)
	seedWarehouse(env, "w1", extProduct("e1", 8))

	legacy := env.createProduct(t, models.Product{
		SKU:         "legacy-1",
		Name:        "Item e1",
		Stock:       5,
		WarehouseID: "w1",
		StockItemID: "e1",
		IsActive:    true,
	})

	summary, err := env.sync.SyncWarehouse(context.Background(), "w1", SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Created)
	assert.Equal(t, 1, summary.Updated)

	p := env.reload(t, legacy.ID)
	assert.Equal(t, "w1:e1", p.SyncID)
	assert.Equal(t, 8, p.Stock)

	entries, err := env.ledger.ForProduct(p.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionStockSync, entries[0].Action)
	assert.Equal(t, 3, entries[0].ChangeAmount)
}

func TestSyncWarehouseStampsLastSync(t *testing.T) {
	env := newTestEnv(t)
	seedWarehouse(env, "w1", extProduct("e1", 5))

	require.True(t, env.settings.LastSync().IsZero())

	_, err := env.sync.SyncWarehouse(context.Background(), "w1", SyncOptions{})
	require.NoError(t, err)

	last := env.settings.LastSync()
	assert.WithinDuration(t, time.Now(), last, 5*time.Second)
}

type stubLocker struct {
	held     bool
	released int
}

func (l *stubLocker) AcquireLock(context.Context, string, string, time.Duration) (bool, error) {
	return !l.held, nil
}

func (l *stubLocker) ReleaseLock(context.Context, string, string) error {
	l.released++
	return nil
}

func TestSyncWarehouseHeldLockRejectsRun(t *testing.T) {
	env := newTestEnv(t)
	seedWarehouse(env, "w1", extProduct("e1", 5))

	locker := &stubLocker{held: true}
	sync := NewSyncService(env.db, env.products, env.records, env.stock, env.source, env.settings, locker, nil)

	_, err := sync.SyncWarehouse(context.Background(), "w1", SyncOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in progress")
	assert.Zero(t, locker.released)
}

func TestSyncWarehouseReleasesLock(t *testing.T) {
	env := newTestEnv(t)
	seedWarehouse(env, "w1", extProduct("e1", 5))

	locker := &stubLocker{}
	sync := NewSyncService(env.db, env.products, env.records, env.stock, env.source, env.settings, locker, nil)

	_, err := sync.SyncWarehouse(context.Background(), "w1", SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, locker.released)
}

func TestNeedsUpdate(t *testing.T) {
	base := func() *models.Product {
		return &models.Product{Name: "Item e1", Price: 9.5, Stock: 12}
	}
	ext := extProduct("e1", 12)

	assert.False(t, NeedsUpdate(base(), ext))

	stale := base()
	stale.Stock = 11
	assert.True(t, NeedsUpdate(stale, ext))

	stale = base()
	stale.Price = 9.0
	assert.True(t, NeedsUpdate(stale, ext))

	stale = base()
	stale.Name = "Old name"
	assert.True(t, NeedsUpdate(stale, ext))
}

// erringSource fails the connectivity probe itself rather than reporting a
// clean "not connected" status.
type erringSource struct {
	*erp.Fake
}

func (erringSource) CheckConnection(context.Context) (erp.ConnectionStatus, error) {
	return erp.ConnectionStatus{}, errors.New("dns lookup failed")
}

func TestSyncWarehouseKeepsConnectionCheckError(t *testing.T) {
	env := newTestEnv(t)
	sync := NewSyncService(env.db, env.products, env.records, env.stock, erringSource{env.source}, env.settings, nil, nil)

	_, err := sync.SyncWarehouse(context.Background(), "w1", SyncOptions{})
	require.ErrorIs(t, err, ErrConnectionUnavailable)
	assert.Contains(t, err.Error(), "dns lookup failed")

	master := env.lastRecord(t, models.EntityProductBatch, models.DirectionInbound)
	assert.Contains(t, master.ErrorMessage, "dns lookup failed")
}
