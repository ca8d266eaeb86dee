package services

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/shashiranjanraj/kirana/app/models"
	"github.com/shashiranjanraj/kirana/app/repositories"
	"github.com/shashiranjanraj/kirana/pkg/erp"
)

// testEnv wires the full service graph against an in-memory database and a
// fake external source. Locker and notifier stay nil; both are optional.
type testEnv struct {
	db       *gorm.DB
	source   *erp.Fake
	products *repositories.ProductRepository
	records  *repositories.SyncRecordRepository
	ledger   *repositories.TransactionLogRepository
	stock    *StockService
	settings *SettingsService
	sync     *SyncService
	outbound *OutboundService
	retry    *RetryService
	sales    *SaleService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps every session on the same in-memory database
	// and serialises concurrent sync items.
	sqlDB.SetMaxOpenConns(1)

	return wireEnv(t, db)
}

// newFileTestEnv is newTestEnv on a file-backed database with several
// connections, for tests that need real cross-session contention. Immediate
// transaction mode makes sqlite take its write lock at BEGIN, so concurrent
// writers queue on the busy timeout instead of deadlocking on a lock upgrade.
func newFileTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "kirana.db") + "?_busy_timeout=10000&_txlock=immediate"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(4)

	return wireEnv(t, db)
}

func wireEnv(t *testing.T, db *gorm.DB) *testEnv {
	t.Helper()

	require.NoError(t, db.AutoMigrate(
		&models.Product{},
		&models.StockTransaction{},
		&models.SyncRecord{},
		&models.Sale{},
		&models.SaleItem{},
		&models.Setting{},
	))

	env := &testEnv{db: db, source: erp.NewFake()}
	env.products = repositories.NewProductRepository(db)
	env.records = repositories.NewSyncRecordRepository(db, time.Second, 4)
	env.ledger = repositories.NewTransactionLogRepository(db)
	env.stock = NewStockService(db)
	env.settings = NewSettingsService(repositories.NewSettingRepository(db))
	env.sync = NewSyncService(db, env.products, env.records, env.stock, env.source, env.settings, nil, nil)
	env.outbound = NewOutboundService(env.records, env.source, nil)
	env.retry = NewRetryService(env.records, env.sync, env.outbound)
	env.sales = NewSaleService(db, env.products, env.stock, env.outbound, env.settings, nil)
	return env
}

func (e *testEnv) createProduct(t *testing.T, p models.Product) *models.Product {
	t.Helper()
	require.NoError(t, e.db.Create(&p).Error)
	return &p
}

func (e *testEnv) reload(t *testing.T, id uint) *models.Product {
	t.Helper()
	var p models.Product
	require.NoError(t, e.db.First(&p, id).Error)
	return &p
}

func (e *testEnv) recordByID(t *testing.T, id uint) *models.SyncRecord {
	t.Helper()
	rec, err := e.records.FindByID(id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec
}

// lastRecord returns the newest sync record matching entity type and
// direction.
func (e *testEnv) lastRecord(t *testing.T, entityType, direction string) *models.SyncRecord {
	t.Helper()
	var rec models.SyncRecord
	err := e.db.
		Where("entity_type = ? AND direction = ?", entityType, direction).
		Order("id DESC").
		First(&rec).Error
	require.NoError(t, err)
	return &rec
}
