// Package server wires the application together: configuration, database,
// cache, queue, scheduler, services, controllers and the HTTP surface.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shashiranjanraj/kirana/app/controllers"
	"github.com/shashiranjanraj/kirana/app/repositories"
	"github.com/shashiranjanraj/kirana/app/routes"
	"github.com/shashiranjanraj/kirana/app/services"
	"github.com/shashiranjanraj/kirana/config"
	"github.com/shashiranjanraj/kirana/pkg/cache"
	"github.com/shashiranjanraj/kirana/pkg/database"
	"github.com/shashiranjanraj/kirana/pkg/erp"
	"github.com/shashiranjanraj/kirana/pkg/logger"
	"github.com/shashiranjanraj/kirana/pkg/metrics"
	"github.com/shashiranjanraj/kirana/pkg/middleware"
	"github.com/shashiranjanraj/kirana/pkg/migration"
	"github.com/shashiranjanraj/kirana/pkg/queue"
	"github.com/shashiranjanraj/kirana/pkg/reqid"
	"github.com/shashiranjanraj/kirana/pkg/router"
	"github.com/shashiranjanraj/kirana/pkg/schedule"
	"github.com/shashiranjanraj/kirana/pkg/ws"
	"gorm.io/gorm"
)

// App holds every constructed component. The CLI reuses the pieces it needs
// (DB for migrations, queue for workers) without starting the HTTP server.
type App struct {
	DB        *gorm.DB
	Cache     *cache.Client
	Queue     *queue.Manager
	Scheduler *schedule.Scheduler
	Hub       *ws.Hub
	Router    *router.Router

	Records  *repositories.SyncRecordRepository
	Settings *services.SettingsService
	Sync     *services.SyncService
	Retry    *services.RetryService

	mongo *logger.MongoHandler
}

// Bootstrap loads configuration and constructs the full dependency graph.
func Bootstrap(ctx context.Context) (*App, error) {
	if err := config.Load(); err != nil {
		return nil, err
	}

	app := &App{}

	if uri := config.LogMongoURI(); uri != "" {
		mh, err := logger.AttachMongo(uri, config.LogMongoDB(), config.LogMongoCollection())
		if err != nil {
			logger.Warn("server: mongo log sink unavailable", "error", err)
		} else {
			app.mongo = mh
		}
	}

	db, err := database.Connect(config.DatabaseDriver(), config.DatabaseDSN())
	if err != nil {
		return nil, err
	}
	app.DB = db

	cacheClient, err := cache.Connect(ctx, config.RedisAddr(), config.RedisPassword())
	if err != nil {
		// Redis is optional: without it, locks degrade to per-process and
		// the queue falls back to memory.
		logger.Warn("server: redis unavailable, running degraded", "error", err)
		cacheClient = nil
	}
	app.Cache = cacheClient

	var driver queue.Driver
	if rdb := cacheClient.Redis(); rdb != nil {
		driver = queue.NewRedisDriver(rdb)
	}
	app.Queue = queue.NewManager(driver)
	if err := app.Queue.UseDB(db); err != nil {
		return nil, err
	}

	// Repositories and services.
	products := repositories.NewProductRepository(db)
	records := repositories.NewSyncRecordRepository(db, config.SyncRetryBase(), config.SyncRetryCap())
	ledger := repositories.NewTransactionLogRepository(db)
	settingRows := repositories.NewSettingRepository(db)
	app.Records = records

	settings := services.NewSettingsService(settingRows)
	app.Settings = settings

	stock := services.NewStockService(db)
	source := erp.NewHTTPClient(config.ErpBaseURL(), config.ErpAPIKey(), config.ErpTimeout())

	app.Hub = ws.NewHub()

	outbound := services.NewOutboundService(records, source, app.Queue)
	app.Queue.Handle(services.JobStockPush, func(jobCtx context.Context, payload []byte) error {
		var body struct {
			RecordID uint `json:"record_id"`
		}
		if err := json.Unmarshal(payload, &body); err != nil {
			return err
		}
		return outbound.Push(jobCtx, body.RecordID)
	})

	sync := services.NewSyncService(db, products, records, stock, source, settings, cacheClient, app.Hub)
	retry := services.NewRetryService(records, sync, outbound)
	sales := services.NewSaleService(db, products, stock, outbound, settings, app.Hub)
	app.Sync = sync
	app.Retry = retry

	// HTTP surface.
	r := router.New()
	r.Use(metrics.Middleware())
	r.Use(reqid.Middleware())
	r.Use(middleware.Recovery)
	r.Use(middleware.Logger)
	r.Use(middleware.CORS(middleware.DefaultCORSOptions()))
	r.Use(middleware.RateLimit(300, time.Minute))

	routes.RegisterAPI(r, routes.Deps{
		Auth:     controllers.NewAuthController(),
		Sync:     controllers.NewSyncController(sync, retry, records, settings),
		Stock:    controllers.NewStockController(stock, products, ledger),
		Sales:    controllers.NewSaleController(sales),
		Products: controllers.NewProductController(products),
		Settings: controllers.NewSettingsController(settings),
		Hub:      app.Hub,
	})
	app.Router = r

	app.Scheduler = schedule.New()
	app.registerTasks()

	return app, nil
}

// registerTasks wires the background loops: the periodic warehouse sync, the
// retry scanner and the sync record retention job.
func (a *App) registerTasks() {
	a.Scheduler.EveryMinute().
		Name("warehouse-sync").
		WithoutOverlapping().
		When(func() bool {
			if !a.Settings.SyncEnabled() {
				return false
			}
			return time.Since(a.Settings.LastSync()) >= a.Settings.SyncInterval()
		}).
		Run(func() { a.SyncAllWarehouses(context.Background()) })

	scanSecs := int(config.RetryScanInterval().Seconds())
	a.Scheduler.Every(scanSecs).Seconds().
		Name("retry-scan").
		WithoutOverlapping().
		Run(func() {
			if n, err := a.Retry.ScanDue(context.Background(), 100); err != nil {
				logger.Error("server: retry scan failed", "error", err)
			} else if n > 0 {
				logger.Info("server: retried due sync records", "count", n)
			}
		})

	a.Scheduler.Daily().
		Name("sync-record-cleanup").
		Run(func() {
			deleted, err := a.Records.CleanupOld(30 * 24 * time.Hour)
			if err != nil {
				logger.Error("server: sync record cleanup failed", "error", err)
				return
			}
			if deleted > 0 {
				logger.Info("server: cleaned up old sync records", "deleted", deleted)
			}
		})
}

// SyncAllWarehouses reconciles every configured warehouse in turn. Failures
// are logged per warehouse and never stop the walk.
func (a *App) SyncAllWarehouses(ctx context.Context) {
	ids := config.WarehouseIDs()
	if len(ids) == 0 {
		logger.Debug("server: no warehouses configured, skipping sync")
		return
	}
	for _, id := range ids {
		if _, err := a.Sync.SyncWarehouse(ctx, id, services.SyncOptions{}); err != nil {
			logger.Error("server: scheduled sync failed", "warehouse_id", id, "error", err)
		}
	}
}

// Migrate runs pending database migrations.
func (a *App) Migrate() error {
	return migration.New(a.DB).Run()
}

// Run starts the workers, scheduler and HTTP server, blocking until ctx is
// cancelled, then shuts the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	go a.Hub.Run()
	a.Queue.StartWorkers(ctx, config.QueueWorkers())
	a.Scheduler.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + config.AppPort(),
		Handler:           a.Router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server: listening", "addr", srv.Addr, "env", config.AppEnv())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}

	a.Close()
	logger.Info("server: stopped")
	return nil
}

// Close releases the app's external connections.
func (a *App) Close() {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			logger.Warn("server: close cache", "error", err)
		}
	}
	if a.mongo != nil {
		a.mongo.Close()
	}
}
